package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
)

// BucketObject is the part of an object listing the sync needs.
type BucketObject struct {
	Name string
	Size int64
}

// Bucket is the read side of an object store holding background tracks.
type Bucket interface {
	List(ctx context.Context, prefix string) ([]BucketObject, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// GCSBucket reads one Google Cloud Storage bucket. STORAGE_EMULATOR_HOST is
// honoured by the client library.
type GCSBucket struct {
	client *gcs.Client
	name   string
}

func NewGCSBucket(ctx context.Context, name string) (*GCSBucket, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBucket{client: client, name: name}, nil
}

func (b *GCSBucket) List(ctx context.Context, prefix string) ([]BucketObject, error) {
	var out []BucketObject
	it := b.client.Bucket(b.name).Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", b.name, prefix, err)
		}
		out = append(out, BucketObject{Name: attrs.Name, Size: attrs.Size})
	}
	return out, nil
}

func (b *GCSBucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.name).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", b.name, name, err)
	}
	return r, nil
}

func (b *GCSBucket) Close() error {
	return b.client.Close()
}

// SyncBackgrounds copies every <prefix><key>.mp3 object with a valid track key
// into the local background directory. Files already present with the same
// size are skipped. Returns the number of tracks downloaded.
func (s *FileStore) SyncBackgrounds(ctx context.Context, bucket Bucket, prefix string) (int, error) {
	objects, err := bucket.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	downloaded := 0
	for _, obj := range objects {
		base := path.Base(obj.Name)
		if !strings.HasSuffix(base, ".mp3") {
			continue
		}
		key := strings.TrimSuffix(base, ".mp3")
		if !trackKey.MatchString(key) {
			log.Warnf("Skipping background object with unusable key: %s", obj.Name)
			continue
		}

		dst := filepath.Join(s.BackgroundDir(), base)
		if info, err := os.Stat(dst); err == nil && info.Size() == obj.Size {
			continue
		}
		if err := s.download(ctx, bucket, obj.Name, dst); err != nil {
			return downloaded, err
		}
		downloaded++
	}
	log.Infof("Background library synced: %d of %d objects downloaded.", downloaded, len(objects))
	return downloaded, nil
}

func (s *FileStore) download(ctx context.Context, bucket Bucket, name, dst string) error {
	r, err := bucket.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return writeAtomic(dst, data)
}
