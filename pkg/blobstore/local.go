// Package blobstore keeps clip audio and the background-track library on
// disk, optionally mirrored from a GCS bucket.
package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const backgroundDir = "backgrounds"

var trackKey = regexp.MustCompile(`^[a-z0-9_-]+$`)

// FileStore writes artifacts under root and resolves background tracks at
// root/backgrounds/<key>.mp3.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve clip storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, backgroundDir), 0o755); err != nil {
		return nil, fmt.Errorf("create clip storage: %w", err)
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) BackgroundDir() string { return filepath.Join(s.root, backgroundDir) }

// Save writes data to a new uniquely named file and returns its path. The
// file appears only once it is complete.
func (s *FileStore) Save(ctx context.Context, ext string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	final := filepath.Join(s.root, uuid.NewString()+ext)
	return final, writeAtomic(final, data)
}

// BackgroundPath resolves a track key. Keys come from model output, so only
// plain lowercase names are accepted.
func (s *FileStore) BackgroundPath(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if !trackKey.MatchString(key) {
		return "", false
	}
	path := filepath.Join(s.BackgroundDir(), key+".mp3")
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return path, true
}

// Contains reports whether path is inside the store, for serving files.
func (s *FileStore) Contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
