package queries

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
)

// Runs against a disposable Postgres when TEST_DATABASE_URL is set.
func setupDB(t *testing.T) context.Context {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := db.InitDB(dsn); err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(db.CloseDB)

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	catalog, err := db.LoadSeedCatalog()
	if err != nil {
		t.Fatalf("LoadSeedCatalog: %v", err)
	}
	if err := SeedCatalog(ctx, catalog); err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	return ctx
}

func newPendingClip(t *testing.T, ctx context.Context) *db.Clip {
	t.Helper()
	parent, err := CreateParent(ctx, &db.Parent{
		Name:         "Test Parent",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("CreateParent: %v", err)
	}
	child, err := CreateChild(ctx, &db.Child{ParentID: parent.ID, Name: "Thomas", Age: sql.NullInt64{Int64: 4, Valid: true}})
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}
	characters, err := ListCharacters(ctx)
	if err != nil || len(characters) == 0 {
		t.Fatalf("ListCharacters: %v (%d)", err, len(characters))
	}
	clip, err := CreateClip(ctx, &db.Clip{ChildID: child.ID, CharacterID: characters[0].ID, ScenarioType: "bedtime"})
	if err != nil {
		t.Fatalf("CreateClip: %v", err)
	}
	return clip
}

func TestClipLifecycle(t *testing.T) {
	ctx := setupDB(t)
	clip := newPendingClip(t, ctx)

	clip.Status = db.StatusSynthesizing
	clip.GeneratedScript = sql.NullString{String: "Hello Thomas...", Valid: true}
	if err := UpdateClip(ctx, clip, db.StatusPending); err != nil {
		t.Fatalf("UpdateClip: %v", err)
	}

	clip.Status = db.StatusReady
	clip.AudioURL = sql.NullString{String: "/api/clips/" + clip.ID.String() + "/audio", Valid: true}
	clip.DurationSeconds = sql.NullFloat64{Float64: 40, Valid: true}
	asset := &db.ClipAsset{VoicePath: "/clips/v.mp3", DurationSeconds: 40, TTSProvider: "elevenlabs"}
	if err := CompleteClip(ctx, clip, asset, db.StatusSynthesizing); err != nil {
		t.Fatalf("CompleteClip: %v", err)
	}

	got, err := FindClipAsset(ctx, clip.ID)
	if err != nil || got == nil || got.PlaybackPath() != "/clips/v.mp3" {
		t.Fatalf("FindClipAsset = %+v, %v", got, err)
	}
	stored, err := FindClipByID(ctx, clip.ID)
	if err != nil || stored.Status != db.StatusReady || stored.GeneratedScript.String != "Hello Thomas..." {
		t.Fatalf("FindClipByID = %+v, %v", stored, err)
	}

	approved := *clip
	approved.Status = db.StatusApproved
	var parentID uuid.UUID
	if err := db.DB.GetContext(ctx, &parentID, `SELECT parent_id FROM children WHERE id = $1`, clip.ChildID); err != nil {
		t.Fatalf("lookup parent: %v", err)
	}
	if err := ApproveClip(ctx, &approved, &db.Approval{ParentID: parentID, Approved: true}); err != nil {
		t.Fatalf("ApproveClip: %v", err)
	}
	rejected := *clip
	rejected.Status = db.StatusRejected
	if err := ApproveClip(ctx, &rejected, &db.Approval{ParentID: parentID}); !errors.Is(err, db.ErrConflict) {
		t.Errorf("second decision err = %v, want ErrConflict", err)
	}
}

func TestClaimAndAbandon(t *testing.T) {
	ctx := setupDB(t)
	clip := newPendingClip(t, ctx)

	var claimed *db.Clip
	for i := 0; i < 50 && claimed == nil; i++ {
		c, err := ClaimPendingClip(ctx, 1000, time.Now().Add(-time.Hour))
		if err != nil {
			t.Fatalf("ClaimPendingClip: %v", err)
		}
		if c == nil {
			break
		}
		if c.ID == clip.ID {
			claimed = c
		}
	}
	if claimed == nil {
		t.Fatal("pending clip was never claimed")
	}
	if claimed.ClaimAttempts != 1 || !claimed.ClaimedAt.Valid || claimed.Status != db.StatusPending {
		t.Errorf("claimed = attempts %d claimed_at %v status %s", claimed.ClaimAttempts, claimed.ClaimedAt, claimed.Status)
	}

	claimed.Status = db.StatusGenerating
	if err := UpdateClip(ctx, claimed, db.StatusPending); err != nil {
		t.Fatalf("UpdateClip: %v", err)
	}
	if err := AbandonClip(ctx, clip.ID, db.StatusGenerating, time.Now().Add(-time.Minute)); !errors.Is(err, db.ErrConflict) {
		t.Errorf("fresh clip abandon err = %v, want ErrConflict", err)
	}

	stale, err := ListStaleClips(ctx, []db.ClipStatus{db.StatusGenerating}, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListStaleClips: %v", err)
	}
	found := false
	for _, c := range stale {
		found = found || c.ID == clip.ID
	}
	if !found {
		t.Error("clip should be listed as stale with a future cutoff")
	}
	if err := AbandonClip(ctx, clip.ID, db.StatusGenerating, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("AbandonClip: %v", err)
	}
	stored, _ := FindClipByID(ctx, clip.ID)
	if stored.Status != db.StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}

	// A run that outlived the sweeper cannot move the clip forward again.
	claimed.Status = db.StatusSafetyReview
	if err := UpdateClip(ctx, claimed, db.StatusGenerating); !errors.Is(err, db.ErrConflict) {
		t.Errorf("late UpdateClip err = %v, want ErrConflict", err)
	}
	claimed.Status = db.StatusReady
	asset := &db.ClipAsset{VoicePath: "/clips/late.mp3", DurationSeconds: 12, TTSProvider: "elevenlabs"}
	if err := CompleteClip(ctx, claimed, asset, db.StatusSynthesizing); !errors.Is(err, db.ErrConflict) {
		t.Errorf("late CompleteClip err = %v, want ErrConflict", err)
	}
	if got, _ := FindClipAsset(ctx, clip.ID); got != nil {
		t.Errorf("late completion left an asset row: %+v", got)
	}
	stored, _ = FindClipByID(ctx, clip.ID)
	if stored.Status != db.StatusFailed {
		t.Errorf("status after late writes = %s, want failed", stored.Status)
	}
}
