package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const clipColumns = `id, child_id, character_id, scenario_type, parent_note, status, generated_script,
	scene_description, voice_params, safety_status, safety_checks, safety_feedback, audio_url,
	duration_seconds, generation_time_ms, llm_tokens_used, claim_attempts, claimed_at, created_at, updated_at`

// prefixed qualifies every column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// CreateClip inserts a new clip. Status defaults to pending.
func CreateClip(ctx context.Context, clip *db.Clip) (*db.Clip, error) {
	if clip.Status == "" {
		clip.Status = db.StatusPending
	}

	query := `
		INSERT INTO clips (child_id, character_id, scenario_type, parent_note, status)
		VALUES (:child_id, :character_id, :scenario_type, :parent_note, :status)
		RETURNING id, created_at, updated_at`

	rows, err := db.DB.NamedQueryContext(ctx, query, clip)
	if err != nil {
		log.Errorf("Error creating clip: %v", err)
		return nil, fmt.Errorf("failed to create clip: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("no rows returned after clip creation")
	}
	if err := rows.StructScan(clip); err != nil {
		return nil, fmt.Errorf("error scanning clip after creation: %w", err)
	}

	log.Infof("Clip %s created for child %s (scenario %s)", clip.ID.String(), clip.ChildID.String(), clip.ScenarioType)
	return clip, nil
}

// FindClipByID returns nil, nil when the clip does not exist.
func FindClipByID(ctx context.Context, id uuid.UUID) (*db.Clip, error) {
	clip := &db.Clip{}
	err := db.DB.GetContext(ctx, clip, `SELECT `+clipColumns+` FROM clips WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Clip with ID '%s' not found.", id.String())
			return nil, nil
		}
		return nil, fmt.Errorf("error finding clip by ID: %w", err)
	}
	return clip, nil
}

// FindClipForParent returns the clip only when its child belongs to parentID.
func FindClipForParent(ctx context.Context, id, parentID uuid.UUID) (*db.Clip, error) {
	clip := &db.Clip{}
	query := `SELECT ` + prefixed("c.", clipColumns) + `
		FROM clips c JOIN children ch ON ch.id = c.child_id
		WHERE c.id = $1 AND ch.parent_id = $2`
	if err := db.DB.GetContext(ctx, clip, query, id, parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding clip for parent: %w", err)
	}
	return clip, nil
}

// ListClipsForParent lists the parent's clips, newest first, optionally
// narrowed to one child.
func ListClipsForParent(ctx context.Context, parentID uuid.UUID, childID *uuid.UUID) ([]db.Clip, error) {
	query := `SELECT ` + prefixed("c.", clipColumns) + `
		FROM clips c JOIN children ch ON ch.id = c.child_id
		WHERE ch.parent_id = $1`
	args := []any{parentID}
	if childID != nil {
		query += ` AND c.child_id = $2`
		args = append(args, *childID)
	}
	query += ` ORDER BY c.created_at DESC`

	var clips []db.Clip
	if err := db.DB.SelectContext(ctx, &clips, query, args...); err != nil {
		return nil, fmt.Errorf("error listing clips: %w", err)
	}
	return clips, nil
}

// guardedClip binds a clip write to the status its writer last read.
type guardedClip struct {
	db.Clip
	Expected db.ClipStatus `db:"expected_status"`
}

// UpdateClip writes every pipeline-owned column of the clip, provided the
// stored status is still expected. Returns db.ErrConflict otherwise.
func UpdateClip(ctx context.Context, clip *db.Clip, expected db.ClipStatus) error {
	clip.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE clips SET
			status = :status,
			generated_script = :generated_script,
			scene_description = :scene_description,
			voice_params = :voice_params,
			safety_status = :safety_status,
			safety_checks = :safety_checks,
			safety_feedback = :safety_feedback,
			audio_url = :audio_url,
			duration_seconds = :duration_seconds,
			generation_time_ms = :generation_time_ms,
			llm_tokens_used = :llm_tokens_used,
			updated_at = :updated_at
		WHERE id = :id AND status = :expected_status`

	result, err := db.DB.NamedExecContext(ctx, query, guardedClip{Clip: *clip, Expected: expected})
	if err != nil {
		log.Errorf("Error updating clip '%s': %v", clip.ID.String(), err)
		return fmt.Errorf("failed to update clip: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("clip %s is no longer %s: %w", clip.ID.String(), expected, db.ErrConflict)
	}
	return nil
}

// CompleteClip inserts the clip's asset and writes the clip in a single
// transaction, so a READY clip always has its asset row. Nothing is written
// unless the stored status is still expected.
func CompleteClip(ctx context.Context, clip *db.Clip, asset *db.ClipAsset, expected db.ClipStatus) error {
	tx, err := db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete clip: %w", err)
	}
	defer tx.Rollback()

	asset.ClipID = clip.ID
	rows, err := sqlx.NamedQueryContext(ctx, tx, `
		INSERT INTO clip_assets (clip_id, voice_path, mixed_path, duration_seconds, tts_provider)
		VALUES (:clip_id, :voice_path, :mixed_path, :duration_seconds, :tts_provider)
		RETURNING id, created_at`, asset)
	if err != nil {
		return fmt.Errorf("insert clip asset: %w", err)
	}
	if rows.Next() {
		if err := rows.StructScan(asset); err != nil {
			rows.Close()
			return fmt.Errorf("scan clip asset: %w", err)
		}
	}
	rows.Close()

	clip.UpdatedAt = time.Now().UTC()
	result, err := tx.NamedExecContext(ctx, `
		UPDATE clips SET
			status = :status,
			audio_url = :audio_url,
			duration_seconds = :duration_seconds,
			generation_time_ms = :generation_time_ms,
			updated_at = :updated_at
		WHERE id = :id AND status = :expected_status`, guardedClip{Clip: *clip, Expected: expected})
	if err != nil {
		return fmt.Errorf("update completed clip: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("clip %s is no longer %s: %w", clip.ID.String(), expected, db.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit complete clip: %w", err)
	}
	return nil
}

// FindClipAsset returns nil, nil when the clip has no asset yet.
func FindClipAsset(ctx context.Context, clipID uuid.UUID) (*db.ClipAsset, error) {
	asset := &db.ClipAsset{}
	err := db.DB.GetContext(ctx, asset, `
		SELECT id, clip_id, voice_path, mixed_path, duration_seconds, tts_provider, created_at
		FROM clip_assets WHERE clip_id = $1`, clipID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding clip asset: %w", err)
	}
	return asset, nil
}

// ClaimPendingClip hands one pending clip to the calling worker. A clip can be
// claimed again once its previous claim is older than staleBefore, up to
// maxClaims times. The status column is not touched.
func ClaimPendingClip(ctx context.Context, maxClaims int, staleBefore time.Time) (*db.Clip, error) {
	clip := &db.Clip{}
	query := `
		UPDATE clips SET claimed_at = now(), claim_attempts = claim_attempts + 1
		WHERE id = (
			SELECT id FROM clips
			WHERE status = $1
			  AND claim_attempts < $2
			  AND (claimed_at IS NULL OR claimed_at < $3)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + clipColumns
	err := db.DB.GetContext(ctx, clip, query, db.StatusPending, maxClaims, staleBefore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim pending clip: %w", err)
	}
	return clip, nil
}

// ListStaleClips returns clips in one of statuses whose row has not changed
// since before.
func ListStaleClips(ctx context.Context, statuses []db.ClipStatus, before time.Time) ([]db.Clip, error) {
	keys := make([]string, len(statuses))
	for i, s := range statuses {
		keys[i] = string(s)
	}
	var clips []db.Clip
	err := db.DB.SelectContext(ctx, &clips,
		`SELECT `+clipColumns+` FROM clips WHERE status = ANY($1) AND updated_at < $2 ORDER BY updated_at LIMIT 100`,
		pq.Array(keys), before)
	if err != nil {
		return nil, fmt.Errorf("list stale clips: %w", err)
	}
	return clips, nil
}

// AbandonClip moves a clip to failed if it is still in expected and has not
// been written since before. Returns db.ErrConflict otherwise.
func AbandonClip(ctx context.Context, id uuid.UUID, expected db.ClipStatus, before time.Time) error {
	result, err := db.DB.ExecContext(ctx, `
		UPDATE clips SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3 AND updated_at < $4`,
		db.StatusFailed, id, expected, before)
	if err != nil {
		return fmt.Errorf("abandon clip: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return db.ErrConflict
	}
	return nil
}

// ApproveClip records a parent's decision and moves the clip out of ready in
// one transaction. Returns db.ErrConflict if the clip is no longer ready.
func ApproveClip(ctx context.Context, clip *db.Clip, approval *db.Approval) error {
	tx, err := db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approval: %w", err)
	}
	defer tx.Rollback()

	clip.UpdatedAt = time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE clips SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		clip.Status, clip.UpdatedAt, clip.ID, db.StatusReady)
	if err != nil {
		return fmt.Errorf("update clip status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return db.ErrConflict
	}

	approval.ClipID = clip.ID
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO approvals (clip_id, parent_id, approved, reviewer_note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, reviewed_at`,
		approval.ClipID, approval.ParentID, approval.Approved, approval.ReviewerNote,
	).Scan(&approval.ID, &approval.ReviewedAt)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approval: %w", err)
	}
	log.Infof("Clip %s marked %s.", clip.ID.String(), clip.Status)
	return nil
}
