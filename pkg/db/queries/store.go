package queries

import (
	"context"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
)

// Store exposes the package queries as a value, so the pipeline, the worker
// and the handlers depend on interfaces rather than the package-level pool.
type Store struct{}

func (Store) GetClip(ctx context.Context, id uuid.UUID) (*db.Clip, error) {
	return FindClipByID(ctx, id)
}

func (Store) GetCharacter(ctx context.Context, id uuid.UUID) (*db.Character, error) {
	return FindCharacterByID(ctx, id)
}

func (Store) GetChild(ctx context.Context, id uuid.UUID) (*db.Child, error) {
	return FindChildByID(ctx, id)
}

func (Store) GetScenarioByType(ctx context.Context, scenarioType string) (*db.Scenario, error) {
	return FindScenarioByType(ctx, scenarioType)
}

func (Store) UpdateClip(ctx context.Context, clip *db.Clip, expected db.ClipStatus) error {
	return UpdateClip(ctx, clip, expected)
}

func (Store) CompleteClip(ctx context.Context, clip *db.Clip, asset *db.ClipAsset, expected db.ClipStatus) error {
	return CompleteClip(ctx, clip, asset, expected)
}

func (Store) ApproveClip(ctx context.Context, clip *db.Clip, approval *db.Approval) error {
	return ApproveClip(ctx, clip, approval)
}

func (Store) AbandonClip(ctx context.Context, id uuid.UUID, expected db.ClipStatus, before time.Time) error {
	return AbandonClip(ctx, id, expected, before)
}

func (Store) ClaimPendingClip(ctx context.Context, maxClaims int, staleBefore time.Time) (*db.Clip, error) {
	return ClaimPendingClip(ctx, maxClaims, staleBefore)
}

func (Store) ListStaleClips(ctx context.Context, statuses []db.ClipStatus, before time.Time) ([]db.Clip, error) {
	return ListStaleClips(ctx, statuses, before)
}

func (Store) CreateParent(ctx context.Context, parent *db.Parent) (*db.Parent, error) {
	return CreateParent(ctx, parent)
}

func (Store) FindParentByEmail(ctx context.Context, email string) (*db.Parent, error) {
	return FindParentByEmail(ctx, email)
}

func (Store) ListCharacters(ctx context.Context) ([]db.Character, error) {
	return ListCharacters(ctx)
}

func (Store) ListScenarios(ctx context.Context) ([]db.Scenario, error) {
	return ListScenarios(ctx)
}

func (Store) CreateChild(ctx context.Context, child *db.Child) (*db.Child, error) {
	return CreateChild(ctx, child)
}

func (Store) ListChildrenForParent(ctx context.Context, parentID uuid.UUID) ([]db.Child, error) {
	return ListChildrenForParent(ctx, parentID)
}

func (Store) FindChildForParent(ctx context.Context, id, parentID uuid.UUID) (*db.Child, error) {
	return FindChildForParent(ctx, id, parentID)
}

func (Store) CreateClip(ctx context.Context, clip *db.Clip) (*db.Clip, error) {
	return CreateClip(ctx, clip)
}

func (Store) FindClipForParent(ctx context.Context, id, parentID uuid.UUID) (*db.Clip, error) {
	return FindClipForParent(ctx, id, parentID)
}

func (Store) ListClipsForParent(ctx context.Context, parentID uuid.UUID, childID *uuid.UUID) ([]db.Clip, error) {
	return ListClipsForParent(ctx, parentID, childID)
}

func (Store) FindClipAsset(ctx context.Context, clipID uuid.UUID) (*db.ClipAsset, error) {
	return FindClipAsset(ctx, clipID)
}
