package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Approve records a parent's decision on a READY clip and moves it to
// APPROVED or REJECTED. Ownership is checked by the caller.
func (o *Orchestrator) Approve(ctx context.Context, clipID, parentID uuid.UUID, approved bool, note string) (*db.Clip, *db.Approval, error) {
	clip, err := o.store.GetClip(ctx, clipID)
	if err != nil {
		return nil, nil, fmt.Errorf("load clip %s: %w", clipID, err)
	}
	if clip == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}

	to := db.StatusRejected
	if approved {
		to = db.StatusApproved
	}
	if !CanTransition(clip.Status, to) {
		return clip, nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, clip.Status, to)
	}

	next := *clip
	next.Status = to
	approval := &db.Approval{
		ClipID:       clip.ID,
		ParentID:     parentID,
		Approved:     approved,
		ReviewerNote: nullString(strings.TrimSpace(note)),
	}
	if err := o.store.ApproveClip(ctx, &next, approval); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return clip, nil, fmt.Errorf("%w: clip %s is no longer ready", ErrInvalidTransition, clipID)
		}
		return clip, nil, fmt.Errorf("record approval: %w", err)
	}
	*clip = next

	logger := log.WithFields(log.Fields{"clip_id": clip.ID.String(), "parent_id": parentID.String()})
	o.publish(ctx, clip, logger)
	logger.Infof("Clip %s by parent", clip.Status)
	return clip, approval, nil
}

// Abandon marks an in-flight clip FAILED when it has not been touched since
// staleBefore. A clip that moved on in the meantime yields db.ErrConflict.
func (o *Orchestrator) Abandon(ctx context.Context, clipID uuid.UUID, staleBefore time.Time) error {
	clip, err := o.store.GetClip(ctx, clipID)
	if err != nil {
		return fmt.Errorf("load clip %s: %w", clipID, err)
	}
	if clip == nil {
		return fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	if !CanTransition(clip.Status, db.StatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, clip.Status, db.StatusFailed)
	}

	if err := o.store.AbandonClip(ctx, clip.ID, clip.Status, staleBefore); err != nil {
		return err
	}
	stuckIn := clip.Status
	clip.Status = db.StatusFailed

	logger := log.WithField("clip_id", clip.ID.String())
	o.publish(ctx, clip, logger)
	logger.WithField("stuck_in", stuckIn).Warn("Abandoned stale clip")
	return nil
}
