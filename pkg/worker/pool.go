// Package worker drives pending clips through the pipeline in the background
// and retires clips whose run died mid-flight.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/pipeline"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Runner interface {
	Run(ctx context.Context, clipID uuid.UUID) (*db.Clip, error)
	Abandon(ctx context.Context, clipID uuid.UUID, staleBefore time.Time) error
}

type Queue interface {
	ClaimPendingClip(ctx context.Context, maxClaims int, staleBefore time.Time) (*db.Clip, error)
	ListStaleClips(ctx context.Context, statuses []db.ClipStatus, before time.Time) ([]db.Clip, error)
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	StaleAfter   time.Duration
	MaxClaims    int
}

type Pool struct {
	queue  Queue
	runner Runner
	cfg    Config
	wake   chan struct{}
	now    func() time.Time
}

func NewPool(queue Queue, runner Runner, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.MaxClaims < 1 {
		cfg.MaxClaims = 1
	}
	return &Pool{
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		wake:   make(chan struct{}, cfg.Concurrency),
		now:    time.Now,
	}
}

// Notify wakes an idle worker without waiting for the next poll.
func (p *Pool) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. Cancelling ctx stops new claims only:
// a clip already claimed runs to a terminal state before its worker returns.
func (p *Pool) Run(ctx context.Context) error {
	log.Infof("Starting clip worker pool with %d workers.", p.cfg.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			p.loop(gctx, workerID)
			return nil
		})
	}
	g.Go(func() error {
		p.sweep(gctx)
		return nil
	})
	err := g.Wait()
	log.Info("Clip worker pool stopped.")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		// Drain the backlog before sleeping again.
		for ctx.Err() == nil {
			if !p.claimAndRun(ctx, workerID) {
				break
			}
		}
	}
}

// claimAndRun processes at most one clip and reports whether one was found.
func (p *Pool) claimAndRun(ctx context.Context, workerID int) bool {
	clip, err := p.queue.ClaimPendingClip(ctx, p.cfg.MaxClaims, p.now().Add(-p.cfg.StaleAfter))
	if err != nil {
		if ctx.Err() == nil {
			log.WithField("worker_id", workerID).Warnf("Claiming a pending clip failed: %v", err)
		}
		return false
	}
	if clip == nil {
		return false
	}

	logger := log.WithFields(log.Fields{"worker_id": workerID, "clip_id": clip.ID.String(), "attempt": clip.ClaimAttempts})
	logger.Info("Clip claimed")

	// Stage calls carry their own timeouts, so the run is bounded without ctx.
	if err := p.runSafely(context.WithoutCancel(ctx), clip.ID); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrLookup), errors.Is(err, pipeline.ErrNotRunnable):
			logger.Warnf("Clip skipped: %v", err)
		default:
			logger.Errorf("Clip run ended with error: %v", err)
		}
	}
	return true
}

func (p *Pool) runSafely(ctx context.Context, clipID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	_, err = p.runner.Run(ctx, clipID)
	return err
}

func (p *Pool) sweep(ctx context.Context) {
	interval := p.cfg.StaleAfter / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

// sweepOnce fails every in-flight clip that has not been written within the
// stale window. Returns how many were abandoned.
func (p *Pool) sweepOnce(ctx context.Context) int {
	before := p.now().Add(-p.cfg.StaleAfter)
	stale, err := p.queue.ListStaleClips(ctx, pipeline.InFlight, before)
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("Listing stale clips failed: %v", err)
		}
		return 0
	}

	abandoned := 0
	for _, clip := range stale {
		err := p.runner.Abandon(ctx, clip.ID, before)
		switch {
		case err == nil:
			abandoned++
		case errors.Is(err, db.ErrConflict):
			log.WithField("clip_id", clip.ID.String()).Debug("Stale clip moved on before it was abandoned")
		default:
			log.WithField("clip_id", clip.ID.String()).Warnf("Abandoning stale clip failed: %v", err)
		}
	}
	return abandoned
}
