// Package events fans clip status changes out over Redis pub/sub so any API
// instance can stream them to the parent watching a clip.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const channelPrefix = "storyspark:clip:"

// ClipEvent is published after every committed status change.
type ClipEvent struct {
	ClipID         uuid.UUID     `json:"clip_id"`
	Status         db.ClipStatus `json:"status"`
	SafetyFeedback string        `json:"safety_feedback,omitempty"`
	AudioURL       string        `json:"audio_url,omitempty"`
	At             time.Time     `json:"at"`
}

// Terminal reports whether the clip will not change again without a parent
// decision.
func (e ClipEvent) Terminal() bool {
	switch e.Status {
	case db.StatusReady, db.StatusSafetyFailed, db.StatusFailed, db.StatusApproved, db.StatusRejected:
		return true
	}
	return false
}

func NewClipEvent(clip *db.Clip, at time.Time) ClipEvent {
	return ClipEvent{
		ClipID:         clip.ID,
		Status:         clip.Status,
		SafetyFeedback: clip.SafetyFeedback.String,
		AudioURL:       clip.AudioURL.String,
		At:             at.UTC(),
	}
}

func Channel(clipID uuid.UUID) string {
	return channelPrefix + clipID.String()
}

type RedisBus struct {
	rdb *goredis.Client
}

func NewRedisBus(ctx context.Context, addr, password string, database int) (*RedisBus, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          database,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Infof("Connected to Redis at %s for clip events.", addr)
	return &RedisBus{rdb: rdb}, nil
}

func (b *RedisBus) PublishStatus(ctx context.Context, clip *db.Clip) error {
	raw, err := json.Marshal(NewClipEvent(clip, time.Now()))
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, Channel(clip.ID), raw).Err()
}

// Subscribe streams events for one clip until ctx is done. The returned
// channel is closed when the subscription ends.
func (b *RedisBus) Subscribe(ctx context.Context, clipID uuid.UUID) (<-chan ClipEvent, error) {
	sub := b.rdb.Subscribe(ctx, Channel(clipID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan ClipEvent, 8)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var ev ClipEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					log.Warnf("Bad clip event payload on %s: %v", m.Channel, err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
