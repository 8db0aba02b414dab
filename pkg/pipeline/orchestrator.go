// Package pipeline runs a clip from PENDING to a terminal status: script
// generation, safety review, speech synthesis and mixing. The orchestrator is
// the only writer of a clip's status.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/safety"
	"github.com/ASHISH26940/storyspark-api/pkg/script"
	"github.com/ASHISH26940/storyspark-api/pkg/tts"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrClipNotFound      = errors.New("clip not found")
	ErrNotRunnable       = errors.New("clip is not pending")
	ErrInvalidTransition = errors.New("invalid clip status transition")
	// ErrLookup means a related entity could not be resolved before the
	// pipeline started. The clip stays pending.
	ErrLookup = errors.New("clip references a missing entity")
)

const failureWriteTimeout = 10 * time.Second

// Store is the persistence the orchestrator needs. Lookups return nil, nil
// for missing rows.
type Store interface {
	GetClip(ctx context.Context, id uuid.UUID) (*db.Clip, error)
	GetCharacter(ctx context.Context, id uuid.UUID) (*db.Character, error)
	GetChild(ctx context.Context, id uuid.UUID) (*db.Child, error)
	GetScenarioByType(ctx context.Context, scenarioType string) (*db.Scenario, error)
	// UpdateClip and CompleteClip return db.ErrConflict when the stored
	// status is no longer expected.
	UpdateClip(ctx context.Context, clip *db.Clip, expected db.ClipStatus) error
	CompleteClip(ctx context.Context, clip *db.Clip, asset *db.ClipAsset, expected db.ClipStatus) error
	ApproveClip(ctx context.Context, clip *db.Clip, approval *db.Approval) error
	AbandonClip(ctx context.Context, id uuid.UUID, expected db.ClipStatus, before time.Time) error
}

type ScriptWriter interface {
	Generate(ctx context.Context, req script.Request) (*script.Generation, error)
}

type SafetyReviewer interface {
	Review(ctx context.Context, req safety.Request) (*safety.Result, error)
}

type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Speech, error)
}

// Mixer never fails; it returns the voice path when it cannot mix.
type Mixer interface {
	Mix(ctx context.Context, voicePath, trackKey string) string
}

// Notifier is told about every committed status change.
type Notifier interface {
	PublishStatus(ctx context.Context, clip *db.Clip) error
}

type Orchestrator struct {
	store    Store
	writer   ScriptWriter
	reviewer SafetyReviewer
	speech   SpeechSynthesizer
	mixer    Mixer
	notifier Notifier
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(store Store, writer ScriptWriter, reviewer SafetyReviewer, speech SpeechSynthesizer, mixer Mixer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		writer:   writer,
		reviewer: reviewer,
		speech:   speech,
		mixer:    mixer,
		tracer:   otel.Tracer("github.com/ASHISH26940/storyspark-api/pkg/pipeline"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type inputs struct {
	character *db.Character
	child     *db.Child
	scenario  *db.Scenario
}

// Run executes the pipeline for a pending clip until it reaches READY,
// SAFETY_FAILED or FAILED. Stage errors are recorded as FAILED and returned.
func (o *Orchestrator) Run(ctx context.Context, clipID uuid.UUID) (*db.Clip, error) {
	ctx, span := o.tracer.Start(ctx, "clip.pipeline", trace.WithAttributes(attribute.String("clip.id", clipID.String())))
	defer span.End()

	clip, err := o.store.GetClip(ctx, clipID)
	if err != nil {
		return nil, fmt.Errorf("load clip %s: %w", clipID, err)
	}
	if clip == nil {
		return nil, fmt.Errorf("%w: %s", ErrClipNotFound, clipID)
	}
	if clip.Status != db.StatusPending {
		return clip, fmt.Errorf("%w: clip %s is %s", ErrNotRunnable, clipID, clip.Status)
	}

	logger := log.WithField("clip_id", clip.ID.String())

	in, err := o.load(ctx, clip)
	if err != nil {
		logger.WithError(err).Error("Clip inputs could not be resolved")
		span.SetStatus(codes.Error, err.Error())
		return clip, err
	}

	if err := o.execute(ctx, clip, in, logger); err != nil {
		o.fail(ctx, clip, err, logger)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return clip, err
	}
	span.SetAttributes(attribute.String("clip.status", string(clip.Status)))
	return clip, nil
}

func (o *Orchestrator) load(ctx context.Context, clip *db.Clip) (*inputs, error) {
	character, err := o.store.GetCharacter(ctx, clip.CharacterID)
	if err != nil {
		return nil, fmt.Errorf("load character: %w", err)
	}
	if character == nil {
		return nil, fmt.Errorf("%w: character %s", ErrLookup, clip.CharacterID)
	}
	child, err := o.store.GetChild(ctx, clip.ChildID)
	if err != nil {
		return nil, fmt.Errorf("load child: %w", err)
	}
	if child == nil {
		return nil, fmt.Errorf("%w: child %s", ErrLookup, clip.ChildID)
	}
	scenario, err := o.store.GetScenarioByType(ctx, clip.ScenarioType)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	if scenario == nil {
		return nil, fmt.Errorf("%w: scenario type %q", ErrLookup, clip.ScenarioType)
	}
	return &inputs{character: character, child: child, scenario: scenario}, nil
}

func (o *Orchestrator) execute(ctx context.Context, clip *db.Clip, in *inputs, logger *log.Entry) error {
	start := o.now()

	gen, err := o.generate(ctx, clip, in, logger)
	if err != nil {
		return err
	}

	approved, err := o.review(ctx, clip, in, gen, logger)
	if err != nil || !approved {
		return err
	}

	return o.synthesize(ctx, clip, in, gen, start, logger)
}

func (o *Orchestrator) generate(ctx context.Context, clip *db.Clip, in *inputs, logger *log.Entry) (*script.Generation, error) {
	if err := o.advance(ctx, clip, db.StatusGenerating); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "clip.generate")
	defer span.End()

	req := script.Request{
		Character: in.character,
		Scenario:  in.scenario,
		ChildName: in.child.Name,
	}
	if in.child.Age.Valid {
		age := int(in.child.Age.Int64)
		req.ChildAge = &age
	}
	if clip.ParentNote.Valid {
		req.ParentNote = clip.ParentNote.String
	}

	gen, err := o.writer.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}

	scene, err := jsonColumn(db.SceneDescription{
		Setting:       gen.Result.SceneSetting,
		Mood:          gen.Result.SceneMood,
		AmbientSounds: gen.Result.AmbientSounds,
	})
	if err != nil {
		return nil, err
	}
	voice, err := jsonColumn(db.VoiceParams{
		Emotion:         gen.Result.VoiceEmotion,
		Pacing:          gen.Result.VoicePacing,
		BackgroundTrack: gen.Result.BackgroundTrack,
	})
	if err != nil {
		return nil, err
	}

	err = o.commit(ctx, clip, func(c *db.Clip) {
		c.GeneratedScript = nullString(gen.Result.Script)
		c.SceneDescription = scene
		c.VoiceParams = voice
		c.LLMTokensUsed.Int64, c.LLMTokensUsed.Valid = int64(gen.TokensUsed), true
	})
	if err != nil {
		return nil, fmt.Errorf("persist script: %w", err)
	}

	span.SetAttributes(attribute.Int("llm.tokens", gen.TokensUsed))
	logger.WithFields(log.Fields{
		"stage":      "generating",
		"tokens":     gen.TokensUsed,
		"elapsed_ms": gen.Elapsed.Milliseconds(),
	}).Info("Script generated")
	return gen, nil
}

func (o *Orchestrator) review(ctx context.Context, clip *db.Clip, in *inputs, gen *script.Generation, logger *log.Entry) (bool, error) {
	if err := o.advance(ctx, clip, db.StatusSafetyReview); err != nil {
		return false, err
	}

	ctx, span := o.tracer.Start(ctx, "clip.safety_review")
	defer span.End()

	result, err := o.reviewer.Review(ctx, safety.Request{
		Script:        gen.Result.Script,
		CharacterName: in.character.Name,
		ScenarioType:  in.scenario.Type,
		ChildName:     in.child.Name,
	})
	if err != nil {
		return false, fmt.Errorf("safety review: %w", err)
	}

	checks, err := jsonColumn(result.Checks)
	if err != nil {
		return false, err
	}
	verdict := db.SafetyRejected
	if result.Approved {
		verdict = db.SafetyApproved
	}
	// The verdict, checks and feedback land in one write, before branching.
	err = o.commit(ctx, clip, func(c *db.Clip) {
		c.SafetyStatus = nullString(verdict)
		c.SafetyChecks = checks
		c.SafetyFeedback = nullString(result.Feedback)
	})
	if err != nil {
		return false, fmt.Errorf("persist safety result: %w", err)
	}
	span.SetAttributes(attribute.Bool("safety.approved", result.Approved))

	if !result.Approved {
		if err := o.advance(ctx, clip, db.StatusSafetyFailed); err != nil {
			return false, err
		}
		logger.WithFields(log.Fields{"stage": "safety_review", "feedback": result.Feedback}).Warn("Script rejected by safety review")
		return false, nil
	}
	logger.WithField("stage", "safety_review").Info("Script approved by safety review")
	return true, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, clip *db.Clip, in *inputs, gen *script.Generation, start time.Time, logger *log.Entry) error {
	if err := o.advance(ctx, clip, db.StatusSynthesizing); err != nil {
		return err
	}

	ctx, span := o.tracer.Start(ctx, "clip.synthesize")
	defer span.End()

	speech, err := o.speech.Synthesize(ctx, tts.Request{
		Script:        gen.Result.Script,
		CharacterName: in.character.Name,
		Emotion:       gen.Result.VoiceEmotion,
		Pacing:        gen.Result.VoicePacing,
	})
	if err != nil {
		return fmt.Errorf("synthesizing: %w", err)
	}

	asset := &db.ClipAsset{
		VoicePath:       speech.Path,
		DurationSeconds: speech.DurationSeconds,
		TTSProvider:     speech.Provider,
	}
	if mixed := o.mixer.Mix(ctx, speech.Path, gen.Result.BackgroundTrack); mixed != speech.Path {
		asset.MixedPath = nullString(mixed)
	}

	if !CanTransition(clip.Status, db.StatusReady) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, clip.Status, db.StatusReady)
	}
	next := *clip
	next.Status = db.StatusReady
	next.AudioURL = nullString(AudioURL(clip.ID))
	next.DurationSeconds.Float64, next.DurationSeconds.Valid = speech.DurationSeconds, true
	next.GenerationTimeMs.Int64, next.GenerationTimeMs.Valid = o.now().Sub(start).Milliseconds(), true
	if err := o.store.CompleteClip(ctx, &next, asset, clip.Status); err != nil {
		return fmt.Errorf("persist completed clip: %w", err)
	}
	*clip = next
	o.publish(ctx, clip, logger)

	logger.WithFields(log.Fields{
		"stage":              "synthesizing",
		"duration_seconds":   speech.DurationSeconds,
		"mixed":              asset.MixedPath.Valid,
		"generation_time_ms": clip.GenerationTimeMs.Int64,
	}).Info("Clip ready for review")
	return nil
}

// advance persists a status change before a stage starts.
func (o *Orchestrator) advance(ctx context.Context, clip *db.Clip, to db.ClipStatus) error {
	if err := o.commit(ctx, clip, func(c *db.Clip) { c.Status = to }); err != nil {
		return fmt.Errorf("enter %s: %w", to, err)
	}
	return nil
}

// commit applies mutate to a copy of the clip, persists it and only then
// adopts the copy, so a failed write leaves the in-memory clip matching the
// stored row.
func (o *Orchestrator) commit(ctx context.Context, clip *db.Clip, mutate func(*db.Clip)) error {
	next := *clip
	mutate(&next)
	changed := next.Status != clip.Status
	if changed && !CanTransition(clip.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, clip.Status, next.Status)
	}
	if err := o.store.UpdateClip(ctx, &next, clip.Status); err != nil {
		return err
	}
	*clip = next
	if changed {
		o.publish(ctx, clip, log.WithField("clip_id", clip.ID.String()))
	}
	return nil
}

// fail records FAILED for a clip whose stage returned an error. The write is
// detached from ctx so a cancelled run still leaves a terminal status.
func (o *Orchestrator) fail(ctx context.Context, clip *db.Clip, cause error, logger *log.Entry) {
	logger.WithFields(log.Fields{"status": clip.Status, "error": cause.Error()}).Error("Clip generation failed")
	if !CanTransition(clip.Status, db.StatusFailed) {
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	err := o.commit(wctx, clip, func(c *db.Clip) { c.Status = db.StatusFailed })
	switch {
	case err == nil:
	case errors.Is(err, db.ErrConflict):
		logger.WithError(err).Warn("Clip status changed underneath the run, failure not recorded")
	default:
		logger.WithError(err).Error("Could not record clip failure")
	}
}

func (o *Orchestrator) publish(ctx context.Context, clip *db.Clip, logger *log.Entry) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.PublishStatus(ctx, clip); err != nil {
		logger.WithError(err).Warn("Could not publish clip status")
	}
}

// AudioURL is where the API serves a clip's audio.
func AudioURL(clipID uuid.UUID) string {
	return fmt.Sprintf("/api/clips/%s/audio", clipID)
}

func nullString(s string) (ns sql.NullString) {
	if s != "" {
		ns.String, ns.Valid = s, true
	}
	return ns
}

func jsonColumn(v any) (types.NullJSONText, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return types.NullJSONText{}, fmt.Errorf("encode json column: %w", err)
	}
	return types.NullJSONText{JSONText: types.JSONText(b), Valid: true}, nil
}
