package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// ClipStatus is the persisted pipeline state of a clip.
type ClipStatus string

const (
	StatusPending      ClipStatus = "pending"
	StatusGenerating   ClipStatus = "generating"
	StatusSafetyReview ClipStatus = "safety_review"
	StatusSafetyFailed ClipStatus = "safety_failed"
	StatusSynthesizing ClipStatus = "synthesizing"
	StatusReady        ClipStatus = "ready"
	StatusApproved     ClipStatus = "approved"
	StatusRejected     ClipStatus = "rejected"
	StatusFailed       ClipStatus = "failed"
)

const (
	SafetyApproved = "approved"
	SafetyRejected = "rejected"
)

type Parent struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type Child struct {
	ID           uuid.UUID      `db:"id"`
	ParentID     uuid.UUID      `db:"parent_id"`
	Name         string         `db:"name"`
	Age          sql.NullInt64  `db:"age"`
	Interests    pq.StringArray `db:"interests"`
	FavoriteShow sql.NullString `db:"favorite_show"`
	CreatedAt    time.Time      `db:"created_at"`
}

type Character struct {
	ID            uuid.UUID      `db:"id"`
	Name          string         `db:"name"`
	ShowName      string         `db:"show_name"`
	Personality   string         `db:"personality"`
	SpeechPattern string         `db:"speech_pattern"`
	Themes        string         `db:"themes"`
	SystemPrompt  string         `db:"system_prompt"`
	VoiceConfig   types.JSONText `db:"voice_config"`
	AvatarURL     sql.NullString `db:"avatar_url"`
	CreatedAt     time.Time      `db:"created_at"`
}

type Scenario struct {
	ID            uuid.UUID      `db:"id"`
	Type          string         `db:"type"`
	Name          string         `db:"name"`
	Description   string         `db:"description"`
	Structure     types.JSONText `db:"structure"` // ordered list of narrative beats
	ExamplePrompt sql.NullString `db:"example_prompt"`
	Icon          sql.NullString `db:"icon"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Beats decodes the scenario structure. A malformed column yields nil.
func (s *Scenario) Beats() []string {
	var beats []string
	if err := s.Structure.Unmarshal(&beats); err != nil {
		return nil
	}
	return beats
}

type Clip struct {
	ID               uuid.UUID          `db:"id"`
	ChildID          uuid.UUID          `db:"child_id"`
	CharacterID      uuid.UUID          `db:"character_id"`
	ScenarioType     string             `db:"scenario_type"`
	ParentNote       sql.NullString     `db:"parent_note"`
	Status           ClipStatus         `db:"status"`
	GeneratedScript  sql.NullString     `db:"generated_script"`
	SceneDescription types.NullJSONText `db:"scene_description"`
	VoiceParams      types.NullJSONText `db:"voice_params"`
	SafetyStatus     sql.NullString     `db:"safety_status"`
	SafetyChecks     types.NullJSONText `db:"safety_checks"`
	SafetyFeedback   sql.NullString     `db:"safety_feedback"`
	AudioURL         sql.NullString     `db:"audio_url"`
	DurationSeconds  sql.NullFloat64    `db:"duration_seconds"`
	GenerationTimeMs sql.NullInt64      `db:"generation_time_ms"`
	LLMTokensUsed    sql.NullInt64      `db:"llm_tokens_used"`
	ClaimAttempts    int                `db:"claim_attempts"`
	ClaimedAt        sql.NullTime       `db:"claimed_at"`
	CreatedAt        time.Time          `db:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at"`
}

// SceneDescription is the JSON shape of clips.scene_description.
type SceneDescription struct {
	Setting       string   `json:"setting"`
	Mood          string   `json:"mood"`
	AmbientSounds []string `json:"ambient_sounds"`
}

// VoiceParams is the JSON shape of clips.voice_params.
type VoiceParams struct {
	Emotion         string `json:"emotion"`
	Pacing          string `json:"pacing"`
	BackgroundTrack string `json:"background_track"`
}

// ClipAsset is written once, together with the READY transition.
type ClipAsset struct {
	ID              uuid.UUID      `db:"id"`
	ClipID          uuid.UUID      `db:"clip_id"`
	VoicePath       string         `db:"voice_path"`
	MixedPath       sql.NullString `db:"mixed_path"`
	DurationSeconds float64        `db:"duration_seconds"`
	TTSProvider     string         `db:"tts_provider"`
	CreatedAt       time.Time      `db:"created_at"`
}

// PlaybackPath prefers the mixed file when mixing succeeded.
func (a *ClipAsset) PlaybackPath() string {
	if a.MixedPath.Valid && a.MixedPath.String != "" {
		return a.MixedPath.String
	}
	return a.VoicePath
}

type Approval struct {
	ID           uuid.UUID      `db:"id"`
	ClipID       uuid.UUID      `db:"clip_id"`
	ParentID     uuid.UUID      `db:"parent_id"`
	Approved     bool           `db:"approved"`
	ReviewerNote sql.NullString `db:"reviewer_note"`
	ReviewedAt   time.Time      `db:"reviewed_at"`
}
