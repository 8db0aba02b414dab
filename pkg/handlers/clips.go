package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/events"
	"github.com/ASHISH26940/storyspark-api/pkg/pipeline"
	"github.com/ASHISH26940/storyspark-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"
)

// GenerateClipRequest asks for a new clip. The work itself happens in the
// background worker.
type GenerateClipRequest struct {
	ChildID      uuid.UUID `json:"child_id" binding:"required"`
	CharacterID  uuid.UUID `json:"character_id" binding:"required"`
	ScenarioType string    `json:"scenario_type" binding:"required,max=50"`
	ParentNote   string    `json:"parent_note" binding:"max=500"`
}

type ApproveClipRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Note     string `json:"note" binding:"max=1000"`
}

type ClipResponse struct {
	ID               uuid.UUID       `json:"id"`
	ChildID          uuid.UUID       `json:"child_id"`
	CharacterID      uuid.UUID       `json:"character_id"`
	ScenarioType     string          `json:"scenario_type"`
	ParentNote       string          `json:"parent_note,omitempty"`
	Status           db.ClipStatus   `json:"status"`
	GeneratedScript  string          `json:"generated_script,omitempty"`
	SceneDescription json.RawMessage `json:"scene_description,omitempty"`
	VoiceParams      json.RawMessage `json:"voice_params,omitempty"`
	SafetyStatus     string          `json:"safety_status,omitempty"`
	SafetyChecks     json.RawMessage `json:"safety_checks,omitempty"`
	SafetyFeedback   string          `json:"safety_feedback,omitempty"`
	AudioURL         string          `json:"audio_url,omitempty"`
	DurationSeconds  *float64        `json:"duration_seconds,omitempty"`
	GenerationTimeMs *int64          `json:"generation_time_ms,omitempty"`
	LLMTokensUsed    *int64          `json:"llm_tokens_used,omitempty"`
	CreatedAt        string          `json:"created_at"`
	UpdatedAt        string          `json:"updated_at"`
}

func rawJSON(v types.NullJSONText) json.RawMessage {
	if !v.Valid || len(v.JSONText) == 0 {
		return nil
	}
	return json.RawMessage(v.JSONText)
}

func newClipResponse(clip *db.Clip) ClipResponse {
	resp := ClipResponse{
		ID:               clip.ID,
		ChildID:          clip.ChildID,
		CharacterID:      clip.CharacterID,
		ScenarioType:     clip.ScenarioType,
		ParentNote:       clip.ParentNote.String,
		Status:           clip.Status,
		GeneratedScript:  clip.GeneratedScript.String,
		SceneDescription: rawJSON(clip.SceneDescription),
		VoiceParams:      rawJSON(clip.VoiceParams),
		SafetyStatus:     clip.SafetyStatus.String,
		SafetyChecks:     rawJSON(clip.SafetyChecks),
		SafetyFeedback:   clip.SafetyFeedback.String,
		AudioURL:         clip.AudioURL.String,
		CreatedAt:        formatTime(clip.CreatedAt),
		UpdatedAt:        formatTime(clip.UpdatedAt),
	}
	if clip.DurationSeconds.Valid {
		resp.DurationSeconds = &clip.DurationSeconds.Float64
	}
	if clip.GenerationTimeMs.Valid {
		resp.GenerationTimeMs = &clip.GenerationTimeMs.Int64
	}
	if clip.LLMTokensUsed.Valid {
		resp.LLMTokensUsed = &clip.LLMTokensUsed.Int64
	}
	return resp
}

// loadClip resolves :id to a clip owned by the authenticated parent, writing
// the error response itself when it cannot.
func (h *Handlers) loadClip(c *gin.Context) (*db.Clip, uuid.UUID, bool) {
	parentID, ok := currentParent(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	clipID, ok := uuidParam(c, "id")
	if !ok {
		return nil, uuid.Nil, false
	}
	clip, err := h.Store.FindClipForParent(c.Request.Context(), clipID, parentID)
	if err != nil {
		log.Errorf("Error retrieving clip %s for parent %s: %v", clipID.String(), parentID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve clip", nil)
		return nil, uuid.Nil, false
	}
	if clip == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Clip not found", nil)
		return nil, uuid.Nil, false
	}
	return clip, parentID, true
}

func (h *Handlers) ListClips(c *gin.Context) {
	parentID, ok := currentParent(c)
	if !ok {
		return
	}
	var childID *uuid.UUID
	if raw := c.Query("child_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			utils.ResponseWithError(c, http.StatusBadRequest, "Invalid child_id format", err.Error())
			return
		}
		childID = &id
	}

	clips, err := h.Store.ListClipsForParent(c.Request.Context(), parentID, childID)
	if err != nil {
		log.Errorf("ListClips: Error retrieving clips for parent %s: %v", parentID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve clips", nil)
		return
	}
	out := make([]ClipResponse, 0, len(clips))
	for i := range clips {
		out = append(out, newClipResponse(&clips[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Clips retrieved successfully", out)
}

func (h *Handlers) GetClip(c *gin.Context) {
	clip, _, ok := h.loadClip(c)
	if !ok {
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Clip retrieved successfully", newClipResponse(clip))
}

// GenerateClip validates the request against the parent's children and the
// catalog, stores a PENDING clip and hands it to the worker.
func (h *Handlers) GenerateClip(c *gin.Context) {
	var req GenerateClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("GenerateClip: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	parentID, ok := currentParent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	req.ScenarioType = strings.ToLower(strings.TrimSpace(req.ScenarioType))

	child, err := h.Store.FindChildForParent(ctx, req.ChildID, parentID)
	if err != nil {
		log.Errorf("GenerateClip: Error finding child %s: %v", req.ChildID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create clip", nil)
		return
	}
	if child == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Child not found", nil)
		return
	}
	character, err := h.Store.GetCharacter(ctx, req.CharacterID)
	if err != nil {
		log.Errorf("GenerateClip: Error finding character %s: %v", req.CharacterID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create clip", nil)
		return
	}
	if character == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Character not found", nil)
		return
	}
	scenario, err := h.Store.GetScenarioByType(ctx, req.ScenarioType)
	if err != nil {
		log.Errorf("GenerateClip: Error finding scenario %q: %v", req.ScenarioType, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create clip", nil)
		return
	}
	if scenario == nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Unknown scenario type", req.ScenarioType)
		return
	}

	clip := &db.Clip{
		ChildID:      child.ID,
		CharacterID:  character.ID,
		ScenarioType: scenario.Type,
		Status:       db.StatusPending,
	}
	if note := strings.TrimSpace(req.ParentNote); note != "" {
		clip.ParentNote = sql.NullString{String: note, Valid: true}
	}
	created, err := h.Store.CreateClip(ctx, clip)
	if err != nil {
		log.Errorf("GenerateClip: Error creating clip: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to create clip", nil)
		return
	}

	if h.Worker != nil {
		h.Worker.Notify()
	}
	log.WithFields(log.Fields{
		"clip_id":   created.ID.String(),
		"character": character.Name,
		"scenario":  scenario.Type,
	}).Info("Clip queued for generation")
	utils.ResponseWithSuccess(c, http.StatusAccepted, "Clip generation started", newClipResponse(created))
}

// ClipAudio serves the mixed file when mixing succeeded, otherwise the voice.
func (h *Handlers) ClipAudio(c *gin.Context) {
	clip, _, ok := h.loadClip(c)
	if !ok {
		return
	}
	asset, err := h.Store.FindClipAsset(c.Request.Context(), clip.ID)
	if err != nil {
		log.Errorf("ClipAudio: Error finding asset for clip %s: %v", clip.ID.String(), err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve audio", nil)
		return
	}
	if asset == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Audio not available for this clip", gin.H{"status": clip.Status})
		return
	}

	path := asset.PlaybackPath()
	if h.Files == nil || !h.Files.Contains(path) {
		log.Errorf("ClipAudio: Asset path for clip %s is outside clip storage: %s", clip.ID.String(), path)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve audio", nil)
		return
	}
	c.Header("Content-Type", "audio/mpeg")
	c.File(path)
}

func (h *Handlers) ApproveClip(c *gin.Context) {
	var req ApproveClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	clip, parentID, ok := h.loadClip(c)
	if !ok {
		return
	}

	updated, approval, err := h.Pipeline.Approve(c.Request.Context(), clip.ID, parentID, *req.Approved, req.Note)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrInvalidTransition):
			utils.ResponseWithError(c, http.StatusConflict, "Only clips that are ready can be reviewed", gin.H{"status": clip.Status})
		case errors.Is(err, pipeline.ErrClipNotFound):
			utils.ResponseWithError(c, http.StatusNotFound, "Clip not found", nil)
		default:
			log.Errorf("ApproveClip: Error recording decision for clip %s: %v", clip.ID.String(), err)
			utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to record decision", nil)
		}
		return
	}

	utils.ResponseWithSuccess(c, http.StatusOK, "Decision recorded", gin.H{
		"clip":        newClipResponse(updated),
		"approval_id": approval.ID,
		"reviewed_at": formatTime(approval.ReviewedAt),
	})
}

// ClipEvents streams status changes as server-sent events until the clip
// settles or the client goes away.
func (h *Handlers) ClipEvents(c *gin.Context) {
	if h.Events == nil {
		utils.ResponseWithError(c, http.StatusNotImplemented, "Clip events are not enabled", nil)
		return
	}
	clip, parentID, ok := h.loadClip(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	stream, err := h.Events.Subscribe(ctx, clip.ID)
	if err != nil {
		log.Errorf("ClipEvents: subscribe for clip %s failed: %v", clip.ID.String(), err)
		utils.ResponseWithError(c, http.StatusServiceUnavailable, "Clip events are unavailable", nil)
		return
	}

	// Re-read after subscribing so a change in between is not lost.
	if fresh, err := h.Store.FindClipForParent(ctx, clip.ID, parentID); err == nil && fresh != nil {
		clip = fresh
	}
	current := events.NewClipEvent(clip, h.Now())
	c.SSEvent("status", current)
	c.Writer.Flush()
	if current.Terminal() {
		return
	}

	c.Stream(func(w io.Writer) bool {
		ev, ok := <-stream
		if !ok {
			return false
		}
		c.SSEvent("status", ev)
		return !ev.Terminal()
	})
}
