package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CharacterResponse leaves out the system prompt and voice config, which are
// server-side generation inputs.
type CharacterResponse struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	ShowName      string    `json:"show_name"`
	Personality   string    `json:"personality"`
	SpeechPattern string    `json:"speech_pattern"`
	Themes        string    `json:"themes"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
}

type ScenarioResponse struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Structure     json.RawMessage `json:"structure"`
	ExamplePrompt string          `json:"example_prompt,omitempty"`
	Icon          string          `json:"icon,omitempty"`
}

func newCharacterResponse(ch *db.Character) CharacterResponse {
	return CharacterResponse{
		ID:            ch.ID,
		Name:          ch.Name,
		ShowName:      ch.ShowName,
		Personality:   ch.Personality,
		SpeechPattern: ch.SpeechPattern,
		Themes:        ch.Themes,
		AvatarURL:     ch.AvatarURL.String,
	}
}

func newScenarioResponse(s *db.Scenario) ScenarioResponse {
	structure := json.RawMessage(s.Structure)
	if len(structure) == 0 {
		structure = json.RawMessage("[]")
	}
	return ScenarioResponse{
		ID:            s.ID,
		Type:          s.Type,
		Name:          s.Name,
		Description:   s.Description,
		Structure:     structure,
		ExamplePrompt: s.ExamplePrompt.String,
		Icon:          s.Icon.String,
	}
}

func (h *Handlers) ListCharacters(c *gin.Context) {
	characters, err := h.Store.ListCharacters(c.Request.Context())
	if err != nil {
		log.Errorf("ListCharacters: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve characters", nil)
		return
	}
	out := make([]CharacterResponse, 0, len(characters))
	for i := range characters {
		out = append(out, newCharacterResponse(&characters[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Characters retrieved successfully", out)
}

func (h *Handlers) GetCharacter(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	character, err := h.Store.GetCharacter(c.Request.Context(), id)
	if err != nil {
		log.Errorf("GetCharacter: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve character", nil)
		return
	}
	if character == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "Character not found", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Character retrieved successfully", newCharacterResponse(character))
}

func (h *Handlers) ListScenarios(c *gin.Context) {
	scenarios, err := h.Store.ListScenarios(c.Request.Context())
	if err != nil {
		log.Errorf("ListScenarios: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to retrieve scenarios", nil)
		return
	}
	out := make([]ScenarioResponse, 0, len(scenarios))
	for i := range scenarios {
		out = append(out, newScenarioResponse(&scenarios[i]))
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Scenarios retrieved successfully", out)
}
