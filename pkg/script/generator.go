// Package script writes a character's clip script with one LLM call and
// validates the structured result before anything downstream sees it.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/llm"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

const maxOutputTokens = 1024

var (
	// ErrMalformedOutput means no JSON object could be recovered from the
	// model's response.
	ErrMalformedOutput = errors.New("script generation output is not valid JSON")
	// ErrInvalidResult means the JSON decoded but is missing required fields.
	ErrInvalidResult = errors.New("script generation output failed validation")
)

// Completer is the text-generation provider.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

type Request struct {
	Character  *db.Character
	Scenario   *db.Scenario
	ChildName  string
	ChildAge   *int
	ParentNote string
}

// Result is the generator's structured output. Every field is required;
// ambient_sounds may be an empty list but must be present.
type Result struct {
	Script          string   `json:"script" validate:"required"`
	VoiceEmotion    string   `json:"voice_emotion" validate:"required"`
	VoicePacing     string   `json:"voice_pacing" validate:"required"`
	SceneSetting    string   `json:"scene_setting" validate:"required"`
	SceneMood       string   `json:"scene_mood" validate:"required"`
	AmbientSounds   []string `json:"ambient_sounds" validate:"required"`
	BackgroundTrack string   `json:"background_track" validate:"required"`
}

// Generation is a validated Result plus the metrics of the call.
type Generation struct {
	Result     Result
	TokensUsed int
	Elapsed    time.Duration
}

type Generator struct {
	llm      Completer
	validate *validator.Validate
	now      func() time.Time
}

func NewGenerator(c Completer) *Generator {
	return &Generator{llm: c, validate: validator.New(), now: time.Now}
}

// Generate either returns a fully populated Result or an error.
func (g *Generator) Generate(ctx context.Context, req Request) (*Generation, error) {
	if req.Character == nil || req.Scenario == nil {
		return nil, fmt.Errorf("script generation needs a character and a scenario")
	}

	start := g.now()
	completion, err := g.llm.Complete(ctx, llm.Request{
		System:          systemInstruction(req),
		Prompt:          userPrompt(req),
		MaxOutputTokens: maxOutputTokens,
		JSON:            true,
	})
	elapsed := g.now().Sub(start)
	if err != nil {
		return nil, fmt.Errorf("generate script: %w", err)
	}

	var result Result
	if err := llm.ExtractJSON(completion.Text, &result); err != nil {
		log.Warnf("Could not parse generation response: %s", llm.Snippet(completion.Text))
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	result.trim()
	if err := g.validate.Struct(result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResult, err)
	}

	return &Generation{
		Result:     result,
		TokensUsed: completion.TotalTokens(),
		Elapsed:    elapsed,
	}, nil
}

// trim strips surrounding whitespace so a blank field fails validation.
func (r *Result) trim() {
	for _, f := range []*string{&r.Script, &r.VoiceEmotion, &r.VoicePacing, &r.SceneSetting, &r.SceneMood, &r.BackgroundTrack} {
		*f = strings.TrimSpace(*f)
	}
}
