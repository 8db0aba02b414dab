package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// Request is one system-instructed completion call.
type Request struct {
	System          string
	Prompt          string
	MaxOutputTokens int32
	// JSON asks the model for an application/json response body.
	JSON bool
}

// Completion is the raw model text plus usage accounting.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TotalTokens is input plus output tokens.
func (c *Completion) TotalTokens() int {
	return c.InputTokens + c.OutputTokens
}

// Service holds the Gemini AI client.
type Service struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiService creates a Gemini client for the given model. timeout bounds
// each Complete call; zero leaves the caller's deadline in charge.
func NewGeminiService(ctx context.Context, apiKey, model string, timeout time.Duration) (*Service, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Service{client: client, model: model, timeout: timeout}, nil
}

// Complete runs a single generation. A model handle is built per call because
// the system instruction and output limits live on it.
func (s *Service) Complete(ctx context.Context, req Request) (*Completion, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	model := s.client.GenerativeModel(s.model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(req.MaxOutputTokens)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		log.Errorf("Error generating content with %s: %v", s.model, err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini API returned no content")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("gemini API returned non-text content")
	}

	out := &Completion{Text: text.String()}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	log.Debugf("Gemini completion: %d input / %d output tokens", out.InputTokens, out.OutputTokens)
	return out, nil
}

// Close releases the underlying Gemini client.
func (s *Service) Close() error {
	log.Info("Closing Gemini AI service client.")
	return s.client.Close()
}
