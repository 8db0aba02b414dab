// Package safety reviews generated scripts with an independent LLM call.
// Anything short of an unambiguous approval is a rejection.
package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ASHISH26940/storyspark-api/pkg/llm"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

const maxOutputTokens = 512

// UnparseableFeedback is the feedback recorded when the review response could
// not be read.
const UnparseableFeedback = "Safety review could not be completed: the reviewer response was not valid structured output. Rejecting as a precaution."

// Completer is the text-generation provider.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Completion, error)
}

type Request struct {
	Script        string
	CharacterName string
	ScenarioType  string
	ChildName     string
}

type Check struct {
	Pass bool   `json:"pass"`
	Note string `json:"note,omitempty"`
}

type Result struct {
	Approved bool             `json:"approved"`
	Checks   map[string]Check `json:"checks"`
	Feedback string           `json:"feedback,omitempty"`
}

// Pointers tell a missing field apart from false.
type rawCheck struct {
	Pass *bool  `json:"pass" validate:"required"`
	Note string `json:"note"`
}

type rawResult struct {
	Approved *bool               `json:"approved" validate:"required"`
	Checks   map[string]rawCheck `json:"checks" validate:"required,dive"`
	Feedback *string             `json:"feedback"`
}

type Reviewer struct {
	llm      Completer
	validate *validator.Validate
}

func NewReviewer(c Completer) *Reviewer {
	return &Reviewer{llm: c, validate: validator.New()}
}

// Review returns an error only when the provider call itself fails. Output
// that cannot be read is a rejection, not an error.
func (r *Reviewer) Review(ctx context.Context, req Request) (*Result, error) {
	completion, err := r.llm.Complete(ctx, llm.Request{
		System:          systemInstruction(),
		Prompt:          reviewPrompt(req),
		MaxOutputTokens: maxOutputTokens,
		JSON:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("safety review: %w", err)
	}
	return r.interpret(completion.Text), nil
}

func (r *Reviewer) interpret(raw string) *Result {
	var parsed rawResult
	if err := llm.ExtractJSON(raw, &parsed); err != nil {
		log.Warnf("Safety review response could not be parsed: %s", llm.Snippet(raw))
		return rejected(UnparseableFeedback)
	}
	if err := r.validate.Struct(parsed); err != nil {
		log.Warnf("Safety review response is incomplete: %v", err)
		return rejected(UnparseableFeedback)
	}
	if missing := missingChecks(parsed.Checks); len(missing) > 0 {
		log.Warnf("Safety review response skipped rules: %v", missing)
		return rejected(UnparseableFeedback)
	}

	result := &Result{
		Approved: *parsed.Approved,
		Checks:   make(map[string]Check, len(parsed.Checks)),
	}
	if parsed.Feedback != nil {
		result.Feedback = strings.TrimSpace(*parsed.Feedback)
	}
	var failing []string
	for name, c := range parsed.Checks {
		result.Checks[name] = Check{Pass: *c.Pass, Note: c.Note}
		if !*c.Pass {
			failing = append(failing, name)
		}
	}

	// An approval that contradicts its own checks is not an approval.
	if result.Approved && len(failing) > 0 {
		sort.Strings(failing)
		log.Warnf("Safety review approved a script with failing checks: %v", failing)
		result.Approved = false
		if result.Feedback == "" {
			result.Feedback = "Safety review reported failing checks: " + strings.Join(failing, ", ")
		}
	}
	if !result.Approved && result.Feedback == "" {
		result.Feedback = "Script rejected by safety review."
	}
	return result
}

// missingChecks lists the rules the reviewer did not report on.
func missingChecks(checks map[string]rawCheck) []string {
	var missing []string
	for _, r := range Rules {
		if _, ok := checks[r.Key]; !ok {
			missing = append(missing, r.Key)
		}
	}
	return missing
}

func rejected(feedback string) *Result {
	return &Result{Approved: false, Checks: map[string]Check{}, Feedback: feedback}
}
