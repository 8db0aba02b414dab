package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON means the model text held no decodable JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON decodes the model's raw text into v. The whole text is tried
// first, then the first fenced ```json block.
func ExtractJSON(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	m := fencedJSON.FindStringSubmatch(raw)
	if m == nil {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(m[1]), v); err != nil {
		return fmt.Errorf("%w: fenced block: %v", ErrNoJSON, err)
	}
	return nil
}

// Snippet shortens model output for log and error messages.
func Snippet(raw string) string {
	const limit = 200
	raw = strings.TrimSpace(raw)
	if len(raw) <= limit {
		return raw
	}
	return raw[:limit] + "..."
}
