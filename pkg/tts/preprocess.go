package tts

import (
	"regexp"
	"strings"
)

var (
	stageDirection = regexp.MustCompile(`\[.*?\]\s*`)
	ellipsis       = regexp.MustCompile(`\.{3,}|…`)
	extraSpace     = regexp.MustCompile(`[ \t]{2,}`)
)

// PrepareText removes bracketed delivery cues and turns ellipses into the
// engine's pause token.
func PrepareText(script, pauseToken string) string {
	cleaned := stageDirection.ReplaceAllString(script, "")
	cleaned = ellipsis.ReplaceAllLiteralString(cleaned, " "+pauseToken+" ")
	cleaned = extraSpace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
