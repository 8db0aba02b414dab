package safety

import (
	"fmt"
	"strings"
)

// Rule is one mandatory safety rule and the key its check is reported under.
type Rule struct {
	Key         string
	Description string
}

// Rules is the fixed rule set every script is reviewed against.
var Rules = []Rule{
	{"no_negative_reinforcement", "NO negative reinforcement or guilt"},
	{"no_threats", "NO threats or consequences"},
	{"no_unfavorable_comparison", "NO comparing child unfavorably to others"},
	{"no_fear", "NO scary or anxiety-inducing elements"},
	{"no_real_world_violence", "NO real-world violence or conflict references"},
	{"no_conditional_love", `NO conditional love ("I'll like you if...")`},
	{"warm_ending", "MUST end on a positive, warm note"},
	{"age_appropriate_language", "MUST use age-appropriate vocabulary"},
	{"character_fidelity", "MUST maintain character's canonical personality (no out-of-character behavior)"},
	{"no_commercial_content", "NO commercial content or brand mentions"},
	{"no_personal_data", "NO personal data beyond first name"},
	{"no_coercion", "NO manipulation or coercion tactics"},
}

func systemInstruction() string {
	var b strings.Builder
	b.WriteString("You are the StorySpark Safety Guardian. You review AI-generated scripts\n")
	b.WriteString("intended for children ages 2-8. Your job is to ensure every script is safe, appropriate, and positive.\n\n")
	b.WriteString("You evaluate scripts against these mandatory safety rules:\n")
	for i, r := range Rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Description)
	}
	b.WriteString("\nRespond with ONLY valid JSON.")
	return b.String()
}

func reviewPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Review this script for child safety.\n\n")
	fmt.Fprintf(&b, "CHARACTER: %s\n", req.CharacterName)
	fmt.Fprintf(&b, "SCENARIO: %s\n", req.ScenarioType)
	fmt.Fprintf(&b, "CHILD'S NAME: %s\n", req.ChildName)
	b.WriteString("SCRIPT:\n---\n")
	b.WriteString(req.Script)
	b.WriteString("\n---\n\n")
	b.WriteString("Evaluate against all safety rules and respond with this JSON format:\n{\n")
	b.WriteString("  \"approved\": true/false,\n  \"checks\": {\n")
	for i, r := range Rules {
		sep := ","
		if i == len(Rules)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %q: {\"pass\": true/false, \"note\": \"brief note\"}%s\n", r.Key, sep)
	}
	b.WriteString("  },\n  \"feedback\": \"Overall feedback or null if approved\"\n}")
	return b.String()
}
