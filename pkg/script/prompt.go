package script

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const writingRules = `You are StorySpark, an AI that writes short personalized scripts for children's TV show characters.

You write scripts that:
1. Are PERFECTLY faithful to the character's voice, vocabulary, and personality
2. Address the child by name naturally (not forced or repetitive)
3. Match the show's tone and themes
4. Are age-appropriate, warm, and encouraging
5. Accomplish the parent's goal (motivation, education, storytelling)
6. Are 30-60 seconds when spoken aloud (roughly 75-150 words)
7. Use ONLY positive reinforcement. Never guilt, shame, threats, or conditional love
8. End on a warm, positive note

You respond with a JSON object containing the script and production metadata.`

const responseFormat = `Respond with ONLY valid JSON in this exact format:
{
  "script": "The full script text that the character will speak aloud. Include natural pauses marked with ... and emotional cues in [brackets] like [warmly] or [excitedly].",
  "voice_emotion": "The primary emotion for TTS (e.g., warm, excited, gentle, sleepy, encouraging)",
  "voice_pacing": "The pacing for TTS (e.g., moderate, slow_and_gentle, upbeat)",
  "scene_setting": "Brief description of the visual setting (e.g., Frog's sunny garden)",
  "scene_mood": "The mood of the scene (e.g., cheerful, cozy, adventurous)",
  "ambient_sounds": ["list", "of", "ambient", "sounds"],
  "background_track": "Type of background music (e.g., gentle_acoustic, playful_piano, lullaby)"
}`

// systemInstruction is the fixed writing rules followed by the character's
// own voice prompt.
func systemInstruction(req Request) string {
	if p := strings.TrimSpace(req.Character.SystemPrompt); p != "" {
		return writingRules + "\n\n" + p
	}
	return writingRules
}

func userPrompt(req Request) string {
	structure, err := json.Marshal(req.Scenario.Beats())
	if err != nil {
		structure = []byte("[]")
	}

	age := "unknown"
	if req.ChildAge != nil {
		age = strconv.Itoa(*req.ChildAge)
	}
	note := strings.TrimSpace(req.ParentNote)
	if note == "" {
		note = "No specific notes"
	}

	var b strings.Builder
	b.WriteString("Generate a personalized clip script.\n\n")
	fmt.Fprintf(&b, "CHARACTER: %s\n", req.Character.Name)
	fmt.Fprintf(&b, "CHARACTER PERSONALITY: %s\n", req.Character.Personality)
	fmt.Fprintf(&b, "CHARACTER SPEECH PATTERN: %s\n", req.Character.SpeechPattern)
	fmt.Fprintf(&b, "CHARACTER THEMES: %s\n\n", req.Character.Themes)
	fmt.Fprintf(&b, "SCENARIO TYPE: %s\n", req.Scenario.Type)
	fmt.Fprintf(&b, "SCENARIO DESCRIPTION: %s\n", req.Scenario.Description)
	fmt.Fprintf(&b, "SCENARIO STRUCTURE: %s\n\n", structure)
	fmt.Fprintf(&b, "CHILD'S NAME: %s\n", req.ChildName)
	fmt.Fprintf(&b, "CHILD'S AGE: %s\n\n", age)
	fmt.Fprintf(&b, "PARENT'S NOTE: %s\n\n", note)
	b.WriteString(responseFormat)
	return b.String()
}
