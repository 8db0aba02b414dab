package tts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed voices.yaml
var defaultVoiceTable []byte

// VoiceTable maps characters, emotions and pacing onto provider settings.
// It is loaded once and only read afterwards.
type VoiceTable struct {
	DefaultVoiceID  string             `yaml:"default_voice_id"`
	Characters      map[string]string  `yaml:"characters"`
	Stability       float64            `yaml:"stability"`
	SimilarityBoost float64            `yaml:"similarity_boost"`
	UseSpeakerBoost bool               `yaml:"use_speaker_boost"`
	DefaultStyle    float64            `yaml:"default_style"`
	Emotions        map[string]float64 `yaml:"emotions"`
	DefaultSpeed    float64            `yaml:"default_speed"`
	Pacing          map[string]float64 `yaml:"pacing"`
	PauseToken      string             `yaml:"pause_token"`
}

// LoadVoiceTable reads the table at path, or the built-in table when path is
// empty. fallbackVoice is used when neither the character nor the table name
// a voice.
func LoadVoiceTable(path, fallbackVoice string) (*VoiceTable, error) {
	data := defaultVoiceTable
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read voice table: %w", err)
		}
		data = b
	}
	return parseVoiceTable(data, fallbackVoice)
}

// defaultStyle applies to unknown emotions unless the table sets its own.
const defaultStyle = 0.4

func parseVoiceTable(data []byte, fallbackVoice string) (*VoiceTable, error) {
	// Preset so an absent default_style keeps it, while an explicit 0 wins.
	t := VoiceTable{DefaultStyle: defaultStyle}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode voice table: %w", err)
	}

	chars := make(map[string]string, len(t.Characters))
	for name, id := range t.Characters {
		chars[normalize(name)] = strings.TrimSpace(id)
	}
	t.Characters = chars

	if t.DefaultVoiceID == "" {
		t.DefaultVoiceID = fallbackVoice
	}
	if t.DefaultVoiceID == "" {
		return nil, fmt.Errorf("voice table has no default voice and none was configured")
	}
	if t.DefaultSpeed == 0 {
		t.DefaultSpeed = 1.0
	}
	if t.PauseToken == "" {
		t.PauseToken = ", ,"
	}
	return &t, nil
}

// VoiceFor returns the character's voice, or the default voice when the
// character is unmapped.
func (t *VoiceTable) VoiceFor(character string) string {
	if id := t.Characters[normalize(character)]; id != "" {
		return id
	}
	return t.DefaultVoiceID
}

// StyleFor maps an emotion onto a style intensity. ok is false when the
// emotion is unknown and the default was used.
func (t *VoiceTable) StyleFor(emotion string) (style float64, ok bool) {
	if v, found := t.Emotions[normalize(emotion)]; found {
		return v, true
	}
	return t.DefaultStyle, false
}

func (t *VoiceTable) SpeedFor(pacing string) float64 {
	if v, found := t.Pacing[normalize(pacing)]; found {
		return v
	}
	return t.DefaultSpeed
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
