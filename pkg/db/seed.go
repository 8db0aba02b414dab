package db

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

type seedCharacter struct {
	Name          string         `yaml:"name"`
	ShowName      string         `yaml:"show_name"`
	Personality   string         `yaml:"personality"`
	SpeechPattern string         `yaml:"speech_pattern"`
	Themes        string         `yaml:"themes"`
	SystemPrompt  string         `yaml:"system_prompt"`
	VoiceConfig   map[string]any `yaml:"voice_config"`
	AvatarURL     string         `yaml:"avatar_url"`
}

type seedScenario struct {
	Type          string   `yaml:"type"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Structure     []string `yaml:"structure"`
	ExamplePrompt string   `yaml:"example_prompt"`
	Icon          string   `yaml:"icon"`
}

// SeedCatalog is the reference data installed into an empty database.
type SeedCatalog struct {
	Characters []Character
	Scenarios  []Scenario
}

// LoadSeedCatalog decodes the embedded character and scenario catalog.
func LoadSeedCatalog() (*SeedCatalog, error) {
	var raw struct {
		Characters []seedCharacter `yaml:"characters"`
		Scenarios  []seedScenario  `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(seedYAML, &raw); err != nil {
		return nil, fmt.Errorf("decode seed catalog: %w", err)
	}

	out := &SeedCatalog{}
	for _, c := range raw.Characters {
		voice, err := json.Marshal(c.VoiceConfig)
		if err != nil {
			return nil, fmt.Errorf("encode voice config for %s: %w", c.Name, err)
		}
		ch := Character{
			Name:          c.Name,
			ShowName:      c.ShowName,
			Personality:   c.Personality,
			SpeechPattern: c.SpeechPattern,
			Themes:        c.Themes,
			SystemPrompt:  c.SystemPrompt,
			VoiceConfig:   types.JSONText(voice),
		}
		if c.AvatarURL != "" {
			ch.AvatarURL.String, ch.AvatarURL.Valid = c.AvatarURL, true
		}
		out.Characters = append(out.Characters, ch)
	}
	for _, s := range raw.Scenarios {
		structure, err := json.Marshal(s.Structure)
		if err != nil {
			return nil, fmt.Errorf("encode structure for %s: %w", s.Type, err)
		}
		sc := Scenario{
			Type:        s.Type,
			Name:        s.Name,
			Description: s.Description,
			Structure:   types.JSONText(structure),
		}
		if s.ExamplePrompt != "" {
			sc.ExamplePrompt.String, sc.ExamplePrompt.Valid = s.ExamplePrompt, true
		}
		if s.Icon != "" {
			sc.Icon.String, sc.Icon.Valid = s.Icon, true
		}
		out.Scenarios = append(out.Scenarios, sc)
	}
	return out, nil
}
