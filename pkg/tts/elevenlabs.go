// Package tts turns approved scripts into voice recordings.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

const ProviderElevenLabs = "elevenlabs"

// ErrProvider wraps every failure reported by the speech provider.
var ErrProvider = errors.New("speech provider error")

// AudioWriter stores synthesized audio under a fresh unique name.
type AudioWriter interface {
	Save(ctx context.Context, ext string, data []byte) (string, error)
}

// Prober measures an audio file by decoding it.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type Request struct {
	Script        string
	CharacterName string
	Emotion       string
	Pacing        string
}

type Speech struct {
	Path            string
	DurationSeconds float64
	Provider        string
}

type ElevenLabsConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type ElevenLabs struct {
	cfg    ElevenLabsConfig
	voices *VoiceTable
	store  AudioWriter
	probe  Prober
	client *http.Client
}

func NewElevenLabs(cfg ElevenLabsConfig, voices *VoiceTable, store AudioWriter, probe Prober) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.Model == "" {
		cfg.Model = "eleven_multilingual_v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ElevenLabs{
		cfg:    cfg,
		voices: voices,
		store:  store,
		probe:  probe,
		client: &http.Client{},
	}
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

type synthesisBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Synthesize calls the provider, writes the audio and measures it. There is no
// degraded mode: every failure is returned.
func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (*Speech, error) {
	text := PrepareText(req.Script, e.voices.PauseToken)
	if text == "" {
		return nil, fmt.Errorf("%w: nothing to speak after removing stage directions", ErrProvider)
	}

	style, known := e.voices.StyleFor(req.Emotion)
	if !known {
		log.WithFields(log.Fields{
			"character": req.CharacterName,
			"emotion":   req.Emotion,
		}).Warn("Unrecognized voice emotion, using default style")
	}

	voiceID := e.voices.VoiceFor(req.CharacterName)
	body := synthesisBody{
		Text:    text,
		ModelID: e.cfg.Model,
		VoiceSettings: voiceSettings{
			Stability:       e.voices.Stability,
			SimilarityBoost: e.voices.SimilarityBoost,
			Style:           style,
			UseSpeakerBoost: e.voices.UseSpeakerBoost,
			Speed:           e.voices.SpeedFor(req.Pacing),
		},
	}

	audio, err := e.post(ctx, voiceID, body)
	if err != nil {
		return nil, err
	}

	path, err := e.store.Save(ctx, ".mp3", audio)
	if err != nil {
		return nil, fmt.Errorf("store synthesized audio: %w", err)
	}
	duration, err := e.probe.Duration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("measure synthesized audio: %w", err)
	}

	log.WithFields(log.Fields{
		"character": req.CharacterName,
		"voice_id":  voiceID,
		"duration":  duration,
	}).Info("Speech synthesized")
	return &Speech{Path: path, DurationSeconds: duration, Provider: ProviderElevenLabs}, nil
}

func (e *ElevenLabs) post(ctx context.Context, voiceID string, body synthesisBody) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode synthesis request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", e.cfg.BaseURL, url.PathEscape(voiceID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, msg)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio response", ErrProvider)
	}
	return data, nil
}
