package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ASHISH26940/storyspark-api/pkg/db"
	"github.com/ASHISH26940/storyspark-api/pkg/llm"
	"github.com/jmoiron/sqlx/types"
)

type fakeCompleter struct {
	text string
	err  error
	got  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Text: f.text, InputTokens: 300, OutputTokens: 120}, nil
}

const validResult = `{
  "script": "[warmly] Hello Thomas... you know what, the moon is out.",
  "voice_emotion": "sleepy",
  "voice_pacing": "slow_and_gentle",
  "scene_setting": "Frog's cozy bedroom",
  "scene_mood": "cozy",
  "ambient_sounds": ["crickets"],
  "background_track": "lullaby"
}`

func frogBedtime() Request {
	age := 4
	return Request{
		Character: &db.Character{
			Name:          "Frog",
			Personality:   "Optimistic and gentle",
			SpeechPattern: "Warm and enthusiastic",
			Themes:        "Friendship",
			SystemPrompt:  "You are Frog.",
		},
		Scenario: &db.Scenario{
			Type:        "bedtime",
			Description: "Character says goodnight",
			Structure:   types.JSONText(`["Gentle greeting","Warm goodnight"]`),
		},
		ChildName: "Thomas",
		ChildAge:  &age,
	}
}

func TestGenerateValid(t *testing.T) {
	fc := &fakeCompleter{text: validResult}
	gen, err := NewGenerator(fc).Generate(context.Background(), frogBedtime())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gen.Result.BackgroundTrack != "lullaby" || gen.Result.VoiceEmotion != "sleepy" {
		t.Errorf("unexpected result %+v", gen.Result)
	}
	if gen.TokensUsed != 420 {
		t.Errorf("TokensUsed = %d, want 420", gen.TokensUsed)
	}
	if !fc.got.JSON || fc.got.MaxOutputTokens != maxOutputTokens {
		t.Errorf("request options = %+v", fc.got)
	}
	if !strings.HasSuffix(fc.got.System, "You are Frog.") {
		t.Errorf("system instruction should end with the character prompt: %q", fc.got.System)
	}
	for _, want := range []string{"CHILD'S NAME: Thomas", "CHILD'S AGE: 4", "PARENT'S NOTE: No specific notes", `["Gentle greeting","Warm goodnight"]`} {
		if !strings.Contains(fc.got.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestGenerateFencedResult(t *testing.T) {
	fc := &fakeCompleter{text: "Sure!\n```json\n" + validResult + "\n```"}
	if _, err := NewGenerator(fc).Generate(context.Background(), frogBedtime()); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestGenerateUnknownAge(t *testing.T) {
	fc := &fakeCompleter{text: validResult}
	req := frogBedtime()
	req.ChildAge = nil
	req.ParentNote = "He had a big day at the zoo"
	if _, err := NewGenerator(fc).Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(fc.got.Prompt, "CHILD'S AGE: unknown") {
		t.Error("prompt should say the age is unknown")
	}
	if !strings.Contains(fc.got.Prompt, "PARENT'S NOTE: He had a big day at the zoo") {
		t.Error("prompt should carry the parent note")
	}
}

func TestGenerateRejectsBadOutput(t *testing.T) {
	cases := []struct {
		name string
		text string
		want error
	}{
		{"prose", "Once upon a time there was a frog.", ErrMalformedOutput},
		{"mistyped field", `{"script": 42}`, ErrMalformedOutput},
		{"missing background", `{"script":"hi","voice_emotion":"warm","voice_pacing":"moderate","scene_setting":"pond","scene_mood":"calm","ambient_sounds":[]}`, ErrInvalidResult},
		{"missing ambient sounds", `{"script":"hi","voice_emotion":"warm","voice_pacing":"moderate","scene_setting":"pond","scene_mood":"calm","background_track":"lullaby"}`, ErrInvalidResult},
		{"empty script", `{"script":"","voice_emotion":"warm","voice_pacing":"moderate","scene_setting":"pond","scene_mood":"calm","ambient_sounds":[],"background_track":"lullaby"}`, ErrInvalidResult},
		{"blank script", `{"script":"   ","voice_emotion":"warm","voice_pacing":"moderate","scene_setting":"pond","scene_mood":"calm","ambient_sounds":[],"background_track":"lullaby"}`, ErrInvalidResult},
		{"blank emotion", `{"script":"hi","voice_emotion":" ","voice_pacing":"moderate","scene_setting":"pond","scene_mood":"calm","ambient_sounds":[],"background_track":"lullaby"}`, ErrInvalidResult},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen, err := NewGenerator(&fakeCompleter{text: tc.text}).Generate(context.Background(), frogBedtime())
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if gen != nil {
				t.Errorf("expected no result, got %+v", gen)
			}
		})
	}
}

func TestGenerateProviderError(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := NewGenerator(&fakeCompleter{err: boom}).Generate(context.Background(), frogBedtime())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
}
