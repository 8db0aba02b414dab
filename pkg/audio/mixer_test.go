package audio

import (
	"context"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

type tracks map[string]string

func (t tracks) BackgroundPath(key string) (string, bool) {
	p, ok := t[key]
	return p, ok
}

func TestMixFilter(t *testing.T) {
	f := mixFilter(40)
	for _, want := range []string{
		"[1:a]volume=-18dB[bg]",
		"amix=inputs=2:duration=first",
		"afade=t=in:st=0:d=1.000",
		"afade=t=out:st=38.000:d=2.000[out]",
	} {
		if !strings.Contains(f, want) {
			t.Errorf("filter %q missing %q", f, want)
		}
	}
	if short := mixFilter(1.5); !strings.Contains(short, "afade=t=out:st=0.000") {
		t.Errorf("fade out should clamp to 0 for short clips: %q", short)
	}
}

func TestMixedPath(t *testing.T) {
	if got := mixedPath("/clips/abc.mp3"); got != "/clips/abc_mixed.mp3" {
		t.Errorf("mixedPath = %q", got)
	}
	if got := mixedPath("/clips/abc"); got != "/clips/abc_mixed.mp3" {
		t.Errorf("mixedPath = %q", got)
	}
}

func TestMixWithoutTrackKeepsVoice(t *testing.T) {
	m := NewMixer(NewFFmpeg("", ""), tracks{})
	if got := m.Mix(context.Background(), "/clips/v.mp3", "lullaby"); got != "/clips/v.mp3" {
		t.Errorf("Mix = %q, want voice path", got)
	}
}

func TestMixFailureKeepsVoice(t *testing.T) {
	dir := t.TempDir()
	voice := filepath.Join(dir, "voice.mp3")
	if hasFFmpeg() {
		makeTone(t, voice, 3)
	} else {
		os.WriteFile(voice, []byte("not audio"), 0o644)
	}
	bg := filepath.Join(dir, "broken.mp3")
	if err := os.WriteFile(bg, []byte("definitely not an mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMixer(NewFFmpeg("", ""), tracks{"broken": bg})
	if got := m.Mix(context.Background(), voice, "broken"); got != voice {
		t.Fatalf("Mix = %q, want voice path on failure", got)
	}
	if _, err := os.Stat(mixedPath(voice)); !os.IsNotExist(err) {
		t.Error("a failed mix must not leave an output file behind")
	}
}

func TestMixTrimsToVoiceDuration(t *testing.T) {
	if !hasFFmpeg() {
		t.Skip("ffmpeg/ffprobe not available")
	}
	dir := t.TempDir()
	voice := filepath.Join(dir, "voice.mp3")
	makeTone(t, voice, 5)
	short := filepath.Join(dir, "short.mp3")
	makeTone(t, short, 1.5)
	long := filepath.Join(dir, "long.mp3")
	makeTone(t, long, 12)

	ff := NewFFmpeg("", "")
	voiceDur, err := ff.Duration(context.Background(), voice)
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}

	for key := range map[string]bool{"short": true, "long": true} {
		t.Run(key, func(t *testing.T) {
			m := NewMixer(ff, tracks{"short": short, "long": long})
			out := m.Mix(context.Background(), voice, key)
			if out == voice {
				t.Fatal("expected a mixed file")
			}
			got, err := ff.Duration(context.Background(), out)
			if err != nil {
				t.Fatalf("Duration(mixed): %v", err)
			}
			if math.Abs(got-voiceDur) > 0.1 {
				t.Errorf("mixed duration = %.3f, voice = %.3f", got, voiceDur)
			}
			if _, err := os.Stat(voice); err != nil {
				t.Errorf("voice file must be kept: %v", err)
			}
			os.Remove(out)
		})
	}
}

func hasFFmpeg() bool {
	_, errA := exec.LookPath("ffmpeg")
	_, errB := exec.LookPath("ffprobe")
	return errA == nil && errB == nil
}

func makeTone(t *testing.T, path string, seconds float64) {
	t.Helper()
	err := NewFFmpeg("", "").Run(context.Background(),
		"-f", "lavfi", "-i", "sine=frequency=440:duration="+formatSeconds(seconds),
		"-c:a", "libmp3lame", path)
	if err != nil {
		t.Skipf("cannot synthesize test tone: %v", err)
	}
}
