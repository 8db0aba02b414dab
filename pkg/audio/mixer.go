package audio

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	backgroundGainDB = -18
	fadeIn           = 1.0
	fadeOut          = 2.0
)

// TrackLocator resolves a background track key to a readable file.
type TrackLocator interface {
	BackgroundPath(key string) (string, bool)
}

type Mixer struct {
	ff      FFmpeg
	tracks  TrackLocator
	timeout time.Duration
}

func NewMixer(ff FFmpeg, tracks TrackLocator) *Mixer {
	return &Mixer{ff: ff, tracks: tracks, timeout: 2 * time.Minute}
}

// Mix lays the background track under the voice and returns the mixed file.
// Mixing is optional: if the track is missing or anything fails, the voice
// path is returned unchanged.
func (m *Mixer) Mix(ctx context.Context, voicePath, trackKey string) string {
	logger := log.WithFields(log.Fields{"voice": voicePath, "track": trackKey})

	bgPath, ok := m.tracks.BackgroundPath(trackKey)
	if !ok {
		logger.Info("No background track available, keeping voice only")
		return voicePath
	}

	out, err := m.mix(ctx, voicePath, bgPath)
	if err != nil {
		logger.Warnf("Could not mix audio: %v", err)
		return voicePath
	}
	return out
}

func (m *Mixer) mix(ctx context.Context, voicePath, bgPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	duration, err := m.ff.Duration(ctx, voicePath)
	if err != nil {
		return "", fmt.Errorf("measure voice: %w", err)
	}
	if duration <= 0 {
		return "", fmt.Errorf("voice has no duration")
	}

	out := mixedPath(voicePath)
	args := []string{
		"-i", voicePath,
		"-stream_loop", "-1", "-i", bgPath,
		"-filter_complex", mixFilter(duration),
		"-map", "[out]",
		"-t", formatSeconds(duration),
		"-c:a", "libmp3lame", "-q:a", "2",
		out,
	}
	if err := m.ff.Run(ctx, args...); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// mixFilter attenuates the looping background, overlays the voice and fades
// the composite in and out. amix stops with the first (voice) input.
func mixFilter(duration float64) string {
	fadeOutStart := duration - fadeOut
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}
	return fmt.Sprintf(
		"[1:a]volume=%ddB[bg];"+
			"[0:a][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0,"+
			"afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s[out]",
		backgroundGainDB,
		formatSeconds(fadeIn),
		formatSeconds(fadeOutStart),
		formatSeconds(fadeOut),
	)
}

// mixedPath never collides with the voice file.
func mixedPath(voicePath string) string {
	if strings.HasSuffix(voicePath, ".mp3") {
		return strings.TrimSuffix(voicePath, ".mp3") + "_mixed.mp3"
	}
	return voicePath + "_mixed.mp3"
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
