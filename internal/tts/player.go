package tts

import (
	"context"
	"strings"
	"time"
)

// Clip is one synthesized unit ready for playback.
type Clip struct {
	Index    int
	Text     string
	VoiceID  string
	Provider string
	Audio    []byte
	Format   string
	// Path is where the clip was stored, empty when not persisted
	Path string
}

// Player renders a clip. Play returns when playback finished and must stop
// early when ctx is done. While gate is closed playback is suspended.
type Player interface {
	Play(ctx context.Context, clip Clip, gate *Gate) error
}

// NopPlayer finishes immediately. Used when the client plays stored clips.
type NopPlayer struct{}

func (NopPlayer) Play(ctx context.Context, _ Clip, gate *Gate) error {
	return gate.Wait(ctx)
}

// PacedPlayer holds each clip for its estimated spoken duration so that
// highlight events follow speech pace. Paused time does not count.
type PacedPlayer struct {
	WordsPerMinute int
	MinDuration    time.Duration
}

// Duration estimates how long text takes to speak.
func (p PacedPlayer) Duration(text string) time.Duration {
	wpm := p.WordsPerMinute
	if wpm <= 0 {
		wpm = 160
	}
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(wpm)
	if d < p.MinDuration {
		d = p.MinDuration
	}
	return d
}

func (p PacedPlayer) Play(ctx context.Context, clip Clip, gate *Gate) error {
	remaining := p.Duration(clip.Text)
	for remaining > 0 {
		if err := gate.Wait(ctx); err != nil {
			return err
		}
		open, changed := gate.snapshot()
		if !open {
			continue
		}

		started := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-changed:
			timer.Stop()
			remaining -= time.Since(started)
		}
	}
	return nil
}
