// Package tts turns a TTS provider into the playback synthesizer contract:
// each Speak runs on its own goroutine with a cancellable context, can be
// paused, and optionally persists the synthesized clip. Provider calls of
// one Synthesizer never overlap.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/internal/provider"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/util"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// ProviderLookup finds a TTS provider by name.
type ProviderLookup interface {
	GetTTS(name string) (provider.TTSProvider, error)
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithProviders lets units pick their provider through VoiceConfig.Provider.
func WithProviders(l ProviderLookup) Option {
	return func(s *Synthesizer) { s.lookup = l }
}

// WithStorage persists clips under the session's audio prefix.
func WithStorage(a storage.Adapter, sessionID string) Option {
	return func(s *Synthesizer) {
		s.storage = a
		s.sessionID = sessionID
	}
}

// WithPlayer sets how clips are rendered. Defaults to NopPlayer.
func WithPlayer(p Player) Option {
	return func(s *Synthesizer) {
		if p != nil {
			s.player = p
		}
	}
}

// WithRequestTimeout bounds each synthesis call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

// WithLanguage sets the language hint sent with every request.
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithLogger sets the synthesizer's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Synthesizer) { s.log = log }
}

// Synthesizer implements playback.Synthesizer.
type Synthesizer struct {
	def       provider.TTSProvider
	lookup    ProviderLookup
	storage   storage.Adapter
	sessionID string
	player    Player
	timeout   time.Duration
	language  string
	log       zerolog.Logger

	// slot admits one provider call at a time
	slot chan struct{}

	mu    sync.Mutex
	clips map[int]Clip
}

// NewSynthesizer creates a synthesizer that uses def unless a unit names
// another registered provider.
func NewSynthesizer(def provider.TTSProvider, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		def:    def,
		player: NopPlayer{},
		log:    zerolog.Nop(),
		slot:   make(chan struct{}, 1),
		clips:  make(map[int]Clip),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak issues one synthesis request. Callbacks run on the request's
// goroutine; none run after the handle is cancelled.
func (s *Synthesizer) Speak(ctx context.Context, unit types.DialogueUnit, cb playback.Callbacks) (playback.Handle, error) {
	if strings.TrimSpace(unit.Text) == "" {
		return nil, fmt.Errorf("unit %d has no text", unit.SequenceIndex)
	}
	p, err := s.providerFor(unit.Voice)
	if err != nil {
		return nil, err
	}

	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	h := &handle{gate: NewGate(), cancel: cancel}

	log := s.log.With().
		Int("index", unit.SequenceIndex).
		Str("provider", p.Name()).
		Str("voice", unit.Voice.VoiceID).
		Logger()

	go s.run(ctx, h, p, unit, cb, log)
	return h, nil
}

func (s *Synthesizer) run(ctx context.Context, h *handle, p provider.TTSProvider, unit types.DialogueUnit, cb playback.Callbacks, log zerolog.Logger) {
	defer h.cancel()

	fail := func(err error) {
		if h.cancelled() {
			return
		}
		log.Warn().Err(err).Msg("Synthesis failed")
		if cb.OnError != nil {
			cb.OnError(err)
		}
	}

	if cb.OnStart != nil && !h.cancelled() {
		cb.OnStart()
	}

	clip, cached, err := s.fetch(ctx, p, unit, log)
	if err != nil {
		fail(err)
		return
	}
	if cached {
		log.Debug().Msg("Using prefetched clip")
	}

	if err := s.player.Play(ctx, clip, h.gate); err != nil {
		fail(fmt.Errorf("play unit %d: %w", unit.SequenceIndex, err))
		return
	}
	if cb.OnEnd != nil && !h.cancelled() {
		cb.OnEnd()
	}
}

// fetch returns the cached clip for unit, or takes the provider slot and
// synthesizes it. The cache is checked again once the slot is held, so a
// unit prefetched while Speak was waiting is not requested twice.
func (s *Synthesizer) fetch(ctx context.Context, p provider.TTSProvider, unit types.DialogueUnit, log zerolog.Logger) (Clip, bool, error) {
	if clip, ok := s.cached(unit, p.Name()); ok {
		return clip, true, nil
	}

	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return Clip{}, false, fmt.Errorf("synthesize unit %d: %w", unit.SequenceIndex, ctx.Err())
	}
	defer func() { <-s.slot }()

	if err := ctx.Err(); err != nil {
		return Clip{}, false, fmt.Errorf("synthesize unit %d: %w", unit.SequenceIndex, err)
	}
	if clip, ok := s.cached(unit, p.Name()); ok {
		return clip, true, nil
	}
	clip, err := s.synthesize(ctx, p, unit, log)
	return clip, false, err
}

// synthesize calls the provider for unit, stores the clip when persistence is
// on, and caches it by index.
func (s *Synthesizer) synthesize(ctx context.Context, p provider.TTSProvider, unit types.DialogueUnit, log zerolog.Logger) (Clip, error) {
	started := time.Now()
	resp, err := p.Synthesize(ctx, provider.TTSRequest{
		Text:     unit.Text,
		VoiceID:  unit.Voice.VoiceID,
		Language: s.language,
		Settings: unit.Voice.Settings,
	})
	if err != nil {
		return Clip{}, fmt.Errorf("synthesize unit %d: %w", unit.SequenceIndex, err)
	}
	log.Debug().
		Dur("took", time.Since(started)).
		Int("bytes", len(resp.AudioData)).
		Str("format", resp.Format).
		Msg("Unit synthesized")

	clip := Clip{
		Index:    unit.SequenceIndex,
		Text:     unit.Text,
		VoiceID:  unit.Voice.VoiceID,
		Provider: p.Name(),
		Audio:    resp.AudioData,
		Format:   resp.Format,
	}
	if s.storage != nil && s.sessionID != "" {
		path := util.GetAudioPath(s.sessionID, unit.SequenceIndex, resp.Format)
		if err := s.storage.Put(ctx, path, bytes.NewReader(resp.AudioData)); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to store clip")
		} else {
			clip.Path = path
		}
	}
	s.mu.Lock()
	s.clips[unit.SequenceIndex] = clip
	s.mu.Unlock()
	return clip, nil
}

// cached returns the stored clip for unit when it was synthesized from the
// same text, voice and provider.
func (s *Synthesizer) cached(unit types.DialogueUnit, providerName string) (Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[unit.SequenceIndex]
	if !ok || c.Text != unit.Text || c.VoiceID != unit.Voice.VoiceID || c.Provider != providerName {
		return Clip{}, false
	}
	return c, true
}

// Clip returns the last synthesized clip for a unit index.
func (s *Synthesizer) Clip(index int) (Clip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[index]
	return c, ok
}

func (s *Synthesizer) providerFor(v types.VoiceConfig) (provider.TTSProvider, error) {
	if v.Provider != "" && s.lookup != nil {
		if p, err := s.lookup.GetTTS(v.Provider); err == nil {
			return p, nil
		}
		s.log.Debug().Str("provider", v.Provider).Msg("Voice provider not registered, using default")
	}
	if s.def == nil {
		return nil, fmt.Errorf("no synthesis provider available")
	}
	return s.def, nil
}

type handle struct {
	gate   *Gate
	cancel context.CancelFunc

	mu   sync.Mutex
	done bool
}

func (h *handle) Pause()  { h.gate.Close() }
func (h *handle) Resume() { h.gate.Open() }

func (h *handle) Cancel() {
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()
	h.cancel()
}

func (h *handle) cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}
