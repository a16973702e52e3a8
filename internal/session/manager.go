// Package session keeps the live playback sessions of the server, one
// orchestrator per session.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/internal/provider"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/streaming"
	"github.com/unalkalkan/PanelReader/internal/tts"
	"github.com/unalkalkan/PanelReader/internal/util"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Session is one playback session.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	Playback *playback.Orchestrator
	Recorder *streaming.Recorder
	Synth    *tts.Synthesizer

	cancel context.CancelFunc
}

// Summary describes a session for listings.
type Summary struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	CreatedAt    time.Time       `json:"created_at"`
	Status       playback.Status `json:"status"`
	CurrentIndex int             `json:"current_index"`
	Units        int             `json:"units"`
}

// Summary returns the session's current summary.
func (s *Session) Summary() Summary {
	st := s.Playback.State()
	return Summary{
		ID:           s.ID,
		UserID:       s.UserID,
		CreatedAt:    s.CreatedAt,
		Status:       st.Status,
		CurrentIndex: st.CurrentIndex,
		Units:        len(st.Timeline),
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithPlayer sets the player used by new sessions.
func WithPlayer(p tts.Player) Option {
	return func(m *Manager) { m.player = p }
}

// WithReporter sets where synthesis failures are reported.
func WithReporter(r apperr.Reporter) Option {
	return func(m *Manager) {
		if r != nil {
			m.reporter = r
		}
	}
}

// Manager creates, tracks and tears down sessions.
type Manager struct {
	cfg       types.SynthesisConfig
	providers *provider.Registry
	storage   storage.Adapter
	player    tts.Player
	reporter  apperr.Reporter
	log       zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager. adapter may be nil, in which case
// clips are not persisted.
func NewManager(cfg types.SynthesisConfig, providers *provider.Registry, adapter storage.Adapter, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		providers: providers,
		storage:   adapter,
		player:    tts.NopPlayer{},
		reporter:  apperr.Discard{},
		log:       log.With().Str("component", "session").Logger(),
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create resolves the synthesis backend and starts playback of timeline.
// A backend that does not come up returns a BackendInitFailure.
func (m *Manager) Create(ctx context.Context, userID string, timeline types.Timeline) (*Session, error) {
	if err := timeline.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "session.create", err)
	}

	synthProvider, err := m.providers.ResolveTTS(ctx, m.cfg.Provider, m.cfg.Fallback, time.Duration(m.cfg.InitTimeoutMs)*time.Millisecond)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := m.log.With().Str("session_id", id).Str("user_id", userID).Logger()

	opts := []tts.Option{
		tts.WithProviders(m.providers),
		tts.WithPlayer(m.player),
		tts.WithRequestTimeout(time.Duration(m.cfg.RequestTimeoutMs) * time.Millisecond),
		tts.WithLogger(log),
	}
	if m.cfg.StoreAudio && m.storage != nil {
		opts = append(opts, tts.WithStorage(m.storage, id))
		if err := storage.PutJSON(ctx, m.storage, util.GetTimelinePath(id), timeline); err != nil {
			log.Warn().Err(err).Msg("Failed to store timeline")
		}
	}
	synth := tts.NewSynthesizer(synthProvider, opts...)

	sessionCtx, cancel := context.WithCancel(context.Background())
	rec := streaming.NewRecorder(id, 0)
	s := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: time.Now(),
		Recorder:  rec,
		Synth:     synth,
		cancel:    cancel,
	}

	popts := []playback.Option{
		playback.WithHighlighter(rec),
		playback.WithLogger(log),
		playback.WithReporter(m.reporter),
		playback.WithContext(sessionCtx),
	}
	if m.cfg.Prefetch {
		// registered ahead of the recorder so a halted run is over before
		// the stop is visible in the stream
		popts = append(popts, playback.WithObserver(&prefetcher{
			parent:   sessionCtx,
			synth:    synth,
			reporter: m.reporter,
			timeline: func() types.Timeline { return s.Playback.State().Timeline },
		}))
	}
	popts = append(popts, playback.WithObserver(rec))
	s.Playback = playback.New(synth, popts...)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.Playback.Start(timeline); err != nil {
		m.Delete(id)
		return nil, err
	}
	log.Info().
		Str("provider", synthProvider.Name()).
		Int("units", len(timeline)).
		Msg("Session created")
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "session.get", "session not found").WithDetail("session_id", id)
	}
	return s, nil
}

// List returns summaries of all sessions, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Restart stops the session and plays its timeline again from the first
// unit. Both commands go through the orchestrator's mailbox, so the stop is
// applied before the start whatever the current status.
func (s *Session) Restart() error {
	timeline := s.Playback.State().Timeline
	s.Playback.Stop()
	return s.Playback.Start(timeline)
}

// Delete stops and forgets a session. Unknown IDs are ignored.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Playback.Stop()
	s.cancel()
	m.log.Debug().Str("session_id", id).Msg("Session removed")
}

// Sweep removes sessions that are idle or finished and older than maxAge.
// It returns how many were removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.CreatedAt.After(cutoff) {
			continue
		}
		switch s.Playback.State().Status {
		case playback.StatusIdle, playback.StatusFinished:
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.Delete(id)
	}
	return len(stale)
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Delete(id)
	}
}
