package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/packaging"
	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/internal/session"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/streaming"
	"github.com/unalkalkan/PanelReader/internal/util"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// maxEventWait caps how long an events request may long-poll
const maxEventWait = 60 * time.Second

// SessionHandler handles playback session endpoints
type SessionHandler struct {
	sessions *session.Manager
	storage  storage.Adapter
	packager *packaging.Service
	log      zerolog.Logger
}

// NewSessionHandler creates a session handler. adapter may be nil when clips
// are not persisted.
func NewSessionHandler(sessions *session.Manager, adapter storage.Adapter, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		storage:  adapter,
		packager: packaging.NewService(adapter),
		log:      log.With().Str("handler", "sessions").Logger(),
	}
}

// CreateSessionRequest starts playback of a timeline
type CreateSessionRequest struct {
	UserID   string         `json:"user_id" validate:"required,excludesall=/\\"`
	Timeline types.Timeline `json:"timeline" validate:"required,min=1"`
}

// SessionResponse describes one session with its full state
type SessionResponse struct {
	session.Summary
	State     playback.State      `json:"state"`
	Highlight streaming.Highlight `json:"highlight"`
}

func sessionResponse(s *session.Session) SessionResponse {
	return SessionResponse{
		Summary:   s.Summary(),
		State:     s.Playback.State(),
		Highlight: s.Recorder.Current(),
	}
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, "session.create", &req); err != nil {
		respondAppError(w, h.log, err)
		return
	}

	s, err := h.sessions.Create(r.Context(), req.UserID, req.Timeline)
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	h.log.Info().Str("session_id", s.ID).Str("user_id", s.UserID).Int("units", len(req.Timeline)).Msg("Session created")
	respondJSON(w, sessionResponse(s), http.StatusCreated)
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.List()
	respondJSON(w, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	}, http.StatusOK)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	respondJSON(w, sessionResponse(s), http.StatusOK)
}

// Control returns a handler that posts one playback command. Commands are
// applied asynchronously, so the response carries the state as of receipt.
func (h *SessionHandler) Control(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Get(r.PathValue("id"))
		if err != nil {
			respondAppError(w, h.log, err)
			return
		}

		switch command {
		case "pause":
			s.Playback.Pause()
		case "resume":
			s.Playback.Resume()
		case "stop":
			s.Playback.Stop()
		case "restart":
			if err := s.Restart(); err != nil {
				respondAppError(w, h.log, err)
				return
			}
		default:
			respondError(w, "Unknown command", http.StatusBadRequest)
			return
		}
		h.log.Debug().Str("session_id", s.ID).Str("command", command).Msg("Command posted")
		respondJSON(w, sessionResponse(s), http.StatusAccepted)
	}
}

// DeleteSession handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.sessions.Get(id); err != nil {
		respondAppError(w, h.log, err)
		return
	}
	h.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// StreamEvents handles GET /api/v1/sessions/{id}/events
//
// Returns recorded items newer than ?after= as NDJSON. With ?wait= (a Go
// duration) the request blocks until at least one newer item exists or the
// wait elapses.
func (h *SessionHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}

	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		if after, err = strconv.Atoi(raw); err != nil {
			respondError(w, "after must be an integer", http.StatusBadRequest)
			return
		}
	}
	var wait time.Duration
	if raw := r.URL.Query().Get("wait"); raw != "" {
		if wait, err = time.ParseDuration(raw); err != nil || wait < 0 {
			respondError(w, "wait must be a non-negative duration", http.StatusBadRequest)
			return
		}
		wait = min(wait, maxEventWait)
	}

	items := s.Recorder.Events(after)
	if len(items) == 0 && wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		items, err = s.Recorder.Wait(ctx, after)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return
		}
	}

	data, err := streaming.EncodeNDJSON(items)
	if err != nil {
		respondError(w, "Failed to encode stream", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetAudio handles GET /api/v1/sessions/{id}/audio/{index}
//
// Stored clips outlive their session. A clip that was never persisted is
// served from the live session when one exists.
func (h *SessionHandler) GetAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	index, err := pathIndex(r, "index")
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}

	if h.storage != nil {
		for _, format := range util.AudioFormats() {
			data, err := storage.GetBytes(r.Context(), h.storage, util.GetAudioPath(id, index, format))
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				h.log.Error().Err(err).Str("session_id", id).Int("index", index).Msg("Failed to read clip")
				respondError(w, "Failed to read audio", http.StatusInternalServerError)
				return
			}
			writeAudio(w, format, data)
			return
		}
	}

	if s, err := h.sessions.Get(id); err == nil {
		if clip, ok := s.Synth.Clip(index); ok {
			writeAudio(w, clip.Format, clip.Audio)
			return
		}
	}
	respondAppError(w, h.log, apperr.New(apperr.KindNotFound, "session.audio", "audio not found").
		WithDetail("session_id", id).
		WithDetail("index", index))
}

// Download handles GET /api/v1/sessions/{id}/download
//
// The archive is built from storage, so it stays available after the
// session itself is deleted or swept.
func (h *SessionHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reader, err := h.packager.PackageSession(r.Context(), id)
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session-"+id+".zip"))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.log.Error().Err(err).Str("session_id", id).Msg("Failed to write package")
	}
}

func writeAudio(w http.ResponseWriter, format string, data []byte) {
	w.Header().Set("Content-Type", util.AudioContentType(format))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
