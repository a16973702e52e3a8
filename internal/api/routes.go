package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Routes groups the API handlers mounted under /api/v1
type Routes struct {
	Panels   *PanelHandler
	Sessions *SessionHandler
	Voices   *VoicesHandler
}

// Register mounts every non-nil handler on mux
func (rt Routes) Register(mux *http.ServeMux) {
	if p := rt.Panels; p != nil {
		mux.HandleFunc("POST /api/v1/panels", p.ProcessPanel)
		mux.HandleFunc("GET /api/v1/panels", p.ListPanels)
		mux.HandleFunc("GET /api/v1/panels/{id}", p.GetPanel)
		mux.HandleFunc("DELETE /api/v1/panels/{id}", p.DeletePanel)
		mux.HandleFunc("GET /api/v1/panels/{id}/image", p.GetPanelImage)
		mux.HandleFunc("POST /api/v1/panels/{id}/play", p.PlayPanel)
	}

	if s := rt.Sessions; s != nil {
		mux.HandleFunc("POST /api/v1/sessions", s.CreateSession)
		mux.HandleFunc("GET /api/v1/sessions", s.ListSessions)
		mux.HandleFunc("GET /api/v1/sessions/{id}", s.GetSession)
		mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.DeleteSession)
		mux.HandleFunc("POST /api/v1/sessions/{id}/pause", s.Control("pause"))
		mux.HandleFunc("POST /api/v1/sessions/{id}/resume", s.Control("resume"))
		mux.HandleFunc("POST /api/v1/sessions/{id}/stop", s.Control("stop"))
		mux.HandleFunc("POST /api/v1/sessions/{id}/restart", s.Control("restart"))
		mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.StreamEvents)
		mux.HandleFunc("GET /api/v1/sessions/{id}/audio/{index}", s.GetAudio)
		mux.HandleFunc("GET /api/v1/sessions/{id}/download", s.Download)
	}

	if v := rt.Voices; v != nil {
		mux.HandleFunc("GET /api/v1/voices", v.ListVoices)
		mux.HandleFunc("GET /api/v1/users/{id}/voices", v.GetUserVoices)
		mux.HandleFunc("POST /api/v1/users/{id}/voices", v.SetUserVoice)
		mux.HandleFunc("DELETE /api/v1/users/{id}/voices/{speaker}", v.DeleteUserVoice)
		mux.HandleFunc("GET /api/v1/users/{id}/characters", v.ListCharacters)
	}
}

// statusWriter records the status code written by a handler
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs every request with method, path, status and duration.
// Health checks are skipped. A request ID is taken from X-Request-Id or
// generated, and echoed on the response.
func RequestLogger(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}

		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		var ev *zerolog.Event
		switch {
		case sw.status >= 500:
			ev = log.Error()
		case sw.status >= 400:
			ev = log.Warn()
		default:
			ev = log.Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("took", time.Since(start)).
			Str("request_id", requestID).
			Msg("Request completed")
	})
}
