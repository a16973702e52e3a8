package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/panel"
	"github.com/unalkalkan/PanelReader/internal/pipeline"
	"github.com/unalkalkan/PanelReader/internal/session"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// PanelRunner turns an encoded panel image into a timeline
type PanelRunner interface {
	Run(ctx context.Context, data []byte, userID string) (*pipeline.Result, error)
}

// SessionStarter starts playback of a timeline
type SessionStarter interface {
	Create(ctx context.Context, userID string, timeline types.Timeline) (*session.Session, error)
}

// PanelHandler handles panel processing endpoints
type PanelHandler struct {
	runner   PanelRunner
	sessions SessionStarter
	repo     panel.Repository
	maxBytes int64
	log      zerolog.Logger
}

// NewPanelHandler creates a panel handler. sessions may be nil, in which
// case play requests are rejected. repo may be nil, in which case results
// are not kept and the stored-panel endpoints answer 404.
func NewPanelHandler(runner PanelRunner, sessions SessionStarter, repo panel.Repository, maxUploadMB int, log zerolog.Logger) *PanelHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &PanelHandler{
		runner:   runner,
		sessions: sessions,
		repo:     repo,
		maxBytes: int64(maxUploadMB) << 20,
		log:      log.With().Str("handler", "panels").Logger(),
	}
}

// PanelResponse is the result of processing one panel
type PanelResponse struct {
	*pipeline.Result
	Session *session.Summary `json:"session,omitempty"`
}

// ProcessPanel handles POST /api/v1/panels
//
// The body is multipart with an "image" file and a "user_id" field. Setting
// "play" to true also starts a playback session for the resulting timeline.
func (h *PanelHandler) ProcessPanel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, "No image provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "Failed to read image", http.StatusBadRequest)
		return
	}

	userID := r.FormValue("user_id")
	play, _ := strconv.ParseBool(r.FormValue("play"))
	if play && h.sessions == nil {
		respondError(w, "Playback is not available", http.StatusServiceUnavailable)
		return
	}

	log := h.log.With().Str("user_id", userID).Str("filename", header.Filename).Logger()
	log.Info().Int("bytes", len(data)).Msg("Processing panel")

	res, err := h.runner.Run(r.Context(), data, userID)
	if err != nil {
		respondAppError(w, log, err)
		return
	}

	if h.repo != nil {
		h.store(r.Context(), log, &panel.Record{
			Result:    res,
			UserID:    userID,
			Filename:  header.Filename,
			CreatedAt: time.Now(),
		}, data)
	}

	resp := PanelResponse{Result: res}
	if play && len(res.Timeline) > 0 {
		if resp.Session, err = h.startSession(r.Context(), userID, res.Timeline); err != nil {
			respondAppError(w, log, err)
			return
		}
	}

	status := http.StatusOK
	if resp.Session != nil {
		status = http.StatusCreated
	}
	respondJSON(w, resp, status)
}

// store keeps a pass for later replay. Failures are logged only; the caller
// already has its timeline.
func (h *PanelHandler) store(ctx context.Context, log zerolog.Logger, rec *panel.Record, image []byte) {
	if err := h.repo.SaveImage(ctx, rec.PassID, image); err != nil {
		log.Warn().Err(err).Msg("Failed to store panel image")
	}
	if err := h.repo.SaveRecord(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("Failed to store panel result")
	}
}

func (h *PanelHandler) startSession(ctx context.Context, userID string, timeline types.Timeline) (*session.Summary, error) {
	s, err := h.sessions.Create(ctx, userID, timeline)
	if err != nil {
		return nil, err
	}
	summary := s.Summary()
	return &summary, nil
}

// ListPanels handles GET /api/v1/panels
func (h *PanelHandler) ListPanels(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondJSON(w, map[string]any{"panels": []*panel.Record{}, "count": 0}, http.StatusOK)
		return
	}
	records, err := h.repo.ListRecords(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	respondJSON(w, map[string]any{"panels": records, "count": len(records)}, http.StatusOK)
}

// GetPanel handles GET /api/v1/panels/{id}
func (h *PanelHandler) GetPanel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.record(r)
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	respondJSON(w, rec, http.StatusOK)
}

// GetPanelImage handles GET /api/v1/panels/{id}/image
func (h *PanelHandler) GetPanelImage(w http.ResponseWriter, r *http.Request) {
	if _, err := h.record(r); err != nil {
		respondAppError(w, h.log, err)
		return
	}
	data, err := h.repo.GetImage(r.Context(), r.PathValue("id"))
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// DeletePanel handles DELETE /api/v1/panels/{id}
func (h *PanelHandler) DeletePanel(w http.ResponseWriter, r *http.Request) {
	if _, err := h.record(r); err != nil {
		respondAppError(w, h.log, err)
		return
	}
	if err := h.repo.DeleteRecord(r.Context(), r.PathValue("id")); err != nil {
		respondAppError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlayPanel handles POST /api/v1/panels/{id}/play, starting a new session
// for a stored timeline without running the pipeline again
func (h *PanelHandler) PlayPanel(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		respondError(w, "Playback is not available", http.StatusServiceUnavailable)
		return
	}
	rec, err := h.record(r)
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	if len(rec.Timeline) == 0 {
		respondAppError(w, h.log, apperr.New(apperr.KindInvalidInput, "panel.play", "panel has no dialogue").
			WithDetail("pass_id", rec.PassID))
		return
	}

	summary, err := h.startSession(r.Context(), rec.UserID, rec.Timeline)
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	respondJSON(w, PanelResponse{Result: rec.Result, Session: summary}, http.StatusCreated)
}

func (h *PanelHandler) record(r *http.Request) (*panel.Record, error) {
	if h.repo == nil {
		return nil, apperr.New(apperr.KindNotFound, "panel.get", "panel storage is not configured")
	}
	return h.repo.GetRecord(r.Context(), r.PathValue("id"))
}

var (
	_ PanelRunner    = (*pipeline.Pipeline)(nil)
	_ SessionStarter = (*session.Manager)(nil)
)
