package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
)

// maxJSONBody bounds JSON request bodies
const maxJSONBody = 4 << 20

// errorResponse is the body of every non-2xx response
type errorResponse struct {
	Error   string         `json:"error"`
	Kind    apperr.Kind    `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, errorResponse{Error: message}, status)
}

// respondAppError maps a pipeline error onto an HTTP status. Errors outside
// the taxonomy are logged and hidden behind a 500.
func respondAppError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Msg("Request failed")
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	status := statusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", string(appErr.Kind)).Msg("Request failed")
	}
	respondJSON(w, errorResponse{
		Error:   appErr.Error(),
		Kind:    appErr.Kind,
		Details: appErr.Details,
	}, status)
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindBackendInitFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v and validates it
func decodeJSON(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return apperr.New(apperr.KindInvalidInput, op, fmt.Sprintf("invalid request body: %v", err))
	}
	return validateRequest(op, v)
}

// pathIndex parses a non-negative integer path parameter
func pathIndex(r *http.Request, name string) (int, error) {
	raw := r.PathValue(name)
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.New(apperr.KindInvalidInput, "path", fmt.Sprintf("%s must be a non-negative integer", name)).
			WithDetail(name, raw)
	}
	return n, nil
}
