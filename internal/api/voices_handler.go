package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/preferences"
	"github.com/unalkalkan/PanelReader/internal/provider"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// VoicesHandler handles voice catalogue and per-user voice preference endpoints
type VoicesHandler struct {
	providerReg *provider.Registry
	prefs       preferences.Store
	log         zerolog.Logger
}

// NewVoicesHandler creates a new voices handler
func NewVoicesHandler(providerReg *provider.Registry, prefs preferences.Store, log zerolog.Logger) *VoicesHandler {
	return &VoicesHandler{
		providerReg: providerReg,
		prefs:       prefs,
		log:         log.With().Str("handler", "voices").Logger(),
	}
}

// VoiceResponse represents a voice in the API response
type VoiceResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Languages   []string `json:"languages"`
	Gender      string   `json:"gender,omitempty"`
	Accent      string   `json:"accent,omitempty"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider"`
}

// ListVoices handles GET /api/v1/voices
func (h *VoicesHandler) ListVoices(w http.ResponseWriter, r *http.Request) {
	providerName := r.URL.Query().Get("provider")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	allVoices := []VoiceResponse{}

	if providerName != "" {
		ttsProvider, err := h.providerReg.GetTTS(providerName)
		if err != nil {
			respondError(w, fmt.Sprintf("Provider '%s' not found", providerName), http.StatusNotFound)
			return
		}

		voices, err := ttsProvider.ListVoices(ctx)
		if err != nil {
			h.log.Error().Err(err).Str("provider", providerName).Msg("Failed to list voices")
			respondError(w, fmt.Sprintf("Failed to get voices from provider: %v", err), http.StatusBadGateway)
			return
		}
		allVoices = appendVoices(allVoices, providerName, voices)
	} else {
		names := h.providerReg.ListTTS()
		if len(names) == 0 {
			respondError(w, "No TTS providers configured", http.StatusServiceUnavailable)
			return
		}

		for _, name := range names {
			ttsProvider, err := h.providerReg.GetTTS(name)
			if err != nil {
				continue
			}
			voices, err := ttsProvider.ListVoices(ctx)
			if err != nil {
				// one unreachable provider does not hide the others
				h.log.Warn().Err(err).Str("provider", name).Msg("Failed to list voices")
				continue
			}
			allVoices = appendVoices(allVoices, name, voices)
		}
	}

	respondJSON(w, map[string]any{
		"voices": allVoices,
		"count":  len(allVoices),
	}, http.StatusOK)
}

func appendVoices(out []VoiceResponse, providerName string, voices []provider.Voice) []VoiceResponse {
	for _, v := range voices {
		out = append(out, VoiceResponse{
			ID:          v.ID,
			Name:        v.Name,
			Languages:   v.Languages,
			Gender:      v.Gender,
			Accent:      v.Accent,
			Description: v.Description,
			Provider:    providerName,
		})
	}
	return out
}

// UserVoicesResponse is a user's stored voice preferences
type UserVoicesResponse struct {
	UserID           string                       `json:"user_id"`
	DefaultVoice     *types.VoiceConfig           `json:"default_voice,omitempty"`
	VoicePreferences map[string]types.VoiceConfig `json:"voice_preferences"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func userVoices(data *types.UserData) UserVoicesResponse {
	return UserVoicesResponse{
		UserID:           data.UserID,
		DefaultVoice:     data.DefaultVoice,
		VoicePreferences: data.VoicePreferences,
		UpdatedAt:        data.UpdatedAt,
	}
}

// GetUserVoices handles GET /api/v1/users/{id}/voices
func (h *VoicesHandler) GetUserVoices(w http.ResponseWriter, r *http.Request) {
	data, err := h.prefs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	respondJSON(w, userVoices(data), http.StatusOK)
}

// VoiceAssignment sets the voice for one speaker, or the user's default voice
type VoiceAssignment struct {
	Speaker string            `json:"speaker" validate:"required_unless=Default true,max=200"`
	Default bool              `json:"default"`
	Voice   types.VoiceConfig `json:"voice" validate:"required"`
}

// SetUserVoice handles POST /api/v1/users/{id}/voices
func (h *VoicesHandler) SetUserVoice(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	var req VoiceAssignment
	if err := decodeJSON(r, "voices.set", &req); err != nil {
		respondAppError(w, h.log, err)
		return
	}
	if _, err := h.providerReg.GetTTS(req.Voice.Provider); err != nil {
		respondAppError(w, h.log, apperr.New(apperr.KindInvalidInput, "voices.set", "unknown synthesis provider").
			WithDetail("provider", req.Voice.Provider))
		return
	}

	data, err := h.prefs.Update(r.Context(), userID, func(d *types.UserData) error {
		voice := req.Voice
		if req.Default {
			d.DefaultVoice = &voice
			return nil
		}
		d.VoicePreferences[req.Speaker] = voice
		return nil
	})
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}

	h.log.Info().
		Str("user_id", userID).
		Str("speaker", req.Speaker).
		Bool("default", req.Default).
		Str("voice_id", req.Voice.VoiceID).
		Msg("Voice preference saved")
	respondJSON(w, userVoices(data), http.StatusOK)
}

// DeleteUserVoice handles DELETE /api/v1/users/{id}/voices/{speaker}
func (h *VoicesHandler) DeleteUserVoice(w http.ResponseWriter, r *http.Request) {
	speaker := r.PathValue("speaker")
	data, err := h.prefs.Update(r.Context(), r.PathValue("id"), func(d *types.UserData) error {
		if _, ok := d.VoicePreferences[speaker]; !ok {
			return apperr.New(apperr.KindNotFound, "voices.delete", "no preference for speaker").
				WithDetail("speaker", speaker)
		}
		delete(d.VoicePreferences, speaker)
		return nil
	})
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}
	respondJSON(w, userVoices(data), http.StatusOK)
}

// CharacterResponse is one entry of a user's character registry
type CharacterResponse struct {
	Name string `json:"name"`
	types.CharacterEntry
}

// ListCharacters handles GET /api/v1/users/{id}/characters
func (h *VoicesHandler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	data, err := h.prefs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondAppError(w, h.log, err)
		return
	}

	characters := make([]CharacterResponse, 0, len(data.Characters))
	for name, entry := range data.Characters {
		characters = append(characters, CharacterResponse{Name: name, CharacterEntry: entry})
	}
	sort.Slice(characters, func(i, j int) bool {
		if characters[i].AppearanceCount != characters[j].AppearanceCount {
			return characters[i].AppearanceCount > characters[j].AppearanceCount
		}
		return characters[i].Name < characters[j].Name
	})

	respondJSON(w, map[string]any{
		"user_id":    data.UserID,
		"characters": characters,
		"count":      len(characters),
	}, http.StatusOK)
}
