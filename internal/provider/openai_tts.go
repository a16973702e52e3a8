package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// OpenAITTSProvider implements TTSProvider using OpenAI-compatible TTS APIs
type OpenAITTSProvider struct {
	name       string
	config     types.TTSProviderConfig
	httpClient *http.Client
	model      string
	format     string
	log        zerolog.Logger
}

// NewOpenAITTSProvider creates a new OpenAI-compatible TTS provider
func NewOpenAITTSProvider(config types.TTSProviderConfig, log zerolog.Logger) (*OpenAITTSProvider, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for OpenAI TTS provider")
	}

	model, ok := config.Options["model"]
	if !ok || model == "" {
		return nil, fmt.Errorf("model is required for OpenAI TTS provider (set in options.model)")
	}

	format := config.Options["format"]
	if format == "" {
		format = "mp3"
	}

	return &OpenAITTSProvider{
		name:   config.Name,
		config: config,
		httpClient: &http.Client{
			Timeout: parseTimeout(config.Options, 120*time.Second),
		},
		model:  model,
		format: format,
		log:    log.With().Str("provider", config.Name).Logger(),
	}, nil
}

func (o *OpenAITTSProvider) Name() string {
	return o.name
}

// Init verifies the endpoint is reachable
func (o *OpenAITTSProvider) Init(ctx context.Context) error {
	return pingModels(ctx, o.httpClient, o.log, o.config.Endpoint, o.config.APIKey)
}

// Synthesize converts text to speech using OpenAI-compatible API
func (o *OpenAITTSProvider) Synthesize(ctx context.Context, req TTSRequest) (*TTSResponse, error) {
	apiReq := ttsAPIRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          req.VoiceID,
		ResponseFormat: o.format,
	}
	if instructions := req.Settings["instructions"]; instructions != "" {
		apiReq.Instructions = instructions
	}
	if speedStr := req.Settings["speed"]; speedStr != "" {
		var speed float64
		if _, err := fmt.Sscanf(speedStr, "%f", &speed); err == nil && speed > 0 {
			apiReq.Speed = speed
		} else {
			o.log.Warn().Str("speed", speedStr).Msg("Ignoring invalid speed setting")
		}
	}

	audioData, err := o.callTTSAPI(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call TTS API: %w", err)
	}

	return &TTSResponse{
		AudioData: audioData,
		Format:    o.format,
	}, nil
}

// ListVoices returns available voices from the OpenAI TTS provider
func (o *OpenAITTSProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(o.config.Endpoint, "voices"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := httpReq.URL.Query()
	q.Add("model", o.model)
	httpReq.URL.RawQuery = q.Encode()

	if o.config.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.config.APIKey))
	}

	startTime := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		o.log.Warn().Err(err).Dur("took", duration).Msg("Voice listing request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	o.log.Debug().
		Int("status", resp.StatusCode).
		Dur("took", duration).
		Str("payload", truncateForLog(string(body), 500)).
		Msg("Voice listing response")

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(o.log, resp.StatusCode, body)
	}

	var apiResp voicesAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	voices := make([]Voice, 0, len(apiResp.Data))
	for _, v := range apiResp.Data {
		languages := v.Languages
		if len(languages) == 0 && v.Language != "" {
			languages = []string{v.Language}
		}

		voices = append(voices, Voice{
			ID:          v.ID,
			Name:        v.Name,
			Languages:   languages,
			Gender:      v.Gender,
			Accent:      v.Accent,
			Description: v.Description,
		})
	}

	o.log.Debug().Int("count", len(voices)).Msg("Parsed voices")
	return voices, nil
}

func (o *OpenAITTSProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// ttsAPIRequest represents the OpenAI TTS API request structure
type ttsAPIRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	Instructions   string  `json:"instructions,omitempty"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// voicesAPIResponse represents the response from the voices list endpoint
type voicesAPIResponse struct {
	Object string      `json:"object"`
	Data   []voiceData `json:"data"`
}

// voiceData represents voice metadata from the API
type voiceData struct {
	ID          string   `json:"id"`
	Object      string   `json:"object"`
	Name        string   `json:"name"`
	Language    string   `json:"language"`
	Languages   []string `json:"languages"`
	Gender      string   `json:"gender"`
	Accent      string   `json:"accent"`
	Description string   `json:"description"`
}

// callTTSAPI calls the OpenAI-compatible TTS endpoint
func (o *OpenAITTSProvider) callTTSAPI(ctx context.Context, req ttsAPIRequest) ([]byte, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := endpointURL(o.config.Endpoint, "audio/speech")
	o.log.Debug().
		Str("endpoint", endpoint).
		Str("voice", req.Voice).
		Int("input_length", len(req.Input)).
		Msg("Synthesis request")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if o.config.APIKey != "" {
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.config.APIKey))
	}

	startTime := time.Now()
	resp, err := o.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		o.log.Warn().Err(err).Dur("took", duration).Msg("Synthesis request failed")
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(o.log, resp.StatusCode, body)
	}

	o.log.Debug().
		Int("audio_size", len(body)).
		Dur("took", duration).
		Msg("Synthesis response")
	return body, nil
}
