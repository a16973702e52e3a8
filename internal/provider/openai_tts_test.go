package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

func TestNewOpenAITTSProvider(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := types.TTSProviderConfig{
			Name:     "test-openai-tts",
			Enabled:  true,
			Endpoint: "https://api.openai.com/v1",
			APIKey:   "test-key",
			Options: map[string]string{
				"model": "gpt-4o-mini-tts",
			},
		}

		provider, err := NewOpenAITTSProvider(cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("Failed to create provider: %v", err)
		}

		if provider.Name() != "test-openai-tts" {
			t.Errorf("Expected name 'test-openai-tts', got '%s'", provider.Name())
		}
		if provider.model != "gpt-4o-mini-tts" {
			t.Errorf("Expected model 'gpt-4o-mini-tts', got '%s'", provider.model)
		}
		if provider.format != "mp3" {
			t.Errorf("Expected default format 'mp3', got '%s'", provider.format)
		}
	})

	t.Run("MissingEndpoint", func(t *testing.T) {
		cfg := types.TTSProviderConfig{
			Name:    "test-openai-tts",
			Options: map[string]string{"model": "gpt-4o-mini-tts"},
		}

		_, err := NewOpenAITTSProvider(cfg, zerolog.Nop())
		if err == nil || !strings.Contains(err.Error(), "endpoint is required") {
			t.Errorf("Expected error about endpoint, got: %v", err)
		}
	})

	t.Run("MissingModel", func(t *testing.T) {
		cfg := types.TTSProviderConfig{
			Name:     "test-openai-tts",
			Endpoint: "https://api.openai.com/v1",
			Options:  map[string]string{},
		}

		_, err := NewOpenAITTSProvider(cfg, zerolog.Nop())
		if err == nil || !strings.Contains(err.Error(), "model is required") {
			t.Errorf("Expected error about model, got: %v", err)
		}
	})

	t.Run("CustomTimeout", func(t *testing.T) {
		cfg := types.TTSProviderConfig{
			Name:     "test-openai-tts",
			Endpoint: "https://api.openai.com/v1",
			Options: map[string]string{
				"model":   "gpt-4o-mini-tts",
				"timeout": "60",
			},
		}

		provider, err := NewOpenAITTSProvider(cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("Failed to create provider: %v", err)
		}
		if provider.httpClient.Timeout.Seconds() != 60 {
			t.Errorf("Expected timeout 60s, got %v", provider.httpClient.Timeout.Seconds())
		}
	})
}

func newTestTTSProvider(t *testing.T, endpoint string) *OpenAITTSProvider {
	t.Helper()
	provider, err := NewOpenAITTSProvider(types.TTSProviderConfig{
		Name:     "test-openai-tts",
		Endpoint: endpoint,
		APIKey:   "test-key",
		Options:  map[string]string{"model": "gpt-4o-mini-tts"},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider
}

func TestOpenAITTSProvider_Synthesize(t *testing.T) {
	t.Run("SuccessfulSynthesis", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("Expected POST request, got %s", r.Method)
			}
			if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
				t.Errorf("Expected /audio/speech endpoint, got %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("Expected 'Bearer test-key', got '%s'", auth)
			}

			var reqBody ttsAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
			if reqBody.Model != "gpt-4o-mini-tts" {
				t.Errorf("Expected model 'gpt-4o-mini-tts', got '%s'", reqBody.Model)
			}
			if reqBody.Input != "Hello, world!" {
				t.Errorf("Expected input 'Hello, world!', got '%s'", reqBody.Input)
			}
			if reqBody.Voice != "coral" {
				t.Errorf("Expected voice 'coral', got '%s'", reqBody.Voice)
			}
			if reqBody.Instructions != "cheerful and positive" {
				t.Errorf("Expected instructions 'cheerful and positive', got '%s'", reqBody.Instructions)
			}
			if reqBody.Speed != 1.25 {
				t.Errorf("Expected speed 1.25, got %v", reqBody.Speed)
			}

			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte("MOCK_MP3_DATA"))
		}))
		defer server.Close()

		provider := newTestTTSProvider(t, server.URL)
		resp, err := provider.Synthesize(context.Background(), TTSRequest{
			Text:    "Hello, world!",
			VoiceID: "coral",
			Settings: map[string]string{
				"instructions": "cheerful and positive",
				"speed":        "1.25",
			},
		})
		if err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}

		if string(resp.AudioData) != "MOCK_MP3_DATA" {
			t.Errorf("Expected audio data 'MOCK_MP3_DATA', got '%s'", string(resp.AudioData))
		}
		if resp.Format != "mp3" {
			t.Errorf("Expected format 'mp3', got '%s'", resp.Format)
		}
	})

	t.Run("SynthesisWithoutSettings", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var reqBody ttsAPIRequest
			if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
			if reqBody.Instructions != "" || reqBody.Speed != 0 {
				t.Errorf("Expected no optional settings, got %+v", reqBody)
			}
			w.Write([]byte("MOCK_MP3_DATA"))
		}))
		defer server.Close()

		provider := newTestTTSProvider(t, server.URL)
		if _, err := provider.Synthesize(context.Background(), TTSRequest{Text: "Hi", VoiceID: "coral"}); err != nil {
			t.Fatalf("Synthesize failed: %v", err)
		}
	})

	t.Run("APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			resp := apiErrorResponse{}
			resp.Error.Message = "Invalid API key"
			resp.Error.Type = "invalid_request_error"
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		provider := newTestTTSProvider(t, server.URL)
		_, err := provider.Synthesize(context.Background(), TTSRequest{Text: "Hello", VoiceID: "coral"})
		if err == nil {
			t.Fatal("Expected error for API failure")
		}
		if !strings.Contains(err.Error(), "Invalid API key") {
			t.Errorf("Expected API error message, got: %v", err)
		}
	})

	t.Run("NetworkError", func(t *testing.T) {
		provider := newTestTTSProvider(t, "http://127.0.0.1:1")
		if _, err := provider.Synthesize(context.Background(), TTSRequest{Text: "Hello", VoiceID: "coral"}); err == nil {
			t.Error("Expected error for unreachable endpoint")
		}
	})
}

func TestOpenAITTSProvider_ListVoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		if r.URL.Path != "/voices" {
			t.Errorf("Expected /voices path, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("model") != "gpt-4o-mini-tts" {
			t.Errorf("Expected model query parameter, got %s", r.URL.RawQuery)
		}

		response := voicesAPIResponse{
			Object: "list",
			Data: []voiceData{
				{ID: "alloy", Name: "Alloy", Languages: []string{"en"}, Gender: "neutral"},
				{ID: "fable", Name: "Fable", Language: "en", Gender: "female", Accent: "british"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	provider := newTestTTSProvider(t, server.URL)
	voices, err := provider.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices failed: %v", err)
	}

	if len(voices) != 2 {
		t.Fatalf("Expected 2 voices, got %d", len(voices))
	}
	if voices[0].ID != "alloy" {
		t.Errorf("Expected first voice 'alloy', got '%s'", voices[0].ID)
	}
	if len(voices[1].Languages) != 1 || voices[1].Languages[0] != "en" {
		t.Errorf("Expected single language field promoted, got %v", voices[1].Languages)
	}
}

func TestOpenAITTSProvider_Init(t *testing.T) {
	t.Run("Reachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/models" {
				t.Errorf("Expected /models path, got %s", r.URL.Path)
			}
			w.Write([]byte(`{"object":"list","data":[]}`))
		}))
		defer server.Close()

		if err := newTestTTSProvider(t, server.URL).Init(context.Background()); err != nil {
			t.Errorf("Init failed: %v", err)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("forbidden"))
		}))
		defer server.Close()

		if err := newTestTTSProvider(t, server.URL).Init(context.Background()); err == nil {
			t.Error("Expected error for rejected health check")
		}
	})
}
