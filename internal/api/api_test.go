package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/config"
	"github.com/unalkalkan/PanelReader/internal/imaging"
	"github.com/unalkalkan/PanelReader/internal/panel"
	"github.com/unalkalkan/PanelReader/internal/pipeline"
	"github.com/unalkalkan/PanelReader/internal/preferences"
	"github.com/unalkalkan/PanelReader/internal/provider"
	"github.com/unalkalkan/PanelReader/internal/session"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

type testEnv struct {
	mux      http.Handler
	registry *provider.Registry
	storage  storage.Adapter
	prefs    preferences.Store
	sessions *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	registry := provider.NewRegistry(zerolog.Nop())
	if err := registry.RegisterTTS(provider.NewStubTTSProvider(types.TTSProviderConfig{Name: "stub"})); err != nil {
		t.Fatalf("Failed to register TTS provider: %v", err)
	}
	if err := registry.RegisterOCR(provider.NewStubOCRProvider(types.OCRProviderConfig{
		Name:    "stub",
		Options: map[string]string{"text": "Bob: Watch out!"},
	})); err != nil {
		t.Fatalf("Failed to register OCR provider: %v", err)
	}

	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	prefs := preferences.NewStore(adapter, zerolog.Nop())

	cfg := config.GetDefault()
	cfg.Recognition.Provider = "stub"
	cfg.Recognition.Fallback = ""
	cfg.Recognition.Mode = pipeline.ModeRegion
	cfg.Synthesis.Provider = "stub"
	cfg.Synthesis.Fallback = ""
	cfg.Voice = types.VoiceDefaults{DefaultProvider: "stub", DefaultVoice: "default"}

	sessions := session.NewManager(cfg.Synthesis, registry, adapter, zerolog.Nop())
	t.Cleanup(sessions.Close)

	mux := http.NewServeMux()
	Routes{
		Panels:   NewPanelHandler(pipeline.New(cfg, registry, prefs, zerolog.Nop()), sessions, panel.NewRepository(adapter), 1, zerolog.Nop()),
		Sessions: NewSessionHandler(sessions, adapter, zerolog.Nop()),
		Voices:   NewVoicesHandler(registry, prefs, zerolog.Nop()),
	}.Register(mux)

	return &testEnv{
		mux:      RequestLogger(zerolog.Nop(), mux),
		registry: registry,
		storage:  adapter,
		prefs:    prefs,
		sessions: sessions,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func twoBubblePanel(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	black := image.NewUniform(color.Black)
	draw.Draw(img, image.Rect(20, 20, 80, 60), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(110, 120, 170, 160), black, image.Point{}, draw.Src)
	data, err := imaging.EncodePNG(img)
	if err != nil {
		t.Fatalf("Failed to encode panel: %v", err)
	}
	return data
}

func panelRequest(t *testing.T, image []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if image != nil {
		fw, err := mw.CreateFormFile("image", "panel.png")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write(image)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/panels", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// waitForEvent long-polls the events endpoint until an item of eventType shows up
func waitForEvent(t *testing.T, e *testEnv, sessionID, eventType string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	after := 0
	for time.Now().Before(deadline) {
		w := e.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID+"/events?wait=500ms&after="+strconv.Itoa(after), nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		for _, line := range strings.Split(strings.TrimSpace(w.Body.String()), "\n") {
			if line == "" {
				continue
			}
			var item struct {
				Seq   int `json:"seq"`
				Event *struct {
					Type string `json:"type"`
				} `json:"event"`
			}
			if err := json.Unmarshal([]byte(line), &item); err != nil {
				t.Fatalf("Failed to decode event line %q: %v", line, err)
			}
			after = item.Seq
			if item.Event != nil && item.Event.Type == eventType {
				return
			}
		}
	}
	t.Fatalf("Timed out waiting for %s event", eventType)
}

func TestProcessPanel(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, panelRequest(t, twoBubblePanel(t), map[string]string{"user_id": "u1"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("Expected a request ID header")
	}

	var resp PanelResponse
	decodeBody(t, w, &resp)
	if resp.Result == nil || len(resp.Timeline) != 2 {
		t.Fatalf("Expected 2 timeline units, got %+v", resp.Result)
	}
	for i, u := range resp.Timeline {
		if u.SequenceIndex != i || u.Speaker != "Bob" || u.Text != "Watch out!" {
			t.Errorf("Unit %d: unexpected %+v", i, u)
		}
		if u.Voice.VoiceID != "default" || u.Voice.Provider != "stub" {
			t.Errorf("Unit %d: unexpected voice %+v", i, u.Voice)
		}
	}
	if resp.Session != nil {
		t.Error("Expected no session without play")
	}

	saved, err := e.prefs.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Failed to load preferences: %v", err)
	}
	if saved.Characters["Bob"].AppearanceCount != 2 {
		t.Errorf("Expected Bob registered twice, got %+v", saved.Characters)
	}
}

func TestProcessPanelAndPlay(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, panelRequest(t, twoBubblePanel(t), map[string]string{"user_id": "u1", "play": "true"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp PanelResponse
	decodeBody(t, w, &resp)
	if resp.Session == nil || resp.Session.Units != 2 {
		t.Fatalf("Expected a two-unit session, got %+v", resp.Session)
	}

	waitForEvent(t, e, resp.Session.ID, "finished")

	audio := e.do(t, http.MethodGet, "/api/v1/sessions/"+resp.Session.ID+"/audio/1", nil)
	if audio.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", audio.Code, audio.Body.String())
	}
	if ct := audio.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", ct)
	}
	if audio.Body.String() != "STUB_AUDIO_default_Watch out!" {
		t.Errorf("Unexpected clip %q", audio.Body.String())
	}
}

func TestStoredPanels(t *testing.T) {
	e := newTestEnv(t)

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, panelRequest(t, twoBubblePanel(t), map[string]string{"user_id": "u1"}))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var processed PanelResponse
	decodeBody(t, w, &processed)
	passID := processed.PassID

	t.Run("List", func(t *testing.T) {
		var resp struct {
			Panels []panel.Record `json:"panels"`
			Count  int            `json:"count"`
		}
		decodeBody(t, e.do(t, http.MethodGet, "/api/v1/panels?user_id=u1", nil), &resp)
		if resp.Count != 1 || resp.Panels[0].PassID != passID {
			t.Fatalf("Expected the processed panel, got %+v", resp)
		}
		if resp.Panels[0].Filename != "panel.png" {
			t.Errorf("Expected filename panel.png, got %s", resp.Panels[0].Filename)
		}

		decodeBody(t, e.do(t, http.MethodGet, "/api/v1/panels?user_id=someone-else", nil), &resp)
		if resp.Count != 0 {
			t.Errorf("Expected no panels for another user, got %d", resp.Count)
		}
	})

	t.Run("Get", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/v1/panels/"+passID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var rec panel.Record
		decodeBody(t, w, &rec)
		if rec.UserID != "u1" || len(rec.Timeline) != 2 {
			t.Errorf("Unexpected record %+v", rec)
		}
	})

	t.Run("Image", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/v1/panels/"+passID+"/image", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("Expected image/png, got %s", ct)
		}
	})

	t.Run("Play", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/v1/panels/"+passID+"/play", nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		var resp PanelResponse
		decodeBody(t, w, &resp)
		if resp.Session == nil || resp.Session.Units != 2 || resp.Session.UserID != "u1" {
			t.Fatalf("Expected a two-unit session for u1, got %+v", resp.Session)
		}
		waitForEvent(t, e, resp.Session.ID, "finished")
	})

	t.Run("Delete", func(t *testing.T) {
		if w := e.do(t, http.MethodDelete, "/api/v1/panels/"+passID, nil); w.Code != http.StatusNoContent {
			t.Fatalf("Expected status 204, got %d", w.Code)
		}
		for _, path := range []string{"/api/v1/panels/" + passID, "/api/v1/panels/" + passID + "/image"} {
			if w := e.do(t, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
				t.Errorf("%s: expected status 404, got %d", path, w.Code)
			}
		}
		if w := e.do(t, http.MethodPost, "/api/v1/panels/"+passID+"/play", nil); w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestProcessPanelErrors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name   string
		image  []byte
		fields map[string]string
		status int
	}{
		{"NoImage", nil, map[string]string{"user_id": "u1"}, http.StatusBadRequest},
		{"NotAnImage", []byte("definitely not a png"), map[string]string{"user_id": "u1"}, http.StatusBadRequest},
		{"MissingUser", twoBubblePanel(t), nil, http.StatusBadRequest},
		{"BadUser", twoBubblePanel(t), map[string]string{"user_id": ".."}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			e.mux.ServeHTTP(w, panelRequest(t, tt.image, tt.fields))
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	t.Run("TooLarge", func(t *testing.T) {
		big := make([]byte, 2<<20)
		w := httptest.NewRecorder()
		e.mux.ServeHTTP(w, panelRequest(t, big, map[string]string{"user_id": "u1"}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected status 400, got %d", w.Code)
		}
	})
}

func TestRespondAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperr.New(apperr.KindInvalidInput, "op", "bad"), http.StatusBadRequest},
		{apperr.New(apperr.KindNotFound, "op", "gone"), http.StatusNotFound},
		{apperr.BackendInitFailed("synthesis", "hosted", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{apperr.New(apperr.KindSynthesisFailure, "op", "boom"), http.StatusInternalServerError},
		{context.Canceled, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		respondAppError(w, zerolog.Nop(), tt.err)
		if w.Code != tt.status {
			t.Errorf("%v: expected status %d, got %d", tt.err, tt.status, w.Code)
		}
		var body errorResponse
		decodeBody(t, w, &body)
		if body.Error == "" {
			t.Errorf("%v: expected an error message", tt.err)
		}
	}
}
