package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeExister struct{ err error }

func (f fakeExister) Exists(ctx context.Context, path string) (bool, error) { return false, f.err }

func TestRunChecks(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   Status
	}{
		{
			name: "AllHealthy",
			checks: map[string]CheckFunc{
				"storage": StorageCheck(fakeExister{}),
			},
			want: StatusHealthy,
		},
		{
			name: "DegradedBackend",
			checks: map[string]CheckFunc{
				"storage":     StorageCheck(fakeExister{}),
				"recognition": BackendCheck("recognition", func(ctx context.Context) error { return errors.New("down") }),
			},
			want: StatusDegraded,
		},
		{
			name: "UnhealthyStorage",
			checks: map[string]CheckFunc{
				"storage":     StorageCheck(fakeExister{err: errors.New("bucket missing")}),
				"recognition": BackendCheck("recognition", func(ctx context.Context) error { return errors.New("down") }),
			},
			want: StatusUnhealthy,
		},
		{
			name:   "NoChecks",
			checks: nil,
			want:   StatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("test", zerolog.Nop())
			for name, c := range tt.checks {
				h.Register(name, c)
			}
			resp := h.RunChecks(context.Background())
			if resp.Status != tt.want {
				t.Errorf("Expected %s, got %s (%+v)", tt.want, resp.Status, resp.Checks)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(resp.Checks))
			}
		})
	}
}

func TestCheckTimeout(t *testing.T) {
	h := NewHandler("test", zerolog.Nop())
	h.checkTimeout = 20 * time.Millisecond
	h.Register("slow", func(ctx context.Context) (Status, error) {
		<-ctx.Done()
		return StatusHealthy, nil
	})

	resp := h.RunChecks(context.Background())
	if resp.Checks["slow"].Status != StatusUnhealthy || resp.Checks["slow"].Error == "" {
		t.Errorf("Expected timed out check to be unhealthy, got %+v", resp.Checks["slow"])
	}
}

func TestHandlers(t *testing.T) {
	h := NewHandler("1.2.3", zerolog.Nop())
	h.Register("storage", StorageCheck(fakeExister{err: errors.New("unreachable")}))

	t.Run("Liveness", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
		var resp Response
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.Version != "1.2.3" {
			t.Errorf("Expected version 1.2.3, got %s", resp.Version)
		}
	})

	t.Run("Readiness", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ReadinessHandler()(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", w.Code)
		}
	})

	t.Run("Health", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("Expected 200, got %d", w.Code)
		}
	})
}
