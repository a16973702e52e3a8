package preferences

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

func newTestStore(t *testing.T) (*StorageStore, storage.Adapter) {
	t.Helper()
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	store := NewStore(adapter, zerolog.Nop())
	store.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return store, adapter
}

func TestStorageStore(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	t.Run("MissingUser", func(t *testing.T) {
		data, err := store.Get(ctx, "nobody")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if data.UserID != "nobody" || len(data.Characters) != 0 || data.VoicePreferences == nil {
			t.Errorf("Expected empty document, got %+v", data)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		seen := time.Date(2024, 4, 30, 8, 0, 0, 0, time.UTC)
		data := types.NewUserData("u1")
		data.Characters["Bob"] = types.CharacterEntry{AppearanceCount: 3, LastSeen: seen, VoiceIndex: 0}
		data.VoicePreferences["Bob"] = types.VoiceConfig{VoiceID: "onyx", Provider: "hosted", Settings: map[string]string{"speed": "1.1"}}
		data.DefaultVoice = &types.VoiceConfig{VoiceID: "alloy", Provider: "hosted"}

		if err := store.Set(ctx, "u1", data); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		got, err := store.Get(ctx, "u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Characters["Bob"].AppearanceCount != 3 || !got.Characters["Bob"].LastSeen.Equal(seen) {
			t.Errorf("Unexpected character entry %+v", got.Characters["Bob"])
		}
		if got.VoicePreferences["Bob"].Settings["speed"] != "1.1" {
			t.Errorf("Unexpected voice preference %+v", got.VoicePreferences["Bob"])
		}
		if got.DefaultVoice == nil || got.DefaultVoice.VoiceID != "alloy" {
			t.Errorf("Unexpected default voice %+v", got.DefaultVoice)
		}
		if !got.UpdatedAt.Equal(store.now()) {
			t.Errorf("Expected UpdatedAt to be stamped, got %v", got.UpdatedAt)
		}
	})

	t.Run("SetForcesUserID", func(t *testing.T) {
		if err := store.Set(ctx, "u2", &types.UserData{UserID: "someone-else"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		got, err := store.Get(ctx, "u2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.UserID != "u2" || got.Characters == nil {
			t.Errorf("Expected normalized document, got %+v", got)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		for _, id := range []string{"", "  ", "../etc", "a/b", ".."} {
			if _, err := store.Get(ctx, id); !apperr.IsKind(err, apperr.KindInvalidInput) {
				t.Errorf("Get(%q): expected invalid input, got %v", id, err)
			}
		}
		if err := store.Set(ctx, "u1", nil); !apperr.IsKind(err, apperr.KindInvalidInput) {
			t.Errorf("Expected invalid input for nil data, got %v", err)
		}
	})
}

func TestStorageStoreCorruptDocument(t *testing.T) {
	store, adapter := newTestStore(t)
	ctx := context.Background()

	if err := storage.PutBytes(ctx, adapter, "users/u1/preferences.json", []byte("{not json")); err != nil {
		t.Fatalf("Failed to seed storage: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); err == nil {
		t.Error("Expected error for corrupt document")
	}
}

func TestStorageStoreUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "u1", func(d *types.UserData) error {
				e := d.Characters["Bob"]
				e.AppearanceCount++
				d.Characters["Bob"] = e
				return nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Characters["Bob"].AppearanceCount != 20 {
		t.Errorf("Expected 20 serialized increments, got %d", got.Characters["Bob"].AppearanceCount)
	}

	boom := errors.New("boom")
	if _, err := store.Update(ctx, "u1", func(d *types.UserData) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected callback error, got %v", err)
	}
}
