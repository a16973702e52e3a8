// Package preferences persists per-user voice preferences and the character
// registry as one JSON document per user.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/util"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Store loads and saves user documents
type Store interface {
	// Get returns the user's document, or an empty one for unknown users
	Get(ctx context.Context, userID string) (*types.UserData, error)

	// Set replaces the user's document
	Set(ctx context.Context, userID string, data *types.UserData) error

	// Update applies fn to the current document and saves the result.
	// Updates for the same user are serialized.
	Update(ctx context.Context, userID string, fn func(*types.UserData) error) (*types.UserData, error)
}

// StorageStore implements Store on a storage adapter
type StorageStore struct {
	storage storage.Adapter
	log     zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a preference store backed by adapter
func NewStore(adapter storage.Adapter, log zerolog.Logger) *StorageStore {
	return &StorageStore{
		storage: adapter,
		log:     log.With().Str("component", "preferences").Logger(),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *StorageStore) Get(ctx context.Context, userID string) (*types.UserData, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	var data types.UserData
	err := storage.GetJSON(ctx, s.storage, util.GetPreferencesPath(userID), &data)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Debug().Str("user_id", userID).Msg("No stored preferences")
		return types.NewUserData(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	normalize(&data, userID)
	return &data, nil
}

func (s *StorageStore) Set(ctx context.Context, userID string, data *types.UserData) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if data == nil {
		return apperr.New(apperr.KindInvalidInput, "preferences.set", "user data is required")
	}

	doc := *data
	normalize(&doc, userID)
	doc.UpdatedAt = s.now().UTC()

	if err := storage.PutJSON(ctx, s.storage, util.GetPreferencesPath(userID), &doc); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	s.log.Debug().
		Str("user_id", userID).
		Int("characters", len(doc.Characters)).
		Int("voice_preferences", len(doc.VoicePreferences)).
		Msg("Preferences saved")
	return nil
}

func (s *StorageStore) Update(ctx context.Context, userID string, fn func(*types.UserData) error) (*types.UserData, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	data, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(data); err != nil {
		return nil, err
	}
	if err := s.Set(ctx, userID, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *StorageStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// ValidateUserID rejects IDs that cannot be used as a single path element
func ValidateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.New(apperr.KindInvalidInput, "preferences", "user id is required")
	}
	if strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return apperr.New(apperr.KindInvalidInput, "preferences", "invalid user id").WithDetail("user_id", userID)
	}
	return nil
}

func normalize(data *types.UserData, userID string) {
	data.UserID = userID
	if data.Characters == nil {
		data.Characters = make(types.CharacterRegistry)
	}
	if data.VoicePreferences == nil {
		data.VoicePreferences = make(map[string]types.VoiceConfig)
	}
}
