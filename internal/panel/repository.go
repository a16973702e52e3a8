package panel

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/pipeline"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/util"
)

// Record is a pipeline pass kept for later replay
type Record struct {
	*pipeline.Result
	UserID    string    `json:"user_id"`
	Filename  string    `json:"filename,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository handles persistence of processed panels
type Repository interface {
	// SaveRecord stores the result of a pass, keyed by its pass ID
	SaveRecord(ctx context.Context, rec *Record) error

	// GetRecord retrieves a stored pass
	GetRecord(ctx context.Context, passID string) (*Record, error)

	// ListRecords returns stored passes, newest first. An empty userID lists
	// every user's passes.
	ListRecords(ctx context.Context, userID string) ([]*Record, error)

	// DeleteRecord removes a pass and its image
	DeleteRecord(ctx context.Context, passID string) error

	// SaveImage stores the panel image a pass ran on
	SaveImage(ctx context.Context, passID string, data []byte) error

	// GetImage retrieves the stored panel image
	GetImage(ctx context.Context, passID string) ([]byte, error)
}

// StorageRepository implements Repository using a storage adapter
type StorageRepository struct {
	storage storage.Adapter
}

// NewRepository creates a new panel repository
func NewRepository(storageAdapter storage.Adapter) Repository {
	return &StorageRepository{
		storage: storageAdapter,
	}
}

// SaveRecord stores the result of a pass
func (r *StorageRepository) SaveRecord(ctx context.Context, rec *Record) error {
	if rec == nil || rec.Result == nil || rec.PassID == "" {
		return apperr.New(apperr.KindInvalidInput, "panel.save", "record has no pass ID")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if err := storage.PutJSON(ctx, r.storage, util.GetPanelPath(rec.PassID), rec); err != nil {
		return fmt.Errorf("failed to save panel %s: %w", rec.PassID, err)
	}
	return nil
}

// GetRecord retrieves a stored pass by ID
func (r *StorageRepository) GetRecord(ctx context.Context, passID string) (*Record, error) {
	var rec Record
	if err := storage.GetJSON(ctx, r.storage, util.GetPanelPath(passID), &rec); err != nil {
		return nil, notFound("panel.get", passID, err)
	}
	return &rec, nil
}

// ListRecords returns stored passes, newest first
func (r *StorageRepository) ListRecords(ctx context.Context, userID string) ([]*Record, error) {
	paths, err := r.storage.List(ctx, "panels/")
	if err != nil {
		return nil, fmt.Errorf("failed to list panels: %w", err)
	}

	records := make([]*Record, 0)
	for _, p := range paths {
		if path.Base(p) != "result.json" {
			continue
		}

		var rec Record
		if err := storage.GetJSON(ctx, r.storage, p, &rec); err != nil {
			continue // Skip records that can't be read
		}
		if userID != "" && rec.UserID != userID {
			continue
		}
		records = append(records, &rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteRecord removes a pass and its image
func (r *StorageRepository) DeleteRecord(ctx context.Context, passID string) error {
	if _, err := r.GetRecord(ctx, passID); err != nil {
		return err
	}
	for _, p := range []string{util.GetPanelImagePath(passID), util.GetPanelPath(passID)} {
		if err := r.storage.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

// SaveImage stores the uploaded panel image
func (r *StorageRepository) SaveImage(ctx context.Context, passID string, data []byte) error {
	return storage.PutBytes(ctx, r.storage, util.GetPanelImagePath(passID), data)
}

// GetImage retrieves the uploaded panel image
func (r *StorageRepository) GetImage(ctx context.Context, passID string) ([]byte, error) {
	data, err := storage.GetBytes(ctx, r.storage, util.GetPanelImagePath(passID))
	if err != nil {
		return nil, notFound("panel.image", passID, err)
	}
	return data, nil
}

func notFound(op, passID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.New(apperr.KindNotFound, op, "panel not found").WithDetail("pass_id", passID)
	}
	return err
}
