package health

import (
	"context"
	"fmt"
)

// Exister is the part of a storage adapter a health check needs.
type Exister interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// StorageCheck reports unhealthy when the store cannot be reached.
func StorageCheck(p Exister) CheckFunc {
	return func(ctx context.Context) (Status, error) {
		if _, err := p.Exists(ctx, ".healthcheck"); err != nil {
			return StatusUnhealthy, err
		}
		return StatusHealthy, nil
	}
}

// BackendCheck reports degraded when resolve fails. A missing backend still
// lets the process serve stored timelines and preferences.
func BackendCheck(name string, resolve func(ctx context.Context) error) CheckFunc {
	return func(ctx context.Context) (Status, error) {
		if err := resolve(ctx); err != nil {
			return StatusDegraded, fmt.Errorf("%s backend unavailable: %w", name, err)
		}
		return StatusHealthy, nil
	}
}
