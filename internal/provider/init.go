package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/unalkalkan/PanelReader/internal/apperr"
)

// ResolveOCR returns the first usable recognizer among primary and fallback.
// Each candidate gets at most timeout to initialize. When none comes up the
// error is a BackendInitFailure.
func (r *Registry) ResolveOCR(ctx context.Context, primary, fallback string, timeout time.Duration) (OCRProvider, error) {
	return resolve(ctx, r, "recognition", primary, fallback, timeout, r.GetOCR)
}

// ResolveTTS returns the first usable synthesizer among primary and fallback.
func (r *Registry) ResolveTTS(ctx context.Context, primary, fallback string, timeout time.Duration) (TTSProvider, error) {
	return resolve(ctx, r, "synthesis", primary, fallback, timeout, r.GetTTS)
}

func resolve[P any](ctx context.Context, r *Registry, backend, primary, fallback string, timeout time.Duration, get func(string) (P, error)) (P, error) {
	var zero P
	candidates := []string{primary}
	if fallback != "" && fallback != primary {
		candidates = append(candidates, fallback)
	}

	var lastErr error
	for i, name := range candidates {
		if name == "" {
			lastErr = fmt.Errorf("no %s provider configured", backend)
			continue
		}
		p, err := get(name)
		if err != nil {
			lastErr = err
			continue
		}
		if err := r.initOnce(ctx, backend+"/"+name, p, timeout); err != nil {
			r.log.Warn().
				Err(err).
				Str("backend", backend).
				Str("provider", name).
				Msg("Backend initialization failed")
			lastErr = err
			continue
		}
		if i > 0 {
			r.log.Warn().
				Str("backend", backend).
				Str("provider", name).
				Str("primary", primary).
				Msg("Using fallback provider")
		}
		return p, nil
	}
	return zero, apperr.BackendInitFailed(backend, primary, lastErr)
}

// initOnce runs Init for providers that implement Initializer, bounded by
// timeout, and remembers success.
func (r *Registry) initOnce(ctx context.Context, key string, p any, timeout time.Duration) error {
	in, ok := p.(Initializer)
	if !ok {
		return nil
	}

	r.mu.RLock()
	ready := r.ready[key]
	r.mu.RUnlock()
	if ready {
		return nil
	}

	if err := initWithTimeout(ctx, in, timeout); err != nil {
		return err
	}

	r.mu.Lock()
	r.ready[key] = true
	r.mu.Unlock()
	return nil
}

// initWithTimeout returns once Init finishes or the timeout elapses,
// whichever comes first, even if Init ignores its context.
func initWithTimeout(ctx context.Context, in Initializer, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- in.Init(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("initialization timed out after %s: %w", timeout, ctx.Err())
	}
}
