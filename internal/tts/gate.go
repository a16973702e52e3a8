package tts

import (
	"context"
	"sync"
)

// Gate blocks waiters while closed. A paused request closes its gate.
type Gate struct {
	mu   sync.Mutex
	open bool
	wake chan struct{}
}

// NewGate returns an open gate.
func NewGate() *Gate {
	return &Gate{open: true, wake: make(chan struct{})}
}

// Open releases all waiters.
func (g *Gate) Open() {
	g.set(true)
}

// Close makes subsequent waits block until Open.
func (g *Gate) Close() {
	g.set(false)
}

func (g *Gate) set(open bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open == open {
		return
	}
	g.open = open
	close(g.wake)
	g.wake = make(chan struct{})
}

// IsOpen reports the current state.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// snapshot returns the state and a channel closed on the next change.
func (g *Gate) snapshot() (bool, <-chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open, g.wake
}

// Wait returns once the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		open, changed := g.snapshot()
		if open {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
