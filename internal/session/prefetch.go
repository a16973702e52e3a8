package session

import (
	"context"
	"sync"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/internal/tts"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// prefetcher runs one synthesizer prefetch per playback start. A run ends
// when playback stops or finishes, when the next start replaces it, or when
// the session context ends.
type prefetcher struct {
	parent   context.Context
	synth    *tts.Synthesizer
	reporter apperr.Reporter
	timeline func() types.Timeline

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// OnEvent implements playback.Observer.
func (p *prefetcher) OnEvent(ev playback.Event) {
	switch ev.Type {
	case playback.EventStarted:
		p.start(p.timeline())
	case playback.EventStopped, playback.EventFinished:
		p.halt()
	}
}

func (p *prefetcher) start(timeline types.Timeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.haltLocked()

	ctx, cancel := context.WithCancel(p.parent)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	go func() {
		defer close(done)
		p.synth.Prefetch(ctx, timeline, p.reporter)
	}()
}

// halt cancels the running pass and waits for it to return, so no provider
// call is issued for the old run once halt returns.
func (p *prefetcher) halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.haltLocked()
}

func (p *prefetcher) haltLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
}
