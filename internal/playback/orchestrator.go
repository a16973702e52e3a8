// Package playback drives a sequential voiced playback session over a
// Timeline with pause, resume, stop and highlight synchronization.
//
// Every command and every synthesizer callback is posted to a mailbox that
// one goroutine at a time drains, so handlers never run concurrently and a
// synthesizer that reports completion synchronously cannot re-enter the
// state machine.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Callbacks are invoked by a Synthesizer as a request progresses. OnEnd and
// OnError are terminal; only the first terminal callback is honored.
type Callbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}

// Handle controls one in-flight synthesis request.
type Handle interface {
	Pause()
	Resume()
	Cancel()
}

// Synthesizer speaks one dialogue unit. A non-nil error means the request
// was never issued and no callbacks will follow.
type Synthesizer interface {
	Speak(ctx context.Context, unit types.DialogueUnit, cb Callbacks) (Handle, error)
}

// Highlighter tracks which unit is on screen.
type Highlighter interface {
	Activate(index int, box *types.BoundingBox)
	Clear()
}

// Observer receives session events.
type Observer interface {
	OnEvent(ev Event)
}

type nopHighlighter struct{}

func (nopHighlighter) Activate(int, *types.BoundingBox) {}
func (nopHighlighter) Clear()                            {}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHighlighter sets the highlight sink.
func WithHighlighter(h Highlighter) Option {
	return func(o *Orchestrator) {
		if h != nil {
			o.highlighter = h
		}
	}
}

// WithObserver adds an event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log
	}
}

// WithReporter sets where synthesis failures are reported.
func WithReporter(r apperr.Reporter) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.reporter = r
		}
	}
}

// WithContext sets the parent context for synthesis requests.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		o.ctx = ctx
	}
}

// Orchestrator owns the playback state of one session.
type Orchestrator struct {
	synth       Synthesizer
	highlighter Highlighter
	observers   []Observer
	reporter    apperr.Reporter
	log         zerolog.Logger
	ctx         context.Context
	table       transitionTable

	// mailbox
	mu       sync.Mutex
	inbox    []command
	draining bool

	// state, written only by the draining goroutine
	stateMu  sync.RWMutex
	status   Status
	index    int
	gen      uint64
	timeline types.Timeline
	handle   Handle
	cancel   context.CancelFunc
	deferred *command
}

// New creates an idle orchestrator.
func New(synth Synthesizer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		synth:       synth,
		highlighter: nopHighlighter{},
		reporter:    apperr.Discard{},
		log:         zerolog.Nop(),
		ctx:         context.Background(),
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.table = o.transitions()
	return o
}

// Start begins playback of timeline from its first unit. The timeline is
// copied with every status reset to pending. Start is ignored unless the
// session is idle or finished.
func (o *Orchestrator) Start(timeline types.Timeline) error {
	if err := timeline.Validate(); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "start", err)
	}
	o.post(command{kind: cmdStart, timeline: timeline.Clone()})
	return nil
}

// Pause suspends the in-flight request. Ignored unless playing.
func (o *Orchestrator) Pause() {
	o.post(command{kind: cmdPause})
}

// Resume continues a paused request. Ignored unless paused.
func (o *Orchestrator) Resume() {
	o.post(command{kind: cmdResume})
}

// Stop cancels playback and returns to idle. Stopping an idle session has
// no effect.
func (o *Orchestrator) Stop() {
	o.post(command{kind: cmdStop})
}

// State returns a snapshot of the session.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()

	tl := make(types.Timeline, len(o.timeline))
	copy(tl, o.timeline)
	return State{
		Status:       o.status,
		CurrentIndex: o.index,
		Generation:   o.gen,
		Timeline:     tl,
	}
}

// post enqueues c and, unless another goroutine is already draining,
// drains the mailbox on the calling goroutine.
func (o *Orchestrator) post(c command) {
	o.mu.Lock()
	o.inbox = append(o.inbox, c)
	if o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true
	for len(o.inbox) > 0 {
		next := o.inbox[0]
		o.inbox = o.inbox[1:]
		o.mu.Unlock()
		o.step(next)
		o.mu.Lock()
	}
	o.inbox = nil
	o.draining = false
	o.mu.Unlock()
}

func (o *Orchestrator) step(c command) {
	o.stateMu.RLock()
	status, gen, index := o.status, o.gen, o.index
	o.stateMu.RUnlock()

	if c.kind == cmdCompleted && (c.gen != gen || c.index != index) {
		o.log.Debug().
			Uint64("generation", c.gen).
			Int("index", c.index).
			Msg("Discarding stale completion")
		return
	}

	handler, ok := o.table[status][c.kind]
	if !ok {
		o.log.Debug().
			Str("status", string(status)).
			Str("command", c.kind.String()).
			Msg("Command not allowed in current state")
		o.emit(Event{Type: EventIgnored, Index: index, Command: c.kind.String()})
		return
	}
	handler(c)
}

func (o *Orchestrator) onStart(c command) {
	o.stateMu.Lock()
	o.gen++
	o.index = 0
	o.timeline = c.timeline
	o.deferred = nil
	empty := len(o.timeline) == 0
	if empty {
		o.status = StatusFinished
	} else {
		o.status = StatusPlaying
	}
	o.stateMu.Unlock()

	o.log.Info().Int("units", len(c.timeline)).Msg("Playback started")
	o.emit(Event{Type: EventStarted})
	if empty {
		o.highlighter.Clear()
		o.emit(Event{Type: EventFinished})
		return
	}
	o.requestCurrent()
}

// requestCurrent issues the synthesis request for the current unit and
// moves the highlight onto it.
func (o *Orchestrator) requestCurrent() {
	o.stateMu.Lock()
	gen, idx := o.gen, o.index
	if o.timeline[idx].Status.CanAdvanceTo(types.UnitSpeaking) {
		o.timeline[idx].Status = types.UnitSpeaking
	}
	unit := o.timeline[idx]
	ctx, cancel := context.WithCancel(o.ctx)
	o.cancel = cancel
	o.handle = nil
	o.stateMu.Unlock()

	o.highlighter.Activate(idx, unit.SourceBox)
	o.emit(Event{Type: EventUnitRequested, Index: idx})

	var once sync.Once
	complete := func(err error) {
		once.Do(func() {
			o.post(command{kind: cmdCompleted, gen: gen, index: idx, err: err})
		})
	}
	cb := Callbacks{
		OnStart: func() {
			o.log.Debug().Int("index", idx).Msg("Synthesis started")
		},
		OnEnd: func() { complete(nil) },
		OnError: func(err error) {
			if err == nil {
				err = fmt.Errorf("synthesis failed")
			}
			complete(err)
		},
	}

	handle, err := o.synth.Speak(ctx, unit, cb)
	if err != nil {
		cancel()
		complete(err)
		return
	}

	o.stateMu.Lock()
	if o.gen == gen && o.index == idx {
		o.handle = handle
	}
	o.stateMu.Unlock()
}

func (o *Orchestrator) onCompleted(c command) {
	o.stateMu.Lock()
	idx := o.index
	next := types.UnitDone
	if c.err != nil {
		next = types.UnitFailed
	}
	if o.timeline[idx].Status.CanAdvanceTo(next) {
		o.timeline[idx].Status = next
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.handle = nil
	o.index++
	finished := o.index == len(o.timeline)
	if finished {
		o.status = StatusFinished
	}
	o.stateMu.Unlock()

	if c.err != nil {
		o.reporter.Report(apperr.SynthesisFailed(idx, c.err))
		o.emit(Event{Type: EventUnitFailed, Index: idx, Error: c.err.Error()})
	} else {
		o.emit(Event{Type: EventUnitCompleted, Index: idx})
	}

	if finished {
		o.highlighter.Clear()
		o.log.Info().Int("units", len(o.timeline)).Msg("Playback finished")
		o.emit(Event{Type: EventFinished, Index: idx})
		return
	}
	o.requestCurrent()
}

// onCompletedWhilePaused holds the completion until the session resumes.
func (o *Orchestrator) onCompletedWhilePaused(c command) {
	o.stateMu.Lock()
	o.deferred = &c
	o.stateMu.Unlock()
}

func (o *Orchestrator) onPause(command) {
	o.stateMu.Lock()
	o.status = StatusPaused
	handle, idx := o.handle, o.index
	o.stateMu.Unlock()

	if handle != nil {
		handle.Pause()
	}
	o.emit(Event{Type: EventPaused, Index: idx})
}

func (o *Orchestrator) onResume(command) {
	o.stateMu.Lock()
	o.status = StatusPlaying
	handle, idx := o.handle, o.index
	deferred := o.deferred
	o.deferred = nil
	o.stateMu.Unlock()

	if handle != nil {
		handle.Resume()
	}
	o.emit(Event{Type: EventResumed, Index: idx})
	if deferred != nil {
		o.onCompleted(*deferred)
	}
}

func (o *Orchestrator) onStop(command) {
	o.stateMu.Lock()
	o.gen++
	handle, cancel := o.handle, o.cancel
	if o.index < len(o.timeline) && o.timeline[o.index].Status == types.UnitSpeaking {
		o.timeline[o.index].Status = types.UnitFailed
	}
	o.handle = nil
	o.cancel = nil
	o.deferred = nil
	o.index = 0
	o.status = StatusIdle
	o.stateMu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if cancel != nil {
		cancel()
	}
	o.highlighter.Clear()
	o.log.Info().Msg("Playback stopped")
	o.emit(Event{Type: EventStopped})
}

func (o *Orchestrator) emit(ev Event) {
	o.stateMu.RLock()
	ev.Generation = o.gen
	ev.Status = o.status
	o.stateMu.RUnlock()
	ev.Time = time.Now()

	for _, obs := range o.observers {
		obs.OnEvent(ev)
	}
}
