package apperr

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one structured failure report.
type Event struct {
	Kind    Kind           `json:"kind"`
	Op      string         `json:"op"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Time    time.Time      `json:"time"`
}

// EventFrom converts an error into a reportable event.
func EventFrom(err *Error) Event {
	msg := err.Message
	if msg == "" && err.Cause != nil {
		msg = err.Cause.Error()
	}
	return Event{
		Kind:    err.Kind,
		Op:      err.Op,
		Message: msg,
		Details: err.Details,
		Time:    time.Now(),
	}
}

// Reporter receives failure events.
type Reporter interface {
	Report(err *Error)
}

// LogReporter writes every event to a zerolog logger.
type LogReporter struct {
	log zerolog.Logger
}

// NewLogReporter creates a reporter backed by log.
func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

// Report logs the failure at a level matching its severity.
func (r *LogReporter) Report(err *Error) {
	var ev *zerolog.Event
	switch {
	case err.Kind.Fatal():
		ev = r.log.Error()
	case err.Kind == KindDetectionEmpty || err.Kind == KindAttributionAmbiguous:
		ev = r.log.Debug()
	default:
		ev = r.log.Warn()
	}
	ev = ev.Str("kind", string(err.Kind)).Str("op", err.Op)
	if len(err.Details) > 0 {
		ev = ev.Fields(err.Details)
	}
	if err.Cause != nil {
		ev = ev.AnErr("cause", err.Cause)
	}
	ev.Msg(err.Message)
}

// Collector keeps reported events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report stores the event.
func (c *Collector) Report(err *Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, EventFrom(err))
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Count returns how many events of kind were collected.
func (c *Collector) Count(kind Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Multi fans a report out to several reporters.
type Multi []Reporter

// Report forwards err to every non-nil reporter.
func (m Multi) Report(err *Error) {
	for _, r := range m {
		if r != nil {
			r.Report(err)
		}
	}
}

// Discard drops every report.
type Discard struct{}

// Report does nothing.
func (Discard) Report(*Error) {}
