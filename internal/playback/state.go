package playback

import (
	"time"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Status is the session-level playback status.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// State is a point-in-time snapshot of a session.
type State struct {
	Status       Status         `json:"status"`
	CurrentIndex int            `json:"current_index"`
	Generation   uint64         `json:"generation"`
	Timeline     types.Timeline `json:"timeline"`
}

// EventType names a session event.
type EventType string

const (
	EventStarted       EventType = "started"
	EventUnitRequested EventType = "unit_requested"
	EventUnitCompleted EventType = "unit_completed"
	EventUnitFailed    EventType = "unit_failed"
	EventPaused        EventType = "paused"
	EventResumed       EventType = "resumed"
	EventStopped       EventType = "stopped"
	EventFinished      EventType = "finished"
	EventIgnored       EventType = "ignored"
)

// Event is emitted to observers after every state change.
type Event struct {
	Type       EventType `json:"type"`
	Index      int       `json:"index"`
	Generation uint64    `json:"generation"`
	Status     Status    `json:"status"`
	Command    string    `json:"command,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// commandKind is an input to the state machine.
type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdCompleted
)

func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdStop:
		return "stop"
	case cmdCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// command is one mailbox entry. Completions carry the generation and index
// captured when the synthesis request was issued.
type command struct {
	kind     commandKind
	timeline types.Timeline
	gen      uint64
	index    int
	err      error
}

// transitionTable maps the current status and an incoming command to the
// handler that applies it. Pairs missing from the table are ignored.
type transitionTable map[Status]map[commandKind]func(command)

func (o *Orchestrator) transitions() transitionTable {
	return transitionTable{
		StatusIdle: {
			cmdStart: o.onStart,
		},
		StatusPlaying: {
			cmdCompleted: o.onCompleted,
			cmdPause:     o.onPause,
			cmdStop:      o.onStop,
		},
		StatusPaused: {
			cmdCompleted: o.onCompletedWhilePaused,
			cmdResume:    o.onResume,
			cmdStop:      o.onStop,
		},
		StatusFinished: {
			cmdStart: o.onStart,
			cmdStop:  o.onStop,
		},
	}
}
