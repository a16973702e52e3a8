// Package streaming records a playback session's events and highlight
// changes so clients can follow along as NDJSON.
package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// DefaultLimit is how many items a recorder retains.
const DefaultLimit = 1000

// Item kinds
const (
	KindEvent     = "event"
	KindHighlight = "highlight"
)

// Highlight is the on-page highlight state after a change.
type Highlight struct {
	Active bool               `json:"active"`
	Index  int                `json:"index"`
	Box    *types.BoundingBox `json:"bounding_box,omitempty"`
}

// Item is one line of the session stream.
type Item struct {
	Seq       int             `json:"seq"`
	Kind      string          `json:"kind"`
	Event     *playback.Event `json:"event,omitempty"`
	Highlight *Highlight      `json:"highlight,omitempty"`
	AudioURL  string          `json:"audio_url,omitempty"`
	Time      time.Time       `json:"time"`
}

// Recorder implements playback.Observer and playback.Highlighter.
type Recorder struct {
	sessionID string
	limit     int

	mu      sync.Mutex
	items   []Item
	seq     int
	current Highlight
	wake    chan struct{}
}

// NewRecorder creates a recorder for one session. limit <= 0 uses DefaultLimit.
func NewRecorder(sessionID string, limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Recorder{
		sessionID: sessionID,
		limit:     limit,
		current:   Highlight{Index: -1},
		wake:      make(chan struct{}),
	}
}

// OnEvent records a session event.
func (r *Recorder) OnEvent(ev playback.Event) {
	item := Item{Kind: KindEvent, Event: &ev, Time: ev.Time}
	if ev.Type == playback.EventUnitCompleted {
		item.AudioURL = AudioURL(r.sessionID, ev.Index)
	}
	r.append(item)
}

// Activate records the highlight moving to index.
func (r *Recorder) Activate(index int, box *types.BoundingBox) {
	var b *types.BoundingBox
	if box != nil {
		copied := *box
		b = &copied
	}
	r.setHighlight(Highlight{Active: true, Index: index, Box: b})
}

// Clear records the highlight being removed.
func (r *Recorder) Clear() {
	r.setHighlight(Highlight{Index: -1})
}

func (r *Recorder) setHighlight(h Highlight) {
	r.mu.Lock()
	r.current = h
	r.mu.Unlock()

	r.append(Item{Kind: KindHighlight, Highlight: &h, Time: time.Now()})
}

func (r *Recorder) append(item Item) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	item.Seq = r.seq
	r.items = append(r.items, item)
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append(r.items[:0:0], r.items[over:]...)
	}
	close(r.wake)
	r.wake = make(chan struct{})
}

// Current returns the highlight state.
func (r *Recorder) Current() Highlight {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Events returns retained items with Seq greater than after.
func (r *Recorder) Events(after int) []Item {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Item, 0, len(r.items))
	for _, it := range r.items {
		if it.Seq > after {
			out = append(out, it)
		}
	}
	return out
}

// Wait blocks until an item newer than after exists or ctx is done, then
// returns the newer items.
func (r *Recorder) Wait(ctx context.Context, after int) ([]Item, error) {
	for {
		r.mu.Lock()
		latest, wake := r.seq, r.wake
		r.mu.Unlock()
		if latest > after {
			return r.Events(after), nil
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// AudioURL is where the API serves a unit's clip.
func AudioURL(sessionID string, index int) string {
	return fmt.Sprintf("/api/v1/sessions/%s/audio/%d", sessionID, index)
}

// EncodeNDJSON encodes items one JSON object per line.
func EncodeNDJSON(items []Item) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, fmt.Errorf("failed to marshal item: %w", err)
		}
	}
	return buf.Bytes(), nil
}
