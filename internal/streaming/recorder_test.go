package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder("sess1", 0)

	box := &types.BoundingBox{X: 1, Y: 2, Width: 3, Height: 4}
	r.OnEvent(playback.Event{Type: playback.EventStarted, Status: playback.StatusPlaying})
	r.Activate(0, box)
	box.X = 99
	r.OnEvent(playback.Event{Type: playback.EventUnitCompleted, Index: 0, Status: playback.StatusPlaying})
	r.Clear()

	items := r.Events(0)
	if len(items) != 4 {
		t.Fatalf("Expected 4 items, got %d", len(items))
	}
	for i, it := range items {
		if it.Seq != i+1 {
			t.Errorf("Item %d: expected seq %d, got %d", i, i+1, it.Seq)
		}
	}
	if items[1].Kind != KindHighlight || items[1].Highlight.Box.X != 1 {
		t.Errorf("Expected copied highlight box, got %+v", items[1].Highlight)
	}
	if items[2].AudioURL != "/api/v1/sessions/sess1/audio/0" {
		t.Errorf("Unexpected audio URL %q", items[2].AudioURL)
	}
	if items[0].AudioURL != "" {
		t.Errorf("Expected no audio URL on start event, got %q", items[0].AudioURL)
	}
	if cur := r.Current(); cur.Active || cur.Index != -1 {
		t.Errorf("Expected cleared highlight, got %+v", cur)
	}

	if after := r.Events(3); len(after) != 1 || after[0].Kind != KindHighlight {
		t.Errorf("Expected only the clear item after seq 3, got %+v", after)
	}
}

func TestRecorderLimit(t *testing.T) {
	r := NewRecorder("s", 3)
	for i := 0; i < 5; i++ {
		r.OnEvent(playback.Event{Type: playback.EventUnitRequested, Index: i})
	}
	items := r.Events(0)
	if len(items) != 3 || items[0].Seq != 3 || items[2].Seq != 5 {
		t.Errorf("Expected the newest 3 items, got %+v", items)
	}
}

func TestRecorderWait(t *testing.T) {
	r := NewRecorder("s", 0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.OnEvent(playback.Event{Type: playback.EventFinished})
	}()
	items, err := r.Wait(context.Background(), 0)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(items) != 1 || items[0].Event.Type != playback.EventFinished {
		t.Errorf("Unexpected items %+v", items)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Wait(ctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestRecorderFollowsPlayback(t *testing.T) {
	r := NewRecorder("s", 0)
	o := playback.New(instantSynth{}, playback.WithObserver(r), playback.WithHighlighter(r))

	timeline := types.Timeline{
		{SequenceIndex: 0, Speaker: "Bob", Text: "hi", SourceBox: &types.BoundingBox{Width: 10, Height: 10}},
		{SequenceIndex: 1, Speaker: "Al", Text: "yo"},
	}
	if err := o.Start(timeline); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var highlights []int
	for _, it := range r.Events(0) {
		if it.Kind == KindHighlight && it.Highlight.Active {
			highlights = append(highlights, it.Highlight.Index)
		}
	}
	if len(highlights) != 2 || highlights[0] != 0 || highlights[1] != 1 {
		t.Errorf("Expected highlight sequence [0 1], got %v", highlights)
	}
	finished := false
	for _, it := range r.Events(0) {
		if it.Kind == KindEvent && it.Event.Type == playback.EventFinished {
			finished = true
		}
	}
	if !finished {
		t.Error("Expected a finished event in the stream")
	}
}

func TestEncodeNDJSON(t *testing.T) {
	items := []Item{
		{Seq: 1, Kind: KindEvent, Event: &playback.Event{Type: playback.EventStarted}},
		{Seq: 2, Kind: KindHighlight, Highlight: &Highlight{Active: true, Index: 0}},
	}
	data, err := EncodeNDJSON(items)
	if err != nil {
		t.Fatalf("EncodeNDJSON failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	var decoded Item
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("Failed to decode line: %v", err)
	}
	if decoded.Seq != 2 || decoded.Highlight == nil || !decoded.Highlight.Active {
		t.Errorf("Unexpected decoded item %+v", decoded)
	}
	if empty, _ := EncodeNDJSON(nil); len(empty) != 0 {
		t.Errorf("Expected empty output, got %q", empty)
	}
}

// instantSynth completes every unit before Speak returns.
type instantSynth struct{}

func (instantSynth) Speak(ctx context.Context, unit types.DialogueUnit, cb playback.Callbacks) (playback.Handle, error) {
	if cb.OnStart != nil {
		cb.OnStart()
	}
	if cb.OnEnd != nil {
		cb.OnEnd()
	}
	return nopHandle{}, nil
}

type nopHandle struct{}

func (nopHandle) Pause()  {}
func (nopHandle) Resume() {}
func (nopHandle) Cancel() {}
