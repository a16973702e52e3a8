package attribution

import (
	"testing"
	"time"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func entries(texts ...string) []Entry {
	out := make([]Entry, len(texts))
	for i, t := range texts {
		out[i] = Entry{Text: t, Box: &types.BoundingBox{X: i * 10, Y: 0, Width: 10, Height: 10}}
	}
	return out
}

func TestParseSpeaker(t *testing.T) {
	tests := []struct {
		in      string
		speaker string
		rest    string
		named   bool
	}{
		{in: "BOB: Hello there!", speaker: "BOB", rest: "Hello there!", named: true},
		{in: "Alice:   hi  ", speaker: "Alice", rest: "hi", named: true},
		{in: "  Carol:yes", speaker: "Carol", rest: "yes", named: true},
		{in: "alice: hi", rest: "alice: hi"},
		{in: "McDuck: quack", rest: "McDuck: quack"},
		{in: "Where am I?", rest: "Where am I?"},
		{in: "", rest: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			speaker, rest, named := ParseSpeaker(tt.in)
			if speaker != tt.speaker || rest != tt.rest || named != tt.named {
				t.Errorf("ParseSpeaker(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.in, speaker, rest, named, tt.speaker, tt.rest, tt.named)
			}
		})
	}
}

func TestAttributeNamedSpeakers(t *testing.T) {
	reg := NewRegistry(nil)
	units := NewAttributor(WithClock(fixedClock)).Attribute(entries("BOB: Hello there!", "Alice: Hi Bob"), reg)

	if len(units) != 2 {
		t.Fatalf("expected 2 units, got %d", len(units))
	}
	if units[0].Speaker != "BOB" || units[0].Text != "Hello there!" {
		t.Errorf("unexpected first unit %+v", units[0])
	}
	if units[1].Speaker != "Alice" || units[1].Text != "Hi Bob" {
		t.Errorf("unexpected second unit %+v", units[1])
	}
	for i, u := range units {
		if u.SequenceIndex != i || u.Status != types.UnitPending {
			t.Errorf("unit %d: index %d status %s", i, u.SequenceIndex, u.Status)
		}
		if u.SourceBox == nil {
			t.Errorf("unit %d: source box dropped", i)
		}
	}

	bob, ok := reg.Lookup("BOB")
	if !ok || bob.AppearanceCount != 1 || !bob.LastSeen.Equal(fixedNow) {
		t.Errorf("unexpected registry entry for BOB: %+v", bob)
	}
}

func TestAttributeContextHeuristic(t *testing.T) {
	initial := types.CharacterRegistry{
		"Alice": {AppearanceCount: 5, LastSeen: fixedNow.Add(-time.Hour), VoiceIndex: 0},
		"Bob":   {AppearanceCount: 2, LastSeen: fixedNow.Add(-time.Hour), VoiceIndex: 1},
	}
	reg := NewRegistry(initial)

	units := NewAttributor(WithClock(fixedClock)).Attribute(entries("Bob: Who's there?", "It's me."), reg)

	if units[1].Speaker != "Alice" {
		t.Errorf("expected guessed responder Alice, got %s", units[1].Speaker)
	}
	if units[1].Text != "It's me." {
		t.Errorf("unexpected text %q", units[1].Text)
	}

	alice, _ := reg.Lookup("Alice")
	if alice.AppearanceCount != 6 {
		t.Errorf("expected guessed responder Alice counted, got %d", alice.AppearanceCount)
	}
	if !alice.LastSeen.Equal(fixedNow) {
		t.Errorf("expected Alice last seen refreshed, got %v", alice.LastSeen)
	}
	bob, _ := reg.Lookup("Bob")
	if bob.AppearanceCount != 3 {
		t.Errorf("expected Bob count 3, got %d", bob.AppearanceCount)
	}
}

func TestAttributeGuessedResponderIsRecorded(t *testing.T) {
	reg := NewRegistry(types.CharacterRegistry{
		"Al": {AppearanceCount: 3, LastSeen: fixedNow.Add(-24 * time.Hour)},
	})

	units := NewAttributor(WithClock(fixedClock)).Attribute(entries("Bob: hi", "hey there"), reg)

	if units[0].Speaker != "Bob" || units[1].Speaker != "Al" {
		t.Fatalf("expected Bob then Al, got %q %q", units[0].Speaker, units[1].Speaker)
	}
	al, _ := reg.Lookup("Al")
	if al.AppearanceCount != 4 {
		t.Errorf("expected Al count 4, got %d", al.AppearanceCount)
	}
	if !al.LastSeen.Equal(fixedNow) {
		t.Errorf("expected Al last seen %v, got %v", fixedNow, al.LastSeen)
	}
	bob, _ := reg.Lookup("Bob")
	if bob.AppearanceCount != 1 {
		t.Errorf("expected Bob count 1, got %d", bob.AppearanceCount)
	}
}

func TestAttributeUnknown(t *testing.T) {
	collector := apperr.NewCollector()
	a := NewAttributor(WithClock(fixedClock), WithReporter(collector))

	t.Run("first line without label", func(t *testing.T) {
		units := a.Attribute(entries("Hello?"), NewRegistry(nil))
		if units[0].Speaker != types.UnknownSpeaker {
			t.Errorf("expected Unknown, got %s", units[0].Speaker)
		}
	})

	t.Run("no other character known", func(t *testing.T) {
		units := a.Attribute(entries("Bob: hi", "anyone?"), NewRegistry(nil))
		if units[1].Speaker != types.UnknownSpeaker {
			t.Errorf("expected Unknown, got %s", units[1].Speaker)
		}
	})

	t.Run("previous unknown", func(t *testing.T) {
		reg := NewRegistry(types.CharacterRegistry{"Alice": {AppearanceCount: 3}})
		units := a.Attribute(entries("...", "still nothing"), reg)
		for i, u := range units {
			if u.Speaker != types.UnknownSpeaker {
				t.Errorf("unit %d: expected Unknown, got %s", i, u.Speaker)
			}
		}
	})

	if got := collector.Count(apperr.KindAttributionAmbiguous); got != 4 {
		t.Errorf("expected 4 ambiguous reports, got %d", got)
	}
}

func TestAttributeEmptyInput(t *testing.T) {
	units := NewAttributor().Attribute(nil, NewRegistry(nil))
	if units == nil || len(units) != 0 {
		t.Errorf("expected empty slice, got %v", units)
	}
}
