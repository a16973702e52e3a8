// Package attribution labels each line of bubble text with its speaker and
// keeps the per-user character registry current.
package attribution

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// speakerPrefix matches a leading "Name:" or "NAME:" label.
var speakerPrefix = regexp.MustCompile(`^([A-Z][a-z]+|[A-Z]+):`)

// Entry is one region's text in reading order.
type Entry struct {
	Box  *types.BoundingBox
	Text string
}

// Attributor assigns speakers to entries.
type Attributor struct {
	reporter apperr.Reporter
	log      zerolog.Logger
	now      func() time.Time
}

// Option configures an Attributor.
type Option func(*Attributor)

// WithReporter sets where ambiguous attributions are reported.
func WithReporter(r apperr.Reporter) Option {
	return func(a *Attributor) {
		a.reporter = r
	}
}

// WithLogger sets the attributor's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Attributor) {
		a.log = log
	}
}

// WithClock overrides the time source used for LastSeen.
func WithClock(now func() time.Time) Option {
	return func(a *Attributor) {
		a.now = now
	}
}

// NewAttributor creates an attributor.
func NewAttributor(opts ...Option) *Attributor {
	a := &Attributor{
		reporter: apperr.Discard{},
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attribute turns entries into dialogue units, one per entry and in the
// same order, and records every speaker other than Unknown in reg. Units come back
// with sequence indexes set, status Pending and no voice.
func (a *Attributor) Attribute(entries []Entry, reg *Registry) []types.DialogueUnit {
	units := make([]types.DialogueUnit, 0, len(entries))
	now := a.now()
	previous := types.UnknownSpeaker

	for i, e := range entries {
		speaker, text, named := ParseSpeaker(e.Text)
		switch {
		case named:
			speaker = reg.Record(speaker, now)
		case previous != types.UnknownSpeaker:
			if guess, ok := reg.MostFrequentExcept(previous); ok {
				speaker = reg.Record(guess, now)
			} else {
				speaker = types.UnknownSpeaker
			}
		default:
			speaker = types.UnknownSpeaker
		}

		if speaker == types.UnknownSpeaker {
			a.reporter.Report(apperr.AttributionAmbiguous(i))
		}

		var box *types.BoundingBox
		if e.Box != nil {
			b := *e.Box
			box = &b
		}
		units = append(units, types.DialogueUnit{
			SequenceIndex: i,
			Speaker:       speaker,
			Text:          text,
			SourceBox:     box,
			Status:        types.UnitPending,
		})
		previous = speaker
	}

	a.log.Debug().
		Int("units", len(units)).
		Int("characters", reg.Len()).
		Msg("Attribution pass complete")
	return units
}

// ParseSpeaker splits a leading speaker label off text. When no label is
// present the trimmed text is returned with named=false.
func ParseSpeaker(text string) (speaker, rest string, named bool) {
	text = strings.TrimSpace(text)
	m := speakerPrefix.FindStringSubmatch(text)
	if m == nil {
		return "", text, false
	}
	return m[1], strings.TrimSpace(text[len(m[0]):]), true
}
