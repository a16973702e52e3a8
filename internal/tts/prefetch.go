package tts

import (
	"context"
	"strings"
	"time"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// PrefetchResult counts what a prefetch pass did
type PrefetchResult struct {
	Synthesized int           `json:"synthesized"`
	Cached      int           `json:"cached"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Cancelled   bool          `json:"cancelled"`
	Duration    time.Duration `json:"duration"`
}

// Prefetch synthesizes the units of timeline in order, ahead of playback.
// Requests share the synthesizer's single provider slot with Speak, so a
// session never has more than one provider call in flight. Units already
// cached are not requested again and units without text are skipped.
// Failures are reported and left for Speak to retry. The pass ends early
// when ctx is done.
func (s *Synthesizer) Prefetch(ctx context.Context, timeline types.Timeline, reporter apperr.Reporter) PrefetchResult {
	if reporter == nil {
		reporter = apperr.Discard{}
	}

	started := time.Now()
	var res PrefetchResult
	for _, unit := range timeline {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		if strings.TrimSpace(unit.Text) == "" {
			res.Skipped++
			continue
		}
		p, err := s.providerFor(unit.Voice)
		if err != nil {
			res.Failed++
			reporter.Report(apperr.SynthesisFailed(unit.SequenceIndex, err))
			continue
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		}
		log := s.log.With().Int("index", unit.SequenceIndex).Str("provider", p.Name()).Logger()
		_, cached, err := s.fetch(callCtx, p, unit, log)
		cancel()

		switch {
		case err != nil && ctx.Err() != nil:
			res.Cancelled = true
		case err != nil:
			log.Warn().Err(err).Msg("Prefetch failed")
			reporter.Report(apperr.SynthesisFailed(unit.SequenceIndex, err))
			res.Failed++
		case cached:
			res.Cached++
		default:
			res.Synthesized++
		}
		if res.Cancelled {
			break
		}
	}

	res.Duration = time.Since(started)
	s.log.Debug().
		Int("synthesized", res.Synthesized).
		Int("cached", res.Cached).
		Int("failed", res.Failed).
		Bool("cancelled", res.Cancelled).
		Dur("took", res.Duration).
		Msg("Prefetch complete")
	return res
}
