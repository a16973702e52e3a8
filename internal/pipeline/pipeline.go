// Package pipeline runs one detection and attribution pass over a panel
// image and produces a voiced Timeline ready for playback.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/apperr"
	"github.com/unalkalkan/PanelReader/internal/association"
	"github.com/unalkalkan/PanelReader/internal/attribution"
	"github.com/unalkalkan/PanelReader/internal/detection"
	"github.com/unalkalkan/PanelReader/internal/imaging"
	"github.com/unalkalkan/PanelReader/internal/preferences"
	"github.com/unalkalkan/PanelReader/internal/provider"
	"github.com/unalkalkan/PanelReader/internal/voice"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

// Recognition modes
const (
	ModeFull   = "full"
	ModeRegion = "region"
)

// DefaultRegionWorkers bounds concurrent recognition calls in region mode.
const DefaultRegionWorkers = 4

// Result is the outcome of one pass.
type Result struct {
	PassID   string         `json:"pass_id"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Regions  []types.Region `json:"regions"`
	Timeline types.Timeline `json:"timeline"`
	Provider string         `json:"recognition_provider"`
	Events   []apperr.Event `json:"events"`
	Duration time.Duration  `json:"duration_ns"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReporter adds a reporter that sees every pass's failures.
func WithReporter(r apperr.Reporter) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.reporter = r
		}
	}
}

// WithClock sets the time source used for registry updates.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRegionWorkers sets the region mode concurrency.
func WithRegionWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// Pipeline wires detection, recognition, association, attribution and
// voice resolution together.
type Pipeline struct {
	recognition types.RecognitionConfig
	settings    types.PipelineConfig
	rtl         bool

	providers *provider.Registry
	prefs     preferences.Store
	detector  *detection.Detector
	resolver  *voice.Resolver
	reporter  apperr.Reporter
	log       zerolog.Logger
	now       func() time.Time
	workers   int
}

// New creates a pipeline from the process configuration. prefs may be nil,
// in which case every pass starts from an empty registry and nothing is saved.
func New(cfg *types.Config, providers *provider.Registry, prefs preferences.Store, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		recognition: cfg.Recognition,
		settings:    cfg.Pipeline,
		rtl:         strings.EqualFold(cfg.Detection.ReadingDirection, "rtl"),
		providers:   providers,
		prefs:       prefs,
		detector:    detection.NewDetector(detection.OptionsFromConfig(cfg.Detection)),
		resolver:    voice.NewResolver(cfg.Voice),
		reporter:    apperr.Discard{},
		log:         log.With().Str("component", "pipeline").Logger(),
		now:         time.Now,
		workers:     DefaultRegionWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run decodes data and processes it for userID.
func (p *Pipeline) Run(ctx context.Context, data []byte, userID string) (*Result, error) {
	img, format, err := imaging.Decode(data)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "decode", err)
	}
	p.log.Debug().Str("format", format).Int("bytes", len(data)).Msg("Image decoded")
	return p.run(ctx, img, data, userID)
}

// RunImage processes an already decoded image for userID.
func (p *Pipeline) RunImage(ctx context.Context, img image.Image, userID string) (*Result, error) {
	if img == nil {
		return nil, apperr.New(apperr.KindInvalidInput, "run", "image is required")
	}
	return p.run(ctx, img, nil, userID)
}

func (p *Pipeline) run(ctx context.Context, img image.Image, encoded []byte, userID string) (*Result, error) {
	if err := preferences.ValidateUserID(userID); err != nil {
		return nil, err
	}
	started := time.Now()
	bounds := img.Bounds()
	res := &Result{
		PassID:   uuid.NewString(),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Timeline: types.Timeline{},
	}
	log := p.log.With().Str("pass_id", res.PassID).Str("user_id", userID).Logger()

	collector := apperr.NewCollector()
	reporter := apperr.Multi{collector, p.reporter}
	defer func() {
		res.Events = collector.Events()
		res.Duration = time.Since(started)
	}()

	ocr, err := p.providers.ResolveOCR(ctx, p.recognition.Provider, p.recognition.Fallback, millis(p.recognition.InitTimeoutMs))
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			reporter.Report(ae)
		}
		return nil, err
	}
	res.Provider = ocr.Name()

	regions := detection.SortReadingOrder(p.detector.Detect(img), p.rtl)
	res.Regions = regions
	log.Debug().Int("regions", len(regions)).Msg("Detection complete")
	if len(regions) == 0 {
		reporter.Report(apperr.DetectionEmpty(res.Width, res.Height))
		return res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var texts []association.RegionText
	if strings.EqualFold(p.recognition.Mode, ModeRegion) {
		texts = p.recognizeRegions(ctx, ocr, img, regions, reporter, log)
	} else {
		texts, err = p.recognizeFull(ctx, ocr, img, encoded, regions, reporter, log)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries := make([]attribution.Entry, 0, len(texts))
	for _, rt := range texts {
		if p.settings.SkipEmptyRegions && rt.Text == "" {
			continue
		}
		box := rt.Region.Box
		entries = append(entries, attribution.Entry{Box: &box, Text: rt.Text})
	}

	attributor := attribution.NewAttributor(
		attribution.WithReporter(reporter),
		attribution.WithLogger(log),
		attribution.WithClock(p.now),
	)
	attribute := func(d *types.UserData) {
		reg := attribution.NewRegistry(d.Characters)
		timeline := types.Timeline(attributor.Attribute(entries, reg))
		d.Characters = reg.Snapshot()
		p.resolver.Apply(timeline, d)
		res.Timeline = timeline
	}

	if p.prefs == nil {
		attribute(types.NewUserData(userID))
	} else {
		_, err := p.prefs.Update(ctx, userID, func(d *types.UserData) error {
			attribute(d)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update character registry: %w", err)
		}
	}

	res.Timeline.Reindex()
	log.Info().
		Int("regions", len(regions)).
		Int("units", len(res.Timeline)).
		Int("failures", len(collector.Events())).
		Dur("took", time.Since(started)).
		Msg("Pass complete")
	return res, nil
}

// recognizeFull makes one recognition call over the whole image. A failed
// call leaves every region with empty text.
func (p *Pipeline) recognizeFull(ctx context.Context, ocr provider.OCRProvider, img image.Image, encoded []byte, regions []types.Region, reporter apperr.Reporter, log zerolog.Logger) ([]association.RegionText, error) {
	if encoded == nil {
		var err error
		if encoded, err = imaging.EncodePNG(img); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	b := img.Bounds()
	resp, err := ocr.ExtractText(callCtx, provider.OCRRequest{
		ImageData: encoded,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Language:  strings.Join(p.recognition.Languages, "+"),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Recognition failed")
		for _, r := range regions {
			reporter.Report(apperr.RecognitionFailed(r.ID, err))
		}
		return association.Associate(regions, nil), nil
	}

	// fragments are reported relative to the image's own origin
	fragments := resp.Fragments
	if b.Min != (image.Point{}) {
		fragments = make([]types.TextFragment, len(resp.Fragments))
		for i, f := range resp.Fragments {
			f.Box.X += b.Min.X
			f.Box.Y += b.Min.Y
			fragments[i] = f
		}
	}
	log.Debug().Int("fragments", len(fragments)).Msg("Recognition complete")
	return association.Associate(regions, fragments), nil
}

// recognizeRegions makes one call per cropped region. Each successful call
// becomes a single fragment covering its region.
func (p *Pipeline) recognizeRegions(ctx context.Context, ocr provider.OCRProvider, img image.Image, regions []types.Region, reporter apperr.Reporter, log zerolog.Logger) []association.RegionText {
	fragments := make([]*types.TextFragment, len(regions))
	lang := strings.Join(p.recognition.Languages, "+")

	semaphore := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for i, region := range regions {
		wg.Add(1)
		go func(i int, region types.Region) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			text, conf, err := p.recognizeRegion(ctx, ocr, img, region, lang)
			if err != nil {
				log.Warn().Err(err).Str("region_id", region.ID).Msg("Region recognition failed")
				reporter.Report(apperr.RecognitionFailed(region.ID, err))
				return
			}
			if text == "" {
				return
			}
			fragments[i] = &types.TextFragment{Text: text, Box: region.Box, Confidence: conf}
		}(i, region)
	}
	wg.Wait()

	collected := make([]types.TextFragment, 0, len(regions))
	for _, f := range fragments {
		if f != nil {
			collected = append(collected, *f)
		}
	}
	return association.Associate(regions, collected)
}

func (p *Pipeline) recognizeRegion(ctx context.Context, ocr provider.OCRProvider, img image.Image, region types.Region, lang string) (string, float64, error) {
	crop, err := imaging.Crop(img, region.Box)
	if err != nil {
		return "", 0, err
	}
	data, err := imaging.EncodePNG(crop)
	if err != nil {
		return "", 0, err
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	resp, err := ocr.ExtractText(callCtx, provider.OCRRequest{
		ImageData: data,
		Width:     region.Box.Width,
		Height:    region.Box.Height,
		Language:  lang,
	})
	if err != nil {
		return "", 0, err
	}
	return strings.Join(strings.Fields(resp.Text), " "), resp.Confidence, nil
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := millis(p.recognition.CallTimeoutMs); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
