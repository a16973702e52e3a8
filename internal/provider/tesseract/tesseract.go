// Package tesseract provides a local OCR provider backed by libtesseract.
// Importing it registers the "tesseract" provider type.
package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/provider"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

func init() {
	provider.RegisterOCRFactory("tesseract", func(cfg types.OCRProviderConfig, log zerolog.Logger) (provider.OCRProvider, error) {
		return New(cfg, log), nil
	})
}

// Provider implements provider.OCRProvider with a fresh gosseract client
// per call. Clients are not safe for concurrent use.
type Provider struct {
	name          string
	languages     []string
	variables     map[string]string
	clientFactory func() *gosseract.Client
	log           zerolog.Logger
}

// New creates a tesseract provider. options.languages is a comma separated
// list of traineddata names; other options prefixed with "var." are passed
// to tesseract as variables.
func New(cfg types.OCRProviderConfig, log zerolog.Logger) *Provider {
	p := &Provider{
		name:          cfg.Name,
		languages:     splitLanguages(cfg.Options["languages"]),
		variables:     map[string]string{},
		clientFactory: gosseract.NewClient,
		log:           log.With().Str("provider", cfg.Name).Logger(),
	}
	for k, v := range cfg.Options {
		if name, ok := strings.CutPrefix(k, "var."); ok && name != "" {
			p.variables[name] = v
		}
	}
	return p
}

func (p *Provider) Name() string {
	return p.name
}

// Init checks the library is loadable and the configured languages are installed.
func (p *Provider) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	installed, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("list tesseract languages: %w", err)
	}
	if missing := missingLanguages(p.languages, installed); len(missing) > 0 {
		return fmt.Errorf("tesseract languages not installed: %s", strings.Join(missing, ", "))
	}
	p.log.Debug().
		Str("version", gosseract.Version()).
		Strs("languages", p.languages).
		Msg("Tesseract ready")
	return nil
}

// ExtractText recognizes the image and reports one fragment per text line.
func (p *Provider) ExtractText(ctx context.Context, req provider.OCRRequest) (*provider.OCRResponse, error) {
	if len(req.ImageData) == 0 {
		return nil, fmt.Errorf("image data is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := p.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(req.ImageData); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	langs := p.languages
	if req.Language != "" {
		langs = splitLanguages(req.Language)
	}
	if len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	for k, v := range p.variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return nil, fmt.Errorf("set variable %s: %w", k, err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	resp := fragmentsFromBoxes(boxes)
	p.log.Debug().
		Int("fragments", len(resp.Fragments)).
		Float64("confidence", resp.Confidence).
		Msg("Recognition complete")
	return resp, nil
}

func (p *Provider) Close() error {
	return nil
}

func fragmentsFromBoxes(boxes []gosseract.BoundingBox) *provider.OCRResponse {
	resp := &provider.OCRResponse{Fragments: make([]types.TextFragment, 0, len(boxes))}
	texts := make([]string, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		conf := b.Confidence / 100.0
		resp.Fragments = append(resp.Fragments, types.TextFragment{
			Text: text,
			Box: types.BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Confidence: conf,
		})
		texts = append(texts, text)
		sum += conf
	}
	resp.Text = strings.Join(texts, "\n")
	if len(resp.Fragments) > 0 {
		resp.Confidence = sum / float64(len(resp.Fragments))
	}
	return resp
}

func splitLanguages(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' || r == ' ' })
}

func missingLanguages(want, installed []string) []string {
	have := make(map[string]bool, len(installed))
	for _, l := range installed {
		have[l] = true
	}
	var missing []string
	for _, l := range want {
		if !have[l] {
			missing = append(missing, l)
		}
	}
	return missing
}
