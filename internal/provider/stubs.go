package provider

import (
	"context"
	"fmt"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// StubTTSProvider is a stub implementation of TTSProvider for testing and
// for running without a hosted synthesizer
type StubTTSProvider struct {
	name   string
	config types.TTSProviderConfig
}

// NewStubTTSProvider creates a new stub TTS provider
func NewStubTTSProvider(config types.TTSProviderConfig) *StubTTSProvider {
	return &StubTTSProvider{
		name:   config.Name,
		config: config,
	}
}

func (s *StubTTSProvider) Name() string {
	return s.name
}

func (s *StubTTSProvider) Synthesize(ctx context.Context, req TTSRequest) (*TTSResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	textPreview := req.Text
	if len(textPreview) > 10 {
		textPreview = textPreview[:10]
	}
	return &TTSResponse{
		AudioData: []byte(fmt.Sprintf("STUB_AUDIO_%s_%s", req.VoiceID, textPreview)),
		Format:    "wav",
	}, nil
}

func (s *StubTTSProvider) ListVoices(ctx context.Context) ([]Voice, error) {
	voices := []Voice{
		{
			ID:          "default",
			Name:        "Default",
			Languages:   []string{"en"},
			Gender:      "neutral",
			Description: "A stub voice for testing",
		},
		{
			ID:          "stub-voice-2",
			Name:        "Stub Voice 2",
			Languages:   []string{"en", "es"},
			Gender:      "male",
			Accent:      "american",
			Description: "Another stub voice",
		},
	}
	return voices, nil
}

func (s *StubTTSProvider) Close() error {
	return nil
}

// StubOCRProvider is a stub implementation of OCRProvider. It reports the
// configured text (options.text) as one fragment covering the whole image.
type StubOCRProvider struct {
	name   string
	config types.OCRProviderConfig
	text   string
}

// NewStubOCRProvider creates a new stub OCR provider
func NewStubOCRProvider(config types.OCRProviderConfig) *StubOCRProvider {
	text := config.Options["text"]
	if text == "" {
		text = "Stub OCR extracted text"
	}
	return &StubOCRProvider{
		name:   config.Name,
		config: config,
		text:   text,
	}
}

func (s *StubOCRProvider) Name() string {
	return s.name
}

func (s *StubOCRProvider) ExtractText(ctx context.Context, req OCRRequest) (*OCRResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &OCRResponse{
		Text:       s.text,
		Confidence: 0.95,
		Fragments: []types.TextFragment{
			{
				Text:       s.text,
				Box:        types.BoundingBox{Width: req.Width, Height: req.Height},
				Confidence: 0.95,
			},
		},
	}, nil
}

func (s *StubOCRProvider) Close() error {
	return nil
}
