package provider

import (
	"context"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// TTSProvider defines the interface for TTS providers
type TTSProvider interface {
	// Name returns the provider name
	Name() string

	// Synthesize converts text to speech
	Synthesize(ctx context.Context, req TTSRequest) (*TTSResponse, error)

	// ListVoices returns the voices the provider offers
	ListVoices(ctx context.Context) ([]Voice, error)

	// Close cleans up resources
	Close() error
}

// TTSRequest contains the text and voice settings for synthesis
type TTSRequest struct {
	Text     string            // Text to synthesize
	VoiceID  string            // Provider-specific voice ID
	Language string            // ISO-639-1 language code
	Settings map[string]string // Provider-specific settings (speed, instructions, ...)
}

// TTSResponse contains the synthesized audio and metadata
type TTSResponse struct {
	AudioData []byte // Audio file data
	Format    string // Audio format (e.g., "wav", "mp3")
}

// Voice describes one voice offered by a TTS provider
type Voice struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Languages   []string `json:"languages"`
	Gender      string   `json:"gender,omitempty"`
	Accent      string   `json:"accent,omitempty"`
	Description string   `json:"description,omitempty"`
}

// OCRProvider defines the interface for text recognition providers
type OCRProvider interface {
	// Name returns the provider name
	Name() string

	// ExtractText recognizes text in an image
	ExtractText(ctx context.Context, req OCRRequest) (*OCRResponse, error)

	// Close cleans up resources
	Close() error
}

// OCRRequest contains the image data for OCR
type OCRRequest struct {
	ImageData []byte // Encoded image (PNG, JPEG, ...)
	Width     int    // Image width in pixels
	Height    int    // Image height in pixels
	Language  string // Optional language hint
}

// OCRResponse contains the extracted text
type OCRResponse struct {
	Text       string               // Full recognized text
	Confidence float64              // Overall confidence score (0-1)
	Fragments  []types.TextFragment // Positioned text spans, in image pixel space
}

// Initializer is implemented by providers that need a warm-up or
// reachability check before first use.
type Initializer interface {
	Init(ctx context.Context) error
}
