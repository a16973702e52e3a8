package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// OCRFactory builds an OCR provider from its configuration.
type OCRFactory func(cfg types.OCRProviderConfig, log zerolog.Logger) (OCRProvider, error)

// TTSFactory builds a TTS provider from its configuration.
type TTSFactory func(cfg types.TTSProviderConfig, log zerolog.Logger) (TTSProvider, error)

var (
	factoryMu    sync.RWMutex
	ocrFactories = map[string]OCRFactory{}
	ttsFactories = map[string]TTSFactory{}
)

// RegisterOCRFactory makes an OCR provider type available to configuration.
// Packages with native dependencies register themselves from init.
func RegisterOCRFactory(typeName string, f OCRFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	ocrFactories[typeName] = f
}

// RegisterTTSFactory makes a TTS provider type available to configuration.
func RegisterTTSFactory(typeName string, f TTSFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	ttsFactories[typeName] = f
}

func init() {
	RegisterOCRFactory("stub", func(cfg types.OCRProviderConfig, _ zerolog.Logger) (OCRProvider, error) {
		return NewStubOCRProvider(cfg), nil
	})
	RegisterOCRFactory("openai", func(cfg types.OCRProviderConfig, log zerolog.Logger) (OCRProvider, error) {
		return NewOpenAIVisionProvider(cfg, log)
	})
	RegisterTTSFactory("stub", func(cfg types.TTSProviderConfig, _ zerolog.Logger) (TTSProvider, error) {
		return NewStubTTSProvider(cfg), nil
	})
	RegisterTTSFactory("openai", func(cfg types.TTSProviderConfig, log zerolog.Logger) (TTSProvider, error) {
		return NewOpenAITTSProvider(cfg, log)
	})
}

// Registry manages provider instances
type Registry struct {
	ttsProviders map[string]TTSProvider
	ocrProviders map[string]OCRProvider
	ready        map[string]bool
	log          zerolog.Logger
	mu           sync.RWMutex
}

// NewRegistry creates a new provider registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		ttsProviders: make(map[string]TTSProvider),
		ocrProviders: make(map[string]OCRProvider),
		ready:        make(map[string]bool),
		log:          log,
	}
}

// RegisterTTS registers a TTS provider
func (r *Registry) RegisterTTS(provider TTSProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.ttsProviders[name]; exists {
		return fmt.Errorf("TTS provider already registered: %s", name)
	}

	r.ttsProviders[name] = provider
	return nil
}

// RegisterOCR registers an OCR provider
func (r *Registry) RegisterOCR(provider OCRProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.ocrProviders[name]; exists {
		return fmt.Errorf("OCR provider already registered: %s", name)
	}

	r.ocrProviders[name] = provider
	return nil
}

// GetTTS retrieves a TTS provider by name
func (r *Registry) GetTTS(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.ttsProviders[name]
	if !exists {
		return nil, fmt.Errorf("TTS provider not found: %s", name)
	}

	return provider, nil
}

// GetOCR retrieves an OCR provider by name
func (r *Registry) GetOCR(name string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.ocrProviders[name]
	if !exists {
		return nil, fmt.Errorf("OCR provider not found: %s", name)
	}

	return provider, nil
}

// ListTTS returns all registered TTS provider names in sorted order
func (r *Registry) ListTTS() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ttsProviders))
	for name := range r.ttsProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListOCR returns all registered OCR provider names in sorted order
func (r *Registry) ListOCR() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ocrProviders))
	for name := range r.ocrProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes all registered providers
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	for name, provider := range r.ttsProviders {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close TTS provider %s: %w", name, err))
		}
	}

	for name, provider := range r.ocrProviders {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close OCR provider %s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing providers: %v", errs)
	}

	return nil
}

// InitializeProviders creates provider instances from configuration.
// A provider with no type is built as "openai" when it has an endpoint and
// as "stub" otherwise.
func (r *Registry) InitializeProviders(cfg types.ProvidersConfig) error {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	for _, ttsCfg := range cfg.TTS {
		if !ttsCfg.Enabled {
			continue
		}
		typeName := providerType(ttsCfg.Type, ttsCfg.Endpoint)
		factory, ok := ttsFactories[typeName]
		if !ok {
			return fmt.Errorf("unknown TTS provider type %q for %s", typeName, ttsCfg.Name)
		}
		provider, err := factory(ttsCfg, r.log)
		if err != nil {
			return fmt.Errorf("failed to create TTS provider %s: %w", ttsCfg.Name, err)
		}
		if err := r.RegisterTTS(provider); err != nil {
			return err
		}
		r.log.Info().Str("provider", ttsCfg.Name).Str("type", typeName).Msg("Registered TTS provider")
	}

	for _, ocrCfg := range cfg.OCR {
		if !ocrCfg.Enabled {
			continue
		}
		typeName := providerType(ocrCfg.Type, ocrCfg.Endpoint)
		factory, ok := ocrFactories[typeName]
		if !ok {
			return fmt.Errorf("unknown OCR provider type %q for %s", typeName, ocrCfg.Name)
		}
		provider, err := factory(ocrCfg, r.log)
		if err != nil {
			return fmt.Errorf("failed to create OCR provider %s: %w", ocrCfg.Name, err)
		}
		if err := r.RegisterOCR(provider); err != nil {
			return err
		}
		r.log.Info().Str("provider", ocrCfg.Name).Str("type", typeName).Msg("Registered OCR provider")
	}

	return nil
}

func providerType(typeName, endpoint string) string {
	if typeName != "" {
		return typeName
	}
	if endpoint != "" {
		return "openai"
	}
	return "stub"
}
