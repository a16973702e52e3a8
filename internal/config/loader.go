package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/unalkalkan/PanelReader/pkg/types"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override (PanelReader)
const EnvPrefix = "PR_"

// Load reads and parses the configuration file.
// A .env file next to the config (or in the working directory) is loaded first,
// then PR_ prefixed environment variables override file values.
func Load(configPath string) (*types.Config, error) {
	loadDotEnv(configPath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env files without overriding variables already set
func loadDotEnv(configPath string) {
	candidates := []string{
		filepath.Join(filepath.Dir(configPath), ".env"),
		".env",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
		return
	}
}

// Validate checks if the configuration is valid and fills derived defaults
func Validate(cfg *types.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("invalid server max_connections: %d", cfg.Server.MaxConnections)
	}

	switch cfg.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s (must be 'json' or 'console')", cfg.Logging.Format)
	}

	if cfg.Storage.Adapter != "local" && cfg.Storage.Adapter != "s3" {
		return fmt.Errorf("invalid storage adapter: %s (must be 'local' or 's3')", cfg.Storage.Adapter)
	}

	if cfg.Storage.Adapter == "local" {
		if cfg.Storage.Local.BasePath == "" {
			return fmt.Errorf("local storage base_path is required")
		}
		if !filepath.IsAbs(cfg.Storage.Local.BasePath) {
			return fmt.Errorf("local storage base_path must be absolute: %s", cfg.Storage.Local.BasePath)
		}
	}

	if cfg.Storage.Adapter == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("s3 region is required")
		}
	}

	switch cfg.Recognition.Mode {
	case "":
		cfg.Recognition.Mode = "full"
	case "full", "region":
	default:
		return fmt.Errorf("invalid recognition mode: %s (must be 'full' or 'region')", cfg.Recognition.Mode)
	}
	if cfg.Recognition.InitTimeoutMs <= 0 {
		cfg.Recognition.InitTimeoutMs = 5000
	}
	if cfg.Synthesis.InitTimeoutMs <= 0 {
		cfg.Synthesis.InitTimeoutMs = 5000
	}

	d := &cfg.Detection
	if d.EdgeThreshold <= 0 {
		d.EdgeThreshold = 30
	}
	if d.MinSideRatio <= 0 {
		d.MinSideRatio = 0.05
	}
	if d.MaxSideRatio <= 0 {
		d.MaxSideRatio = 0.5
	}
	if d.MinSideRatio >= d.MaxSideRatio {
		return fmt.Errorf("detection min_side_ratio (%v) must be below max_side_ratio (%v)", d.MinSideRatio, d.MaxSideRatio)
	}
	if d.MinAspect <= 0 {
		d.MinAspect = 0.3
	}
	if d.MaxAspect <= 0 {
		d.MaxAspect = 3.0
	}
	if d.MinAspect >= d.MaxAspect {
		return fmt.Errorf("detection min_aspect (%v) must be below max_aspect (%v)", d.MinAspect, d.MaxAspect)
	}
	if d.DefaultConfidence < 0 || d.DefaultConfidence > 1 {
		return fmt.Errorf("detection default_confidence must be within [0,1]: %v", d.DefaultConfidence)
	}
	switch d.ReadingDirection {
	case "":
		d.ReadingDirection = "ltr"
	case "ltr", "rtl":
	default:
		return fmt.Errorf("invalid reading direction: %s (must be 'ltr' or 'rtl')", d.ReadingDirection)
	}

	for _, ocrCfg := range cfg.Providers.OCR {
		if ocrCfg.Name == "" {
			return fmt.Errorf("ocr provider name is required")
		}
	}
	for _, ttsCfg := range cfg.Providers.TTS {
		if ttsCfg.Name == "" {
			return fmt.Errorf("tts provider name is required")
		}
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *types.Config) {
	if val := os.Getenv(EnvPrefix + "SERVER_HOST"); val != "" {
		cfg.Server.Host = val
	}
	if val := os.Getenv(EnvPrefix + "SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.Port = port
		}
	}

	if val := os.Getenv(EnvPrefix + "LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(EnvPrefix + "LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	if val := os.Getenv(EnvPrefix + "STORAGE_ADAPTER"); val != "" {
		cfg.Storage.Adapter = val
	}
	if val := os.Getenv(EnvPrefix + "STORAGE_LOCAL_BASE_PATH"); val != "" {
		cfg.Storage.Local.BasePath = val
	}
	if val := os.Getenv(EnvPrefix + "STORAGE_S3_BUCKET"); val != "" {
		cfg.Storage.S3.Bucket = val
	}
	if val := os.Getenv(EnvPrefix + "STORAGE_S3_REGION"); val != "" {
		cfg.Storage.S3.Region = val
	}
	if val := os.Getenv(EnvPrefix + "STORAGE_S3_ENDPOINT"); val != "" {
		cfg.Storage.S3.Endpoint = val
	}
	if val := os.Getenv(EnvPrefix + "STORAGE_S3_ACCESS_KEY_ID"); val != "" {
		cfg.Storage.S3.AccessKeyID = val
	}
	if val := os.Getenv(EnvPrefix + "STORAGE_S3_SECRET_ACCESS_KEY"); val != "" {
		cfg.Storage.S3.SecretAccessKey = val
	}

	if val := os.Getenv(EnvPrefix + "RECOGNITION_PROVIDER"); val != "" {
		cfg.Recognition.Provider = val
	}
	if val := os.Getenv(EnvPrefix + "SYNTHESIS_PROVIDER"); val != "" {
		cfg.Synthesis.Provider = val
	}

	applyProviderEnvOverrides(cfg)
}

// applyProviderEnvOverrides applies provider-specific env vars
func applyProviderEnvOverrides(cfg *types.Config) {
	for i := range cfg.Providers.TTS {
		prefix := fmt.Sprintf("%sTTS_%s_", EnvPrefix, envName(cfg.Providers.TTS[i].Name))
		if val := os.Getenv(prefix + "API_KEY"); val != "" {
			cfg.Providers.TTS[i].APIKey = val
		}
		if val := os.Getenv(prefix + "ENDPOINT"); val != "" {
			cfg.Providers.TTS[i].Endpoint = val
		}
	}

	for i := range cfg.Providers.OCR {
		prefix := fmt.Sprintf("%sOCR_%s_", EnvPrefix, envName(cfg.Providers.OCR[i].Name))
		if val := os.Getenv(prefix + "API_KEY"); val != "" {
			cfg.Providers.OCR[i].APIKey = val
		}
		if val := os.Getenv(prefix + "ENDPOINT"); val != "" {
			cfg.Providers.OCR[i].Endpoint = val
		}
	}
}

func envName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// GetDefault returns a default configuration
func GetDefault() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15,
			WriteTimeout: 60,
			MaxUploadMB:  20,

			MaxConnections: 256,
		},
		Logging: types.LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Storage: types.StorageConfig{
			Adapter: "local",
			Local: types.LocalStorageOpts{
				BasePath: "/var/lib/panelreader/storage",
			},
		},
		Recognition: types.RecognitionConfig{
			Mode:          "full",
			Languages:     []string{"eng"},
			InitTimeoutMs: 5000,
			CallTimeoutMs: 30000,
		},
		Synthesis: types.SynthesisConfig{
			InitTimeoutMs:    5000,
			RequestTimeoutMs: 60000,
			StoreAudio:       true,
		},
		Detection: types.DetectionConfig{
			EdgeThreshold:     30,
			MinSideRatio:      0.05,
			MaxSideRatio:      0.5,
			MinAspect:         0.3,
			MaxAspect:         3.0,
			MinPixels:         20,
			DefaultConfidence: 0.8,
			MaxDimension:      2000,
			ReadingDirection:  "ltr",
		},
		Voice: types.VoiceDefaults{
			DefaultProvider: "stub",
			DefaultVoice:    "default",
		},
		Pipeline: types.PipelineConfig{
			SkipEmptyRegions: true,
			TempDir:          "/tmp/panelreader",
		},
	}
}
