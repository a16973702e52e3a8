package types

// Config represents the overall application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Providers   ProvidersConfig   `yaml:"providers" json:"providers"`
	Recognition RecognitionConfig `yaml:"recognition" json:"recognition"`
	Synthesis   SynthesisConfig   `yaml:"synthesis" json:"synthesis"`
	Detection   DetectionConfig   `yaml:"detection" json:"detection"`
	Voice       VoiceDefaults     `yaml:"voice" json:"voice"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	ReadTimeout  int    `yaml:"read_timeout" json:"read_timeout"`   // seconds
	WriteTimeout int    `yaml:"write_timeout" json:"write_timeout"` // seconds
	MaxUploadMB  int    `yaml:"max_upload_mb" json:"max_upload_mb"`

	// MaxConnections caps concurrently accepted connections; 0 means no limit
	MaxConnections int `yaml:"max_connections" json:"max_connections"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" json:"format"` // "json" or "console"
	Output string `yaml:"output" json:"output"` // "stdout" or "stderr"
}

// StorageConfig defines storage adapter settings
type StorageConfig struct {
	Adapter string            `yaml:"adapter" json:"adapter"` // "local" or "s3"
	Local   LocalStorageOpts  `yaml:"local" json:"local"`
	S3      S3StorageOpts     `yaml:"s3" json:"s3"`
	Options map[string]string `yaml:"options" json:"options"`
}

// LocalStorageOpts configures the local filesystem adapter
type LocalStorageOpts struct {
	BasePath string `yaml:"base_path" json:"base_path"`
}

// S3StorageOpts configures the S3-compatible adapter
type S3StorageOpts struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	Region          string `yaml:"region" json:"region"`
	Bucket          string `yaml:"bucket" json:"bucket"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl"`
}

// ProvidersConfig holds all provider configurations
type ProvidersConfig struct {
	TTS []TTSProviderConfig `yaml:"tts" json:"tts"`
	OCR []OCRProviderConfig `yaml:"ocr" json:"ocr"`
}

// TTSProviderConfig configures a TTS provider
type TTSProviderConfig struct {
	Name           string            `yaml:"name" json:"name"`
	Type           string            `yaml:"type" json:"type"` // "openai" or "stub"
	Enabled        bool              `yaml:"enabled" json:"enabled"`
	Endpoint       string            `yaml:"endpoint" json:"endpoint"`
	APIKey         string            `yaml:"api_key" json:"api_key"`
	MaxSegmentSize int               `yaml:"max_segment_size" json:"max_segment_size"` // characters
	Options        map[string]string `yaml:"options" json:"options"`
}

// OCRProviderConfig configures an OCR provider
type OCRProviderConfig struct {
	Name     string            `yaml:"name" json:"name"`
	Type     string            `yaml:"type" json:"type"` // "openai", "tesseract" or "stub"
	Enabled  bool              `yaml:"enabled" json:"enabled"`
	Endpoint string            `yaml:"endpoint" json:"endpoint"`
	APIKey   string            `yaml:"api_key" json:"api_key"`
	Options  map[string]string `yaml:"options" json:"options"`
}

// RecognitionConfig selects and bounds the text recognition backend
type RecognitionConfig struct {
	Provider      string   `yaml:"provider" json:"provider"`
	Fallback      string   `yaml:"fallback" json:"fallback"`
	Mode          string   `yaml:"mode" json:"mode"` // "full" or "region"
	Languages     []string `yaml:"languages" json:"languages"`
	InitTimeoutMs int      `yaml:"init_timeout_ms" json:"init_timeout_ms"`
	CallTimeoutMs int      `yaml:"call_timeout_ms" json:"call_timeout_ms"`
}

// SynthesisConfig selects and bounds the speech synthesis backend
type SynthesisConfig struct {
	Provider         string `yaml:"provider" json:"provider"`
	Fallback         string `yaml:"fallback" json:"fallback"`
	InitTimeoutMs    int    `yaml:"init_timeout_ms" json:"init_timeout_ms"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms" json:"request_timeout_ms"`
	StoreAudio       bool   `yaml:"store_audio" json:"store_audio"`
	Prefetch         bool   `yaml:"prefetch" json:"prefetch"` // synthesize upcoming units while the current one plays
}

// DetectionConfig tunes the bubble detector
type DetectionConfig struct {
	EdgeThreshold     float64 `yaml:"edge_threshold" json:"edge_threshold"`
	MinSideRatio      float64 `yaml:"min_side_ratio" json:"min_side_ratio"`
	MaxSideRatio      float64 `yaml:"max_side_ratio" json:"max_side_ratio"`
	MinAspect         float64 `yaml:"min_aspect" json:"min_aspect"`
	MaxAspect         float64 `yaml:"max_aspect" json:"max_aspect"`
	MinPixels         int     `yaml:"min_pixels" json:"min_pixels"`
	DefaultConfidence float64 `yaml:"default_confidence" json:"default_confidence"`
	MaxDimension      int     `yaml:"max_dimension" json:"max_dimension"`
	ReadingDirection  string  `yaml:"reading_direction" json:"reading_direction"` // "ltr" or "rtl"
}

// VoiceDefaults is the process-wide voice fallback
type VoiceDefaults struct {
	DefaultProvider string   `yaml:"default_provider" json:"default_provider"`
	DefaultVoice    string   `yaml:"default_voice" json:"default_voice"`
	Pool            []string `yaml:"pool" json:"pool"`
}

// PipelineConfig holds pipeline-level settings
type PipelineConfig struct {
	SkipEmptyRegions bool   `yaml:"skip_empty_regions" json:"skip_empty_regions"`
	TempDir          string `yaml:"temp_dir" json:"temp_dir"`
}
