package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/pkg/types"
)

// NewAdapter creates the storage adapter selected by cfg.Adapter
func NewAdapter(cfg types.StorageConfig, log zerolog.Logger) (Adapter, error) {
	switch cfg.Adapter {
	case "", "local":
		base := cfg.Local.BasePath
		if base == "" {
			base = "./data"
		}
		log.Info().Str("adapter", "local").Str("base_path", base).Msg("Storage ready")
		return NewLocalAdapter(base)
	case "s3":
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket")
		}
		log.Info().
			Str("adapter", "s3").
			Str("bucket", cfg.S3.Bucket).
			Str("endpoint", cfg.S3.Endpoint).
			Msg("Storage ready")
		return NewS3Adapter(S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UseSSL:          cfg.S3.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Adapter)
	}
}
