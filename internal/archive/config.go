package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"workflowhook/internal/config"
)

// Store kinds
const (
	StoreLocal = "local"
	StoreS3    = "s3"
)

// StoreConfig selects and configures the archive store.
type StoreConfig struct {
	Kind     string
	LocalDir string
	S3       S3Config
}

// LoadStoreConfigFromEnv loads the archive store settings. scratchDir is the
// default parent of the local store.
func LoadStoreConfigFromEnv(scratchDir string) StoreConfig {
	return StoreConfig{
		Kind:     config.GetEnv("ARCHIVE_STORE", StoreLocal),
		LocalDir: config.GetEnv("ARCHIVE_LOCAL_DIR", filepath.Join(scratchDir, "archive")),
		S3: S3Config{
			Endpoint:  config.GetEnv("S3_ENDPOINT", ""),
			Bucket:    config.GetEnv("S3_BUCKET", "workflow-logs"),
			Prefix:    config.GetEnv("S3_PREFIX", ""),
			AccessKey: config.GetEnv("S3_ACCESS_KEY_ID", ""),
			SecretKey: config.GetSecretFile(config.GetEnv("S3_SECRET_KEY_FILE", "")),
			Region:    config.GetEnv("S3_REGION", ""),
			UseSSL:    config.GetBoolEnv("S3_USE_SSL", true),
		},
	}
}

// NewStore opens the configured store.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Kind {
	case StoreLocal, "":
		return NewLocalStore(cfg.LocalDir)
	case StoreS3:
		if cfg.S3.Endpoint == "" {
			return nil, fmt.Errorf("S3_ENDPOINT is required for the s3 archive store")
		}
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown archive store %q", cfg.Kind)
	}
}
