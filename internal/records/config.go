package records

import (
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/config"
)

// Config locates the remote record API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // Per-request timeout
}

// LoadConfigFromEnv loads the record API endpoint from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL: config.GetEnv("RECORDS_API_URL", ""),
		APIKey:  config.GetSecretFile(config.GetEnv("RECORDS_API_KEY_FILE", "")),
		Timeout: config.GetDurationEnv("RECORDS_API_TIMEOUT", 60*time.Second),
	}
	if cfg.BaseURL == "" {
		return Config{}, apperrors.Validation("RECORDS_API_URL", "record API endpoint is required")
	}
	return cfg, nil
}
