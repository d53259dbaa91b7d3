package notify

import (
	"time"
	"workflowhook/internal/config"
)

// Delivery defaults that rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultInitialBackoff   = 100 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// WebhookConfig configures the notification webhook mirror. The mirror is
// disabled when URL is empty.
type WebhookConfig struct {
	URL         string
	SigningKey  string
	Source      string        // CloudEvents source (default: workflowhook)
	BufferSize  int           // pending events buffer (default: 1000)
	Workers     int           // concurrent delivery goroutines (default: 2)
	HTTPTimeout time.Duration // per-request timeout (default: 10s)

	// BreakerCooldown is how long an open breaker rejects deliveries before
	// probing again (default: 30s).
	BreakerCooldown time.Duration
}

// LoadConfigFromEnv loads webhook configuration from environment variables.
func LoadConfigFromEnv() WebhookConfig {
	cfg := WebhookConfig{
		URL:         config.GetEnv("NOTIFY_WEBHOOK_URL", ""),
		SigningKey:  config.GetSecretFile(config.GetEnv("NOTIFY_WEBHOOK_KEY_FILE", "")),
		Source:      config.GetEnv("NOTIFY_WEBHOOK_SOURCE", "workflowhook"),
		BufferSize:  config.GetIntEnv("NOTIFY_WEBHOOK_BUFFER_SIZE", 1000),
		Workers:     config.GetIntEnv("NOTIFY_WEBHOOK_WORKERS", 2),
		HTTPTimeout: config.GetDurationEnv("NOTIFY_WEBHOOK_TIMEOUT", 10*time.Second),
	}
	return cfg.withDefaults()
}

// Enabled reports whether a webhook destination is configured.
func (c WebhookConfig) Enabled() bool {
	return c.URL != ""
}

// withDefaults fills in zero values with defaults.
func (c WebhookConfig) withDefaults() WebhookConfig {
	if c.Source == "" {
		c.Source = "workflowhook"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}
