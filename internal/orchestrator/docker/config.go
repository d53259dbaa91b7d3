package docker

import (
	"time"
	"workflowhook/internal/config"
)

// Config holds configuration for the container lifecycle.
type Config struct {
	PullAttempts   int           // Image pull attempts (default 10)
	PullRetryDelay time.Duration // Fixed delay between pull attempts (default 10s)
	StopAttempts   int           // Stop attempts (default 15)
	StopTimeout    time.Duration // Grace period per stop (default 60s)
}

// LoadConfigFromEnv loads lifecycle configuration from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		PullAttempts:   config.GetIntEnv("PULL_ATTEMPTS", 10),
		PullRetryDelay: config.GetDurationEnv("PULL_RETRY_DELAY", 10*time.Second),
		StopAttempts:   config.GetIntEnv("STOP_ATTEMPTS", 15),
		StopTimeout:    config.GetDurationEnv("STOP_TIMEOUT", 60*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.PullAttempts <= 0 {
		c.PullAttempts = 10
	}
	if c.PullRetryDelay <= 0 {
		c.PullRetryDelay = 10 * time.Second
	}
	if c.StopAttempts <= 0 {
		c.StopAttempts = 15
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 60 * time.Second
	}
	return c
}
