// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds process-level configuration for workflow-hook.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for probes to observe shutdown (0 to skip)
	LogFile           string
	LogLevel          string
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 0),
		LogFile:           GetEnv("LOG_FILE", ""),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
	}
}
