package hook

import (
	"fmt"
	"os"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/config"
	"workflowhook/internal/submission"
)

// Config holds reconciliation loop configuration.
type Config struct {
	Templates        map[string]string // queue id -> workflow template reference
	Stage            submission.Stage
	PollInterval     time.Duration
	OperatorID       string        // Recipient of pipeline failures (default: the caller)
	LogUploadPeriod  time.Duration // Log harvest interval while a job runs
	MaxLogTail       int           // Characters of log kept as FAILURE_REASON
	JobTimeLimit     time.Duration // Wall clock budget from EXECUTION_STARTED (0: none)
	ShareImmediately bool
	Credentials      []byte        // Written into every job's scratch directory
	DrainTimeout     time.Duration // Bound on finishing a cycle after shutdown
}

// LoadConfigFromEnv loads loop configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	templates, err := config.GetJSONMapEnv("EVALUATION_TEMPLATES")
	if err != nil {
		return Config{}, err
	}
	stage, err := submission.ParseStage(config.GetEnv("EXECUTION_STAGE", ""))
	if err != nil {
		return Config{}, err
	}
	var creds []byte
	if path := config.GetEnv("CREDENTIALS_FILE", ""); path != "" {
		if creds, err = os.ReadFile(path); err != nil {
			return Config{}, fmt.Errorf("failed to read credentials file: %w", err)
		}
	}

	cfg := Config{
		Templates:        templates,
		Stage:            stage,
		PollInterval:     config.GetDurationEnv("POLL_INTERVAL", 10*time.Second),
		OperatorID:       config.GetEnv("NOTIFICATION_PRINCIPAL_ID", ""),
		LogUploadPeriod:  config.GetDurationEnv("LOG_UPLOAD_PERIOD", 30*time.Minute),
		MaxLogTail:       config.GetIntEnv("MAX_LOG_ANNOTATION_CHARS", 256),
		JobTimeLimit:     config.GetDurationEnv("JOB_TIME_LIMIT", 0),
		ShareImmediately: config.GetBoolEnv("SHARE_RESULTS_IMMEDIATELY", true),
		Credentials:      creds,
		DrainTimeout:     config.GetDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Minute),
	}
	cfg = cfg.withDefaults()
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if len(c.Templates) == 0 {
		return apperrors.Validation("EVALUATION_TEMPLATES", "at least one queue must be monitored")
	}
	for queue, ref := range c.Templates {
		if ref == "" {
			return apperrors.Validation("EVALUATION_TEMPLATES", "queue "+queue+" has no template")
		}
	}
	return nil
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.Stage == "" {
		c.Stage = submission.StageAll
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.LogUploadPeriod <= 0 {
		c.LogUploadPeriod = 30 * time.Minute
	}
	if c.MaxLogTail <= 0 {
		c.MaxLogTail = 256
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 10 * time.Minute
	}
	return c
}
