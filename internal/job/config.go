package job

import (
	"fmt"
	"strings"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/config"
)

const (
	defaultEngineImage = "sagebionetworks/synapseworkflowhook-toil"
	defaultScratchDir  = "/tempDir"
	unixSocketPrefix   = "unix://"
)

// Options the engine command line sets itself. Operators may not pass them.
var reservedEngineOptions = []string{"LinkImports", "workDir"}

// Config holds configuration for launching workflow jobs.
type Config struct {
	EngineImage        string        // Workflow engine image
	EngineOptions      string        // Extra engine command line options
	ScratchDir         string        // Shared directory as seen by this process
	HostScratchDir     string        // Same directory as seen by the Docker host
	DockerHost         string        // Passed to the engine so it can run steps
	DockerCertPathHost string        // Host folder with client certificates
	RWVolumes          []string      // Extra host:container rw binds
	ArchiveContainers  bool          // Rename finished jobs instead of removing them
	DownloadTimeout    time.Duration // Per-request template download timeout
	DownloadRetries    int
}

// LoadConfigFromEnv loads catalog configuration from environment variables.
func LoadConfigFromEnv() Config {
	scratch := config.GetEnv("WORKFLOW_SCRATCH_DIR", defaultScratchDir)
	return Config{
		EngineImage:        config.GetEnv("WORKFLOW_ENGINE_IMAGE", defaultEngineImage),
		EngineOptions:      config.GetEnv("TOIL_CLI_OPTIONS", ""),
		ScratchDir:         scratch,
		HostScratchDir:     config.GetEnv("HOST_SCRATCH_DIR", scratch),
		DockerHost:         config.GetEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),
		DockerCertPathHost: config.GetEnv("DOCKER_CERT_PATH_HOST", ""),
		RWVolumes:          config.GetListEnv("RW_VOLUMES"),
		ArchiveContainers:  config.GetBoolEnv("ARCHIVE_CONTAINERS", false),
		DownloadTimeout:    config.GetDurationEnv("TEMPLATE_DOWNLOAD_TIMEOUT", 5*time.Minute),
		DownloadRetries:    config.GetIntEnv("TEMPLATE_DOWNLOAD_RETRIES", 8),
	}
}

func (c Config) withDefaults() Config {
	if c.EngineImage == "" {
		c.EngineImage = defaultEngineImage
	}
	if c.ScratchDir == "" {
		c.ScratchDir = defaultScratchDir
	}
	if c.HostScratchDir == "" {
		c.HostScratchDir = c.ScratchDir
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 5 * time.Minute
	}
	if c.DownloadRetries < 0 {
		c.DownloadRetries = 0
	}
	return c
}

// validateEngineOptions rejects options that collide with the ones the
// catalog controls.
func validateEngineOptions(opts string) error {
	lower := strings.ToLower(opts)
	for _, reserved := range reservedEngineOptions {
		if strings.Contains(lower, strings.ToLower(reserved)) {
			return apperrors.Validation("engineOptions", fmt.Sprintf("may not specify %s in engine options", reserved))
		}
	}
	return nil
}

// parseVolumes turns host:container pairs into a bind map.
func parseVolumes(specs []string) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, spec := range specs {
		host, target, ok := strings.Cut(spec, ":")
		if !ok || host == "" || target == "" {
			return nil, apperrors.Validation("rwVolumes", fmt.Sprintf("expected host:container, got %q", spec))
		}
		out[host] = target
	}
	return out, nil
}
