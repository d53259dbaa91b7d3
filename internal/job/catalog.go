// Package job turns workflow templates into running workflow engine
// containers and tracks them by name.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/orchestrator/docker"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	credentialsFile = ".credentials"
	certsMountPoint = "/root/.docker/"
	submissionLabel = "workflowhook.submission"
)

var progressProbe = []string{"cat", "/progress.txt"}

// containers is the subset of the container lifecycle the catalog drives.
type containers interface {
	CreateAndStart(ctx context.Context, spec docker.Spec) (string, error)
	Inspect(ctx context.Context, id string) (docker.State, error)
	ExecTail(ctx context.Context, id string, cmd []string) (string, error)
	CollectLogs(ctx context.Context, id string, dst io.Writer, maxTail int) (string, error)
	StopWithRetry(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, force bool) error
	Rename(ctx context.Context, id, name string) error
	List(ctx context.Context, prefix string) ([]docker.Container, error)
}

// Catalog launches, lists, inspects and retires workflow jobs.
type Catalog struct {
	containers containers
	fetcher    *Fetcher
	cfg        Config
	rwVolumes  map[string]string
	logger     *slog.Logger
}

// NewCatalog validates cfg and creates a Catalog. Engine options that collide
// with the options the catalog sets are a configuration error.
func NewCatalog(c containers, cfg Config) (*Catalog, error) {
	cfg = cfg.withDefaults()
	if err := validateEngineOptions(cfg.EngineOptions); err != nil {
		return nil, err
	}
	rw, err := parseVolumes(cfg.RWVolumes)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		containers: c,
		fetcher:    NewFetcher(cfg.DownloadTimeout, cfg.DownloadRetries),
		cfg:        cfg,
		rwVolumes:  rw,
		logger:     slog.With("component", "catalog"),
	}, nil
}

type fileRef struct {
	Class string `yaml:"class"`
	Path  string `yaml:"path"`
}

// workflowParams is the parameters file read by the workflow. Key names are
// part of the contract with existing workflow templates.
type workflowParams struct {
	SubmissionID    string  `yaml:"submissionId"`
	WorkflowRef     string  `yaml:"workflowSynapseId"`
	SubmitterFolder string  `yaml:"submitterUploadSynId"`
	AdminFolder     string  `yaml:"adminUploadSynId"`
	Credentials     fileRef `yaml:"synapseConfig"`
}

// Launch materialises the workflow into a fresh scratch directory, writes the
// parameters and credentials next to it and starts the engine container.
func (c *Catalog) Launch(ctx context.Context, wf Workflow, params Parameters) (Handle, error) {
	if err := validateEngineOptions(c.cfg.EngineOptions); err != nil {
		return Handle{}, err
	}

	dirName := uuid.NewString()
	localDir := filepath.Join(c.cfg.ScratchDir, dirName)
	// The engine needs the same path inside its container as on the host.
	hostDir := filepath.Join(c.cfg.HostScratchDir, dirName)
	if err := os.Mkdir(localDir, 0o755); err != nil {
		return Handle{}, apperrors.Internal("job.scratchDir", err)
	}
	launched := false
	defer func() {
		if !launched {
			if err := os.RemoveAll(localDir); err != nil {
				c.logger.Warn("Failed to clean scratch directory", "dir", localDir, "error", err)
			}
		}
	}()

	if err := c.fetcher.Fetch(ctx, wf, localDir); err != nil {
		return Handle{}, err
	}

	if err := os.WriteFile(filepath.Join(localDir, credentialsFile), params.Credentials, 0o600); err != nil {
		return Handle{}, apperrors.Internal("job.credentials", err)
	}
	paramsName, err := writeParams(localDir, workflowParams{
		SubmissionID:    params.SubmissionID,
		WorkflowRef:     params.WorkflowRef,
		SubmitterFolder: params.SubmitterFolder,
		AdminFolder:     params.AdminFolder,
		Credentials:     fileRef{Class: "File", Path: filepath.Join(hostDir, credentialsFile)},
	})
	if err != nil {
		return Handle{}, apperrors.Internal("job.params", err)
	}

	cmd := append([]string{"toil-cwl-runner"}, strings.Fields(c.cfg.EngineOptions)...)
	cmd = append(cmd, "--workDir", hostDir, "--noLinkImports", wf.Entrypoint, filepath.Join(hostDir, paramsName))

	readOnly := map[string]string{}
	if c.cfg.DockerCertPathHost != "" {
		readOnly[c.cfg.DockerCertPathHost] = certsMountPoint
	}
	readWrite := lo.Assign(c.rwVolumes, map[string]string{hostDir: hostDir})
	if socket, ok := strings.CutPrefix(c.cfg.DockerHost, unixSocketPrefix); ok {
		readWrite[socket] = socket
	}

	name := NamePrefix + uuid.NewString()
	id, err := c.containers.CreateAndStart(ctx, docker.Spec{
		Image:     c.cfg.EngineImage,
		Name:      name,
		ReadOnly:  readOnly,
		ReadWrite: readWrite,
		Env: []string{
			"TMPDIR=" + hostDir,
			"TEMP=" + hostDir,
			"TMP=" + hostDir,
			"DOCKER_HOST=" + c.cfg.DockerHost,
		},
		Cmd:     cmd,
		WorkDir: hostDir,
		Labels:  map[string]string{submissionLabel: params.SubmissionID},
	})
	if err != nil {
		return Handle{}, err
	}
	launched = true

	c.logger.Info("Workflow job launched", "jobName", name, "submissionId", params.SubmissionID, "cmd", cmd)
	return Handle{Name: name, ContainerID: id, SubmissionID: params.SubmissionID}, nil
}

func writeParams(dir string, p workflowParams) (string, error) {
	f, err := os.CreateTemp(dir, "params-*.yaml")
	if err != nil {
		return "", err
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return filepath.Base(f.Name()), nil
}

// List returns every workflow job container, running or exited. It is the
// ground truth for what this system has launched.
func (c *Catalog) List(ctx context.Context) ([]Listing, error) {
	found, err := c.containers.List(ctx, NamePrefix)
	if err != nil {
		return nil, err
	}
	return lo.Map(found, func(ct docker.Container, _ int) Listing {
		return Listing{Handle: Handle{Name: ct.Name, ContainerID: ct.ID}, State: ct.State}
	}), nil
}

// Status inspects the job and, while it runs, probes its progress. Probe
// failures leave progress unknown.
func (c *Catalog) Status(ctx context.Context, h Handle) (RuntimeStatus, error) {
	state, err := c.containers.Inspect(ctx, h.ContainerID)
	if err != nil {
		return RuntimeStatus{}, err
	}
	status := RuntimeStatus{Running: state.Running, ExitCode: state.ExitCode}
	if !state.Running {
		return status, nil
	}
	out, err := c.containers.ExecTail(ctx, h.ContainerID, progressProbe)
	if err != nil {
		c.logger.Debug("Progress probe failed", "jobName", h.Name, "error", err)
		return status, nil
	}
	status.Progress = parseProgress(out)
	return status, nil
}

// Logs writes the job's full log to dst and returns its last maxTail
// characters.
func (c *Catalog) Logs(ctx context.Context, h Handle, dst io.Writer, maxTail int) (string, error) {
	return c.containers.CollectLogs(ctx, h.ContainerID, dst, maxTail)
}

// Stop stops the job if it is running.
func (c *Catalog) Stop(ctx context.Context, h Handle) error {
	state, err := c.containers.Inspect(ctx, h.ContainerID)
	if err != nil {
		return err
	}
	if !state.Running {
		return nil
	}
	return c.containers.StopWithRetry(ctx, h.ContainerID)
}

// Delete stops the job, then removes it or, when archiving is enabled,
// renames it out of the job namespace.
func (c *Catalog) Delete(ctx context.Context, h Handle) error {
	if err := c.Stop(ctx, h); err != nil {
		return err
	}
	if c.cfg.ArchiveContainers {
		return c.containers.Rename(ctx, h.ContainerID, ArchivePrefix+h.Name)
	}
	return c.containers.Remove(ctx, h.ContainerID, true)
}

// IsGone reports whether err means the job no longer exists.
func IsGone(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
