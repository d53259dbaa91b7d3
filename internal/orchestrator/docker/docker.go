// Package docker runs workflow job containers on the host Docker daemon and
// wraps the lifecycle operations the hook needs: pull, create and start,
// inspect, exec, log collection, stop, remove and rename.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/retry"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// engine is the subset of the Docker API used here. *client.Client
// satisfies it.
type engine interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerRename(ctx context.Context, containerID, newContainerName string) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// Lifecycle manages workflow job containers.
type Lifecycle struct {
	client     engine
	cfg        Config
	stopRunner *retry.Runner
	logger     *slog.Logger
}

// Spec describes a container to create. ReadOnly and ReadWrite map host
// paths to container paths.
type Spec struct {
	Image     string
	Name      string
	ReadOnly  map[string]string
	ReadWrite map[string]string
	Env       []string
	Cmd       []string
	WorkDir   string
	Labels    map[string]string
}

// State is a point-in-time view of a container. ExitCode is meaningful only
// when Running is false.
type State struct {
	Running  bool
	ExitCode int
	Status   string
}

// Container is a listed container.
type Container struct {
	ID    string
	Name  string
	State string
}

// New creates a Lifecycle over an existing engine client.
func New(client engine, cfg Config, opts ...retry.Option) *Lifecycle {
	cfg = cfg.withDefaults()
	return &Lifecycle{
		client: client,
		cfg:    cfg,
		stopRunner: retry.New(retry.Policy{
			Attempts:            cfg.StopAttempts,
			UnavailableAttempts: cfg.StopAttempts,
			NoRetry:             []error{apperrors.ErrNotFound},
		}, opts...),
		logger: slog.With("component", "docker"),
	}
}

// NewFromEnv connects to the daemon named by DOCKER_HOST and friends.
func NewFromEnv(cfg Config) (*Lifecycle, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return New(dockerClient, cfg), nil
}

// CreateAndStart pulls the image (unless referenced by digest), creates the
// container and starts it. A container that was created but failed to start
// is removed before the error is returned.
func (l *Lifecycle) CreateAndStart(ctx context.Context, spec Spec) (string, error) {
	if err := l.PullImage(ctx, spec.Image); err != nil {
		return "", err
	}

	containerConfig := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Cmd,
		Env:        spec.Env,
		WorkingDir: spec.WorkDir,
		Labels:     spec.Labels,
	}

	hostConfig := &container.HostConfig{
		Binds:       binds(spec.ReadOnly, spec.ReadWrite),
		SecurityOpt: []string{"no-new-privileges"},
		LogConfig: container.LogConfig{
			Type:   "json-file",
			Config: map[string]string{"max-size": "1g", "max-file": "2"},
		},
		Resources: container.Resources{
			MemorySwap: 0,
		},
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", apperrors.Internal("docker.createContainer", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := l.Remove(context.WithoutCancel(ctx), resp.ID, true); rmErr != nil {
			l.logger.Warn("Failed to remove container after start failure", "container", spec.Name, "error", rmErr)
		}
		return "", apperrors.Internal("docker.startContainer", err)
	}

	l.logger.Info("Container started", "container", spec.Name, "image", spec.Image)
	return resp.ID, nil
}

// binds renders host:container:mode bind specs. Read-only wins if a host
// path appears in both maps.
func binds(readOnly, readWrite map[string]string) []string {
	result := make([]string, 0, len(readOnly)+len(readWrite))
	for host, target := range readWrite {
		if _, ro := readOnly[host]; ro {
			continue
		}
		result = append(result, host+":"+target+":rw")
	}
	for host, target := range readOnly {
		result = append(result, host+":"+target+":ro")
	}
	return result
}

// Inspect returns the container's running state.
func (l *Lifecycle) Inspect(ctx context.Context, id string) (State, error) {
	inspect, err := l.client.ContainerInspect(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return State{}, apperrors.NotFound("container", id)
		}
		return State{}, apperrors.Internal("docker.inspectContainer", err)
	}
	if inspect.State == nil {
		return State{}, apperrors.Internal("docker.inspectContainer", errors.New("no state in inspect response"))
	}
	return State{
		Running:  inspect.State.Running,
		ExitCode: inspect.State.ExitCode,
		Status:   string(inspect.State.Status),
	}, nil
}

// StopWithRetry stops a container with a generous grace period. A container
// still running afterwards counts as a failed attempt.
func (l *Lifecycle) StopWithRetry(ctx context.Context, id string) error {
	timeout := int(l.cfg.StopTimeout / time.Second)
	return retry.Run(ctx, l.stopRunner, func(ctx context.Context) error {
		if err := l.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
			if cerrdefs.IsNotFound(err) {
				return apperrors.NotFound("container", id)
			}
			return apperrors.Internal("docker.stopContainer", err)
		}
		state, err := l.Inspect(ctx, id)
		if err != nil {
			return err
		}
		if state.Running {
			return fmt.Errorf("container %s still running after stop", id)
		}
		return nil
	})
}

// Remove deletes a container. force also removes a running one.
func (l *Lifecycle) Remove(ctx context.Context, id string, force bool) error {
	if err := l.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		if cerrdefs.IsNotFound(err) {
			return apperrors.NotFound("container", id)
		}
		return apperrors.Internal("docker.removeContainer", err)
	}
	return nil
}

// Rename renames a container, keeping it for later inspection.
func (l *Lifecycle) Rename(ctx context.Context, id, name string) error {
	if err := l.client.ContainerRename(ctx, id, name); err != nil {
		if cerrdefs.IsNotFound(err) {
			return apperrors.NotFound("container", id)
		}
		return apperrors.Internal("docker.renameContainer", err)
	}
	return nil
}

// List returns all containers, running or not, whose name starts with
// prefix.
func (l *Lifecycle) List(ctx context.Context, prefix string) ([]Container, error) {
	containers, err := l.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", prefix)),
	})
	if err != nil {
		return nil, apperrors.Internal("docker.listContainers", err)
	}

	var result []Container
	for _, c := range containers {
		for _, name := range c.Names {
			name = strings.TrimPrefix(name, "/")
			// The name filter is a substring match.
			if strings.HasPrefix(name, prefix) {
				result = append(result, Container{ID: c.ID, Name: name, State: string(c.State)})
				break
			}
		}
	}
	return result, nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (l *Lifecycle) Ready(ctx context.Context) error {
	_, err := l.client.Ping(ctx)
	return err
}

// Close releases the client.
func (l *Lifecycle) Close() error {
	return l.client.Close()
}
