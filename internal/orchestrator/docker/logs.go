package docker

import (
	"context"
	"io"
	"unicode/utf8"
	"workflowhook/internal/apperrors"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// MaxExecOutput caps the output kept from an exec. Anything beyond it is
// read and discarded.
const MaxExecOutput = 1 << 30

// Tail keeps the last max characters written to it. A multi-byte character
// split across writes is held back until its remaining bytes arrive.
type Tail struct {
	max     int
	buf     []rune
	partial []byte
}

// NewTail creates a Tail of max characters. max <= 0 keeps nothing.
func NewTail(max int) *Tail {
	return &Tail{max: max}
}

// Write appends p and drops characters from the front beyond the limit.
func (t *Tail) Write(p []byte) (int, error) {
	if t.max <= 0 {
		return len(p), nil
	}
	data := append(t.partial, p...)
	cut := incompleteSuffix(data)
	t.partial = append([]byte(nil), data[cut:]...)
	t.buf = append(t.buf, []rune(string(data[:cut]))...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String returns the current window.
func (t *Tail) String() string {
	return string(t.buf)
}

// incompleteSuffix returns where a trailing, not yet complete UTF-8 sequence
// starts in b, or len(b) if b ends on a character boundary.
func incompleteSuffix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}

// CollectLogs writes the container's full timestamped stdout and stderr to
// dst and returns the last maxTail characters.
func (l *Lifecycle) CollectLogs(ctx context.Context, id string, dst io.Writer, maxTail int) (string, error) {
	logs, err := l.client.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", apperrors.NotFound("container", id)
		}
		return "", apperrors.Internal("docker.containerLogs", err)
	}
	defer logs.Close()

	tail := NewTail(maxTail)
	out := io.MultiWriter(dst, tail)
	if _, err := stdcopy.StdCopy(out, out, logs); err != nil {
		return tail.String(), apperrors.Internal("docker.containerLogs", err)
	}
	return tail.String(), nil
}

// ExecTail runs cmd inside a running container and returns its combined
// output, truncated to MaxExecOutput bytes.
func (l *Lifecycle) ExecTail(ctx context.Context, id string, cmd []string) (string, error) {
	return l.execCapped(ctx, id, cmd, MaxExecOutput)
}

func (l *Lifecycle) execCapped(ctx context.Context, id string, cmd []string, limit int64) (string, error) {
	exec, err := l.client.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return "", apperrors.NotFound("container", id)
		}
		return "", apperrors.Internal("docker.execCreate", err)
	}

	resp, err := l.client.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", apperrors.Internal("docker.execAttach", err)
	}
	defer resp.Close()

	capped := &limitedBuffer{limit: limit}
	if _, err := stdcopy.StdCopy(capped, capped, resp.Reader); err != nil {
		return capped.String(), apperrors.Internal("docker.execRead", err)
	}
	return capped.String(), nil
}

// limitedBuffer accepts every write but keeps only the first limit bytes.
type limitedBuffer struct {
	limit int64
	buf   []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - int64(len(b.buf)); room > 0 {
		b.buf = append(b.buf, p[:min(int64(len(p)), room)]...)
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
