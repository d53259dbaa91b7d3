//go:build integration

package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/testutil"
)

const testImage = "alpine:3.20"

func newIntegrationLifecycle(t *testing.T) *Lifecycle {
	t.Helper()
	l, err := NewFromEnv(Config{PullAttempts: 2, PullRetryDelay: time.Second, StopAttempts: 3, StopTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create docker client: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Ready(ctx); err != nil {
		t.Skipf("Docker daemon not available: %v", err)
	}
	return l
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func TestLifecycle_RunToCompletion(t *testing.T) {
	l := newIntegrationLifecycle(t)
	ctx := context.Background()
	name := uniqueName("workflow_job.it-")

	id, err := l.CreateAndStart(ctx, Spec{
		Image:  testImage,
		Name:   name,
		Cmd:    []string{"sh", "-c", "echo hello from workflow; exit 3"},
		Labels: map[string]string{"workflowhook.submission": "it"},
	})
	if err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}
	t.Cleanup(func() { l.Remove(context.Background(), id, true) })

	var state State
	testutil.MustWaitFor(t, func() bool {
		state, err = l.Inspect(ctx, id)
		return err == nil && !state.Running
	}, testutil.WithTimeout(60*time.Second), testutil.WithInterval(500*time.Millisecond), testutil.WithMessage("container exit"))

	if state.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", state.ExitCode)
	}

	var full bytes.Buffer
	tail, err := l.CollectLogs(ctx, id, &full, 10)
	if err != nil {
		t.Fatalf("Failed to collect logs: %v", err)
	}
	if !strings.Contains(full.String(), "hello from workflow") {
		t.Errorf("Expected log output, got %q", full.String())
	}
	if len([]rune(tail)) > 10 {
		t.Errorf("Expected tail of at most 10 characters, got %q", tail)
	}

	listed, err := l.List(ctx, "workflow_job.")
	if err != nil {
		t.Fatalf("Failed to list containers: %v", err)
	}
	found := false
	for _, c := range listed {
		if c.ID == id && c.Name == name {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected %s in listing", name)
	}
}

func TestLifecycle_StopRenameRemove(t *testing.T) {
	l := newIntegrationLifecycle(t)
	ctx := context.Background()
	name := uniqueName("workflow_job.it-")

	id, err := l.CreateAndStart(ctx, Spec{
		Image: testImage,
		Name:  name,
		Cmd:   []string{"sh", "-c", "echo 42.5 > /tmp/progress; sleep 300"},
	})
	if err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}
	t.Cleanup(func() { l.Remove(context.Background(), id, true) })

	testutil.MustWaitFor(t, func() bool {
		out, err := l.ExecTail(ctx, id, []string{"cat", "/tmp/progress"})
		return err == nil && strings.Contains(out, "42.5")
	}, testutil.WithTimeout(30*time.Second), testutil.WithInterval(500*time.Millisecond), testutil.WithMessage("progress file"))

	if err := l.StopWithRetry(ctx, id); err != nil {
		t.Fatalf("Failed to stop container: %v", err)
	}
	state, err := l.Inspect(ctx, id)
	if err != nil {
		t.Fatalf("Failed to inspect container: %v", err)
	}
	if state.Running {
		t.Error("Expected container to be stopped")
	}

	if err := l.Rename(ctx, id, "archive."+name); err != nil {
		t.Fatalf("Failed to rename container: %v", err)
	}
	listed, err := l.List(ctx, name)
	if err != nil {
		t.Fatalf("Failed to list containers: %v", err)
	}
	if len(listed) != 0 {
		t.Errorf("Expected renamed container to leave the job namespace, got %+v", listed)
	}

	if err := l.Remove(ctx, id, true); err != nil {
		t.Fatalf("Failed to remove container: %v", err)
	}
	if _, err := l.Inspect(ctx, id); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found after removal, got %v", err)
	}
	if err := l.Remove(ctx, id, true); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found on second removal, got %v", err)
	}
}
