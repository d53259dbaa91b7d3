package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"workflowhook/internal/job"
)

type stubJobs struct {
	listings []job.Listing
	statuses map[string]job.RuntimeStatus
	err      error
}

func (s stubJobs) List(context.Context) ([]job.Listing, error) {
	return s.listings, s.err
}

func (s stubJobs) Status(_ context.Context, h job.Handle) (job.RuntimeStatus, error) {
	st, ok := s.statuses[h.Name]
	if !ok {
		return job.RuntimeStatus{}, errors.New("no such container")
	}
	return st, nil
}

func TestPrintJobs(t *testing.T) {
	t.Parallel()
	progress := 42.5
	jobs := stubJobs{
		listings: []job.Listing{
			{Handle: job.Handle{Name: "workflow_job.1", ContainerID: "0123456789abcdef"}, State: "running"},
			{Handle: job.Handle{Name: "workflow_job.2", ContainerID: "fedcba"}, State: "exited"},
			{Handle: job.Handle{Name: "workflow_job.3", ContainerID: "gone"}, State: "dead"},
		},
		statuses: map[string]job.RuntimeStatus{
			"workflow_job.1": {Running: true, Progress: &progress},
			"workflow_job.2": {ExitCode: 137},
		},
	}

	var out bytes.Buffer
	if err := printJobs(context.Background(), &out, jobs); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header and 3 rows, got %q", out.String())
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("Expected header row, got %q", lines[0])
	}

	tests := []struct {
		line   string
		fields []string
	}{
		{lines[1], []string{"workflow_job.1", "0123456789ab", "running", "-", "42.5%"}},
		{lines[2], []string{"workflow_job.2", "fedcba", "exited", "137", "-"}},
		{lines[3], []string{"workflow_job.3", "gone", "dead", "-", "-"}},
	}
	for _, tt := range tests {
		got := strings.Fields(tt.line)
		if strings.Join(got, " ") != strings.Join(tt.fields, " ") {
			t.Errorf("Expected %v, got %v", tt.fields, got)
		}
	}
}

func TestPrintJobs_Empty(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	if err := printJobs(context.Background(), &out, stubJobs{}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "No workflow jobs." {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestPrintJobs_ListError(t *testing.T) {
	t.Parallel()
	want := errors.New("daemon down")
	if err := printJobs(context.Background(), &bytes.Buffer{}, stubJobs{err: want}); !errors.Is(err, want) {
		t.Errorf("Expected %v, got %v", want, err)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()
	root := newRootCmd()
	for _, name := range []string{"run", "jobs"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %s, got %v (%v)", name, cmd, err)
		}
	}
}
