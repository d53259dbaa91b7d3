package job

import (
	"math"
	"strconv"
	"strings"
)

// NamePrefix marks containers owned by this system.
const NamePrefix = "workflow_job."

// ArchivePrefix is prepended to the name of a finished job kept for inspection.
const ArchivePrefix = "archive."

// Handle identifies one workflow job container. SubmissionID is filled in by
// the caller once the job is matched to its record.
type Handle struct {
	Name         string `json:"name"`
	ContainerID  string `json:"containerId"`
	SubmissionID string `json:"submissionId,omitempty"`
}

// RuntimeStatus is a point-in-time view of a job. ExitCode is valid only when
// Running is false; Progress is nil when unknown.
type RuntimeStatus struct {
	Running  bool     `json:"running"`
	ExitCode int      `json:"exitCode"`
	Progress *float64 `json:"progress,omitempty"`
}

// Workflow locates a workflow template and its entry point.
type Workflow struct {
	URL        string
	Entrypoint string
}

// Parameters are passed to the workflow engine in the parameters file.
type Parameters struct {
	SubmissionID    string
	WorkflowRef     string
	SubmitterFolder string // Visible to the submitter
	AdminFolder     string // Visible to administrators only
	Credentials     []byte // Written next to the parameters file
}

// Listing pairs a handle with its container state, as reported by the engine.
type Listing struct {
	Handle
	State string `json:"state"`
}

const progressChars = 5

// parseProgress reads a percentage from the first few characters of probe
// output. Non-numeric output yields nil; numbers are clamped to 0..100.
func parseProgress(out string) *float64 {
	out = strings.ReplaceAll(out, "STDOUT:", "")
	out = strings.ReplaceAll(out, "STDERR:", "")
	out = strings.TrimSpace(out)
	if len(out) > progressChars {
		out = out[:progressChars]
	}
	v, err := strconv.ParseFloat(out, 64)
	if err != nil || math.IsNaN(v) {
		return nil
	}
	v = min(max(v, 0), 100)
	return &v
}
