// Package hook runs the reconciliation loop that admits queued submissions
// as workflow jobs and drives running jobs to a terminal state.
//
// Each cycle first admits new items queue by queue, then reconciles every
// in-progress item against the job containers that actually exist. The
// container set is ground truth: a job no record owns is a fatal
// inconsistency, and a record whose job vanished is closed as invalid.
package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/archive"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"
	"workflowhook/internal/records"
	"workflowhook/internal/submission"

	"github.com/samber/lo"
)

// Jobs is the job catalog as the loop uses it.
type Jobs interface {
	Launch(ctx context.Context, wf job.Workflow, params job.Parameters) (job.Handle, error)
	List(ctx context.Context) ([]job.Listing, error)
	Status(ctx context.Context, h job.Handle) (job.RuntimeStatus, error)
	Stop(ctx context.Context, h job.Handle) error
	Delete(ctx context.Context, h job.Handle) error
}

// Archiver stores job logs in submitter folders.
type Archiver interface {
	SubmitterFolders(ctx context.Context, submitterID string) (shared, locked string, err error)
	UploadLogs(ctx context.Context, h job.Handle, submissionID, submitterID string) (archive.Result, error)
}

// MetricsRecorder is an optional interface for recording loop metrics.
type MetricsRecorder interface {
	RecordCycle(ctx context.Context, durationSeconds float64, err error)
	RecordJobLaunched(ctx context.Context, queueID string)
	RecordJobOutcome(ctx context.Context, outcome string)
}

// Deps are the collaborators of a Hook.
type Deps struct {
	Records    records.Client
	Updater    *records.Updater
	Submitters *records.Submitters
	Jobs       Jobs
	Archiver   Archiver
	Notifier   notify.Notifier
}

// Option configures a Hook.
type Option func(*Hook)

// WithMetrics records cycle and job metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Hook) {
		h.metrics = m
	}
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(h *Hook) {
		h.now = now
	}
}

// CycleStats describes the most recent cycle.
type CycleStats struct {
	Completed time.Time     `json:"completed"`
	Duration  time.Duration `json:"duration"`
	Cycles    int64         `json:"cycles"`
	Error     string        `json:"error,omitempty"`
}

// Hook is the reconciliation loop.
type Hook struct {
	records    records.Client
	updater    *records.Updater
	submitters *records.Submitters
	jobs       Jobs
	archiver   Archiver
	notifier   notify.Notifier
	cfg        Config
	metrics    MetricsRecorder
	now        func() time.Time
	logger     *slog.Logger

	// Resolved on the first cycle.
	queues    []string
	workflows map[string]job.Workflow
	operator  string

	mu    sync.RWMutex
	stats CycleStats
}

// New creates a Hook.
func New(cfg Config, deps Deps, opts ...Option) (*Hook, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	h := &Hook{
		records:    deps.Records,
		updater:    deps.Updater,
		submitters: deps.Submitters,
		jobs:       deps.Jobs,
		archiver:   deps.Archiver,
		notifier:   deps.Notifier,
		cfg:        cfg,
		now:        time.Now,
		logger:     slog.With("component", "hook"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run resolves the workflow templates, then runs a cycle every poll
// interval until ctx is cancelled or a cycle fails. Cancellation lets the
// current cycle finish and returns nil.
func (h *Hook) Run(ctx context.Context) error {
	if err := h.init(ctx); err != nil {
		return err
	}
	h.logger.Info("Workflow hook started",
		"queues", h.queues,
		"stage", h.cfg.Stage,
		"pollInterval", h.cfg.PollInterval,
	)

	for {
		if ctx.Err() != nil {
			break
		}
		if err := h.Cycle(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
		case <-time.After(h.cfg.PollInterval):
		}
	}
	h.logger.Info("Workflow hook stopped", "cycles", h.Stats().Cycles)
	return nil
}

// Cycle admits new work in every queue, then reconciles running work. A
// shutdown requested during the cycle does not interrupt it; the cycle is
// only cancelled if it outlives the drain timeout.
func (h *Hook) Cycle(ctx context.Context) error {
	if err := h.init(ctx); err != nil {
		return err
	}
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stopDrain := context.AfterFunc(ctx, func() {
		h.logger.Info("Shutdown requested, finishing current cycle", "timeout", h.cfg.DrainTimeout)
		timer := time.AfterFunc(h.cfg.DrainTimeout, cancel)
		context.AfterFunc(cctx, func() { timer.Stop() })
	})
	defer stopDrain()

	start := h.now()
	err := h.cycle(cctx)
	duration := h.now().Sub(start)

	if h.metrics != nil {
		h.metrics.RecordCycle(cctx, duration.Seconds(), err)
	}
	h.mu.Lock()
	h.stats.Cycles++
	h.stats.Duration = duration
	if err != nil {
		h.stats.Error = err.Error()
	} else {
		h.stats.Completed = h.now()
		h.stats.Error = ""
	}
	h.mu.Unlock()
	return err
}

func (h *Hook) cycle(ctx context.Context) error {
	h.logger.Debug("Checking progress and starting new jobs")
	for _, queueID := range h.queues {
		if err := h.AdmitNew(ctx, queueID); err != nil {
			return err
		}
	}
	return h.ReconcileRunning(ctx, h.queues...)
}

// Stats returns a snapshot of the last cycle.
func (h *Hook) Stats() CycleStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// LastCycle returns when the last successful cycle completed; zero before
// the first one.
func (h *Hook) LastCycle() time.Time {
	return h.Stats().Completed
}

// init resolves templates and the operator once.
func (h *Hook) init(ctx context.Context) error {
	if h.workflows != nil {
		return nil
	}
	queues := lo.Keys(h.cfg.Templates)
	slices.Sort(queues)

	workflows := make(map[string]job.Workflow, len(queues))
	for _, queueID := range queues {
		ref := h.cfg.Templates[queueID]
		t, err := h.records.ResolveTemplate(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolve template %s for queue %s: %w", ref, queueID, err)
		}
		workflows[queueID] = job.Workflow{URL: t.URL, Entrypoint: t.Entrypoint}
		h.logger.Info("Monitoring queue", "queueId", queueID, "template", ref, "workflowUrl", t.URL, "entrypoint", t.Entrypoint)
	}

	operator := h.cfg.OperatorID
	if operator == "" {
		id, err := h.records.CurrentPrincipalID(ctx)
		if err != nil {
			return fmt.Errorf("resolve notification principal: %w", err)
		}
		operator = id
	}

	h.queues, h.workflows, h.operator = queues, workflows, operator
	return nil
}

// escalate tells the operator about a pipeline fault and returns err.
func (h *Hook) escalate(ctx context.Context, submissionID, workflow string, err error) error {
	h.logger.Error("Pipeline failed", "submissionId", submissionID, "error", err)
	msg := notify.Message{
		Recipient:    h.operator,
		Subject:      notify.SubjectPipelineFailure,
		Body:         notify.PipelineFailureBody(submissionID, workflow, fmt.Sprintf("%+v", err)),
		SubmissionID: submissionID,
	}
	if nerr := h.notifier.Notify(ctx, msg); nerr != nil {
		h.logger.Error("Failed to notify operator", "submissionId", submissionID, "error", nerr)
	}
	return err
}

// closure describes how an item is closed and who hears about it.
type closure struct {
	recipient string
	state     submission.State
	outcome   submission.Outcome
	reason    string // FAILURE_REASON; empty removes it
	subject   string
	body      string
}

// closeAndNotify applies c to patch, persists it and sends the notification.
// The notification is skipped if another actor moved the item first.
func (h *Hook) closeAndNotify(ctx context.Context, b submission.Bundle, patch *submission.Patch, c closure) error {
	patch.SetStatus(c.state, c.outcome)
	if c.reason != "" {
		patch.SetString(submission.KeyFailureReason, c.reason, submission.Public)
	} else {
		patch.Remove(submission.KeyFailureReason)
	}
	if _, err := h.updater.Update(ctx, b.Status, patch); err != nil {
		if lostRace(err) {
			h.logger.Warn("Item changed concurrently, not closing", "submissionId", b.Submission.ID, "error", err)
			return nil
		}
		return err
	}
	h.logger.Info("Submission closed", "submissionId", b.Submission.ID, "state", c.state, "outcome", c.outcome)
	h.recordOutcome(ctx, c.outcome)
	return h.notifier.Notify(ctx, notify.Message{
		Recipient:    c.recipient,
		Subject:      c.subject,
		Body:         c.body,
		SubmissionID: b.Submission.ID,
	})
}

func (h *Hook) recordOutcome(ctx context.Context, outcome submission.Outcome) {
	if h.metrics != nil && outcome != submission.OutcomeNone {
		h.metrics.RecordJobOutcome(ctx, string(outcome))
	}
}

func lostRace(err error) bool {
	return errors.Is(err, apperrors.ErrLostRace)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}
