package hook

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"
	"workflowhook/internal/records"
	"workflowhook/internal/submission"

	"github.com/samber/lo"
)

const noRunningWorkflow = "No running workflow found for submission."

// ReconcileRunning matches the in-progress items of the given queues against
// the existing job containers and advances every matched job. Jobs are
// matched across all queues at once because the container listing is not
// partitioned by queue.
func (h *Hook) ReconcileRunning(ctx context.Context, queueIDs ...string) error {
	var running []submission.Bundle
	for _, queueID := range queueIDs {
		bundles, err := records.SelectBundles(ctx, h.records, queueID, h.cfg.Stage.InProgress())
		if err != nil {
			return h.escalate(ctx, "", "", err)
		}
		running = append(running, bundles...)
	}
	listings, err := h.jobs.List(ctx)
	if err != nil {
		return h.escalate(ctx, "", "", err)
	}

	jobs := lo.KeyBy(listings, func(l job.Listing) string { return l.Name })
	items := make(map[string]submission.Bundle, len(running))
	for _, b := range running {
		name, ok := b.Status.JobName()
		if !ok {
			return h.escalate(ctx, b.Submission.ID, "",
				apperrors.Internal("hook.reconcile", fmt.Errorf("submission %s has no workflow job ID", b.Submission.ID)))
		}
		items[name] = b
	}

	orphans := lo.Filter(lo.Keys(jobs), func(name string, _ int) bool {
		_, ok := items[name]
		return !ok
	})
	if len(orphans) > 0 {
		slices.Sort(orphans)
		return h.escalate(ctx, "", "", apperrors.Internal("hook.reconcile",
			fmt.Errorf("running workflow(s) without corresponding submission(s): %s", strings.Join(orphans, ", "))))
	}

	for _, b := range running {
		name, _ := b.Status.JobName()
		if _, ok := jobs[name]; ok {
			continue
		}
		h.logger.Warn("No running workflow found", "submissionId", b.Submission.ID, "jobName", name)
		err := h.closeAndNotify(ctx, b, submission.NewPatch(), closure{
			recipient: h.operator,
			state:     submission.StateInvalid,
			outcome:   submission.OutcomeError,
			subject:   notify.SubjectFailed,
			body:      notify.PipelineFailureBody(b.Submission.ID, "", noRunningWorkflow),
		})
		if err != nil {
			return h.escalate(ctx, b.Submission.ID, name, err)
		}
	}

	names := lo.Keys(jobs)
	slices.Sort(names)
	for _, name := range names {
		l := jobs[name]
		b := items[name]
		handle := l.Handle
		handle.SubmissionID = b.Submission.ID
		if err := h.reconcile(ctx, handle, b); err != nil {
			return h.escalate(ctx, b.Submission.ID, describe(handle), err)
		}
	}
	return nil
}

// reconcile advances one job and persists the resulting item state. The
// submitter is notified after the update is stored.
func (h *Hook) reconcile(ctx context.Context, handle job.Handle, b submission.Bundle) error {
	logger := h.logger.With("submissionId", b.Submission.ID, "jobName", handle.Name)

	rt, err := h.jobs.Status(ctx, handle)
	if err != nil {
		if job.IsGone(err) {
			logger.Warn("Job disappeared before inspection, deferring to next cycle")
			return nil
		}
		return err
	}

	patch := submission.NewPatch()
	outcome, err := h.UpdateJob(ctx, handle, rt, b, patch)
	if err != nil {
		return err
	}

	var msg *notify.Message
	switch outcome {
	case submission.OutcomeInProgress:
		patch.SetState(h.cfg.Stage.InProgress())
	case submission.OutcomeDone:
		patch.SetState(h.cfg.Stage.Final())
		patch.Remove(submission.KeyFailureReason)
		submitter, err := h.submitters.Get(ctx, b.Submission)
		if err != nil {
			return err
		}
		folder, _ := patch.Apply(b.Status).Annotations.String(submission.KeySubmissionFolder)
		msg = &notify.Message{
			Recipient: submitter.ID,
			Subject:   notify.SubjectComplete,
			Body:      notify.CompleteBody(submitter.Name, b.Submission.ID, folder),
		}
	case submission.OutcomeRejected:
		patch.SetState(submission.StateRejected)
	case submission.OutcomeError, submission.OutcomeStoppedUponRequest, submission.OutcomeStoppedTimeOut:
		patch.SetState(submission.StateInvalid)
		submitter, err := h.submitters.Get(ctx, b.Submission)
		if err != nil {
			return err
		}
		merged := patch.Apply(b.Status)
		reason, _ := merged.Annotations.String(submission.KeyFailureReason)
		folder, _ := merged.Annotations.String(submission.KeySubmissionFolder)
		msg = &notify.Message{
			Recipient: submitter.ID,
			Subject:   notify.SubjectFailed,
			Body:      notify.FailedBody(submitter.Name, b.Submission.ID, reason, folder),
		}
	default:
		return apperrors.Internal("hook.reconcile", fmt.Errorf("unexpected outcome %q", outcome))
	}

	patch.SetLong(submission.KeyWorkflowLastUpdated, millis(h.now()), submission.Public)

	if _, err := h.updater.Update(ctx, b.Status, patch); err != nil {
		if lostRace(err) {
			logger.Warn("Item changed concurrently, update abandoned", "outcome", outcome, "error", err)
			return nil
		}
		return err
	}
	if outcome != submission.OutcomeInProgress {
		logger.Info("Workflow job finished", "outcome", outcome)
		h.recordOutcome(ctx, outcome)
	}
	if msg == nil {
		return nil
	}
	msg.SubmissionID = b.Submission.ID
	return h.notifier.Notify(ctx, *msg)
}

func describe(h job.Handle) string {
	return fmt.Sprintf("job %s (container %s)", h.Name, h.ContainerID)
}
