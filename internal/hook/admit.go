package hook

import (
	"context"
	"fmt"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"
	"workflowhook/internal/records"
	"workflowhook/internal/submission"
)

// AdmitNew launches a job for every item of queueID waiting in the stage's
// initial state. An invalid submission closes the item; any other failure is
// escalated to the operator and ends the cycle.
func (h *Hook) AdmitNew(ctx context.Context, queueID string) error {
	bundles, err := records.SelectBundles(ctx, h.records, queueID, h.cfg.Stage.Initial())
	if err != nil {
		return h.escalate(ctx, "", "", err)
	}
	for _, b := range bundles {
		if err := h.admit(ctx, queueID, b); err != nil {
			return h.escalate(ctx, b.Submission.ID, h.workflows[queueID].URL, err)
		}
	}
	return nil
}

func (h *Hook) admit(ctx context.Context, queueID string, b submission.Bundle) error {
	logger := h.logger.With("submissionId", b.Submission.ID, "queueId", queueID)

	if b.Status.IsCancelRequested() {
		patch := submission.NewPatch().SetStatus(submission.StateInvalid, submission.OutcomeStoppedUponRequest)
		_, err := h.updater.Update(ctx, b.Status, patch)
		switch {
		case lostRace(err):
			logger.Info("Cancelled item changed concurrently, leaving it", "error", err)
			return nil
		case err != nil:
			return err
		}
		logger.Info("Cancelled before start")
		h.recordOutcome(ctx, submission.OutcomeStoppedUponRequest)
		return nil
	}

	now := millis(h.now())
	patch := submission.NewPatch().
		SetCancelRequested(false).
		Remove(submission.KeyWorkflowJobID).
		Remove(submission.KeyFailureReason).
		Remove(submission.KeyStatusDescription).
		Remove(submission.KeyLastLogUpload).
		Remove(submission.KeyLogFileNotificationSent).
		Remove(submission.KeyProgress).
		SetLong(submission.KeyExecutionStarted, now, submission.Private).
		SetLong(submission.KeyWorkflowLastUpdated, now, submission.Public).
		SetStatus(h.cfg.Stage.InProgress(), submission.OutcomeNone)

	submitterID := b.Submission.SubmitterID()
	shared, locked, err := h.archiver.SubmitterFolders(ctx, submitterID)
	if err != nil {
		return err
	}
	handle, err := h.jobs.Launch(ctx, h.workflows[queueID], job.Parameters{
		SubmissionID:    b.Submission.ID,
		WorkflowRef:     h.cfg.Templates[queueID],
		SubmitterFolder: shared,
		AdminFolder:     locked,
		Credentials:     h.cfg.Credentials,
	})
	if err != nil {
		if !apperrors.IsInvalidSubmission(err) {
			return err
		}
		logger.Warn("Invalid submission", "error", err)
		submitter, serr := h.submitters.Get(ctx, b.Submission)
		if serr != nil {
			return serr
		}
		return h.closeAndNotify(ctx, b, patch, closure{
			recipient: submitter.ID,
			state:     submission.StateInvalid,
			outcome:   submission.OutcomeError,
			reason:    err.Error(),
			subject:   notify.SubjectFailed,
			body:      notify.FailedBody(submitter.Name, b.Submission.ID, err.Error(), ""),
		})
	}

	patch.SetString(submission.KeyWorkflowJobID, handle.Name, submission.Private)
	if _, err := h.updater.Update(ctx, b.Status, patch); err != nil {
		handle.SubmissionID = b.Submission.ID
		if derr := h.jobs.Delete(ctx, handle); derr != nil && !job.IsGone(derr) {
			logger.Error("Failed to remove unrecorded job", "jobName", handle.Name, "error", derr)
		}
		if lostRace(err) {
			logger.Warn("Item changed while its job was starting, job removed", "jobName", handle.Name, "error", err)
			return nil
		}
		return fmt.Errorf("started job %s but could not update submission %s: %w", handle.Name, b.Submission.ID, err)
	}

	logger.Info("Workflow job started", "jobName", handle.Name)
	if h.metrics != nil {
		h.metrics.RecordJobLaunched(ctx, queueID)
	}
	return nil
}
