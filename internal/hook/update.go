package hook

import (
	"context"
	"time"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"
	"workflowhook/internal/submission"
)

// ProcessKilledExitCode is the exit code of a container whose main process
// was killed (128 + SIGKILL).
const ProcessKilledExitCode = 137

// UpdateJob advances one job given its runtime status and records the
// changes in patch. A running job is stopped when cancellation was requested
// or its time is up; a stopped job has its logs harvested and is then
// deleted. The returned outcome decides the item's next state.
func (h *Hook) UpdateJob(ctx context.Context, handle job.Handle, rt job.RuntimeStatus, b submission.Bundle, patch *submission.Patch) (submission.Outcome, error) {
	status := b.Status
	logger := h.logger.With("submissionId", b.Submission.ID, "jobName", handle.Name)

	var (
		outcome       submission.Outcome
		failureReason string
		closed        bool
		useLogTail    bool
	)
	running := rt.Running

	switch {
	case running && (status.IsCancelRequested() || h.outOfTime(status)):
		outcome = submission.OutcomeStoppedTimeOut
		if status.IsCancelRequested() {
			outcome = submission.OutcomeStoppedUponRequest
		}
		logger.Info("Stopping workflow job", "outcome", outcome)
		if err := h.jobs.Stop(ctx, handle); err != nil && !job.IsGone(err) {
			return submission.OutcomeNone, err
		}
		running = false
		closed = true
		useLogTail = true
	case running:
		outcome = submission.OutcomeInProgress
		if rt.Progress != nil {
			logger.Debug("Workflow job progress", "progress", *rt.Progress)
		}
	case rt.ExitCode == 0:
		outcome = submission.OutcomeDone
		closed = true
	case rt.ExitCode == ProcessKilledExitCode:
		outcome = submission.OutcomeStoppedTimeOut
		failureReason = string(submission.OutcomeStoppedTimeOut)
		closed = true
	default:
		outcome = submission.OutcomeError
		failureReason = string(submission.OutcomeError)
		closed = true
		useLogTail = true
	}

	now := h.now()
	lastUpload, uploaded := status.Annotations.Long(submission.KeyLastLogUpload)
	dueForUpload := !uploaded || time.UnixMilli(lastUpload).Add(h.cfg.LogUploadPeriod).Before(now)

	var folder string
	if dueForUpload || !running {
		res, err := h.archiver.UploadLogs(ctx, handle, b.Submission.ID, b.Submission.SubmitterID())
		if err != nil {
			return submission.OutcomeNone, err
		}
		folder = res.FolderID
		if useLogTail && res.Tail != "" {
			failureReason = res.Tail
		}

		notified, _ := status.Annotations.String(submission.KeyLogFileNotificationSent)
		if running && folder != "" && notified != "true" {
			if err := h.notifyLogsAvailable(ctx, b, folder); err != nil {
				return submission.OutcomeNone, err
			}
			patch.SetString(submission.KeyLogFileNotificationSent, "true", submission.Private)
		}
	}

	if !running {
		if err := h.jobs.Delete(ctx, handle); err != nil {
			if !job.IsGone(err) {
				return submission.OutcomeNone, err
			}
			logger.Info("Workflow job already deleted", "error", err)
		}
	}

	patch.SetLong(submission.KeyWorkflowLastUpdated, millis(now), submission.Public)
	if folder != "" {
		patch.SetLong(submission.KeyLastLogUpload, millis(now), submission.Private)
		patch.SetString(submission.KeySubmissionFolder, folder, submission.Public)
	}
	if closed {
		patch.SetStatus(submission.StateClosed, outcome)
	}
	if failureReason != "" {
		patch.SetString(submission.KeyFailureReason, failureReason, submission.Public)
	} else {
		patch.Remove(submission.KeyFailureReason)
	}
	if rt.Progress != nil && outcome == submission.OutcomeInProgress {
		patch.SetDouble(submission.KeyProgress, *rt.Progress, submission.Public)
	}
	return outcome, nil
}

// outOfTime reports whether the item has used up its time: either the
// TIME_REMAINING annotation says so or the configured limit has passed since
// EXECUTION_STARTED.
func (h *Hook) outOfTime(status *submission.Status) bool {
	if !status.HasTimeRemaining() {
		return true
	}
	if h.cfg.JobTimeLimit <= 0 {
		return false
	}
	started, ok := status.Annotations.Long(submission.KeyExecutionStarted)
	return ok && h.now().Sub(time.UnixMilli(started)) > h.cfg.JobTimeLimit
}

func (h *Hook) notifyLogsAvailable(ctx context.Context, b submission.Bundle, folder string) error {
	submitter, err := h.submitters.Get(ctx, b.Submission)
	if err != nil {
		return err
	}
	return h.notifier.Notify(ctx, notify.Message{
		Recipient:    submitter.ID,
		Subject:      notify.SubjectLogsAvailable,
		Body:         notify.LogsAvailableBody(submitter.Name, b.Submission.ID, folder),
		SubmissionID: b.Submission.ID,
	})
}
