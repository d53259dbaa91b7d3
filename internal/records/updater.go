package records

import (
	"context"
	"log/slog"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/retry"
	"workflowhook/internal/submission"
)

// Updater pushes patches with optimistic concurrency. A conflicting update
// is retried by refetching the record and reapplying the same patch, as long
// as the record is still in the state the patch was built against.
type Updater struct {
	client Client
	runner *retry.Runner
	logger *slog.Logger
}

// NewUpdater creates an Updater. Only ErrConflict is retried here; other
// transient failures are the client's concern.
func NewUpdater(client Client, policy retry.Policy, opts ...retry.Option) *Updater {
	policy.NoRetry = nil
	policy.NoRetryStatus = nil
	policy.RetryOnly = []error{apperrors.ErrConflict}
	return &Updater{
		client: client,
		runner: retry.New(policy, opts...),
		logger: slog.With("component", "updater"),
	}
}

// Update applies patch to status and stores the result, returning the stored
// status. If the record moved to a different state concurrently the update is
// abandoned with ErrLostRace.
func (u *Updater) Update(ctx context.Context, status *submission.Status, patch *submission.Patch) (*submission.Status, error) {
	expected := status.State
	op := retry.Op[*submission.Status, *submission.Status]{
		ExecuteFn: func(ctx context.Context, current *submission.Status) (*submission.Status, error) {
			return u.client.UpdateItem(ctx, patch.Apply(current))
		},
		RefreshFn: func(ctx context.Context, current *submission.Status) (*submission.Status, error) {
			fresh, err := u.client.GetItem(ctx, current.ID)
			if err != nil {
				return nil, err
			}
			if fresh.State != expected {
				return nil, apperrors.LostRace(current.ID, string(expected), string(fresh.State))
			}
			u.logger.Debug("Reapplying patch after conflict", "submissionId", current.ID, "etag", fresh.Etag)
			return fresh, nil
		},
	}
	return retry.Execute[*submission.Status, *submission.Status](ctx, u.runner, op, status)
}
