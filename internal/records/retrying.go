package records

import (
	"context"
	"workflowhook/internal/retry"
	"workflowhook/internal/submission"
)

// Retrying wraps every Client call in a retry.Runner.
type Retrying struct {
	next   Client
	runner *retry.Runner
}

// NewRetrying decorates next with runner.
func NewRetrying(next Client, runner *retry.Runner) *Retrying {
	return &Retrying{next: next, runner: runner}
}

func (r *Retrying) ListItems(ctx context.Context, queueID string, state submission.State, offset, limit int) (Page, error) {
	return retry.Do(ctx, r.runner, func(ctx context.Context) (Page, error) {
		return r.next.ListItems(ctx, queueID, state, offset, limit)
	})
}

func (r *Retrying) GetItem(ctx context.Context, id string) (*submission.Status, error) {
	return retry.Do(ctx, r.runner, func(ctx context.Context) (*submission.Status, error) {
		return r.next.GetItem(ctx, id)
	})
}

func (r *Retrying) UpdateItem(ctx context.Context, status *submission.Status) (*submission.Status, error) {
	return retry.Do(ctx, r.runner, func(ctx context.Context) (*submission.Status, error) {
		return r.next.UpdateItem(ctx, status)
	})
}

func (r *Retrying) SendMessage(ctx context.Context, recipient, subject, body string) error {
	return retry.Run(ctx, r.runner, func(ctx context.Context) error {
		return r.next.SendMessage(ctx, recipient, subject, body)
	})
}

func (r *Retrying) PrincipalName(ctx context.Context, id string, team bool) (string, error) {
	return retry.Do(ctx, r.runner, func(ctx context.Context) (string, error) {
		return r.next.PrincipalName(ctx, id, team)
	})
}

func (r *Retrying) CurrentPrincipalID(ctx context.Context) (string, error) {
	return retry.Do(ctx, r.runner, r.next.CurrentPrincipalID)
}

func (r *Retrying) ResolveTemplate(ctx context.Context, ref string) (Template, error) {
	return retry.Do(ctx, r.runner, func(ctx context.Context) (Template, error) {
		return r.next.ResolveTemplate(ctx, ref)
	})
}

var _ Client = (*Retrying)(nil)
