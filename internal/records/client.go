// Package records talks to the remote work-queue record API.
package records

import (
	"context"
	"workflowhook/internal/submission"
)

// PageSize is the number of bundles requested per listing call.
const PageSize = 10

// Page is one slice of a queue listing.
type Page struct {
	Total   int                 `json:"totalNumberOfResults"`
	Results []submission.Bundle `json:"results"`
}

// Template is a resolved workflow template reference.
type Template struct {
	Ref        string `json:"id"`
	URL        string `json:"workflowUrl"`
	Entrypoint string `json:"entrypoint"`
}

// Client is the subset of the record API used by the hook. GetItem and
// UpdateItem must be safe to retry. UpdateItem fails with ErrConflict when
// the etag is stale.
type Client interface {
	ListItems(ctx context.Context, queueID string, state submission.State, offset, limit int) (Page, error)
	GetItem(ctx context.Context, id string) (*submission.Status, error)
	UpdateItem(ctx context.Context, status *submission.Status) (*submission.Status, error)
	SendMessage(ctx context.Context, recipient, subject, body string) error
	PrincipalName(ctx context.Context, id string, team bool) (string, error)
	CurrentPrincipalID(ctx context.Context) (string, error)
	ResolveTemplate(ctx context.Context, ref string) (Template, error)
}
