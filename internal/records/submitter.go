package records

import (
	"context"
	"fmt"
	"workflowhook/internal/submission"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSubmitterCacheSize = 1024

// Submitter is who a notification about a submission is addressed to.
type Submitter struct {
	ID   string
	Name string
}

// Submitters resolves submitter display names through a bounded cache.
type Submitters struct {
	client Client
	cache  *lru.Cache[string, string]
}

// NewSubmitters creates a cache of size entries (default 1024).
func NewSubmitters(client Client, size int) *Submitters {
	if size <= 0 {
		size = defaultSubmitterCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		panic(fmt.Sprintf("submitter cache: %v", err))
	}
	return &Submitters{client: client, cache: cache}
}

// Get returns the submitter of s: its team if it has one, otherwise its
// user.
func (c *Submitters) Get(ctx context.Context, s submission.Submission) (Submitter, error) {
	id := s.SubmitterID()
	if name, ok := c.cache.Get(id); ok {
		return Submitter{ID: id, Name: name}, nil
	}
	name, err := c.client.PrincipalName(ctx, id, s.IsTeam())
	if err != nil {
		return Submitter{}, fmt.Errorf("resolve submitter %s: %w", id, err)
	}
	c.cache.Add(id, name)
	return Submitter{ID: id, Name: name}, nil
}

// Len returns the number of cached names.
func (c *Submitters) Len() int {
	return c.cache.Len()
}
