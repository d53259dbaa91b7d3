package records

import (
	"context"
	"fmt"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/submission"
)

// SelectBundles lists every bundle of queueID in state, page by page. A
// duplicate id or an item in another state means the listing is
// inconsistent and is reported as an internal fault.
func SelectBundles(ctx context.Context, client Client, queueID string, state submission.State) ([]submission.Bundle, error) {
	var result []submission.Bundle
	seen := make(map[string]struct{})

	for offset, total := 0, 1; offset < total; offset += PageSize {
		page, err := client.ListItems(ctx, queueID, state, offset, PageSize)
		if err != nil {
			return nil, fmt.Errorf("list %s items in queue %s: %w", state, queueID, err)
		}
		total = page.Total

		for _, b := range page.Results {
			id := b.Submission.ID
			if _, dup := seen[id]; dup {
				return nil, apperrors.Internal("records.select", fmt.Errorf("list has multiple copies of %s", id))
			}
			seen[id] = struct{}{}
			if b.Status == nil || b.Status.State != state {
				return nil, apperrors.Internal("records.select",
					fmt.Errorf("submission %s has state %v when %s was expected", id, stateOf(b.Status), state))
			}
			result = append(result, b)
		}
		if len(page.Results) == 0 {
			break
		}
	}
	return result, nil
}

func stateOf(s *submission.Status) submission.State {
	if s == nil {
		return ""
	}
	return s.State
}
