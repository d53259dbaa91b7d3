package records

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/retry"
	"workflowhook/internal/submission"
)

func noSleep(context.Context, time.Duration) error { return nil }

func seeded(t *testing.T) (*Memory, *submission.Status) {
	t.Helper()
	m := NewMemory("273950")
	m.Add(submission.Bundle{
		Submission: submission.Submission{ID: "9700001", QueueID: "9614112", UserID: "u1"},
		Status:     &submission.Status{State: submission.StateReceived},
	})
	s, err := m.GetItem(context.Background(), "9700001")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	return m, s
}

func TestUpdater_Update(t *testing.T) {
	t.Parallel()
	m, s := seeded(t)
	u := NewUpdater(m, retry.DefaultPolicy(), retry.WithSleep(noSleep))

	patch := submission.NewPatch().
		SetString(submission.KeyWorkflowJobID, "workflow_job.a", submission.Private).
		SetState(submission.StateEvaluationInProgress)
	updated, err := u.Update(context.Background(), s, patch)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if updated.Etag == s.Etag {
		t.Error("Expected a new etag")
	}
	stored := m.Status("9700001")
	if stored.State != submission.StateEvaluationInProgress {
		t.Errorf("Expected stored EVALUATION_IN_PROGRESS, got %s", stored.State)
	}
}

func TestUpdater_ConflictRefetchesAndReapplies(t *testing.T) {
	t.Parallel()
	m, s := seeded(t)
	u := NewUpdater(m, retry.DefaultPolicy(), retry.WithSleep(noSleep))

	// Another actor adds an annotation without changing the state.
	m.Modify("9700001", func(st *submission.Status) {
		st.Annotations = st.Annotations.Set(submission.LongAnnotation(submission.KeyTimeRemaining, 600, submission.Public))
	})

	patch := submission.NewPatch().SetString(submission.KeyFailureReason, "boom", submission.Public)
	if _, err := u.Update(context.Background(), s, patch); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	stored := m.Status("9700001")
	if v, ok := stored.Annotations.Long(submission.KeyTimeRemaining); !ok || v != 600 {
		t.Error("Concurrent annotation was lost")
	}
	if v, _ := stored.Annotations.String(submission.KeyFailureReason); v != "boom" {
		t.Errorf("Expected patch reapplied, got %q", v)
	}
}

func TestUpdater_LostRace(t *testing.T) {
	t.Parallel()
	m, s := seeded(t)
	u := NewUpdater(m, retry.DefaultPolicy(), retry.WithSleep(noSleep))

	m.Modify("9700001", func(st *submission.Status) { st.State = submission.StateInvalid })

	_, err := u.Update(context.Background(), s, submission.NewPatch().SetState(submission.StateEvaluationInProgress))
	if !errors.Is(err, apperrors.ErrLostRace) {
		t.Fatalf("Expected ErrLostRace, got %v", err)
	}
	if got := m.Status("9700001").State; got != submission.StateInvalid {
		t.Errorf("Expected concurrent state kept, got %s", got)
	}
}

func TestUpdater_DoesNotRetryOtherFailures(t *testing.T) {
	t.Parallel()
	m, s := seeded(t)
	u := NewUpdater(m, retry.DefaultPolicy(), retry.WithSleep(noSleep))

	m.FailNext("UpdateItem", apperrors.FromStatus("records.update", 503, ""), nil)
	_, err := u.Update(context.Background(), s, submission.NewPatch().SetState(submission.StateEvaluationInProgress))
	if !errors.Is(err, apperrors.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestRetrying_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	m, _ := seeded(t)
	r := NewRetrying(m, retry.New(retry.Policy{NoRetry: retry.PermanentRemote()}, retry.WithSleep(noSleep)))

	m.FailNext("GetItem",
		apperrors.FromStatus("records.get", 503, ""),
		apperrors.FromStatus("records.get", 429, ""),
		fmt.Errorf("connection reset"),
	)
	if _, err := r.GetItem(context.Background(), "9700001"); err != nil {
		t.Fatalf("Expected success after transient failures, got %v", err)
	}

	m.FailNext("SendMessage", apperrors.FromStatus("records.message", 403, ""), nil)
	if err := r.SendMessage(context.Background(), "u1", "s", "b"); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("Expected ErrForbidden without retry, got %v", err)
	}
	if len(m.Messages()) != 0 {
		t.Error("Expected no message after permanent failure")
	}
}

func TestSelectBundles(t *testing.T) {
	t.Parallel()
	m := NewMemory("273950")
	for i := range 23 {
		m.Add(submission.Bundle{
			Submission: submission.Submission{ID: fmt.Sprintf("97%05d", i), QueueID: "9614112", UserID: "u1"},
			Status:     &submission.Status{State: submission.StateReceived},
		})
	}
	m.Add(submission.Bundle{
		Submission: submission.Submission{ID: "9800000", QueueID: "9614112", UserID: "u1"},
		Status:     &submission.Status{State: submission.StateEvaluationInProgress},
	})
	m.Add(submission.Bundle{
		Submission: submission.Submission{ID: "9800001", QueueID: "other", UserID: "u1"},
		Status:     &submission.Status{State: submission.StateReceived},
	})

	got, err := SelectBundles(context.Background(), m, "9614112", submission.StateReceived)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(got) != 23 {
		t.Errorf("Expected 23 bundles, got %d", len(got))
	}
}

type pagedClient struct {
	Client
	pages []Page
}

func (p *pagedClient) ListItems(_ context.Context, _ string, _ submission.State, offset, _ int) (Page, error) {
	return p.pages[offset/PageSize], nil
}

func TestSelectBundles_Inconsistent(t *testing.T) {
	t.Parallel()
	bundle := func(id string, state submission.State) submission.Bundle {
		return submission.Bundle{
			Submission: submission.Submission{ID: id},
			Status:     &submission.Status{ID: id, State: state},
		}
	}

	dup := &pagedClient{pages: []Page{{Total: 2, Results: []submission.Bundle{
		bundle("1", submission.StateReceived), bundle("1", submission.StateReceived),
	}}}}
	if _, err := SelectBundles(context.Background(), dup, "q", submission.StateReceived); !errors.Is(err, apperrors.ErrInternal) {
		t.Errorf("Expected internal error for duplicate, got %v", err)
	}

	wrong := &pagedClient{pages: []Page{{Total: 1, Results: []submission.Bundle{
		bundle("1", submission.StateClosed),
	}}}}
	if _, err := SelectBundles(context.Background(), wrong, "q", submission.StateReceived); !errors.Is(err, apperrors.ErrInternal) {
		t.Errorf("Expected internal error for state mismatch, got %v", err)
	}
}

type countingNames struct {
	Client
	calls int
}

func (c *countingNames) PrincipalName(_ context.Context, id string, team bool) (string, error) {
	c.calls++
	if team {
		return "team-" + id, nil
	}
	return "user-" + id, nil
}

func TestSubmitters_Cached(t *testing.T) {
	t.Parallel()
	names := &countingNames{}
	cache := NewSubmitters(names, 2)
	ctx := context.Background()

	team := submission.Submission{ID: "1", UserID: "u1", TeamID: "t9"}
	for range 3 {
		s, err := cache.Get(ctx, team)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if s.ID != "t9" || s.Name != "team-t9" {
			t.Errorf("Unexpected submitter: %+v", s)
		}
	}
	if names.calls != 1 {
		t.Errorf("Expected 1 lookup, got %d", names.calls)
	}

	cache.Get(ctx, submission.Submission{UserID: "u2"})
	cache.Get(ctx, submission.Submission{UserID: "u3"})
	if cache.Len() != 2 {
		t.Errorf("Expected cache bounded at 2, got %d", cache.Len())
	}
}
