package health

import (
	"context"
	"errors"
	"testing"
	"time"
	"workflowhook/internal/testutil"
)

type fakeDocker struct{ err error }

func (f fakeDocker) Ready(context.Context) error { return f.err }

type fakeCycles struct{ last time.Time }

func (f fakeCycles) LastCycle() time.Time { return f.last }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoDocker(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	dockerCheck, ok := response.Checks["docker"]
	if !ok {
		t.Fatal("Expected docker check to be present")
	}

	if dockerCheck.Status != StatusUnhealthy {
		t.Errorf("Expected docker check to be unhealthy, got %s", dockerCheck.Status)
	}
}

func TestChecker_Readiness_DockerDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(fakeDocker{err: errors.New("Cannot connect to the Docker daemon")})

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	if msg := response.Checks["docker"].Message; msg != "Cannot connect to the Docker daemon" {
		t.Errorf("Expected daemon error message, got %q", msg)
	}
}

func TestChecker_Readiness_CycleFreshness(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		last     time.Time
		elapsed  time.Duration
		expected Status
	}{
		{"startup grace", time.Time{}, 20 * time.Second, StatusHealthy},
		{"no cycle after grace", time.Time{}, 40 * time.Second, StatusUnhealthy},
		{"recent cycle", start.Add(50 * time.Second), time.Minute, StatusHealthy},
		{"stale cycle", start.Add(10 * time.Second), time.Minute, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := testutil.NewClock(start)
			checker := NewChecker(fakeDocker{},
				WithCycles(fakeCycles{last: tt.last}, 30*time.Second),
				WithClock(clk.Now),
			)
			clk.Advance(tt.elapsed)

			response := checker.Readiness(context.Background())

			if response.Status != tt.expected {
				t.Errorf("Expected %s, got %s (%+v)", tt.expected, response.Status, response.Checks)
			}
		})
	}
}

func TestChecker_Readiness_AdvisoryDegrades(t *testing.T) {
	t.Parallel()
	checker := NewChecker(fakeDocker{},
		WithAdvisory("webhook", func(context.Context) error { return errors.New("circuit breaker open") }),
	)

	response := checker.Readiness(context.Background())

	if response.Status != StatusDegraded {
		t.Errorf("Expected degraded status, got %s", response.Status)
	}
	if response.Checks["webhook"].Status != StatusDegraded {
		t.Errorf("Expected degraded webhook check, got %s", response.Checks["webhook"].Status)
	}
	if !response.IsHealthy() {
		t.Error("Expected degraded service to stay ready")
	}
}

func TestChecker_Readiness_Cached(t *testing.T) {
	t.Parallel()
	calls := 0
	clk := testutil.NewClock(time.Now())
	checker := NewChecker(fakeDocker{}, WithClock(clk.Now), WithAdvisory("count", func(context.Context) error {
		calls++
		return nil
	}))

	checker.Readiness(context.Background())
	checker.Readiness(context.Background())
	if calls != 1 {
		t.Errorf("Expected cached result, got %d probes", calls)
	}

	clk.Advance(2 * time.Second)
	checker.Readiness(context.Background())
	if calls != 2 {
		t.Errorf("Expected fresh probe after expiry, got %d probes", calls)
	}
}

func TestChecker_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(fakeDocker{})
	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
