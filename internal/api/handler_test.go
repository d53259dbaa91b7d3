package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/health"
	"workflowhook/internal/hook"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"
)

type fakeJobs struct {
	listings []job.Listing
	status   job.RuntimeStatus
	err      error
}

func (f *fakeJobs) List(context.Context) ([]job.Listing, error) {
	return f.listings, f.err
}

func (f *fakeJobs) Status(_ context.Context, h job.Handle) (job.RuntimeStatus, error) {
	if h.ContainerID == "" {
		return job.RuntimeStatus{}, errors.New("missing container id")
	}
	return f.status, nil
}

type fakeLoop struct{ stats hook.CycleStats }

func (f fakeLoop) Stats() hook.CycleStats { return f.stats }

type fakeWebhook struct{ stats notify.WebhookStats }

func (f fakeWebhook) Stats() notify.WebhookStats { return f.stats }

type readyDocker struct{}

func (readyDocker) Ready(context.Context) error { return nil }

func newTestRouter(jobs Jobs, apiKey string) http.Handler {
	return NewRouter(RouterConfig{
		Jobs:          jobs,
		Loop:          fakeLoop{stats: hook.CycleStats{Cycles: 3, Duration: time.Second}},
		Webhook:       fakeWebhook{stats: notify.WebhookStats{Delivered: 5}},
		HealthChecker: health.NewChecker(readyDocker{}),
		APIKey:        apiKey,
	})
}

func TestHandler_Livez(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil),
	}

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	handler.Livez(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusHealthy {
		t.Errorf("Expected status healthy, got %s", response.Status)
	}
}

func TestHandler_Readyz_NoDocker(t *testing.T) {
	t.Parallel()
	handler := &Handler{
		health: health.NewChecker(nil), // No Docker client
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.Readyz(w, req)

	// Should return 503 because Docker is not available
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	var response health.Response
	json.NewDecoder(w.Body).Decode(&response)

	if response.Status != health.StatusUnhealthy {
		t.Errorf("Expected status unhealthy, got %s", response.Status)
	}
}

func TestRouter_ListJobs(t *testing.T) {
	t.Parallel()
	jobs := &fakeJobs{listings: []job.Listing{
		{Handle: job.Handle{Name: "workflow_job.1", ContainerID: "abc"}, State: "running"},
		{Handle: job.Handle{Name: "workflow_job.2", ContainerID: "def"}, State: "exited"},
	}, status: job.RuntimeStatus{ExitCode: 1}}
	router := newTestRouter(jobs, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp []JobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp) != 2 || resp[1].Name != "workflow_job.2" || resp[1].State != "exited" {
		t.Fatalf("Unexpected listing %+v", resp)
	}
	if resp[0].Status == nil || resp[0].Status.ExitCode != 1 {
		t.Errorf("Expected runtime status, got %+v", resp[0].Status)
	}
}

func TestRouter_GetJob(t *testing.T) {
	t.Parallel()
	progress := 12.5
	jobs := &fakeJobs{
		listings: []job.Listing{{Handle: job.Handle{Name: "workflow_job.1", ContainerID: "abc"}, State: "running"}},
		status:   job.RuntimeStatus{Running: true, Progress: &progress},
	}
	router := newTestRouter(jobs, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/workflow_job.1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp JobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Status == nil || !resp.Status.Running || resp.Status.Progress == nil || *resp.Status.Progress != 12.5 {
		t.Errorf("Unexpected status %+v", resp.Status)
	}
}

func TestRouter_GetJob_NotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeJobs{}, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/workflow_job.9", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestRouter_ListJobs_DockerError(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeJobs{err: apperrors.FromStatus("docker.list", 503, "daemon busy")}, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
}

func TestRouter_Stats(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeJobs{}, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Loop.Cycles != 3 {
		t.Errorf("Expected 3 cycles, got %d", resp.Loop.Cycles)
	}
	if resp.Webhook == nil || resp.Webhook.Delivered != 5 {
		t.Errorf("Expected webhook stats, got %+v", resp.Webhook)
	}
}

func TestRouter_Auth(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeJobs{}, "secret")

	tests := []struct {
		name     string
		path     string
		header   string
		expected int
	}{
		{"probe without auth", "/livez", "", http.StatusOK},
		{"missing header", "/v1/stats", "", http.StatusUnauthorized},
		{"wrong scheme", "/v1/stats", "Basic secret", http.StatusUnauthorized},
		{"wrong key", "/v1/stats", "Bearer nope", http.StatusUnauthorized},
		{"valid key", "/v1/stats", "Bearer secret", http.StatusOK},
		{"lowercase scheme", "/v1/jobs", "bearer secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

func TestMiddleware_Logging(t *testing.T) {
	t.Parallel()
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	handler := LoggingMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("Inner handler was not called")
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	t.Parallel()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware()(inner)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
