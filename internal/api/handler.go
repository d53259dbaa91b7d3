// Package api provides the admin HTTP API of the workflow hook: probes, the
// job container listing and loop statistics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"workflowhook/internal/apperrors"
	"workflowhook/internal/health"
	"workflowhook/internal/hook"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// Jobs is the read side of the job catalog.
type Jobs interface {
	List(ctx context.Context) ([]job.Listing, error)
	Status(ctx context.Context, h job.Handle) (job.RuntimeStatus, error)
}

// LoopStats reports the reconciliation loop's last cycle.
type LoopStats interface {
	Stats() hook.CycleStats
}

// WebhookStats reports the notification mirror's counters.
type WebhookStats interface {
	Stats() notify.WebhookStats
}

// JobResponse describes one job container.
type JobResponse struct {
	job.Listing
	Status *job.RuntimeStatus `json:"status,omitempty"`
}

// StatsResponse is returned by GET /v1/stats.
type StatsResponse struct {
	Loop    hook.CycleStats      `json:"loop"`
	Webhook *notify.WebhookStats `json:"webhook,omitempty"`
}

// Handler contains HTTP handlers for the admin API
type Handler struct {
	jobs    Jobs
	loop    LoopStats
	webhook WebhookStats
	health  *health.Checker
}

// NewHandler creates a new API handler. webhook may be nil.
func NewHandler(jobs Jobs, loop LoopStats, webhook WebhookStats, healthChecker *health.Checker) *Handler {
	return &Handler{
		jobs:    jobs,
		loop:    loop,
		webhook: webhook,
		health:  healthChecker,
	}
}

// ListJobs handles GET /v1/jobs. A job that cannot be inspected is listed
// without a status.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	listings, err := h.jobs.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	resp := lo.Map(listings, func(l job.Listing, _ int) JobResponse {
		status, err := h.jobs.Status(r.Context(), l.Handle)
		if err != nil {
			slog.Warn("Failed to inspect job", "jobName", l.Name, "error", err)
			return JobResponse{Listing: l}
		}
		return JobResponse{Listing: l, Status: &status}
	})
	h.writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /v1/jobs/{name}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "Job name is required")
		return
	}

	listings, err := h.jobs.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	listing, ok := lo.Find(listings, func(l job.Listing) bool { return l.Name == name })
	if !ok {
		h.handleError(w, r, apperrors.NotFound("job", name))
		return
	}

	status, err := h.jobs.Status(r.Context(), listing.Handle)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, JobResponse{Listing: listing, Status: &status})
}

// Stats handles GET /v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Loop: h.loop.Stats()}
	if h.webhook != nil {
		stats := h.webhook.Stats()
		resp.Webhook = &stats
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if Docker is unavailable or the loop has stalled.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError maps err to an HTTP status code.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
