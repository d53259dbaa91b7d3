// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReadinessChecker is the interface for readiness checks.
// Implemented by the Docker client to verify the daemon answers.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// CycleSource reports when the reconciliation loop last completed a cycle.
type CycleSource interface {
	LastCycle() time.Time
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// advisory is a check whose failure degrades readiness without failing it.
type advisory struct {
	name  string
	probe func(ctx context.Context) error
}

// Checker performs health checks on dependencies.
type Checker struct {
	docker     ReadinessChecker
	cycles     CycleSource
	staleAfter time.Duration
	advisories []advisory
	timeout    time.Duration
	now        func() time.Time
	started    time.Time

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithCycles fails readiness when no cycle completed within staleAfter.
// The first cycle gets the same grace period from startup.
func WithCycles(src CycleSource, staleAfter time.Duration) Option {
	return func(c *Checker) {
		c.cycles = src
		c.staleAfter = staleAfter
	}
}

// WithAdvisory adds a check that reports degraded rather than unhealthy.
func WithAdvisory(name string, probe func(ctx context.Context) error) Option {
	return func(c *Checker) {
		c.advisories = append(c.advisories, advisory{name: name, probe: probe})
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) {
		c.now = now
	}
}

// NewChecker creates a new health checker.
func NewChecker(docker ReadinessChecker, opts ...Option) *Checker {
	c := &Checker{
		docker:  docker,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.started = c.now()
	return c
}

// Liveness returns true if the service is alive.
// This should be a lightweight check that doesn't depend on external services.
// Failing this probe should trigger a container restart.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks the Docker daemon and the freshness of the loop.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	// Use cached result if recent (avoid hammering Docker)
	if c.cachedReady != nil && c.now().Sub(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult)
	overall := StatusHealthy

	docker := c.checkDocker(ctx)
	checks["docker"] = docker
	if docker.Status != StatusHealthy {
		overall = StatusUnhealthy
	}

	if c.cycles != nil {
		cycle := c.checkCycles()
		checks["cycle"] = cycle
		if cycle.Status != StatusHealthy {
			overall = StatusUnhealthy
		}
	}

	for _, a := range c.advisories {
		res := c.probe(ctx, a.probe)
		if res.Status != StatusHealthy {
			res.Status = StatusDegraded
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
		checks[a.name] = res
	}

	response := &Response{
		Status: overall,
		Checks: checks,
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = c.now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkDocker(ctx context.Context) CheckResult {
	if c.docker == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "docker not configured",
		}
	}
	return c.probe(ctx, c.docker.Ready)
}

func (c *Checker) probe(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

func (c *Checker) checkCycles() CheckResult {
	last := c.cycles.LastCycle()
	since := c.started
	if !last.IsZero() {
		since = last
	}
	age := c.now().Sub(since)
	if age <= c.staleAfter {
		return CheckResult{Status: StatusHealthy}
	}
	if last.IsZero() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("no cycle completed %s after startup", age.Round(time.Second)),
		}
	}
	return CheckResult{
		Status:  StatusUnhealthy,
		Message: fmt.Sprintf("last cycle completed %s ago", age.Round(time.Second)),
	}
}

// IsHealthy reports whether the probe should pass. A degraded service is
// still ready.
func (r *Response) IsHealthy() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown marks the service as shutting down.
// This causes readiness checks to return unhealthy.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil // Clear cache to ensure immediate effect
}
