package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the hook's metrics:
// - Cycles: how long reconciliation cycles take and how often they fail
// - Jobs: launches and terminal outcomes per queue
// - Notifications: messages sent to submitters and operators
// - Webhook: delivery of the notification mirror
// - HTTP: the admin API
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Cycle metrics
	CycleDuration    metric.Float64Histogram
	CyclesTotal      metric.Int64Counter
	CycleErrorsTotal metric.Int64Counter

	// Job metrics
	JobsLaunched metric.Int64Counter
	JobOutcomes  metric.Int64Counter

	// Record API metrics
	RecordRetries metric.Int64Counter

	// Notification metrics
	NotificationsTotal metric.Int64Counter

	// Webhook metrics
	WebhookDuration  metric.Float64Histogram
	WebhookDelivered metric.Int64Counter
	WebhookFailed    metric.Int64Counter
	WebhookDropped   metric.Int64Counter
	WebhookRequeued  metric.Int64Counter
}

// NewMetrics creates and registers all metrics with a Prometheus exporter
// backed by its own registry, alongside the Go runtime collectors.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("workflowhook")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Cycle metrics
	m.CycleDuration, err = meter.Float64Histogram(
		"hook_cycle_duration_seconds",
		metric.WithDescription("Reconciliation cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CyclesTotal, err = meter.Int64Counter(
		"hook_cycles_total",
		metric.WithDescription("Total number of reconciliation cycles"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CycleErrorsTotal, err = meter.Int64Counter(
		"hook_cycle_errors_total",
		metric.WithDescription("Total number of cycles that ended in a pipeline failure"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobsLaunched, err = meter.Int64Counter(
		"workflow_jobs_launched_total",
		metric.WithDescription("Total number of workflow jobs launched"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobOutcomes, err = meter.Int64Counter(
		"workflow_job_outcomes_total",
		metric.WithDescription("Total number of submissions closed, by outcome"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RecordRetries, err = meter.Int64Counter(
		"records_retries_total",
		metric.WithDescription("Total number of retried record API calls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotificationsTotal, err = meter.Int64Counter(
		"notifications_total",
		metric.WithDescription("Total number of notifications sent, by subject"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Webhook metrics
	m.WebhookDuration, err = meter.Float64Histogram(
		"webhook_duration_seconds",
		metric.WithDescription("Webhook delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDelivered, err = meter.Int64Counter(
		"webhook_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookFailed, err = meter.Int64Counter(
		"webhook_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookDropped, err = meter.Int64Counter(
		"webhook_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.WebhookRequeued, err = meter.Int64Counter(
		"webhook_requeued_total",
		metric.WithDescription("Total events requeued due to open circuit"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// ObserveWebhookQueue reports the webhook queue depth on every scrape.
func (m *Metrics) ObserveWebhookQueue(depth func() int64) error {
	_, err := m.meter.Int64ObservableGauge(
		"webhook_queue_size",
		metric.WithDescription("Current number of events in the webhook queue (saturation)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(depth())
			return nil
		}),
	)
	return err
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordCycle records a finished reconciliation cycle.
func (m *Metrics) RecordCycle(ctx context.Context, durationSeconds float64, err error) {
	attrs := metric.WithAttributes(successAttr(err == nil))
	m.CycleDuration.Record(ctx, durationSeconds, attrs)
	m.CyclesTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.CycleErrorsTotal.Add(ctx, 1, metric.WithAttributes(errorAttr(err)))
	}
}

// RecordJobLaunched records a workflow job started for a queue.
func (m *Metrics) RecordJobLaunched(ctx context.Context, queueID string) {
	m.JobsLaunched.Add(ctx, 1, metric.WithAttributes(queueAttr(queueID)))
}

// RecordJobOutcome records a submission closed with outcome.
func (m *Metrics) RecordJobOutcome(ctx context.Context, outcome string) {
	m.JobOutcomes.Add(ctx, 1, metric.WithAttributes(outcomeAttr(outcome)))
}

// RecordRecordRetry records a retried record API call.
func (m *Metrics) RecordRecordRetry(ctx context.Context, err error) {
	m.RecordRetries.Add(ctx, 1, metric.WithAttributes(errorAttr(err)))
}

// RecordNotification records a notification attempt.
func (m *Metrics) RecordNotification(ctx context.Context, subject string, err error) {
	m.NotificationsTotal.Add(ctx, 1, metric.WithAttributes(subjectAttr(subject), successAttr(err == nil)))
}

// RecordWebhookDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordWebhookDelivered(ctx context.Context, durationSeconds float64) {
	m.WebhookDelivered.Add(ctx, 1)
	m.WebhookDuration.Record(ctx, durationSeconds)
}

// RecordWebhookFailed records a failed event delivery.
func (m *Metrics) RecordWebhookFailed(ctx context.Context) {
	m.WebhookFailed.Add(ctx, 1)
}

// RecordWebhookDropped records a dropped event.
func (m *Metrics) RecordWebhookDropped(ctx context.Context) {
	m.WebhookDropped.Add(ctx, 1)
}

// RecordWebhookRequeued records a requeued event.
func (m *Metrics) RecordWebhookRequeued(ctx context.Context) {
	m.WebhookRequeued.Add(ctx, 1)
}
