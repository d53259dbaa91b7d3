package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrBufferFull is returned by Publish when the queue cannot take more events.
var ErrBufferFull = errors.New("webhook buffer full")

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("webhook is closed")

// WebhookMetrics is an optional interface for recording webhook metrics.
type WebhookMetrics interface {
	RecordWebhookDelivered(ctx context.Context, durationSeconds float64)
	RecordWebhookFailed(ctx context.Context)
	RecordWebhookDropped(ctx context.Context)
	RecordWebhookRequeued(ctx context.Context)
}

// WebhookStats is a snapshot of webhook counters.
type WebhookStats struct {
	QueueDepth   int   `json:"queueDepth"`
	Queued       int64 `json:"queued"`
	Delivered    int64 `json:"delivered"`
	Failed       int64 `json:"failed"`
	Dropped      int64 `json:"dropped"`
	Requeued     int64 `json:"requeued"`
	RetriesTotal int64 `json:"retriesTotal"`
	BreakerOpen  bool  `json:"breakerOpen"`
}

type pending struct {
	event    *CloudEvent
	requeues int
}

// Webhook mirrors notifications as signed CloudEvents to an HTTP endpoint.
// Events are queued in a bounded channel and delivered by a worker pool; a
// full buffer drops the event.
type Webhook struct {
	queue   chan *pending
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cfg     WebhookConfig
	logger  *slog.Logger
	metrics WebhookMetrics

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// NewWebhook starts the delivery workers. metrics may be nil.
func NewWebhook(cfg WebhookConfig, metrics WebhookMetrics) *Webhook {
	cfg = cfg.withDefaults()
	logger := slog.With("component", "webhook")

	w := &Webhook{
		queue: make(chan *pending, cfg.BufferSize),
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        extractHost(cfg.URL),
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= defaultBreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Webhook breaker state changed", "destination", name, "from", from.String(), "to", to.String())
		},
	})

	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.worker()
	}
	logger.Info("Webhook started", "destination", extractHost(cfg.URL), "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return w
}

// Publish queues a message for async delivery.
func (w *Webhook) Publish(msg Message) error {
	if w.closed.Load() {
		return ErrClosed
	}
	select {
	case w.queue <- &pending{event: NewEvent(w.cfg.Source, msg)}:
		w.queued.Add(1)
		return nil
	default:
		w.drop("buffer full", msg.Subject)
		return ErrBufferFull
	}
}

// Stats returns current webhook statistics.
func (w *Webhook) Stats() WebhookStats {
	return WebhookStats{
		QueueDepth:   len(w.queue),
		Queued:       w.queued.Load(),
		Delivered:    w.delivered.Load(),
		Failed:       w.failed.Load(),
		Dropped:      w.dropped.Load(),
		Requeued:     w.requeued.Load(),
		RetriesTotal: w.retriesTotal.Load(),
		BreakerOpen:  w.breaker.State() == gobreaker.StateOpen,
	}
}

// Close stops accepting events and waits for the queue to drain.
func (w *Webhook) Close(ctx context.Context) error {
	if w.closed.Swap(true) {
		return nil
	}
	w.logger.Info("Webhook shutting down", "queued", len(w.queue))
	close(w.shutdown)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Webhook shutdown complete",
			"delivered", w.delivered.Load(),
			"failed", w.failed.Load(),
			"dropped", w.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		w.logger.Warn("Webhook shutdown timed out", "remaining", len(w.queue))
		return ctx.Err()
	}
}

func (w *Webhook) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.shutdown:
			w.drainQueue()
			return
		case p := <-w.queue:
			w.deliver(p)
		}
	}
}

func (w *Webhook) drainQueue() {
	for {
		select {
		case p := <-w.queue:
			w.deliver(p)
		default:
			return
		}
	}
}

func (w *Webhook) deliver(p *pending) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	_, err := w.breaker.Execute(func() (any, error) {
		return nil, w.sendWithRetry(ctx, p.event)
	})
	switch {
	case err == nil:
		w.delivered.Add(1)
		if w.metrics != nil {
			w.metrics.RecordWebhookDelivered(ctx, time.Since(start).Seconds())
		}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		w.requeue(p)
	default:
		w.failed.Add(1)
		if w.metrics != nil {
			w.metrics.RecordWebhookFailed(ctx)
		}
		w.logger.Warn("Delivery failed", "destination", extractHost(w.cfg.URL), "subject", p.event.Subject, "error", err)
	}
}

// requeue puts an event back after the breaker cooldown.
func (w *Webhook) requeue(p *pending) {
	if p.requeues >= defaultMaxRequeues {
		w.drop("max requeues reached", p.event.Data.Subject)
		return
	}
	p.requeues++
	w.requeued.Add(1)
	if w.metrics != nil {
		w.metrics.RecordWebhookRequeued(context.Background())
	}

	go func() {
		select {
		case <-w.shutdown:
			return
		case <-time.After(w.cfg.BreakerCooldown):
		}
		select {
		case w.queue <- p:
		case <-w.shutdown:
		default:
			w.drop("buffer full on requeue", p.event.Data.Subject)
		}
	}()
}

func (w *Webhook) drop(reason, subject string) {
	w.dropped.Add(1)
	if w.metrics != nil {
		w.metrics.RecordWebhookDropped(context.Background())
	}
	w.logger.Warn("Event dropped", "reason", reason, "destination", extractHost(w.cfg.URL), "subject", subject)
}

func (w *Webhook) sendWithRetry(ctx context.Context, event *CloudEvent) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultInitialBackoff
	b.MaxInterval = defaultMaxBackoff
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		if attempt > 0 {
			w.retriesTotal.Add(1)
		}
		attempt++
		err := w.send(ctx, event)
		if IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, defaultMaxRetries), ctx))
}

func (w *Webhook) send(ctx context.Context, event *CloudEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal event: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/cloudevents+json")
	req.Header.Set("Ce-Specversion", event.SpecVersion)
	req.Header.Set("Ce-Type", event.Type)
	req.Header.Set("Ce-Source", event.Source)
	req.Header.Set("Ce-Subject", event.Subject)
	req.Header.Set("Ce-Id", event.ID)
	req.Header.Set("Ce-Time", event.Time.Format(time.RFC3339))
	if w.cfg.SigningKey != "" {
		req.Header.Set("X-Signature-256", signature(body, w.cfg.SigningKey))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &HTTPError{StatusCode: resp.StatusCode}
}

// HTTPError is a non-2xx webhook response.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsClientError returns true for 4xx responses, which are not retried.
func IsClientError(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode >= 400 && he.StatusCode < 500
	}
	return false
}

func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Mirror = (*Webhook)(nil)
