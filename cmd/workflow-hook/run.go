package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"workflowhook/internal/api"
	"workflowhook/internal/archive"
	"workflowhook/internal/health"
	"workflowhook/internal/hook"
	"workflowhook/internal/job"
	"workflowhook/internal/notify"
	"workflowhook/internal/observability"
	"workflowhook/internal/orchestrator/docker"
	"workflowhook/internal/records"
	"workflowhook/internal/retry"

	"golang.org/x/sync/errgroup"
)

// minStaleAfter bounds how quickly a slow cycle marks the service unready.
const minStaleAfter = 5 * time.Minute

func runService(ctx context.Context) error {
	// Load configuration
	recCfg, err := records.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	hookCfg, err := hook.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	jobCfg := job.LoadConfigFromEnv()
	policy := retry.LoadPolicyFromEnv()
	webhookCfg := notify.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	lifecycle, err := docker.NewFromEnv(docker.LoadConfigFromEnv())
	if err != nil {
		return err
	}
	defer lifecycle.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = lifecycle.Ready(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("docker daemon unavailable: %w", err)
	}
	slog.Info("Connected to Docker daemon")

	// Record API with retries on every call
	runner := retry.New(policy, retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		slog.Debug("Retrying record API call", "attempt", attempt, "delay", delay, "error", err)
		metrics.RecordRecordRetry(context.Background(), err)
	}))
	client := records.NewRetrying(records.NewHTTPClient(recCfg.BaseURL, recCfg.APIKey, recCfg.Timeout), runner)

	catalog, err := job.NewCatalog(lifecycle, jobCfg)
	if err != nil {
		return err
	}

	store, err := archive.NewStore(ctx, archive.LoadStoreConfigFromEnv(jobCfg.ScratchDir))
	if err != nil {
		return err
	}
	archiver := archive.New(catalog, store, archive.Config{
		ShareImmediately: hookCfg.ShareImmediately,
		MaxTail:          hookCfg.MaxLogTail,
	})

	// Notifications go through the record API, optionally mirrored to a webhook
	var (
		webhook      *notify.Webhook
		webhookStats api.WebhookStats
		mirrors      []notify.Mirror
		healthOpts   = []health.Option{}
	)
	if webhookCfg.Enabled() {
		webhook = notify.NewWebhook(webhookCfg, metrics)
		webhookStats = webhook
		mirrors = append(mirrors, webhook)
		if err := metrics.ObserveWebhookQueue(func() int64 { return int64(webhook.Stats().QueueDepth) }); err != nil {
			return err
		}
		healthOpts = append(healthOpts, health.WithAdvisory("webhook", func(context.Context) error {
			if webhook.Stats().BreakerOpen {
				return errors.New("webhook circuit breaker open")
			}
			return nil
		}))
		slog.Info("Notification webhook enabled", "url", webhookCfg.URL)
	}
	notifier := notify.NewFanout(notify.NewMessenger(client), metrics, mirrors...)

	loop, err := hook.New(hookCfg, hook.Deps{
		Records:    client,
		Updater:    records.NewUpdater(client, policy),
		Submitters: records.NewSubmitters(client, 0),
		Jobs:       catalog,
		Archiver:   archiver,
		Notifier:   notifier,
	}, hook.WithMetrics(metrics))
	if err != nil {
		return err
	}

	healthOpts = append(healthOpts, health.WithCycles(loop, max(3*hookCfg.PollInterval, minStaleAfter)))
	healthChecker := health.NewChecker(lifecycle, healthOpts...)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Jobs:          catalog,
		Loop:          loop,
		Webhook:       webhookStats,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer close(loopDone)
		return loop.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown requested")

		// Phase 1: Mark service as unhealthy for load balancer draining
		healthChecker.SetShuttingDown()
		if svcCfg.ShutdownDrainWait > 0 {
			slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
			time.Sleep(svcCfg.ShutdownDrainWait)
		}

		// Phase 2: Let the in-flight cycle finish while probes are still served
		<-loopDone

		// Phase 3: Stop accepting connections, finish in-flight requests
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server shutdown error", "error", err)
		}
		return nil
	})

	runErr := g.Wait()

	// Phase 4: Drain the webhook mirror
	if webhook != nil {
		slog.Info("Draining notification webhook")
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := webhook.Close(closeCtx); err != nil {
			slog.Warn("Webhook shutdown error", "error", err)
		}
		stats := webhook.Stats()
		slog.Info("Webhook stats",
			"delivered", stats.Delivered,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	stats := loop.Stats()
	slog.Info("Loop stats", "cycles", stats.Cycles, "lastCompleted", stats.Completed, "lastError", stats.Error)

	// Jobs keep running in their containers and are picked up again on restart.
	slog.Info("Shutdown complete")
	return runErr
}
