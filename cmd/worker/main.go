// Package main is the entry point of the scholarship hub worker.
//
// The worker runs the scheduled jobs:
//   - outbox dispatch: delivers committed notifications and audit records
//   - payroll: generates assistantship payments after each semi-monthly period
//   - audit verify: recomputes the audit hash chain
//
// Jobs take a Redis lease before running so several workers can share one
// database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/bootstrap"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/messaging"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/metrics"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/redis"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/scheduler"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/scheduler/jobs"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/service"
	"github.com/osas-hub/scholarship-hub/internal/interface/http/handlers"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := bootstrap.NewLogger(cfg).Named("worker")
	defer log.Sync()
	log.Info("starting scholarship hub worker",
		logger.String("timezone", cfg.App.Timezone),
		logger.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. POSTGRES
	// ─────────────────────────────────────────────────────────────────────────
	conn, err := bootstrap.OpenPostgres(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional, for job leases)
	// ─────────────────────────────────────────────────────────────────────────
	cache := bootstrap.OpenRedis(ctx, cfg, log)
	if cache != nil {
		defer cache.Close()
	}

	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SINKS
	// ─────────────────────────────────────────────────────────────────────────
	notifications, err := notificationSink(cfg, conn, log)
	if err != nil {
		return err
	}
	audit := auditSink(cfg, conn, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. OUTBOX DISPATCHER
	// ─────────────────────────────────────────────────────────────────────────
	dcfg := messaging.DispatcherConfig{
		Store:         postgres.NewOutbox(conn),
		Notifications: notifications,
		Audit:         audit,
		BatchSize:     cfg.Scheduler.OutboxBatchSize,
		MaxAttempts:   cfg.Notifications.MaxDeliveryAttempts,
		Logger:        log,
	}
	if m != nil {
		dcfg.Recorder = m
	}
	dispatcher, err := messaging.NewOutboxDispatcher(dcfg)
	if err != nil {
		return fmt.Errorf("failed to create outbox dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	// Payroll runs publish through the shared bus so API instances observe
	// them.
	bus, err := bootstrap.NewEventBus(ctx, cache, log)
	if err != nil {
		return err
	}
	core := bootstrap.NewCore(cfg, conn, bus, nil, log)
	if err := bootstrap.Subscribe(bus, core, m, log); err != nil {
		return err
	}

	scfg := scheduler.Config{
		Location:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
		Logger:     log,
	}
	if cache != nil {
		scfg.Locker = redis.NewLocker(cache)
	}
	if m != nil {
		scfg.Recorder = m
	}
	sched := scheduler.New(scfg)

	registrations := []registration{
		{jobs.NewOutboxDispatchJob(dispatcher, log), cfg.Scheduler.OutboxDispatchSpec},
		{jobs.NewPayrollJob(core.Commands.Payments, cfg.Features, log), cfg.Scheduler.PayrollSpec},
	}
	if chained, ok := audit.(*service.ChainedAuditSink); ok {
		registrations = append(registrations, registration{jobs.NewAuditVerifyJob(chained, log), cfg.Scheduler.AuditVerifySpec})
	}
	for _, r := range registrations {
		if r.spec == "" {
			log.Info("job disabled", logger.String("job", r.job.Name()))
			continue
		}
		if err := sched.Register(r.job, r.spec); err != nil {
			return fmt.Errorf("failed to register job %s: %w", r.job.Name(), err)
		}
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
	} else {
		log.Warn("scheduler disabled, jobs will not run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. METRICS & HEALTH SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCritical("database", handlers.PingCheck(conn))
	if cache != nil {
		health.AddOptional("cache", handlers.PingCheck(cache))
	}
	srv := &http.Server{
		Addr:              cfg.Observability.WorkerAddr,
		Handler:           statusRouter(cfg, health, m, sched),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting status server", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("scholarship hub worker is running", logger.Int("jobs", len(sched.ListJobs())))

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		log.Error("status server failed", logger.Err(err))
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	bootstrap.Shutdown(shutdownCtx, log,
		bootstrap.Step{Name: "scheduler", Fn: sched.Stop},
		bootstrap.Step{Name: "status_server", Fn: srv.Shutdown},
		bootstrap.Step{Name: "event_bus", Fn: func(context.Context) error { return bus.Close() }},
	)
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// registration pairs a job with its cron spec. An empty spec disables it.
type registration struct {
	job  scheduler.Job
	spec string
}

// notificationSink fans notifications out to every enabled channel.
func notificationSink(cfg *config.Config, conn *postgres.Connection, log *logger.Logger) (shared.NotificationSink, error) {
	var sinks []shared.NotificationSink
	if cfg.Features.Enabled(config.FeatureNotifyDatabase) {
		sinks = append(sinks, service.NewInboxSink(postgres.NewNotificationInbox(conn)))
	}
	if cfg.Features.Enabled(config.FeatureNotifyWebhook) && cfg.Notifications.WebhookURL != "" {
		webhook, err := service.NewWebhookSink(service.WebhookConfig{
			URL:     cfg.Notifications.WebhookURL,
			Secret:  cfg.Notifications.WebhookSecret,
			Timeout: cfg.Notifications.WebhookTimeout,
			Breaker: service.NewWebhookBreaker(cfg.Notifications.BreakerThreshold, cfg.Notifications.BreakerTimeout, log),
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create webhook sink: %w", err)
		}
		sinks = append(sinks, webhook)
	}
	fanout := service.NewFanoutSink(sinks...)
	log.Info("notification sinks configured", logger.Component("outbox"), logger.Int("sinks", fanout.Len()))
	return fanout, nil
}

// auditSink returns the hash-chained store when enabled and the log sink
// otherwise.
func auditSink(cfg *config.Config, conn *postgres.Connection, log *logger.Logger) shared.AuditSink {
	if cfg.Features.Enabled(config.FeatureAuditHashChain) {
		return service.NewChainedAuditSink(postgres.NewAuditLog(conn))
	}
	log.Warn("audit hash chain disabled, audit records go to the log only")
	return service.NewLogAuditSink(log)
}

type jobView struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	NextRun  time.Time `json:"next_run"`
	RunCount int64     `json:"run_count"`
	Failures int64     `json:"fail_count"`
}

func statusRouter(cfg *config.Config, health handlers.HealthChecker, m *metrics.Metrics, sched *scheduler.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.HealthHandler(health))
	r.Get("/jobs", func(w http.ResponseWriter, r *http.Request) {
		infos := sched.ListJobs()
		out := make([]jobView, 0, len(infos))
		for _, info := range infos {
			out = append(out, jobView{
				Name:     info.Name,
				Spec:     info.Spec,
				NextRun:  info.NextRun,
				RunCount: info.RunCount,
				Failures: info.FailCount,
			})
		}
		handlers.WriteJSON(w, http.StatusOK, out)
	})
	if m != nil {
		r.Handle(cfg.Observability.MetricsPath, m.Handler())
	}
	return r
}
