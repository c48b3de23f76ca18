// Package main is the entry point of the scholarship hub API server.
//
// The server exposes the application workflow, document review, interview
// scheduling, assistantship payroll and stipend release over a JSON API.
// Effects produced by commands are stored in the outbox and delivered by the
// worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/bootstrap"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/metrics"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/service"
	httpapi "github.com/osas-hub/scholarship-hub/internal/interface/http"
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
	log := bootstrap.NewLogger(cfg).Named("api")
	defer log.Sync()
	log.Info("starting scholarship hub API",
		logger.String("addr", cfg.HTTP.Addr),
		logger.String("timezone", cfg.App.Timezone),
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
	// 4. REDIS (optional)
	// ─────────────────────────────────────────────────────────────────────────
	cache := bootstrap.OpenRedis(ctx, cfg, log)
	if cache != nil {
		defer cache.Close()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	bus, err := bootstrap.NewEventBus(ctx, cache, log)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.Observability.MetricsEnabled {
		m = metrics.New()
	}
	core := bootstrap.NewCore(cfg, conn, bus, cache, log)
	if err := bootstrap.Subscribe(bus, core, m, log); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCritical("database", handlers.PingCheck(conn))
	if cache != nil {
		health.AddOptional("cache", handlers.PingCheck(cache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	deps := httpapi.Dependencies{
		Commands: core.Commands,
		Queries:  core.Queries,
		Funds:    core.Funds,
		Inbox:    postgres.NewNotificationInbox(conn),
		Health:   health,
		Flags:    cfg.Features,
		Logger:   log,
	}
	if m != nil {
		deps.Metrics = m
	}
	if cfg.Features.Enabled(config.FeatureAuditHashChain) {
		deps.Audit = service.NewChainedAuditSink(postgres.NewAuditLog(conn))
	}
	server := httpapi.NewServer(httpapi.ConfigFrom(cfg), deps)
	errCh := server.StartAsync()

	log.Info("scholarship hub API is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	bootstrap.Shutdown(shutdownCtx, log,
		bootstrap.Step{Name: "http", Fn: server.Shutdown},
		bootstrap.Step{Name: "event_bus", Fn: func(context.Context) error { return bus.Close() }},
	)
	log.Info("shutdown completed")
	return nil
}
