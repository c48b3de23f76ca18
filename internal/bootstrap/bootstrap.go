// Package bootstrap builds the infrastructure and application layers shared
// by the API server and the worker.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/application/eventhandler"
	"github.com/osas-hub/scholarship-hub/internal/application/query"
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/messaging"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/metrics"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/redis"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *config.Config, out io.Writer) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	format := cfg.Observability.LogFormat
	if format == "" && cfg.IsDevelopment() {
		format = "console"
	}
	return logger.New(logger.Options{
		Output:    out,
		Level:     level,
		Format:    format,
		AddCaller: cfg.IsDevelopment(),
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// PostgresConfig maps the database settings onto the pool configuration.
func PostgresConfig(cfg *config.Config) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = cfg.Database.URL
	if cfg.Database.MaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		pc.MinConns = int32(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	}
	pc.QueryTimeout = cfg.Database.QueryTimeout
	return pc
}

// OpenPostgres connects to the database and, when enabled, applies pending
// migrations.
func OpenPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	log.Info("connecting to database")
	conn, err := postgres.NewConnection(ctx, PostgresConfig(cfg))
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("database schema is up to date", logger.Int("applied", applied))
	}
	return conn, nil
}

// RedisConfig maps the cache settings onto the client configuration.
func RedisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

// OpenRedis connects to Redis. It returns nil when Redis is disabled or
// unreachable; every caller runs without it.
func OpenRedis(ctx context.Context, cfg *config.Config, log *logger.Logger) *redis.Cache {
	if cfg.Redis.Disabled {
		log.Info("redis disabled")
		return nil
	}
	cache, err := redis.NewCache(ctx, RedisConfig(cfg))
	if err != nil {
		log.Warn("redis unavailable, continuing without cache and job locks", logger.Err(err))
		return nil
	}
	log.Info("redis connection established")
	return cache
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// EventBus is a closable shared.EventBus.
type EventBus interface {
	shared.EventBus
	Close() error
}

// NewEventBus returns a Redis-backed bus when cache is set, so that every
// instance sees every event, and an in-process bus otherwise.
func NewEventBus(ctx context.Context, cache *redis.Cache, log *logger.Logger) (EventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log

	if cache == nil {
		return messaging.NewInMemoryEventBus(local), nil
	}
	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client:         cache.Client(),
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("redis event bus: %w", err)
	}
	return bus, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION LAYER
// ══════════════════════════════════════════════════════════════════════════════

// Core is the wired application layer.
type Core struct {
	Commands *command.Handlers
	Queries  *query.Handlers

	// Funds is the ledger behind the deposit endpoint.
	Funds *postgres.FundLedger

	// Scholarships is the cached program store; nil without Redis or when
	// the cache flag is off.
	Scholarships *redis.ScholarshipCache
}

// Rules maps the workflow settings onto the eligibility thresholds.
func Rules(cfg *config.Config) eligibility.Rules {
	rules := eligibility.DefaultRules()
	if cfg.Workflow.RegularLoadUnits > 0 {
		rules.RegularLoadUnits = cfg.Workflow.RegularLoadUnits
	}
	if cfg.Workflow.AssistantshipMaxUnits > 0 {
		rules.AssistantshipMaxUnits = cfg.Workflow.AssistantshipMaxUnits
	}
	if cfg.Workflow.CertificateMaxAgeMonths > 0 {
		rules.CertificateMaxAgeMonths = cfg.Workflow.CertificateMaxAgeMonths
	}
	return rules
}

// NewCore wires the command and query handlers over conn. Commands publish
// to bus after commit. cache may be nil.
func NewCore(cfg *config.Config, conn *postgres.Connection, bus shared.EventPublisher, cache *redis.Cache, log *logger.Logger) *Core {
	clock := shared.SystemClock()
	evaluator := eligibility.NewEvaluator(Rules(cfg), clock)
	checker := document.NewChecker()
	wf := application.NewWorkflow(evaluator, checker, clock)

	var opts []command.ExecutorOption
	if cfg.Workflow.ConflictRetries > 0 {
		opts = append(opts, command.WithConflictRetries(cfg.Workflow.ConflictRetries))
	}
	exec := command.NewExecutor(postgres.NewUnitOfWork(conn), bus, log, opts...)
	commands := command.NewHandlers(exec, command.Services{
		Workflow:   wf,
		Scheduler:  interview.NewScheduler(wf, cfg.Workflow.InterviewBuffer, clock),
		Calculator: payment.NewCalculator(clock),
		Clock:      clock,
	})

	repos := postgres.RepositoriesFor(conn)
	funds := postgres.NewFundLedger(conn)
	core := &Core{Commands: commands, Funds: funds}

	var scholarships scholarship.Repository = repos.Scholarships
	if cache != nil && cfg.Features.Enabled(config.FeatureScholarshipCache) {
		core.Scholarships = redis.NewScholarshipCache(repos.Scholarships, cache, cfg.Redis.ScholarshipTTL, log)
		scholarships = core.Scholarships
	}
	core.Queries = query.NewHandlers(query.Readers{
		Applications: repos.Applications,
		Documents:    repos.Documents,
		Scholarships: scholarships,
		Students:     repos.Students,
		Interviews:   repos.Interviews,
		Stipends:     repos.Stipends,
		Funds:        funds,
	}, evaluator, checker)
	return core
}

// Subscribe registers the in-process event subscribers: the workflow
// observer and, when present, the scholarship cache invalidator.
func Subscribe(bus shared.EventSubscriber, core *Core, m *metrics.Metrics, log *logger.Logger) error {
	var recorder eventhandler.Recorder
	if m != nil {
		recorder = m
	}
	if err := eventhandler.NewWorkflowObserver(recorder, log).Register(bus); err != nil {
		return fmt.Errorf("subscribe workflow observer: %w", err)
	}
	if core != nil && core.Scholarships != nil {
		if err := bus.Subscribe(shared.EventScholarshipChanged, core.Scholarships.OnScholarshipChanged); err != nil {
			return fmt.Errorf("subscribe scholarship cache: %w", err)
		}
	}
	return nil
}

// Shutdown runs fns in order, each bounded by the remaining time of ctx.
func Shutdown(ctx context.Context, log *logger.Logger, steps ...Step) {
	for _, s := range steps {
		start := time.Now()
		if err := s.Fn(ctx); err != nil {
			log.Warn("shutdown step failed", logger.String("step", s.Name), logger.Err(err))
			continue
		}
		log.Info("shutdown step done", logger.String("step", s.Name), logger.Latency(time.Since(start)))
	}
}

// Step is one named shutdown action.
type Step struct {
	Name string
	Fn   func(ctx context.Context) error
}
