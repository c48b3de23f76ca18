// Package http exposes the scholarship workflow as a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/application/query"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/metrics"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/service"
	"github.com/osas-hub/scholarship-hub/internal/interface/http/handlers"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RateLimitPerSec is the sustained request rate per client (0 = off).
	RateLimitPerSec float64
	RateLimitBurst  int

	MaxBodyBytes int64

	// MetricsPath serves Prometheus metrics when Dependencies.Metrics is set.
	MetricsPath string
	Version     string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		RateLimitPerSec: 20,
		RateLimitBurst:  40,
		MaxBodyBytes:    1 << 20,
		MetricsPath:     "/metrics",
		Version:         "v1",
	}
}

// ConfigFrom builds the server config from the application config.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Addr = cfg.HTTP.Addr
	c.ReadTimeout = cfg.HTTP.ReadTimeout
	c.WriteTimeout = cfg.HTTP.WriteTimeout
	c.IdleTimeout = cfg.HTTP.IdleTimeout
	c.RateLimitPerSec = cfg.HTTP.RateLimitPerSec
	c.RateLimitBurst = cfg.HTTP.RateLimitBurst
	c.MetricsPath = cfg.Observability.MetricsPath
	c.Version = cfg.App.Version
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// FundDepositor credits a scholarship fund.
type FundDepositor interface {
	Deposit(ctx context.Context, t scholarship.Type, amount decimal.Decimal, reference string) (decimal.Decimal, error)
}

// Inbox reads and acknowledges in-app notifications.
type Inbox interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]postgres.InboxItem, error)
	MarkRead(ctx context.Context, userID string, id int64) error
}

// AuditVerifier recomputes the audit hash chain.
type AuditVerifier interface {
	Verify(ctx context.Context) (service.ChainReport, error)
}

// FeatureFlags reports whether a feature is on for a subject.
type FeatureFlags interface {
	IsEnabled(name string, ctx *config.FeatureContext) bool
}

// Dependencies contains everything the HTTP handlers call.
type Dependencies struct {
	Commands *command.Handlers
	Queries  *query.Handlers

	// Optional surfaces; their routes answer 501 when nil.
	Funds FundDepositor
	Inbox Inbox
	Audit AuditVerifier

	Health  handlers.HealthChecker
	Metrics *metrics.Metrics
	Flags   FeatureFlags
	Logger  *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *logger.Logger
	limiter    *handlers.RateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.Named("http"),
	}
	if cfg.RateLimitPerSec > 0 {
		s.limiter = handlers.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, handlers.ClientIP)
		s.limiter.OnReject = func(r *http.Request, key string) {
			s.logger.Warn("rate limited", logger.String("client", key), logger.String("path", r.URL.Path))
		}
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.recoverer)
	r.Use(s.accessLog)
	if s.deps.Metrics != nil {
		r.Use(s.deps.Metrics.InstrumentHandler)
	}
	r.Use(handlers.SecurityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, APIError{Code: "not_found", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, APIError{Code: "method_not_allowed", Message: "method not allowed"})
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status
	// ─────────────────────────────────────────────────────────────────────────
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	if s.deps.Metrics != nil && s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, s.deps.Metrics.Handler())
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(handlers.BodyLimit(s.config.MaxBodyBytes))

		r.Route("/scholarships", func(r chi.Router) {
			r.Get("/", s.handleListScholarships)
			r.Post("/", s.handleCreateScholarship)
			r.Patch("/{id}", s.handleUpdateScholarship)
		})

		r.Route("/applications", func(r chi.Router) {
			r.Get("/", s.handleListApplications)
			r.Post("/", s.handleCreateApplication)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetApplication)
				r.Patch("/", s.handleUpdateDraft)
				r.Delete("/", s.handleArchiveApplication)
				r.Post("/transitions", s.handleTransition)
				r.Get("/documents/check", s.handleCheckDocuments)
				r.Post("/documents", s.handleRegisterDocument)
				r.Post("/interviews", s.handleScheduleInterview)
			})
		})

		r.Post("/documents/{id}/review", s.handleReviewDocument)

		r.Route("/interviews/{id}", func(r chi.Router) {
			r.Post("/reschedule", s.handleRescheduleInterview)
			r.Post("/complete", s.handleCompleteInterview)
			r.Post("/cancel", s.handleCancelInterview)
			r.Post("/no-show", s.handleMarkNoShow)
		})

		r.Post("/assignments", s.handleCreateAssignment)
		r.Post("/assignments/{id}/work-logs", s.handleLogWorkHours)
		r.Post("/work-logs/{id}/review", s.handleReviewWorkHours)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", s.handleGeneratePayment)
			r.Post("/payroll", s.handleGeneratePayroll)
			r.Post("/{id}/status", s.handleChangePaymentStatus)
			r.Post("/{id}/release", s.handleReleasePayment)
			r.Post("/{id}/annotations", s.handleAnnotatePayment)
			r.Post("/{id}/recalculate", s.handleRecalculatePayment)
		})

		r.Route("/stipends", func(r chi.Router) {
			r.Post("/", s.handleGenerateStipend)
			r.Post("/{id}/status", s.handleChangeStipendStatus)
			r.Post("/{id}/release", s.handleReleaseStipend)
			r.Post("/{id}/annotations", s.handleAnnotateStipend)
		})

		r.Get("/students/{id}/eligibility/{scholarshipID}", s.handleEvaluateEligibility)
		r.Get("/students/{id}/recommendations", s.handleRecommendations)

		r.Get("/funds", s.handleFundBalances)
		r.Post("/funds/deposits", s.handleDeposit)

		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)

		r.Get("/audit/verify", s.handleVerifyAudit)
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// ActorHeader identifies the acting user. Authentication happens upstream.
const ActorHeader = "X-Actor-ID"

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, id)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.requestLogger(r).Info("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Latency(time.Since(start)),
			logger.String("ip", r.RemoteAddr),
			logger.ActorID(r.Header.Get(ActorHeader)),
		)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.requestLogger(r).Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, APIError{Code: "internal_error", Message: "an unexpected error occurred"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(r *http.Request) *logger.Logger {
	return logger.FromContextOr(r.Context(), s.logger)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.limiter != nil {
		go s.sweepLimiter()
	}

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

func (s *Server) sweepLimiter() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if !s.IsRunning() {
			return
		}
		s.limiter.Sweep()
	}
}
