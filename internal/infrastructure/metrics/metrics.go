// Package metrics exposes the Prometheus collectors of the hub.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scholarship_hub"

// Metrics owns a registry and every collector registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	events        *prometheus.CounterVec
	disbursed     *prometheus.CounterVec
	outbox        *prometheus.CounterVec
	outboxBacklog prometheus.Gauge
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Application status transitions by source and target status.",
		}, []string{"from", "to", "cascade"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "events_total",
			Help:      "Domain events published after commit.",
		}, []string{"type"}),
		disbursed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "released_amount_total",
			Help:      "Sum of released payment and stipend amounts.",
		}, []string{"kind"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox effect deliveries by effect kind and result.",
		}, []string{"kind", "result"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "backlog",
			Help:      "Undelivered outbox rows seen by the last dispatch.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs.",
		}, []string{"job", "success"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"job"}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.transitions,
		m.events,
		m.disbursed,
		m.outbox,
		m.outboxBacklog,
		m.jobRuns,
		m.jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordTransition counts one application status change.
func (m *Metrics) RecordTransition(from, to, cascade string) {
	m.transitions.WithLabelValues(from, to, cascade).Inc()
}

// RecordEvent counts one published domain event.
func (m *Metrics) RecordEvent(eventType string) {
	m.events.WithLabelValues(eventType).Inc()
}

// RecordRelease adds a released amount. kind is "payment" or "stipend".
func (m *Metrics) RecordRelease(kind string, amount float64) {
	if amount <= 0 {
		return
	}
	m.disbursed.WithLabelValues(kind).Add(amount)
}

// RecordDelivery counts one outbox delivery attempt outcome.
func (m *Metrics) RecordDelivery(kind string, ok bool) {
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.outbox.WithLabelValues(kind, result).Inc()
}

// SetOutboxBacklog reports the number of pending outbox rows.
func (m *Metrics) SetOutboxBacklog(n int) {
	m.outboxBacklog.Set(float64(n))
}

// RecordJob records one scheduled job run.
func (m *Metrics) RecordJob(job string, d time.Duration, success bool) {
	if job == "" {
		job = "unknown"
	}
	m.jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// InstrumentHandler wraps next with HTTP metrics. Routes are labelled by
// their chi pattern so ids do not explode the label space.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
