package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordTransition("verified", "under_evaluation", "")
	m.RecordTransition("verified", "under_evaluation", "")
	m.RecordEvent("application.transitioned")
	m.RecordRelease("stipend", 500)
	m.RecordRelease("stipend", 0)
	m.RecordDelivery("notification", false)
	m.RecordJob("payroll", time.Second, true)
	m.SetOutboxBacklog(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("verified", "under_evaluation", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("application.transitioned")))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.disbursed.WithLabelValues("stipend")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outbox.WithLabelValues("notification", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("payroll", "true")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.outboxBacklog))
}

func TestInstrumentHandler_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.InstrumentHandler)
	r.Get("/applications/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/applications/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/applications/{id}", "418")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "scholarship_hub_http_requests_total")
}
