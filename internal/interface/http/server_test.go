package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/application/query"
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/service"
	"github.com/osas-hub/scholarship-hub/internal/interface/http/handlers"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

var now = timeutil.DateTime(2026, time.March, 2, 9, 0)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type scholarshipStore struct {
	mu   sync.Mutex
	byID map[string]*scholarship.Scholarship
}

func (s *scholarshipStore) Create(_ context.Context, sch *scholarship.Scholarship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[sch.ID]; ok {
		return shared.NewDomainError("test", "Create", shared.ErrAlreadyExists, sch.ID)
	}
	s.byID[sch.ID] = sch
	return nil
}

func (s *scholarshipStore) Update(_ context.Context, sch *scholarship.Scholarship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sch.ID] = sch
	return nil
}

func (s *scholarshipStore) GetByID(_ context.Context, id string) (*scholarship.Scholarship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.byID[id]
	if !ok {
		return nil, shared.NewDomainError("test", "GetByID", shared.ErrNotFound, "scholarship "+id)
	}
	cp := *sch
	return &cp, nil
}

func (s *scholarshipStore) List(_ context.Context, f scholarship.ListFilter) ([]*scholarship.Scholarship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*scholarship.Scholarship
	for _, sch := range s.byID {
		if f.Status != "" && sch.Status != f.Status {
			continue
		}
		if f.Type != "" && sch.Type != f.Type {
			continue
		}
		out = append(out, sch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type recordingOutbox struct {
	mu      sync.Mutex
	effects []shared.Effect
}

func (o *recordingOutbox) Append(_ context.Context, effects []shared.Effect) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.effects = append(o.effects, effects...)
	return nil
}

// storeUoW hands the fakes to every command. A non-nil err fails every unit
// of work before the body runs.
type storeUoW struct {
	repos command.Repositories
	err   error
}

func (u *storeUoW) Do(ctx context.Context, fn func(ctx context.Context, repos command.Repositories) error) error {
	if u.err != nil {
		return u.err
	}
	return fn(ctx, u.repos)
}

type fundLedger struct {
	balances map[scholarship.Type]decimal.Decimal
}

func (f *fundLedger) ForScholarship(context.Context, scholarship.Type) (payment.FundTracker, error) {
	return nil, errors.New("not used")
}

func (f *fundLedger) Balance(_ context.Context, t scholarship.Type) (decimal.Decimal, error) {
	b, ok := f.balances[t]
	if !ok {
		return decimal.Zero, shared.NewDomainError("test", "Balance", shared.ErrNotFound, string(t))
	}
	return b, nil
}

func (f *fundLedger) Deposit(_ context.Context, t scholarship.Type, amount decimal.Decimal, _ string) (decimal.Decimal, error) {
	f.balances[t] = f.balances[t].Add(amount)
	return f.balances[t], nil
}

type fakeInbox struct {
	items  map[string][]postgres.InboxItem
	marked []int64
}

func (f *fakeInbox) ListForUser(_ context.Context, userID string, limit int) ([]postgres.InboxItem, error) {
	items := f.items[userID]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, userID string, id int64) error {
	for _, it := range f.items[userID] {
		if it.ID == id {
			f.marked = append(f.marked, id)
			return nil
		}
	}
	return shared.NewDomainError("test", "MarkRead", shared.ErrNotFound, "notification")
}

type fakeAudit struct {
	report service.ChainReport
}

func (f fakeAudit) Verify(context.Context) (service.ChainReport, error) {
	return f.report, nil
}

type flagSet map[string]bool

func (f flagSet) IsEnabled(name string, _ *config.FeatureContext) bool { return f[name] }

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type fixture struct {
	srv    *Server
	schs   *scholarshipStore
	outbox *recordingOutbox
	uow    *storeUoW
	funds  *fundLedger
	inbox  *fakeInbox
}

func newFixture(t *testing.T, mutate ...func(*Config, *Dependencies)) *fixture {
	t.Helper()

	schs := &scholarshipStore{byID: map[string]*scholarship.Scholarship{
		"sch-acad": {
			ID:             "sch-acad",
			Name:           "Academic Excellence",
			Type:           scholarship.TypeAcademicFull,
			Amount:         decimal.NewFromInt(500),
			SlotsAvailable: 2,
			Deadline:       now.AddDate(0, 1, 0),
			Status:         scholarship.StatusOpen,
		},
		"sch-sa": {
			ID:             "sch-sa",
			Name:           "Student Assistantship",
			Type:           scholarship.TypeStudentAssistantship,
			SlotsAvailable: 10,
			Deadline:       now.AddDate(0, 1, 0),
			Status:         scholarship.StatusClosed,
		},
	}}
	outbox := &recordingOutbox{}
	funds := &fundLedger{balances: map[scholarship.Type]decimal.Decimal{
		scholarship.TypeAcademicFull: decimal.NewFromInt(10000),
	}}
	inbox := &fakeInbox{items: map[string][]postgres.InboxItem{
		"stu-1": {{
			ID:           7,
			Notification: shared.Notification{Title: "Application approved", Message: "Congratulations", Type: shared.NotificationSuccess},
			CreatedAt:    now,
		}},
	}}
	uow := &storeUoW{repos: command.Repositories{Scholarships: schs, Outbox: outbox}}

	clock := shared.FixedClock(now)
	wf := application.NewWorkflow(nil, nil, clock)
	exec := command.NewExecutor(uow, nil, logger.Nop(), command.WithIDGenerator(func() string { return "sch-new" }))
	cmds := command.NewHandlers(exec, command.Services{
		Workflow:   wf,
		Scheduler:  interview.NewScheduler(wf, 0, clock),
		Calculator: payment.NewCalculator(clock),
		Clock:      clock,
	})
	queries := query.NewHandlers(query.Readers{Scholarships: schs, Funds: funds}, nil, nil)

	cfg := DefaultConfig()
	cfg.RateLimitPerSec = 0
	deps := Dependencies{
		Commands: cmds,
		Queries:  queries,
		Funds:    funds,
		Inbox:    inbox,
		Audit:    fakeAudit{},
		Flags:    flagSet{config.FeatureRecommendations: false},
		Logger:   logger.Nop(),
	}
	for _, m := range mutate {
		m(&cfg, &deps)
	}
	return &fixture{srv: NewServer(cfg, deps), schs: schs, outbox: outbox, uow: uow, funds: funds, inbox: inbox}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(ActorHeader, "staff-1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestScholarships(t *testing.T) {
	t.Run("list filters by status", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/api/v1/scholarships?status=open", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var list []scholarshipView
		require.NoError(t, json.Unmarshal(env.Data, &list))
		require.Len(t, list, 1)
		assert.Equal(t, "sch-acad", list[0].ID)
		assert.Equal(t, 1, env.Meta.Count)
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/api/v1/scholarships?status=archived", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Validation", env.Error.Code)
	})

	t.Run("create stores the program and audits it", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodPost, "/api/v1/scholarships", `{
			"name": "Dean's List",
			"type": "academic_partial",
			"slots_available": 5,
			"deadline": "2026-04-30",
			"required_documents": ["certificate_of_grades"],
			"status": "open"
		}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var view scholarshipView
		require.NoError(t, json.Unmarshal(env.Data, &view))
		assert.Equal(t, "sch-new", view.ID)
		assert.Equal(t, "2026-04-30", view.Deadline)
		assert.Equal(t, scholarship.StatusOpen, view.Status)

		_, err := f.schs.GetByID(context.Background(), "sch-new")
		require.NoError(t, err)
		assert.NotEmpty(t, f.outbox.effects)
	})

	t.Run("create validates the body shape", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodPost, "/api/v1/scholarships", `{"type":"academic_full","deadline":"2026-04-30"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "validation_error", env.Error.Code)
		assert.Equal(t, "required", env.Error.Fields["Name"])
	})

	t.Run("create rejects unknown fields", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodPost, "/api/v1/scholarships", `{"name":"x","type":"academic_full","deadline":"2026-04-30","budget":1}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Validation", env.Error.Code)
	})

	t.Run("create rejects bad dates", func(t *testing.T) {
		f := newFixture(t)
		rec, _ := f.do(t, http.MethodPost, "/api/v1/scholarships", `{"name":"x","type":"academic_full","deadline":"30/04/2026"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update of unknown program is not found", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodPatch, "/api/v1/scholarships/missing", `{"status":"closed"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NotFound", env.Error.Code)
	})
}

func TestCommandErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.NewDomainError("application", "GetByID", shared.ErrNotFound, "application app-1"), http.StatusNotFound, "NotFound"},
		{"invalid transition", shared.NewDomainError("application", "Transition", shared.ErrInvalidTransition, "draft -> approved"), http.StatusUnprocessableEntity, "InvalidTransition"},
		{"conflict", shared.NewDomainError("application", "Update", shared.ErrConcurrentModification, "version"), http.StatusConflict, "ConcurrentModification"},
		{"insufficient funds", shared.NewDomainError("payment", "Release", shared.ErrInsufficientFunds, "fund"), http.StatusPaymentRequired, "InsufficientFunds"},
		{"unexpected", errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.uow.err = tt.err

			rec, env := f.do(t, http.MethodPost, "/api/v1/applications/app-1/transitions", `{"target":"submitted"}`)
			assert.Equal(t, tt.status, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestHandlers_ValidateBeforeCallingCore(t *testing.T) {
	f := newFixture(t)
	f.uow.err = errors.New("must not be reached")

	tests := []struct {
		name, method, path, body string
	}{
		{"empty body", http.MethodPost, "/api/v1/applications", ""},
		{"bad semester", http.MethodPost, "/api/v1/applications", `{"student_id":"s","scholarship_id":"x","semester":"third"}`},
		{"reject without reason", http.MethodPost, "/api/v1/documents/doc-1/review", `{"decision":"reject"}`},
		{"score out of range", http.MethodPost, "/api/v1/interviews/iv-1/complete", `{"scores":[101]}`},
		{"bad clock", http.MethodPost, "/api/v1/assignments/as-1/work-logs", `{"work_date":"2026-03-02","time_in":"8am","time_out":"17:00"}`},
		{"release is not a status change", http.MethodPost, "/api/v1/payments/pay-1/status", `{"status":"released"}`},
		{"payroll needs both ends", http.MethodPost, "/api/v1/payments/payroll", `{"period_start":"2026-03-01"}`},
		{"bad month", http.MethodPost, "/api/v1/stipends", `{"application_id":"app-1","month":13}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
		})
	}
}

func TestFunds(t *testing.T) {
	t.Run("balances skip unfunded types", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/api/v1/funds", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var list []query.FundBalance
		require.NoError(t, json.Unmarshal(env.Data, &list))
		require.Len(t, list, 1)
		assert.Equal(t, scholarship.TypeAcademicFull, list[0].Type)
	})

	t.Run("deposit credits the fund", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodPost, "/api/v1/funds/deposits", `{"scholarship_type":"academic_full","amount":"250.50","reference":"OR-1"}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var view depositView
		require.NoError(t, json.Unmarshal(env.Data, &view))
		assert.True(t, decimal.RequireFromString("10250.50").Equal(view.Balance))
	})

	t.Run("deposit rejects non-positive amounts", func(t *testing.T) {
		f := newFixture(t)
		rec, _ := f.do(t, http.MethodPost, "/api/v1/funds/deposits", `{"scholarship_type":"academic_full","amount":"0","reference":"OR-1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("deposit without ledger is not configured", func(t *testing.T) {
		f := newFixture(t, func(_ *Config, d *Dependencies) { d.Funds = nil })
		rec, _ := f.do(t, http.MethodPost, "/api/v1/funds/deposits", `{"scholarship_type":"academic_full","amount":"1","reference":"OR-1"}`)
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/api/v1/notifications", "", ActorHeader, "stu-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []inboxItemView
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Application approved", items[0].Title)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/notifications/7/read", "", ActorHeader, "stu-1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{7}, f.inbox.marked)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/notifications/7/read", "", ActorHeader, "stu-2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/notifications/abc/read", "", ActorHeader, "stu-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/notifications", "", ActorHeader, " ")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommendations_FeatureGate(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodGet, "/api/v1/students/stu-1/recommendations", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "feature_disabled", env.Error.Code)
}

func TestAuditVerify(t *testing.T) {
	t.Run("intact", func(t *testing.T) {
		f := newFixture(t, func(_ *Config, d *Dependencies) { d.Audit = fakeAudit{report: service.ChainReport{Checked: 12}} })
		rec, env := f.do(t, http.MethodGet, "/api/v1/audit/verify", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, string(env.Data), `"intact":true`)
	})

	t.Run("broken", func(t *testing.T) {
		f := newFixture(t, func(_ *Config, d *Dependencies) {
			d.Audit = fakeAudit{report: service.ChainReport{Checked: 5, BrokenAt: 4}}
		})
		rec, env := f.do(t, http.MethodGet, "/api/v1/audit/verify", "")
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, string(env.Data), `"broken_at":4`)
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("request id is echoed", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/live", "", RequestIDHeader, "req-123")
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", env.RequestID)
	})

	t.Run("request id is generated", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/live", "")
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, rec.Header().Get(RequestIDHeader), env.RequestID)
	})

	t.Run("unknown route is a JSON 404", func(t *testing.T) {
		f := newFixture(t)
		rec, env := f.do(t, http.MethodGet, "/api/v1/nothing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", env.Error.Code)
	})

	t.Run("rate limit", func(t *testing.T) {
		f := newFixture(t, func(c *Config, _ *Dependencies) {
			c.RateLimitPerSec = 0.001
			c.RateLimitBurst = 2
		})
		for i := 0; i < 2; i++ {
			rec, _ := f.do(t, http.MethodGet, "/api/v1/funds", "")
			require.Equal(t, http.StatusOK, rec.Code)
		}
		rec, env := f.do(t, http.MethodGet, "/api/v1/funds", "")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "rate_limited", env.Error.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		// health stays outside the limiter
		rec, _ = f.do(t, http.MethodGet, "/live", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("body limit", func(t *testing.T) {
		f := newFixture(t, func(c *Config, _ *Dependencies) { c.MaxBodyBytes = 16 })
		rec, _ := f.do(t, http.MethodPost, "/api/v1/applications/app-1/transitions", `{"target":"submitted","comment":"a long comment"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCritical("database", func(context.Context) error { return nil })
	checker.AddOptional("cache", func(context.Context) error { return errors.New("dial tcp: refused") })

	f := newFixture(t, func(_ *Config, d *Dependencies) { d.Health = checker })

	rec, env := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Healthy)
	assert.True(t, status.Degraded)
	assert.False(t, status.Checks["cache"].Healthy)

	rec, _ = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.AddCritical("database", func(context.Context) error { return errors.New("down") })
	rec, _ = f.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	status, code := statusFor(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "timeout", code)

	status, _ = statusFor(shared.NewDomainError("application", "Transition", shared.ErrMissingReason, "reason"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = statusFor(shared.NewDomainError("interview", "Schedule", shared.ErrSchedulingConflict, "slot"))
	assert.Equal(t, http.StatusConflict, status)
}
