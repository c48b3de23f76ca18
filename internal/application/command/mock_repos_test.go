package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY STORE
// Every map holds private copies. A unit of work snapshots the maps and
// restores them when the body fails, which is enough to observe rollbacks.
// ══════════════════════════════════════════════════════════════════════════════

type memState struct {
	apps        map[string]*application.Application
	docs        map[string]*document.Document
	schs        map[string]*scholarship.Scholarship
	students    map[string]*student.Snapshot
	interviews  map[string]*interview.Interview
	payments    map[string]*payment.Payment
	stipends    map[string]*payment.Stipend
	logs        map[string]*payment.WorkHourLog
	assignments map[string]*payment.Assignment
	funds       map[scholarship.Type]decimal.Decimal
	outbox      []shared.Effect
}

func (s memState) copy() memState {
	c := memState{
		apps:        make(map[string]*application.Application, len(s.apps)),
		docs:        make(map[string]*document.Document, len(s.docs)),
		schs:        make(map[string]*scholarship.Scholarship, len(s.schs)),
		students:    make(map[string]*student.Snapshot, len(s.students)),
		interviews:  make(map[string]*interview.Interview, len(s.interviews)),
		payments:    make(map[string]*payment.Payment, len(s.payments)),
		stipends:    make(map[string]*payment.Stipend, len(s.stipends)),
		logs:        make(map[string]*payment.WorkHourLog, len(s.logs)),
		assignments: make(map[string]*payment.Assignment, len(s.assignments)),
		funds:       make(map[scholarship.Type]decimal.Decimal, len(s.funds)),
		outbox:      append([]shared.Effect(nil), s.outbox...),
	}
	for k, v := range s.apps {
		c.apps[k] = v
	}
	for k, v := range s.docs {
		c.docs[k] = v
	}
	for k, v := range s.schs {
		c.schs[k] = v
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.interviews {
		c.interviews[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.stipends {
		c.stipends[k] = v
	}
	for k, v := range s.logs {
		c.logs[k] = v
	}
	for k, v := range s.assignments {
		c.assignments[k] = v
	}
	for k, v := range s.funds {
		c.funds[k] = v
	}
	return c
}

type memStore struct {
	mu sync.Mutex
	st memState

	// conflicts makes the next n application updates fail as if another
	// writer got there first.
	conflicts int

	// outboxErr fails every outbox append.
	outboxErr error
}

func newMemStore() *memStore {
	return &memStore{st: memState{}.copy()}
}

func (m *memStore) Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.st.copy()
	repos := Repositories{
		Applications: memApps{m},
		Documents:    memDocs{m},
		Scholarships: memSchs{m},
		Students:     memStudents{m},
		Interviews:   memInterviews{m},
		Payments:     memPayments{m},
		Stipends:     memStipends{m},
		WorkLogs:     memLogs{m},
		Assignments:  memAssignments{m},
		Funds:        memFunds{m},
		Outbox:       memOutbox{m},
	}
	if err := fn(ctx, repos); err != nil {
		m.st = saved
		return err
	}
	return nil
}

func (m *memStore) app(id string) *application.Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.apps[id].Clone()
}

func (m *memStore) effects() []shared.Effect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shared.Effect(nil), m.st.outbox...)
}

func (m *memStore) fund(t scholarship.Type) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.funds[t]
}

func notFound(what, id string) error {
	return shared.Errorf("memory", "get", shared.ErrNotFound, "%s %s not found", what, id)
}

func conflict(what, id string) error {
	return shared.Errorf("memory", "update", shared.ErrConcurrentModification, "%s %s was modified", what, id)
}

// ── applications ─────────────────────────────────────────────────────────────

type memApps struct{ m *memStore }

func (r memApps) Create(_ context.Context, a *application.Application) error {
	if _, ok := r.m.st.apps[a.ID]; ok {
		return shared.Errorf("memory", "create", shared.ErrAlreadyExists, "application %s exists", a.ID)
	}
	r.m.st.apps[a.ID] = a.Clone()
	return nil
}

func (r memApps) Update(_ context.Context, a *application.Application, expected int) error {
	cur, ok := r.m.st.apps[a.ID]
	if !ok {
		return notFound("application", a.ID)
	}
	if r.m.conflicts > 0 {
		r.m.conflicts--
		return conflict("application", a.ID)
	}
	if cur.Version != expected {
		return conflict("application", a.ID)
	}
	a.Version = expected + 1
	r.m.st.apps[a.ID] = a.Clone()
	return nil
}

func (r memApps) GetByID(_ context.Context, id string) (*application.Application, error) {
	a, ok := r.m.st.apps[id]
	if !ok {
		return nil, notFound("application", id)
	}
	return a.Clone(), nil
}

func (r memApps) List(_ context.Context, f application.ListFilter) ([]*application.Application, error) {
	var out []*application.Application
	for _, a := range r.m.st.apps {
		if (f.StudentID != "" && a.StudentID != f.StudentID) ||
			(f.ScholarshipID != "" && a.ScholarshipID != f.ScholarshipID) ||
			(f.Status != "" && a.Status != f.Status) ||
			(!f.IncludeArchived && a.IsArchived()) {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memApps) CountApproved(_ context.Context, scholarshipID string) (int, error) {
	n := 0
	for _, a := range r.m.st.apps {
		if a.ScholarshipID == scholarshipID && a.Status == application.StatusApproved {
			n++
		}
	}
	return n, nil
}

// ── documents ────────────────────────────────────────────────────────────────

type memDocs struct{ m *memStore }

func (r memDocs) Create(_ context.Context, d *document.Document) error {
	r.m.st.docs[d.ID] = d.Clone()
	return nil
}

func (r memDocs) Update(_ context.Context, d *document.Document, expected int) error {
	cur, ok := r.m.st.docs[d.ID]
	if !ok {
		return notFound("document", d.ID)
	}
	if cur.Version != expected {
		return conflict("document", d.ID)
	}
	d.Version = expected + 1
	r.m.st.docs[d.ID] = d.Clone()
	return nil
}

func (r memDocs) GetByID(_ context.Context, id string) (*document.Document, error) {
	d, ok := r.m.st.docs[id]
	if !ok {
		return nil, notFound("document", id)
	}
	return d.Clone(), nil
}

func (r memDocs) ListByApplication(_ context.Context, applicationID string) ([]document.Document, error) {
	var out []document.Document
	for _, d := range r.m.st.docs {
		if d.ApplicationID == applicationID {
			out = append(out, *d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ── scholarships / students ──────────────────────────────────────────────────

type memSchs struct{ m *memStore }

func (r memSchs) Create(_ context.Context, s *scholarship.Scholarship) error {
	c := *s
	r.m.st.schs[s.ID] = &c
	return nil
}

func (r memSchs) Update(ctx context.Context, s *scholarship.Scholarship) error {
	return r.Create(ctx, s)
}

func (r memSchs) GetByID(_ context.Context, id string) (*scholarship.Scholarship, error) {
	s, ok := r.m.st.schs[id]
	if !ok {
		return nil, notFound("scholarship", id)
	}
	c := *s
	return &c, nil
}

func (r memSchs) List(_ context.Context, f scholarship.ListFilter) ([]*scholarship.Scholarship, error) {
	var out []*scholarship.Scholarship
	for _, s := range r.m.st.schs {
		if (f.Status == "" || s.Status == f.Status) && (f.Type == "" || s.Type == f.Type) {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

type memStudents struct{ m *memStore }

func (r memStudents) Snapshot(_ context.Context, id string) (*student.Snapshot, error) {
	s, ok := r.m.st.students[id]
	if !ok {
		return nil, notFound("student", id)
	}
	c := *s
	return &c, nil
}

// ── interviews ───────────────────────────────────────────────────────────────

type memInterviews struct{ m *memStore }

func (r memInterviews) Create(_ context.Context, iv *interview.Interview) error {
	r.m.st.interviews[iv.ID] = iv.Clone()
	return nil
}

func (r memInterviews) Update(_ context.Context, iv *interview.Interview, expected int) error {
	cur, ok := r.m.st.interviews[iv.ID]
	if !ok {
		return notFound("interview", iv.ID)
	}
	if cur.Version != expected {
		return conflict("interview", iv.ID)
	}
	iv.Version = expected + 1
	r.m.st.interviews[iv.ID] = iv.Clone()
	return nil
}

func (r memInterviews) GetByID(_ context.Context, id string) (*interview.Interview, error) {
	iv, ok := r.m.st.interviews[id]
	if !ok {
		return nil, notFound("interview", id)
	}
	return iv.Clone(), nil
}

func (r memInterviews) ListByInterviewer(_ context.Context, interviewerID string, from, to time.Time) ([]*interview.Interview, error) {
	var out []*interview.Interview
	for _, iv := range r.m.st.interviews {
		if iv.InterviewerID == interviewerID && !iv.ScheduledAt.Before(from) && !iv.ScheduledAt.After(to) {
			out = append(out, iv.Clone())
		}
	}
	return out, nil
}

func (r memInterviews) ListByApplication(_ context.Context, applicationID string) ([]*interview.Interview, error) {
	var out []*interview.Interview
	for _, iv := range r.m.st.interviews {
		if iv.ApplicationID == applicationID {
			out = append(out, iv.Clone())
		}
	}
	return out, nil
}

// ── payments / stipends ──────────────────────────────────────────────────────

type memPayments struct{ m *memStore }

func (r memPayments) Create(_ context.Context, p *payment.Payment) error {
	for _, e := range r.m.st.payments {
		if e.AssignmentID == p.AssignmentID && e.Status != payment.StatusCancelled &&
			e.PeriodStart.Equal(p.PeriodStart) && e.PeriodEnd.Equal(p.PeriodEnd) {
			return shared.Errorf("memory", "create", shared.ErrAlreadyExists, "payment for %s exists", p.PeriodStart)
		}
	}
	r.m.st.payments[p.ID] = p.Clone()
	return nil
}

func (r memPayments) Update(_ context.Context, p *payment.Payment, expected int) error {
	cur, ok := r.m.st.payments[p.ID]
	if !ok {
		return notFound("payment", p.ID)
	}
	if cur.Version != expected {
		return conflict("payment", p.ID)
	}
	p.Version = expected + 1
	r.m.st.payments[p.ID] = p.Clone()
	return nil
}

func (r memPayments) GetByID(_ context.Context, id string) (*payment.Payment, error) {
	p, ok := r.m.st.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	return p.Clone(), nil
}

func (r memPayments) ListByAssignment(_ context.Context, assignmentID string) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range r.m.st.payments {
		if p.AssignmentID == assignmentID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

type memStipends struct{ m *memStore }

func (r memStipends) Create(_ context.Context, s *payment.Stipend) error {
	for _, e := range r.m.st.stipends {
		if e.ApplicationID == s.ApplicationID && e.Status != payment.StatusCancelled && e.Month == s.Month && e.Year == s.Year {
			return shared.Errorf("memory", "create", shared.ErrAlreadyExists, "stipend for %s exists", s.Period())
		}
	}
	r.m.st.stipends[s.ID] = s.Clone()
	return nil
}

func (r memStipends) Update(_ context.Context, s *payment.Stipend, expected int) error {
	cur, ok := r.m.st.stipends[s.ID]
	if !ok {
		return notFound("stipend", s.ID)
	}
	if cur.Version != expected {
		return conflict("stipend", s.ID)
	}
	s.Version = expected + 1
	r.m.st.stipends[s.ID] = s.Clone()
	return nil
}

func (r memStipends) GetByID(_ context.Context, id string) (*payment.Stipend, error) {
	s, ok := r.m.st.stipends[id]
	if !ok {
		return nil, notFound("stipend", id)
	}
	return s.Clone(), nil
}

func (r memStipends) ListByApplication(_ context.Context, applicationID string) ([]*payment.Stipend, error) {
	var out []*payment.Stipend
	for _, s := range r.m.st.stipends {
		if s.ApplicationID == applicationID {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

// ── work logs / assignments ──────────────────────────────────────────────────

type memLogs struct{ m *memStore }

func (r memLogs) Create(_ context.Context, l *payment.WorkHourLog) error {
	for _, e := range r.m.st.logs {
		if e.AssignmentID == l.AssignmentID && e.WorkDate.Equal(l.WorkDate) {
			return shared.Errorf("memory", "create", shared.ErrAlreadyExists, "log for %s exists", l.WorkDate)
		}
	}
	r.m.st.logs[l.ID] = l.Clone()
	return nil
}

func (r memLogs) Update(_ context.Context, l *payment.WorkHourLog, expected int) error {
	cur, ok := r.m.st.logs[l.ID]
	if !ok {
		return notFound("work log", l.ID)
	}
	if cur.Version != expected {
		return conflict("work log", l.ID)
	}
	l.Version = expected + 1
	r.m.st.logs[l.ID] = l.Clone()
	return nil
}

func (r memLogs) GetByID(_ context.Context, id string) (*payment.WorkHourLog, error) {
	l, ok := r.m.st.logs[id]
	if !ok {
		return nil, notFound("work log", id)
	}
	return l.Clone(), nil
}

func (r memLogs) ListByAssignment(_ context.Context, assignmentID string, from, to time.Time) ([]*payment.WorkHourLog, error) {
	var out []*payment.WorkHourLog
	for _, l := range r.m.st.logs {
		if l.AssignmentID == assignmentID && !l.WorkDate.Before(from) && !l.WorkDate.After(to) {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out, nil
}

type memAssignments struct{ m *memStore }

func (r memAssignments) Create(_ context.Context, a *payment.Assignment) error {
	c := *a
	r.m.st.assignments[a.ID] = &c
	return nil
}

func (r memAssignments) GetByID(_ context.Context, id string) (*payment.Assignment, error) {
	a, ok := r.m.st.assignments[id]
	if !ok {
		return nil, notFound("assignment", id)
	}
	c := *a
	return &c, nil
}

func (r memAssignments) ListActive(_ context.Context) ([]*payment.Assignment, error) {
	var out []*payment.Assignment
	for _, a := range r.m.st.assignments {
		if a.IsActive() {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ── funds / outbox ───────────────────────────────────────────────────────────

type memFunds struct{ m *memStore }

func (r memFunds) ForScholarship(_ context.Context, t scholarship.Type) (payment.FundTracker, error) {
	return memFund{m: r.m, t: t}, nil
}

func (r memFunds) Balance(_ context.Context, t scholarship.Type) (decimal.Decimal, error) {
	return r.m.st.funds[t], nil
}

type memFund struct {
	m *memStore
	t scholarship.Type
}

func (f memFund) HasSufficientBalance(_ context.Context, amount decimal.Decimal) (bool, error) {
	return f.m.st.funds[f.t].GreaterThanOrEqual(amount), nil
}

func (f memFund) DisburseAmount(_ context.Context, amount decimal.Decimal, _ string) error {
	f.m.st.funds[f.t] = f.m.st.funds[f.t].Sub(amount)
	return nil
}

type memOutbox struct{ m *memStore }

func (o memOutbox) Append(_ context.Context, effects []shared.Effect) error {
	if o.m.outboxErr != nil {
		return o.m.outboxErr
	}
	o.m.st.outbox = append(o.m.st.outbox, effects...)
	return nil
}

// ── event capture ────────────────────────────────────────────────────────────

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}
