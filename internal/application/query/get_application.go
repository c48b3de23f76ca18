package query

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET APPLICATION QUERY
// Returns an application with everything a reviewer looks at: program,
// documents and their completeness, interviews, stipends and the statuses
// it may move to next.
// ══════════════════════════════════════════════════════════════════════════════

// GetApplicationQuery selects one application.
type GetApplicationQuery struct {
	ApplicationID string
}

// ApplicationView is the full read model of one application.
type ApplicationView struct {
	Application  *application.Application
	Scholarship  *scholarship.Scholarship
	Documents    []document.Document
	Completeness document.Report
	Interviews   []*interview.Interview
	Stipends     []*payment.Stipend
	AllowedNext  []application.Status

	// RemainingSlots is the number of approvals the program can still take.
	RemainingSlots int
}

// GetApplicationHandler handles GetApplicationQuery.
type GetApplicationHandler struct {
	r       Readers
	checker *document.Checker
}

// NewGetApplicationHandler creates a new handler.
func NewGetApplicationHandler(r Readers, checker *document.Checker) *GetApplicationHandler {
	if checker == nil {
		checker = document.NewChecker()
	}
	return &GetApplicationHandler{r: r, checker: checker}
}

// Handle assembles the view.
func (h *GetApplicationHandler) Handle(ctx context.Context, q GetApplicationQuery) (*ApplicationView, error) {
	if q.ApplicationID == "" {
		return nil, shared.NewDomainError("query", "GetApplication", shared.ErrValidation, "application_id is required")
	}

	app, err := h.r.Applications.GetByID(ctx, q.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	sch, err := h.r.Scholarships.GetByID(ctx, app.ScholarshipID)
	if err != nil {
		return nil, fmt.Errorf("get application: load scholarship: %w", err)
	}
	docs, err := h.r.Documents.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("get application: list documents: %w", err)
	}
	approved, err := h.r.Applications.CountApproved(ctx, sch.ID)
	if err != nil {
		return nil, fmt.Errorf("get application: count approved: %w", err)
	}

	view := &ApplicationView{
		Application:    app,
		Scholarship:    sch,
		Documents:      docs,
		Completeness:   h.checker.Check(sch.RequiredDocuments, docs),
		AllowedNext:    app.Status.AllowedTargets(),
		RemainingSlots: sch.RemainingSlots(approved),
	}

	if h.r.Interviews != nil {
		if view.Interviews, err = h.r.Interviews.ListByApplication(ctx, app.ID); err != nil {
			return nil, fmt.Errorf("get application: list interviews: %w", err)
		}
	}
	if h.r.Stipends != nil {
		if view.Stipends, err = h.r.Stipends.ListByApplication(ctx, app.ID); err != nil {
			return nil, fmt.Errorf("get application: list stipends: %w", err)
		}
	}
	return view, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST APPLICATIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListApplicationsQuery filters applications.
type ListApplicationsQuery struct {
	StudentID       string
	ScholarshipID   string
	Status          application.Status
	IncludeArchived bool

	// Limit defaults to 50, maximum 200.
	Limit  int
	Offset int
}

// Validate normalises paging and rejects unknown statuses.
func (q *ListApplicationsQuery) Validate() error {
	if q.Status != "" && !q.Status.IsValid() {
		return shared.Errorf("query", "ListApplications", shared.ErrValidation, "unknown status %q", q.Status)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return shared.NewDomainError("query", "ListApplications", shared.ErrValidation, "limit and offset cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = 50
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// ListApplicationsHandler handles ListApplicationsQuery.
type ListApplicationsHandler struct {
	r Readers
}

// NewListApplicationsHandler creates a new handler.
func NewListApplicationsHandler(r Readers) *ListApplicationsHandler {
	return &ListApplicationsHandler{r: r}
}

// Handle lists the matching applications.
func (h *ListApplicationsHandler) Handle(ctx context.Context, q ListApplicationsQuery) ([]*application.Application, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	apps, err := h.r.Applications.List(ctx, application.ListFilter{
		StudentID:       q.StudentID,
		ScholarshipID:   q.ScholarshipID,
		Status:          q.Status,
		IncludeArchived: q.IncludeArchived,
		Limit:           q.Limit,
		Offset:          q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIPS AND FUNDS
// ══════════════════════════════════════════════════════════════════════════════

// ListScholarshipsQuery filters programs.
type ListScholarshipsQuery struct {
	Status scholarship.Status
	Type   scholarship.Type
}

// ListScholarshipsHandler handles ListScholarshipsQuery.
type ListScholarshipsHandler struct {
	r Readers
}

// NewListScholarshipsHandler creates a new handler.
func NewListScholarshipsHandler(r Readers) *ListScholarshipsHandler {
	return &ListScholarshipsHandler{r: r}
}

// Handle lists the programs.
func (h *ListScholarshipsHandler) Handle(ctx context.Context, q ListScholarshipsQuery) ([]*scholarship.Scholarship, error) {
	if q.Status != "" && !q.Status.IsValid() {
		return nil, shared.Errorf("query", "ListScholarships", shared.ErrValidation, "unknown status %q", q.Status)
	}
	if q.Type != "" && !q.Type.IsValid() {
		return nil, shared.Errorf("query", "ListScholarships", shared.ErrValidation, "unknown type %q", q.Type)
	}
	list, err := h.r.Scholarships.List(ctx, scholarship.ListFilter{Status: q.Status, Type: q.Type})
	if err != nil {
		return nil, fmt.Errorf("list scholarships: %w", err)
	}
	return list, nil
}

// FundBalance is the remaining balance of the fund paying one type.
type FundBalance struct {
	Type    scholarship.Type `json:"scholarship_type"`
	Balance decimal.Decimal  `json:"balance"`
}

// FundBalanceHandler reports fund balances.
type FundBalanceHandler struct {
	r Readers
}

// NewFundBalanceHandler creates a new handler.
func NewFundBalanceHandler(r Readers) *FundBalanceHandler {
	return &FundBalanceHandler{r: r}
}

// Handle returns the balance of every fund, in scholarship.AllTypes order.
func (h *FundBalanceHandler) Handle(ctx context.Context) ([]FundBalance, error) {
	out := make([]FundBalance, 0, len(scholarship.AllTypes))
	for _, t := range scholarship.AllTypes {
		bal, err := h.r.Funds.Balance(ctx, t)
		if err != nil {
			if shared.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("fund balance %s: %w", t, err)
		}
		out = append(out, FundBalance{Type: t, Balance: bal})
	}
	return out, nil
}
