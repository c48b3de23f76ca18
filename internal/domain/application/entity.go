// Package application owns the scholarship application and its status
// workflow.
package application

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

const domainName = "application"

// Application is one student's request for one scholarship in one term.
// StudentID and ScholarshipID never change after creation.
type Application struct {
	ID                string
	StudentID         string
	ScholarshipID     string
	Status            Status
	Priority          Priority
	ReviewerID        string
	AppliedAt         *time.Time
	ApprovedAt        *time.Time
	RejectedAt        *time.Time
	UploadedDocuments []string
	EvaluationScore   *float64
	InterviewID       string
	StipendStatus     payment.Status
	AmountReceived    decimal.Decimal
	AcademicYear      shared.AcademicYear
	Semester          shared.Semester
	Purpose           string
	Remarks           string
	ArchivedAt        *time.Time
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy of a.
func (a *Application) Clone() *Application {
	c := *a
	c.AppliedAt = cloneTime(a.AppliedAt)
	c.ApprovedAt = cloneTime(a.ApprovedAt)
	c.RejectedAt = cloneTime(a.RejectedAt)
	c.ArchivedAt = cloneTime(a.ArchivedAt)
	if a.EvaluationScore != nil {
		s := *a.EvaluationScore
		c.EvaluationScore = &s
	}
	c.UploadedDocuments = append([]string(nil), a.UploadedDocuments...)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// IsArchived reports whether the application was soft-deleted.
func (a *Application) IsArchived() bool {
	return a.ArchivedAt != nil
}

// HasDocument reports whether docID is attached.
func (a *Application) HasDocument(docID string) bool {
	for _, id := range a.UploadedDocuments {
		if id == docID {
			return true
		}
	}
	return false
}

// AttachDocument returns a copy of a with docID attached.
func (a *Application) AttachDocument(docID string, now time.Time) (*Application, error) {
	const op = "AttachDocument"
	if a.IsArchived() || !a.Status.AcceptsDocuments() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "documents cannot be added to a %s application", a.Status)
	}
	c := a.Clone()
	if !c.HasDocument(docID) {
		c.UploadedDocuments = append(c.UploadedDocuments, docID)
	}
	c.UpdatedAt = now
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATION
// ══════════════════════════════════════════════════════════════════════════════

// NewDraftParams holds the input for opening an application.
type NewDraftParams struct {
	ID            string
	StudentID     string
	ScholarshipID string
	AcademicYear  shared.AcademicYear
	Semester      shared.Semester
	Purpose       string
	Priority      Priority
}

// NewDraft opens an application in draft.
func NewDraft(p NewDraftParams, now time.Time) (*Outcome, error) {
	const op = "NewDraft"

	if p.ID == "" || p.StudentID == "" || p.ScholarshipID == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "application, student and scholarship ids are required")
	}
	if p.AcademicYear == "" {
		p.AcademicYear = shared.AcademicYearFor(now)
	}
	if !p.AcademicYear.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "invalid academic year %q", p.AcademicYear)
	}
	if !p.Semester.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "invalid semester %q", p.Semester)
	}
	if p.Priority == "" {
		p.Priority = PriorityNormal
	}
	if !p.Priority.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "invalid priority %q", p.Priority)
	}

	app := &Application{
		ID:             p.ID,
		StudentID:      p.StudentID,
		ScholarshipID:  p.ScholarshipID,
		Status:         StatusDraft,
		Priority:       p.Priority,
		AmountReceived: decimal.Zero,
		AcademicYear:   p.AcademicYear,
		Semester:       p.Semester,
		Purpose:        strings.TrimSpace(p.Purpose),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	out := &Outcome{Application: app, To: StatusDraft}
	out.Audit(p.StudentID, "application.created", domainName, app.ID, nil, map[string]any{
		"scholarship_id": app.ScholarshipID,
		"academic_year":  string(app.AcademicYear),
		"semester":       string(app.Semester),
	})
	out.Emit(shared.ApplicationCreatedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventApplicationCreated, app.ID, now),
		StudentID:     app.StudentID,
		ScholarshipID: app.ScholarshipID,
		AcademicYear:  string(app.AcademicYear),
		Semester:      string(app.Semester),
	})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	StudentID       string
	ScholarshipID   string
	Status          Status
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Repository persists applications. Update fails with
// shared.ErrConcurrentModification when the stored version differs from
// expectedVersion, and bumps a.Version on success.
type Repository interface {
	Create(ctx context.Context, a *Application) error
	Update(ctx context.Context, a *Application, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*Application, error)
	List(ctx context.Context, filter ListFilter) ([]*Application, error)
	CountApproved(ctx context.Context, scholarshipID string) (int, error)
}
