package query

import (
	"context"
	"fmt"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK DOCUMENTS QUERY
// Reports which required documents of an application are missing, pending
// verification or rejected.
// ══════════════════════════════════════════════════════════════════════════════

// CheckDocumentsQuery selects the application to check.
type CheckDocumentsQuery struct {
	ApplicationID string
}

// CheckDocumentsResult is the completeness report of one application.
type CheckDocumentsResult struct {
	ApplicationID string          `json:"application_id"`
	ScholarshipID string          `json:"scholarship_id"`
	Required      []document.Type `json:"required"`
	Report        document.Report `json:"report"`
}

// CheckDocumentsHandler handles CheckDocumentsQuery.
type CheckDocumentsHandler struct {
	r       Readers
	checker *document.Checker
}

// NewCheckDocumentsHandler creates a new handler.
func NewCheckDocumentsHandler(r Readers, checker *document.Checker) *CheckDocumentsHandler {
	if checker == nil {
		checker = document.NewChecker()
	}
	return &CheckDocumentsHandler{r: r, checker: checker}
}

// Handle runs the completeness check.
func (h *CheckDocumentsHandler) Handle(ctx context.Context, q CheckDocumentsQuery) (*CheckDocumentsResult, error) {
	if q.ApplicationID == "" {
		return nil, shared.NewDomainError("query", "CheckDocuments", shared.ErrValidation, "application_id is required")
	}

	app, err := h.r.Applications.GetByID(ctx, q.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("check documents: load application: %w", err)
	}
	sch, err := h.r.Scholarships.GetByID(ctx, app.ScholarshipID)
	if err != nil {
		return nil, fmt.Errorf("check documents: load scholarship: %w", err)
	}
	docs, err := h.r.Documents.ListByApplication(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("check documents: list documents: %w", err)
	}

	return &CheckDocumentsResult{
		ApplicationID: app.ID,
		ScholarshipID: sch.ID,
		Required:      sch.RequiredDocuments,
		Report:        h.checker.Check(sch.RequiredDocuments, docs),
	}, nil
}
