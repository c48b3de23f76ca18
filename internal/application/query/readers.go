// Package query contains read operations (CQRS - Queries).
// Queries never modify state and never go through the unit of work.
package query

import (
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

// Readers are the repositories the queries read from.
type Readers struct {
	Applications application.Repository
	Documents    document.Repository
	Scholarships scholarship.Repository
	Students     student.SnapshotProvider
	Interviews   interview.Repository
	Stipends     payment.StipendRepository
	Funds        payment.FundLedger
}

// Handlers bundles every query handler.
type Handlers struct {
	CheckDocuments        *CheckDocumentsHandler
	EvaluateEligibility   *EvaluateEligibilityHandler
	RecommendScholarships *RecommendScholarshipsHandler
	GetApplication        *GetApplicationHandler
	ListApplications      *ListApplicationsHandler
	ListScholarships      *ListScholarshipsHandler
	FundBalance           *FundBalanceHandler
}

// NewHandlers wires every query handler to r.
func NewHandlers(r Readers, evaluator *eligibility.Evaluator, checker *document.Checker) *Handlers {
	return &Handlers{
		CheckDocuments:        NewCheckDocumentsHandler(r, checker),
		EvaluateEligibility:   NewEvaluateEligibilityHandler(r, evaluator),
		RecommendScholarships: NewRecommendScholarshipsHandler(r, evaluator),
		GetApplication:        NewGetApplicationHandler(r, checker),
		ListApplications:      NewListApplicationsHandler(r),
		ListScholarships:      NewListScholarshipsHandler(r),
		FundBalance:           NewFundBalanceHandler(r),
	}
}
