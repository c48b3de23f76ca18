package query

import (
	"context"
	"fmt"

	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ELIGIBILITY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateEligibilityQuery evaluates one student against one scholarship.
type EvaluateEligibilityQuery struct {
	StudentID     string
	ScholarshipID string
}

// Validate checks the query parameters.
func (q EvaluateEligibilityQuery) Validate() error {
	if q.StudentID == "" || q.ScholarshipID == "" {
		return shared.NewDomainError("query", "EvaluateEligibility", shared.ErrValidation, "student_id and scholarship_id are required")
	}
	return nil
}

// EligibilityResult is the verdict with its ranking score.
type EligibilityResult struct {
	StudentID     string               `json:"student_id"`
	ScholarshipID string               `json:"scholarship_id"`
	Verdict       eligibility.Verdict  `json:"verdict"`
	Score         float64              `json:"eligibility_score"`
	Priority      eligibility.Priority `json:"priority"`
}

// EvaluateEligibilityHandler handles EvaluateEligibilityQuery.
type EvaluateEligibilityHandler struct {
	r         Readers
	evaluator *eligibility.Evaluator
}

// NewEvaluateEligibilityHandler creates a new handler.
func NewEvaluateEligibilityHandler(r Readers, evaluator *eligibility.Evaluator) *EvaluateEligibilityHandler {
	return &EvaluateEligibilityHandler{r: r, evaluator: evaluatorOrDefault(evaluator)}
}

// Handle evaluates every rule and returns all failure reasons.
func (h *EvaluateEligibilityHandler) Handle(ctx context.Context, q EvaluateEligibilityQuery) (*EligibilityResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	snap, err := h.r.Students.Snapshot(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("evaluate eligibility: load student: %w", err)
	}
	sch, err := h.r.Scholarships.GetByID(ctx, q.ScholarshipID)
	if err != nil {
		return nil, fmt.Errorf("evaluate eligibility: load scholarship: %w", err)
	}

	v := h.evaluator.Evaluate(*snap, *sch)
	return &EligibilityResult{
		StudentID:     q.StudentID,
		ScholarshipID: sch.ID,
		Verdict:       v,
		Score:         eligibility.Score(sch.Type, snap.GWA),
		Priority:      eligibility.PriorityFor(sch.Type, snap.GWA, v.Eligible),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMEND SCHOLARSHIPS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// RecommendScholarshipsQuery lists the open scholarships a student
// qualifies for.
type RecommendScholarshipsQuery struct {
	StudentID string

	// Limit caps the result (0 = all).
	Limit int
}

// RecommendScholarshipsResult holds the recommendations, best fit first.
type RecommendScholarshipsResult struct {
	StudentID       string                       `json:"student_id"`
	Recommendations []eligibility.Recommendation `json:"recommendations"`
}

// RecommendScholarshipsHandler handles RecommendScholarshipsQuery.
type RecommendScholarshipsHandler struct {
	r         Readers
	evaluator *eligibility.Evaluator
}

// NewRecommendScholarshipsHandler creates a new handler.
func NewRecommendScholarshipsHandler(r Readers, evaluator *eligibility.Evaluator) *RecommendScholarshipsHandler {
	return &RecommendScholarshipsHandler{r: r, evaluator: evaluatorOrDefault(evaluator)}
}

// Handle returns the recommendations.
func (h *RecommendScholarshipsHandler) Handle(ctx context.Context, q RecommendScholarshipsQuery) (*RecommendScholarshipsResult, error) {
	if q.StudentID == "" {
		return nil, shared.NewDomainError("query", "RecommendScholarships", shared.ErrValidation, "student_id is required")
	}
	if q.Limit < 0 {
		return nil, shared.NewDomainError("query", "RecommendScholarships", shared.ErrValidation, "limit cannot be negative")
	}

	snap, err := h.r.Students.Snapshot(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("recommend: load student: %w", err)
	}
	open, err := h.r.Scholarships.List(ctx, scholarship.ListFilter{Status: scholarship.StatusOpen})
	if err != nil {
		return nil, fmt.Errorf("recommend: list scholarships: %w", err)
	}

	recs := h.evaluator.Recommend(*snap, open)
	if q.Limit > 0 && len(recs) > q.Limit {
		recs = recs[:q.Limit]
	}
	return &RecommendScholarshipsResult{StudentID: q.StudentID, Recommendations: recs}, nil
}

func evaluatorOrDefault(ev *eligibility.Evaluator) *eligibility.Evaluator {
	if ev == nil {
		return eligibility.NewEvaluator(eligibility.DefaultRules(), nil)
	}
	return ev
}
