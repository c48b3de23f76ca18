package http

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/config"
	"github.com/osas-hub/scholarship-hub/internal/application/command"
	"github.com/osas-hub/scholarship-hub/internal/application/query"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListScholarships(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.deps.Queries.ListScholarships.Handle(r.Context(), query.ListScholarshipsQuery{
		Status: scholarship.Status(q.Get("status")),
		Type:   scholarship.Type(q.Get("type")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, r, mapSlice(list, toScholarshipView))
}

func (s *Server) handleCreateScholarship(w http.ResponseWriter, r *http.Request) {
	var req createScholarshipRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	deadline, err := parseDate("deadline", req.Deadline)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	docs := make([]document.Type, 0, len(req.RequiredDocuments))
	for _, d := range req.RequiredDocuments {
		docs = append(docs, document.Type(d))
	}
	sch, err := s.deps.Commands.Scholarships.Create(r.Context(), command.CreateScholarshipCommand{
		ActorID:           actorFrom(r),
		Name:              req.Name,
		Description:       req.Description,
		Type:              scholarship.Type(req.Type),
		Amount:            req.Amount,
		SlotsAvailable:    req.SlotsAvailable,
		Deadline:          deadline,
		RequiredDocuments: docs,
		Criteria:          req.Criteria,
		Status:            scholarship.Status(req.Status),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toScholarshipView(sch))
}

func (s *Server) handleUpdateScholarship(w http.ResponseWriter, r *http.Request) {
	var req updateScholarshipRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	deadline, err := parseOptionalDate("deadline", req.Deadline)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sch, err := s.deps.Commands.Scholarships.Update(r.Context(), command.UpdateScholarshipCommand{
		ScholarshipID:  pathID(r, "id"),
		ActorID:        actorFrom(r),
		Status:         scholarship.Status(req.Status),
		SlotsAvailable: req.SlotsAvailable,
		Deadline:       deadline,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toScholarshipView(sch))
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

type recommendationView struct {
	Scholarship *scholarshipView     `json:"scholarship"`
	Verdict     eligibility.Verdict  `json:"verdict"`
	Score       float64              `json:"eligibility_score"`
	Priority    eligibility.Priority `json:"priority"`
}

func toRecommendationView(rec eligibility.Recommendation) recommendationView {
	return recommendationView{
		Scholarship: toScholarshipView(rec.Scholarship),
		Verdict:     rec.Verdict,
		Score:       rec.Score,
		Priority:    rec.Priority,
	}
}

func (s *Server) handleEvaluateEligibility(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Queries.EvaluateEligibility.Handle(r.Context(), query.EvaluateEligibilityQuery{
		StudentID:     pathID(r, "id"),
		ScholarshipID: pathID(r, "scholarshipID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	studentID := pathID(r, "id")
	if s.deps.Flags != nil && !s.deps.Flags.IsEnabled(config.FeatureRecommendations, &config.FeatureContext{SubjectID: studentID}) {
		writeJSONError(w, r, http.StatusNotFound, APIError{Code: "feature_disabled", Message: "recommendations are not enabled"})
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Queries.RecommendScholarships.Handle(r.Context(), query.RecommendScholarshipsQuery{
		StudentID: studentID,
		Limit:     limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, r, mapSlice(res.Recommendations, toRecommendationView))
}

// ══════════════════════════════════════════════════════════════════════════════
// FUNDS
// ══════════════════════════════════════════════════════════════════════════════

type depositView struct {
	ScholarshipType scholarship.Type `json:"scholarship_type"`
	Reference       string           `json:"reference"`
	Balance         decimal.Decimal  `json:"balance"`
}

func (s *Server) handleFundBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.deps.Queries.FundBalance.Handle(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, r, balances)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Funds == nil {
		unavailable(w, r, "fund ledger")
		return
	}
	var req depositRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t := scholarship.Type(req.ScholarshipType)
	if !t.IsValid() {
		s.writeError(w, r, shared.Errorf("http", "deposit", shared.ErrValidation, "unknown scholarship type %q", req.ScholarshipType))
		return
	}
	if !req.Amount.IsPositive() {
		s.writeError(w, r, shared.NewDomainError("http", "deposit", shared.ErrValidation, "amount must be positive"))
		return
	}
	balance, err := s.deps.Funds.Deposit(r.Context(), t, req.Amount, req.Reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLogger(r).Info("fund deposit",
		logger.String("scholarship_type", string(t)),
		logger.String("amount", req.Amount.StringFixed(2)),
		logger.String("reference", req.Reference),
		logger.ActorID(actorFrom(r)),
	)
	writeJSON(w, r, http.StatusCreated, depositView{ScholarshipType: t, Reference: req.Reference, Balance: balance})
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		unavailable(w, r, "notification inbox")
		return
	}
	user := actorFrom(r)
	if user == "" {
		s.writeError(w, r, shared.NewDomainError("http", "list_notifications", shared.ErrValidation, ActorHeader+" header is required"))
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.deps.Inbox.ListForUser(r.Context(), user, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, r, mapSlice(items, toInboxItemView))
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inbox == nil {
		unavailable(w, r, "notification inbox")
		return
	}
	user := actorFrom(r)
	if user == "" {
		s.writeError(w, r, shared.NewDomainError("http", "mark_read", shared.ErrValidation, ActorHeader+" header is required"))
		return
	}
	id, err := strconv.ParseInt(pathID(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, badRequest("notification id", err))
		return
	}
	if err := s.deps.Inbox.MarkRead(r.Context(), user, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id, "read": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		unavailable(w, r, "audit chain")
		return
	}
	report, err := s.deps.Audit.Verify(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if !report.Intact() {
		s.requestLogger(r).Error("audit chain broken", logger.Int64("row", report.BrokenAt))
		status = http.StatusConflict
	}
	writeJSON(w, r, status, map[string]any{
		"checked":   report.Checked,
		"intact":    report.Intact(),
		"broken_at": report.BrokenAt,
	})
}
