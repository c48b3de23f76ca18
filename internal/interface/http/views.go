package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/application/query"
	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE VIEWS
// Wire shapes of the domain entities. Money is a decimal string, dates are
// YYYY-MM-DD and instants RFC 3339.
// ══════════════════════════════════════════════════════════════════════════════

type applicationView struct {
	ID              string               `json:"id"`
	StudentID       string               `json:"student_id"`
	ScholarshipID   string               `json:"scholarship_id"`
	Status          application.Status   `json:"status"`
	Priority        application.Priority `json:"priority"`
	ReviewerID      string               `json:"reviewer_id,omitempty"`
	AppliedAt       *time.Time           `json:"applied_at,omitempty"`
	ApprovedAt      *time.Time           `json:"approved_at,omitempty"`
	RejectedAt      *time.Time           `json:"rejected_at,omitempty"`
	Documents       []string             `json:"uploaded_documents"`
	EvaluationScore *float64             `json:"evaluation_score,omitempty"`
	InterviewID     string               `json:"interview_id,omitempty"`
	StipendStatus   payment.Status       `json:"stipend_status,omitempty"`
	AmountReceived  decimal.Decimal      `json:"amount_received"`
	AcademicYear    string               `json:"academic_year"`
	Semester        string               `json:"semester"`
	Purpose         string               `json:"purpose,omitempty"`
	Remarks         string               `json:"remarks,omitempty"`
	ArchivedAt      *time.Time           `json:"archived_at,omitempty"`
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func toApplicationView(a *application.Application) *applicationView {
	if a == nil {
		return nil
	}
	docs := a.UploadedDocuments
	if docs == nil {
		docs = []string{}
	}
	return &applicationView{
		ID:              a.ID,
		StudentID:       a.StudentID,
		ScholarshipID:   a.ScholarshipID,
		Status:          a.Status,
		Priority:        a.Priority,
		ReviewerID:      a.ReviewerID,
		AppliedAt:       a.AppliedAt,
		ApprovedAt:      a.ApprovedAt,
		RejectedAt:      a.RejectedAt,
		Documents:       docs,
		EvaluationScore: a.EvaluationScore,
		InterviewID:     a.InterviewID,
		StipendStatus:   a.StipendStatus,
		AmountReceived:  a.AmountReceived,
		AcademicYear:    string(a.AcademicYear),
		Semester:        string(a.Semester),
		Purpose:         a.Purpose,
		Remarks:         a.Remarks,
		ArchivedAt:      a.ArchivedAt,
		Version:         a.Version,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// transitionView is returned by every application command.
type transitionView struct {
	Application *applicationView     `json:"application"`
	From        application.Status   `json:"from,omitempty"`
	To          application.Status   `json:"to,omitempty"`
	Report      *document.Report     `json:"document_report,omitempty"`
	Verdict     *eligibility.Verdict `json:"eligibility,omitempty"`
}

type documentView struct {
	ID              string          `json:"id"`
	ApplicationID   string          `json:"application_id"`
	Type            document.Type   `json:"type"`
	Status          document.Status `json:"status"`
	FileRef         string          `json:"file_ref"`
	OriginalName    string          `json:"original_name,omitempty"`
	VerifiedBy      string          `json:"verified_by,omitempty"`
	VerifiedAt      *time.Time      `json:"verified_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	UploadedAt      time.Time       `json:"uploaded_at"`
	Version         int             `json:"version"`
}

func toDocumentView(d *document.Document) *documentView {
	if d == nil {
		return nil
	}
	return &documentView{
		ID:              d.ID,
		ApplicationID:   d.ApplicationID,
		Type:            d.Type,
		Status:          d.Status,
		FileRef:         d.FileRef,
		OriginalName:    d.OriginalName,
		VerifiedBy:      d.VerifiedBy,
		VerifiedAt:      d.VerifiedAt,
		RejectionReason: d.RejectionReason,
		UploadedAt:      d.UploadedAt,
		Version:         d.Version,
	}
}

type interviewView struct {
	ID                string                      `json:"id"`
	ApplicationID     string                      `json:"application_id"`
	StudentID         string                      `json:"student_id"`
	InterviewerID     string                      `json:"interviewer_id"`
	ScheduledAt       time.Time                   `json:"scheduled_at"`
	Location          string                      `json:"location,omitempty"`
	Type              interview.Type              `json:"type"`
	Status            interview.Status            `json:"status"`
	Scores            []float64                   `json:"scores,omitempty"`
	TotalScore        *float64                    `json:"total_score,omitempty"`
	Recommendation    interview.Recommendation    `json:"recommendation,omitempty"`
	RescheduleHistory []interview.RescheduleEntry `json:"reschedule_history,omitempty"`
	Notes             string                      `json:"notes,omitempty"`
	Remarks           string                      `json:"remarks,omitempty"`
	CompletedAt       *time.Time                  `json:"completed_at,omitempty"`
	Version           int                         `json:"version"`
}

func toInterviewView(iv *interview.Interview) *interviewView {
	if iv == nil {
		return nil
	}
	return &interviewView{
		ID:                iv.ID,
		ApplicationID:     iv.ApplicationID,
		StudentID:         iv.StudentID,
		InterviewerID:     iv.InterviewerID,
		ScheduledAt:       iv.ScheduledAt,
		Location:          iv.Location,
		Type:              iv.Type,
		Status:            iv.Status,
		Scores:            iv.Scores,
		TotalScore:        iv.TotalScore,
		Recommendation:    iv.Recommendation,
		RescheduleHistory: iv.RescheduleHistory,
		Notes:             iv.Notes,
		Remarks:           iv.Remarks,
		CompletedAt:       iv.CompletedAt,
		Version:           iv.Version,
	}
}

type disbursementView struct {
	Status           payment.Status       `json:"status"`
	ProcessedBy      string               `json:"processed_by,omitempty"`
	ProcessedAt      *time.Time           `json:"processed_at,omitempty"`
	ReleasedAt       *time.Time           `json:"released_at,omitempty"`
	PaymentReference string               `json:"payment_reference,omitempty"`
	Remarks          string               `json:"remarks,omitempty"`
	Annotations      []payment.Annotation `json:"annotations,omitempty"`
	Version          int                  `json:"version"`
}

func toDisbursementView(d payment.Disbursement) disbursementView {
	return disbursementView{
		Status:           d.Status,
		ProcessedBy:      d.ProcessedBy,
		ProcessedAt:      d.ProcessedAt,
		ReleasedAt:       d.ReleasedAt,
		PaymentReference: d.PaymentReference,
		Remarks:          d.Remarks,
		Annotations:      d.Annotations,
		Version:          d.Version,
	}
}

type paymentView struct {
	ID           string          `json:"id"`
	AssignmentID string          `json:"assignment_id"`
	StudentID    string          `json:"student_id"`
	PeriodStart  string          `json:"period_start"`
	PeriodEnd    string          `json:"period_end"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	HourlyRate   decimal.Decimal `json:"hourly_rate"`
	GrossAmount  decimal.Decimal `json:"gross_amount"`
	Deductions   decimal.Decimal `json:"deductions"`
	NetAmount    decimal.Decimal `json:"net_amount"`
	disbursementView
}

func toPaymentView(p *payment.Payment) *paymentView {
	if p == nil {
		return nil
	}
	return &paymentView{
		ID:               p.ID,
		AssignmentID:     p.AssignmentID,
		StudentID:        p.StudentID,
		PeriodStart:      timeutil.FormatDateStr(p.PeriodStart),
		PeriodEnd:        timeutil.FormatDateStr(p.PeriodEnd),
		TotalHours:       p.TotalHours,
		HourlyRate:       p.HourlyRate,
		GrossAmount:      p.GrossAmount,
		Deductions:       p.Deductions,
		NetAmount:        p.NetAmount,
		disbursementView: toDisbursementView(p.Disbursement),
	}
}

type stipendView struct {
	ID              string           `json:"id"`
	ApplicationID   string           `json:"application_id"`
	StudentID       string           `json:"student_id"`
	ScholarshipType scholarship.Type `json:"scholarship_type"`
	Month           int              `json:"month"`
	Year            int              `json:"year"`
	Amount          decimal.Decimal  `json:"amount"`
	disbursementView
}

func toStipendView(s *payment.Stipend) *stipendView {
	if s == nil {
		return nil
	}
	return &stipendView{
		ID:               s.ID,
		ApplicationID:    s.ApplicationID,
		StudentID:        s.StudentID,
		ScholarshipType:  s.ScholarshipType,
		Month:            int(s.Month),
		Year:             s.Year,
		Amount:           s.Amount,
		disbursementView: toDisbursementView(s.Disbursement),
	}
}

type assignmentView struct {
	ID            string                   `json:"id"`
	ApplicationID string                   `json:"application_id"`
	StudentID     string                   `json:"student_id"`
	Office        string                   `json:"office"`
	SupervisorID  string                   `json:"supervisor_id,omitempty"`
	HourlyRate    decimal.Decimal          `json:"hourly_rate"`
	WorkSchedule  []payment.ScheduleSlot   `json:"work_schedule"`
	Status        payment.AssignmentStatus `json:"status"`
	StartDate     string                   `json:"start_date"`
	EndDate       string                   `json:"end_date,omitempty"`
}

func toAssignmentView(a *payment.Assignment) *assignmentView {
	if a == nil {
		return nil
	}
	v := &assignmentView{
		ID:            a.ID,
		ApplicationID: a.ApplicationID,
		StudentID:     a.StudentID,
		Office:        a.Office,
		SupervisorID:  a.SupervisorID,
		HourlyRate:    a.HourlyRate,
		WorkSchedule:  a.WorkSchedule,
		Status:        a.Status,
		StartDate:     timeutil.FormatDateStr(a.StartDate),
	}
	if a.EndDate != nil {
		v.EndDate = timeutil.FormatDateStr(*a.EndDate)
	}
	return v
}

type workLogView struct {
	ID              string            `json:"id"`
	AssignmentID    string            `json:"assignment_id"`
	StudentID       string            `json:"student_id"`
	WorkDate        string            `json:"work_date"`
	TimeIn          string            `json:"time_in"`
	TimeOut         string            `json:"time_out"`
	HoursWorked     decimal.Decimal   `json:"hours_worked"`
	HoursApproved   *decimal.Decimal  `json:"hours_approved,omitempty"`
	Tasks           string            `json:"tasks,omitempty"`
	Status          payment.LogStatus `json:"status"`
	ApprovedBy      string            `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time        `json:"approved_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	PaymentID       string            `json:"payment_id,omitempty"`
	Version         int               `json:"version"`
}

func toWorkLogView(l *payment.WorkHourLog) *workLogView {
	if l == nil {
		return nil
	}
	return &workLogView{
		ID:              l.ID,
		AssignmentID:    l.AssignmentID,
		StudentID:       l.StudentID,
		WorkDate:        timeutil.FormatDateStr(l.WorkDate),
		TimeIn:          l.TimeIn.String(),
		TimeOut:         l.TimeOut.String(),
		HoursWorked:     l.HoursWorked,
		HoursApproved:   l.HoursApproved,
		Tasks:           l.Tasks,
		Status:          l.Status,
		ApprovedBy:      l.ApprovedBy,
		ApprovedAt:      l.ApprovedAt,
		RejectionReason: l.RejectionReason,
		PaymentID:       l.PaymentID,
		Version:         l.Version,
	}
}

type scholarshipView struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Description       string               `json:"description,omitempty"`
	Type              scholarship.Type     `json:"type"`
	Amount            decimal.Decimal      `json:"amount"`
	SlotsAvailable    int                  `json:"slots_available"`
	Deadline          string               `json:"deadline"`
	RequiredDocuments []document.Type      `json:"required_documents"`
	Criteria          scholarship.Criteria `json:"criteria"`
	Status            scholarship.Status   `json:"status"`
}

func toScholarshipView(s *scholarship.Scholarship) *scholarshipView {
	if s == nil {
		return nil
	}
	docs := s.RequiredDocuments
	if docs == nil {
		docs = []document.Type{}
	}
	return &scholarshipView{
		ID:                s.ID,
		Name:              s.Name,
		Description:       s.Description,
		Type:              s.Type,
		Amount:            s.Amount,
		SlotsAvailable:    s.SlotsAvailable,
		Deadline:          timeutil.FormatDateStr(s.Deadline),
		RequiredDocuments: docs,
		Criteria:          s.Criteria,
		Status:            s.Status,
	}
}

// applicationDetailView is the full read model of one application.
type applicationDetailView struct {
	Application    *applicationView     `json:"application"`
	Scholarship    *scholarshipView     `json:"scholarship,omitempty"`
	Documents      []*documentView      `json:"documents"`
	Completeness   document.Report      `json:"completeness"`
	Interviews     []*interviewView     `json:"interviews"`
	Stipends       []*stipendView       `json:"stipends"`
	AllowedNext    []application.Status `json:"allowed_next"`
	RemainingSlots int                  `json:"remaining_slots"`
}

func toApplicationDetailView(v *query.ApplicationView) *applicationDetailView {
	out := &applicationDetailView{
		Application:    toApplicationView(v.Application),
		Scholarship:    toScholarshipView(v.Scholarship),
		Documents:      make([]*documentView, 0, len(v.Documents)),
		Completeness:   v.Completeness,
		Interviews:     make([]*interviewView, 0, len(v.Interviews)),
		Stipends:       make([]*stipendView, 0, len(v.Stipends)),
		AllowedNext:    v.AllowedNext,
		RemainingSlots: v.RemainingSlots,
	}
	for i := range v.Documents {
		out.Documents = append(out.Documents, toDocumentView(&v.Documents[i]))
	}
	for _, iv := range v.Interviews {
		out.Interviews = append(out.Interviews, toInterviewView(iv))
	}
	for _, s := range v.Stipends {
		out.Stipends = append(out.Stipends, toStipendView(s))
	}
	if out.AllowedNext == nil {
		out.AllowedNext = []application.Status{}
	}
	return out
}

type inboxItemView struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toInboxItemView(it postgres.InboxItem) inboxItemView {
	return inboxItemView{
		ID:        it.ID,
		Title:     it.Notification.Title,
		Message:   it.Notification.Message,
		Type:      string(it.Notification.Type),
		ReadAt:    it.ReadAt,
		CreatedAt: it.CreatedAt,
	}
}

func mapSlice[T, V any](items []T, fn func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}
