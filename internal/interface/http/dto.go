package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DTOs
// Shape checks live in validate tags; business rules stay in the core.
// ══════════════════════════════════════════════════════════════════════════════

type createApplicationRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	ScholarshipID string `json:"scholarship_id" validate:"required"`
	AcademicYear  string `json:"academic_year" validate:"omitempty,len=9"`
	Semester      string `json:"semester" validate:"omitempty,oneof=first second summer"`
	Purpose       string `json:"purpose" validate:"max=5000"`
	Priority      string `json:"priority" validate:"omitempty,oneof=low normal high"`
}

type transitionRequest struct {
	Target  string `json:"target" validate:"required"`
	Comment string `json:"comment" validate:"max=2000"`
}

type updateDraftRequest struct {
	Purpose string `json:"purpose" validate:"max=5000"`
}

type registerDocumentRequest struct {
	Type         string `json:"type" validate:"required"`
	FileRef      string `json:"file_ref" validate:"required,max=512"`
	OriginalName string `json:"original_name" validate:"max=255"`
}

type reviewDocumentRequest struct {
	Decision string `json:"decision" validate:"required,oneof=verify reject"`
	Reason   string `json:"reason" validate:"required_if=Decision reject,max=2000"`
}

type scheduleInterviewRequest struct {
	InterviewerID string    `json:"interviewer_id" validate:"required"`
	ScheduledAt   time.Time `json:"scheduled_at" validate:"required"`
	Location      string    `json:"location" validate:"max=255"`
	Type          string    `json:"type" validate:"omitempty,oneof=in_person online phone"`
}

type rescheduleInterviewRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
	Reason      string    `json:"reason" validate:"max=2000"`
}

type completeInterviewRequest struct {
	Scores         []float64 `json:"scores" validate:"dive,gte=0,lte=100"`
	Recommendation string    `json:"recommendation" validate:"omitempty,oneof=approved rejected pending"`
	Notes          string    `json:"notes" validate:"max=5000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type scheduleSlotRequest struct {
	Weekday time.Weekday `json:"weekday" validate:"gte=0,lte=6"`
	Start   string       `json:"start" validate:"required"`
	End     string       `json:"end" validate:"required"`
}

type createAssignmentRequest struct {
	ApplicationID string                `json:"application_id" validate:"required"`
	Office        string                `json:"office" validate:"required,max=255"`
	SupervisorID  string                `json:"supervisor_id"`
	HourlyRate    decimal.Decimal       `json:"hourly_rate"`
	WorkSchedule  []scheduleSlotRequest `json:"work_schedule" validate:"dive"`
	StartDate     string                `json:"start_date" validate:"required"`
	EndDate       string                `json:"end_date"`
}

func (r createAssignmentRequest) slots() ([]payment.ScheduleSlot, error) {
	out := make([]payment.ScheduleSlot, 0, len(r.WorkSchedule))
	for _, s := range r.WorkSchedule {
		start, err := timeutil.ParseClock(s.Start)
		if err != nil {
			return nil, badRequest("work_schedule.start", err)
		}
		end, err := timeutil.ParseClock(s.End)
		if err != nil {
			return nil, badRequest("work_schedule.end", err)
		}
		out = append(out, payment.ScheduleSlot{Weekday: s.Weekday, Start: start, End: end})
	}
	return out, nil
}

type logWorkHoursRequest struct {
	WorkDate string `json:"work_date" validate:"required"`
	TimeIn   string `json:"time_in" validate:"required"`
	TimeOut  string `json:"time_out" validate:"required"`
	Tasks    string `json:"tasks" validate:"max=2000"`
}

type reviewWorkHoursRequest struct {
	Decision string           `json:"decision" validate:"required,oneof=approve reject"`
	Hours    *decimal.Decimal `json:"hours"`
	Reason   string           `json:"reason" validate:"required_if=Decision reject,max=2000"`
}

type generatePaymentRequest struct {
	AssignmentID string          `json:"assignment_id" validate:"required"`
	PeriodStart  string          `json:"period_start" validate:"required"`
	PeriodEnd    string          `json:"period_end" validate:"required"`
	Deductions   decimal.Decimal `json:"deductions"`
}

type generatePayrollRequest struct {
	PeriodStart string `json:"period_start" validate:"required_with=PeriodEnd"`
	PeriodEnd   string `json:"period_end" validate:"required_with=PeriodStart"`
}

type changeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing failed on_hold cancelled"`
	Reason string `json:"reason" validate:"max=2000"`
}

type releaseRequest struct {
	Reference string `json:"reference" validate:"max=128"`
}

type annotateRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

type recalculateRequest struct {
	Deductions decimal.Decimal `json:"deductions"`
}

type generateStipendRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
	Month         int    `json:"month" validate:"omitempty,gte=1,lte=12"`
	Year          int    `json:"year" validate:"omitempty,gte=2000,lte=2100"`
}

type createScholarshipRequest struct {
	Name              string               `json:"name" validate:"required,max=255"`
	Description       string               `json:"description" validate:"max=5000"`
	Type              string               `json:"type" validate:"required"`
	Amount            *decimal.Decimal     `json:"amount"`
	SlotsAvailable    int                  `json:"slots_available" validate:"gte=0"`
	Deadline          string               `json:"deadline" validate:"required"`
	RequiredDocuments []string             `json:"required_documents"`
	Criteria          scholarship.Criteria `json:"criteria"`
	Status            string               `json:"status" validate:"omitempty,oneof=open closed upcoming"`
}

type updateScholarshipRequest struct {
	Status         string `json:"status" validate:"omitempty,oneof=open closed upcoming"`
	SlotsAvailable *int   `json:"slots_available" validate:"omitempty,gte=0"`
	Deadline       string `json:"deadline"`
}

type depositRequest struct {
	ScholarshipType string          `json:"scholarship_type" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Reference       string          `json:"reference" validate:"required,max=128"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DECODING
// ══════════════════════════════════════════════════════════════════════════════

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and validates it. Unknown fields are
// rejected.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewDomainError("http", "decode", shared.ErrValidation, "request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return shared.Errorf("http", "decode", shared.ErrValidation, "request body exceeds %d bytes", maxErr.Limit)
		}
		return shared.WrapError("http", "decode", shared.ErrValidation, "malformed JSON", err)
	}
	return validate.Struct(dst)
}

func badRequest(field string, err error) error {
	return shared.WrapError("http", "parse", shared.ErrValidation, fmt.Sprintf("invalid %s", field), err)
}

func parseDate(field, value string) (time.Time, error) {
	t, err := timeutil.ParseDate(value)
	if err != nil {
		return time.Time{}, badRequest(field, err)
	}
	return t, nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
