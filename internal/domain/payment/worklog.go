package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// LogStatus is the review status of a work-hour log.
type LogStatus string

const (
	LogPending  LogStatus = "pending"
	LogApproved LogStatus = "approved"
	LogRejected LogStatus = "rejected"
	LogPaid     LogStatus = "paid"
)

// WorkHourLog is one day of duty by a student assistant.
type WorkHourLog struct {
	ID              string
	AssignmentID    string
	StudentID       string
	WorkDate        time.Time
	TimeIn          timeutil.ClockTime
	TimeOut         timeutil.ClockTime
	HoursWorked     decimal.Decimal
	HoursApproved   *decimal.Decimal
	Tasks           string
	Status          LogStatus
	ApprovedBy      string
	ApprovedAt      *time.Time
	RejectionReason string
	PaymentID       string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy of l.
func (l *WorkHourLog) Clone() *WorkHourLog {
	c := *l
	if l.HoursApproved != nil {
		h := *l.HoursApproved
		c.HoursApproved = &h
	}
	if l.ApprovedAt != nil {
		t := *l.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}

// PayableHours returns the approved hours, falling back to hours worked.
func (l *WorkHourLog) PayableHours() decimal.Decimal {
	if l.HoursApproved != nil {
		return *l.HoursApproved
	}
	return l.HoursWorked
}

// CalculateHoursWorked returns the hours between in and out rounded to two
// places. An out earlier than in crosses midnight.
func CalculateHoursWorked(in, out timeutil.ClockTime) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(timeutil.SpanMinutes(in, out)))
	return shared.RoundHours(minutes.Div(decimal.NewFromInt(60)))
}

// WorkLogOutcome is the result of a work-hour log operation.
type WorkLogOutcome struct {
	Log *WorkHourLog
	shared.Changes
}

// NewWorkLogParams describes a day of duty being logged.
type NewWorkLogParams struct {
	ID       string
	WorkDate time.Time
	TimeIn   timeutil.ClockTime
	TimeOut  timeutil.ClockTime
	Tasks    string
	// Existing logs of the assignment; a second log for the same day is refused.
	Existing []*WorkHourLog
}

// LogWorkHours records a day of duty against an active assignment.
func LogWorkHours(a *Assignment, p NewWorkLogParams, now time.Time) (*WorkLogOutcome, error) {
	const op = "LogWorkHours"

	if a == nil {
		return nil, shared.NewDomainError(domainName, op, shared.ErrNotFound, "assignment not found")
	}
	if !a.IsActive() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "assignment is %s", a.Status)
	}
	if !p.TimeIn.IsValid() || !p.TimeOut.IsValid() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "time in and time out must be valid clock times")
	}
	if p.TimeIn == p.TimeOut {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "time out must differ from time in")
	}
	if p.WorkDate.IsZero() || timeutil.StartOfDay(p.WorkDate).After(timeutil.StartOfDay(now)) {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "work date cannot be in the future")
	}
	if !a.CoversDay(p.WorkDate) {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "work date is outside the assignment period")
	}
	for _, e := range p.Existing {
		if e.AssignmentID == a.ID && timeutil.IsSameDay(e.WorkDate, p.WorkDate) {
			return nil, shared.Errorf(domainName, op, shared.ErrAlreadyExists, "hours already logged for %s", timeutil.FormatDateStr(p.WorkDate))
		}
	}

	l := &WorkHourLog{
		ID:           p.ID,
		AssignmentID: a.ID,
		StudentID:    a.StudentID,
		WorkDate:     timeutil.StartOfDay(p.WorkDate),
		TimeIn:       p.TimeIn,
		TimeOut:      p.TimeOut,
		HoursWorked:  CalculateHoursWorked(p.TimeIn, p.TimeOut),
		Tasks:        strings.TrimSpace(p.Tasks),
		Status:       LogPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	out := &WorkLogOutcome{Log: l}
	out.Audit(a.StudentID, "worklog.logged", "work_hour_log", l.ID, nil, map[string]any{
		"work_date":    timeutil.FormatDateStr(l.WorkDate),
		"hours_worked": l.HoursWorked.String(),
	})
	if a.SupervisorID != "" {
		out.Notify(a.SupervisorID, "Work hours submitted",
			"New work hours for "+timeutil.FormatDateStr(l.WorkDate)+" are awaiting your approval.", shared.NotificationInfo)
	}
	out.Emit(l.event(shared.EventWorkHoursLogged, a.StudentID, l.HoursWorked, now))
	return out, nil
}

// Approve accepts the log. A nil hours approves the hours worked.
func (l *WorkHourLog) Approve(actorID string, hours *decimal.Decimal, now time.Time) (*WorkLogOutcome, error) {
	const op = "ApproveWorkHours"

	if l.Status != LogPending {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "work log is %s", l.Status)
	}
	approved := l.HoursWorked
	if hours != nil {
		if hours.IsNegative() || hours.GreaterThan(l.HoursWorked) {
			return nil, shared.Errorf(domainName, op, shared.ErrValidation, "approved hours must be between 0 and %s", l.HoursWorked)
		}
		approved = shared.RoundHours(*hours)
	}

	c := l.Clone()
	c.Status = LogApproved
	c.HoursApproved = &approved
	c.ApprovedBy = actorID
	c.ApprovedAt = &now
	c.UpdatedAt = now

	out := &WorkLogOutcome{Log: c}
	out.Audit(actorID, "worklog.approved", "work_hour_log", c.ID,
		map[string]any{"status": string(l.Status)},
		map[string]any{"status": string(c.Status), "hours_approved": approved.String()})
	out.Notify(c.StudentID, "Work hours approved",
		approved.String()+" hours on "+timeutil.FormatDateStr(c.WorkDate)+" were approved.", shared.NotificationSuccess)
	out.Emit(c.event(shared.EventWorkHoursApproved, actorID, approved, now))
	return out, nil
}

// Reject refuses the log with a mandatory reason.
func (l *WorkHourLog) Reject(actorID, reason string, now time.Time) (*WorkLogOutcome, error) {
	const op = "RejectWorkHours"

	if err := shared.RequireReason(domainName, op, reason); err != nil {
		return nil, err
	}
	if l.Status != LogPending {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "work log is %s", l.Status)
	}

	c := l.Clone()
	c.Status = LogRejected
	c.RejectionReason = strings.TrimSpace(reason)
	c.ApprovedBy = actorID
	c.ApprovedAt = &now
	c.UpdatedAt = now

	out := &WorkLogOutcome{Log: c}
	out.Audit(actorID, "worklog.rejected", "work_hour_log", c.ID,
		map[string]any{"status": string(l.Status)},
		map[string]any{"status": string(c.Status), "reason": c.RejectionReason})
	out.Notify(c.StudentID, "Work hours rejected",
		"Hours on "+timeutil.FormatDateStr(c.WorkDate)+" were rejected: "+c.RejectionReason, shared.NotificationWarning)
	out.Emit(c.event(shared.EventWorkHoursRejected, actorID, decimal.Zero, now))
	return out, nil
}

func (l *WorkHourLog) markPaid(paymentID string, now time.Time) *WorkHourLog {
	c := l.Clone()
	c.Status = LogPaid
	c.PaymentID = paymentID
	c.UpdatedAt = now
	return c
}

func (l *WorkHourLog) event(t shared.EventType, actorID string, hours decimal.Decimal, now time.Time) shared.WorkHoursEvent {
	return shared.WorkHoursEvent{
		BaseEvent:    shared.NewBaseEvent(t, l.ID, now),
		AssignmentID: l.AssignmentID,
		StudentID:    l.StudentID,
		WorkDate:     timeutil.FormatDateStr(l.WorkDate),
		Hours:        hours.String(),
		ActorID:      actorID,
	}
}
