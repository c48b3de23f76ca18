package payment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// AssignmentStatus is the status of a student-assistant placement.
type AssignmentStatus string

const (
	AssignmentActive     AssignmentStatus = "active"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentTerminated AssignmentStatus = "terminated"
)

// ScheduleSlot is one weekly duty window.
type ScheduleSlot struct {
	Weekday time.Weekday       `json:"weekday"`
	Start   timeutil.ClockTime `json:"start"`
	End     timeutil.ClockTime `json:"end"`
}

// Assignment places a student assistant in an office at an hourly rate.
type Assignment struct {
	ID            string
	ApplicationID string
	StudentID     string
	Office        string
	SupervisorID  string
	HourlyRate    decimal.Decimal
	WorkSchedule  []ScheduleSlot
	Status        AssignmentStatus
	StartDate     time.Time
	EndDate       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAssignmentParams contains the fields of a new assignment.
type NewAssignmentParams struct {
	ID            string
	ApplicationID string
	StudentID     string
	Office        string
	SupervisorID  string
	HourlyRate    decimal.Decimal
	WorkSchedule  []ScheduleSlot
	StartDate     time.Time
	EndDate       *time.Time
}

// NewAssignment validates p and returns an active assignment.
func NewAssignment(p NewAssignmentParams, now time.Time) (*Assignment, error) {
	const op = "NewAssignment"

	switch {
	case p.ID == "" || p.StudentID == "" || p.ApplicationID == "":
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "assignment, application and student ids are required")
	case strings.TrimSpace(p.Office) == "":
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "office is required")
	case !p.HourlyRate.IsPositive():
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "hourly rate must be positive")
	case p.StartDate.IsZero():
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "start date is required")
	case p.EndDate != nil && p.EndDate.Before(p.StartDate):
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "end date is before start date")
	}
	for _, s := range p.WorkSchedule {
		if !s.Start.IsValid() || !s.End.IsValid() || s.Start == s.End {
			return nil, shared.Errorf(domainName, op, shared.ErrValidation, "invalid schedule slot %s-%s", s.Start, s.End)
		}
	}

	return &Assignment{
		ID:            p.ID,
		ApplicationID: p.ApplicationID,
		StudentID:     p.StudentID,
		Office:        strings.TrimSpace(p.Office),
		SupervisorID:  p.SupervisorID,
		HourlyRate:    shared.RoundMoney(p.HourlyRate),
		WorkSchedule:  append([]ScheduleSlot(nil), p.WorkSchedule...),
		Status:        AssignmentActive,
		StartDate:     timeutil.StartOfDay(p.StartDate),
		EndDate:       p.EndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// CoversDay reports whether day falls inside the assignment dates.
func (a *Assignment) CoversDay(day time.Time) bool {
	if timeutil.StartOfDay(day).Before(timeutil.StartOfDay(a.StartDate)) {
		return false
	}
	return a.EndDate == nil || !timeutil.StartOfDay(day).After(timeutil.StartOfDay(*a.EndDate))
}

// IsActive reports whether hours may be logged against the assignment.
func (a *Assignment) IsActive() bool {
	return a.Status == AssignmentActive
}
