package command

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE ASSIGNMENT
// Places an approved student assistant in an office.
// ══════════════════════════════════════════════════════════════════════════════

// CreateAssignmentCommand contains the data of a new assignment.
type CreateAssignmentCommand struct {
	ApplicationID string
	Office        string
	SupervisorID  string
	HourlyRate    decimal.Decimal
	WorkSchedule  []payment.ScheduleSlot
	StartDate     time.Time
	EndDate       *time.Time
	ActorID       string
}

// Validate validates the command.
func (c CreateAssignmentCommand) Validate() error {
	return required("create_assignment", "application_id", c.ApplicationID, "office", c.Office, "actor_id", c.ActorID)
}

// AssignmentResult is returned by CreateAssignmentHandler.
type AssignmentResult struct {
	Assignment *payment.Assignment
}

// CreateAssignmentHandler handles CreateAssignmentCommand.
type CreateAssignmentHandler struct {
	exec  *Executor
	clock shared.Clock
}

// NewCreateAssignmentHandler creates a new handler.
func NewCreateAssignmentHandler(exec *Executor, clock shared.Clock) *CreateAssignmentHandler {
	return &CreateAssignmentHandler{exec: exec, clock: clockOrSystem(clock)}
}

// Handle creates the assignment. The application must be an approved
// assistantship.
func (h *CreateAssignmentHandler) Handle(ctx context.Context, cmd CreateAssignmentCommand) (*AssignmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *AssignmentResult
	err := h.exec.Execute(ctx, "create_assignment", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		app, err := repos.Applications.GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("create_assignment: load application: %w", err)
		}
		if app.Status != application.StatusApproved {
			return shared.Changes{}, shared.Errorf("command", "create_assignment", shared.ErrInvalidState, "application is %s, not approved", app.Status)
		}
		sch, err := repos.Scholarships.GetByID(ctx, app.ScholarshipID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("create_assignment: load scholarship: %w", err)
		}
		if sch.Type != scholarship.TypeStudentAssistantship {
			return shared.Changes{}, shared.Errorf("command", "create_assignment", shared.ErrValidation, "%s scholars do not get assignments", sch.Type)
		}

		a, err := payment.NewAssignment(payment.NewAssignmentParams{
			ID:            h.exec.NewID(),
			ApplicationID: app.ID,
			StudentID:     app.StudentID,
			Office:        cmd.Office,
			SupervisorID:  cmd.SupervisorID,
			HourlyRate:    cmd.HourlyRate,
			WorkSchedule:  cmd.WorkSchedule,
			StartDate:     cmd.StartDate,
			EndDate:       cmd.EndDate,
		}, h.clock.Now())
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Assignments.Create(ctx, a); err != nil {
			return shared.Changes{}, fmt.Errorf("create_assignment: save: %w", err)
		}

		var changes shared.Changes
		changes.Audit(cmd.ActorID, "assignment.created", "assignment", a.ID, nil, map[string]any{
			"office":      a.Office,
			"hourly_rate": a.HourlyRate.StringFixed(2),
		})
		changes.Notify(a.StudentID, "Assistantship assignment",
			"You are assigned to "+a.Office+" starting "+timeutil.FormatDateStr(a.StartDate)+".", shared.NotificationInfo)
		result = &AssignmentResult{Assignment: a}
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG WORK HOURS
// ══════════════════════════════════════════════════════════════════════════════

// LogWorkHoursCommand records one day of duty.
type LogWorkHoursCommand struct {
	AssignmentID string
	WorkDate     time.Time
	TimeIn       timeutil.ClockTime
	TimeOut      timeutil.ClockTime
	Tasks        string
}

// Validate validates the command.
func (c LogWorkHoursCommand) Validate() error {
	if err := required("log_work_hours", "assignment_id", c.AssignmentID); err != nil {
		return err
	}
	if c.WorkDate.IsZero() {
		return shared.NewDomainError("command", "log_work_hours", shared.ErrValidation, "work date is required")
	}
	return nil
}

// WorkLogResult is returned by the work-hour commands.
type WorkLogResult struct {
	Log *payment.WorkHourLog

	// Recalculated are the unreleased payments whose hours the approval
	// changed.
	Recalculated []*payment.Payment
}

// LogWorkHoursHandler handles LogWorkHoursCommand.
type LogWorkHoursHandler struct {
	exec  *Executor
	clock shared.Clock
}

// NewLogWorkHoursHandler creates a new handler.
func NewLogWorkHoursHandler(exec *Executor, clock shared.Clock) *LogWorkHoursHandler {
	return &LogWorkHoursHandler{exec: exec, clock: clockOrSystem(clock)}
}

// Handle records the hours. A second log for the same day fails with
// shared.ErrAlreadyExists.
func (h *LogWorkHoursHandler) Handle(ctx context.Context, cmd LogWorkHoursCommand) (*WorkLogResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *WorkLogResult
	err := h.exec.Execute(ctx, "log_work_hours", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		a, err := repos.Assignments.GetByID(ctx, cmd.AssignmentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("log_work_hours: load assignment: %w", err)
		}
		existing, err := repos.WorkLogs.ListByAssignment(ctx, a.ID, timeutil.StartOfDay(cmd.WorkDate), timeutil.EndOfDay(cmd.WorkDate))
		if err != nil {
			return shared.Changes{}, fmt.Errorf("log_work_hours: list logs: %w", err)
		}

		out, err := payment.LogWorkHours(a, payment.NewWorkLogParams{
			ID:       h.exec.NewID(),
			WorkDate: cmd.WorkDate,
			TimeIn:   cmd.TimeIn,
			TimeOut:  cmd.TimeOut,
			Tasks:    cmd.Tasks,
			Existing: existing,
		}, h.clock.Now())
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.WorkLogs.Create(ctx, out.Log); err != nil {
			return shared.Changes{}, fmt.Errorf("log_work_hours: save: %w", err)
		}
		result = &WorkLogResult{Log: out.Log}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW WORK HOURS
// ══════════════════════════════════════════════════════════════════════════════

// ReviewWorkHoursCommand approves a log, or rejects it when Reject is set.
type ReviewWorkHoursCommand struct {
	LogID   string
	ActorID string
	Reject  bool

	// Hours overrides the approved hours. Nil approves the hours worked.
	Hours *decimal.Decimal

	// Reason is required for rejections.
	Reason string
}

// Validate validates the command.
func (c ReviewWorkHoursCommand) Validate() error {
	return required("review_work_hours", "log_id", c.LogID, "actor_id", c.ActorID)
}

// ReviewWorkHoursHandler handles ReviewWorkHoursCommand. An approval dated
// inside the period of an unreleased payment recalculates that payment in
// the same transaction.
type ReviewWorkHoursHandler struct {
	exec       *Executor
	calculator *payment.Calculator
	clock      shared.Clock
}

// NewReviewWorkHoursHandler creates a new handler.
func NewReviewWorkHoursHandler(exec *Executor, calculator *payment.Calculator, clock shared.Clock) *ReviewWorkHoursHandler {
	clock = clockOrSystem(clock)
	if calculator == nil {
		calculator = payment.NewCalculator(clock)
	}
	return &ReviewWorkHoursHandler{exec: exec, calculator: calculator, clock: clock}
}

// Handle applies the review.
func (h *ReviewWorkHoursHandler) Handle(ctx context.Context, cmd ReviewWorkHoursCommand) (*WorkLogResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	name := "approve_work_hours"
	if cmd.Reject {
		name = "reject_work_hours"
	}

	var result *WorkLogResult
	err := h.exec.Execute(ctx, name, func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		l, err := repos.WorkLogs.GetByID(ctx, cmd.LogID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load: %w", name, err)
		}

		var out *payment.WorkLogOutcome
		if cmd.Reject {
			out, err = l.Reject(cmd.ActorID, cmd.Reason, h.clock.Now())
		} else {
			out, err = l.Approve(cmd.ActorID, cmd.Hours, h.clock.Now())
		}
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.WorkLogs.Update(ctx, out.Log, l.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save: %w", name, err)
		}
		result = &WorkLogResult{Log: out.Log}
		changes := out.Changes
		if cmd.Reject {
			return changes, nil
		}

		recalculated, payChanges, err := h.recalculateCovering(ctx, repos, out.Log, cmd.ActorID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: %w", name, err)
		}
		result.Recalculated = recalculated
		changes.Merge(payChanges)
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// recalculateCovering refreshes the hours and amounts of every unreleased
// payment of the log's assignment whose period contains the log's day.
func (h *ReviewWorkHoursHandler) recalculateCovering(ctx context.Context, repos Repositories, l *payment.WorkHourLog, actorID string) ([]*payment.Payment, shared.Changes, error) {
	var changes shared.Changes
	payments, err := repos.Payments.ListByAssignment(ctx, l.AssignmentID)
	if err != nil {
		return nil, changes, fmt.Errorf("list payments: %w", err)
	}

	var out []*payment.Payment
	for _, p := range payments {
		if !p.Status.IsPreRelease() || !p.Overlaps(l.WorkDate, l.WorkDate) {
			continue
		}
		logs, err := repos.WorkLogs.ListByAssignment(ctx, p.AssignmentID, p.PeriodStart, timeutil.EndOfDay(p.PeriodEnd))
		if err != nil {
			return nil, changes, fmt.Errorf("list logs of payment %s: %w", p.ID, err)
		}
		if payment.PeriodHours(p.AssignmentID, logs, p.PeriodStart, p.PeriodEnd).Equal(p.TotalHours) {
			continue
		}
		// the rate stays the one the payment was generated with
		re, err := h.calculator.RecalculatePayment(p, nil, logs, p.Deductions, actorID)
		if err != nil {
			return nil, changes, err
		}
		if err := repos.Payments.Update(ctx, re.Payment, p.Version); err != nil {
			return nil, changes, fmt.Errorf("save payment %s: %w", p.ID, err)
		}
		out = append(out, re.Payment)
		changes.Merge(re.Changes)
	}
	return out, changes, nil
}
