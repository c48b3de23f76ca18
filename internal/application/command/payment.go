package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// PaymentResult is returned by the assistantship payment commands.
type PaymentResult struct {
	Payment *payment.Payment

	// PaidLogs are the work logs a release marked as paid.
	PaidLogs []*payment.WorkHourLog
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE PAYMENT
// ══════════════════════════════════════════════════════════════════════════════

// GeneratePaymentCommand computes the pay of one assignment for a period.
type GeneratePaymentCommand struct {
	AssignmentID string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Deductions   decimal.Decimal

	// ActorID is empty for scheduled payroll runs.
	ActorID string
}

// Validate validates the command.
func (c GeneratePaymentCommand) Validate() error {
	if err := required("generate_payment", "assignment_id", c.AssignmentID); err != nil {
		return err
	}
	if c.PeriodStart.IsZero() || c.PeriodEnd.IsZero() {
		return shared.NewDomainError("command", "generate_payment", shared.ErrValidation, "period start and end are required")
	}
	return nil
}

// PaymentHandler handles every assistantship payment command.
type PaymentHandler struct {
	exec       *Executor
	calculator *payment.Calculator
	workflow   *application.Workflow
}

// NewPaymentHandler creates a new handler.
func NewPaymentHandler(exec *Executor, calculator *payment.Calculator, workflow *application.Workflow) *PaymentHandler {
	return &PaymentHandler{exec: exec, calculator: calculator, workflow: workflow}
}

// Generate creates a pending payment from the approved hours of the period.
func (h *PaymentHandler) Generate(ctx context.Context, cmd GeneratePaymentCommand) (*PaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *PaymentResult
	err := h.exec.Execute(ctx, "generate_payment", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		a, err := repos.Assignments.GetByID(ctx, cmd.AssignmentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_payment: load assignment: %w", err)
		}
		logs, err := repos.WorkLogs.ListByAssignment(ctx, a.ID, timeutil.StartOfDay(cmd.PeriodStart), timeutil.EndOfDay(cmd.PeriodEnd))
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_payment: list logs: %w", err)
		}
		existing, err := repos.Payments.ListByAssignment(ctx, a.ID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_payment: list payments: %w", err)
		}

		out, err := h.calculator.GeneratePayment(payment.GeneratePaymentParams{
			ID:          h.exec.NewID(),
			Assignment:  a,
			Logs:        logs,
			PeriodStart: cmd.PeriodStart,
			PeriodEnd:   cmd.PeriodEnd,
			Deductions:  cmd.Deductions,
			ActorID:     cmd.ActorID,
			Existing:    existing,
		})
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Payments.Create(ctx, out.Payment); err != nil {
			return shared.Changes{}, fmt.Errorf("generate_payment: save: %w", err)
		}
		result = &PaymentResult{Payment: out.Payment}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENT STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ChangePaymentStatusCommand moves a payment to any status except released.
type ChangePaymentStatusCommand struct {
	PaymentID string
	Target    payment.Status
	ActorID   string

	// Reason is required for on_hold, failed and cancelled.
	Reason string
}

// Validate validates the command.
func (c ChangePaymentStatusCommand) Validate() error {
	return required("change_payment_status", "payment_id", c.PaymentID, "target", string(c.Target), "actor_id", c.ActorID)
}

// ProcessPayment builds the command that starts processing a payment.
func ProcessPayment(paymentID, actorID string) ChangePaymentStatusCommand {
	return ChangePaymentStatusCommand{PaymentID: paymentID, Target: payment.StatusProcessing, ActorID: actorID}
}

// HoldPayment builds the command that puts a payment on hold.
func HoldPayment(paymentID, actorID, reason string) ChangePaymentStatusCommand {
	return ChangePaymentStatusCommand{PaymentID: paymentID, Target: payment.StatusOnHold, ActorID: actorID, Reason: reason}
}

// CancelPayment builds the command that cancels a payment.
func CancelPayment(paymentID, actorID, reason string) ChangePaymentStatusCommand {
	return ChangePaymentStatusCommand{PaymentID: paymentID, Target: payment.StatusCancelled, ActorID: actorID, Reason: reason}
}

// ChangeStatus applies the status change.
func (h *PaymentHandler) ChangeStatus(ctx context.Context, cmd ChangePaymentStatusCommand) (*PaymentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return h.mutate(ctx, "change_payment_status", cmd.PaymentID, func(p *payment.Payment) (*payment.PaymentOutcome, error) {
		return h.calculator.ChangePaymentStatus(p, cmd.Target, cmd.ActorID, cmd.Reason)
	})
}

// AnnotatePaymentCommand attaches a note to a payment.
type AnnotatePaymentCommand struct {
	PaymentID string
	Note      string
	ActorID   string
}

// Annotate appends the note.
func (h *PaymentHandler) Annotate(ctx context.Context, cmd AnnotatePaymentCommand) (*PaymentResult, error) {
	if err := required("annotate_payment", "payment_id", cmd.PaymentID, "actor_id", cmd.ActorID); err != nil {
		return nil, err
	}
	return h.mutate(ctx, "annotate_payment", cmd.PaymentID, func(p *payment.Payment) (*payment.PaymentOutcome, error) {
		return h.calculator.AnnotatePayment(p, cmd.ActorID, cmd.Note)
	})
}

func (h *PaymentHandler) mutate(ctx context.Context, name, id string, op func(*payment.Payment) (*payment.PaymentOutcome, error)) (*PaymentResult, error) {
	var result *PaymentResult
	err := h.exec.Execute(ctx, name, func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		p, err := repos.Payments.GetByID(ctx, id)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load: %w", name, err)
		}
		out, err := op(p)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Payments.Update(ctx, out.Payment, p.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save: %w", name, err)
		}
		result = &PaymentResult{Payment: out.Payment}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecalculatePaymentCommand recomputes an unreleased payment.
type RecalculatePaymentCommand struct {
	PaymentID  string
	Deductions decimal.Decimal
	ActorID    string
}

// Recalculate recomputes hours and amounts from the current approved logs.
func (h *PaymentHandler) Recalculate(ctx context.Context, cmd RecalculatePaymentCommand) (*PaymentResult, error) {
	if err := required("recalculate_payment", "payment_id", cmd.PaymentID, "actor_id", cmd.ActorID); err != nil {
		return nil, err
	}

	var result *PaymentResult
	err := h.exec.Execute(ctx, "recalculate_payment", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		p, err := repos.Payments.GetByID(ctx, cmd.PaymentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("recalculate_payment: load: %w", err)
		}
		a, err := repos.Assignments.GetByID(ctx, p.AssignmentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("recalculate_payment: load assignment: %w", err)
		}
		logs, err := repos.WorkLogs.ListByAssignment(ctx, a.ID, p.PeriodStart, timeutil.EndOfDay(p.PeriodEnd))
		if err != nil {
			return shared.Changes{}, fmt.Errorf("recalculate_payment: list logs: %w", err)
		}

		out, err := h.calculator.RecalculatePayment(p, a, logs, cmd.Deductions, cmd.ActorID)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Payments.Update(ctx, out.Payment, p.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("recalculate_payment: save: %w", err)
		}
		result = &PaymentResult{Payment: out.Payment}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RELEASE PAYMENT
// Checks the fund, disburses, marks the period's logs paid and adds the net
// amount to the scholar's received total, all in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// ReleasePaymentCommand releases a processing payment.
type ReleasePaymentCommand struct {
	PaymentID string

	// Reference is the optional disbursement reference (check or transfer no.).
	Reference string
	ActorID   string
}

// Release releases the payment.
func (h *PaymentHandler) Release(ctx context.Context, cmd ReleasePaymentCommand) (*PaymentResult, error) {
	if err := required("release_payment", "payment_id", cmd.PaymentID, "actor_id", cmd.ActorID); err != nil {
		return nil, err
	}

	var result *PaymentResult
	err := h.exec.Execute(ctx, "release_payment", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		p, err := repos.Payments.GetByID(ctx, cmd.PaymentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: load: %w", err)
		}
		a, err := repos.Assignments.GetByID(ctx, p.AssignmentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: load assignment: %w", err)
		}
		app, err := repos.Applications.GetByID(ctx, a.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: load application: %w", err)
		}
		sch, err := repos.Scholarships.GetByID(ctx, app.ScholarshipID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: load scholarship: %w", err)
		}
		fund, err := repos.Funds.ForScholarship(ctx, sch.Type)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: resolve fund: %w", err)
		}
		logs, err := repos.WorkLogs.ListByAssignment(ctx, a.ID, p.PeriodStart, timeutil.EndOfDay(p.PeriodEnd))
		if err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: list logs: %w", err)
		}

		out, err := h.calculator.ReleasePayment(ctx, p, logs, cmd.Reference, cmd.ActorID, fund)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := fund.DisburseAmount(ctx, p.NetAmount, disbursementRef(out.Payment.PaymentReference, p.ID)); err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: disburse: %w", err)
		}
		if err := repos.Payments.Update(ctx, out.Payment, p.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: save: %w", err)
		}
		for _, l := range out.PaidLogs {
			if err := repos.WorkLogs.Update(ctx, l, l.Version); err != nil {
				return shared.Changes{}, fmt.Errorf("release_payment: mark log %s paid: %w", l.ID, err)
			}
		}

		appOut, err := h.workflow.RecordDisbursement(app, p.NetAmount, payment.StatusReleased)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Applications.Update(ctx, appOut.Application, app.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("release_payment: save application: %w", err)
		}

		result = &PaymentResult{Payment: out.Payment, PaidLogs: out.PaidLogs}
		changes := out.Changes
		changes.Merge(appOut.Changes)
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func disbursementRef(reference, id string) string {
	if reference != "" {
		return reference
	}
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYROLL
// Generates the payments of every active assignment for one period.
// ══════════════════════════════════════════════════════════════════════════════

// GeneratePayrollCommand runs payroll for a period. A zero period means the
// previous semi-monthly period.
type GeneratePayrollCommand struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	ActorID     string
}

// PayrollResult summarises a payroll run.
type PayrollResult struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Generated   []*payment.Payment

	// Skipped maps assignment ids to the reason no payment was made.
	Skipped map[string]string
}

// GeneratePayroll generates one payment per active assignment. Each
// assignment commits on its own; assignments without approved hours or
// already paid for the period are skipped.
func (h *PaymentHandler) GeneratePayroll(ctx context.Context, cmd GeneratePayrollCommand) (*PayrollResult, error) {
	if cmd.PeriodStart.IsZero() || cmd.PeriodEnd.IsZero() {
		cmd.PeriodStart, cmd.PeriodEnd = timeutil.PreviousSemiMonthlyPeriod(h.workflow.Now())
	}

	var assignments []*payment.Assignment
	err := h.exec.Execute(ctx, "list_active_assignments", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		list, err := repos.Assignments.ListActive(ctx)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_payroll: list assignments: %w", err)
		}
		assignments = list
		return shared.Changes{}, nil
	})
	if err != nil {
		return nil, err
	}

	result := &PayrollResult{PeriodStart: cmd.PeriodStart, PeriodEnd: cmd.PeriodEnd, Skipped: make(map[string]string)}
	log := logger.FromContextOr(ctx, h.exec.log)
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := h.Generate(ctx, GeneratePaymentCommand{
			AssignmentID: a.ID,
			PeriodStart:  cmd.PeriodStart,
			PeriodEnd:    cmd.PeriodEnd,
			ActorID:      cmd.ActorID,
		})
		switch {
		case err == nil:
			result.Generated = append(result.Generated, res.Payment)
		case errors.Is(err, shared.ErrNoApprovedHours), errors.Is(err, shared.ErrAlreadyExists):
			result.Skipped[a.ID] = shared.KindName(err)
		default:
			log.Error("payroll: payment generation failed", logger.String("assignment_id", a.ID), logger.Err(err))
			result.Skipped[a.ID] = err.Error()
		}
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STIPENDS
// ══════════════════════════════════════════════════════════════════════════════

// StipendResult is returned by the stipend commands.
type StipendResult struct {
	Stipend     *payment.Stipend
	Application *application.Application
}

// GenerateStipendCommand creates the stipend of an approved scholar for one
// month. A zero Month means the current month.
type GenerateStipendCommand struct {
	ApplicationID string
	Month         time.Month
	Year          int
	ActorID       string
}

// StipendHandler handles every stipend command.
type StipendHandler struct {
	exec       *Executor
	calculator *payment.Calculator
	workflow   *application.Workflow
}

// NewStipendHandler creates a new handler.
func NewStipendHandler(exec *Executor, calculator *payment.Calculator, workflow *application.Workflow) *StipendHandler {
	return &StipendHandler{exec: exec, calculator: calculator, workflow: workflow}
}

// Generate creates a pending stipend.
func (h *StipendHandler) Generate(ctx context.Context, cmd GenerateStipendCommand) (*StipendResult, error) {
	if err := required("generate_stipend", "application_id", cmd.ApplicationID); err != nil {
		return nil, err
	}
	if cmd.Month == 0 {
		now := timeutil.ToManila(h.workflow.Now())
		cmd.Month, cmd.Year = now.Month(), now.Year()
	}

	var result *StipendResult
	err := h.exec.Execute(ctx, "generate_stipend", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		app, err := repos.Applications.GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_stipend: load application: %w", err)
		}
		if app.Status != application.StatusApproved {
			return shared.Changes{}, shared.Errorf("command", "generate_stipend", shared.ErrInvalidState, "application is %s, not approved", app.Status)
		}
		sch, err := repos.Scholarships.GetByID(ctx, app.ScholarshipID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_stipend: load scholarship: %w", err)
		}
		existing, err := repos.Stipends.ListByApplication(ctx, app.ID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("generate_stipend: list stipends: %w", err)
		}

		out, err := h.calculator.GenerateStipend(payment.GenerateStipendParams{
			ID:              h.exec.NewID(),
			ApplicationID:   app.ID,
			StudentID:       app.StudentID,
			ScholarshipType: sch.Type,
			Month:           cmd.Month,
			Year:            cmd.Year,
			ActorID:         cmd.ActorID,
			Existing:        existing,
		})
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Stipends.Create(ctx, out.Stipend); err != nil {
			return shared.Changes{}, fmt.Errorf("generate_stipend: save: %w", err)
		}
		result = &StipendResult{Stipend: out.Stipend}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangeStipendStatusCommand moves a stipend to any status except released.
type ChangeStipendStatusCommand struct {
	StipendID string
	Target    payment.Status
	ActorID   string
	Reason    string
}

// HoldStipend builds the command that puts a stipend on hold.
func HoldStipend(stipendID, actorID, reason string) ChangeStipendStatusCommand {
	return ChangeStipendStatusCommand{StipendID: stipendID, Target: payment.StatusOnHold, ActorID: actorID, Reason: reason}
}

// CancelStipend builds the command that cancels a stipend.
func CancelStipend(stipendID, actorID, reason string) ChangeStipendStatusCommand {
	return ChangeStipendStatusCommand{StipendID: stipendID, Target: payment.StatusCancelled, ActorID: actorID, Reason: reason}
}

// ChangeStatus applies the change and mirrors the status on the application.
func (h *StipendHandler) ChangeStatus(ctx context.Context, cmd ChangeStipendStatusCommand) (*StipendResult, error) {
	if err := required("change_stipend_status", "stipend_id", cmd.StipendID, "target", string(cmd.Target), "actor_id", cmd.ActorID); err != nil {
		return nil, err
	}
	return h.mutate(ctx, "change_stipend_status", cmd.StipendID, func(ctx context.Context, _ Repositories, s *payment.Stipend) (*payment.StipendOutcome, error) {
		return h.calculator.ChangeStipendStatus(s, cmd.Target, cmd.ActorID, cmd.Reason)
	})
}

// ReleaseStipendCommand releases a processing stipend.
type ReleaseStipendCommand struct {
	StipendID string
	Reference string
	ActorID   string
}

// Release checks the fund, disburses and adds the amount to the scholar's
// received total.
func (h *StipendHandler) Release(ctx context.Context, cmd ReleaseStipendCommand) (*StipendResult, error) {
	if err := required("release_stipend", "stipend_id", cmd.StipendID, "actor_id", cmd.ActorID); err != nil {
		return nil, err
	}
	return h.mutate(ctx, "release_stipend", cmd.StipendID, func(ctx context.Context, repos Repositories, s *payment.Stipend) (*payment.StipendOutcome, error) {
		fund, err := repos.Funds.ForScholarship(ctx, s.ScholarshipType)
		if err != nil {
			return nil, fmt.Errorf("resolve fund: %w", err)
		}
		out, err := h.calculator.ReleaseStipend(ctx, s, cmd.Reference, cmd.ActorID, fund)
		if err != nil {
			return nil, err
		}
		if err := fund.DisburseAmount(ctx, s.Amount, disbursementRef(out.Stipend.PaymentReference, s.ID)); err != nil {
			return nil, fmt.Errorf("disburse: %w", err)
		}
		return out, nil
	})
}

// AnnotateStipendCommand attaches a note to a stipend.
type AnnotateStipendCommand struct {
	StipendID string
	Note      string
	ActorID   string
}

// Annotate appends the note.
func (h *StipendHandler) Annotate(ctx context.Context, cmd AnnotateStipendCommand) (*StipendResult, error) {
	if err := required("annotate_stipend", "stipend_id", cmd.StipendID, "actor_id", cmd.ActorID); err != nil {
		return nil, err
	}
	var result *StipendResult
	err := h.exec.Execute(ctx, "annotate_stipend", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		s, err := repos.Stipends.GetByID(ctx, cmd.StipendID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("annotate_stipend: load: %w", err)
		}
		out, err := h.calculator.AnnotateStipend(s, cmd.ActorID, cmd.Note)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Stipends.Update(ctx, out.Stipend, s.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("annotate_stipend: save: %w", err)
		}
		result = &StipendResult{Stipend: out.Stipend}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type stipendFunc func(ctx context.Context, repos Repositories, s *payment.Stipend) (*payment.StipendOutcome, error)

// mutate runs a status-changing stipend operation and keeps the
// application's stipend status and received total in step.
func (h *StipendHandler) mutate(ctx context.Context, name, id string, fn stipendFunc) (*StipendResult, error) {
	var result *StipendResult
	err := h.exec.Execute(ctx, name, func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		s, err := repos.Stipends.GetByID(ctx, id)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load: %w", name, err)
		}
		app, err := repos.Applications.GetByID(ctx, s.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load application: %w", name, err)
		}

		out, err := fn(ctx, repos, s)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Stipends.Update(ctx, out.Stipend, s.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save: %w", name, err)
		}

		appOut, err := h.workflow.RecordDisbursement(app, out.Stipend.Amount, out.Stipend.Status)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Applications.Update(ctx, appOut.Application, app.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save application: %w", name, err)
		}

		result = &StipendResult{Stipend: out.Stipend, Application: appOut.Application}
		changes := out.Changes
		changes.Merge(appOut.Changes)
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
