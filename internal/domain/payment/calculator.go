package payment

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOMES
// ══════════════════════════════════════════════════════════════════════════════

// PaymentOutcome is the result of an assistantship payment operation.
type PaymentOutcome struct {
	Payment *Payment
	// PaidLogs are the work logs moved to paid by a release.
	PaidLogs []*WorkHourLog
	shared.Changes
}

// StipendOutcome is the result of a stipend operation.
type StipendOutcome struct {
	Stipend *Stipend
	shared.Changes
}

// Calculator computes and drives disbursements. It never mutates its inputs.
type Calculator struct {
	clock shared.Clock
}

// NewCalculator creates a Calculator.
func NewCalculator(clock shared.Clock) *Calculator {
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &Calculator{clock: clock}
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSISTANTSHIP PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

// GeneratePaymentParams describes a payroll run for one assignment.
type GeneratePaymentParams struct {
	ID          string
	Assignment  *Assignment
	Logs        []*WorkHourLog
	PeriodStart time.Time
	PeriodEnd   time.Time
	Deductions  decimal.Decimal
	ActorID     string
	// Existing payments of the assignment; a live payment overlapping the
	// period is refused.
	Existing []*Payment
}

// PeriodHours sums the payable hours of approved logs of assignmentID
// dated within [start, end].
func PeriodHours(assignmentID string, logs []*WorkHourLog, start, end time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, l := range inPeriod(assignmentID, logs, start, end) {
		total = total.Add(l.PayableHours())
	}
	return shared.RoundHours(total)
}

func inPeriod(assignmentID string, logs []*WorkHourLog, start, end time.Time) []*WorkHourLog {
	var out []*WorkHourLog
	for _, l := range logs {
		if l.AssignmentID == assignmentID && l.Status == LogApproved && timeutil.WithinDays(l.WorkDate, start, end) {
			out = append(out, l)
		}
	}
	return out
}

func amounts(hours, rate, deductions decimal.Decimal) (gross, net decimal.Decimal, err error) {
	gross = shared.RoundMoney(hours.Mul(rate))
	deductions = shared.RoundMoney(deductions)
	if deductions.IsNegative() || deductions.GreaterThan(gross) {
		return decimal.Zero, decimal.Zero, shared.Errorf(domainName, "amounts", shared.ErrValidation, "deductions must be between 0 and %s", gross.StringFixed(2))
	}
	return gross, gross.Sub(deductions), nil
}

// GeneratePayment computes a pending payment from the approved hours of the
// period.
func (c *Calculator) GeneratePayment(p GeneratePaymentParams) (*PaymentOutcome, error) {
	const op = "GeneratePayment"
	now := c.clock.Now()

	a := p.Assignment
	if a == nil {
		return nil, shared.NewDomainError(domainName, op, shared.ErrNotFound, "assignment not found")
	}
	if p.PeriodEnd.Before(p.PeriodStart) {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "period end is before period start")
	}
	for _, e := range p.Existing {
		if e.AssignmentID == a.ID && e.Status != StatusCancelled && e.Overlaps(p.PeriodStart, p.PeriodEnd) {
			return nil, shared.Errorf(domainName, op, shared.ErrAlreadyExists, "payment %s already covers this period", e.ID)
		}
	}

	hours := PeriodHours(a.ID, p.Logs, p.PeriodStart, p.PeriodEnd)
	if !hours.IsPositive() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrNoApprovedHours, "no approved hours in the period")
	}
	gross, net, err := amounts(hours, a.HourlyRate, p.Deductions)
	if err != nil {
		return nil, err
	}

	pay := &Payment{
		ID:           p.ID,
		AssignmentID: a.ID,
		StudentID:    a.StudentID,
		PeriodStart:  timeutil.StartOfDay(p.PeriodStart),
		PeriodEnd:    timeutil.StartOfDay(p.PeriodEnd),
		TotalHours:   hours,
		HourlyRate:   a.HourlyRate,
		GrossAmount:  gross,
		Deductions:   shared.RoundMoney(p.Deductions),
		NetAmount:    net,
		Disbursement: newDisbursement(now),
	}

	out := &PaymentOutcome{Payment: pay}
	out.Audit(actorOrSystem(p.ActorID), "payment.generated", "payment", pay.ID, nil, map[string]any{
		"period_start": timeutil.FormatDateStr(pay.PeriodStart),
		"period_end":   timeutil.FormatDateStr(pay.PeriodEnd),
		"total_hours":  hours.String(),
		"net_amount":   net.StringFixed(2),
	})
	out.Notify(pay.StudentID, "Payment generated",
		"A payment of PHP "+net.StringFixed(2)+" for "+hours.String()+" hours was generated.", shared.NotificationInfo)
	out.Emit(disbursementEvent(shared.EventPaymentGenerated, pay.ID, pay.StudentID, "", StatusPending, net, p.ActorID, "", now))
	return out, nil
}

// ChangePaymentStatus moves p to processing, on_hold, failed, cancelled or
// back to pending. Hold, failure and cancellation need a reason. Release
// goes through ReleasePayment.
func (c *Calculator) ChangePaymentStatus(p *Payment, to Status, actorID, reason string) (*PaymentOutcome, error) {
	const op = "ChangePaymentStatus"
	next := p.Clone()
	changes, err := c.changeStatus(op, statusTarget{
		base:       &next.Disbursement,
		entityType: "payment",
		entityID:   p.ID,
		studentID:  p.StudentID,
		amount:     p.NetAmount,
		event:      shared.EventPaymentStatusChanged,
	}, to, actorID, reason)
	if err != nil {
		return nil, err
	}
	return &PaymentOutcome{Payment: next, Changes: changes}, nil
}

// ReleasePayment releases a processing payment after checking the fund
// balance, and marks the approved logs of its period as paid. The approved
// hours of the period must still equal the payment's hours; otherwise the
// payment is recalculated first. The reference is recorded when given. A nil
// fund skips the balance check.
func (c *Calculator) ReleasePayment(ctx context.Context, p *Payment, logs []*WorkHourLog, reference, actorID string, fund FundTracker) (*PaymentOutcome, error) {
	const op = "ReleasePayment"
	now := c.clock.Now()

	if p.Status.CanTransitionTo(StatusReleased) {
		if hours := PeriodHours(p.AssignmentID, logs, p.PeriodStart, p.PeriodEnd); !hours.Equal(p.TotalHours) {
			return nil, shared.Errorf(domainName, op, shared.ErrInvalidState,
				"approved hours changed from %s to %s since the payment was computed, recalculate before release", p.TotalHours, hours)
		}
	}

	next := p.Clone()
	changes, err := c.release(ctx, op, statusTarget{
		base:       &next.Disbursement,
		entityType: "payment",
		entityID:   p.ID,
		studentID:  p.StudentID,
		amount:     p.NetAmount,
		event:      shared.EventPaymentStatusChanged,
	}, reference, actorID, fund)
	if err != nil {
		return nil, err
	}

	out := &PaymentOutcome{Payment: next, Changes: changes}
	for _, l := range inPeriod(p.AssignmentID, logs, p.PeriodStart, p.PeriodEnd) {
		out.PaidLogs = append(out.PaidLogs, l.markPaid(p.ID, now))
	}
	return out, nil
}

// RecalculatePayment recomputes hours and amounts of a payment that has not
// been released or cancelled.
func (c *Calculator) RecalculatePayment(p *Payment, a *Assignment, logs []*WorkHourLog, deductions decimal.Decimal, actorID string) (*PaymentOutcome, error) {
	const op = "RecalculatePayment"
	now := c.clock.Now()

	if !p.Status.IsPreRelease() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "payment is %s", p.Status)
	}
	rate := p.HourlyRate
	if a != nil {
		rate = a.HourlyRate
	}
	hours := PeriodHours(p.AssignmentID, logs, p.PeriodStart, p.PeriodEnd)
	if !hours.IsPositive() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrNoApprovedHours, "no approved hours in the period")
	}
	gross, net, err := amounts(hours, rate, deductions)
	if err != nil {
		return nil, err
	}

	next := p.Clone()
	next.TotalHours = hours
	next.HourlyRate = rate
	next.GrossAmount = gross
	next.Deductions = shared.RoundMoney(deductions)
	next.NetAmount = net
	next.UpdatedAt = now

	out := &PaymentOutcome{Payment: next}
	out.Audit(actorID, "payment.recalculated", "payment", p.ID,
		map[string]any{"total_hours": p.TotalHours.String(), "net_amount": p.NetAmount.StringFixed(2)},
		map[string]any{"total_hours": hours.String(), "net_amount": net.StringFixed(2)})
	return out, nil
}

// AnnotatePayment appends a note. Annotations are the only change allowed
// on released payments.
func (c *Calculator) AnnotatePayment(p *Payment, actorID, note string) (*PaymentOutcome, error) {
	next := p.Clone()
	if err := next.annotate("AnnotatePayment", actorID, note, c.clock.Now()); err != nil {
		return nil, err
	}
	out := &PaymentOutcome{Payment: next}
	out.Audit(actorID, "payment.annotated", "payment", p.ID, nil, map[string]any{"note": strings.TrimSpace(note)})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STIPENDS
// ══════════════════════════════════════════════════════════════════════════════

// GenerateStipendParams describes one monthly stipend.
type GenerateStipendParams struct {
	ID              string
	ApplicationID   string
	StudentID       string
	ScholarshipType scholarship.Type
	Month           time.Month
	Year            int
	ActorID         string
	// Existing stipends of the application; one per month is allowed.
	Existing []*Stipend
}

// GenerateStipend creates a pending stipend at the fixed amount of the
// scholarship type.
func (c *Calculator) GenerateStipend(p GenerateStipendParams) (*StipendOutcome, error) {
	const op = "GenerateStipend"
	now := c.clock.Now()

	amount, ok := scholarship.StipendAmount(p.ScholarshipType)
	if !ok {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "%s scholars are paid by the hour, not by stipend", p.ScholarshipType)
	}
	if p.ApplicationID == "" || p.StudentID == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "application and student ids are required")
	}
	if p.Month < time.January || p.Month > time.December || p.Year < 2000 {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "invalid stipend month")
	}
	for _, e := range p.Existing {
		if e.ApplicationID == p.ApplicationID && e.Month == p.Month && e.Year == p.Year && e.Status != StatusCancelled {
			return nil, shared.Errorf(domainName, op, shared.ErrAlreadyExists, "stipend for %s already exists", e.Period())
		}
	}

	st := &Stipend{
		ID:              p.ID,
		ApplicationID:   p.ApplicationID,
		StudentID:       p.StudentID,
		ScholarshipType: p.ScholarshipType,
		Month:           p.Month,
		Year:            p.Year,
		Amount:          amount,
		Disbursement:    newDisbursement(now),
	}

	out := &StipendOutcome{Stipend: st}
	out.Audit(actorOrSystem(p.ActorID), "stipend.generated", "stipend", st.ID, nil, map[string]any{
		"period": st.Period(),
		"amount": amount.StringFixed(2),
	})
	out.Emit(disbursementEvent(shared.EventStipendGenerated, st.ID, st.StudentID, "", StatusPending, amount, p.ActorID, "", now))
	return out, nil
}

// ChangeStipendStatus is the stipend counterpart of ChangePaymentStatus.
func (c *Calculator) ChangeStipendStatus(s *Stipend, to Status, actorID, reason string) (*StipendOutcome, error) {
	next := s.Clone()
	changes, err := c.changeStatus("ChangeStipendStatus", stipendTarget(next), to, actorID, reason)
	if err != nil {
		return nil, err
	}
	return &StipendOutcome{Stipend: next, Changes: changes}, nil
}

// ReleaseStipend releases a processing stipend after checking the fund balance.
func (c *Calculator) ReleaseStipend(ctx context.Context, s *Stipend, reference, actorID string, fund FundTracker) (*StipendOutcome, error) {
	next := s.Clone()
	changes, err := c.release(ctx, "ReleaseStipend", stipendTarget(next), reference, actorID, fund)
	if err != nil {
		return nil, err
	}
	return &StipendOutcome{Stipend: next, Changes: changes}, nil
}

// AnnotateStipend appends a note to s.
func (c *Calculator) AnnotateStipend(s *Stipend, actorID, note string) (*StipendOutcome, error) {
	next := s.Clone()
	if err := next.annotate("AnnotateStipend", actorID, note, c.clock.Now()); err != nil {
		return nil, err
	}
	out := &StipendOutcome{Stipend: next}
	out.Audit(actorID, "stipend.annotated", "stipend", s.ID, nil, map[string]any{"note": strings.TrimSpace(note)})
	return out, nil
}

func stipendTarget(s *Stipend) statusTarget {
	return statusTarget{
		base:       &s.Disbursement,
		entityType: "stipend",
		entityID:   s.ID,
		studentID:  s.StudentID,
		amount:     s.Amount,
		event:      shared.EventStipendStatusChanged,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS CHANGES
// ══════════════════════════════════════════════════════════════════════════════

type statusTarget struct {
	base       *Disbursement
	entityType string
	entityID   string
	studentID  string
	amount     decimal.Decimal
	event      shared.EventType
}

func (c *Calculator) changeStatus(op string, t statusTarget, to Status, actorID, reason string) (shared.Changes, error) {
	if to == StatusReleased {
		return shared.Changes{}, shared.NewDomainError(domainName, op, shared.ErrValidation, "release goes through the fund check")
	}
	if !to.IsValid() {
		return shared.Changes{}, shared.Errorf(domainName, op, shared.ErrValidation, "unknown status %q", to)
	}
	if needsReason(to) {
		if err := shared.RequireReason(domainName, op, reason); err != nil {
			return shared.Changes{}, err
		}
	}
	return c.apply(op, t, to, actorID, reason, "")
}

func (c *Calculator) release(ctx context.Context, op string, t statusTarget, reference, actorID string, fund FundTracker) (shared.Changes, error) {
	reference = strings.TrimSpace(reference)
	if !t.base.Status.CanTransitionTo(StatusReleased) {
		return shared.Changes{}, shared.Errorf(domainName, op, shared.ErrInvalidTransition, "cannot release a %s record", t.base.Status)
	}
	if err := checkFunds(ctx, op, fund, t.amount); err != nil {
		return shared.Changes{}, err
	}
	return c.apply(op, t, StatusReleased, actorID, "", reference)
}

func (c *Calculator) apply(op string, t statusTarget, to Status, actorID, reason, reference string) (shared.Changes, error) {
	now := c.clock.Now()
	from := t.base.Status
	if err := t.base.move(op, to, actorID, reason, now); err != nil {
		return shared.Changes{}, err
	}
	if reference != "" {
		t.base.PaymentReference = reference
	}

	var changes shared.Changes
	newValues := map[string]any{"status": string(to)}
	if reason != "" {
		newValues["reason"] = strings.TrimSpace(reason)
	}
	if reference != "" {
		newValues["payment_reference"] = reference
	}
	changes.Audit(actorID, t.entityType+"."+string(to), t.entityType, t.entityID,
		map[string]any{"status": string(from)}, newValues)
	title, msg, typ := statusNotice(to, t.amount, strings.TrimSpace(reason))
	changes.Notify(t.studentID, title, msg, typ)
	changes.Emit(disbursementEvent(t.event, t.entityID, t.studentID, from, to, t.amount, actorID, reference, now))
	return changes, nil
}

func disbursementEvent(typ shared.EventType, id, studentID string, from, to Status, amount decimal.Decimal, actorID, reference string, now time.Time) shared.DisbursementEvent {
	return shared.DisbursementEvent{
		BaseEvent: shared.NewBaseEvent(typ, id, now),
		StudentID: studentID,
		From:      string(from),
		To:        string(to),
		Amount:    amount.StringFixed(2),
		ActorID:   actorID,
		Reference: reference,
	}
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return shared.SystemActorID
	}
	return actorID
}
