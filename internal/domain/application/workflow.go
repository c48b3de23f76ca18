package application

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

// TransitionRequest is an intent to move an application to Target.
type TransitionRequest struct {
	Target  Status
	ActorID string
	Comment string
}

// Facts are the loaded collaborators the gates are checked against. Only
// the facts a gate needs must be present.
type Facts struct {
	Student       *student.Snapshot
	Scholarship   *scholarship.Scholarship
	Documents     []document.Document
	ApprovedCount int
}

// Outcome is the result of a workflow operation: the new application, the
// status change, and the effects and events in emission order.
type Outcome struct {
	Application *Application
	From        Status
	To          Status
	// Report is set when the verification gate ran.
	Report *document.Report
	// Verdict is set when the approval gate ran.
	Verdict *eligibility.Verdict
	shared.Changes
}

// Workflow drives application status changes. It performs no I/O and never
// mutates the application it is given.
type Workflow struct {
	evaluator *eligibility.Evaluator
	checker   *document.Checker
	clock     shared.Clock
}

// NewWorkflow creates a Workflow.
func NewWorkflow(evaluator *eligibility.Evaluator, checker *document.Checker, clock shared.Clock) *Workflow {
	if clock == nil {
		clock = shared.SystemClock()
	}
	if checker == nil {
		checker = document.NewChecker()
	}
	if evaluator == nil {
		evaluator = eligibility.NewEvaluator(eligibility.DefaultRules(), clock)
	}
	return &Workflow{evaluator: evaluator, checker: checker, clock: clock}
}

// Now returns the workflow clock's current time.
func (w *Workflow) Now() time.Time {
	return w.clock.Now()
}

// Transition moves app to req.Target after checking the table and the gate
// of the target status.
//
// When the verification gate finds missing or unverified documents, the
// returned outcome moves the application to incomplete instead and the
// error is shared.ErrDocumentsIncomplete. Callers persist that outcome.
func (w *Workflow) Transition(app *Application, req TransitionRequest, facts Facts) (*Outcome, error) {
	const op = "Transition"
	now := w.clock.Now()

	if app.IsArchived() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrInvalidState, "application is archived")
	}
	if !req.Target.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown status %q", req.Target)
	}
	if !app.Status.CanTransitionTo(req.Target) {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidTransition, "cannot move from %s to %s", app.Status, req.Target)
	}

	next := app.Clone()
	out := &Outcome{From: app.Status, To: req.Target}

	switch req.Target {
	case StatusSubmitted:
		if next.Purpose == "" {
			return nil, shared.NewDomainError(domainName, op, shared.ErrIncompleteSubmission, "a letter of purpose is required before submitting")
		}
		if facts.Scholarship != nil && !facts.Scholarship.IsOpen(now) {
			return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "%s is not accepting applications", facts.Scholarship.Name)
		}
		if next.AppliedAt == nil {
			next.AppliedAt = &now
		}

	case StatusVerified:
		if facts.Scholarship == nil {
			return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "scholarship is required to check documents")
		}
		report := w.checker.Check(facts.Scholarship.RequiredDocuments, facts.Documents)
		out.Report = &report
		if !report.Complete {
			redirect := w.apply(app, next, StatusIncomplete, req.ActorID, incompleteComment(report), "", facts, now)
			redirect.Report = &report
			return redirect, shared.NewDomainError(domainName, op, shared.ErrDocumentsIncomplete, incompleteComment(report))
		}

	case StatusApproved:
		if facts.Student == nil || facts.Scholarship == nil {
			return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "student and scholarship are required to approve")
		}
		verdict := w.evaluator.Evaluate(*facts.Student, *facts.Scholarship)
		out.Verdict = &verdict
		if !verdict.Eligible {
			return nil, shared.NewDomainError(domainName, op, shared.ErrEligibilityNotMet, strings.Join(verdict.Reasons, "; "))
		}
		if !facts.Scholarship.HasSlots(facts.ApprovedCount) {
			return nil, shared.Errorf(domainName, op, shared.ErrNoSlotsAvailable, "all %d slots of %s are taken", facts.Scholarship.SlotsAvailable, facts.Scholarship.Name)
		}
		if next.ApprovedAt == nil {
			next.ApprovedAt = &now
		}
		next.StipendStatus = payment.StatusPending

	case StatusRejected:
		if err := shared.RequireReason(domainName, op, req.Comment); err != nil {
			return nil, err
		}
		if next.RejectedAt == nil {
			next.RejectedAt = &now
		}
	}

	res := w.apply(app, next, req.Target, req.ActorID, req.Comment, "", facts, now)
	res.Report, res.Verdict = out.Report, out.Verdict
	return res, nil
}

// ApplyCascade applies a whitelisted interview cascade. The application
// must be in the cascade's source status.
func (w *Workflow) ApplyCascade(app *Application, c Cascade, actorID, reason string) (*Outcome, error) {
	const op = "ApplyCascade"
	now := w.clock.Now()

	e, ok := cascades[c]
	if !ok {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown cascade %q", c)
	}
	if app.IsArchived() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrInvalidState, "application is archived")
	}
	if app.Status != e.from {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidTransition, "cascade %s needs %s, application is %s", c, e.from, app.Status)
	}

	next := app.Clone()
	comment := strings.TrimSpace(reason)
	switch c {
	case CascadeInterviewNoShow:
		comment = NoShowReason
		if next.RejectedAt == nil {
			next.RejectedAt = &now
		}
	case CascadeInterviewCancelled:
		next.InterviewID = ""
	}
	return w.apply(app, next, e.to, actorID, comment, c, Facts{}, now), nil
}

// apply finalises next in status to and records the effects and event.
func (w *Workflow) apply(prev, next *Application, to Status, actorID, comment string, c Cascade, facts Facts, now time.Time) *Outcome {
	comment = strings.TrimSpace(comment)
	next.Status = to
	next.UpdatedAt = now
	if comment != "" {
		next.Remarks = comment
	}

	out := &Outcome{Application: next, From: prev.Status, To: to}

	newValues := map[string]any{"status": string(to)}
	if comment != "" {
		newValues["comment"] = comment
	}
	if c != "" {
		newValues["cascade"] = string(c)
	}
	out.Audit(actorID, "application.status_changed", domainName, next.ID,
		map[string]any{"status": string(prev.Status)}, newValues)

	if to.IsApplicantFacing() {
		title, msg, typ := notice(to, facts.Scholarship, comment)
		out.Notify(next.StudentID, title, msg, typ)
	}

	ev := shared.NewApplicationTransitionedEvent(next.ID, next.StudentID, next.ScholarshipID, string(prev.Status), string(to), actorID, now)
	ev.Comment = comment
	ev.Cascade = string(c)
	out.Emit(ev)
	return out
}

// RecordDisbursement keeps the stipend status and running total of an
// approved application in step with its stipends. amount is added only
// when status is released.
func (w *Workflow) RecordDisbursement(app *Application, amount decimal.Decimal, status payment.Status) (*Outcome, error) {
	const op = "RecordDisbursement"
	now := w.clock.Now()

	if app.ApprovedAt == nil || (app.Status != StatusApproved && app.Status != StatusEnd) {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "application is %s, not an approved scholar", app.Status)
	}
	if !status.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown stipend status %q", status)
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "amount cannot be negative")
	}

	next := app.Clone()
	next.StipendStatus = status
	if status == payment.StatusReleased {
		next.AmountReceived = shared.RoundMoney(app.AmountReceived.Add(amount))
	}
	next.UpdatedAt = now

	out := &Outcome{Application: next, From: app.Status, To: app.Status}
	out.Audit(shared.SystemActorID, "application.disbursement_recorded", domainName, app.ID,
		map[string]any{"stipend_status": string(app.StipendStatus), "amount_received": app.AmountReceived.StringFixed(2)},
		map[string]any{"stipend_status": string(next.StipendStatus), "amount_received": next.AmountReceived.StringFixed(2)})
	out.Emit(shared.DisbursementRecordedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventDisbursementRecorded, app.ID, now),
		Amount:         amount.StringFixed(2),
		AmountReceived: next.AmountReceived.StringFixed(2),
	})
	return out, nil
}

// UpdateDraft replaces the letter of purpose of a draft or incomplete
// application.
func (w *Workflow) UpdateDraft(app *Application, purpose, actorID string) (*Outcome, error) {
	const op = "UpdateDraft"
	if app.IsArchived() || (app.Status != StatusDraft && app.Status != StatusIncomplete) {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "a %s application cannot be edited", app.Status)
	}
	next := app.Clone()
	next.Purpose = strings.TrimSpace(purpose)
	next.UpdatedAt = w.clock.Now()

	out := &Outcome{Application: next, From: app.Status, To: app.Status}
	out.Audit(actorID, "application.updated", domainName, app.ID, nil, map[string]any{"purpose_length": len(next.Purpose)})
	return out, nil
}

// Archive soft-deletes a draft or finished application.
func (w *Workflow) Archive(app *Application, actorID string) (*Outcome, error) {
	const op = "Archive"
	now := w.clock.Now()

	if app.IsArchived() {
		return nil, shared.NewDomainError(domainName, op, shared.ErrInvalidState, "application is already archived")
	}
	if app.Status != StatusDraft && app.Status != StatusEnd {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "only draft or finished applications can be archived, this one is %s", app.Status)
	}

	next := app.Clone()
	next.ArchivedAt = &now
	next.UpdatedAt = now

	out := &Outcome{Application: next, From: app.Status, To: app.Status}
	out.Audit(actorID, "application.archived", domainName, app.ID, nil, map[string]any{"archived_at": now.Format(time.RFC3339)})
	out.Emit(shared.ApplicationArchivedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventApplicationArchived, app.ID, now),
		ActorID:   actorID,
	})
	return out, nil
}

func incompleteComment(r document.Report) string {
	var parts []string
	if len(r.Missing) > 0 {
		parts = append(parts, "missing: "+joinTypes(r.Missing))
	}
	if len(r.Rejected) > 0 {
		parts = append(parts, "rejected: "+joinTypes(r.Rejected))
	}
	if len(r.PendingVerification) > 0 {
		types := make([]document.Type, 0, len(r.PendingVerification))
		for _, d := range r.PendingVerification {
			types = append(types, d.Type)
		}
		parts = append(parts, "awaiting verification: "+joinTypes(types))
	}
	if len(parts) == 0 {
		return "Required documents are incomplete"
	}
	return "Required documents are incomplete (" + strings.Join(parts, "; ") + ")"
}

func joinTypes(types []document.Type) string {
	labels := make([]string, len(types))
	for i, t := range types {
		labels[i] = t.Label()
	}
	return strings.Join(labels, ", ")
}

func notice(to Status, sch *scholarship.Scholarship, comment string) (string, string, shared.NotificationType) {
	name := "your scholarship"
	if sch != nil && sch.Name != "" {
		name = sch.Name
	}
	switch to {
	case StatusSubmitted:
		return "Application submitted", "Your application for " + name + " was received.", shared.NotificationInfo
	case StatusIncomplete:
		return "Documents needed", "Your application for " + name + " is incomplete. " + comment, shared.NotificationWarning
	case StatusVerified:
		return "Documents verified", "All documents for " + name + " have been verified.", shared.NotificationSuccess
	case StatusUnderEvaluation:
		return "Under evaluation", "Your application for " + name + " is now under evaluation.", shared.NotificationInfo
	case StatusApproved:
		return "Application approved", "Congratulations! Your application for " + name + " was approved.", shared.NotificationSuccess
	case StatusRejected:
		return "Application not approved", "Your application for " + name + " was not approved: " + comment, shared.NotificationError
	}
	return "Application updated", "Your application for " + name + " is now " + string(to) + ".", shared.NotificationInfo
}
