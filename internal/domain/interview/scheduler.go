package interview

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// DefaultBuffer is the minimum gap between two interviews of one interviewer.
const DefaultBuffer = 30 * time.Minute

// MaxScore is the highest score an interviewer may give per criterion.
const MaxScore = 100.0

// Outcome is the result of a scheduler operation. Application is set when
// the operation moved the application.
type Outcome struct {
	Interview   *Interview
	Application *application.Application
	// AppOutcome carries the workflow result of the cascade, if any.
	AppOutcome *application.Outcome
	shared.Changes
}

// Scheduler manages interviews.
type Scheduler struct {
	workflow *application.Workflow
	buffer   time.Duration
	clock    shared.Clock
}

// NewScheduler creates a Scheduler. A non-positive buffer uses DefaultBuffer.
func NewScheduler(workflow *application.Workflow, buffer time.Duration, clock shared.Clock) *Scheduler {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &Scheduler{workflow: workflow, buffer: buffer, clock: clock}
}

// Buffer returns the conflict buffer.
func (s *Scheduler) Buffer() time.Duration {
	return s.buffer
}

// HasConflict reports whether a non-cancelled interview of interviewerID
// in existing lies less than the buffer away from when. The interview
// with id excludeID is ignored.
func (s *Scheduler) HasConflict(interviewerID string, when time.Time, existing []*Interview, excludeID string) bool {
	return s.conflict(interviewerID, when, existing, excludeID) != nil
}

func (s *Scheduler) conflict(interviewerID string, when time.Time, existing []*Interview, excludeID string) *Interview {
	for _, iv := range existing {
		if iv.InterviewerID != interviewerID || iv.Status == StatusCancelled || (excludeID != "" && iv.ID == excludeID) {
			continue
		}
		if timeutil.AbsDuration(iv.ScheduledAt.Sub(when)) < s.buffer {
			return iv
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE / RESCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleParams describes a new interview.
type ScheduleParams struct {
	ID            string
	Application   *application.Application
	InterviewerID string
	When          time.Time
	Location      string
	Type          Type
	ActorID       string
	// Existing interviews of the interviewer around When.
	Existing []*Interview
}

// Schedule books an interview for a verified application and moves the
// application to under_evaluation.
func (s *Scheduler) Schedule(p ScheduleParams) (*Outcome, error) {
	const op = "Schedule"
	now := s.clock.Now()

	if p.Application == nil {
		return nil, shared.NewDomainError(domainName, op, shared.ErrNotFound, "application not found")
	}
	if p.ID == "" || strings.TrimSpace(p.InterviewerID) == "" {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "interview and interviewer ids are required")
	}
	if p.Type == "" {
		p.Type = TypeInPerson
	}
	if !p.Type.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown interview type %q", p.Type)
	}
	if !p.When.After(now) {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "interview must be scheduled in the future")
	}
	if c := s.conflict(p.InterviewerID, p.When, p.Existing, ""); c != nil {
		return nil, conflictError(op, c, s.buffer)
	}

	appOut, err := s.workflow.Transition(p.Application, application.TransitionRequest{
		Target:  application.StatusUnderEvaluation,
		ActorID: p.ActorID,
		Comment: "Interview scheduled",
	}, application.Facts{})
	if err != nil {
		return nil, err
	}
	appOut.Application.InterviewID = p.ID

	iv := &Interview{
		ID:             p.ID,
		ApplicationID:  p.Application.ID,
		StudentID:      p.Application.StudentID,
		InterviewerID:  p.InterviewerID,
		ScheduledAt:    p.When,
		Location:       strings.TrimSpace(p.Location),
		Type:           p.Type,
		Status:         StatusScheduled,
		Recommendation: RecommendPending,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	out := &Outcome{Interview: iv, Application: appOut.Application, AppOutcome: appOut}
	out.Audit(p.ActorID, "interview.scheduled", domainName, iv.ID, nil, map[string]any{
		"application_id": iv.ApplicationID,
		"interviewer_id": iv.InterviewerID,
		"scheduled_at":   iv.ScheduledAt.Format(time.RFC3339),
		"type":           string(iv.Type),
	})
	out.Notify(iv.StudentID, "Interview scheduled",
		"Your interview is on "+formatWhen(iv.ScheduledAt)+locationSuffix(iv.Location)+".", shared.NotificationInfo)
	out.Notify(iv.InterviewerID, "New interview assigned",
		"You have an interview on "+formatWhen(iv.ScheduledAt)+locationSuffix(iv.Location)+".", shared.NotificationInfo)
	out.Emit(iv.event(shared.EventInterviewScheduled, now))
	out.Merge(appOut.Changes)
	return out, nil
}

// Reschedule moves an upcoming interview to when and logs the change.
func (s *Scheduler) Reschedule(iv *Interview, when time.Time, reason, actorID string, existing []*Interview) (*Outcome, error) {
	const op = "Reschedule"
	now := s.clock.Now()

	if !iv.Status.IsActive() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "a %s interview cannot be rescheduled", iv.Status)
	}
	if err := shared.RequireReason(domainName, op, reason); err != nil {
		return nil, err
	}
	if !when.After(now) {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "interview must be scheduled in the future")
	}
	if c := s.conflict(iv.InterviewerID, when, existing, iv.ID); c != nil {
		return nil, conflictError(op, c, s.buffer)
	}

	next := iv.Clone()
	next.RescheduleHistory = append(next.RescheduleHistory, RescheduleEntry{
		OriginalSchedule: iv.ScheduledAt,
		NewSchedule:      when,
		Reason:           strings.TrimSpace(reason),
		RescheduledBy:    actorID,
		At:               now,
	})
	next.ScheduledAt = when
	next.Status = StatusRescheduled
	next.UpdatedAt = now

	out := &Outcome{Interview: next}
	out.Audit(actorID, "interview.rescheduled", domainName, iv.ID,
		map[string]any{"scheduled_at": iv.ScheduledAt.Format(time.RFC3339)},
		map[string]any{"scheduled_at": when.Format(time.RFC3339), "reason": strings.TrimSpace(reason)})
	out.Notify(iv.StudentID, "Interview rescheduled",
		"Your interview was moved to "+formatWhen(when)+": "+strings.TrimSpace(reason), shared.NotificationWarning)
	ev := next.event(shared.EventInterviewRescheduled, now)
	ev.Reason = strings.TrimSpace(reason)
	out.Emit(ev)
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOMES
// ══════════════════════════════════════════════════════════════════════════════

// CompleteParams records the result of an interview.
type CompleteParams struct {
	Scores         []float64
	Recommendation Recommendation
	Notes          string
	ActorID        string
	// Facts for the approval gate when the recommendation is approved.
	Facts application.Facts
}

// MeanScore returns the arithmetic mean of scores rounded to two places.
func MeanScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return math.Round(sum/float64(len(scores))*100) / 100
}

// Complete records scores and the recommendation. An approved or rejected
// recommendation moves the application accordingly; when that move fails
// nothing is recorded.
func (s *Scheduler) Complete(iv *Interview, app *application.Application, p CompleteParams) (*Outcome, error) {
	const op = "Complete"
	now := s.clock.Now()

	if !iv.Status.IsActive() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "a %s interview cannot be completed", iv.Status)
	}
	if len(p.Scores) == 0 {
		return nil, shared.NewDomainError(domainName, op, shared.ErrValidation, "at least one score is required")
	}
	for _, v := range p.Scores {
		if v < 0 || v > MaxScore || math.IsNaN(v) {
			return nil, shared.Errorf(domainName, op, shared.ErrValidation, "score %v outside 0-%v", v, MaxScore)
		}
	}
	if p.Recommendation == "" {
		p.Recommendation = RecommendPending
	}
	if !p.Recommendation.IsValid() {
		return nil, shared.Errorf(domainName, op, shared.ErrValidation, "unknown recommendation %q", p.Recommendation)
	}

	total := MeanScore(p.Scores)
	next := iv.Clone()
	next.Scores = append([]float64(nil), p.Scores...)
	next.TotalScore = &total
	next.Recommendation = p.Recommendation
	next.Notes = strings.TrimSpace(p.Notes)
	next.Status = StatusCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now

	out := &Outcome{Interview: next}
	out.Audit(p.ActorID, "interview.completed", domainName, iv.ID,
		map[string]any{"status": string(iv.Status)},
		map[string]any{"status": string(next.Status), "total_score": total, "recommendation": string(p.Recommendation)})
	ev := next.event(shared.EventInterviewCompleted, now)
	ev.TotalScore = &total
	ev.Recommendation = string(p.Recommendation)
	out.Emit(ev)

	var target application.Status
	comment := next.Notes
	switch p.Recommendation {
	case RecommendApproved:
		target = application.StatusApproved
	case RecommendRejected:
		target = application.StatusRejected
		if comment == "" {
			comment = "Not recommended after interview"
		}
	}
	if target == "" {
		return out, nil
	}
	if app == nil {
		return nil, shared.NewDomainError(domainName, op, shared.ErrNotFound, "application not found")
	}

	appOut, err := s.workflow.Transition(app, application.TransitionRequest{
		Target:  target,
		ActorID: p.ActorID,
		Comment: comment,
	}, p.Facts)
	if err != nil {
		return nil, err
	}
	appOut.Application.EvaluationScore = &total
	out.Application = appOut.Application
	out.AppOutcome = appOut
	out.Merge(appOut.Changes)
	return out, nil
}

// Cancel cancels an upcoming interview and reopens the application for
// scheduling.
func (s *Scheduler) Cancel(iv *Interview, app *application.Application, reason, actorID string) (*Outcome, error) {
	const op = "Cancel"
	now := s.clock.Now()

	if err := shared.RequireReason(domainName, op, reason); err != nil {
		return nil, err
	}
	if !iv.Status.IsActive() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "a %s interview cannot be cancelled", iv.Status)
	}
	reason = strings.TrimSpace(reason)

	next := iv.Clone()
	next.Status = StatusCancelled
	next.Remarks = "Cancelled: " + reason
	next.UpdatedAt = now

	out := &Outcome{Interview: next}
	out.Audit(actorID, "interview.cancelled", domainName, iv.ID,
		map[string]any{"status": string(iv.Status)},
		map[string]any{"status": string(next.Status), "reason": reason})
	out.Notify(iv.StudentID, "Interview cancelled", "Your interview on "+formatWhen(iv.ScheduledAt)+" was cancelled: "+reason, shared.NotificationWarning)
	ev := next.event(shared.EventInterviewCancelled, now)
	ev.Reason = reason
	out.Emit(ev)

	return s.cascade(out, app, application.CascadeInterviewCancelled, actorID, reason)
}

// MarkNoShow records that the applicant missed an interview whose time has
// passed, and rejects the application.
func (s *Scheduler) MarkNoShow(iv *Interview, app *application.Application, actorID string) (*Outcome, error) {
	const op = "MarkNoShow"
	now := s.clock.Now()

	if !iv.Status.IsActive() {
		return nil, shared.Errorf(domainName, op, shared.ErrInvalidState, "a %s interview cannot be marked as no-show", iv.Status)
	}
	if now.Before(iv.ScheduledAt) {
		return nil, shared.NewDomainError(domainName, op, shared.ErrInvalidState, "the interview has not started yet")
	}

	next := iv.Clone()
	next.Status = StatusNoShow
	next.Remarks = application.NoShowReason
	next.UpdatedAt = now

	out := &Outcome{Interview: next}
	out.Audit(actorID, "interview.no_show", domainName, iv.ID,
		map[string]any{"status": string(iv.Status)},
		map[string]any{"status": string(next.Status)})
	out.Emit(next.event(shared.EventInterviewNoShow, now))

	return s.cascade(out, app, application.CascadeInterviewNoShow, actorID, "")
}

func (s *Scheduler) cascade(out *Outcome, app *application.Application, c application.Cascade, actorID, reason string) (*Outcome, error) {
	if app == nil {
		return nil, shared.NewDomainError(domainName, "cascade", shared.ErrNotFound, "application not found")
	}
	appOut, err := s.workflow.ApplyCascade(app, c, actorID, reason)
	if err != nil {
		return nil, err
	}
	out.Application = appOut.Application
	out.AppOutcome = appOut
	out.Merge(appOut.Changes)
	return out, nil
}

func (iv *Interview) event(t shared.EventType, now time.Time) shared.InterviewEvent {
	return shared.NewInterviewEvent(t, iv.ID, iv.ApplicationID, iv.InterviewerID, string(iv.Status), iv.ScheduledAt, now)
}

func conflictError(op string, with *Interview, buffer time.Duration) error {
	return shared.Errorf(domainName, op, shared.ErrSchedulingConflict,
		"interviewer already has an interview at %s (minimum gap %s)", formatWhen(with.ScheduledAt), buffer)
}

func formatWhen(t time.Time) string {
	return timeutil.ToManila(t).Format("Jan 2, 2006 3:04 PM")
}

func locationSuffix(loc string) string {
	if loc == "" {
		return ""
	}
	return fmt.Sprintf(" at %s", loc)
}
