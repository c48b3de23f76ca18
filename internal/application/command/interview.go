package command

import (
	"context"
	"fmt"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// InterviewResult is returned by the interview commands.
type InterviewResult struct {
	Interview *interview.Interview

	// Application is set when the command moved the application.
	Application *application.Application
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE INTERVIEW
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleInterviewCommand books an interview for a verified application.
type ScheduleInterviewCommand struct {
	ApplicationID string
	InterviewerID string
	When          time.Time
	Location      string
	Type          interview.Type
	ActorID       string
}

// Validate validates the command.
func (c ScheduleInterviewCommand) Validate() error {
	if err := required("schedule_interview", "application_id", c.ApplicationID, "interviewer_id", c.InterviewerID, "actor_id", c.ActorID); err != nil {
		return err
	}
	if c.When.IsZero() {
		return shared.NewDomainError("command", "schedule_interview", shared.ErrValidation, "scheduled time is required")
	}
	return nil
}

// ScheduleInterviewHandler handles ScheduleInterviewCommand.
type ScheduleInterviewHandler struct {
	exec      *Executor
	scheduler *interview.Scheduler
}

// NewScheduleInterviewHandler creates a new handler.
func NewScheduleInterviewHandler(exec *Executor, scheduler *interview.Scheduler) *ScheduleInterviewHandler {
	return &ScheduleInterviewHandler{exec: exec, scheduler: scheduler}
}

// Handle books the interview.
func (h *ScheduleInterviewHandler) Handle(ctx context.Context, cmd ScheduleInterviewCommand) (*InterviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *InterviewResult
	err := h.exec.Execute(ctx, "schedule_interview", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		app, err := repos.Applications.GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("schedule_interview: load application: %w", err)
		}
		existing, err := interviewerCalendar(ctx, repos, h.scheduler, cmd.InterviewerID, cmd.When)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("schedule_interview: %w", err)
		}

		out, err := h.scheduler.Schedule(interview.ScheduleParams{
			ID:            h.exec.NewID(),
			Application:   app,
			InterviewerID: cmd.InterviewerID,
			When:          cmd.When,
			Location:      cmd.Location,
			Type:          cmd.Type,
			ActorID:       cmd.ActorID,
			Existing:      existing,
		})
		if err != nil {
			return shared.Changes{}, err
		}

		if err := repos.Interviews.Create(ctx, out.Interview); err != nil {
			return shared.Changes{}, fmt.Errorf("schedule_interview: save interview: %w", err)
		}
		if err := repos.Applications.Update(ctx, out.Application, app.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("schedule_interview: save application: %w", err)
		}
		result = &InterviewResult{Interview: out.Interview, Application: out.Application}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// interviewerCalendar loads the interviewer's interviews close enough to
// when to conflict with it.
func interviewerCalendar(ctx context.Context, repos Repositories, s *interview.Scheduler, interviewerID string, when time.Time) ([]*interview.Interview, error) {
	window := s.Buffer()
	list, err := repos.Interviews.ListByInterviewer(ctx, interviewerID, when.Add(-window), when.Add(window))
	if err != nil {
		return nil, fmt.Errorf("load interviewer calendar: %w", err)
	}
	return list, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESCHEDULE INTERVIEW
// ══════════════════════════════════════════════════════════════════════════════

// RescheduleInterviewCommand moves an upcoming interview.
type RescheduleInterviewCommand struct {
	InterviewID string
	When        time.Time
	Reason      string
	ActorID     string
}

// Validate validates the command.
func (c RescheduleInterviewCommand) Validate() error {
	if err := required("reschedule_interview", "interview_id", c.InterviewID, "actor_id", c.ActorID); err != nil {
		return err
	}
	if c.When.IsZero() {
		return shared.NewDomainError("command", "reschedule_interview", shared.ErrValidation, "new time is required")
	}
	return nil
}

// RescheduleInterviewHandler handles RescheduleInterviewCommand.
type RescheduleInterviewHandler struct {
	exec      *Executor
	scheduler *interview.Scheduler
}

// NewRescheduleInterviewHandler creates a new handler.
func NewRescheduleInterviewHandler(exec *Executor, scheduler *interview.Scheduler) *RescheduleInterviewHandler {
	return &RescheduleInterviewHandler{exec: exec, scheduler: scheduler}
}

// Handle reschedules the interview.
func (h *RescheduleInterviewHandler) Handle(ctx context.Context, cmd RescheduleInterviewCommand) (*InterviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *InterviewResult
	err := h.exec.Execute(ctx, "reschedule_interview", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		iv, err := repos.Interviews.GetByID(ctx, cmd.InterviewID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("reschedule_interview: load: %w", err)
		}
		existing, err := interviewerCalendar(ctx, repos, h.scheduler, iv.InterviewerID, cmd.When)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("reschedule_interview: %w", err)
		}

		out, err := h.scheduler.Reschedule(iv, cmd.When, cmd.Reason, cmd.ActorID, existing)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Interviews.Update(ctx, out.Interview, iv.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("reschedule_interview: save: %w", err)
		}
		result = &InterviewResult{Interview: out.Interview}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE INTERVIEW
// Complete, cancel and no-show all end an interview and may move the
// application.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteInterviewCommand records the outcome of an interview.
type CompleteInterviewCommand struct {
	InterviewID    string
	Scores         []float64
	Recommendation interview.Recommendation
	Notes          string
	ActorID        string
}

// Validate validates the command.
func (c CompleteInterviewCommand) Validate() error {
	return required("complete_interview", "interview_id", c.InterviewID, "actor_id", c.ActorID)
}

// CancelInterviewCommand cancels an upcoming interview.
type CancelInterviewCommand struct {
	InterviewID string
	Reason      string
	ActorID     string
}

// Validate validates the command.
func (c CancelInterviewCommand) Validate() error {
	return required("cancel_interview", "interview_id", c.InterviewID, "actor_id", c.ActorID)
}

// MarkNoShowCommand records that the applicant did not attend.
type MarkNoShowCommand struct {
	InterviewID string
	ActorID     string
}

// Validate validates the command.
func (c MarkNoShowCommand) Validate() error {
	return required("mark_no_show", "interview_id", c.InterviewID, "actor_id", c.ActorID)
}

// CloseInterviewHandler handles CompleteInterviewCommand,
// CancelInterviewCommand and MarkNoShowCommand.
type CloseInterviewHandler struct {
	exec      *Executor
	scheduler *interview.Scheduler
}

// NewCloseInterviewHandler creates a new handler.
func NewCloseInterviewHandler(exec *Executor, scheduler *interview.Scheduler) *CloseInterviewHandler {
	return &CloseInterviewHandler{exec: exec, scheduler: scheduler}
}

// Complete records scores and applies the recommendation to the application.
func (h *CloseInterviewHandler) Complete(ctx context.Context, cmd CompleteInterviewCommand) (*InterviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return h.close(ctx, "complete_interview", cmd.InterviewID, func(ctx context.Context, repos Repositories, iv *interview.Interview, app *application.Application) (*interview.Outcome, error) {
		var facts application.Facts
		if cmd.Recommendation == interview.RecommendApproved {
			f, err := loadFacts(ctx, repos, app, application.StatusApproved)
			if err != nil {
				return nil, err
			}
			facts = f
		}
		return h.scheduler.Complete(iv, app, interview.CompleteParams{
			Scores:         cmd.Scores,
			Recommendation: cmd.Recommendation,
			Notes:          cmd.Notes,
			ActorID:        cmd.ActorID,
			Facts:          facts,
		})
	})
}

// Cancel cancels the interview and sends the application back to submitted.
func (h *CloseInterviewHandler) Cancel(ctx context.Context, cmd CancelInterviewCommand) (*InterviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return h.close(ctx, "cancel_interview", cmd.InterviewID, func(_ context.Context, _ Repositories, iv *interview.Interview, app *application.Application) (*interview.Outcome, error) {
		return h.scheduler.Cancel(iv, app, cmd.Reason, cmd.ActorID)
	})
}

// MarkNoShow closes the interview as missed and rejects the application.
func (h *CloseInterviewHandler) MarkNoShow(ctx context.Context, cmd MarkNoShowCommand) (*InterviewResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return h.close(ctx, "mark_no_show", cmd.InterviewID, func(_ context.Context, _ Repositories, iv *interview.Interview, app *application.Application) (*interview.Outcome, error) {
		return h.scheduler.MarkNoShow(iv, app, cmd.ActorID)
	})
}

type closeFunc func(ctx context.Context, repos Repositories, iv *interview.Interview, app *application.Application) (*interview.Outcome, error)

func (h *CloseInterviewHandler) close(ctx context.Context, name, interviewID string, fn closeFunc) (*InterviewResult, error) {
	var result *InterviewResult
	err := h.exec.Execute(ctx, name, func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		iv, err := repos.Interviews.GetByID(ctx, interviewID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load: %w", name, err)
		}
		app, err := repos.Applications.GetByID(ctx, iv.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load application: %w", name, err)
		}

		out, err := fn(ctx, repos, iv, app)
		if err != nil {
			return shared.Changes{}, err
		}

		if err := repos.Interviews.Update(ctx, out.Interview, iv.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save interview: %w", name, err)
		}
		if out.Application != nil {
			if err := repos.Applications.Update(ctx, out.Application, app.Version); err != nil {
				return shared.Changes{}, fmt.Errorf("%s: save application: %w", name, err)
			}
		}
		result = &InterviewResult{Interview: out.Interview, Application: out.Application}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
