package command

import (
	"context"
	"fmt"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/eligibility"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE APPLICATION
// Opens a draft application of a student for one scholarship.
// ══════════════════════════════════════════════════════════════════════════════

// CreateApplicationCommand contains the data to open an application.
type CreateApplicationCommand struct {
	StudentID     string
	ScholarshipID string

	// AcademicYear defaults to the current one ("2025-2026").
	AcademicYear shared.AcademicYear
	Semester     shared.Semester

	// Purpose is the letter of purpose. It may be filled in later but is
	// required before submission.
	Purpose  string
	Priority application.Priority
}

// Validate validates the command.
func (c CreateApplicationCommand) Validate() error {
	return required("create_application", "student_id", c.StudentID, "scholarship_id", c.ScholarshipID)
}

// ApplicationResult is returned by every application command.
type ApplicationResult struct {
	Application *application.Application
	From        application.Status
	To          application.Status

	// Report is set when the document gate ran.
	Report *document.Report

	// Verdict is set when eligibility was evaluated.
	Verdict *eligibility.Verdict
}

func newApplicationResult(out *application.Outcome) *ApplicationResult {
	return &ApplicationResult{
		Application: out.Application,
		From:        out.From,
		To:          out.To,
		Report:      out.Report,
		Verdict:     out.Verdict,
	}
}

// CreateApplicationHandler handles CreateApplicationCommand.
type CreateApplicationHandler struct {
	exec     *Executor
	workflow *application.Workflow
}

// NewCreateApplicationHandler creates a new handler.
func NewCreateApplicationHandler(exec *Executor, workflow *application.Workflow) *CreateApplicationHandler {
	return &CreateApplicationHandler{exec: exec, workflow: workflow}
}

// Handle opens the draft. A student holds at most one live application per
// scholarship and term.
func (h *CreateApplicationHandler) Handle(ctx context.Context, cmd CreateApplicationCommand) (*ApplicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *ApplicationResult
	err := h.exec.Execute(ctx, "create_application", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		if _, err := repos.Scholarships.GetByID(ctx, cmd.ScholarshipID); err != nil {
			return shared.Changes{}, fmt.Errorf("create_application: load scholarship: %w", err)
		}
		if _, err := repos.Students.Snapshot(ctx, cmd.StudentID); err != nil {
			return shared.Changes{}, fmt.Errorf("create_application: load student: %w", err)
		}

		out, err := application.NewDraft(application.NewDraftParams{
			ID:            h.exec.NewID(),
			StudentID:     cmd.StudentID,
			ScholarshipID: cmd.ScholarshipID,
			AcademicYear:  cmd.AcademicYear,
			Semester:      cmd.Semester,
			Purpose:       cmd.Purpose,
			Priority:      cmd.Priority,
		}, h.workflow.Now())
		if err != nil {
			return shared.Changes{}, err
		}

		existing, err := repos.Applications.List(ctx, application.ListFilter{StudentID: cmd.StudentID, ScholarshipID: cmd.ScholarshipID})
		if err != nil {
			return shared.Changes{}, fmt.Errorf("create_application: list applications: %w", err)
		}
		for _, a := range existing {
			if a.AcademicYear == out.Application.AcademicYear && a.Semester == out.Application.Semester && a.Status != application.StatusRejected {
				return shared.Changes{}, shared.Errorf("command", "create_application", shared.ErrAlreadyExists,
					"student already has a %s application for this scholarship in %s", a.Status, a.AcademicYear)
			}
		}

		if err := repos.Applications.Create(ctx, out.Application); err != nil {
			return shared.Changes{}, fmt.Errorf("create_application: save: %w", err)
		}
		result = newApplicationResult(out)
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION APPLICATION
// Moves an application along the workflow graph: submit, verify, evaluate,
// approve, reject, finish.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionApplicationCommand requests one status change.
type TransitionApplicationCommand struct {
	ApplicationID string
	Target        application.Status
	ActorID       string

	// Comment becomes the application remarks. Required for rejections.
	Comment string
}

// Validate validates the command.
func (c TransitionApplicationCommand) Validate() error {
	if err := required("transition_application", "application_id", c.ApplicationID, "actor_id", c.ActorID); err != nil {
		return err
	}
	if !c.Target.IsValid() {
		return shared.Errorf("command", "transition_application", shared.ErrValidation, "unknown status %q", c.Target)
	}
	return nil
}

// TransitionApplicationHandler handles TransitionApplicationCommand.
type TransitionApplicationHandler struct {
	exec     *Executor
	workflow *application.Workflow
}

// NewTransitionApplicationHandler creates a new handler.
func NewTransitionApplicationHandler(exec *Executor, workflow *application.Workflow) *TransitionApplicationHandler {
	return &TransitionApplicationHandler{exec: exec, workflow: workflow}
}

// Handle applies the transition. When verification finds missing documents
// the application is saved as incomplete and the returned error is
// shared.ErrDocumentsIncomplete together with a non-nil result.
func (h *TransitionApplicationHandler) Handle(ctx context.Context, cmd TransitionApplicationCommand) (*ApplicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *ApplicationResult
	err := h.exec.Execute(ctx, "transition_application", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		result = nil
		app, err := repos.Applications.GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("transition_application: load: %w", err)
		}
		facts, err := loadFacts(ctx, repos, app, cmd.Target)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("transition_application: %w", err)
		}

		out, gateErr := h.workflow.Transition(app, application.TransitionRequest{
			Target:  cmd.Target,
			ActorID: cmd.ActorID,
			Comment: cmd.Comment,
		}, facts)
		if out == nil {
			return shared.Changes{}, gateErr
		}

		if err := repos.Applications.Update(ctx, out.Application, app.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("transition_application: save: %w", err)
		}
		result = newApplicationResult(out)
		if gateErr != nil {
			return out.Changes, afterCommit(gateErr)
		}
		return out.Changes, nil
	})
	return result, err
}

// loadFacts reads what the workflow needs to decide a move to target.
func loadFacts(ctx context.Context, repos Repositories, app *application.Application, target application.Status) (application.Facts, error) {
	var facts application.Facts

	sch, err := repos.Scholarships.GetByID(ctx, app.ScholarshipID)
	if err != nil {
		return facts, fmt.Errorf("load scholarship: %w", err)
	}
	facts.Scholarship = sch

	switch target {
	case application.StatusVerified:
		docs, err := repos.Documents.ListByApplication(ctx, app.ID)
		if err != nil {
			return facts, fmt.Errorf("load documents: %w", err)
		}
		facts.Documents = docs

	case application.StatusApproved:
		snap, err := repos.Students.Snapshot(ctx, app.StudentID)
		if err != nil {
			return facts, fmt.Errorf("load student: %w", err)
		}
		facts.Student = snap
		count, err := repos.Applications.CountApproved(ctx, app.ScholarshipID)
		if err != nil {
			return facts, fmt.Errorf("count approved: %w", err)
		}
		facts.ApprovedCount = count
	}
	return facts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE DRAFT / ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDraftCommand replaces the letter of purpose.
type UpdateDraftCommand struct {
	ApplicationID string
	Purpose       string
	ActorID       string
}

// Validate validates the command.
func (c UpdateDraftCommand) Validate() error {
	return required("update_draft", "application_id", c.ApplicationID, "actor_id", c.ActorID)
}

// UpdateDraftHandler handles UpdateDraftCommand.
type UpdateDraftHandler struct {
	exec     *Executor
	workflow *application.Workflow
}

// NewUpdateDraftHandler creates a new handler.
func NewUpdateDraftHandler(exec *Executor, workflow *application.Workflow) *UpdateDraftHandler {
	return &UpdateDraftHandler{exec: exec, workflow: workflow}
}

// Handle saves the new purpose.
func (h *UpdateDraftHandler) Handle(ctx context.Context, cmd UpdateDraftCommand) (*ApplicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return mutateApplication(ctx, h.exec, "update_draft", cmd.ApplicationID, func(app *application.Application) (*application.Outcome, error) {
		return h.workflow.UpdateDraft(app, cmd.Purpose, cmd.ActorID)
	})
}

// ArchiveApplicationCommand soft-deletes an application.
type ArchiveApplicationCommand struct {
	ApplicationID string
	ActorID       string
}

// Validate validates the command.
func (c ArchiveApplicationCommand) Validate() error {
	return required("archive_application", "application_id", c.ApplicationID, "actor_id", c.ActorID)
}

// ArchiveApplicationHandler handles ArchiveApplicationCommand.
type ArchiveApplicationHandler struct {
	exec     *Executor
	workflow *application.Workflow
}

// NewArchiveApplicationHandler creates a new handler.
func NewArchiveApplicationHandler(exec *Executor, workflow *application.Workflow) *ArchiveApplicationHandler {
	return &ArchiveApplicationHandler{exec: exec, workflow: workflow}
}

// Handle archives the application.
func (h *ArchiveApplicationHandler) Handle(ctx context.Context, cmd ArchiveApplicationCommand) (*ApplicationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return mutateApplication(ctx, h.exec, "archive_application", cmd.ApplicationID, func(app *application.Application) (*application.Outcome, error) {
		return h.workflow.Archive(app, cmd.ActorID)
	})
}

// mutateApplication loads, changes and saves one application.
func mutateApplication(ctx context.Context, exec *Executor, name, id string, op func(*application.Application) (*application.Outcome, error)) (*ApplicationResult, error) {
	var result *ApplicationResult
	err := exec.Execute(ctx, name, func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		app, err := repos.Applications.GetByID(ctx, id)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load: %w", name, err)
		}
		out, err := op(app)
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Applications.Update(ctx, out.Application, app.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save: %w", name, err)
		}
		result = newApplicationResult(out)
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
