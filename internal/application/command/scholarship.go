package command

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIP ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// CreateScholarshipCommand defines a new program.
type CreateScholarshipCommand struct {
	ActorID           string
	Name              string
	Description       string
	Type              scholarship.Type
	Amount            *decimal.Decimal
	SlotsAvailable    int
	Deadline          time.Time
	RequiredDocuments []document.Type
	Criteria          scholarship.Criteria
	Status            scholarship.Status
}

// Validate validates the command.
func (c CreateScholarshipCommand) Validate() error {
	return required("create_scholarship", "actor_id", c.ActorID, "name", c.Name)
}

// UpdateScholarshipCommand changes the status, slots or deadline of a
// program. Zero fields are left as they are.
type UpdateScholarshipCommand struct {
	ScholarshipID  string
	ActorID        string
	Status         scholarship.Status
	SlotsAvailable *int
	Deadline       *time.Time
}

// Validate validates the command.
func (c UpdateScholarshipCommand) Validate() error {
	return required("update_scholarship", "scholarship_id", c.ScholarshipID, "actor_id", c.ActorID)
}

// ScholarshipHandler handles program definition commands.
type ScholarshipHandler struct {
	exec  *Executor
	clock shared.Clock
}

// NewScholarshipHandler creates a new handler.
func NewScholarshipHandler(exec *Executor, clock shared.Clock) *ScholarshipHandler {
	return &ScholarshipHandler{exec: exec, clock: clockOrSystem(clock)}
}

// Create stores a new program definition.
func (h *ScholarshipHandler) Create(ctx context.Context, cmd CreateScholarshipCommand) (*scholarship.Scholarship, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var created *scholarship.Scholarship
	err := h.exec.Execute(ctx, "create_scholarship", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		s, err := scholarship.New(scholarship.NewParams{
			ID:                h.exec.NewID(),
			Name:              cmd.Name,
			Description:       cmd.Description,
			Type:              cmd.Type,
			Amount:            cmd.Amount,
			SlotsAvailable:    cmd.SlotsAvailable,
			Deadline:          cmd.Deadline,
			RequiredDocuments: cmd.RequiredDocuments,
			Criteria:          cmd.Criteria,
			Status:            cmd.Status,
		}, h.clock.Now())
		if err != nil {
			return shared.Changes{}, err
		}
		if err := repos.Scholarships.Create(ctx, s); err != nil {
			return shared.Changes{}, fmt.Errorf("create_scholarship: save: %w", err)
		}

		var changes shared.Changes
		changes.Audit(cmd.ActorID, "create", "scholarship", s.ID, nil, map[string]any{
			"name":   s.Name,
			"type":   string(s.Type),
			"slots":  s.SlotsAvailable,
			"status": string(s.Status),
		})
		changes.Emit(shared.NewScholarshipChangedEvent(s.ID, string(s.Status), s.UpdatedAt))
		created = s
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update applies cmd to an existing program.
func (h *ScholarshipHandler) Update(ctx context.Context, cmd UpdateScholarshipCommand) (*scholarship.Scholarship, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var updated *scholarship.Scholarship
	err := h.exec.Execute(ctx, "update_scholarship", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		s, err := repos.Scholarships.GetByID(ctx, cmd.ScholarshipID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("update_scholarship: load: %w", err)
		}
		old := map[string]any{"status": string(s.Status), "slots": s.SlotsAvailable, "deadline": s.Deadline}
		now := h.clock.Now()

		if cmd.Status != "" {
			if err := s.SetStatus(cmd.Status, now); err != nil {
				return shared.Changes{}, err
			}
		}
		if cmd.SlotsAvailable != nil || cmd.Deadline != nil {
			slots, deadline := s.SlotsAvailable, s.Deadline
			if cmd.SlotsAvailable != nil {
				slots = *cmd.SlotsAvailable
			}
			if cmd.Deadline != nil {
				deadline = *cmd.Deadline
			}
			approved, err := repos.Applications.CountApproved(ctx, s.ID)
			if err != nil {
				return shared.Changes{}, fmt.Errorf("update_scholarship: count approved: %w", err)
			}
			if err := s.Revise(slots, deadline, approved, now); err != nil {
				return shared.Changes{}, err
			}
		}

		if err := repos.Scholarships.Update(ctx, s); err != nil {
			return shared.Changes{}, fmt.Errorf("update_scholarship: save: %w", err)
		}

		var changes shared.Changes
		changes.Audit(cmd.ActorID, "update", "scholarship", s.ID, old,
			map[string]any{"status": string(s.Status), "slots": s.SlotsAvailable, "deadline": s.Deadline})
		changes.Emit(shared.NewScholarshipChangedEvent(s.ID, string(s.Status), now))
		updated = s
		return changes, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
