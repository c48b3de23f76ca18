package command

import (
	"context"
	"fmt"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER DOCUMENT
// Records an upload already stored by the file store and links it to the
// application.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterDocumentCommand contains the data of one upload.
type RegisterDocumentCommand struct {
	ApplicationID string
	Type          document.Type

	// FileRef is the key returned by the file store.
	FileRef      string
	OriginalName string
	UploaderID   string
}

// Validate validates the command.
func (c RegisterDocumentCommand) Validate() error {
	return required("register_document",
		"application_id", c.ApplicationID,
		"type", string(c.Type),
		"file_ref", c.FileRef,
		"uploader_id", c.UploaderID,
	)
}

// DocumentResult is returned by the document commands.
type DocumentResult struct {
	Document *document.Document
}

// RegisterDocumentHandler handles RegisterDocumentCommand.
type RegisterDocumentHandler struct {
	exec  *Executor
	clock shared.Clock
}

// NewRegisterDocumentHandler creates a new handler.
func NewRegisterDocumentHandler(exec *Executor, clock shared.Clock) *RegisterDocumentHandler {
	return &RegisterDocumentHandler{exec: exec, clock: clockOrSystem(clock)}
}

// Handle registers the document.
func (h *RegisterDocumentHandler) Handle(ctx context.Context, cmd RegisterDocumentCommand) (*DocumentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *DocumentResult
	err := h.exec.Execute(ctx, "register_document", func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		now := h.clock.Now()
		app, err := repos.Applications.GetByID(ctx, cmd.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("register_document: load application: %w", err)
		}
		sch, err := repos.Scholarships.GetByID(ctx, app.ScholarshipID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("register_document: load scholarship: %w", err)
		}

		out, err := document.New(document.NewParams{
			ID:            h.exec.NewID(),
			ApplicationID: app.ID,
			Type:          cmd.Type,
			FileRef:       cmd.FileRef,
			OriginalName:  cmd.OriginalName,
			UploaderID:    cmd.UploaderID,
			StudentID:     app.StudentID,
		}, sch.RequiredDocuments, now)
		if err != nil {
			return shared.Changes{}, err
		}
		next, err := app.AttachDocument(out.Document.ID, now)
		if err != nil {
			return shared.Changes{}, err
		}

		if err := repos.Documents.Create(ctx, out.Document); err != nil {
			return shared.Changes{}, fmt.Errorf("register_document: save document: %w", err)
		}
		if err := repos.Applications.Update(ctx, next, app.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("register_document: save application: %w", err)
		}
		result = &DocumentResult{Document: out.Document}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW DOCUMENT
// Staff verify or reject a pending document.
// ══════════════════════════════════════════════════════════════════════════════

// ReviewDocumentCommand verifies a document, or rejects it when Reject is set.
type ReviewDocumentCommand struct {
	DocumentID string
	ActorID    string
	Reject     bool

	// Reason is required for rejections.
	Reason string
}

// Validate validates the command.
func (c ReviewDocumentCommand) Validate() error {
	return required("review_document", "document_id", c.DocumentID, "actor_id", c.ActorID)
}

// ReviewDocumentHandler handles ReviewDocumentCommand.
type ReviewDocumentHandler struct {
	exec  *Executor
	clock shared.Clock
}

// NewReviewDocumentHandler creates a new handler.
func NewReviewDocumentHandler(exec *Executor, clock shared.Clock) *ReviewDocumentHandler {
	return &ReviewDocumentHandler{exec: exec, clock: clockOrSystem(clock)}
}

// Handle applies the review.
func (h *ReviewDocumentHandler) Handle(ctx context.Context, cmd ReviewDocumentCommand) (*DocumentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	name := "verify_document"
	if cmd.Reject {
		name = "reject_document"
	}

	var result *DocumentResult
	err := h.exec.Execute(ctx, name, func(ctx context.Context, repos Repositories) (shared.Changes, error) {
		doc, err := repos.Documents.GetByID(ctx, cmd.DocumentID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load: %w", name, err)
		}
		app, err := repos.Applications.GetByID(ctx, doc.ApplicationID)
		if err != nil {
			return shared.Changes{}, fmt.Errorf("%s: load application: %w", name, err)
		}

		var out *document.Outcome
		if cmd.Reject {
			out, err = doc.Reject(cmd.ActorID, app.StudentID, cmd.Reason, h.clock.Now())
		} else {
			out, err = doc.Verify(cmd.ActorID, app.StudentID, h.clock.Now())
		}
		if err != nil {
			return shared.Changes{}, err
		}

		if err := repos.Documents.Update(ctx, out.Document, doc.Version); err != nil {
			return shared.Changes{}, fmt.Errorf("%s: save: %w", name, err)
		}
		result = &DocumentResult{Document: out.Document}
		return out.Changes, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func clockOrSystem(c shared.Clock) shared.Clock {
	if c == nil {
		return shared.SystemClock()
	}
	return c
}
