package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationRepository implements application.Repository.
type ApplicationRepository struct {
	q Querier
}

// NewApplicationRepository creates a repository over a pool or a transaction.
func NewApplicationRepository(q Querier) *ApplicationRepository {
	return &ApplicationRepository{q: q}
}

const applicationColumns = `
	id, student_id, scholarship_id, status, priority, reviewer_id,
	applied_at, approved_at, rejected_at, uploaded_documents, evaluation_score,
	interview_id, stipend_status, amount_received, academic_year, semester,
	purpose, remarks, archived_at, version, created_at, updated_at`

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, a *application.Application) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		a.ID, a.StudentID, a.ScholarshipID, string(a.Status), string(a.Priority), a.ReviewerID,
		a.AppliedAt, a.ApprovedAt, a.RejectedAt, nonNilStrings(a.UploadedDocuments), a.EvaluationScore,
		a.InterviewID, string(a.StipendStatus), a.AmountReceived, string(a.AcademicYear), string(a.Semester),
		a.Purpose, a.Remarks, a.ArchivedAt, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return classify("application.Create", err)
	}
	return nil
}

// Update saves a when the stored version equals expectedVersion and bumps
// a.Version. StudentID and ScholarshipID are never rewritten.
func (r *ApplicationRepository) Update(ctx context.Context, a *application.Application, expectedVersion int) error {
	const op = "application.Update"
	tag, err := r.q.Exec(ctx, `
		UPDATE applications SET
			status = $3, priority = $4, reviewer_id = $5,
			applied_at = $6, approved_at = $7, rejected_at = $8,
			uploaded_documents = $9, evaluation_score = $10, interview_id = $11,
			stipend_status = $12, amount_received = $13, academic_year = $14, semester = $15,
			purpose = $16, remarks = $17, archived_at = $18, updated_at = $19,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		a.ID, expectedVersion,
		string(a.Status), string(a.Priority), a.ReviewerID,
		a.AppliedAt, a.ApprovedAt, a.RejectedAt,
		nonNilStrings(a.UploadedDocuments), a.EvaluationScore, a.InterviewID,
		string(a.StipendStatus), a.AmountReceived, string(a.AcademicYear), string(a.Semester),
		a.Purpose, a.Remarks, a.ArchivedAt, a.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.q, op, "applications", "application", a.ID, expectedVersion)
	}
	a.Version = expectedVersion + 1
	return nil
}

// GetByID returns one application.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*application.Application, error) {
	row := r.q.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	a, err := scanApplication(row)
	if IsNoRows(err) {
		return nil, notFound("application.GetByID", "application", id)
	}
	if err != nil {
		return nil, classify("application.GetByID", err)
	}
	return a, nil
}

// List returns applications matching filter, newest first.
func (r *ApplicationRepository) List(ctx context.Context, filter application.ListFilter) ([]*application.Application, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.StudentID != "" {
		add("student_id = $%d", filter.StudentID)
	}
	if filter.ScholarshipID != "" {
		add("scholarship_id = $%d", filter.ScholarshipID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if !filter.IncludeArchived {
		where = append(where, "archived_at IS NULL")
	}

	query := `SELECT ` + applicationColumns + ` FROM applications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("application.List", err)
	}
	defer rows.Close()

	var out []*application.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, classify("application.List", err)
		}
		out = append(out, a)
	}
	return out, classify("application.List", rows.Err())
}

// CountApproved counts live approved applications of a scholarship. Inside
// a transaction it first takes a per-scholarship advisory lock, so approvals
// against the same slots serialise until commit and each count sees the
// approvals committed before it.
func (r *ApplicationRepository) CountApproved(ctx context.Context, scholarshipID string) (int, error) {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('scholarship:' || $1))`, scholarshipID); err != nil {
		return 0, classify("application.CountApproved", err)
	}
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM applications
		WHERE scholarship_id = $1 AND status = $2 AND archived_at IS NULL`,
		scholarshipID, string(application.StatusApproved),
	).Scan(&n)
	if err != nil {
		return 0, classify("application.CountApproved", err)
	}
	return n, nil
}

func scanApplication(row pgx.Row) (*application.Application, error) {
	var (
		a                                    application.Application
		status, priority, stipend, year, sem string
		amount                               decimal.Decimal
	)
	err := row.Scan(
		&a.ID, &a.StudentID, &a.ScholarshipID, &status, &priority, &a.ReviewerID,
		&a.AppliedAt, &a.ApprovedAt, &a.RejectedAt, &a.UploadedDocuments, &a.EvaluationScore,
		&a.InterviewID, &stipend, &amount, &year, &sem,
		&a.Purpose, &a.Remarks, &a.ArchivedAt, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = application.Status(status)
	a.Priority = application.Priority(priority)
	a.StipendStatus = payment.Status(stipend)
	a.AmountReceived = amount
	a.AcademicYear = shared.AcademicYear(year)
	a.Semester = shared.Semester(sem)
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DocumentRepository implements document.Repository.
type DocumentRepository struct {
	q Querier
}

// NewDocumentRepository creates a repository over a pool or a transaction.
func NewDocumentRepository(q Querier) *DocumentRepository {
	return &DocumentRepository{q: q}
}

const documentColumns = `
	id, application_id, type, status, file_ref, original_name,
	verified_by, verified_at, rejection_reason, uploaded_at, updated_at, version`

// Create inserts a document.
func (r *DocumentRepository) Create(ctx context.Context, d *document.Document) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.ApplicationID, string(d.Type), string(d.Status), d.FileRef, d.OriginalName,
		d.VerifiedBy, d.VerifiedAt, d.RejectionReason, d.UploadedAt, d.UpdatedAt, d.Version,
	)
	return classify("document.Create", err)
}

// Update saves d when the stored version equals expectedVersion.
func (r *DocumentRepository) Update(ctx context.Context, d *document.Document, expectedVersion int) error {
	const op = "document.Update"
	tag, err := r.q.Exec(ctx, `
		UPDATE documents SET
			status = $3, file_ref = $4, original_name = $5, verified_by = $6,
			verified_at = $7, rejection_reason = $8, updated_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		d.ID, expectedVersion,
		string(d.Status), d.FileRef, d.OriginalName, d.VerifiedBy,
		d.VerifiedAt, d.RejectionReason, d.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.q, op, "documents", "document", d.ID, expectedVersion)
	}
	d.Version = expectedVersion + 1
	return nil
}

// GetByID returns one document.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*document.Document, error) {
	d, err := scanDocument(r.q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("document.GetByID", "document", id)
	}
	if err != nil {
		return nil, classify("document.GetByID", err)
	}
	return d, nil
}

// ListByApplication returns an application's documents in upload order.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID string) ([]document.Document, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE application_id = $1
		ORDER BY uploaded_at, id`, applicationID)
	if err != nil {
		return nil, classify("document.ListByApplication", err)
	}
	defer rows.Close()

	var out []document.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, classify("document.ListByApplication", err)
		}
		out = append(out, *d)
	}
	return out, classify("document.ListByApplication", rows.Err())
}

func scanDocument(row pgx.Row) (*document.Document, error) {
	var (
		d           document.Document
		typ, status string
	)
	err := row.Scan(
		&d.ID, &d.ApplicationID, &typ, &status, &d.FileRef, &d.OriginalName,
		&d.VerifiedBy, &d.VerifiedAt, &d.RejectionReason, &d.UploadedAt, &d.UpdatedAt, &d.Version,
	)
	if err != nil {
		return nil, err
	}
	d.Type = document.Type(typ)
	d.Status = document.Status(status)
	return &d, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// missingOrStale tells a version mismatch apart from a missing row after an
// optimistic update matched nothing.
func missingOrStale(ctx context.Context, q Querier, op, table, entity, id string, expected int) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return classify(op, err)
	}
	if !exists {
		return notFound(op, entity, id)
	}
	return conflict(op, entity, id, expected)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
