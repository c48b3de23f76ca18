package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHOLARSHIP REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ScholarshipRepository implements scholarship.Repository.
type ScholarshipRepository struct {
	q Querier
}

// NewScholarshipRepository creates a repository over a pool or a transaction.
func NewScholarshipRepository(q Querier) *ScholarshipRepository {
	return &ScholarshipRepository{q: q}
}

const scholarshipColumns = `
	id, name, description, type, amount, slots_available, deadline,
	required_documents, criteria, status, created_at, updated_at`

// Create inserts a scholarship.
func (r *ScholarshipRepository) Create(ctx context.Context, s *scholarship.Scholarship) error {
	criteria, err := json.Marshal(s.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO scholarships (`+scholarshipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.Name, s.Description, string(s.Type), s.Amount, s.SlotsAvailable, nullTime(s.Deadline),
		documentTypes(s.RequiredDocuments), criteria, string(s.Status), s.CreatedAt, s.UpdatedAt,
	)
	return classify("scholarship.Create", err)
}

// Update overwrites a scholarship. Definitions are edited by staff only and
// carry no version.
func (r *ScholarshipRepository) Update(ctx context.Context, s *scholarship.Scholarship) error {
	const op = "scholarship.Update"
	criteria, err := json.Marshal(s.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE scholarships SET
			name = $2, description = $3, type = $4, amount = $5, slots_available = $6,
			deadline = $7, required_documents = $8, criteria = $9, status = $10, updated_at = $11
		WHERE id = $1`,
		s.ID, s.Name, s.Description, string(s.Type), s.Amount, s.SlotsAvailable,
		nullTime(s.Deadline), documentTypes(s.RequiredDocuments), criteria, string(s.Status), s.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op, "scholarship", s.ID)
	}
	return nil
}

// GetByID returns one scholarship.
func (r *ScholarshipRepository) GetByID(ctx context.Context, id string) (*scholarship.Scholarship, error) {
	s, err := scanScholarship(r.q.QueryRow(ctx, `SELECT `+scholarshipColumns+` FROM scholarships WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("scholarship.GetByID", "scholarship", id)
	}
	if err != nil {
		return nil, classify("scholarship.GetByID", err)
	}
	return s, nil
}

// List returns scholarships matching filter ordered by deadline.
func (r *ScholarshipRepository) List(ctx context.Context, filter scholarship.ListFilter) ([]*scholarship.Scholarship, error) {
	const op = "scholarship.List"
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	query := `SELECT ` + scholarshipColumns + ` FROM scholarships`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY deadline NULLS LAST, name`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*scholarship.Scholarship
	for rows.Next() {
		s, err := scanScholarship(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, s)
	}
	return out, classify(op, rows.Err())
}

func scanScholarship(row pgx.Row) (*scholarship.Scholarship, error) {
	var (
		s            scholarship.Scholarship
		typ, status  string
		amount       decimal.Decimal
		deadline     *time.Time
		required     []string
		criteriaJSON []byte
	)
	err := row.Scan(
		&s.ID, &s.Name, &s.Description, &typ, &amount, &s.SlotsAvailable, &deadline,
		&required, &criteriaJSON, &status, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Type = scholarship.Type(typ)
	s.Status = scholarship.Status(status)
	s.Amount = amount
	if deadline != nil {
		s.Deadline = *deadline
	}
	for _, d := range required {
		s.RequiredDocuments = append(s.RequiredDocuments, document.Type(d))
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &s.Criteria); err != nil {
			return nil, fmt.Errorf("decode criteria of %s: %w", s.ID, err)
		}
	}
	return &s, nil
}

func documentTypes(types []document.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT SNAPSHOTS
// The registrar integration pushes snapshots; eligibility reads the latest.
// ══════════════════════════════════════════════════════════════════════════════

// StudentSnapshotRepository implements student.Repository.
type StudentSnapshotRepository struct {
	q Querier
}

// NewStudentSnapshotRepository creates a repository over a pool or a transaction.
func NewStudentSnapshotRepository(q Querier) *StudentSnapshotRepository {
	return &StudentSnapshotRepository{q: q}
}

type snapshotRecord struct {
	Name                 string                   `json:"name"`
	Course               string                   `json:"course"`
	YearLevel            int                      `json:"year_level"`
	EnrollmentStatus     student.EnrollmentStatus `json:"enrollment_status"`
	Units                int                      `json:"units"`
	GWA                  float64                  `json:"gwa"`
	Grades               []student.Grade          `json:"grades,omitempty"`
	ExistingScholarships []string                 `json:"existing_scholarships,omitempty"`
	IndigencyCertificate *student.Certificate     `json:"indigency_certificate,omitempty"`
	ArtsMembershipSince  *time.Time               `json:"arts_membership_since,omitempty"`
}

// Save validates and upserts a snapshot. An older snapshot never replaces
// a newer one.
func (r *StudentSnapshotRepository) Save(ctx context.Context, s *student.Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(snapshotRecord{
		Name:                 s.Name,
		Course:               s.Course,
		YearLevel:            s.YearLevel,
		EnrollmentStatus:     s.EnrollmentStatus,
		Units:                s.Units,
		GWA:                  s.GWA,
		Grades:               s.Grades,
		ExistingScholarships: s.ExistingScholarships,
		IndigencyCertificate: s.IndigencyCertificate,
		ArtsMembershipSince:  s.ArtsMembershipSince,
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	captured := s.CapturedAt
	if captured.IsZero() {
		captured = time.Now()
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO student_snapshots (student_id, data, captured_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (student_id) DO UPDATE
		SET data = EXCLUDED.data, captured_at = EXCLUDED.captured_at, updated_at = NOW()
		WHERE student_snapshots.captured_at <= EXCLUDED.captured_at`,
		s.StudentID, data, captured,
	)
	return classify("student.Save", err)
}

// Snapshot returns the latest snapshot of a student.
func (r *StudentSnapshotRepository) Snapshot(ctx context.Context, studentID string) (*student.Snapshot, error) {
	const op = "student.Snapshot"
	var (
		data     []byte
		captured time.Time
	)
	err := r.q.QueryRow(ctx, `SELECT data, captured_at FROM student_snapshots WHERE student_id = $1`, studentID).
		Scan(&data, &captured)
	if IsNoRows(err) {
		return nil, notFound(op, "student", studentID)
	}
	if err != nil {
		return nil, classify(op, err)
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode snapshot of %s: %w", studentID, err)
	}
	return &student.Snapshot{
		StudentID:            studentID,
		Name:                 rec.Name,
		Course:               rec.Course,
		YearLevel:            rec.YearLevel,
		EnrollmentStatus:     rec.EnrollmentStatus,
		Units:                rec.Units,
		GWA:                  rec.GWA,
		Grades:               rec.Grades,
		ExistingScholarships: rec.ExistingScholarships,
		IndigencyCertificate: rec.IndigencyCertificate,
		ArtsMembershipSince:  rec.ArtsMembershipSince,
		CapturedAt:           captured,
	}, nil
}
