package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVIEW REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// InterviewRepository implements interview.Repository.
type InterviewRepository struct {
	q Querier
}

// NewInterviewRepository creates a repository over a pool or a transaction.
func NewInterviewRepository(q Querier) *InterviewRepository {
	return &InterviewRepository{q: q}
}

const interviewColumns = `
	id, application_id, student_id, interviewer_id, scheduled_at, location, type,
	status, scores, total_score, recommendation, reschedule_history, notes, remarks,
	completed_at, version, created_at, updated_at`

// Create inserts an interview.
func (r *InterviewRepository) Create(ctx context.Context, iv *interview.Interview) error {
	history, err := json.Marshal(nonNilHistory(iv.RescheduleHistory))
	if err != nil {
		return fmt.Errorf("marshal reschedule history: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO interviews (`+interviewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		iv.ID, iv.ApplicationID, iv.StudentID, iv.InterviewerID, iv.ScheduledAt, iv.Location, string(iv.Type),
		string(iv.Status), nonNilScores(iv.Scores), iv.TotalScore, string(iv.Recommendation), history, iv.Notes, iv.Remarks,
		iv.CompletedAt, iv.Version, iv.CreatedAt, iv.UpdatedAt,
	)
	return classify("interview.Create", err)
}

// Update saves iv when the stored version equals expectedVersion.
func (r *InterviewRepository) Update(ctx context.Context, iv *interview.Interview, expectedVersion int) error {
	const op = "interview.Update"
	history, err := json.Marshal(nonNilHistory(iv.RescheduleHistory))
	if err != nil {
		return fmt.Errorf("marshal reschedule history: %w", err)
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE interviews SET
			interviewer_id = $3, scheduled_at = $4, location = $5, type = $6, status = $7,
			scores = $8, total_score = $9, recommendation = $10, reschedule_history = $11,
			notes = $12, remarks = $13, completed_at = $14, updated_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		iv.ID, expectedVersion,
		iv.InterviewerID, iv.ScheduledAt, iv.Location, string(iv.Type), string(iv.Status),
		nonNilScores(iv.Scores), iv.TotalScore, string(iv.Recommendation), history,
		iv.Notes, iv.Remarks, iv.CompletedAt, iv.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.q, op, "interviews", "interview", iv.ID, expectedVersion)
	}
	iv.Version = expectedVersion + 1
	return nil
}

// GetByID returns one interview.
func (r *InterviewRepository) GetByID(ctx context.Context, id string) (*interview.Interview, error) {
	iv, err := scanInterview(r.q.QueryRow(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("interview.GetByID", "interview", id)
	}
	if err != nil {
		return nil, classify("interview.GetByID", err)
	}
	return iv, nil
}

// ListByInterviewer returns the interviewer's interviews scheduled in
// [from, to]. Inside a transaction it also takes a per-interviewer advisory
// lock, so two schedulers for the same interviewer serialise until commit.
func (r *InterviewRepository) ListByInterviewer(ctx context.Context, interviewerID string, from, to time.Time) ([]*interview.Interview, error) {
	const op = "interview.ListByInterviewer"
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('interviewer:' || $1))`, interviewerID); err != nil {
		return nil, classify(op, err)
	}
	return r.list(ctx, op, `
		SELECT `+interviewColumns+` FROM interviews
		WHERE interviewer_id = $1 AND scheduled_at BETWEEN $2 AND $3
		ORDER BY scheduled_at`, interviewerID, from, to)
}

// ListByApplication returns an application's interviews, oldest first.
func (r *InterviewRepository) ListByApplication(ctx context.Context, applicationID string) ([]*interview.Interview, error) {
	return r.list(ctx, "interview.ListByApplication", `
		SELECT `+interviewColumns+` FROM interviews
		WHERE application_id = $1
		ORDER BY created_at, id`, applicationID)
}

func (r *InterviewRepository) list(ctx context.Context, op, query string, args ...any) ([]*interview.Interview, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*interview.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, iv)
	}
	return out, classify(op, rows.Err())
}

func scanInterview(row pgx.Row) (*interview.Interview, error) {
	var (
		iv                  interview.Interview
		typ, status, recomm string
		history             []byte
	)
	err := row.Scan(
		&iv.ID, &iv.ApplicationID, &iv.StudentID, &iv.InterviewerID, &iv.ScheduledAt, &iv.Location, &typ,
		&status, &iv.Scores, &iv.TotalScore, &recomm, &history, &iv.Notes, &iv.Remarks,
		&iv.CompletedAt, &iv.Version, &iv.CreatedAt, &iv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	iv.Type = interview.Type(typ)
	iv.Status = interview.Status(status)
	iv.Recommendation = interview.Recommendation(recomm)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &iv.RescheduleHistory); err != nil {
			return nil, fmt.Errorf("decode reschedule history of %s: %w", iv.ID, err)
		}
	}
	return &iv, nil
}

func nonNilHistory(h []interview.RescheduleEntry) []interview.RescheduleEntry {
	if h == nil {
		return []interview.RescheduleEntry{}
	}
	return h
}

func nonNilScores(s []float64) []float64 {
	if s == nil {
		return []float64{}
	}
	return s
}
