package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/pkg/timeutil"
)

// Calendar days (work dates, payroll periods, assignment dates) are DATE
// columns. They travel as YYYY-MM-DD text so a Manila midnight never shifts
// to the previous UTC day.

func dateArg(t time.Time) string {
	return timeutil.FormatDateStr(t)
}

func nullDateArg(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := dateArg(*t)
	return &s
}

func parseDateCol(s string) (time.Time, error) {
	t, err := timeutil.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode date %q: %w", s, err)
	}
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENTS
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentRepository implements payment.AssignmentRepository.
type AssignmentRepository struct {
	q Querier
}

// NewAssignmentRepository creates a repository over a pool or a transaction.
func NewAssignmentRepository(q Querier) *AssignmentRepository {
	return &AssignmentRepository{q: q}
}

const assignmentColumns = `
	id, application_id, student_id, office, supervisor_id, hourly_rate, work_schedule,
	status, start_date::text, end_date::text, created_at, updated_at`

// Create inserts an assignment.
func (r *AssignmentRepository) Create(ctx context.Context, a *payment.Assignment) error {
	schedule := a.WorkSchedule
	if schedule == nil {
		schedule = []payment.ScheduleSlot{}
	}
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("marshal work schedule: %w", err)
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO assignments (
			id, application_id, student_id, office, supervisor_id, hourly_rate, work_schedule,
			status, start_date, end_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date, $10::date, $11, $12)`,
		a.ID, a.ApplicationID, a.StudentID, a.Office, a.SupervisorID, a.HourlyRate, data,
		string(a.Status), dateArg(a.StartDate), nullDateArg(a.EndDate), a.CreatedAt, a.UpdatedAt,
	)
	return classify("assignment.Create", err)
}

// GetByID returns one assignment.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*payment.Assignment, error) {
	a, err := scanAssignment(r.q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("assignment.GetByID", "assignment", id)
	}
	if err != nil {
		return nil, classify("assignment.GetByID", err)
	}
	return a, nil
}

// ListActive returns every active assignment.
func (r *AssignmentRepository) ListActive(ctx context.Context) ([]*payment.Assignment, error) {
	const op = "assignment.ListActive"
	rows, err := r.q.Query(ctx, `
		SELECT `+assignmentColumns+` FROM assignments
		WHERE status = $1
		ORDER BY id`, string(payment.AssignmentActive))
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*payment.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, a)
	}
	return out, classify(op, rows.Err())
}

func scanAssignment(row pgx.Row) (*payment.Assignment, error) {
	var (
		a        payment.Assignment
		schedule []byte
		status   string
		start    string
		end      *string
	)
	err := row.Scan(
		&a.ID, &a.ApplicationID, &a.StudentID, &a.Office, &a.SupervisorID, &a.HourlyRate, &schedule,
		&status, &start, &end, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = payment.AssignmentStatus(status)
	if a.StartDate, err = parseDateCol(start); err != nil {
		return nil, err
	}
	if end != nil {
		d, err := parseDateCol(*end)
		if err != nil {
			return nil, err
		}
		a.EndDate = &d
	}
	if len(schedule) > 0 {
		if err := json.Unmarshal(schedule, &a.WorkSchedule); err != nil {
			return nil, fmt.Errorf("decode work schedule of %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WORK-HOUR LOGS
// ══════════════════════════════════════════════════════════════════════════════

// WorkLogRepository implements payment.WorkLogRepository. The one-log-per-day
// rule is the one_log_per_day constraint; its violation surfaces as
// shared.ErrAlreadyExists.
type WorkLogRepository struct {
	q Querier
}

// NewWorkLogRepository creates a repository over a pool or a transaction.
func NewWorkLogRepository(q Querier) *WorkLogRepository {
	return &WorkLogRepository{q: q}
}

const workLogColumns = `
	id, assignment_id, student_id, work_date::text, time_in, time_out, hours_worked,
	hours_approved, tasks, status, approved_by, approved_at, rejection_reason,
	payment_id, version, created_at, updated_at`

// Create inserts a work-hour log.
func (r *WorkLogRepository) Create(ctx context.Context, l *payment.WorkHourLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO work_hour_logs (
			id, assignment_id, student_id, work_date, time_in, time_out, hours_worked,
			hours_approved, tasks, status, approved_by, approved_at, rejection_reason,
			payment_id, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		l.ID, l.AssignmentID, l.StudentID, dateArg(l.WorkDate), int(l.TimeIn), int(l.TimeOut), l.HoursWorked,
		l.HoursApproved, l.Tasks, string(l.Status), l.ApprovedBy, l.ApprovedAt, l.RejectionReason,
		l.PaymentID, l.Version, l.CreatedAt, l.UpdatedAt,
	)
	return classify("worklog.Create", err)
}

// Update saves l when the stored version equals expectedVersion.
func (r *WorkLogRepository) Update(ctx context.Context, l *payment.WorkHourLog, expectedVersion int) error {
	const op = "worklog.Update"
	tag, err := r.q.Exec(ctx, `
		UPDATE work_hour_logs SET
			time_in = $3, time_out = $4, hours_worked = $5, hours_approved = $6, tasks = $7,
			status = $8, approved_by = $9, approved_at = $10, rejection_reason = $11,
			payment_id = $12, updated_at = $13,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		l.ID, expectedVersion,
		int(l.TimeIn), int(l.TimeOut), l.HoursWorked, l.HoursApproved, l.Tasks,
		string(l.Status), l.ApprovedBy, l.ApprovedAt, l.RejectionReason,
		l.PaymentID, l.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.q, op, "work_hour_logs", "work log", l.ID, expectedVersion)
	}
	l.Version = expectedVersion + 1
	return nil
}

// GetByID returns one log.
func (r *WorkLogRepository) GetByID(ctx context.Context, id string) (*payment.WorkHourLog, error) {
	l, err := scanWorkLog(r.q.QueryRow(ctx, `SELECT `+workLogColumns+` FROM work_hour_logs WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("worklog.GetByID", "work log", id)
	}
	if err != nil {
		return nil, classify("worklog.GetByID", err)
	}
	return l, nil
}

// ListByAssignment returns the logs whose work date falls in the calendar
// days of [from, to], in date order.
func (r *WorkLogRepository) ListByAssignment(ctx context.Context, assignmentID string, from, to time.Time) ([]*payment.WorkHourLog, error) {
	const op = "worklog.ListByAssignment"
	rows, err := r.q.Query(ctx, `
		SELECT `+workLogColumns+` FROM work_hour_logs
		WHERE assignment_id = $1 AND work_date BETWEEN $2::date AND $3::date
		ORDER BY work_date`,
		assignmentID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*payment.WorkHourLog
	for rows.Next() {
		l, err := scanWorkLog(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, l)
	}
	return out, classify(op, rows.Err())
}

func scanWorkLog(row pgx.Row) (*payment.WorkHourLog, error) {
	var (
		l               payment.WorkHourLog
		workDate        string
		timeIn, timeOut int
		status          string
	)
	err := row.Scan(
		&l.ID, &l.AssignmentID, &l.StudentID, &workDate, &timeIn, &timeOut, &l.HoursWorked,
		&l.HoursApproved, &l.Tasks, &status, &l.ApprovedBy, &l.ApprovedAt, &l.RejectionReason,
		&l.PaymentID, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if l.WorkDate, err = parseDateCol(workDate); err != nil {
		return nil, err
	}
	l.TimeIn = timeutil.ClockTime(timeIn)
	l.TimeOut = timeutil.ClockTime(timeOut)
	l.Status = payment.LogStatus(status)
	return &l, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

// PaymentRepository implements payment.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a repository over a pool or a transaction.
func NewPaymentRepository(q Querier) *PaymentRepository {
	return &PaymentRepository{q: q}
}

const paymentColumns = `
	id, assignment_id, student_id, period_start::text, period_end::text, total_hours,
	hourly_rate, gross_amount, deductions, net_amount, ` + disbursementColumns

const disbursementColumns = `status, processed_by, processed_at, released_at,
	payment_reference, remarks, annotations, version, created_at, updated_at`

// Create inserts a payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	notes, err := marshalAnnotations(p.Annotations)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO payments (
			id, assignment_id, student_id, period_start, period_end, total_hours,
			hourly_rate, gross_amount, deductions, net_amount, `+disbursementColumns+`
		) VALUES ($1, $2, $3, $4::date, $5::date, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		p.ID, p.AssignmentID, p.StudentID, dateArg(p.PeriodStart), dateArg(p.PeriodEnd), p.TotalHours,
		p.HourlyRate, p.GrossAmount, p.Deductions, p.NetAmount,
		string(p.Status), p.ProcessedBy, p.ProcessedAt, p.ReleasedAt,
		p.PaymentReference, p.Remarks, notes, p.Version, p.CreatedAt, p.UpdatedAt,
	)
	return classify("payment.Create", err)
}

// Update saves p when the stored version equals expectedVersion. Amounts
// are rewritten so pre-release recalculation persists.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment, expectedVersion int) error {
	const op = "payment.Update"
	notes, err := marshalAnnotations(p.Annotations)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE payments SET
			total_hours = $3, hourly_rate = $4, gross_amount = $5, deductions = $6, net_amount = $7,
			status = $8, processed_by = $9, processed_at = $10, released_at = $11,
			payment_reference = $12, remarks = $13, annotations = $14, updated_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		p.ID, expectedVersion,
		p.TotalHours, p.HourlyRate, p.GrossAmount, p.Deductions, p.NetAmount,
		string(p.Status), p.ProcessedBy, p.ProcessedAt, p.ReleasedAt,
		p.PaymentReference, p.Remarks, notes, p.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.q, op, "payments", "payment", p.ID, expectedVersion)
	}
	p.Version = expectedVersion + 1
	return nil
}

// GetByID returns one payment.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("payment.GetByID", "payment", id)
	}
	if err != nil {
		return nil, classify("payment.GetByID", err)
	}
	return p, nil
}

// ListByAssignment returns an assignment's payments by period. Inside a
// transaction it takes a per-assignment advisory lock first, so payroll runs
// for one assignment serialise and each sees the payments committed before
// it. uq_payments_live_period backs the same rule for identical periods.
func (r *PaymentRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]*payment.Payment, error) {
	const op = "payment.ListByAssignment"
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('assignment:' || $1))`, assignmentID); err != nil {
		return nil, classify(op, err)
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE assignment_id = $1
		ORDER BY period_start, id`, assignmentID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*payment.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, p)
	}
	return out, classify(op, rows.Err())
}

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p          payment.Payment
		start, end string
		d          disbursementRow
	)
	dest := []any{
		&p.ID, &p.AssignmentID, &p.StudentID, &start, &end, &p.TotalHours,
		&p.HourlyRate, &p.GrossAmount, &p.Deductions, &p.NetAmount,
	}
	if err := row.Scan(append(dest, d.dest(&p.Disbursement)...)...); err != nil {
		return nil, err
	}
	var err error
	if p.PeriodStart, err = parseDateCol(start); err != nil {
		return nil, err
	}
	if p.PeriodEnd, err = parseDateCol(end); err != nil {
		return nil, err
	}
	if err := d.apply(&p.Disbursement); err != nil {
		return nil, fmt.Errorf("payment %s: %w", p.ID, err)
	}
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STIPENDS
// ══════════════════════════════════════════════════════════════════════════════

// StipendRepository implements payment.StipendRepository.
type StipendRepository struct {
	q Querier
}

// NewStipendRepository creates a repository over a pool or a transaction.
func NewStipendRepository(q Querier) *StipendRepository {
	return &StipendRepository{q: q}
}

const stipendColumns = `
	id, application_id, student_id, scholarship_type, month, year, amount, ` + disbursementColumns

// Create inserts a stipend.
func (r *StipendRepository) Create(ctx context.Context, s *payment.Stipend) error {
	notes, err := marshalAnnotations(s.Annotations)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO stipends (`+stipendColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		s.ID, s.ApplicationID, s.StudentID, string(s.ScholarshipType), int(s.Month), s.Year, s.Amount,
		string(s.Status), s.ProcessedBy, s.ProcessedAt, s.ReleasedAt,
		s.PaymentReference, s.Remarks, notes, s.Version, s.CreatedAt, s.UpdatedAt,
	)
	return classify("stipend.Create", err)
}

// Update saves s when the stored version equals expectedVersion.
func (r *StipendRepository) Update(ctx context.Context, s *payment.Stipend, expectedVersion int) error {
	const op = "stipend.Update"
	notes, err := marshalAnnotations(s.Annotations)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE stipends SET
			amount = $3, status = $4, processed_by = $5, processed_at = $6, released_at = $7,
			payment_reference = $8, remarks = $9, annotations = $10, updated_at = $11,
			version = version + 1
		WHERE id = $1 AND version = $2`,
		s.ID, expectedVersion,
		s.Amount, string(s.Status), s.ProcessedBy, s.ProcessedAt, s.ReleasedAt,
		s.PaymentReference, s.Remarks, notes, s.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return missingOrStale(ctx, r.q, op, "stipends", "stipend", s.ID, expectedVersion)
	}
	s.Version = expectedVersion + 1
	return nil
}

// GetByID returns one stipend.
func (r *StipendRepository) GetByID(ctx context.Context, id string) (*payment.Stipend, error) {
	s, err := scanStipend(r.q.QueryRow(ctx, `SELECT `+stipendColumns+` FROM stipends WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, notFound("stipend.GetByID", "stipend", id)
	}
	if err != nil {
		return nil, classify("stipend.GetByID", err)
	}
	return s, nil
}

// ListByApplication returns an application's stipends by month.
func (r *StipendRepository) ListByApplication(ctx context.Context, applicationID string) ([]*payment.Stipend, error) {
	const op = "stipend.ListByApplication"
	rows, err := r.q.Query(ctx, `
		SELECT `+stipendColumns+` FROM stipends
		WHERE application_id = $1
		ORDER BY year, month, id`, applicationID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*payment.Stipend
	for rows.Next() {
		s, err := scanStipend(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		out = append(out, s)
	}
	return out, classify(op, rows.Err())
}

func scanStipend(row pgx.Row) (*payment.Stipend, error) {
	var (
		s     payment.Stipend
		typ   string
		month int
		d     disbursementRow
	)
	dest := []any{&s.ID, &s.ApplicationID, &s.StudentID, &typ, &month, &s.Year, &s.Amount}
	if err := row.Scan(append(dest, d.dest(&s.Disbursement)...)...); err != nil {
		return nil, err
	}
	s.ScholarshipType = scholarship.Type(typ)
	s.Month = time.Month(month)
	if err := d.apply(&s.Disbursement); err != nil {
		return nil, fmt.Errorf("stipend %s: %w", s.ID, err)
	}
	return &s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DISBURSEMENT COLUMNS
// ══════════════════════════════════════════════════════════════════════════════

// disbursementRow holds the columns that need decoding after Scan.
type disbursementRow struct {
	status      string
	annotations []byte
}

func (r *disbursementRow) dest(d *payment.Disbursement) []any {
	return []any{
		&r.status, &d.ProcessedBy, &d.ProcessedAt, &d.ReleasedAt,
		&d.PaymentReference, &d.Remarks, &r.annotations, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	}
}

func (r *disbursementRow) apply(d *payment.Disbursement) error {
	d.Status = payment.Status(r.status)
	if len(r.annotations) > 0 {
		if err := json.Unmarshal(r.annotations, &d.Annotations); err != nil {
			return fmt.Errorf("decode annotations: %w", err)
		}
	}
	return nil
}

func marshalAnnotations(a []payment.Annotation) ([]byte, error) {
	if a == nil {
		a = []payment.Annotation{}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal annotations: %w", err)
	}
	return data, nil
}
