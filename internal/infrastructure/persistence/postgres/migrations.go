package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps every failure to apply or revert a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string

	// Set by Status.
	AppliedAt *time.Time
}

// GetMigrations returns the embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_catalog", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_applications", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_disbursements", UpSQL: migration003Up, DownSQL: migration003Down},
		{Version: 4, Name: "create_outbox", UpSQL: migration004Up, DownSQL: migration004Down},
		{Version: 5, Name: "unique_live_records", UpSQL: migration005Up, DownSQL: migration005Down},
	}
}

// Migrator applies the embedded migrations, one transaction each, and
// records them in schema_migrations. Concurrent starts of the API and the
// worker serialise on an advisory lock.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// migrationLock is the advisory lock key held while migrating.
const migrationLock int64 = 0x05A5_0001

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	migs := GetMigrations()
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return &Migrator{conn: conn, migrations: migs}
}

const createMigrationTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func (m *Migrator) applied(ctx context.Context, q Querier) (map[int]time.Time, error) {
	if _, err := q.Exec(ctx, createMigrationTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		done[version] = at
	}
	return done, rows.Err()
}

// Migrate applies every pending migration and returns how many it applied.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	count := 0
	err := m.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return err
		}
		done, err := m.applied(ctx, tx)
		if err != nil {
			return err
		}
		for _, mig := range m.migrations {
			if _, ok := done[mig.Version]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("version %d (%s): %w", mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return count, nil
}

// Rollback reverts the newest applied migration. It is a no-op on an empty
// schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	err := m.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
			return err
		}
		done, err := m.applied(ctx, tx)
		if err != nil {
			return err
		}
		for i := len(m.migrations) - 1; i >= 0; i-- {
			mig := m.migrations[i]
			if _, ok := done[mig.Version]; !ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("version %d (%s): %w", mig.Version, mig.Name, err)
			}
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return nil
}

// Status returns every embedded migration with AppliedAt set for the applied
// ones.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	done, err := m.applied(ctx, m.conn)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].AppliedAt = &at
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG
// Scholarships, registrar snapshots and the funds that pay them.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS scholarships (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type VARCHAR(40) NOT NULL,
    amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    slots_available INTEGER NOT NULL DEFAULT 0,
    deadline TIMESTAMPTZ,
    required_documents TEXT[] NOT NULL DEFAULT '{}',
    criteria JSONB NOT NULL DEFAULT '{}'::jsonb,
    status VARCHAR(20) NOT NULL DEFAULT 'upcoming',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_scholarship_type CHECK (type IN (
        'academic_full', 'academic_partial', 'student_assistantship',
        'performing_arts_full', 'performing_arts_partial', 'economic_assistance')),
    CONSTRAINT valid_scholarship_status CHECK (status IN ('open', 'closed', 'upcoming')),
    CONSTRAINT valid_slots CHECK (slots_available >= 0),
    CONSTRAINT valid_amount CHECK (amount >= 0)
);

CREATE INDEX IF NOT EXISTS idx_scholarships_status ON scholarships(status);
CREATE INDEX IF NOT EXISTS idx_scholarships_type ON scholarships(type);

-- Latest registrar snapshot per student. The document is the JSON form of
-- student.Snapshot.
CREATE TABLE IF NOT EXISTS student_snapshots (
    student_id VARCHAR(64) PRIMARY KEY,
    data JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- One fund per scholarship type. Disbursements never take a balance negative.
CREATE TABLE IF NOT EXISTS funds (
    scholarship_type VARCHAR(40) PRIMARY KEY,
    balance NUMERIC(14,2) NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT non_negative_balance CHECK (balance >= 0)
);

CREATE TABLE IF NOT EXISTS fund_ledger (
    id BIGSERIAL PRIMARY KEY,
    scholarship_type VARCHAR(40) NOT NULL REFERENCES funds(scholarship_type),
    amount NUMERIC(14,2) NOT NULL,
    balance_after NUMERIC(14,2) NOT NULL,
    reference VARCHAR(120) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fund_ledger_type ON fund_ledger(scholarship_type, created_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS fund_ledger;
DROP TABLE IF EXISTS funds;
DROP TABLE IF EXISTS student_snapshots;
DROP TABLE IF EXISTS scholarships;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS applications (
    id VARCHAR(64) PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL,
    scholarship_id VARCHAR(64) NOT NULL REFERENCES scholarships(id),
    status VARCHAR(30) NOT NULL,
    priority VARCHAR(20) NOT NULL DEFAULT 'normal',
    reviewer_id VARCHAR(64) NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ,
    approved_at TIMESTAMPTZ,
    rejected_at TIMESTAMPTZ,
    uploaded_documents TEXT[] NOT NULL DEFAULT '{}',
    evaluation_score DOUBLE PRECISION,
    interview_id VARCHAR(64) NOT NULL DEFAULT '',
    stipend_status VARCHAR(20) NOT NULL DEFAULT '',
    amount_received NUMERIC(14,2) NOT NULL DEFAULT 0,
    academic_year VARCHAR(9) NOT NULL,
    semester VARCHAR(10) NOT NULL,
    purpose TEXT NOT NULL DEFAULT '',
    remarks TEXT NOT NULL DEFAULT '',
    archived_at TIMESTAMPTZ,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_application_status CHECK (status IN (
        'draft', 'submitted', 'under_verification', 'incomplete', 'verified',
        'under_evaluation', 'approved', 'rejected', 'end')),
    CONSTRAINT valid_semester CHECK (semester IN ('first', 'second', 'summer'))
);

CREATE INDEX IF NOT EXISTS idx_applications_student ON applications(student_id);
CREATE INDEX IF NOT EXISTS idx_applications_scholarship_status ON applications(scholarship_id, status);
CREATE INDEX IF NOT EXISTS idx_applications_live ON applications(status, updated_at DESC) WHERE archived_at IS NULL;

CREATE TABLE IF NOT EXISTS documents (
    id VARCHAR(64) PRIMARY KEY,
    application_id VARCHAR(64) NOT NULL REFERENCES applications(id),
    type VARCHAR(40) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    file_ref TEXT NOT NULL,
    original_name TEXT NOT NULL DEFAULT '',
    verified_by VARCHAR(64) NOT NULL DEFAULT '',
    verified_at TIMESTAMPTZ,
    rejection_reason TEXT NOT NULL DEFAULT '',
    uploaded_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,

    CONSTRAINT valid_document_status CHECK (status IN ('pending', 'verified', 'rejected'))
);

CREATE INDEX IF NOT EXISTS idx_documents_application ON documents(application_id, uploaded_at);

CREATE TABLE IF NOT EXISTS interviews (
    id VARCHAR(64) PRIMARY KEY,
    application_id VARCHAR(64) NOT NULL REFERENCES applications(id),
    student_id VARCHAR(64) NOT NULL,
    interviewer_id VARCHAR(64) NOT NULL,
    scheduled_at TIMESTAMPTZ NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    type VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL,
    scores DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
    total_score DOUBLE PRECISION,
    recommendation VARCHAR(20) NOT NULL DEFAULT '',
    reschedule_history JSONB NOT NULL DEFAULT '[]'::jsonb,
    notes TEXT NOT NULL DEFAULT '',
    remarks TEXT NOT NULL DEFAULT '',
    completed_at TIMESTAMPTZ,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_interview_status CHECK (status IN ('scheduled', 'rescheduled', 'completed', 'cancelled', 'no_show'))
);

CREATE INDEX IF NOT EXISTS idx_interviews_interviewer_time ON interviews(interviewer_id, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_interviews_application ON interviews(application_id);
`

const migration002Down = `
DROP TABLE IF EXISTS interviews;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS applications;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: DISBURSEMENTS
// Assistantship assignments, work-hour logs, payroll payments and stipends.
// Dates are Manila calendar days stored as DATE.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS assignments (
    id VARCHAR(64) PRIMARY KEY,
    application_id VARCHAR(64) NOT NULL REFERENCES applications(id),
    student_id VARCHAR(64) NOT NULL,
    office VARCHAR(200) NOT NULL,
    supervisor_id VARCHAR(64) NOT NULL,
    hourly_rate NUMERIC(10,2) NOT NULL,
    work_schedule JSONB NOT NULL DEFAULT '[]'::jsonb,
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    start_date DATE NOT NULL,
    end_date DATE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_assignment_status CHECK (status IN ('active', 'completed', 'terminated')),
    CONSTRAINT positive_rate CHECK (hourly_rate > 0)
);

CREATE INDEX IF NOT EXISTS idx_assignments_active ON assignments(id) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS work_hour_logs (
    id VARCHAR(64) PRIMARY KEY,
    assignment_id VARCHAR(64) NOT NULL REFERENCES assignments(id),
    student_id VARCHAR(64) NOT NULL,
    work_date DATE NOT NULL,
    time_in SMALLINT NOT NULL,
    time_out SMALLINT NOT NULL,
    hours_worked NUMERIC(5,2) NOT NULL,
    hours_approved NUMERIC(5,2),
    tasks TEXT NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    approved_by VARCHAR(64) NOT NULL DEFAULT '',
    approved_at TIMESTAMPTZ,
    rejection_reason TEXT NOT NULL DEFAULT '',
    payment_id VARCHAR(64) NOT NULL DEFAULT '',
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT one_log_per_day UNIQUE (assignment_id, work_date),
    CONSTRAINT valid_clock CHECK (time_in BETWEEN 0 AND 1439 AND time_out BETWEEN 0 AND 1439),
    CONSTRAINT valid_log_status CHECK (status IN ('pending', 'approved', 'rejected', 'paid'))
);

CREATE TABLE IF NOT EXISTS payments (
    id VARCHAR(64) PRIMARY KEY,
    assignment_id VARCHAR(64) NOT NULL REFERENCES assignments(id),
    student_id VARCHAR(64) NOT NULL,
    period_start DATE NOT NULL,
    period_end DATE NOT NULL,
    total_hours NUMERIC(7,2) NOT NULL,
    hourly_rate NUMERIC(10,2) NOT NULL,
    gross_amount NUMERIC(12,2) NOT NULL,
    deductions NUMERIC(12,2) NOT NULL DEFAULT 0,
    net_amount NUMERIC(12,2) NOT NULL,
    status VARCHAR(20) NOT NULL,
    processed_by VARCHAR(64) NOT NULL DEFAULT '',
    processed_at TIMESTAMPTZ,
    released_at TIMESTAMPTZ,
    payment_reference VARCHAR(120) NOT NULL DEFAULT '',
    remarks TEXT NOT NULL DEFAULT '',
    annotations JSONB NOT NULL DEFAULT '[]'::jsonb,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_period CHECK (period_start <= period_end),
    CONSTRAINT valid_payment_status CHECK (status IN ('pending', 'processing', 'released', 'failed', 'on_hold', 'cancelled'))
);

CREATE INDEX IF NOT EXISTS idx_payments_assignment ON payments(assignment_id, period_start);

CREATE TABLE IF NOT EXISTS stipends (
    id VARCHAR(64) PRIMARY KEY,
    application_id VARCHAR(64) NOT NULL REFERENCES applications(id),
    student_id VARCHAR(64) NOT NULL,
    scholarship_type VARCHAR(40) NOT NULL,
    month SMALLINT NOT NULL,
    year SMALLINT NOT NULL,
    amount NUMERIC(12,2) NOT NULL,
    status VARCHAR(20) NOT NULL,
    processed_by VARCHAR(64) NOT NULL DEFAULT '',
    processed_at TIMESTAMPTZ,
    released_at TIMESTAMPTZ,
    payment_reference VARCHAR(120) NOT NULL DEFAULT '',
    remarks TEXT NOT NULL DEFAULT '',
    annotations JSONB NOT NULL DEFAULT '[]'::jsonb,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_month CHECK (month BETWEEN 1 AND 12),
    CONSTRAINT valid_stipend_status CHECK (status IN ('pending', 'processing', 'released', 'failed', 'on_hold', 'cancelled'))
);

CREATE INDEX IF NOT EXISTS idx_stipends_application ON stipends(application_id, year, month);
`

const migration003Down = `
DROP TABLE IF EXISTS stipends;
DROP TABLE IF EXISTS payments;
DROP TABLE IF EXISTS work_hour_logs;
DROP TABLE IF EXISTS assignments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: OUTBOX AND SINKS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Effects committed with their entity changes, delivered by the dispatcher
-- in id order per entity_key.
CREATE TABLE IF NOT EXISTS outbox (
    id BIGSERIAL PRIMARY KEY,
    entity_key VARCHAR(160) NOT NULL,
    kind VARCHAR(20) NOT NULL,
    payload JSONB NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    delivered_at TIMESTAMPTZ,
    dead_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(id) WHERE delivered_at IS NULL AND dead_at IS NULL;

-- Append-only audit trail. hash = blake2b-256(prev_hash || record).
CREATE TABLE IF NOT EXISTS audit_log (
    id BIGSERIAL PRIMARY KEY,
    actor_id VARCHAR(64) NOT NULL,
    action VARCHAR(80) NOT NULL,
    entity_type VARCHAR(40) NOT NULL,
    entity_id VARCHAR(64) NOT NULL,
    old_values JSONB,
    new_values JSONB,
    prev_hash BYTEA NOT NULL,
    hash BYTEA NOT NULL UNIQUE,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id, id);

CREATE TABLE IF NOT EXISTS notifications (
    id BIGSERIAL PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    title VARCHAR(200) NOT NULL,
    message TEXT NOT NULL,
    type VARCHAR(20) NOT NULL DEFAULT 'info',
    read_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
`

const migration004Down = `
DROP TABLE IF EXISTS notifications;
DROP TABLE IF EXISTS audit_log;
DROP TABLE IF EXISTS outbox;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: UNIQUE LIVE RECORDS
// One live application per student, scholarship and term; one live payment
// per assignment period; one live stipend per application month.
// ══════════════════════════════════════════════════════════════════════════════

const migration005Up = `
CREATE UNIQUE INDEX IF NOT EXISTS uq_applications_live_term
    ON applications(student_id, scholarship_id, academic_year, semester)
    WHERE archived_at IS NULL AND status <> 'rejected';

CREATE UNIQUE INDEX IF NOT EXISTS uq_payments_live_period
    ON payments(assignment_id, period_start, period_end)
    WHERE status <> 'cancelled';

CREATE UNIQUE INDEX IF NOT EXISTS uq_stipends_live_month
    ON stipends(application_id, year, month)
    WHERE status <> 'cancelled';
`

const migration005Down = `
DROP INDEX IF EXISTS uq_stipends_live_month;
DROP INDEX IF EXISTS uq_payments_live_period;
DROP INDEX IF EXISTS uq_applications_live_term;
`
