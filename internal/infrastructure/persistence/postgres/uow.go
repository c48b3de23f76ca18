package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osas-hub/scholarship-hub/internal/application/command"
)

// UnitOfWork implements command.UnitOfWork: every repository handed to the
// body shares one transaction, committed when the body succeeds.
type UnitOfWork struct {
	conn    *Connection
	opts    pgx.TxOptions
	timeout time.Duration
}

// NewUnitOfWork creates a unit of work over conn.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{
		conn:    conn,
		opts:    writeTx,
		timeout: conn.config.QueryTimeout,
	}
}

// Do runs fn in a transaction bounded by the configured query timeout.
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repos command.Repositories) error) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	return u.conn.WithTx(ctx, u.opts, func(tx pgx.Tx) error {
		return fn(ctx, RepositoriesFor(tx))
	})
}

// RepositoriesFor builds the full repository set over q. Read paths pass
// the connection; units of work pass their transaction.
func RepositoriesFor(q Querier) command.Repositories {
	return command.Repositories{
		Applications: NewApplicationRepository(q),
		Documents:    NewDocumentRepository(q),
		Scholarships: NewScholarshipRepository(q),
		Students:     NewStudentSnapshotRepository(q),
		Interviews:   NewInterviewRepository(q),
		Payments:     NewPaymentRepository(q),
		Stipends:     NewStipendRepository(q),
		WorkLogs:     NewWorkLogRepository(q),
		Assignments:  NewAssignmentRepository(q),
		Funds:        NewFundLedger(q),
		Outbox:       NewOutbox(q),
	}
}
