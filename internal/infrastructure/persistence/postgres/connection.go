// Package postgres implements the PostgreSQL persistence layer of the
// scholarship hub: repositories with optimistic locking, the unit of work
// the command handlers run in, the fund ledger and the effect outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ErrConnectionClosed is returned by every call made after Close.
var ErrConnectionClosed = errors.New("postgres: connection pool is closed")

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION POOL
// ══════════════════════════════════════════════════════════════════════════════

// Config holds PostgreSQL connection configuration.
type Config struct {
	// URL is a postgres:// connection string.
	URL string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// QueryTimeout bounds one unit of work. Zero disables the bound.
	QueryTimeout time.Duration
}

// DefaultConfig returns pool defaults for a single API or worker instance.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: time.Minute,
	}
}

// PoolConfig parses URL and applies the non-zero pool settings.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	if c.URL == "" {
		return nil, errors.New("postgres: database url is required")
	}
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}
	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	return pc, nil
}

// Connection wraps the pool. It satisfies Querier so repositories can run
// outside a unit of work.
type Connection struct {
	pool   *pgxpool.Pool
	config Config

	mu     sync.RWMutex
	closed bool
}

// NewConnection opens the pool and pings the server.
func NewConnection(ctx context.Context, cfg Config) (*Connection, error) {
	pc, err := cfg.PoolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool, config: cfg}, nil
}

// NewConnectionFromURL opens a pool from a URL with default pool settings.
func NewConnectionFromURL(ctx context.Context, databaseURL string) (*Connection, error) {
	cfg := DefaultConfig()
	cfg.URL = databaseURL
	return NewConnection(ctx, cfg)
}

// Close closes the pool. Later calls are no-ops.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pool.Close()
}

// Ping reports whether the server answers. It backs the health check.
func (c *Connection) Ping(ctx context.Context) error {
	pool, err := c.acquire()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (c *Connection) acquire() (*pgxpool.Pool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrConnectionClosed
	}
	return c.pool, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// writeTx is the isolation every unit of work runs at. Lost updates are
// caught by the version columns, not by the isolation level.
var writeTx = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

// WithTx runs fn in a transaction. It commits when fn returns nil and rolls
// back otherwise; fn's error is returned unchanged so callers can match
// domain kinds.
func (c *Connection) WithTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	pool, err := c.acquire()
	if err != nil {
		return err
	}
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return classify("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIER
// ══════════════════════════════════════════════════════════════════════════════

// Querier is implemented by pgx.Tx and *Connection.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := c.acquire()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := c.acquire()
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := c.acquire()
	if err != nil {
		return errRow{err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

// errRow reports err from Scan.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// ══════════════════════════════════════════════════════════════════════════════
// ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsNoRows reports whether err is pgx's "no rows".
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// classify maps driver errors onto the shared error kinds. Errors it does
// not recognise are wrapped as ServiceUnavailable.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch pgCode(err) {
	case codeUniqueViolation:
		return shared.WrapError("postgres", op, shared.ErrAlreadyExists, "record already exists", err)
	case codeForeignKeyViolation:
		return shared.WrapError("postgres", op, shared.ErrNotFound, "referenced record does not exist", err)
	case codeNotNullViolation, codeCheckViolation:
		return shared.WrapError("postgres", op, shared.ErrValidation, "record violates a constraint", err)
	case codeSerializationFailure, codeDeadlockDetected:
		return shared.WrapError("postgres", op, shared.ErrConcurrentModification, "transaction lost a race", err)
	}
	if IsNoRows(err) {
		return shared.WrapError("postgres", op, shared.ErrNotFound, "record not found", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("postgres", op, shared.ErrServiceUnavailable, "database error", err)
}

// notFound builds the NotFound error for a missing entity.
func notFound(op, entity, id string) error {
	return shared.Errorf("postgres", op, shared.ErrNotFound, "%s %s not found", entity, id)
}

// conflict builds the ConcurrentModification error for a stale update.
func conflict(op, entity, id string, expected int) error {
	return shared.Errorf("postgres", op, shared.ErrConcurrentModification, "%s %s changed since version %d", entity, id, expected)
}
