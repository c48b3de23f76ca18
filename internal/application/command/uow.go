// Package command contains the write side of the scholarship hub: one
// handler per user intent, each running the workflow core inside a unit of
// work.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/osas-hub/scholarship-hub/internal/domain/application"
	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/interview"
	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/domain/student"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// Repositories is the set of stores a command may touch. Inside a unit of
// work they all share one transaction.
type Repositories struct {
	Applications application.Repository
	Documents    document.Repository
	Scholarships scholarship.Repository
	Students     student.SnapshotProvider
	Interviews   interview.Repository
	Payments     payment.PaymentRepository
	Stipends     payment.StipendRepository
	WorkLogs     payment.WorkLogRepository
	Assignments  payment.AssignmentRepository
	Funds        payment.FundLedger
	Outbox       Outbox
}

// Outbox stores effects for asynchronous delivery. Appended effects keep
// their order.
type Outbox interface {
	Append(ctx context.Context, effects []shared.Effect) error
}

// UnitOfWork runs fn atomically. A non-nil error from fn rolls back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTOR
// ══════════════════════════════════════════════════════════════════════════════

// committedError marks an error that must be returned to the caller only
// after the changes that accompany it were committed.
type committedError struct {
	err error
}

func (e *committedError) Error() string { return e.err.Error() }
func (e *committedError) Unwrap() error { return e.err }

// afterCommit tells the executor to persist the changes returned alongside
// err and then report err. Used for the document-gate redirect to incomplete.
func afterCommit(err error) error {
	return &committedError{err: err}
}

// Executor runs command bodies in a unit of work, writes their effects to
// the outbox in the same transaction and publishes their events after
// commit. Bodies that lose an optimistic-lock race are re-run from a fresh
// read.
type Executor struct {
	uow       UnitOfWork
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	log       *logger.Logger
	newID     func() string
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithConflictRetries sets how many times a body is attempted in total.
func WithConflictRetries(n int) ExecutorOption {
	return func(e *Executor) {
		e.retrier = retry.ConflictRetrier(n, shared.IsConflict)
	}
}

// WithIDGenerator replaces the uuid generator. Tests use it for stable ids.
func WithIDGenerator(fn func() string) ExecutorOption {
	return func(e *Executor) {
		e.newID = fn
	}
}

// NewExecutor creates an Executor. publisher may be nil.
func NewExecutor(uow UnitOfWork, publisher shared.EventPublisher, log *logger.Logger, opts ...ExecutorOption) *Executor {
	if log == nil {
		log = logger.Nop()
	}
	e := &Executor{
		uow:       uow,
		publisher: publisher,
		retrier:   retry.ConflictRetrier(3, shared.IsConflict),
		log:       log.Named("command"),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewID returns a fresh entity id.
func (e *Executor) NewID() string {
	return e.newID()
}

// Body is the transactional part of a command.
type Body func(ctx context.Context, repos Repositories) (shared.Changes, error)

// Execute runs body and delivers its changes.
func (e *Executor) Execute(ctx context.Context, name string, body Body) error {
	start := time.Now()
	log := logger.FromContextOr(ctx, e.log).With(logger.Operation(name))

	var (
		changes shared.Changes
		gateErr error
	)
	err := e.retrier.Do(ctx, func(ctx context.Context) error {
		changes, gateErr = shared.Changes{}, nil
		return e.uow.Do(ctx, func(ctx context.Context, repos Repositories) error {
			out, err := body(ctx, repos)
			var ce *committedError
			if errors.As(err, &ce) {
				gateErr = ce.err
			} else if err != nil {
				return err
			}
			if len(out.Effects) > 0 {
				if repos.Outbox == nil {
					return fmt.Errorf("%s: no outbox configured for %d effects", name, len(out.Effects))
				}
				if err := repos.Outbox.Append(ctx, out.Effects); err != nil {
					return fmt.Errorf("%s: append outbox: %w", name, err)
				}
			}
			changes = out
			return nil
		})
	})
	if err != nil {
		level := log.Warn
		if !isExpected(err) {
			level = log.Error
		}
		level("command failed", logger.Err(err), logger.String("kind", shared.KindName(err)), logger.Latency(time.Since(start)))
		return err
	}

	e.publish(log, changes.Events)
	log.Debug("command committed",
		logger.Int("effects", len(changes.Effects)),
		logger.Int("events", len(changes.Events)),
		logger.Latency(time.Since(start)),
	)
	return gateErr
}

func (e *Executor) publish(log *logger.Logger, events []shared.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := e.publisher.Publish(ev); err != nil {
			log.Warn("publish event failed",
				logger.String("event_type", string(ev.EventType())),
				logger.String("aggregate_id", ev.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// isExpected reports whether err is a business outcome rather than a fault.
func isExpected(err error) bool {
	var de *shared.DomainError
	return errors.As(err, &de) && !errors.Is(err, shared.ErrServiceUnavailable)
}

// required returns a validation error naming the first empty field.
func required(op string, fields ...string) error {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i+1] == "" {
			return shared.Errorf("command", op, shared.ErrValidation, "%s is required", fields[i])
		}
	}
	return nil
}
