package payment

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
)

// Update methods take the version the caller read and fail with
// shared.ErrConcurrentModification when the stored version differs.

// PaymentRepository persists assistantship payments.
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	Update(ctx context.Context, p *Payment, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]*Payment, error)
}

// StipendRepository persists stipends.
type StipendRepository interface {
	Create(ctx context.Context, s *Stipend) error
	Update(ctx context.Context, s *Stipend, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*Stipend, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*Stipend, error)
}

// WorkLogRepository persists work-hour logs. Create fails with
// shared.ErrAlreadyExists for a second log on the same assignment and day.
type WorkLogRepository interface {
	Create(ctx context.Context, l *WorkHourLog) error
	Update(ctx context.Context, l *WorkHourLog, expectedVersion int) error
	GetByID(ctx context.Context, id string) (*WorkHourLog, error)
	ListByAssignment(ctx context.Context, assignmentID string, from, to time.Time) ([]*WorkHourLog, error)
}

// AssignmentRepository persists student-assistant assignments.
type AssignmentRepository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, id string) (*Assignment, error)
	ListActive(ctx context.Context) ([]*Assignment, error)
}

// FundLedger resolves the fund that pays a scholarship type.
type FundLedger interface {
	ForScholarship(ctx context.Context, t scholarship.Type) (FundTracker, error)
	Balance(ctx context.Context, t scholarship.Type) (decimal.Decimal, error)
}
