package payment

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// Annotation is a note attached to a record. It is the only change allowed
// after release.
type Annotation struct {
	AuthorID string    `json:"author_id"`
	Note     string    `json:"note"`
	At       time.Time `json:"at"`
}

// Disbursement holds the lifecycle fields shared by stipends and payments.
type Disbursement struct {
	Status           Status
	ProcessedBy      string
	ProcessedAt      *time.Time
	ReleasedAt       *time.Time
	PaymentReference string
	Remarks          string
	Annotations      []Annotation
	Version          int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (d Disbursement) clone() Disbursement {
	c := d
	if d.ProcessedAt != nil {
		t := *d.ProcessedAt
		c.ProcessedAt = &t
	}
	if d.ReleasedAt != nil {
		t := *d.ReleasedAt
		c.ReleasedAt = &t
	}
	c.Annotations = append([]Annotation(nil), d.Annotations...)
	return c
}

func newDisbursement(now time.Time) Disbursement {
	return Disbursement{
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// move applies one status change and stamps the fields that belong to it.
func (d *Disbursement) move(op string, to Status, actorID, reason string, now time.Time) error {
	if !d.Status.CanTransitionTo(to) {
		return shared.Errorf(domainName, op, shared.ErrInvalidTransition, "cannot move from %s to %s", d.Status, to)
	}
	switch to {
	case StatusProcessing:
		d.ProcessedBy = actorID
		d.ProcessedAt = &now
	case StatusReleased:
		if d.ProcessedAt == nil {
			d.ProcessedBy = actorID
			d.ProcessedAt = &now
		}
		d.ReleasedAt = &now
	case StatusOnHold, StatusCancelled, StatusFailed:
		d.Remarks = strings.TrimSpace(reason)
	case StatusPending:
		d.Remarks = ""
	}
	d.Status = to
	d.UpdatedAt = now
	return nil
}

func (d *Disbursement) annotate(op, authorID, note string, now time.Time) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return shared.NewDomainError(domainName, op, shared.ErrValidation, "annotation text is required")
	}
	if d.Status == StatusCancelled {
		return shared.NewDomainError(domainName, op, shared.ErrInvalidState, "cancelled records cannot be changed")
	}
	d.Annotations = append(d.Annotations, Annotation{AuthorID: authorID, Note: note, At: now})
	d.UpdatedAt = now
	return nil
}

// FundTracker is the balance contract of a fund source. Release consults
// HasSufficientBalance; the host calls DisburseAmount in the same
// transaction that persists the released record.
type FundTracker interface {
	HasSufficientBalance(ctx context.Context, amount decimal.Decimal) (bool, error)
	DisburseAmount(ctx context.Context, amount decimal.Decimal, reference string) error
}

func checkFunds(ctx context.Context, op string, fund FundTracker, amount decimal.Decimal) error {
	if fund == nil {
		return nil
	}
	ok, err := fund.HasSufficientBalance(ctx, amount)
	if err != nil {
		return shared.WrapError(domainName, op, shared.ErrServiceUnavailable, "fund balance check failed", err)
	}
	if !ok {
		return shared.Errorf(domainName, op, shared.ErrInsufficientFunds, "fund balance cannot cover %s", amount.StringFixed(2))
	}
	return nil
}

func statusNotice(to Status, amount decimal.Decimal, reason string) (string, string, shared.NotificationType) {
	peso := "PHP " + amount.StringFixed(2)
	switch to {
	case StatusProcessing:
		return "Payment processing", "Your disbursement of " + peso + " is being processed.", shared.NotificationInfo
	case StatusReleased:
		return "Payment released", "Your disbursement of " + peso + " has been released.", shared.NotificationSuccess
	case StatusOnHold:
		return "Payment on hold", "Your disbursement of " + peso + " is on hold: " + reason, shared.NotificationWarning
	case StatusFailed:
		return "Payment failed", "Your disbursement of " + peso + " could not be completed: " + reason, shared.NotificationError
	case StatusCancelled:
		return "Payment cancelled", "Your disbursement of " + peso + " was cancelled: " + reason, shared.NotificationError
	case StatusPending:
		return "Payment resumed", "Your disbursement of " + peso + " is pending again.", shared.NotificationInfo
	}
	return "Payment updated", "Your disbursement of " + peso + " is now " + string(to) + ".", shared.NotificationInfo
}

func needsReason(to Status) bool {
	return to == StatusOnHold || to == StatusCancelled || to == StatusFailed
}
