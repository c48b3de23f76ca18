package postgres

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/osas-hub/scholarship-hub/internal/domain/payment"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FUND LEDGER
// One balance row per scholarship type plus an append-only movement log.
// ══════════════════════════════════════════════════════════════════════════════

// FundLedger implements payment.FundLedger.
type FundLedger struct {
	q Querier
}

// NewFundLedger creates a ledger over a pool or a transaction.
func NewFundLedger(q Querier) *FundLedger {
	return &FundLedger{q: q}
}

// ForScholarship returns the tracker of the fund paying t.
func (l *FundLedger) ForScholarship(ctx context.Context, t scholarship.Type) (payment.FundTracker, error) {
	const op = "fund.ForScholarship"
	var exists bool
	if err := l.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM funds WHERE scholarship_type = $1)`, string(t)).Scan(&exists); err != nil {
		return nil, classify(op, err)
	}
	if !exists {
		return nil, notFound(op, "fund", string(t))
	}
	return &fundTracker{q: l.q, fundType: t}, nil
}

// Balance returns the current balance of the fund paying t.
func (l *FundLedger) Balance(ctx context.Context, t scholarship.Type) (decimal.Decimal, error) {
	const op = "fund.Balance"
	var balance decimal.Decimal
	err := l.q.QueryRow(ctx, `SELECT balance FROM funds WHERE scholarship_type = $1`, string(t)).Scan(&balance)
	if IsNoRows(err) {
		return decimal.Zero, notFound(op, "fund", string(t))
	}
	if err != nil {
		return decimal.Zero, classify(op, err)
	}
	return balance, nil
}

// Deposit adds amount to the fund paying t, creating the fund on first use.
func (l *FundLedger) Deposit(ctx context.Context, t scholarship.Type, amount decimal.Decimal, reference string) (decimal.Decimal, error) {
	const op = "fund.Deposit"
	if !t.IsValid() {
		return decimal.Zero, shared.Errorf("postgres", op, shared.ErrValidation, "unknown scholarship type %q", t)
	}
	if !amount.IsPositive() {
		return decimal.Zero, shared.NewDomainError("postgres", op, shared.ErrValidation, "deposit must be positive")
	}
	if strings.TrimSpace(reference) == "" {
		return decimal.Zero, shared.NewDomainError("postgres", op, shared.ErrValidation, "deposit reference is required")
	}

	var balance decimal.Decimal
	err := l.q.QueryRow(ctx, `
		INSERT INTO funds (scholarship_type, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (scholarship_type) DO UPDATE
		SET balance = funds.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance`,
		string(t), shared.RoundMoney(amount),
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, classify(op, err)
	}
	if err := appendMovement(ctx, l.q, t, shared.RoundMoney(amount), balance, reference); err != nil {
		return decimal.Zero, classify(op, err)
	}
	return balance, nil
}

// fundTracker is the FundTracker of one fund. Used inside a unit of work,
// the balance check locks the fund row until commit.
type fundTracker struct {
	q        Querier
	fundType scholarship.Type
}

func (f *fundTracker) HasSufficientBalance(ctx context.Context, amount decimal.Decimal) (bool, error) {
	var balance decimal.Decimal
	err := f.q.QueryRow(ctx, `SELECT balance FROM funds WHERE scholarship_type = $1 FOR UPDATE`, string(f.fundType)).Scan(&balance)
	if IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, classify("fund.HasSufficientBalance", err)
	}
	return balance.GreaterThanOrEqual(amount), nil
}

func (f *fundTracker) DisburseAmount(ctx context.Context, amount decimal.Decimal, reference string) error {
	const op = "fund.DisburseAmount"
	var balance decimal.Decimal
	err := f.q.QueryRow(ctx, `
		UPDATE funds SET balance = balance - $2, updated_at = NOW()
		WHERE scholarship_type = $1 AND balance >= $2
		RETURNING balance`,
		string(f.fundType), amount,
	).Scan(&balance)
	if IsNoRows(err) {
		return shared.Errorf("postgres", op, shared.ErrInsufficientFunds, "fund %s cannot cover %s", f.fundType, amount.StringFixed(2))
	}
	if err != nil {
		return classify(op, err)
	}
	return classify(op, appendMovement(ctx, f.q, f.fundType, amount.Neg(), balance, reference))
}

func appendMovement(ctx context.Context, q Querier, t scholarship.Type, amount, balanceAfter decimal.Decimal, reference string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO fund_ledger (scholarship_type, amount, balance_after, reference)
		VALUES ($1, $2, $3, $4)`,
		string(t), amount, balanceAfter, reference,
	)
	return err
}
