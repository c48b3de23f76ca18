package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// Commands append effects inside their transaction; the dispatcher of the
// worker process reads and settles them. A single dispatcher owns the table.
// ══════════════════════════════════════════════════════════════════════════════

// Outbox implements command.Outbox and messaging.OutboxStore.
type Outbox struct {
	q Querier
}

// NewOutbox creates an outbox over a pool or a transaction.
func NewOutbox(q Querier) *Outbox {
	return &Outbox{q: q}
}

// Append stores effects in slice order. Every effect must be valid.
func (o *Outbox) Append(ctx context.Context, effects []shared.Effect) error {
	for i, e := range effects {
		if err := e.Validate(); err != nil {
			return shared.WrapError("postgres", "outbox.Append", shared.ErrValidation, fmt.Sprintf("effect %d", i), err)
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal effect %d: %w", i, err)
		}
		if _, err := o.q.Exec(ctx, `
			INSERT INTO outbox (entity_key, kind, payload) VALUES ($1, $2, $3)`,
			e.EntityKey(), string(e.Kind), payload,
		); err != nil {
			return classify("outbox.Append", err)
		}
	}
	return nil
}

// FetchPending returns undelivered live entries in append order.
func (o *Outbox) FetchPending(ctx context.Context, limit int) ([]messaging.OutboxEntry, error) {
	const op = "outbox.FetchPending"
	rows, err := o.q.Query(ctx, `
		SELECT id, entity_key, payload, attempts, created_at FROM outbox
		WHERE delivered_at IS NULL AND dead_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []messaging.OutboxEntry
	for rows.Next() {
		var (
			e       messaging.OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityKey, &payload, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, classify(op, err)
		}
		// A payload that no longer decodes is handed over as-is; the
		// dispatcher dead-letters effects that fail validation.
		_ = json.Unmarshal(payload, &e.Effect)
		out = append(out, e)
	}
	return out, classify(op, rows.Err())
}

// MarkDelivered settles an entry.
func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	_, err := o.q.Exec(ctx, `UPDATE outbox SET delivered_at = NOW(), last_error = '' WHERE id = $1`, id)
	return classify("outbox.MarkDelivered", err)
}

// MarkFailed records a failed attempt; dead entries are never fetched again.
func (o *Outbox) MarkFailed(ctx context.Context, id int64, attempts int, lastErr string, dead bool) error {
	_, err := o.q.Exec(ctx, `
		UPDATE outbox
		SET attempts = $2, last_error = $3, dead_at = CASE WHEN $4 THEN NOW() ELSE NULL END
		WHERE id = $1`,
		id, attempts, lastErr, dead,
	)
	return classify("outbox.MarkFailed", err)
}

// Backlog counts undelivered live entries.
func (o *Outbox) Backlog(ctx context.Context) (int, error) {
	var n int
	err := o.q.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE delivered_at IS NULL AND dead_at IS NULL`).Scan(&n)
	return n, classify("outbox.Backlog", err)
}
