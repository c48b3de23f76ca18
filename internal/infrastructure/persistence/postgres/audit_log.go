package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// Rows form a hash chain: each row stores the hash of its predecessor.
// Appends are serialised with a transaction-scoped advisory lock.
// ══════════════════════════════════════════════════════════════════════════════

const auditChainLock = 7_301_001

// AuditEntry is one stored audit row.
type AuditEntry struct {
	ID         int64
	Record     shared.AuditRecord
	PrevHash   []byte
	Hash       []byte
	RecordedAt time.Time
}

// AuditLog stores chained audit rows.
type AuditLog struct {
	conn *Connection
}

// NewAuditLog creates the audit store.
func NewAuditLog(conn *Connection) *AuditLog {
	return &AuditLog{conn: conn}
}

// AppendChained reads the hash of the newest row, asks seal for the new
// row's hash and inserts the row, all under the chain lock. The first row's
// predecessor hash is empty.
func (l *AuditLog) AppendChained(ctx context.Context, rec shared.AuditRecord, seal func(prev []byte) ([]byte, error)) error {
	const op = "audit.AppendChained"
	oldValues, err := jsonOrNil(rec.OldValues)
	if err != nil {
		return err
	}
	newValues, err := jsonOrNil(rec.NewValues)
	if err != nil {
		return err
	}

	return l.conn.WithTx(ctx, writeTx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, auditChainLock); err != nil {
			return classify(op, err)
		}
		prev := []byte{}
		err := tx.QueryRow(ctx, `SELECT hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&prev)
		if err != nil && !IsNoRows(err) {
			return classify(op, err)
		}
		hash, err := seal(prev)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO audit_log (actor_id, action, entity_type, entity_id, old_values, new_values, prev_hash, hash)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ActorID, rec.Action, rec.EntityType, rec.EntityID, oldValues, newValues, prev, hash,
		)
		return classify(op, err)
	})
}

// Entries returns rows in chain order starting after afterID.
func (l *AuditLog) Entries(ctx context.Context, afterID int64, limit int) ([]AuditEntry, error) {
	const op = "audit.Entries"
	rows, err := l.conn.Query(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, old_values, new_values, prev_hash, hash, recorded_at
		FROM audit_log WHERE id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                    AuditEntry
			oldValues, newValues []byte
		)
		if err := rows.Scan(&e.ID, &e.Record.ActorID, &e.Record.Action, &e.Record.EntityType, &e.Record.EntityID,
			&oldValues, &newValues, &e.PrevHash, &e.Hash, &e.RecordedAt); err != nil {
			return nil, classify(op, err)
		}
		if len(oldValues) > 0 {
			if err := json.Unmarshal(oldValues, &e.Record.OldValues); err != nil {
				return nil, fmt.Errorf("decode audit %d: %w", e.ID, err)
			}
		}
		if len(newValues) > 0 {
			if err := json.Unmarshal(newValues, &e.Record.NewValues); err != nil {
				return nil, fmt.Errorf("decode audit %d: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, classify(op, rows.Err())
}

func jsonOrNil(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal audit values: %w", err)
	}
	return data, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION INBOX
// ══════════════════════════════════════════════════════════════════════════════

// InboxItem is one stored notification.
type InboxItem struct {
	ID           int64
	Notification shared.Notification
	ReadAt       *time.Time
	CreatedAt    time.Time
}

// NotificationInbox stores notifications for in-app display.
type NotificationInbox struct {
	q Querier
}

// NewNotificationInbox creates the inbox store.
func NewNotificationInbox(q Querier) *NotificationInbox {
	return &NotificationInbox{q: q}
}

// Insert stores one notification.
func (n *NotificationInbox) Insert(ctx context.Context, note shared.Notification) error {
	_, err := n.q.Exec(ctx, `
		INSERT INTO notifications (user_id, title, message, type) VALUES ($1, $2, $3, $4)`,
		note.UserID, note.Title, note.Message, string(note.Type),
	)
	return classify("inbox.Insert", err)
}

// ListForUser returns a user's newest notifications.
func (n *NotificationInbox) ListForUser(ctx context.Context, userID string, limit int) ([]InboxItem, error) {
	const op = "inbox.ListForUser"
	rows, err := n.q.Query(ctx, `
		SELECT id, user_id, title, message, type, read_at, created_at FROM notifications
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []InboxItem
	for rows.Next() {
		var (
			it  InboxItem
			typ string
		)
		if err := rows.Scan(&it.ID, &it.Notification.UserID, &it.Notification.Title, &it.Notification.Message,
			&typ, &it.ReadAt, &it.CreatedAt); err != nil {
			return nil, classify(op, err)
		}
		it.Notification.Type = shared.NotificationType(typ)
		out = append(out, it)
	}
	return out, classify(op, rows.Err())
}

// MarkRead marks one of the user's notifications read.
func (n *NotificationInbox) MarkRead(ctx context.Context, userID string, id int64) error {
	const op = "inbox.MarkRead"
	tag, err := n.q.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op, "notification", fmt.Sprint(id))
	}
	return nil
}
