package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT TRAIL
// Every row's hash is blake2b-256(prev_hash || canonical record). Editing or
// deleting a stored row breaks the chain from that row on.
// ══════════════════════════════════════════════════════════════════════════════

// ChainStore appends and reads chained audit rows.
type ChainStore interface {
	AppendChained(ctx context.Context, rec shared.AuditRecord, seal func(prev []byte) ([]byte, error)) error
	Entries(ctx context.Context, afterID int64, limit int) ([]postgres.AuditEntry, error)
}

// ChainedAuditSink records audit effects in the hash chain.
type ChainedAuditSink struct {
	store ChainStore
}

// NewChainedAuditSink creates a ChainedAuditSink.
func NewChainedAuditSink(store ChainStore) *ChainedAuditSink {
	return &ChainedAuditSink{store: store}
}

// Record implements shared.AuditSink.
func (s *ChainedAuditSink) Record(ctx context.Context, rec shared.AuditRecord) error {
	canon, err := canonical(rec)
	if err != nil {
		return retry.Permanent(err)
	}
	err = s.store.AppendChained(ctx, rec, func(prev []byte) ([]byte, error) {
		return chainHash(prev, canon), nil
	})
	if err != nil {
		if shared.IsValidation(err) {
			return retry.Permanent(err)
		}
		return retry.Retryable(fmt.Errorf("audit: %w", err))
	}
	return nil
}

// ChainReport is the outcome of a chain verification.
type ChainReport struct {
	Checked int
	// BrokenAt is the id of the first row whose hash does not match; zero
	// when the chain is intact.
	BrokenAt int64
}

// Intact reports whether every checked row matched.
func (r ChainReport) Intact() bool {
	return r.BrokenAt == 0
}

// Verify walks the chain from the first row and recomputes every hash.
func (s *ChainedAuditSink) Verify(ctx context.Context) (ChainReport, error) {
	const page = 500
	var (
		report ChainReport
		prev   []byte
		after  int64
	)
	for {
		entries, err := s.store.Entries(ctx, after, page)
		if err != nil {
			return report, fmt.Errorf("read audit chain: %w", err)
		}
		for _, e := range entries {
			canon, err := canonical(e.Record)
			if err != nil {
				return report, err
			}
			report.Checked++
			if !bytes.Equal(e.PrevHash, prev) || !bytes.Equal(e.Hash, chainHash(prev, canon)) {
				report.BrokenAt = e.ID
				return report, nil
			}
			prev = e.Hash
			after = e.ID
		}
		if len(entries) < page {
			return report, nil
		}
	}
}

func chainHash(prev, record []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(prev)
	h.Write(record)
	return h.Sum(nil)
}

// canonical encodes rec the way it reads back from storage, so a record
// hashes the same before it is stored and after it is loaded.
func canonical(rec shared.AuditRecord) ([]byte, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	var stored shared.AuditRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}
	return json.Marshal(stored)
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG AUDIT SINK
// ══════════════════════════════════════════════════════════════════════════════

// LogAuditSink writes audit records to the structured log. Used when the
// hash chain is switched off.
type LogAuditSink struct {
	log *logger.Logger
}

// NewLogAuditSink creates a LogAuditSink.
func NewLogAuditSink(log *logger.Logger) *LogAuditSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogAuditSink{log: log.Named("audit")}
}

// Record implements shared.AuditSink.
func (s *LogAuditSink) Record(_ context.Context, rec shared.AuditRecord) error {
	s.log.Info("audit",
		logger.ActorID(rec.ActorID),
		logger.String("action", rec.Action),
		logger.String("entity_type", rec.EntityType),
		logger.String("entity_id", rec.EntityID),
		logger.Any("old_values", rec.OldValues),
		logger.Any("new_values", rec.NewValues),
	)
	return nil
}
