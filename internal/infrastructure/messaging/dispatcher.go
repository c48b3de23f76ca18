package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
	"github.com/osas-hub/scholarship-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX DISPATCHER
// Delivers committed effects to their sinks. Entries sharing an entity key
// are delivered strictly in the order they were appended; a failed entry
// blocks the later entries of its key until it is delivered or dead.
// ══════════════════════════════════════════════════════════════════════════════

// OutboxEntry is one stored effect awaiting delivery.
type OutboxEntry struct {
	ID        int64
	EntityKey string
	Effect    shared.Effect
	Attempts  int
	CreatedAt time.Time
}

// OutboxStore reads and settles outbox rows.
type OutboxStore interface {
	// FetchPending returns undelivered, non-dead entries in append order.
	FetchPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id int64) error
	// MarkFailed records a failed attempt. dead stops further delivery.
	MarkFailed(ctx context.Context, id int64, attempts int, lastErr string, dead bool) error
}

// DeliveryRecorder receives delivery measurements.
type DeliveryRecorder interface {
	RecordDelivery(kind string, ok bool)
	SetOutboxBacklog(n int)
}

// DispatcherConfig contains configuration for the OutboxDispatcher.
type DispatcherConfig struct {
	Store         OutboxStore
	Notifications shared.NotificationSink
	Audit         shared.AuditSink

	// BatchSize is the number of rows fetched per run. Default: 100.
	BatchSize int

	// MaxAttempts is the number of failed runs after which an entry is dead.
	// Default: 10.
	MaxAttempts int

	// WorkerPoolSize bounds the entity keys delivered concurrently.
	// Default: 4.
	WorkerPoolSize int

	// Retrier retries transient sink failures within one run.
	// Default: retry.SinkRetrier.
	Retrier *retry.Retrier

	Recorder DeliveryRecorder
	Logger   *logger.Logger
}

// DispatchReport summarises one run.
type DispatchReport struct {
	Fetched   int
	Delivered int
	Failed    int
	Dead      int
	// Blocked counts entries skipped because an earlier entry of the same
	// key failed.
	Blocked int
}

// OutboxDispatcher delivers outbox entries.
type OutboxDispatcher struct {
	cfg DispatcherConfig
	log *logger.Logger
}

// NewOutboxDispatcher creates a dispatcher.
func NewOutboxDispatcher(cfg DispatcherConfig) (*OutboxDispatcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("outbox store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	log := cfg.Logger.Named("outbox")
	if cfg.Retrier == nil {
		cfg.Retrier = retry.SinkRetrier(func(attempt int, err error, delay time.Duration) {
			log.Debug("retrying delivery", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
		})
	}
	return &OutboxDispatcher{cfg: cfg, log: log}, nil
}

// RunOnce fetches one batch and delivers it.
func (d *OutboxDispatcher) RunOnce(ctx context.Context) (DispatchReport, error) {
	entries, err := d.cfg.Store.FetchPending(ctx, d.cfg.BatchSize)
	if err != nil {
		return DispatchReport{}, fmt.Errorf("fetch outbox: %w", err)
	}
	if d.cfg.Recorder != nil {
		d.cfg.Recorder.SetOutboxBacklog(len(entries))
	}

	groups, order := groupByKey(entries)
	var (
		mu     sync.Mutex
		report = DispatchReport{Fetched: len(entries)}
		wg     sync.WaitGroup
		pool   = make(chan struct{}, d.cfg.WorkerPoolSize)
	)

	for _, key := range order {
		group := groups[key]
		wg.Add(1)
		pool <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-pool }()
			r := d.deliverGroup(ctx, group)
			mu.Lock()
			report.Delivered += r.Delivered
			report.Failed += r.Failed
			report.Dead += r.Dead
			report.Blocked += r.Blocked
			mu.Unlock()
		}()
	}
	wg.Wait()

	if report.Fetched > 0 {
		d.log.Info("outbox dispatched",
			logger.Int("fetched", report.Fetched),
			logger.Int("delivered", report.Delivered),
			logger.Int("failed", report.Failed),
			logger.Int("dead", report.Dead),
			logger.Int("blocked", report.Blocked),
		)
	}
	return report, ctx.Err()
}

func (d *OutboxDispatcher) deliverGroup(ctx context.Context, group []OutboxEntry) DispatchReport {
	var r DispatchReport
	for i, e := range group {
		if ctx.Err() != nil {
			r.Blocked += len(group) - i
			return r
		}

		var permanent bool
		err := d.cfg.Retrier.Do(ctx, func(ctx context.Context) error {
			err := d.deliver(ctx, e.Effect)
			permanent = retry.IsPermanent(err)
			return err
		})
		if d.cfg.Recorder != nil {
			d.cfg.Recorder.RecordDelivery(string(e.Effect.Kind), err == nil)
		}

		if err == nil {
			if merr := d.cfg.Store.MarkDelivered(ctx, e.ID); merr != nil {
				d.log.Error("mark delivered failed", logger.Int64("outbox_id", e.ID), logger.Err(merr))
				r.Blocked += len(group) - i - 1
				return r
			}
			r.Delivered++
			continue
		}

		attempts := e.Attempts + 1
		dead := permanent || attempts >= d.cfg.MaxAttempts
		if merr := d.cfg.Store.MarkFailed(ctx, e.ID, attempts, err.Error(), dead); merr != nil {
			d.log.Error("mark failed failed", logger.Int64("outbox_id", e.ID), logger.Err(merr))
		}
		if dead {
			d.log.Error("outbox entry is dead",
				logger.Int64("outbox_id", e.ID),
				logger.String("entity_key", e.EntityKey),
				logger.Int("attempts", attempts),
				logger.Err(err),
			)
			r.Dead++
			continue
		}
		d.log.Warn("delivery failed",
			logger.Int64("outbox_id", e.ID),
			logger.String("entity_key", e.EntityKey),
			logger.Int("attempts", attempts),
			logger.Err(err),
		)
		r.Failed++
		r.Blocked += len(group) - i - 1
		return r
	}
	return r
}

func (d *OutboxDispatcher) deliver(ctx context.Context, e shared.Effect) error {
	if err := e.Validate(); err != nil {
		return retry.Permanent(err)
	}
	switch e.Kind {
	case shared.EffectNotify:
		if d.cfg.Notifications == nil {
			return retry.Permanent(errors.New("no notification sink configured"))
		}
		return d.cfg.Notifications.Notify(ctx, *e.Notification)
	case shared.EffectAudit:
		if d.cfg.Audit == nil {
			return retry.Permanent(errors.New("no audit sink configured"))
		}
		return d.cfg.Audit.Record(ctx, *e.Audit)
	}
	return retry.Permanent(fmt.Errorf("unknown effect kind %q", e.Kind))
}

func groupByKey(entries []OutboxEntry) (map[string][]OutboxEntry, []string) {
	groups := make(map[string][]OutboxEntry)
	var order []string
	for _, e := range entries {
		key := e.EntityKey
		if key == "" {
			key = e.Effect.EntityKey()
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}
	return groups, order
}

// Run dispatches every interval until ctx is done.
func (d *OutboxDispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.log.Error("outbox run failed", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
