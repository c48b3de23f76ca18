package messaging

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/retry"
)

var at = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

// ── event bus ────────────────────────────────────────────────────────────────

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	var typed, all []string

	require.NoError(t, bus.Subscribe(shared.EventApplicationTransitioned, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, string(e.EventType()))
		return errors.New("ignored")
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))

	require.NoError(t, bus.Publish(shared.NewApplicationTransitionedEvent("app-1", "stu-1", "sch-1", "draft", "submitted", "stu-1", at)))
	require.NoError(t, bus.Publish(shared.NewDocumentEvent(shared.EventDocumentUploaded, "doc-1", "app-1", "valid_id", "stu-1", at)))

	assert.Equal(t, []string{"app-1"}, typed)
	assert.Equal(t, []string{"application.transitioned", "document.uploaded"}, all)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewDocumentEvent(shared.EventDocumentUploaded, "doc-2", "app-1", "valid_id", "stu-1", at)), ErrEventBusClosed)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})
	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		n.Add(1)
		return nil
	}))
	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(shared.NewDocumentEvent(shared.EventDocumentUploaded, "doc", "app", "valid_id", "stu", at)))
	}
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(20), n.Load())
}

func TestRemoteEnvelope(t *testing.T) {
	ev := shared.NewApplicationTransitionedEvent("app-1", "stu-1", "sch-1", "verified", "under_evaluation", "staff-1", at)
	data, err := encodeRemote("node-a", ev)
	require.NoError(t, err)

	got, origin, err := decodeRemote(data)
	require.NoError(t, err)
	assert.Equal(t, "node-a", origin)
	assert.Equal(t, shared.EventApplicationTransitioned, got.EventType())
	assert.Equal(t, "app-1", got.AggregateID())
	assert.True(t, at.Equal(got.OccurredAt()))
	assert.Equal(t, "under_evaluation", got.Payload()["to"])

	_, _, err = decodeRemote([]byte(`{"instance_id":"x","event":{}}`))
	assert.Error(t, err)
}

// ── outbox dispatcher ────────────────────────────────────────────────────────

type fakeOutbox struct {
	mu        sync.Mutex
	entries   []OutboxEntry
	delivered []int64
	failed    map[int64]int
	dead      []int64
}

func (f *fakeOutbox) FetchPending(_ context.Context, limit int) ([]OutboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []OutboxEntry
	for _, e := range f.entries {
		if contains(f.delivered, e.ID) || contains(f.dead, e.ID) {
			continue
		}
		e.Attempts = f.failed[e.ID]
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkDelivered(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id int64, attempts int, _ string, dead bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed == nil {
		f.failed = map[int64]int{}
	}
	f.failed[id] = attempts
	if dead {
		f.dead = append(f.dead, id)
	}
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type recordingSink struct {
	mu     sync.Mutex
	notes  []string
	audits []string
	failOn map[string]int // title or action → remaining failures
}

func (s *recordingSink) fail(key string) error {
	if s.failOn[key] > 0 {
		s.failOn[key]--
		return retry.Retryable(errors.New("sink unavailable"))
	}
	return nil
}

func (s *recordingSink) Notify(_ context.Context, n shared.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(n.Title); err != nil {
		return err
	}
	s.notes = append(s.notes, n.UserID+":"+n.Title)
	return nil
}

func (s *recordingSink) Record(_ context.Context, r shared.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(r.Action); err != nil {
		return err
	}
	s.audits = append(s.audits, r.EntityID+":"+r.Action)
	return nil
}

func entry(id int64, e shared.Effect) OutboxEntry {
	return OutboxEntry{ID: id, EntityKey: e.EntityKey(), Effect: e, CreatedAt: at}
}

func newDispatcher(t *testing.T, store OutboxStore, sink *recordingSink, maxAttempts int) *OutboxDispatcher {
	t.Helper()
	d, err := NewOutboxDispatcher(DispatcherConfig{
		Store:         store,
		Notifications: sink,
		Audit:         sink,
		MaxAttempts:   maxAttempts,
		Retrier:       retry.New(retry.WithMaxAttempts(1)),
	})
	require.NoError(t, err)
	return d
}

func TestOutboxDispatcher_KeepsPerEntityOrder(t *testing.T) {
	store := &fakeOutbox{entries: []OutboxEntry{
		entry(1, shared.Audit("staff", "application.submitted", "application", "app-1", nil, nil)),
		entry(2, shared.Notify("stu-1", "Submitted", "ok", shared.NotificationInfo)),
		entry(3, shared.Audit("staff", "application.verified", "application", "app-1", nil, nil)),
		entry(4, shared.Audit("staff", "application.submitted", "application", "app-2", nil, nil)),
	}}
	sink := &recordingSink{failOn: map[string]int{"application.submitted": 1}}
	d := newDispatcher(t, store, sink, 5)

	// app-1's first audit and app-2's audit share the failing action; only
	// one of them fails, and a failure on app-1 must hold back entry 3.
	first, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, first.Fetched)
	assert.Equal(t, 1, first.Failed)

	second, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Failed)

	sort.Strings(sink.notes)
	assert.Equal(t, []string{"stu-1:Submitted"}, sink.notes)
	assert.Len(t, sink.audits, 3)

	var app1 []string
	for _, a := range sink.audits {
		if a[:6] == "app-1:" {
			app1 = append(app1, a)
		}
	}
	assert.Equal(t, []string{"app-1:application.submitted", "app-1:application.verified"}, app1)
	assert.Len(t, store.delivered, 4)
}

func TestOutboxDispatcher_DeadLetters(t *testing.T) {
	store := &fakeOutbox{entries: []OutboxEntry{
		entry(1, shared.Notify("stu-1", "Flaky", "x", shared.NotificationInfo)),
		entry(2, shared.Notify("stu-1", "After", "y", shared.NotificationInfo)),
		{ID: 3, EntityKey: "broken", Effect: shared.Effect{Kind: "fax"}},
	}}
	sink := &recordingSink{failOn: map[string]int{"Flaky": 100}}
	d := newDispatcher(t, store, sink, 2)

	r1, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Failed)
	assert.Equal(t, 1, r1.Blocked)
	assert.Equal(t, 1, r1.Dead, "malformed effects die at once")

	r2, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r2.Dead)
	assert.Equal(t, 1, r2.Delivered)

	assert.Equal(t, []string{"stu-1:After"}, sink.notes)
	assert.ElementsMatch(t, []int64{1, 3}, store.dead)
}

func TestNewOutboxDispatcher_RequiresStore(t *testing.T) {
	_, err := NewOutboxDispatcher(DispatcherConfig{})
	assert.Error(t, err)
}
