package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/internal/infrastructure/persistence/postgres"
	"github.com/osas-hub/scholarship-hub/pkg/circuitbreaker"
	"github.com/osas-hub/scholarship-hub/pkg/retry"
)

var note = shared.Notification{UserID: "stu-1", Title: "Approved", Message: "Your application was approved.", Type: shared.NotificationSuccess}

// ── webhook ──────────────────────────────────────────────────────────────────

func TestWebhookSink_PostsSignedPayload(t *testing.T) {
	var (
		gotBody []byte
		gotSig  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Secret: "s3cret"})
	require.NoError(t, err)
	require.NoError(t, sink.Notify(context.Background(), note))

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "stu-1", payload.UserID)
	assert.Equal(t, "success", payload.Type)

	want, err := Sign([]byte("s3cret"), gotBody)
	require.NoError(t, err)
	assert.Equal(t, want, gotSig)
}

func TestWebhookSink_ClassifiesResponses(t *testing.T) {
	status := int32(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)

	err = sink.Notify(context.Background(), note)
	assert.True(t, retry.IsRetryable(err))

	atomic.StoreInt32(&status, http.StatusBadRequest)
	err = sink.Notify(context.Background(), note)
	assert.True(t, retry.IsPermanent(err))
}

func TestWebhookSink_OpenBreakerIsRetryable(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := NewWebhookBreaker(2, time.Hour, nil)
	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Breaker: breaker})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_ = sink.Notify(context.Background(), note)
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())

	err = sink.Notify(context.Background(), note)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.True(t, retry.IsRetryable(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookBreaker_IgnoresPermanentRejections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	breaker := NewWebhookBreaker(1, time.Hour, nil)
	sink, err := NewWebhookSink(WebhookConfig{URL: srv.URL, Breaker: breaker})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_ = sink.Notify(context.Background(), note)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
}

func TestNewWebhookSink_Validation(t *testing.T) {
	_, err := NewWebhookSink(WebhookConfig{})
	assert.Error(t, err)

	long := make([]byte, 65)
	_, err = NewWebhookSink(WebhookConfig{URL: "http://x", Secret: string(long)})
	assert.Error(t, err)
}

// ── inbox and fan-out ────────────────────────────────────────────────────────

type memInbox struct {
	mu    sync.Mutex
	items []shared.Notification
	err   error
}

func (m *memInbox) Insert(_ context.Context, n shared.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, n)
	return nil
}

func TestInboxSink(t *testing.T) {
	inbox := &memInbox{}
	sink := NewInboxSink(inbox)
	require.NoError(t, sink.Notify(context.Background(), note))
	assert.Len(t, inbox.items, 1)

	inbox.err = errors.New("connection reset")
	assert.True(t, retry.IsRetryable(sink.Notify(context.Background(), note)))

	inbox.err = shared.NewDomainError("postgres", "inbox.Insert", shared.ErrValidation, "title too long")
	assert.True(t, retry.IsPermanent(sink.Notify(context.Background(), note)))
}

func TestFanoutSink_StopsAtFirstError(t *testing.T) {
	first, second := &memInbox{}, &memInbox{}
	f := NewFanoutSink(NewInboxSink(first), nil, NewInboxSink(second))
	assert.Equal(t, 2, f.Len())

	require.NoError(t, f.Notify(context.Background(), note))
	assert.Len(t, first.items, 1)
	assert.Len(t, second.items, 1)

	first.err = errors.New("down")
	assert.Error(t, f.Notify(context.Background(), note))
	assert.Len(t, second.items, 1)
}

// ── audit chain ──────────────────────────────────────────────────────────────

type memChain struct {
	mu   sync.Mutex
	rows []postgres.AuditEntry
}

func (m *memChain) AppendChained(_ context.Context, rec shared.AuditRecord, seal func(prev []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := []byte{}
	if n := len(m.rows); n > 0 {
		prev = m.rows[n-1].Hash
	}
	hash, err := seal(prev)
	if err != nil {
		return err
	}
	// Store what a database would hand back.
	raw, _ := json.Marshal(rec)
	var stored shared.AuditRecord
	_ = json.Unmarshal(raw, &stored)
	m.rows = append(m.rows, postgres.AuditEntry{ID: int64(len(m.rows) + 1), Record: stored, PrevHash: prev, Hash: hash})
	return nil
}

func (m *memChain) Entries(_ context.Context, afterID int64, limit int) ([]postgres.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []postgres.AuditEntry
	for _, r := range m.rows {
		if r.ID > afterID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestChainedAuditSink_VerifiesAndDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := &memChain{}
	sink := NewChainedAuditSink(store)

	require.NoError(t, sink.Record(ctx, shared.AuditRecord{ActorID: "staff-1", Action: "transition", EntityType: "application", EntityID: "app-1",
		OldValues: map[string]any{"status": "submitted"}, NewValues: map[string]any{"status": "under_verification", "units": 18}}))
	require.NoError(t, sink.Record(ctx, shared.AuditRecord{ActorID: "staff-1", Action: "release", EntityType: "payment", EntityID: "pay-1",
		NewValues: map[string]any{"amount": "1250.00"}}))
	require.NoError(t, sink.Record(ctx, shared.AuditRecord{ActorID: "admin-1", Action: "update", EntityType: "scholarship", EntityID: "sch-1"}))

	report, err := sink.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.Intact())
	assert.Equal(t, 3, report.Checked)

	store.rows[1].Record.NewValues["amount"] = "9999.00"
	report, err = sink.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.Intact())
	assert.Equal(t, int64(2), report.BrokenAt)
}

func TestChainedAuditSink_StorageErrorsAreRetryable(t *testing.T) {
	sink := NewChainedAuditSink(failingChain{})
	err := sink.Record(context.Background(), shared.AuditRecord{EntityID: "x"})
	assert.True(t, retry.IsRetryable(err))
}

type failingChain struct{}

func (failingChain) AppendChained(context.Context, shared.AuditRecord, func([]byte) ([]byte, error)) error {
	return errors.New("pool closed")
}

func (failingChain) Entries(context.Context, int64, int) ([]postgres.AuditEntry, error) {
	return nil, nil
}

func TestLogAuditSink(t *testing.T) {
	assert.NoError(t, NewLogAuditSink(nil).Record(context.Background(), shared.AuditRecord{EntityID: "x"}))
}
