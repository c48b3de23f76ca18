package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osas-hub/scholarship-hub/internal/domain/document"
	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
)

// memStore mimics Cache with JSON round-trips so decoding is exercised.
type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
	ttls    map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return errors.New("connection refused")
	}
	raw, ok := m.data[key]
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type countingRepo struct {
	items map[string]*scholarship.Scholarship
	gets  int
}

func (r *countingRepo) Create(_ context.Context, s *scholarship.Scholarship) error {
	c := *s
	r.items[s.ID] = &c
	return nil
}

func (r *countingRepo) Update(ctx context.Context, s *scholarship.Scholarship) error {
	return r.Create(ctx, s)
}

func (r *countingRepo) GetByID(_ context.Context, id string) (*scholarship.Scholarship, error) {
	r.gets++
	s, ok := r.items[id]
	if !ok {
		return nil, shared.Errorf("test", "get", shared.ErrNotFound, "scholarship %s", id)
	}
	c := *s
	return &c, nil
}

func (r *countingRepo) List(context.Context, scholarship.ListFilter) ([]*scholarship.Scholarship, error) {
	return nil, nil
}

func fixtureScholarship() *scholarship.Scholarship {
	return &scholarship.Scholarship{
		ID:                "sch-1",
		Name:              "Academic Excellence",
		Type:              scholarship.TypeAcademicFull,
		Amount:            decimal.RequireFromString("500.00"),
		SlotsAvailable:    3,
		Deadline:          time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC),
		RequiredDocuments: []document.Type{document.TypeCertificateOfGrades},
		Criteria:          scholarship.Criteria{MaxGWA: 1.75},
		Status:            scholarship.StatusOpen,
	}
}

func TestScholarshipCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{items: map[string]*scholarship.Scholarship{}}
	require.NoError(t, repo.Create(ctx, fixtureScholarship()))
	st := newMemStore()
	c := newScholarshipCache(repo, st, time.Minute, nil)

	first, err := c.GetByID(ctx, "sch-1")
	require.NoError(t, err)
	second, err := c.GetByID(ctx, "sch-1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.gets)
	assert.Equal(t, time.Minute, st.ttls[ScholarshipKey("sch-1")])
	assert.True(t, second.Amount.Equal(first.Amount))
	assert.Equal(t, first.RequiredDocuments, second.RequiredDocuments)
	assert.Equal(t, 1.75, second.Criteria.MaxGWA)
	assert.True(t, second.Deadline.Equal(first.Deadline))
}

func TestScholarshipCache_UpdateInvalidates(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{items: map[string]*scholarship.Scholarship{}}
	st := newMemStore()
	c := newScholarshipCache(repo, st, 0, nil)

	s := fixtureScholarship()
	require.NoError(t, c.Create(ctx, s))
	_, err := c.GetByID(ctx, s.ID)
	require.NoError(t, err)

	s.Status = scholarship.StatusClosed
	require.NoError(t, c.Update(ctx, s))

	got, err := c.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, scholarship.StatusClosed, got.Status)
	assert.Equal(t, 2, repo.gets)
	assert.Equal(t, TTLScholarship, st.ttls[ScholarshipKey(s.ID)])
}

func TestScholarshipCache_EventInvalidates(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{items: map[string]*scholarship.Scholarship{}}
	require.NoError(t, repo.Create(ctx, fixtureScholarship()))
	st := newMemStore()
	c := newScholarshipCache(repo, st, time.Minute, nil)

	_, err := c.GetByID(ctx, "sch-1")
	require.NoError(t, err)
	require.NoError(t, c.OnScholarshipChanged(shared.NewScholarshipChangedEvent("sch-1", "closed", time.Now())))
	_, ok := st.data[ScholarshipKey("sch-1")]
	assert.False(t, ok)
}

func TestScholarshipCache_FallsBackWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	repo := &countingRepo{items: map[string]*scholarship.Scholarship{}}
	require.NoError(t, repo.Create(ctx, fixtureScholarship()))
	st := newMemStore()
	st.failGet = true
	c := newScholarshipCache(repo, st, time.Minute, nil)

	got, err := c.GetByID(ctx, "sch-1")
	require.NoError(t, err)
	assert.Equal(t, "Academic Excellence", got.Name)

	_, err = c.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConfig_Options(t *testing.T) {
	opts, err := Config{URL: "redis://:secret@cache:6380/2", PoolSize: 7}.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = DefaultConfig().Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Config{URL: "http://nope"}.Options()
	assert.Error(t, err)
}
