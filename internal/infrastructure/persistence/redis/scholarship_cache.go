package redis

import (
	"context"
	"errors"
	"time"

	"github.com/osas-hub/scholarship-hub/internal/domain/scholarship"
	"github.com/osas-hub/scholarship-hub/internal/domain/shared"
	"github.com/osas-hub/scholarship-hub/pkg/logger"
)

// TTLScholarship is the default lifetime of a cached program definition.
const TTLScholarship = 10 * time.Minute

// store is the part of Cache the scholarship cache needs.
type store interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ScholarshipCache is a read-through cache in front of a
// scholarship.Repository. Cache failures never fail a read; the repository
// answers instead.
type ScholarshipCache struct {
	next  scholarship.Repository
	store store
	ttl   time.Duration
	log   *logger.Logger
}

// NewScholarshipCache decorates next with cache. ttl <= 0 uses TTLScholarship.
func NewScholarshipCache(next scholarship.Repository, cache *Cache, ttl time.Duration, log *logger.Logger) *ScholarshipCache {
	return newScholarshipCache(next, cache, ttl, log)
}

func newScholarshipCache(next scholarship.Repository, s store, ttl time.Duration, log *logger.Logger) *ScholarshipCache {
	if ttl <= 0 {
		ttl = TTLScholarship
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ScholarshipCache{next: next, store: s, ttl: ttl, log: log.Named("scholarship_cache")}
}

// GetByID serves from the cache and fills it on a miss.
func (c *ScholarshipCache) GetByID(ctx context.Context, id string) (*scholarship.Scholarship, error) {
	key := ScholarshipKey(id)

	var cached scholarship.Scholarship
	err := c.store.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("cache read failed", logger.String("key", key), logger.Err(err))
	}

	s, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, s, c.ttl); err != nil {
		c.log.Warn("cache fill failed", logger.String("key", key), logger.Err(err))
	}
	return s, nil
}

// List is not cached.
func (c *ScholarshipCache) List(ctx context.Context, filter scholarship.ListFilter) ([]*scholarship.Scholarship, error) {
	return c.next.List(ctx, filter)
}

// Create stores s and drops any stale copy.
func (c *ScholarshipCache) Create(ctx context.Context, s *scholarship.Scholarship) error {
	if err := c.next.Create(ctx, s); err != nil {
		return err
	}
	c.Invalidate(ctx, s.ID)
	return nil
}

// Update stores s and drops the cached copy.
func (c *ScholarshipCache) Update(ctx context.Context, s *scholarship.Scholarship) error {
	if err := c.next.Update(ctx, s); err != nil {
		return err
	}
	c.Invalidate(ctx, s.ID)
	return nil
}

// Invalidate drops the cached copy of one program.
func (c *ScholarshipCache) Invalidate(ctx context.Context, id string) {
	if err := c.store.Delete(ctx, ScholarshipKey(id)); err != nil {
		c.log.Warn("cache invalidate failed", logger.String("scholarship_id", id), logger.Err(err))
	}
}

// OnScholarshipChanged is the event handler that keeps every instance's
// reads fresh after a program is edited elsewhere.
func (c *ScholarshipCache) OnScholarshipChanged(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	c.Invalidate(ctx, event.AggregateID())
	return nil
}

var _ scholarship.Repository = (*ScholarshipCache)(nil)
