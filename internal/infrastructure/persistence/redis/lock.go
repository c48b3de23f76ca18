package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB LOCK
// A named lease held by at most one process. The token makes sure only the
// holder can release it; the TTL frees it if the holder dies.
// ══════════════════════════════════════════════════════════════════════════════

// ErrLockHeld is returned by Acquire when another process holds the lock.
var ErrLockHeld = errors.New("lock: held by another process")

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker hands out named leases.
type Locker struct {
	client *redis.Client
}

// NewLocker creates a Locker sharing the cache's client.
func NewLocker(cache *Cache) *Locker {
	return &Locker{client: cache.Client()}
}

// Acquire takes the lease name for ttl. The returned func releases it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	key := LockKey(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
