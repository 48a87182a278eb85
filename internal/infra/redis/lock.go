package redis

import (
	"context"
	"time"

	"payment-flows/internal/domain"
	"payment-flows/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ repository.Locker = (*RecordLocker)(nil)

// RecordLocker is the exclusive per-record lock behind ProcessResponse.
// SetNX with a random token, unlock via compare-and-delete so an expired
// holder cannot release a successor's lock.
type RecordLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RecordLocker {
	return &RecordLocker{cli: c.cli}
}

// TryLock polls SetNX until `wait` elapses. It never blocks past the wait
// bound; contention is reported as domain.ErrLockNotAcquired, which callers
// treat as "already being processed".
func (l *RecordLocker) TryLock(ctx context.Context, key string, ttl, wait time.Duration) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err == nil && ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", domain.ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RecordLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
