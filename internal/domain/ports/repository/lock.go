package repository

import (
	"context"
	"time"
)

// Locker is the distributed exclusive lock guarding ProcessResponse. TryLock
// waits at most `wait` for the lock and returns domain.ErrLockNotAcquired on
// contention; the caller treats that as "already being processed" and replays
// the saved result instead of blocking or double-processing.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl, wait time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
