package ledger

import (
	"context"
	"time"
)

// Locker provides named mutual exclusion across processes
type Locker interface {
	// TryLock fails with errors.ErrLockHeld when another holder owns key
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Cache stores JSON-encodable read models. Get returns errors.ErrNotFound on a miss.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}
