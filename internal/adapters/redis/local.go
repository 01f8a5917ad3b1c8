package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"rwaledger/pkg/errors"
)

// LocalLocker is the in-process fallback used when redis is not configured.
// It only excludes callers within one process.
type LocalLocker struct {
	mu   sync.Mutex
	seq  uint64
	held map[string]localLease
}

type localLease struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localLease)}
}

// TryLock acquires key for ttl or fails with errors.ErrLockHeld
func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if lease, ok := l.held[key]; ok && now.Before(lease.expires) {
		return nil, errors.Wrapf(errors.ErrLockHeld, "lock %s", key)
	}

	l.seq++
	token := l.seq
	l.held[key] = localLease{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if lease, ok := l.held[key]; ok && lease.token == token {
			delete(l.held, key)
			return nil
		}
		return errors.Wrapf(errors.ErrLockHeld, "lease on %s lost before release", key)
	}, nil
}

// LocalCache is the in-process cache fallback. Values are stored JSON-encoded
// so reads behave like the redis client.
type LocalCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
}

type localEntry struct {
	data    []byte
	expires time.Time
}

// NewLocalCache creates an in-process cache
func NewLocalCache() *LocalCache {
	return &LocalCache{entries: make(map[string]localEntry)}
}

// Set stores a JSON-encoded value. A zero ttl never expires.
func (c *LocalCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	e := localEntry{data: data}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Get decodes a value into dest. A missing or expired key returns errors.ErrNotFound.
func (c *LocalCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return errors.Wrapf(errors.ErrNotFound, "cache key %s", key)
	}
	return json.Unmarshal(e.data, dest)
}

// Delete deletes keys
func (c *LocalCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}
