package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rwaledger/internal/adapters/config"
	"rwaledger/pkg/errors"
)

// compareAndDelete releases a lease only while the caller's token still holds it
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client backs the ledger's distributed locks and read-model cache. Every key
// is namespaced by prefix.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// NewClient dials and pings Redis
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return NewFromClient(rdb, cfg.Prefix), nil
}

// NewFromClient wraps an existing connection
func NewFromClient(rdb *redis.Client, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) Health(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}
	return nil
}

func (c *Client) cacheKey(key string) string { return c.prefix + "cache:" + key }
func (c *Client) lockKey(key string) string  { return c.prefix + "lock:" + key }

// Set stores value as JSON. A zero ttl keeps the key until deleted.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidInput, "encode cache value %s: %v", key, err)
	}
	return c.rdb.Set(ctx, c.cacheKey(key), data, ttl).Err()
}

// Get decodes the cached value into dest, or fails with errors.ErrNotFound
func (c *Client) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.rdb.Get(ctx, c.cacheKey(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return errors.Wrapf(errors.ErrNotFound, "cache key %s", key)
	case err != nil:
		return errors.Wrapf(err, "cache get %s", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A value written by an older release; treat it as a miss.
		_ = c.rdb.Del(ctx, c.cacheKey(key)).Err()
		return errors.Wrapf(errors.ErrNotFound, "cache key %s undecodable", key)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.cacheKey(k)
	}
	return c.rdb.Del(ctx, full...).Err()
}

// TryLock takes a lease on key for ttl, or fails with errors.ErrLockHeld.
// Unlock reports errors.ErrLockHeld when the lease expired and someone else
// took it in the meantime.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	full := c.lockKey(key)

	ok, err := c.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire lock %s", key)
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrLockHeld, "lock %s", key)
	}

	return func(ctx context.Context) error {
		n, err := compareAndDelete.Run(ctx, c.rdb, []string{full}, token).Int()
		if err != nil {
			return errors.Wrapf(err, "release lock %s", key)
		}
		if n == 0 {
			return errors.Wrapf(errors.ErrLockHeld, "lease on %s lost before release", key)
		}
		return nil
	}, nil
}
