package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	_ Counter = (*RedisCounter)(nil)
	_ Cache   = (*RedisCache)(nil)
)

const scanBatch = 256

// RedisCounter keeps fixed windows in Redis so that limits hold across
// replicas: INCR, then PEXPIRE on the first hit of a window.
type RedisCounter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisCounter creates a counter storing keys under prefix.
func NewRedisCounter(client redis.UniversalClient, prefix string, now func() time.Time) *RedisCounter {
	if now == nil {
		now = time.Now
	}
	return &RedisCounter{redis: client, prefix: prefix + "rl:", now: now}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (Window, error) {
	k := c.prefix + key
	count, err := c.redis.Incr(ctx, k).Result()
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 {
		if err := c.redis.PExpire(ctx, k, window).Err(); err != nil {
			return Window{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return Window{Count: 1, ResetAt: c.now().Add(window)}, nil
	}
	ttl, err := c.redis.PTTL(ctx, k).Result()
	if err != nil {
		return Window{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		// A previous first hit failed before PEXPIRE; close the window now.
		if err := c.redis.PExpire(ctx, k, window).Err(); err != nil {
			return Window{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		ttl = window
	}
	return Window{Count: int(count), ResetAt: c.now().Add(ttl)}, nil
}

func (c *RedisCounter) Reset(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// NewRedisStores builds the counter and cache sharing one client and one
// key namespace. Counter keys live under prefix+"rl:", cache keys under
// prefix+"cache:".
func NewRedisStores(client redis.UniversalClient, prefix string, now func() time.Time) (*RedisCounter, *RedisCache) {
	return NewRedisCounter(client, prefix, now), NewRedisCache(client, prefix)
}

// RedisCache stores entries with SET PX and purges with SCAN MATCH.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisCache creates a cache storing keys under prefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{redis: client, prefix: prefix + "cache:"}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.redis.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.redis.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (c *RedisCache) DeleteMatching(ctx context.Context, substr string) (int, error) {
	pattern := globEscape(c.prefix) + "*" + globEscape(substr) + "*"
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return total, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			total += int(n)
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

var globReplacer = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func globEscape(s string) string { return globReplacer.Replace(s) }
