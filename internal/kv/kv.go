// Package kv holds the shared state behind rate limiting and response
// caching: fixed-window counters and a TTL byte cache, each with an
// in-process and a Redis implementation.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps failures of the backing store.
var ErrUnavailable = errors.New("kv: store unavailable")

// Window is the state of one fixed-window counter after an increment.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Counter increments fixed-window counters atomically.
type Counter interface {
	// Incr adds one to key. When the key has no live window a new window of
	// length window starts at the current instant with count 1.
	Incr(ctx context.Context, key string, window time.Duration) (Window, error)
	Reset(ctx context.Context, key string) error
}

// Cache stores opaque values with a per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteMatching removes every key containing substr and reports how
	// many were removed.
	DeleteMatching(ctx context.Context, substr string) (int, error)
}
