package kv

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	_ Counter = (*MemoryCounter)(nil)
	_ Cache   = (*MemoryCache)(nil)
)

type window struct {
	count int
	start time.Time
	span  time.Duration
}

// MemoryCounter keeps windows in a process-local map.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryCounter creates a counter using now as its clock.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{windows: make(map[string]*window), now: now}
}

func (c *MemoryCounter) Incr(ctx context.Context, key string, span time.Duration) (Window, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.start.Add(w.span)) {
		w = &window{start: now, span: span}
		c.windows[key] = w
	}
	w.count++
	return Window{Count: w.count, ResetAt: w.start.Add(w.span)}, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.windows, key)
	c.mu.Unlock()
	return nil
}

// Sweep drops windows that have elapsed and reports how many were removed.
func (c *MemoryCounter) Sweep(ctx context.Context) (int, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, w := range c.windows {
		if !now.Before(w.start.Add(w.span)) {
			delete(c.windows, key)
			n++
		}
	}
	return n, nil
}

// Len reports the number of tracked windows.
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.windows)
}

type cached struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a bounded LRU whose entries also carry their own expiry
// checked against the injected clock.
type MemoryCache struct {
	mu    sync.Mutex
	items *lru.LRU[string, cached]
	now   func() time.Time
}

// NewMemoryCache creates a cache holding at most size entries. maxTTL
// bounds the lifetime of every entry regardless of the TTL passed to Set.
func NewMemoryCache(size int, maxTTL time.Duration, now func() time.Time) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		items: lru.NewLRU[string, cached](size, nil, maxTTL),
		now:   now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(item.expiresAt) {
		c.items.Remove(key)
		return nil, false, nil
	}
	return item.value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(key, cached{value: append([]byte(nil), value...), expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *MemoryCache) DeleteMatching(ctx context.Context, substr string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, key := range c.items.Keys() {
		if strings.Contains(key, substr) && c.items.Remove(key) {
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}
