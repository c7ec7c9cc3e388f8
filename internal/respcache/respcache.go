// Package respcache caches successful GET responses by request signature
// and purges them by tag when the underlying data changes.
package respcache

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"storefront.org/internal/envelope"
	"storefront.org/internal/kv"
	"storefront.org/internal/obs"
)

// TTL classes.
const (
	TTLCategories    = 30 * time.Minute
	TTLProductDetail = 30 * time.Minute
	TTLProductList   = 15 * time.Minute
	TTLSearch        = 10 * time.Minute
	TTLProfile       = 5 * time.Minute
)

// Response headers and their values.
const (
	HeaderCache    = "X-Cache"
	HeaderCacheKey = "X-Cache-Key"

	Hit    = "HIT"
	Miss   = "MISS"
	Bypass = "BYPASS"
)

// Entry is a cached response payload.
type Entry struct {
	Status     int                  `json:"status"`
	Message    string               `json:"message"`
	Data       json.RawMessage      `json:"data,omitempty"`
	Pagination *envelope.Pagination `json:"pagination,omitempty"`
	StoredAt   time.Time            `json:"storedAt"`
	TTL        time.Duration        `json:"ttl"`
}

// Fresh reports whether the entry may still be served at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// Key builds the signature of a request: method, path and the query with
// keys sorted.
func Key(method, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(path)
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	return b.String()
}

// PrivateKey scopes key to one principal.
func PrivateKey(principalID, key string) string {
	return "u:" + principalID + "|" + key
}

// Cache reads and writes Entries through a kv.Cache.
type Cache struct {
	store   kv.Cache
	now     func() time.Time
	methods map[string]struct{}
	warn    *rate.Sometimes
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Cache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// WithMethods replaces the set of cacheable methods (GET by default).
func WithMethods(methods ...string) Option {
	return func(c *Cache) {
		c.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			c.methods[strings.ToUpper(m)] = struct{}{}
		}
	}
}

// New creates a response cache over store.
func New(store kv.Cache, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		now:     time.Now,
		methods: map[string]struct{}{"GET": {}},
		warn:    &rate.Sometimes{Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cacheable reports whether responses to method may be cached.
func (c *Cache) Cacheable(method string) bool {
	_, ok := c.methods[strings.ToUpper(method)]
	return ok
}

// Lookup returns a fresh entry for key. Store failures and undecodable
// entries count as misses.
func (c *Cache) Lookup(ctx context.Context, key string) (Entry, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.degraded("lookup", err)
		obs.CacheLookup("error")
		return Entry{}, false
	}
	if !ok {
		obs.CacheLookup("miss")
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil || !e.Fresh(c.now()) {
		obs.CacheLookup("miss")
		return Entry{}, false
	}
	obs.CacheLookup("hit")
	return e, true
}

// Store saves e under key for ttl. Failures are logged and swallowed.
func (c *Cache) Store(ctx context.Context, key string, e Entry, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	e.StoredAt = c.now()
	e.TTL = ttl
	raw, err := json.Marshal(e)
	if err != nil {
		c.degraded("encode", err)
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.degraded("store", err)
	}
}

// Invalidate removes every entry whose key contains one of tags. It
// returns once all matching entries are gone.
func (c *Cache) Invalidate(ctx context.Context, tags ...string) int {
	total := 0
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		n, err := c.store.DeleteMatching(ctx, tag)
		total += n
		if err != nil {
			c.degraded("invalidate", err)
		}
	}
	return total
}

func (c *Cache) degraded(op string, err error) {
	c.warn.Do(func() {
		obs.Logger().WithError(err).WithField("op", op).Warn("response cache degraded")
	})
}
