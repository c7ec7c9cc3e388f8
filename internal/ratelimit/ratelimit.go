// Package ratelimit enforces fixed-window request budgets per client key.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"storefront.org/internal/kv"
	"storefront.org/internal/obs"
)

// Rule describes one limiter class.
type Rule struct {
	Name    string
	Max     int
	Window  time.Duration
	Message string
}

// ErrLimited marks a request rejected by a limiter.
var ErrLimited = errors.New("ratelimit: limit exceeded")

const defaultMessage = "Too many requests, please try again later."

// Built-in limiter classes.
var (
	General = Rule{Name: "general", Max: 1000, Window: 15 * time.Minute, Message: defaultMessage}
	Auth    = Rule{Name: "auth", Max: 10, Window: 15 * time.Minute, Message: "Too many authentication attempts, please try again later."}
	Upload  = Rule{Name: "upload", Max: 50, Window: time.Hour, Message: "Too many upload requests, please try again later."}
)

// Tier names. Anonymous applies when no principal is known.
const (
	TierAdmin     = "admin"
	TierModerator = "moderator"
	TierUser      = "user"
	TierAnonymous = "anonymous"
)

// DefaultTiers returns the per-role budgets, most generous first.
func DefaultTiers() map[string]Rule {
	return map[string]Rule{
		TierAdmin:     {Name: "tier_admin", Max: 5000, Window: 15 * time.Minute, Message: defaultMessage},
		TierModerator: {Name: "tier_moderator", Max: 2000, Window: 15 * time.Minute, Message: defaultMessage},
		TierUser:      {Name: "tier_user", Max: 1000, Window: 15 * time.Minute, Message: defaultMessage},
		TierAnonymous: {Name: "tier_anonymous", Max: 300, Window: 15 * time.Minute, Message: defaultMessage},
	}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the counter store failed and the request was
	// let through without being counted.
	Degraded bool
	Rule     Rule
}

// RetryAfter is the wait until the window resets, rounded up to a second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	if rem := wait % time.Second; rem != 0 {
		wait += time.Second - rem
	}
	return wait
}

// Apply writes the standard rate-limit headers. Retry-After is added when
// the request was rejected.
func (d Decision) Apply(h http.Header, now time.Time) {
	if d.Degraded {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(now)/time.Second)))
	}
}

// Limiter applies one Rule over a shared counter store. A Limiter is built
// once per class and shared by every route using that class.
type Limiter struct {
	rule    Rule
	counter kv.Counter
	now     func() time.Time
	warn    *rate.Sometimes
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New creates a limiter for rule.
func New(rule Rule, counter kv.Counter, opts ...Option) *Limiter {
	l := &Limiter{
		rule:    rule,
		counter: counter,
		now:     time.Now,
		warn:    &rate.Sometimes{Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Rule returns the limiter class.
func (l *Limiter) Rule() Rule { return l.rule }

// Allow counts one request for key. Requests beyond Max within the window
// are rejected until the window elapses. Counter failures let the request
// through.
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	w, err := l.counter.Incr(ctx, l.rule.Name+":"+key, l.rule.Window)
	if err != nil {
		l.warn.Do(func() {
			obs.Logger().WithError(err).WithField("limiter", l.rule.Name).
				Warn("rate limit store unavailable, allowing requests")
		})
		return Decision{Allowed: true, Limit: l.rule.Max, Remaining: l.rule.Max, Degraded: true, Rule: l.rule}
	}
	remaining := l.rule.Max - w.Count
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   w.Count <= l.rule.Max,
		Limit:     l.rule.Max,
		Remaining: remaining,
		ResetAt:   w.ResetAt,
		Rule:      l.rule,
	}
	if !d.Allowed {
		obs.RateLimited(l.rule.Name)
	}
	return d
}

// Tiered selects a limiter by principal role.
type Tiered struct {
	limiters map[string]*Limiter
}

// NewTiered builds one limiter per tier.
func NewTiered(tiers map[string]Rule, counter kv.Counter, opts ...Option) *Tiered {
	t := &Tiered{limiters: make(map[string]*Limiter, len(tiers))}
	for name, rule := range tiers {
		t.limiters[name] = New(rule, counter, opts...)
	}
	return t
}

// For returns the limiter of tier, falling back to the anonymous tier.
func (t *Tiered) For(tier string) *Limiter {
	if l, ok := t.limiters[tier]; ok {
		return l
	}
	return t.limiters[TierAnonymous]
}

// Key derives the counter identity of a client: an API key takes
// precedence over a principal id, which takes precedence over the address.
func Key(apiKey, principalID, ip string) string {
	switch {
	case apiKey != "":
		sum := sha256.Sum256([]byte(apiKey))
		return "apikey:" + hex.EncodeToString(sum[:8])
	case principalID != "":
		return "user:" + principalID
	case ip != "":
		return "ip:" + ip
	default:
		return "ip:unknown"
	}
}

var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

// Exempt reports whether path is a health or metrics endpoint that is never
// rate limited.
func Exempt(path string) bool {
	_, ok := exemptPaths[path]
	return ok
}
