package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"storefront.org/internal/apperr"
	"storefront.org/internal/audit"
	"storefront.org/internal/auth"
	"storefront.org/internal/authz"
	"storefront.org/internal/ratelimit"
	"storefront.org/internal/respcache"
	"storefront.org/internal/sanitize"
	"storefront.org/internal/validate"
)

// Sanitize cleans the query and JSON body.
func Sanitize() Stage {
	return Stage{Name: "sanitize", Kind: KindSanitize, Run: func(req Request, next Next) (*Response, error) {
		q, err := sanitize.Query(req.Query)
		if err != nil {
			return nil, err
		}
		req = req.WithQuery(q)
		if len(req.Body) > 0 {
			body, err := sanitize.Body(req.Body)
			if err != nil {
				return nil, err
			}
			req = req.WithBody(body)
		}
		return next(req)
	}}
}

// RateLimit counts the request against l, keyed by API key or client
// address.
func RateLimit(l *ratelimit.Limiter, now func() time.Time) Stage {
	return Stage{Name: "ratelimit:" + l.Rule().Name, Kind: KindRateLimit, Run: func(req Request, next Next) (*Response, error) {
		if ratelimit.Exempt(req.Path) {
			return next(req)
		}
		key := ratelimit.Key(req.Header("X-API-Key"), "", req.ClientIP)
		return limit(req, next, l, key, now)
	}}
}

// TierLimit counts the request against the tier of the authenticated
// principal, keyed by principal id.
func TierLimit(t *ratelimit.Tiered, now func() time.Time) Stage {
	return Stage{Name: "ratelimit:tier", Kind: KindRateLimit, NeedsPrincipal: true, Run: func(req Request, next Next) (*Response, error) {
		tier, principalID := ratelimit.TierAnonymous, ""
		if req.Principal != nil {
			tier, principalID = string(req.Principal.Role), req.Principal.ID
		}
		key := ratelimit.Key(req.Header("X-API-Key"), principalID, req.ClientIP)
		return limit(req, next, t.For(tier), key, now)
	}}
}

func limit(req Request, next Next, l *ratelimit.Limiter, key string, now func() time.Time) (*Response, error) {
	d := l.Allow(req.Context(), key)
	h := http.Header{}
	d.Apply(h, now())
	if !d.Allowed {
		_ = audit.LogEvent(req.Context(), audit.EventRateLimited, map[string]any{
			"limiter": d.Rule.Name,
			"key":     key,
			"ip":      req.ClientIP,
			"path":    req.Path,
		})
		return nil, WithHeaders(apperr.Wrap(apperr.KindRateLimited, d.Rule.Message, ratelimit.ErrLimited), h)
	}
	return next(req.WithHeaders(h))
}

// TTLFunc picks the cache lifetime of a request.
type TTLFunc func(req Request) time.Duration

// TTL returns a TTLFunc with a fixed lifetime.
func TTL(d time.Duration) TTLFunc {
	return func(Request) time.Duration { return d }
}

// PublicCache serves anonymous requests from the shared response cache.
// Requests carrying credentials bypass it.
func PublicCache(c *respcache.Cache, ttl TTLFunc) Stage {
	return Stage{Name: "cache:public", Kind: KindCache, Public: true, Run: func(req Request, next Next) (*Response, error) {
		if !c.Cacheable(req.Method) {
			return next(req)
		}
		if req.Header("Authorization") != "" {
			return next(req.WithHeader(respcache.HeaderCache, respcache.Bypass))
		}
		return cached(c, req, next, respcache.Key(req.Method, req.Path, req.Query), ttl)
	}}
}

// PrivateCache serves an authenticated principal from entries scoped to
// that principal.
func PrivateCache(c *respcache.Cache, ttl TTLFunc) Stage {
	return Stage{Name: "cache:private", Kind: KindCache, NeedsPrincipal: true, Run: func(req Request, next Next) (*Response, error) {
		if !c.Cacheable(req.Method) || req.Principal == nil {
			return next(req)
		}
		key := respcache.PrivateKey(req.Principal.ID, respcache.Key(req.Method, req.Path, req.Query))
		return cached(c, req, next, key, ttl)
	}}
}

func cached(c *respcache.Cache, req Request, next Next, key string, ttl TTLFunc) (*Response, error) {
	ctx := req.Context()
	if e, ok := c.Lookup(ctx, key); ok {
		hit := req.WithHeader(respcache.HeaderCache, respcache.Hit).WithHeader(respcache.HeaderCacheKey, key)
		resp := &Response{Status: e.Status, Message: e.Message, Pagination: e.Pagination}
		if len(e.Data) > 0 {
			resp.Data = e.Data
		}
		return hit.Finish(resp), nil
	}

	miss := req.WithHeader(respcache.HeaderCache, respcache.Miss).
		WithHeader(respcache.HeaderCacheKey, key)
	resp, err := next(miss)
	if err != nil || !resp.Successful() {
		return resp, err
	}
	entry := respcache.Entry{Status: resp.Status, Message: resp.Message, Pagination: resp.Pagination}
	if resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		// Serve the encoded form so a later HIT returns identical bytes.
		resp.Data = json.RawMessage(raw)
		entry.Data = raw
	}
	c.Store(ctx, key, entry, ttl(req))
	return resp, nil
}

// Authenticator resolves bearer tokens to principals.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (auth.Principal, error)
}

// Authenticate requires a valid bearer token.
func Authenticate(a Authenticator) Stage {
	return Stage{Name: "authenticate", Kind: KindAuthenticate, Run: func(req Request, next Next) (*Response, error) {
		token, ok := req.BearerToken()
		if !ok {
			return nil, apperr.Unauthenticated("Authentication required", "token_missing")
		}
		p, err := a.Authenticate(req.Context(), token)
		if err != nil {
			return nil, err
		}
		return next(req.WithPrincipal(p))
	}}
}

// RequireRoles allows principals whose role is one of roles.
func RequireRoles(roles ...auth.Role) Stage {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return Stage{Name: "authorize:" + strings.Join(names, "|"), Kind: KindAuthorize, Run: func(req Request, next Next) (*Response, error) {
		if d := authz.Authorize(req.Principal, roles...); !d.Allowed {
			return nil, denied(req, d)
		}
		return next(req)
	}}
}

// OwnerFunc resolves the owner of the resource a request targets.
type OwnerFunc func(req Request) (string, error)

// RequirePermission evaluates permission against policy. When owner is
// set, ownership-restricted grants apply to the resolved owner.
func RequirePermission(policy *authz.Policy, permission string, owner OwnerFunc) Stage {
	return Stage{Name: "authorize:" + permission, Kind: KindAuthorize, Run: func(req Request, next Next) (*Response, error) {
		ownerID := ""
		if owner != nil {
			id, err := owner(req)
			if err != nil {
				return nil, err
			}
			ownerID = id
		}
		if d := policy.Decide(req.Principal, permission, ownerID); !d.Allowed {
			return nil, denied(req, d)
		}
		return next(req)
	}}
}

// OwnerOrAdmin allows the resource owner and administrators.
func OwnerOrAdmin(owner OwnerFunc) Stage {
	return Stage{Name: "authorize:owner-or-admin", Kind: KindAuthorize, Run: func(req Request, next Next) (*Response, error) {
		ownerID, err := owner(req)
		if err != nil {
			return nil, err
		}
		if d := authz.OwnerOrAdmin(req.Principal, ownerID); !d.Allowed {
			return nil, denied(req, d)
		}
		return next(req)
	}}
}

func denied(req Request, d authz.Decision) error {
	fields := map[string]any{"path": req.Path, "method": req.Method, "reason": d.Reason}
	if req.Principal != nil {
		fields["principal_id"] = req.Principal.ID
		fields["role"] = string(req.Principal.Role)
	}
	_ = audit.LogEvent(req.Context(), audit.EventAccessDenied, fields)
	return apperr.Forbidden("You do not have permission to perform this action")
}

// Validate checks the request against schema.
func Validate(schema validate.Schema) Stage {
	return Stage{Name: "validate", Kind: KindValidate, Run: func(req Request, next Next) (*Response, error) {
		if err := validate.Error(schema.Check(req.Body, req.Query, req.Params)); err != nil {
			return nil, err
		}
		return next(req)
	}}
}

// Invalidate purges cache entries matching tags after a successful
// mutation and before the response is sent.
func Invalidate(c *respcache.Cache, tags ...string) Stage {
	return Stage{Name: "invalidate:" + strings.Join(tags, ","), Kind: KindInvalidate, Run: func(req Request, next Next) (*Response, error) {
		resp, err := next(req)
		if err != nil || !resp.Successful() {
			return resp, err
		}
		c.Invalidate(req.Context(), tags...)
		return resp, nil
	}}
}
