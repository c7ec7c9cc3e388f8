// Package httpapi exposes the storefront over HTTP. Every route is a
// pipeline of stages in front of a handler; the router only maps paths.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"storefront.org/internal/apperr"
	"storefront.org/internal/auth"
	"storefront.org/internal/authz"
	"storefront.org/internal/catalog"
	"storefront.org/internal/envelope"
	"storefront.org/internal/obs"
	"storefront.org/internal/pipeline"
	"storefront.org/internal/ratelimit"
	"storefront.org/internal/respcache"
)

// Limits are the limiter classes shared by all routes.
type Limits struct {
	General *ratelimit.Limiter
	Auth    *ratelimit.Limiter
	Upload  *ratelimit.Limiter
	Tiers   *ratelimit.Tiered
}

// Deps wires the API to its collaborators.
type Deps struct {
	Auth    *auth.Service
	Catalog catalog.Service
	Policy  *authz.Policy
	Limits  Limits
	// Cache is optional; nil serves every request uncached.
	Cache *respcache.Cache
	Probe ReadyProbe

	Version      string
	Production   bool
	TrustProxy   bool
	MaxBodyBytes int64
	SlowRequest  time.Duration
	CORS         CORSOptions
	Now          func() time.Time
}

// API is the HTTP layer.
type API struct {
	deps     Deps
	router   *mux.Router
	composer *pipeline.Composer
	clientIP func(*http.Request) string
}

// New validates deps and builds every route.
func New(d Deps) (*API, error) {
	switch {
	case d.Auth == nil:
		return nil, errors.New("httpapi: auth service is required")
	case d.Catalog == nil:
		return nil, errors.New("httpapi: catalog service is required")
	case d.Limits.General == nil || d.Limits.Auth == nil || d.Limits.Upload == nil || d.Limits.Tiers == nil:
		return nil, errors.New("httpapi: all rate limiters are required")
	}
	if d.Policy == nil {
		d.Policy = authz.DefaultPolicy()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	a := &API{
		deps:     d,
		router:   mux.NewRouter(),
		clientIP: ClientIP(d.TrustProxy),
	}
	a.composer = pipeline.NewComposer(pipeline.Options{
		Now:           d.Now,
		Params:        mux.Vars,
		ClientIP:      a.clientIP,
		Production:    d.Production,
		SlowThreshold: d.SlowRequest,
	})
	if err := a.routes(); err != nil {
		return nil, err
	}
	notFound := a.composer.MustCompose("not_found", func(pipeline.Request) (*pipeline.Response, error) {
		return nil, apperr.NotFound("Route not found")
	})
	a.router.NotFoundHandler = notFound
	a.router.MethodNotAllowedHandler = notFound
	return a, nil
}

// Handler returns the router wrapped in the cross-cutting middleware.
func (a *API) Handler() http.Handler {
	return chain(a.router,
		obs.Instrument,
		RequestID,
		LoggingJSON(a.clientIP),
		Recover(a.deps.Production),
		SecurityHeaders(a.deps.Production),
		CORS(a.deps.CORS),
		MaxBodyBytes(a.deps.MaxBodyBytes),
	)
}

func (a *API) handle(method, path, name string, h pipeline.Handler, stages ...pipeline.Stage) error {
	rt, err := a.composer.Compose(name, h, stages...)
	if err != nil {
		return err
	}
	a.router.Handle(path, rt).Methods(method)
	return nil
}

// base is the prefix every API route starts with.
func (a *API) base(extra ...pipeline.Stage) []pipeline.Stage {
	stages := []pipeline.Stage{pipeline.Sanitize(), pipeline.RateLimit(a.deps.Limits.General, a.deps.Now)}
	return append(stages, extra...)
}

// authed authenticates and applies the per-role budget.
func (a *API) authed() []pipeline.Stage {
	return []pipeline.Stage{
		pipeline.Authenticate(a.deps.Auth),
		pipeline.TierLimit(a.deps.Limits.Tiers, a.deps.Now),
	}
}

func (a *API) publicCache(ttl pipeline.TTLFunc) []pipeline.Stage {
	if a.deps.Cache == nil {
		return nil
	}
	return []pipeline.Stage{pipeline.PublicCache(a.deps.Cache, ttl)}
}

func (a *API) privateCache(ttl pipeline.TTLFunc) []pipeline.Stage {
	if a.deps.Cache == nil {
		return nil
	}
	return []pipeline.Stage{pipeline.PrivateCache(a.deps.Cache, ttl)}
}

func (a *API) invalidate(tags ...string) []pipeline.Stage {
	if a.deps.Cache == nil {
		return nil
	}
	return []pipeline.Stage{pipeline.Invalidate(a.deps.Cache, tags...)}
}

func join(groups ...[]pipeline.Stage) []pipeline.Stage {
	var out []pipeline.Stage
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func meta(req pipeline.Request) auth.ClientMeta {
	return auth.ClientMeta{UserAgent: req.Header("User-Agent"), IP: req.ClientIP}
}

// paging reads page and limit from a validated query.
func paging(req pipeline.Request) (int, int) {
	page, _ := strconv.Atoi(req.Query.Get("page"))
	limit, _ := strconv.Atoi(req.Query.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func pageOf(message string, items any, page, limit, total int) *pipeline.Response {
	return pipeline.Page(message, items, envelope.NewPagination(page, limit, total))
}
