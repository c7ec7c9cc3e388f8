// Package pipeline composes per-route request processing out of ordered
// stages: sanitization, rate limiting, caching, authentication,
// authorization and validation in front of a handler, with a single error
// mapper behind them.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"storefront.org/internal/apperr"
	"storefront.org/internal/audit"
	"storefront.org/internal/envelope"
	"storefront.org/internal/ids"
	"storefront.org/internal/obs"
)

// Kind classifies a stage for ordering checks.
type Kind int

const (
	KindCustom Kind = iota
	KindSanitize
	KindRateLimit
	KindCache
	KindAuthenticate
	KindAuthorize
	KindValidate
	KindInvalidate
)

func (k Kind) String() string {
	switch k {
	case KindSanitize:
		return "sanitize"
	case KindRateLimit:
		return "ratelimit"
	case KindCache:
		return "cache"
	case KindAuthenticate:
		return "authenticate"
	case KindAuthorize:
		return "authorize"
	case KindValidate:
		return "validate"
	case KindInvalidate:
		return "invalidate"
	default:
		return "custom"
	}
}

// Next continues the pipeline with req.
type Next func(req Request) (*Response, error)

// Handler is the terminal step of a route.
type Handler func(req Request) (*Response, error)

// Stage is one step of a route. Run either returns a response or error
// itself (short-circuit) or calls next.
type Stage struct {
	Name string
	Kind Kind
	// Public marks a cache stage serving the shared, anonymous cache.
	Public bool
	// NeedsPrincipal marks stages that read the authenticated principal.
	NeedsPrincipal bool
	Run            func(req Request, next Next) (*Response, error)
}

// ErrInvalidOrder is returned by Compose for stage lists that violate the
// ordering rules.
var ErrInvalidOrder = errors.New("pipeline: invalid stage order")

// Options are shared by every route of a Composer.
type Options struct {
	Now           func() time.Time
	Params        func(*http.Request) map[string]string
	ClientIP      func(*http.Request) string
	Production    bool
	SlowThreshold time.Duration
}

// Composer builds routes that share Options.
type Composer struct {
	opts Options
}

// NewComposer returns a Composer. Zero-valued options get defaults.
func NewComposer(opts Options) *Composer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Params == nil {
		opts.Params = func(*http.Request) map[string]string { return nil }
	}
	if opts.ClientIP == nil {
		opts.ClientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 30 * time.Second
	}
	return &Composer{opts: opts}
}

// Route is a composed, servable route.
type Route struct {
	name    string
	stages  []Stage
	handler Handler
	opts    Options
}

// Compose checks the stage order and returns the route.
func (c *Composer) Compose(name string, h Handler, stages ...Stage) (*Route, error) {
	if h == nil {
		return nil, fmt.Errorf("pipeline: route %s has no handler", name)
	}
	if err := CheckOrder(stages); err != nil {
		return nil, fmt.Errorf("route %s: %w", name, err)
	}
	return &Route{name: name, stages: append([]Stage(nil), stages...), handler: h, opts: c.opts}, nil
}

// MustCompose is Compose for statically declared routes.
func (c *Composer) MustCompose(name string, h Handler, stages ...Stage) *Route {
	rt, err := c.Compose(name, h, stages...)
	if err != nil {
		panic(err)
	}
	return rt
}

// CheckOrder enforces the stage ordering rules:
// sanitization stages come first; nothing attacker-reachable (cache,
// authentication, authorization, validation) runs before the first rate
// limit stage of a limited route; authorization and principal-keyed stages
// follow authentication; validation follows authorization; the public cache
// precedes authentication and the private cache follows it.
func CheckOrder(stages []Stage) error {
	firstLimit, firstAuth, lastAuthorize := -1, -1, -1
	seenOther := false
	for i, s := range stages {
		if s.Run == nil {
			return fmt.Errorf("%w: stage %q has no body", ErrInvalidOrder, s.Name)
		}
		switch s.Kind {
		case KindSanitize:
			if seenOther {
				return fmt.Errorf("%w: sanitize stage %q after other stages", ErrInvalidOrder, s.Name)
			}
			continue
		case KindRateLimit:
			if firstLimit < 0 {
				firstLimit = i
			}
		case KindAuthenticate:
			if firstAuth < 0 {
				firstAuth = i
			}
		case KindAuthorize:
			lastAuthorize = i
		}
		seenOther = true
	}

	for i, s := range stages {
		switch s.Kind {
		case KindCache, KindAuthenticate, KindAuthorize, KindValidate:
			if firstLimit >= 0 && i < firstLimit {
				return fmt.Errorf("%w: %s stage %q before rate limiting", ErrInvalidOrder, s.Kind, s.Name)
			}
		}
		if s.Kind == KindValidate && i < lastAuthorize {
			return fmt.Errorf("%w: validation %q before authorization", ErrInvalidOrder, s.Name)
		}
		if s.Kind == KindAuthorize || s.NeedsPrincipal {
			if firstAuth < 0 || i < firstAuth {
				return fmt.Errorf("%w: stage %q requires an earlier authentication stage", ErrInvalidOrder, s.Name)
			}
		}
		if s.Kind == KindCache {
			switch {
			case s.Public && firstAuth >= 0 && i > firstAuth:
				return fmt.Errorf("%w: public cache %q after authentication", ErrInvalidOrder, s.Name)
			case !s.Public && (firstAuth < 0 || i < firstAuth):
				return fmt.Errorf("%w: private cache %q before authentication", ErrInvalidOrder, s.Name)
			}
		}
	}
	return nil
}

// StageError records where a request failed.
type StageError struct {
	Stage   string
	Request Request
	Err     error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

func (rt *Route) run(i int, req Request) (*Response, error) {
	if i == len(rt.stages) {
		resp, err := rt.handler(req)
		if err != nil {
			return nil, wrapStage("handler", req, err)
		}
		if resp == nil {
			resp = OK("", nil)
		}
		return req.Finish(resp), nil
	}
	s := rt.stages[i]
	resp, err := s.Run(req, func(next Request) (*Response, error) {
		return rt.run(i+1, next)
	})
	if err != nil {
		return nil, wrapStage(s.Name, req, err)
	}
	return resp, nil
}

func wrapStage(name string, req Request, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: name, Request: req, Err: err}
}

// ServeHTTP runs the route and writes the envelope.
func (rt *Route) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := rt.receive(r)
	var resp *Response
	if err == nil {
		resp, err = rt.execute(req)
	}
	now := rt.opts.Now()
	if err != nil {
		rt.fail(w, req, err, now)
	} else {
		rt.respond(w, resp, now)
	}
	if elapsed := now.Sub(req.Received); elapsed > rt.opts.SlowThreshold {
		obs.Logger().WithFields(logrus.Fields{
			"route":      rt.name,
			"method":     req.Method,
			"path":       req.Path,
			"request_id": req.ID,
			"elapsed_ms": elapsed.Milliseconds(),
		}).Warn("slow request")
	}
}

func (rt *Route) receive(r *http.Request) (Request, error) {
	id := audit.RequestIDFromContext(r.Context())
	if id == "" {
		id = ids.NewRequestID()
	}
	req := Request{
		ctx:      audit.WithRequestID(r.Context(), id),
		http:     r,
		ID:       id,
		ClientIP: rt.opts.ClientIP(r),
		Method:   r.Method,
		Path:     r.URL.Path,
		Route:    rt.name,
		Params:   rt.opts.Params(r),
		Query:    r.URL.Query(),
		Received: rt.opts.Now(),
	}
	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return req, apperr.BadRequest("Request body too large")
			}
			return req, apperr.BadRequest("Could not read request body")
		}
		req.Body = body
	}
	return req, nil
}

func (rt *Route) execute(req Request) (resp *Response, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp = nil
			err = &panicError{value: p, stack: debug.Stack()}
		}
	}()
	return rt.run(0, req)
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func (rt *Route) respond(w http.ResponseWriter, resp *Response, now time.Time) {
	for k, v := range resp.Headers {
		w.Header()[k] = v
	}
	body := envelope.Success(resp.Status, resp.Message, resp.Data)
	body.Pagination = resp.Pagination
	if err := envelope.Write(w, body, now); err != nil {
		obs.Logger().WithError(err).WithField("route", rt.name).Warn("write response")
	}
}
