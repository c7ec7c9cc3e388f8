package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront.org/internal/apperr"
	"storefront.org/internal/auth"
	"storefront.org/internal/envelope"
)

// Request is the per-request value threaded through the stages. Stages never
// mutate a Request they received; the With* methods return updated copies.
type Request struct {
	ctx  context.Context
	http *http.Request

	ID        string
	ClientIP  string
	Method    string
	Path      string
	Route     string
	Params    map[string]string
	Query     url.Values
	Body      []byte
	Principal *auth.Principal
	Received  time.Time

	headers http.Header
}

// Context returns the request context. It carries the request id and, once
// authenticated, the principal.
func (r Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Header returns an inbound request header.
func (r Request) Header(name string) string {
	if r.http == nil {
		return ""
	}
	return r.http.Header.Get(name)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func (r Request) BearerToken() (string, bool) {
	h := strings.TrimSpace(r.Header("Authorization"))
	if h == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Param returns a path parameter.
func (r Request) Param(name string) string { return r.Params[name] }

// WithPrincipal returns a copy carrying p, also attached to the context.
func (r Request) WithPrincipal(p auth.Principal) Request {
	r.Principal = &p
	r.ctx = auth.ContextWithPrincipal(r.Context(), p)
	return r
}

// WithBody returns a copy with body replaced.
func (r Request) WithBody(body []byte) Request {
	r.Body = body
	return r
}

// WithQuery returns a copy with the query replaced.
func (r Request) WithQuery(q url.Values) Request {
	r.Query = q
	return r
}

// WithHeader returns a copy that will emit the response header name.
func (r Request) WithHeader(name, value string) Request {
	h := make(http.Header, len(r.headers)+1)
	for k, v := range r.headers {
		h[k] = v
	}
	h.Set(name, value)
	r.headers = h
	return r
}

// WithHeaders returns a copy that will emit every header of hs.
func (r Request) WithHeaders(hs http.Header) Request {
	for k, v := range hs {
		if len(v) > 0 {
			r = r.WithHeader(k, v[0])
		}
	}
	return r
}

// ResponseHeaders returns the headers accumulated for the response.
func (r Request) ResponseHeaders() http.Header { return r.headers.Clone() }

// Finish merges the accumulated headers into resp. Headers already set on
// resp win.
func (r Request) Finish(resp *Response) *Response {
	if resp == nil || len(r.headers) == 0 {
		return resp
	}
	if resp.Headers == nil {
		resp.Headers = make(http.Header, len(r.headers))
	}
	for k, v := range r.headers {
		if _, ok := resp.Headers[k]; !ok {
			resp.Headers[k] = append([]string(nil), v...)
		}
	}
	return resp
}

// Decode unmarshals the body into v.
func (r Request) Decode(v any) error {
	if len(r.Body) == 0 {
		return apperr.BadRequest("Request body is required")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return apperr.Wrap(apperr.KindBadRequest, "Request body has an unexpected shape", err)
	}
	return nil
}

// Response is what a handler or short-circuiting stage produces.
type Response struct {
	Status     int
	Message    string
	Data       any
	Pagination *envelope.Pagination
	Headers    http.Header
}

// OK builds a 200 response.
func OK(message string, data any) *Response {
	return &Response{Status: http.StatusOK, Message: message, Data: data}
}

// Created builds a 201 response.
func Created(message string, data any) *Response {
	return &Response{Status: http.StatusCreated, Message: message, Data: data}
}

// Page builds a 200 response carrying one page of a collection.
func Page(message string, items any, p envelope.Pagination) *Response {
	return &Response{Status: http.StatusOK, Message: message, Data: items, Pagination: &p}
}

// Successful reports whether the response has a 2xx status.
func (r *Response) Successful() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}
