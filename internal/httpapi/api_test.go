package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront.org/internal/apperr"
	"storefront.org/internal/audit"
	"storefront.org/internal/auth"
	"storefront.org/internal/catalog"
	"storefront.org/internal/ids"
	"storefront.org/internal/kv"
	"storefront.org/internal/ratelimit"
	"storefront.org/internal/respcache"
	"storefront.org/internal/store/memory"
)

const (
	adminEmail    = "admin@storefront.test"
	adminPassword = "admin-password"
	userPassword  = "correct horse"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type envelopeBody struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     []apperr.Detail `json:"errors"`
	Pagination *struct {
		TotalItems int `json:"totalItems"`
	} `json:"pagination"`
}

func (e envelopeBody) code() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Code
}

type apiFixture struct {
	clock   *fakeClock
	auth    *auth.Service
	catalog *catalog.InMemory
	handler http.Handler
	logs    *bytes.Buffer
	ip      string
	admin   auth.Session
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		clock: &fakeClock{now: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
		logs:  captureLogs(t),
		ip:    "203.0.113.7",
	}
	principals := memory.NewPrincipals()
	tokens, err := auth.NewTokenService([]byte("0123456789abcdef0123456789abcdef"), memory.NewRefreshTokens(), principals,
		auth.WithClock(f.clock.Now))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	f.auth, err = auth.NewService(principals, tokens, auth.WithServiceClock(f.clock.Now), auth.WithPasswordCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()
	if _, _, err := f.auth.EnsureAdmin(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	f.catalog = catalog.NewInMemory(catalog.WithClock(f.clock.Now))
	if err := catalog.Seed(ctx, f.catalog); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	counter := kv.NewMemoryCounter(f.clock.Now)
	withClock := ratelimit.WithClock(f.clock.Now)
	api, err := New(Deps{
		Auth:    f.auth,
		Catalog: f.catalog,
		Limits: Limits{
			General: ratelimit.New(ratelimit.General, counter, withClock),
			Auth:    ratelimit.New(ratelimit.Auth, counter, withClock),
			Upload:  ratelimit.New(ratelimit.Upload, counter, withClock),
			Tiers:   ratelimit.NewTiered(ratelimit.DefaultTiers(), counter, withClock),
		},
		Cache:   respcache.New(kv.NewMemoryCache(256, time.Hour, f.clock.Now), respcache.WithClock(f.clock.Now)),
		Version: "test",
		Now:     f.clock.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.handler = api.Handler()
	f.admin = f.login(t, adminEmail, adminPassword)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target, token, body string) (*httptest.ResponseRecorder, envelopeBody) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, target, rd)
	r.RemoteAddr = f.ip + ":40000"
	if body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, r)
	var env envelopeBody
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode envelope %q: %v", method, target, rr.Body.String(), err)
	}
	return rr, env
}

func (f *apiFixture) login(t *testing.T, email, password string) auth.Session {
	t.Helper()
	rr, env := f.do(t, http.MethodPost, "/api/v1/auth/login", "", fmt.Sprintf(`{"email":%q,"password":%q}`, email, password))
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, rr.Code, rr.Body.String())
	}
	return decode[auth.Session](t, env)
}

func (f *apiFixture) register(t *testing.T, email string) auth.Session {
	t.Helper()
	rr, env := f.do(t, http.MethodPost, "/api/v1/auth/register", "",
		fmt.Sprintf(`{"email":%q,"password":%q,"name":"Shopper"}`, email, userPassword))
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, rr.Code, rr.Body.String())
	}
	return decode[auth.Session](t, env)
}

func decode[T any](t *testing.T, env envelopeBody) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return v
}

func (f *apiFixture) firstProduct(t *testing.T) catalog.Product {
	t.Helper()
	ps, _, err := f.catalog.ListProducts(context.Background(), catalog.ProductFilter{})
	if err != nil || len(ps) == 0 {
		t.Fatalf("no seeded products: %v", err)
	}
	return ps[0]
}

func TestSessionLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	reg := f.register(t, "shopper@example.com")
	if reg.Tokens.AccessToken == "" || reg.Principal.Role != auth.RoleUser {
		t.Fatalf("unexpected registration: %+v", reg)
	}

	s := f.login(t, "shopper@example.com", userPassword)
	rr, env := f.do(t, http.MethodGet, "/api/v1/auth/me", s.Tokens.AccessToken, "")
	if rr.Code != http.StatusOK || rr.Header().Get(respcache.HeaderCache) != respcache.Miss {
		t.Fatalf("me: %d cache=%q", rr.Code, rr.Header().Get(respcache.HeaderCache))
	}
	if me := decode[auth.Principal](t, env); me.Email != "shopper@example.com" {
		t.Fatalf("unexpected profile: %+v", me)
	}
	rr, _ = f.do(t, http.MethodGet, "/api/v1/auth/me", s.Tokens.AccessToken, "")
	if rr.Header().Get(respcache.HeaderCache) != respcache.Hit {
		t.Fatalf("expected profile cache hit, got %q", rr.Header().Get(respcache.HeaderCache))
	}

	f.clock.Advance(16 * time.Minute)
	rr, env = f.do(t, http.MethodGet, "/api/v1/auth/me", s.Tokens.AccessToken, "")
	if rr.Code != http.StatusUnauthorized || env.code() != "token_expired" {
		t.Fatalf("expired token: %d %+v", rr.Code, env)
	}

	rr, env = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, s.Tokens.RefreshToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rr.Code, rr.Body.String())
	}
	next := decode[auth.Session](t, env)
	if next.Tokens.RefreshToken == s.Tokens.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}
	if rr, _ := f.do(t, http.MethodGet, "/api/v1/auth/me", next.Tokens.AccessToken, ""); rr.Code != http.StatusOK {
		t.Fatalf("me with refreshed token: %d", rr.Code)
	}

	rr, env = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, s.Tokens.RefreshToken))
	if rr.Code != http.StatusUnauthorized || env.code() != "token_reused" {
		t.Fatalf("reused token: %d %+v", rr.Code, env)
	}
	if !strings.Contains(f.logs.String(), audit.EventRefreshReuse) {
		t.Fatalf("reuse not audited: %s", f.logs.String())
	}
	rr, env = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, next.Tokens.RefreshToken))
	if rr.Code != http.StatusUnauthorized || env.code() != "token_revoked" {
		t.Fatalf("family not revoked: %d %+v", rr.Code, env)
	}
}

func TestLogout(t *testing.T) {
	f := newAPIFixture(t)
	s := f.register(t, "leaver@example.com")
	body := fmt.Sprintf(`{"refreshToken":%q}`, s.Tokens.RefreshToken)
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/auth/logout", "", body); rr.Code != http.StatusOK {
		t.Fatalf("logout: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", body); rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: %d", rr.Code)
	}

	other := f.login(t, "leaver@example.com", userPassword)
	rr, env := f.do(t, http.MethodPost, "/api/v1/auth/logout-all", other.Tokens.AccessToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout-all: %d %s", rr.Code, rr.Body.String())
	}
	if got := decode[map[string]int](t, env)["revoked"]; got != 1 {
		t.Fatalf("expected one live token revoked, got %d", got)
	}
}

func TestLoginRateLimit(t *testing.T) {
	f := newAPIFixture(t)
	f.ip = "198.51.100.20"
	bad := fmt.Sprintf(`{"email":%q,"password":"wrong-password"}`, adminEmail)
	for i := 1; i <= 10; i++ {
		rr, _ := f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rr.Code)
		}
	}
	rr, env := f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("11th attempt: expected 429, got %d", rr.Code)
	}
	if env.Message != ratelimit.Auth.Message || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("unexpected 429: %+v headers=%v", env, rr.Header())
	}
	if rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining: %q", rr.Header().Get("X-RateLimit-Remaining"))
	}

	f.ip = "198.51.100.21"
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad); rr.Code != http.StatusUnauthorized {
		t.Fatalf("other client should not be limited: %d", rr.Code)
	}

	f.ip = "198.51.100.20"
	f.clock.Advance(15 * time.Minute)
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad); rr.Code != http.StatusUnauthorized {
		t.Fatalf("next window: expected 401, got %d", rr.Code)
	}
}

func TestProductCacheAndInvalidation(t *testing.T) {
	f := newAPIFixture(t)

	rr1, env1 := f.do(t, http.MethodGet, "/api/v1/products?limit=50", "", "")
	rr2, env2 := f.do(t, http.MethodGet, "/api/v1/products?limit=50", "", "")
	if rr1.Header().Get(respcache.HeaderCache) != respcache.Miss || rr2.Header().Get(respcache.HeaderCache) != respcache.Hit {
		t.Fatalf("cache headers: %q then %q", rr1.Header().Get(respcache.HeaderCache), rr2.Header().Get(respcache.HeaderCache))
	}
	if !bytes.Equal(env1.Data, env2.Data) {
		t.Fatalf("hit differs from miss:\n%s\n%s", env1.Data, env2.Data)
	}
	if env2.Pagination == nil || env2.Pagination.TotalItems != 3 {
		t.Fatalf("unexpected pagination: %+v", env2.Pagination)
	}

	cats, _ := f.catalog.ListCategories(context.Background())
	body := fmt.Sprintf(`{"name":"Desk Lamp","priceCents":3999,"categoryId":%q,"stock":5}`, cats[0].ID)
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/products", f.admin.Tokens.AccessToken, body); rr.Code != http.StatusCreated {
		t.Fatalf("create product: %d %s", rr.Code, rr.Body.String())
	}

	rr3, env3 := f.do(t, http.MethodGet, "/api/v1/products?limit=50", "", "")
	if rr3.Header().Get(respcache.HeaderCache) != respcache.Miss {
		t.Fatalf("expected miss after invalidation, got %q", rr3.Header().Get(respcache.HeaderCache))
	}
	if env3.Pagination == nil || env3.Pagination.TotalItems != 4 {
		t.Fatalf("new product not listed: %+v", env3.Pagination)
	}

	rr, _ := f.do(t, http.MethodGet, "/api/v1/products?limit=50", f.admin.Tokens.AccessToken, "")
	if rr.Header().Get(respcache.HeaderCache) != respcache.Bypass {
		t.Fatalf("credentialed request should bypass, got %q", rr.Header().Get(respcache.HeaderCache))
	}

	f.clock.Advance(respcache.TTLProductList + time.Second)
	rr, _ = f.do(t, http.MethodGet, "/api/v1/products?limit=50", "", "")
	if rr.Header().Get(respcache.HeaderCache) != respcache.Miss {
		t.Fatalf("expected miss after expiry, got %q", rr.Header().Get(respcache.HeaderCache))
	}
}

func TestAuthorizationMatrix(t *testing.T) {
	f := newAPIFixture(t)
	user := f.register(t, "user@example.com")
	mod := f.register(t, "mod@example.com")
	if rr, _ := f.do(t, http.MethodPatch, "/api/v1/admin/users/"+mod.Principal.ID+"/role", f.admin.Tokens.AccessToken, `{"role":"moderator"}`); rr.Code != http.StatusOK {
		t.Fatalf("promote: %d %s", rr.Code, rr.Body.String())
	}
	cats, _ := f.catalog.ListCategories(context.Background())
	product := fmt.Sprintf(`{"name":"Notebook","priceCents":499,"categoryId":%q}`, cats[0].ID)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"anonymous create product", http.MethodPost, "/api/v1/products", "", product, http.StatusUnauthorized},
		{"user create product", http.MethodPost, "/api/v1/products", user.Tokens.AccessToken, product, http.StatusForbidden},
		{"moderator create product", http.MethodPost, "/api/v1/products", mod.Tokens.AccessToken, product, http.StatusCreated},
		{"admin create category", http.MethodPost, "/api/v1/categories", f.admin.Tokens.AccessToken, `{"name":"Garden"}`, http.StatusCreated},
		{"user list users", http.MethodGet, "/api/v1/admin/users", user.Tokens.AccessToken, "", http.StatusForbidden},
		{"moderator list users", http.MethodGet, "/api/v1/admin/users", mod.Tokens.AccessToken, "", http.StatusForbidden},
		{"admin list users", http.MethodGet, "/api/v1/admin/users", f.admin.Tokens.AccessToken, "", http.StatusOK},
		{"user upload", http.MethodPost, "/api/v1/uploads", user.Tokens.AccessToken, `{"filename":"a.png","contentType":"image/png","size":10}`, http.StatusForbidden},
		{"moderator upload", http.MethodPost, "/api/v1/uploads", mod.Tokens.AccessToken, `{"filename":"a.png","contentType":"image/png","size":10}`, http.StatusCreated},
		{"moderator invalidate cache", http.MethodPost, "/api/v1/admin/cache/invalidate", mod.Tokens.AccessToken, `{"tags":["/api/v1"]}`, http.StatusForbidden},
		{"admin invalidate cache", http.MethodPost, "/api/v1/admin/cache/invalidate", f.admin.Tokens.AccessToken, `{"tags":["/api/v1"]}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr, _ := f.do(t, tc.method, tc.path, tc.token, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
		})
	}
	if !strings.Contains(f.logs.String(), audit.EventAccessDenied) {
		t.Fatalf("denials not audited")
	}
}

func TestOrderOwnership(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")
	p := f.firstProduct(t)

	rr, env := f.do(t, http.MethodPost, "/api/v1/orders", alice.Tokens.AccessToken,
		fmt.Sprintf(`{"items":[{"productId":%q,"quantity":2}]}`, p.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rr.Code, rr.Body.String())
	}
	order := decode[catalog.Order](t, env)
	if order.UserID != alice.Principal.ID || order.Status != catalog.OrderPending {
		t.Fatalf("unexpected order: %+v", order)
	}
	path := "/api/v1/orders/" + order.ID

	if rr, _ := f.do(t, http.MethodGet, path, bob.Tokens.AccessToken, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("bob read alice's order: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodGet, path, f.admin.Tokens.AccessToken, ""); rr.Code != http.StatusOK {
		t.Fatalf("admin read: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodPost, path+"/cancel", bob.Tokens.AccessToken, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("bob cancel: %d", rr.Code)
	}

	carol := f.register(t, "carol@example.com")
	if rr, _ := f.do(t, http.MethodPatch, "/api/v1/admin/users/"+carol.Principal.ID+"/role", f.admin.Tokens.AccessToken, `{"role":"moderator"}`); rr.Code != http.StatusOK {
		t.Fatalf("promote carol: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodPost, path+"/cancel", carol.Tokens.AccessToken, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("moderator cancel of another user's order: %d", rr.Code)
	}
	rr, env = f.do(t, http.MethodPost, "/api/v1/orders", carol.Tokens.AccessToken,
		fmt.Sprintf(`{"items":[{"productId":%q,"quantity":1}]}`, p.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("moderator create order: %d %s", rr.Code, rr.Body.String())
	}
	own := decode[catalog.Order](t, env)
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/orders/"+own.ID+"/cancel", carol.Tokens.AccessToken, ""); rr.Code != http.StatusOK {
		t.Fatalf("moderator cancel own order: %d %s", rr.Code, rr.Body.String())
	}

	_, env = f.do(t, http.MethodGet, "/api/v1/orders", bob.Tokens.AccessToken, "")
	if env.Pagination == nil || env.Pagination.TotalItems != 0 {
		t.Fatalf("bob should see no orders: %+v", env.Pagination)
	}
	_, env = f.do(t, http.MethodGet, "/api/v1/orders", f.admin.Tokens.AccessToken, "")
	if env.Pagination == nil || env.Pagination.TotalItems != 2 {
		t.Fatalf("admin should see every order: %+v", env.Pagination)
	}

	if rr, _ := f.do(t, http.MethodPatch, path+"/status", alice.Tokens.AccessToken, `{"status":"paid"}`); rr.Code != http.StatusForbidden {
		t.Fatalf("owner status change: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodPost, path+"/cancel", alice.Tokens.AccessToken, ""); rr.Code != http.StatusOK {
		t.Fatalf("alice cancel: %d %s", rr.Code, rr.Body.String())
	}
	rr, env = f.do(t, http.MethodPatch, path+"/status", f.admin.Tokens.AccessToken, `{"status":"paid"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("cancelled order must not be paid: %d %+v", rr.Code, env)
	}
	restored, _ := f.catalog.GetProduct(context.Background(), p.ID)
	if restored.Stock != p.Stock {
		t.Fatalf("stock not restored: %d vs %d", restored.Stock, p.Stock)
	}
}

func TestSuspendedAccount(t *testing.T) {
	f := newAPIFixture(t)
	s := f.register(t, "suspect@example.com")
	if rr, _ := f.do(t, http.MethodGet, "/api/v1/auth/me", s.Tokens.AccessToken, ""); rr.Code != http.StatusOK {
		t.Fatalf("me: %d", rr.Code)
	}

	rr, _ := f.do(t, http.MethodPatch, "/api/v1/admin/users/"+s.Principal.ID+"/status", f.admin.Tokens.AccessToken, `{"status":"suspended"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("suspend: %d %s", rr.Code, rr.Body.String())
	}
	rr, env := f.do(t, http.MethodGet, "/api/v1/auth/me", s.Tokens.AccessToken, "")
	if rr.Code != http.StatusUnauthorized || env.code() != "account_inactive" {
		t.Fatalf("suspended me: %d %+v", rr.Code, env)
	}
	rr, env = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", fmt.Sprintf(`{"refreshToken":%q}`, s.Tokens.RefreshToken))
	if rr.Code != http.StatusUnauthorized || env.code() != "token_revoked" {
		t.Fatalf("suspended refresh: %d %+v", rr.Code, env)
	}
	if !strings.Contains(f.logs.String(), audit.EventStatusChanged) {
		t.Fatalf("status change not audited")
	}
}

func TestNotFoundAndValidation(t *testing.T) {
	f := newAPIFixture(t)

	rr, env := f.do(t, http.MethodGet, "/api/v1/nope", "", "")
	if rr.Code != http.StatusNotFound || env.Success || env.Message != "Route not found" {
		t.Fatalf("unknown route: %d %+v", rr.Code, env)
	}
	if rr, _ := f.do(t, http.MethodDelete, "/api/v1/auth/me", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("method mismatch: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodGet, "/api/v1/products/"+ids.New(), "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown product: %d", rr.Code)
	}

	rr, env = f.do(t, http.MethodPost, "/api/v1/auth/register", "", `{"email":"not-an-email","password":"short"}`)
	if rr.Code != http.StatusUnprocessableEntity || len(env.Errors) < 2 {
		t.Fatalf("validation: %d %+v", rr.Code, env)
	}
	if rr, _ := f.do(t, http.MethodGet, "/api/v1/products/not-an-id", "", ""); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad id: %d", rr.Code)
	}
	if rr, _ := f.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":`); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{"/health", "/healthz", "/readyz"} {
		rr, env := f.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK || !env.Success {
			t.Fatalf("%s: %d %+v", path, rr.Code, env)
		}
		if rr.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatalf("%s should not be rate limited", path)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s missing request id", path)
		}
	}
}
