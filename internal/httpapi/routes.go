package httpapi

import (
	"net/http"
	"time"

	"storefront.org/internal/apperr"
	"storefront.org/internal/auth"
	"storefront.org/internal/authz"
	"storefront.org/internal/obs"
	"storefront.org/internal/pipeline"
	"storefront.org/internal/respcache"
)

const apiPrefix = "/api/v1"

// Invalidation tags. Cache keys embed the request path, so a path prefix
// purges every listing and detail entry beneath it.
const (
	tagCategories = apiPrefix + "/categories"
	tagProducts   = apiPrefix + "/products"
)

func (a *API) routes() error {
	d := a.deps
	general := a.base()
	staff := pipeline.RequireRoles(auth.RoleAdmin, auth.RoleModerator)
	admin := pipeline.RequireRoles(auth.RoleAdmin)

	type route struct {
		method, path, name string
		handler            pipeline.Handler
		stages             []pipeline.Stage
	}
	table := []route{
		{http.MethodGet, "/health", "health", a.health, nil},
		{http.MethodGet, "/healthz", "healthz", a.health, nil},
		{http.MethodGet, "/readyz", "readyz", a.ready, nil},

		{http.MethodPost, apiPrefix + "/auth/register", "auth.register", a.register,
			join(a.base(pipeline.RateLimit(d.Limits.Auth, d.Now), pipeline.Validate(registerSchema)))},
		{http.MethodPost, apiPrefix + "/auth/login", "auth.login", a.login,
			join(a.base(pipeline.RateLimit(d.Limits.Auth, d.Now), pipeline.Validate(loginSchema)))},
		{http.MethodPost, apiPrefix + "/auth/refresh", "auth.refresh", a.refresh,
			join(a.base(pipeline.RateLimit(d.Limits.Auth, d.Now), pipeline.Validate(refreshSchema)))},
		{http.MethodPost, apiPrefix + "/auth/logout", "auth.logout", a.logout,
			join(general, []pipeline.Stage{pipeline.Validate(refreshSchema)})},
		{http.MethodPost, apiPrefix + "/auth/logout-all", "auth.logout_all", a.logoutAll,
			join(general, a.authed())},
		{http.MethodGet, apiPrefix + "/auth/me", "auth.me", a.me,
			join(general, a.authed(), a.privateCache(pipeline.TTL(respcache.TTLProfile)))},

		{http.MethodGet, apiPrefix + "/categories", "categories.list", a.listCategories,
			join(general, a.publicCache(pipeline.TTL(respcache.TTLCategories)))},
		{http.MethodGet, apiPrefix + "/categories/{id}", "categories.get", a.getCategory,
			join(general, a.publicCache(pipeline.TTL(respcache.TTLCategories)), []pipeline.Stage{pipeline.Validate(idSchema)})},
		{http.MethodPost, apiPrefix + "/categories", "categories.create", a.createCategory,
			join(general, a.authed(), []pipeline.Stage{staff, pipeline.Validate(createCategorySchema)}, a.invalidate(tagCategories, tagProducts))},
		{http.MethodPut, apiPrefix + "/categories/{id}", "categories.update", a.updateCategory,
			join(general, a.authed(), []pipeline.Stage{staff, pipeline.Validate(updateCategorySchema)}, a.invalidate(tagCategories, tagProducts))},
		{http.MethodDelete, apiPrefix + "/categories/{id}", "categories.delete", a.deleteCategory,
			join(general, a.authed(), []pipeline.Stage{staff, pipeline.Validate(idSchema)}, a.invalidate(tagCategories, tagProducts))},

		{http.MethodGet, apiPrefix + "/products", "products.list", a.listProducts,
			join(general, a.publicCache(productListTTL), []pipeline.Stage{pipeline.Validate(productListSchema)})},
		{http.MethodGet, apiPrefix + "/products/{id}", "products.get", a.getProduct,
			join(general, a.publicCache(pipeline.TTL(respcache.TTLProductDetail)), []pipeline.Stage{pipeline.Validate(idSchema)})},
		{http.MethodPost, apiPrefix + "/products", "products.create", a.createProduct,
			join(general, a.authed(), []pipeline.Stage{staff, pipeline.Validate(createProductSchema)}, a.invalidate(tagProducts))},
		{http.MethodPut, apiPrefix + "/products/{id}", "products.update", a.updateProduct,
			join(general, a.authed(), []pipeline.Stage{staff, pipeline.Validate(updateProductSchema)}, a.invalidate(tagProducts))},
		{http.MethodDelete, apiPrefix + "/products/{id}", "products.delete", a.deleteProduct,
			join(general, a.authed(), []pipeline.Stage{staff, pipeline.Validate(idSchema)}, a.invalidate(tagProducts))},

		{http.MethodGet, apiPrefix + "/orders", "orders.list", a.listOrders,
			join(general, a.authed(), []pipeline.Stage{
				pipeline.RequirePermission(d.Policy, authz.OrdersRead, self),
				pipeline.Validate(orderListSchema),
			})},
		{http.MethodPost, apiPrefix + "/orders", "orders.create", a.createOrder,
			join(general, a.authed(), []pipeline.Stage{
				pipeline.RequirePermission(d.Policy, authz.OrdersCreate, nil),
				pipeline.Validate(createOrderSchema),
			}, a.invalidate(tagProducts))},
		{http.MethodGet, apiPrefix + "/orders/{id}", "orders.get", a.getOrder,
			join(general, a.authed(), []pipeline.Stage{
				pipeline.RequirePermission(d.Policy, authz.OrdersRead, a.orderOwner),
				pipeline.Validate(idSchema),
			})},
		{http.MethodPost, apiPrefix + "/orders/{id}/cancel", "orders.cancel", a.cancelOrder,
			join(general, a.authed(), []pipeline.Stage{
				pipeline.OwnerOrAdmin(a.orderOwner),
				pipeline.Validate(idSchema),
			}, a.invalidate(tagProducts))},
		{http.MethodPatch, apiPrefix + "/orders/{id}/status", "orders.status", a.updateOrderStatus,
			join(general, a.authed(), []pipeline.Stage{
				pipeline.RequirePermission(d.Policy, authz.OrdersUpdate, nil),
				pipeline.Validate(orderStatusSchema),
			}, a.invalidate(tagProducts))},

		{http.MethodPost, apiPrefix + "/uploads", "uploads.create", a.createUpload,
			join(a.base(pipeline.RateLimit(d.Limits.Upload, d.Now)), a.authed(), []pipeline.Stage{
				pipeline.RequirePermission(d.Policy, authz.UploadsCreate, nil),
				pipeline.Validate(uploadSchema),
			})},

		{http.MethodGet, apiPrefix + "/admin/users", "admin.users.list", a.listUsers,
			join(general, a.authed(), []pipeline.Stage{admin, pipeline.Validate(userListSchema)})},
		{http.MethodPatch, apiPrefix + "/admin/users/{id}/status", "admin.users.status", a.setUserStatus,
			join(general, a.authed(), []pipeline.Stage{admin, pipeline.Validate(userStatusSchema)})},
		{http.MethodPatch, apiPrefix + "/admin/users/{id}/role", "admin.users.role", a.setUserRole,
			join(general, a.authed(), []pipeline.Stage{admin, pipeline.Validate(userRoleSchema)})},
		{http.MethodPost, apiPrefix + "/admin/cache/invalidate", "admin.cache.invalidate", a.invalidateCache,
			join(general, a.authed(), []pipeline.Stage{
				pipeline.RequirePermission(d.Policy, authz.CacheInvalidate, nil),
				pipeline.Validate(invalidateSchema),
			})},
	}
	for _, r := range table {
		if err := a.handle(r.method, r.path, r.name, r.handler, r.stages...); err != nil {
			return err
		}
	}
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	return nil
}

func productListTTL(req pipeline.Request) time.Duration {
	if req.Query.Get("search") != "" {
		return respcache.TTLSearch
	}
	return respcache.TTLProductList
}

// self resolves the caller as the owner, for listings scoped by the
// handler.
func self(req pipeline.Request) (string, error) {
	if req.Principal == nil {
		return "", nil
	}
	return req.Principal.ID, nil
}

func (a *API) health(req pipeline.Request) (*pipeline.Response, error) {
	return pipeline.OK("OK", map[string]any{
		"status":  "ok",
		"version": a.deps.Version,
		"time":    a.deps.Now().UTC(),
	}), nil
}

func (a *API) ready(req pipeline.Request) (*pipeline.Response, error) {
	if err := a.deps.Probe.Check(req.Context()); err != nil {
		obs.SetReady(false)
		return nil, apperr.Unavailable("Service not ready", err)
	}
	obs.SetReady(true)
	return pipeline.OK("Ready", map[string]any{"status": "ready"}), nil
}
