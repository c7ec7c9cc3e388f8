package httpapi

import (
	"storefront.org/internal/audit"
	"storefront.org/internal/auth"
	"storefront.org/internal/pipeline"
	"storefront.org/internal/respcache"
)

func (a *API) listUsers(req pipeline.Request) (*pipeline.Response, error) {
	page, limit := paging(req)
	users, total, err := a.deps.Auth.ListPrincipals(req.Context(), page, limit)
	if err != nil {
		return nil, err
	}
	return pageOf("Users retrieved", users, page, limit, total), nil
}

func (a *API) setUserStatus(req pipeline.Request) (*pipeline.Response, error) {
	var in struct {
		Status string `json:"status"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	status, err := auth.ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	p, err := a.deps.Auth.SetStatus(req.Context(), req.Param("id"), status)
	if err != nil {
		return nil, err
	}
	a.forget(req, p.ID)
	_ = audit.LogEvent(req.Context(), audit.EventStatusChanged, map[string]any{
		"target_id": p.ID,
		"status":    string(p.Status),
	})
	return pipeline.OK("User status updated", p), nil
}

func (a *API) setUserRole(req pipeline.Request) (*pipeline.Response, error) {
	var in struct {
		Role string `json:"role"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return nil, err
	}
	p, err := a.deps.Auth.SetRole(req.Context(), req.Param("id"), role)
	if err != nil {
		return nil, err
	}
	a.forget(req, p.ID)
	_ = audit.LogEvent(req.Context(), audit.EventRoleChanged, map[string]any{
		"target_id": p.ID,
		"role":      string(p.Role),
	})
	return pipeline.OK("User role updated", p), nil
}

func (a *API) invalidateCache(req pipeline.Request) (*pipeline.Response, error) {
	var in struct {
		Tags []string `json:"tags"`
	}
	if err := req.Decode(&in); err != nil {
		return nil, err
	}
	removed := 0
	if a.deps.Cache != nil {
		removed = a.deps.Cache.Invalidate(req.Context(), in.Tags...)
	}
	_ = audit.LogEvent(req.Context(), audit.EventCacheInvalidate, map[string]any{"tags": in.Tags, "removed": removed})
	return pipeline.OK("Cache invalidated", map[string]int{"removed": removed}), nil
}

// forget drops every private cache entry of principalID.
func (a *API) forget(req pipeline.Request, principalID string) {
	if a.deps.Cache == nil {
		return
	}
	a.deps.Cache.Invalidate(req.Context(), respcache.PrivateKey(principalID, ""))
}
