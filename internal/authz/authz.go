// Package authz decides whether a principal may perform an action. All
// functions are pure; logging denials is the caller's job.
package authz

import (
	"slices"
	"strings"

	"storefront.org/internal/auth"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize allows iff the principal's role is one of required.
func Authorize(p *auth.Principal, required ...auth.Role) Decision {
	if p == nil {
		return deny("authentication required")
	}
	if slices.Contains(required, p.Role) {
		return allow()
	}
	return deny("role " + string(p.Role) + " is not permitted")
}

// OwnerOrAdmin allows the owner of a resource and administrators.
func OwnerOrAdmin(p *auth.Principal, ownerID string) Decision {
	if p == nil {
		return deny("authentication required")
	}
	if p.Role == auth.RoleAdmin {
		return allow()
	}
	if ownerID != "" && p.ID == ownerID {
		return allow()
	}
	return deny("only the owner or an administrator may access this resource")
}

// Permission names used by the HTTP routes.
const (
	ProductsRead    = "products:read"
	ProductsWrite   = "products:write"
	CategoriesRead  = "categories:read"
	CategoriesWrite = "categories:write"
	OrdersCreate    = "orders:create"
	OrdersRead      = "orders:read"
	OrdersCancel    = "orders:cancel"
	OrdersUpdate    = "orders:update"
	UsersRead       = "users:read"
	UsersUpdate     = "users:update"
	UsersManage     = "users:manage"
	UploadsCreate   = "uploads:create"
	CacheInvalidate = "cache:invalidate"
)

// DefaultGrants is the built-in role to permission table. A grant has the
// form resource:action, optionally suffixed with :own to restrict it to
// resources owned by the principal. Either segment may be the wildcard *.
var DefaultGrants = map[auth.Role][]string{
	auth.RoleAdmin: {
		"*:*",
	},
	auth.RoleModerator: {
		"products:*",
		"categories:*",
		"orders:create",
		"orders:read",
		"orders:update",
		"orders:cancel:own",
		"users:read",
		"uploads:create",
	},
	auth.RoleUser: {
		"products:read",
		"categories:read",
		"orders:create",
		"orders:read:own",
		"orders:cancel:own",
		"users:read:own",
		"users:update:own",
	},
}

type grant struct {
	resource string
	action   string
	own      bool
}

// Policy evaluates permissions against a grant table.
type Policy struct {
	grants map[auth.Role][]grant
}

// NewPolicy compiles a grant table. Malformed grants are skipped.
func NewPolicy(table map[auth.Role][]string) *Policy {
	p := &Policy{grants: make(map[auth.Role][]grant, len(table))}
	for role, list := range table {
		for _, raw := range list {
			g, ok := parseGrant(raw)
			if !ok {
				continue
			}
			p.grants[role] = append(p.grants[role], g)
		}
	}
	return p
}

// DefaultPolicy returns the policy built from DefaultGrants.
func DefaultPolicy() *Policy { return NewPolicy(DefaultGrants) }

// Decide reports whether p may perform permission ("resource:action") on a
// resource owned by ownerID. An empty ownerID means the resource has no
// owner, so ownership-restricted grants do not apply.
func (pol *Policy) Decide(p *auth.Principal, permission, ownerID string) Decision {
	if p == nil {
		return deny("authentication required")
	}
	resource, action, ok := strings.Cut(permission, ":")
	if !ok || resource == "" || action == "" {
		return deny("malformed permission " + permission)
	}
	ownedOnly := false
	for _, g := range pol.grants[p.Role] {
		if !match(g.resource, resource) || !match(g.action, action) {
			continue
		}
		if !g.own {
			return allow()
		}
		if ownerID != "" && ownerID == p.ID {
			return allow()
		}
		ownedOnly = true
	}
	if ownedOnly {
		return deny("permission " + permission + " is limited to own resources")
	}
	return deny("role " + string(p.Role) + " lacks permission " + permission)
}

// Can is Decide for resources without an owner.
func (pol *Policy) Can(p *auth.Principal, permission string) bool {
	return pol.Decide(p, permission, "").Allowed
}

// Scoped reports whether p holds permission only for owned resources, so
// listings must be filtered to the principal.
func (pol *Policy) Scoped(p *auth.Principal, permission string) bool {
	if p == nil {
		return true
	}
	return !pol.Can(p, permission) && pol.Decide(p, permission, p.ID).Allowed
}

func parseGrant(raw string) (grant, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	switch {
	case len(parts) == 2:
	case len(parts) == 3 && parts[2] == "own":
	default:
		return grant{}, false
	}
	if parts[0] == "" || parts[1] == "" {
		return grant{}, false
	}
	return grant{resource: parts[0], action: parts[1], own: len(parts) == 3}, true
}

func match(pattern, value string) bool {
	return pattern == "*" || pattern == value
}
