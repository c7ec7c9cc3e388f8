package authz

import (
	"testing"

	"storefront.org/internal/auth"
)

func principal(id string, role auth.Role) *auth.Principal {
	return &auth.Principal{ID: id, Role: role, Status: auth.StatusActive}
}

func TestAuthorizeRoleMembership(t *testing.T) {
	admin := principal("a", auth.RoleAdmin)
	mod := principal("m", auth.RoleModerator)
	user := principal("u", auth.RoleUser)

	if !Authorize(admin, auth.RoleAdmin, auth.RoleModerator).Allowed {
		t.Fatal("admin should be allowed")
	}
	if !Authorize(mod, auth.RoleAdmin, auth.RoleModerator).Allowed {
		t.Fatal("moderator should be allowed")
	}
	if d := Authorize(user, auth.RoleAdmin, auth.RoleModerator); d.Allowed || d.Reason == "" {
		t.Fatalf("user should be denied with a reason, got %+v", d)
	}
	// Membership is exact: admin is not implicitly a moderator.
	if Authorize(admin, auth.RoleModerator).Allowed {
		t.Fatal("admin should not pass a moderator-only check")
	}
	if Authorize(nil, auth.RoleUser).Allowed {
		t.Fatal("nil principal should be denied")
	}
}

func TestOwnerOrAdmin(t *testing.T) {
	tests := []struct {
		name  string
		p     *auth.Principal
		owner string
		want  bool
	}{
		{"owner", principal("u1", auth.RoleUser), "u1", true},
		{"other user", principal("u2", auth.RoleUser), "u1", false},
		{"admin", principal("a", auth.RoleAdmin), "u1", true},
		{"moderator", principal("m", auth.RoleModerator), "u1", false},
		{"empty owner", principal("u1", auth.RoleUser), "", false},
		{"anonymous", nil, "u1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OwnerOrAdmin(tt.p, tt.owner).Allowed; got != tt.want {
				t.Fatalf("OwnerOrAdmin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicyMatrix(t *testing.T) {
	pol := DefaultPolicy()
	admin := principal("a", auth.RoleAdmin)
	mod := principal("m", auth.RoleModerator)
	user := principal("u", auth.RoleUser)

	tests := []struct {
		p     *auth.Principal
		perm  string
		owner string
		want  bool
	}{
		{admin, UsersManage, "", true},
		{admin, "anything:at-all", "", true},
		{mod, ProductsWrite, "", true},
		{mod, CategoriesWrite, "", true},
		{mod, OrdersUpdate, "", true},
		{mod, OrdersCreate, "", true},
		{mod, OrdersCancel, "u", false},
		{mod, OrdersCancel, "m", true},
		{mod, UsersManage, "", false},
		{user, ProductsRead, "", true},
		{user, ProductsWrite, "", false},
		{user, OrdersCreate, "", true},
		{user, OrdersRead, "u", true},
		{user, OrdersRead, "someone-else", false},
		{user, OrdersRead, "", false},
		{user, OrdersCancel, "u", true},
		{user, UsersUpdate, "u", true},
		{user, UsersManage, "u", false},
		{nil, ProductsRead, "", false},
	}
	for _, tt := range tests {
		role := "anonymous"
		if tt.p != nil {
			role = string(tt.p.Role)
		}
		if got := pol.Decide(tt.p, tt.perm, tt.owner).Allowed; got != tt.want {
			t.Fatalf("%s %s owner=%q: got %v, want %v", role, tt.perm, tt.owner, got, tt.want)
		}
	}
}

func TestPolicyScoped(t *testing.T) {
	pol := DefaultPolicy()
	if !pol.Scoped(principal("u", auth.RoleUser), OrdersRead) {
		t.Fatal("user order listing should be scoped to own orders")
	}
	if pol.Scoped(principal("m", auth.RoleModerator), OrdersRead) {
		t.Fatal("moderator order listing should not be scoped")
	}
}

func TestMalformedGrantsIgnored(t *testing.T) {
	pol := NewPolicy(map[auth.Role][]string{
		auth.RoleUser: {"products", "orders:read:mine", ":read", "products:read"},
	})
	u := principal("u", auth.RoleUser)
	if !pol.Can(u, ProductsRead) {
		t.Fatal("valid grant should survive")
	}
	if pol.Decide(u, OrdersRead, "u").Allowed {
		t.Fatal("malformed ownership suffix should be ignored")
	}
	if pol.Can(u, "malformed") {
		t.Fatal("malformed permission should be denied")
	}
}
