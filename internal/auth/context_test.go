package auth

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal in empty context")
	}
	ctx := ContextWithPrincipal(context.Background(), Principal{ID: "p1", Role: RoleUser})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "p1" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestParseRoleAndStatus(t *testing.T) {
	if r, err := ParseRole(" Admin "); err != nil || r != RoleAdmin {
		t.Fatalf("ParseRole: %v %v", r, err)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if s, err := ParseStatus("SUSPENDED"); err != nil || s != StatusSuspended {
		t.Fatalf("ParseStatus: %v %v", s, err)
	}
}
