package auth

import (
	"context"
	"time"
)

// PrincipalFinder loads principals by id.
type PrincipalFinder interface {
	FindByID(ctx context.Context, id string) (*Principal, error)
}

// PrincipalStore persists principals. Lookups of unknown records return
// ErrNotFound; connection failures wrap ErrStorageUnavailable.
type PrincipalStore interface {
	PrincipalFinder
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	Create(ctx context.Context, p *Principal) error
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	UpdateRole(ctx context.Context, id string, role Role, at time.Time) error
	List(ctx context.Context, offset, limit int) ([]Principal, int, error)
}

// RefreshTokenStore manages the refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// Revoke marks the token revoked unless it already is. It reports whether
	// this call performed the revocation.
	Revoke(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error)
	RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time) (int, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
