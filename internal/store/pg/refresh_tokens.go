package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront.org/internal/auth"
)

var _ auth.RefreshTokenStore = (*RefreshTokens)(nil)

// RefreshTokens implements auth.RefreshTokenStore. Revocation is a
// conditional update so concurrent redemptions of one token resolve to a
// single winner.
type RefreshTokens struct {
	db *sql.DB
}

func (s *RefreshTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, principal_id, token_hash, user_agent, ip, created_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.PrincipalID, tok.TokenHash, tok.UserAgent, tok.IP, tok.CreatedAt, tok.ExpiresAt)
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err):
		return auth.ErrAlreadyExists
	default:
		return unavailable(err)
	}
}

func (s *RefreshTokens) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var (
		tok     auth.RefreshToken
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, principal_id, token_hash, user_agent, ip, created_at, expires_at, revoked_at, replaced_by
		from refresh_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.PrincipalID, &tok.TokenHash, &tok.UserAgent, &tok.IP, &tok.CreatedAt, &tok.ExpiresAt, &revoked, &tok.ReplacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if revoked.Valid {
		at := revoked.Time
		tok.RevokedAt = &at
	}
	return &tok, nil
}

func (s *RefreshTokens) Revoke(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens
		set revoked_at = $2, replaced_by = $3
		where id = $1 and revoked_at is null
	`, id, at, replacedBy)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *RefreshTokens) RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time) (int, error) {
	return s.count(ctx, `
		update refresh_tokens
		set revoked_at = $2
		where principal_id = $1 and revoked_at is null
	`, principalID, at)
}

func (s *RefreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	return s.count(ctx, `delete from refresh_tokens where expires_at <= $1`, before)
}

func (s *RefreshTokens) count(ctx context.Context, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}
