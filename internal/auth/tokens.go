package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"storefront.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultIssuer     = "storefront-api"
	defaultAudience   = "storefront-clients"

	// MinSecretLength is the shortest accepted HMAC signing secret.
	MinSecretLength = 32

	refreshSecretBytes = 32
)

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies access tokens and manages the rotating
// refresh token family of each principal.
type TokenService struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time

	refresh    RefreshTokenStore
	principals PrincipalFinder
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAudience overrides the token audience claim.
func WithAudience(audience string) TokenOption {
	return func(s *TokenService) error {
		if audience = strings.TrimSpace(audience); audience != "" {
			s.audience = audience
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService constructs a TokenService signing with secret (HS256).
func NewTokenService(secret []byte, refresh RefreshTokenStore, principals PrincipalFinder, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: signing secret must be at least %d bytes", MinSecretLength)
	}
	if refresh == nil || principals == nil {
		return nil, errors.New("auth: token stores are required")
	}
	s := &TokenService{
		secret:     append([]byte(nil), secret...),
		issuer:     defaultIssuer,
		audience:   defaultAudience,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		refresh:    refresh,
		principals: principals,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// IssueAccessToken signs a short-lived access token for p.
func (s *TokenService) IssueAccessToken(p Principal) (string, time.Time, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	if !p.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, p.Role)
	}
	now := s.now().UTC()
	claims := AccessClaims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.ID,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign access token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifyAccessToken validates signature, algorithm, issuer, audience and
// expiry. Expired tokens yield ErrTokenExpired; every other failure yields
// ErrTokenInvalid.
func (s *TokenService) VerifyAccessToken(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: missing subject or role", ErrTokenInvalid)
	}
	return claims, nil
}

// IssueRefreshToken creates and persists a refresh token for principalID.
// The opaque value returned to the client has the form "<id>.<secret>".
func (s *TokenService) IssueRefreshToken(ctx context.Context, principalID string, meta ClientMeta) (string, time.Time, error) {
	if strings.TrimSpace(principalID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: principal id is required", ErrInvalidInput)
	}
	raw, rec, err := s.newRefreshToken(principalID, meta, s.now().UTC())
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.refresh.Create(ctx, rec); err != nil {
		return "", time.Time{}, err
	}
	return raw, rec.ExpiresAt, nil
}

// IssuePair issues an access token and a fresh refresh token for p.
func (s *TokenService) IssuePair(ctx context.Context, p Principal, meta ClientMeta) (TokenPair, error) {
	access, accessExp, err := s.IssueAccessToken(p)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, p.ID, meta)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		TokenType:        "Bearer",
	}, nil
}

// RedeemRefreshToken consumes a refresh token and returns a new pair. The
// presented token is revoked and linked to its replacement. Presenting a
// token that was already rotated, or losing the rotation to a concurrent
// redemption, revokes every live token of its principal and returns an
// error matching both ErrTokenRevoked and ErrTokenReused.
func (s *TokenService) RedeemRefreshToken(ctx context.Context, raw string, meta ClientMeta) (TokenPair, Principal, error) {
	rec, err := s.lookupRefreshToken(ctx, raw)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	now := s.now().UTC()
	if rec.Revoked() {
		if rec.ReplacedBy != "" {
			return s.reused(ctx, rec.PrincipalID, now)
		}
		return TokenPair{}, Principal{}, ErrTokenRevoked
	}
	if rec.Expired(now) {
		return TokenPair{}, Principal{}, ErrTokenExpired
	}

	principal, err := s.principals.FindByID(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrTokenInvalid
		}
		return TokenPair{}, Principal{}, err
	}
	if !principal.Active() {
		return TokenPair{}, Principal{}, ErrPrincipalInactive
	}

	nextRaw, next, err := s.newRefreshToken(principal.ID, meta, now)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	// Store the replacement before retiring the old token.
	if err := s.refresh.Create(ctx, next); err != nil {
		return TokenPair{}, Principal{}, err
	}
	revoked, err := s.refresh.Revoke(ctx, rec.ID, now, next.ID)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	if !revoked {
		// A concurrent redemption rotated the token first: a replay.
		return s.reused(ctx, principal.ID, now)
	}
	access, accessExp, err := s.IssueAccessToken(*principal)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     nextRaw,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: next.ExpiresAt,
		TokenType:        "Bearer",
	}, *principal, nil
}

// reused revokes every live refresh token of principalID, including any
// replacement issued to the first redeemer.
func (s *TokenService) reused(ctx context.Context, principalID string, now time.Time) (TokenPair, Principal, error) {
	if _, err := s.refresh.RevokeAllForPrincipal(ctx, principalID, now); err != nil {
		return TokenPair{}, Principal{}, err
	}
	return TokenPair{}, Principal{ID: principalID}, fmt.Errorf("%w: %w", ErrTokenRevoked, ErrTokenReused)
}

// RevokeRefreshToken revokes a single refresh token. Unknown tokens are
// ignored so that logout stays idempotent.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, raw string) error {
	rec, err := s.lookupRefreshToken(ctx, raw)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}
	_, err = s.refresh.Revoke(ctx, rec.ID, s.now().UTC(), "")
	return err
}

// RevokeAllForPrincipal revokes every live refresh token of principalID.
func (s *TokenService) RevokeAllForPrincipal(ctx context.Context, principalID string) (int, error) {
	return s.refresh.RevokeAllForPrincipal(ctx, principalID, s.now().UTC())
}

// CleanupExpired deletes refresh tokens that expired before now.
func (s *TokenService) CleanupExpired(ctx context.Context) (int, error) {
	return s.refresh.DeleteExpired(ctx, s.now().UTC())
}

func (s *TokenService) lookupRefreshToken(ctx context.Context, raw string) (*RefreshToken, error) {
	id, secret, ok := splitRefreshToken(raw)
	if !ok {
		return nil, ErrTokenInvalid
	}
	rec, err := s.refresh.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(hashSecret(secret))) != 1 {
		return nil, ErrTokenInvalid
	}
	return rec, nil
}

func (s *TokenService) newRefreshToken(principalID string, meta ClientMeta, now time.Time) (string, *RefreshToken, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("auth: generate refresh secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	rec := &RefreshToken{
		ID:          ids.NewAt(now),
		PrincipalID: principalID,
		TokenHash:   hashSecret(secret),
		UserAgent:   meta.UserAgent,
		IP:          meta.IP,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL),
	}
	return rec.ID + "." + secret, rec, nil
}

func splitRefreshToken(raw string) (id, secret string, ok bool) {
	id, secret, found := strings.Cut(strings.TrimSpace(raw), ".")
	if !found || !ids.Valid(id) || secret == "" {
		return "", "", false
	}
	return id, secret, true
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
