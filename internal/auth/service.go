package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"storefront.org/internal/ids"
)

// Service implements account registration, credential login and the
// session lifecycle on top of a PrincipalStore and a TokenService.
type Service struct {
	principals PrincipalStore
	tokens     *TokenService
	now        func() time.Time
	cost       int

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithServiceClock overrides time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithPasswordCost sets the bcrypt cost for new password hashes.
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) error {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return fmt.Errorf("auth: bcrypt cost %d out of range", cost)
		}
		s.cost = cost
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(principals PrincipalStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if principals == nil || tokens == nil {
		return nil, errors.New("auth: principal store and token service are required")
	}
	svc := &Service{
		principals: principals,
		tokens:     tokens,
		now:        time.Now,
		cost:       bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Tokens exposes the underlying token service.
func (s *Service) Tokens() *TokenService { return s.tokens }

// RegisterInput carries the fields of a self-service sign up.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates an active user principal.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Principal, error) {
	return s.create(ctx, in, RoleUser)
}

// CreatePrincipal creates an active principal with an explicit role.
func (s *Service) CreatePrincipal(ctx context.Context, in RegisterInput, role Role) (Principal, error) {
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.create(ctx, in, role)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role Role) (Principal, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Principal{}, err
	}
	if len(in.Password) < MinPasswordLength {
		return Principal{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := hashPassword(in.Password, s.cost)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: hash password: %w", err)
	}
	now := s.now().UTC()
	p := &Principal{
		ID:           ids.NewAt(now),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Role:         role,
		Status:       StatusActive,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return Principal{}, err
	}
	return *p, nil
}

// Login verifies credentials and opens a session. Unknown email, wrong
// password and disabled accounts are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	p, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Session{}, err
		}
		// Burn a comparison so unknown accounts take as long as known ones.
		_ = VerifyPassword(s.dummy(), password)
		return Session{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(p.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !p.Active() {
		return Session{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.IssuePair(ctx, *p, meta)
	if err != nil {
		return Session{}, err
	}
	return Session{Principal: *p, Tokens: pair}, nil
}

// Refresh rotates a refresh token into a new session.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (Session, error) {
	pair, p, err := s.tokens.RedeemRefreshToken(ctx, refreshToken, meta)
	if err != nil {
		return Session{Principal: p}, err
	}
	return Session{Principal: p, Tokens: pair}, nil
}

// Logout revokes one refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.RevokeRefreshToken(ctx, refreshToken)
}

// LogoutAll revokes every refresh token of principalID.
func (s *Service) LogoutAll(ctx context.Context, principalID string) (int, error) {
	return s.tokens.RevokeAllForPrincipal(ctx, principalID)
}

// Authenticate resolves a bearer access token to a live, active principal.
// The principal is reloaded so that role and status changes apply at once.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return Principal{}, err
	}
	p, err := s.principals.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrTokenInvalid
		}
		return Principal{}, err
	}
	if !p.Active() {
		return Principal{}, ErrPrincipalInactive
	}
	return *p, nil
}

// Principal loads a principal by id.
func (s *Service) Principal(ctx context.Context, id string) (Principal, error) {
	p, err := s.principals.FindByID(ctx, id)
	if err != nil {
		return Principal{}, err
	}
	return *p, nil
}

// ListPrincipals returns one page of principals and the total count.
func (s *Service) ListPrincipals(ctx context.Context, page, perPage int) ([]Principal, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return s.principals.List(ctx, (page-1)*perPage, perPage)
}

// SetStatus changes the account status. Leaving the active state revokes
// every refresh token of the principal.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (Principal, error) {
	if !status.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.principals.UpdateStatus(ctx, id, status, s.now().UTC()); err != nil {
		return Principal{}, err
	}
	if status != StatusActive {
		if _, err := s.tokens.RevokeAllForPrincipal(ctx, id); err != nil {
			return Principal{}, err
		}
	}
	return s.Principal(ctx, id)
}

// SetRole changes the role of a principal.
func (s *Service) SetRole(ctx context.Context, id string, role Role) (Principal, error) {
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := s.principals.UpdateRole(ctx, id, role, s.now().UTC()); err != nil {
		return Principal{}, err
	}
	return s.Principal(ctx, id)
}

// EnsureAdmin creates the bootstrap administrator when no principal with
// email exists. It reports whether a principal was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (Principal, bool, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return Principal{}, false, err
	}
	existing, err := s.principals.FindByEmail(ctx, normalized)
	if err == nil {
		return *existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Principal{}, false, err
	}
	p, err := s.create(ctx, RegisterInput{Email: normalized, Password: password, Name: "Administrator"}, RoleAdmin)
	if err != nil {
		return Principal{}, false, err
	}
	return p, true, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = hashPassword("storefront-timing-equalizer", s.cost)
	})
	return s.dummyHash
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}
