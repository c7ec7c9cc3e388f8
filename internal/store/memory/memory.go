// Package memory provides process-local principal and refresh token stores
// for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront.org/internal/auth"
)

var (
	_ auth.PrincipalStore    = (*Principals)(nil)
	_ auth.RefreshTokenStore = (*RefreshTokens)(nil)
)

// Principals implements auth.PrincipalStore with in-process concurrency safety.
type Principals struct {
	mu      sync.RWMutex
	byID    map[string]*auth.Principal
	byEmail map[string]string
}

// NewPrincipals creates an empty principal store.
func NewPrincipals() *Principals {
	return &Principals{
		byID:    make(map[string]*auth.Principal),
		byEmail: make(map[string]string),
	}
}

func (s *Principals) FindByID(ctx context.Context, id string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *Principals) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *Principals) Create(ctx context.Context, p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(p.Email)
	if _, ok := s.byEmail[email]; ok {
		return auth.ErrAlreadyExists
	}
	if _, ok := s.byID[p.ID]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *p
	s.byID[p.ID] = &cp
	s.byEmail[email] = p.ID
	return nil
}

func (s *Principals) UpdateStatus(ctx context.Context, id string, status auth.Status, at time.Time) error {
	return s.update(id, func(p *auth.Principal) {
		p.Status = status
		p.UpdatedAt = at
	})
}

func (s *Principals) UpdateRole(ctx context.Context, id string, role auth.Role, at time.Time) error {
	return s.update(id, func(p *auth.Principal) {
		p.Role = role
		p.UpdatedAt = at
	})
}

func (s *Principals) update(id string, fn func(*auth.Principal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(p)
	return nil
}

// List returns principals ordered by id, which follows creation order.
func (s *Principals) List(ctx context.Context, offset, limit int) ([]auth.Principal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]auth.Principal, 0, len(s.byID))
	for _, p := range s.byID {
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []auth.Principal{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// RefreshTokens implements auth.RefreshTokenStore in memory.
type RefreshTokens struct {
	mu     sync.Mutex
	tokens map[string]*auth.RefreshToken
}

// NewRefreshTokens creates an empty refresh token store.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{tokens: make(map[string]*auth.RefreshToken)}
}

func (s *RefreshTokens) Create(ctx context.Context, tok *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[tok.ID]; ok {
		return auth.ErrAlreadyExists
	}
	cp := *tok
	s.tokens[tok.ID] = &cp
	return nil
}

func (s *RefreshTokens) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := *tok
	if tok.RevokedAt != nil {
		at := *tok.RevokedAt
		out.RevokedAt = &at
	}
	return &out, nil
}

func (s *RefreshTokens) Revoke(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok || tok.RevokedAt != nil {
		return false, nil
	}
	tok.RevokedAt = &at
	tok.ReplacedBy = replacedBy
	return true, nil
}

func (s *RefreshTokens) RevokeAllForPrincipal(ctx context.Context, principalID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tok := range s.tokens {
		if tok.PrincipalID == principalID && tok.RevokedAt == nil {
			revokedAt := at
			tok.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (s *RefreshTokens) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, tok := range s.tokens {
		if !tok.ExpiresAt.After(before) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored tokens.
func (s *RefreshTokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
