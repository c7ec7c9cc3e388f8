package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"storefront.org/internal/auth"
)

var _ auth.PrincipalStore = (*Principals)(nil)

const principalColumns = `id, email, name, role, status, email_verified, password_hash, created_at, updated_at`

// Principals implements auth.PrincipalStore.
type Principals struct {
	db *sql.DB
}

func (s *Principals) FindByID(ctx context.Context, id string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, `select `+principalColumns+` from principals where id = $1`, id)
	return scanPrincipal(row)
}

func (s *Principals) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	row := s.db.QueryRowContext(ctx, `select `+principalColumns+` from principals where lower(email) = $1`, strings.ToLower(email))
	return scanPrincipal(row)
}

func (s *Principals) Create(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into principals (`+principalColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Email, p.Name, string(p.Role), string(p.Status), p.EmailVerified, p.PasswordHash, p.CreatedAt, p.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case uniqueViolation(err):
		return auth.ErrAlreadyExists
	default:
		return unavailable(err)
	}
}

func (s *Principals) UpdateStatus(ctx context.Context, id string, status auth.Status, at time.Time) error {
	return s.update(ctx, `update principals set status = $2, updated_at = $3 where id = $1`, id, string(status), at)
}

func (s *Principals) UpdateRole(ctx context.Context, id string, role auth.Role, at time.Time) error {
	return s.update(ctx, `update principals set role = $2, updated_at = $3 where id = $1`, id, string(role), at)
}

func (s *Principals) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// List returns one page of principals ordered by id and the total count.
func (s *Principals) List(ctx context.Context, offset, limit int) ([]auth.Principal, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from principals`).Scan(&total); err != nil {
		return nil, 0, unavailable(err)
	}
	rows, err := s.db.QueryContext(ctx, `select `+principalColumns+` from principals order by id limit $1 offset $2`, limit, offset)
	if err != nil {
		return nil, 0, unavailable(err)
	}
	defer rows.Close()

	out := make([]auth.Principal, 0, limit)
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, unavailable(err)
	}
	return out, total, nil
}

func scanPrincipal(row scanner) (*auth.Principal, error) {
	var (
		p            auth.Principal
		role, status string
	)
	err := row.Scan(&p.ID, &p.Email, &p.Name, &role, &status, &p.EmailVerified, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	p.Role = auth.Role(role)
	p.Status = auth.Status(status)
	return &p, nil
}
