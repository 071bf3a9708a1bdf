package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no account or role matches the lookup.
var ErrNotFound = errors.New("account: not found")

const accountColumns = `id, email, password_hash, full_name, avatar_url, system_role_id,
	oauth_provider, oauth_id, is_active, email_verified, preferences, timezone, locale,
	last_login_at, created_at, updated_at`

// Store provides database operations for accounts and roles.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new account store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// scanAccount scans an account row, handling the JSONB preferences column.
func scanAccount(scan func(dest ...any) error) (*Account, error) {
	a := &Account{}
	var prefsJSON []byte
	err := scan(&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &a.AvatarURL,
		&a.SystemRoleID, &a.OAuthProvider, &a.OAuthID, &a.IsActive, &a.EmailVerified,
		&prefsJSON, &a.Timezone, &a.Locale, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &a.Preferences); err != nil {
			return nil, fmt.Errorf("unmarshaling preferences: %w", err)
		}
	}
	if a.Preferences == nil {
		a.Preferences = map[string]any{}
	}
	return a, nil
}

// GetByID retrieves an account by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM account WHERE id = $1`, id,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account by id: %w", err)
	}
	return a, nil
}

// GetByEmail retrieves an account by email address. The match is exact;
// emails are stored case-sensitively.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := scanAccount(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM account WHERE email = $1`, email,
		).Scan(dest...)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account by email: %w", err)
	}
	return a, nil
}

// GetSystemRole retrieves a seeded system-scope role by name.
func (s *Store) GetSystemRole(ctx context.Context, name string) (*Role, error) {
	r := &Role{}
	var permsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, permissions, is_system, scope, created_at, updated_at
		 FROM role WHERE name = $1 AND scope = 'system'`, name,
	).Scan(&r.ID, &r.Name, &r.Description, &permsJSON, &r.IsSystem, &r.Scope,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting system role %q: %w", name, err)
	}
	if len(permsJSON) > 0 {
		if err := json.Unmarshal(permsJSON, &r.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshaling role permissions: %w", err)
		}
	}
	return r, nil
}

// TouchLastLogin stamps last_login_at on a successful login.
func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE account SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("stamping last login: %w", err)
	}
	return nil
}

// MarkEmailVerified flips the email_verified flag.
func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE account SET email_verified = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	return nil
}

// SetPassword replaces the stored password hash.
func (s *Store) SetPassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE account SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return fmt.Errorf("setting password: %w", err)
	}
	return nil
}
