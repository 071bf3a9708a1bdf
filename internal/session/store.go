package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gantry-app/gantry/internal/account"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store-level failures. The Manager collapses the session-shaped ones into a
// single unauthenticated outcome before they reach a client.
var (
	ErrEmailTaken      = errors.New("session: email already registered")
	ErrSessionNotFound = errors.New("session: no active session for token")
	ErrSessionExpired  = errors.New("session: session expired")
	ErrAccountInactive = errors.New("session: account missing or deactivated")
	ErrTokenInvalid    = errors.New("session: invalid or expired token")
)

const uniqueViolation = "23505"

// Store provides database operations for refresh sessions and the single-use
// verification/reset tokens.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new session store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateAccount runs the registration unit of work: it inserts the account,
// its personal organization with an owner membership edge, and the first
// refresh session, all in one transaction.
func (s *Store) CreateAccount(ctx context.Context, p CreateAccountParams) (*account.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning registration tx: %w", err)
	}
	defer tx.Rollback(ctx)

	accountID := uuid.NewString()
	a := &account.Account{}
	err = tx.QueryRow(ctx,
		`INSERT INTO account (id, email, password_hash, full_name, system_role_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, email, full_name, system_role_id, is_active, email_verified,
		           timezone, locale, created_at, updated_at`,
		accountID, p.Email, p.PasswordHash, p.FullName, p.SystemRoleID,
	).Scan(&a.ID, &a.Email, &a.FullName, &a.SystemRoleID, &a.IsActive,
		&a.EmailVerified, &a.Timezone, &a.Locale, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting account: %w", err)
	}
	a.PasswordHash = &p.PasswordHash
	a.Preferences = map[string]any{}

	// Every account gets a personal organization it owns.
	orgID := uuid.NewString()
	_, err = tx.Exec(ctx,
		`INSERT INTO organization (id, name, slug, is_personal)
		 VALUES ($1, $2, $3, TRUE)`,
		orgID, p.FullName, "personal-"+accountID)
	if err != nil {
		return nil, fmt.Errorf("inserting personal organization: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO organization_member (id, organization_id, account_id, role)
		 VALUES ($1, $2, $3, 'owner')`,
		uuid.NewString(), orgID, accountID)
	if err != nil {
		return nil, fmt.Errorf("inserting organization membership: %w", err)
	}

	if err := insertSession(ctx, tx, CreateSessionParams{
		AccountID:  accountID,
		TokenHash:  p.Session.TokenHash,
		DeviceInfo: p.Session.DeviceInfo,
		IPAddress:  p.Session.IPAddress,
		ExpiresAt:  p.Session.ExpiresAt,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing registration tx: %w", err)
	}
	return a, nil
}

func insertSession(ctx context.Context, tx pgx.Tx, p CreateSessionParams) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO refresh_token (id, account_id, token_hash, device_info, ip_address, expires_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, '')::inet, $6)`,
		uuid.NewString(), p.AccountID, p.TokenHash, p.DeviceInfo, p.IPAddress, p.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting refresh session: %w", err)
	}
	return nil
}

// CreateSession inserts a refresh session for an existing account (login).
func (s *Store) CreateSession(ctx context.Context, p CreateSessionParams) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertSession(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RotateSession atomically revokes the session matching the presented token
// hash and inserts its replacement. The conditional UPDATE serializes
// concurrent rotations of the same token: exactly one caller wins, the other
// finds no active row. Any failure after the revoke rolls the whole
// transaction back, so revoke and reissue are never observed separately.
func (s *Store) RotateSession(ctx context.Context, p RotateParams) (*account.Account, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning rotation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID string
	var expiresAt time.Time
	err = tx.QueryRow(ctx,
		`UPDATE refresh_token
		 SET is_revoked = TRUE, revoked_at = now(), revoked_reason = $2
		 WHERE token_hash = $1 AND is_revoked = FALSE
		 RETURNING account_id, expires_at`,
		p.OldTokenHash, RevokedRotated,
	).Scan(&accountID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revoking session: %w", err)
	}

	if time.Now().After(expiresAt) {
		// Rollback leaves the expired row unrevoked; it stays inert.
		return nil, ErrSessionExpired
	}

	a, err := scanAccountRow(tx.QueryRow(ctx,
		`SELECT id, email, password_hash, full_name, system_role_id, is_active,
		        email_verified, timezone, locale, last_login_at, created_at, updated_at
		 FROM account WHERE id = $1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountInactive
	}
	if err != nil {
		return nil, fmt.Errorf("loading session account: %w", err)
	}
	if !a.IsActive {
		return nil, ErrAccountInactive
	}

	if err := insertSession(ctx, tx, CreateSessionParams{
		AccountID:  accountID,
		TokenHash:  p.NewTokenHash,
		DeviceInfo: p.DeviceInfo,
		IPAddress:  p.IPAddress,
		ExpiresAt:  p.ExpiresAt,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing rotation tx: %w", err)
	}
	return a, nil
}

func scanAccountRow(row pgx.Row) (*account.Account, error) {
	a := &account.Account{}
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &a.SystemRoleID,
		&a.IsActive, &a.EmailVerified, &a.Timezone, &a.Locale, &a.LastLoginAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Preferences = map[string]any{}
	return a, nil
}

// RevokeSession marks the session matching the token hash revoked with the
// given reason. A missing or already-revoked session is not an error.
func (s *Store) RevokeSession(ctx context.Context, tokenHash, reason string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_token
		 SET is_revoked = TRUE, revoked_at = now(), revoked_reason = $2
		 WHERE token_hash = $1 AND is_revoked = FALSE`,
		tokenHash, reason)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// issueSingleUseToken deletes prior unused tokens for the account in the
// given table and inserts a fresh one: at most one live token per purpose
// per account.
func (s *Store) issueSingleUseToken(ctx context.Context, table, accountID, tokenHash string, expiresAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning token tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM `+table+` WHERE account_id = $1 AND used_at IS NULL`, accountID)
	if err != nil {
		return fmt.Errorf("invalidating prior tokens: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO `+table+` (id, account_id, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), accountID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}
	return tx.Commit(ctx)
}

// IssueEmailVerification persists a new email-verification token digest.
func (s *Store) IssueEmailVerification(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	return s.issueSingleUseToken(ctx, "email_verification", accountID, tokenHash, expiresAt)
}

// IssuePasswordReset persists a new password-reset token digest.
func (s *Store) IssuePasswordReset(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	return s.issueSingleUseToken(ctx, "password_reset", accountID, tokenHash, expiresAt)
}

// ConsumeEmailVerification marks the matching unused, unexpired token used
// and flips the account's email_verified flag in one transaction.
func (s *Store) ConsumeEmailVerification(ctx context.Context, tokenHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning verification tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID string
	err = tx.QueryRow(ctx,
		`UPDATE email_verification
		 SET used_at = now()
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		 RETURNING account_id`,
		tokenHash,
	).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("consuming verification token: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE account SET email_verified = TRUE, updated_at = now() WHERE id = $1`,
		accountID)
	if err != nil {
		return fmt.Errorf("marking email verified: %w", err)
	}
	return tx.Commit(ctx)
}

// ConsumePasswordReset marks the matching unused, unexpired token used, sets
// the new password hash, and revokes all of the account's active refresh
// sessions in one transaction.
func (s *Store) ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning reset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var accountID string
	err = tx.QueryRow(ctx,
		`UPDATE password_reset
		 SET used_at = now()
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > now()
		 RETURNING account_id`,
		tokenHash,
	).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTokenInvalid
	}
	if err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE account SET password_hash = $2, updated_at = now() WHERE id = $1`,
		accountID, newPasswordHash)
	if err != nil {
		return fmt.Errorf("setting new password: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE refresh_token
		 SET is_revoked = TRUE, revoked_at = now(), revoked_reason = $2
		 WHERE account_id = $1 AND is_revoked = FALSE`,
		accountID, RevokedPasswordReset)
	if err != nil {
		return fmt.Errorf("revoking sessions after reset: %w", err)
	}
	return tx.Commit(ctx)
}
