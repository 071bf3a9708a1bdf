package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gantry-app/gantry/internal/account"
	"github.com/gantry-app/gantry/internal/auth"
)

// Manager-level failures surfaced to the HTTP layer.
var (
	// ErrInvalidCredentials covers unknown email, password-less account, and
	// wrong password. The three are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("session: invalid email or password")
	// ErrAccountDisabled is returned for a deactivated account with otherwise
	// valid credentials.
	ErrAccountDisabled = errors.New("session: account is deactivated")
	// ErrInvalidSession covers every refresh failure: unknown, revoked, or
	// expired token, and a missing or deactivated account behind it.
	ErrInvalidSession = errors.New("session: invalid refresh token")
	// ErrMissingSeed means the seeded default system role is absent. This is
	// an operational precondition, not a user error.
	ErrMissingSeed = errors.New("session: default system role not seeded")
)

// AccountStore is the slice of the account store the Manager needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	GetSystemRole(ctx context.Context, name string) (*account.Role, error)
	TouchLastLogin(ctx context.Context, id string) error
}

// SessionStore is implemented by Store; the Manager depends on this narrow
// interface so tests can substitute an in-memory fake.
type SessionStore interface {
	CreateAccount(ctx context.Context, p CreateAccountParams) (*account.Account, error)
	CreateSession(ctx context.Context, p CreateSessionParams) error
	RotateSession(ctx context.Context, p RotateParams) (*account.Account, error)
	RevokeSession(ctx context.Context, tokenHash, reason string) error
	IssueEmailVerification(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	ConsumeEmailVerification(ctx context.Context, tokenHash string) error
	IssuePasswordReset(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, newPasswordHash string) error
}

// Mailer delivers verification and reset links. Delivery is best-effort:
// a failure never rolls back the token that was issued.
type Mailer interface {
	SendEmailVerification(ctx context.Context, to, rawToken string) error
	SendPasswordReset(ctx context.Context, to, rawToken string) error
}

// Config carries the Manager's token lifetimes.
type Config struct {
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration
}

// Credentials are the result of a successful register, login, or refresh:
// the account plus a fresh access/refresh token pair. RefreshToken is the
// raw opaque value and is never persisted.
type Credentials struct {
	Account      *account.Account
	AccessToken  string
	RefreshToken string
}

// RegisterParams are the inputs to Register.
type RegisterParams struct {
	Email    string
	Password string
	FullName string
	Client   ClientInfo
}

// Manager orchestrates the credential and session lifecycle.
type Manager struct {
	accounts AccountStore
	sessions SessionStore
	issuer   *auth.Issuer
	mailer   Mailer
	cfg      Config
}

// NewManager creates a session manager.
func NewManager(accounts AccountStore, sessions SessionStore, issuer *auth.Issuer, mailer Mailer, cfg Config) *Manager {
	return &Manager{
		accounts: accounts,
		sessions: sessions,
		issuer:   issuer,
		mailer:   mailer,
		cfg:      cfg,
	}
}

// CheckSeeds verifies the seeded default system role exists. Called once at
// process start so a missing seed fails loudly instead of surfacing as a
// mid-request 500.
func (m *Manager) CheckSeeds(ctx context.Context) error {
	_, err := m.accounts.GetSystemRole(ctx, account.DefaultSystemRole)
	if errors.Is(err, account.ErrNotFound) {
		return ErrMissingSeed
	}
	if err != nil {
		return fmt.Errorf("checking seeded roles: %w", err)
	}
	return nil
}

func (m *Manager) newRefreshToken() (raw, hash string, expiresAt time.Time, err error) {
	raw, err = auth.NewOpaqueToken()
	if err != nil {
		return "", "", time.Time{}, err
	}
	return raw, auth.HashToken(raw), time.Now().Add(m.cfg.RefreshTokenTTL), nil
}

// Register creates a new account with a hashed password, its personal
// organization, and a first session, atomically. Fails with ErrEmailTaken
// if the email is already registered and ErrMissingSeed if the default
// system role is absent.
func (m *Manager) Register(ctx context.Context, p RegisterParams) (*Credentials, error) {
	role, err := m.accounts.GetSystemRole(ctx, account.DefaultSystemRole)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrMissingSeed
	}
	if err != nil {
		return nil, fmt.Errorf("loading default role: %w", err)
	}

	passwordHash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	raw, hash, expiresAt, err := m.newRefreshToken()
	if err != nil {
		return nil, err
	}

	a, err := m.sessions.CreateAccount(ctx, CreateAccountParams{
		Email:        p.Email,
		PasswordHash: passwordHash,
		FullName:     p.FullName,
		SystemRoleID: role.ID,
		Session: CreateSessionParams{
			TokenHash:  hash,
			DeviceInfo: p.Client.DeviceInfo,
			IPAddress:  p.Client.IPAddress,
			ExpiresAt:  expiresAt,
		},
	})
	if err != nil {
		return nil, err
	}

	access, err := m.issuer.Issue(a.ID)
	if err != nil {
		return nil, err
	}

	return &Credentials{Account: a, AccessToken: access, RefreshToken: raw}, nil
}

// Login authenticates by email and password and issues a fresh token pair.
// Unknown email, password-less account, and wrong password all yield the
// same ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, email, password string, client ClientInfo) (*Credentials, error) {
	a, err := m.accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account: %w", err)
	}
	if a.PasswordHash == nil || !auth.CheckPassword(password, *a.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !a.IsActive {
		return nil, ErrAccountDisabled
	}

	raw, hash, expiresAt, err := m.newRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := m.sessions.CreateSession(ctx, CreateSessionParams{
		AccountID:  a.ID,
		TokenHash:  hash,
		DeviceInfo: client.DeviceInfo,
		IPAddress:  client.IPAddress,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return nil, err
	}

	if err := m.accounts.TouchLastLogin(ctx, a.ID); err != nil {
		slog.Warn("failed to stamp last login", "account_id", a.ID, "error", err)
	}

	access, err := m.issuer.Issue(a.ID)
	if err != nil {
		return nil, err
	}
	return &Credentials{Account: a, AccessToken: access, RefreshToken: raw}, nil
}

// Refresh rotates the presented refresh token and issues a new token pair.
// Rotation and reissue happen in one transaction in the store; after a
// successful call the presented token is permanently unusable. Every
// failure collapses to ErrInvalidSession.
func (m *Manager) Refresh(ctx context.Context, rawRefreshToken string, client ClientInfo) (*Credentials, error) {
	raw, hash, expiresAt, err := m.newRefreshToken()
	if err != nil {
		return nil, err
	}

	a, err := m.sessions.RotateSession(ctx, RotateParams{
		OldTokenHash: auth.HashToken(rawRefreshToken),
		NewTokenHash: hash,
		DeviceInfo:   client.DeviceInfo,
		IPAddress:    client.IPAddress,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound),
			errors.Is(err, ErrSessionExpired),
			errors.Is(err, ErrAccountInactive):
			slog.Info("refresh rejected", "reason", err)
			return nil, ErrInvalidSession
		default:
			return nil, err
		}
	}

	access, err := m.issuer.Issue(a.ID)
	if err != nil {
		return nil, err
	}
	return &Credentials{Account: a, AccessToken: access, RefreshToken: raw}, nil
}

// Logout revokes the session behind the presented refresh token. It is
// idempotent: an unknown, empty, or already-revoked token is a no-op.
func (m *Manager) Logout(ctx context.Context, rawRefreshToken string) error {
	if rawRefreshToken == "" {
		return nil
	}
	return m.sessions.RevokeSession(ctx, auth.HashToken(rawRefreshToken), RevokedLogout)
}

// SendEmailVerification issues a fresh verification token (invalidating any
// prior unused one) and mails the raw value. The token is committed before
// the send; a delivery failure is returned to the caller but never undoes
// the issuance.
func (m *Manager) SendEmailVerification(ctx context.Context, a *account.Account) error {
	raw, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(m.cfg.VerificationTokenTTL)
	if err := m.sessions.IssueEmailVerification(ctx, a.ID, auth.HashToken(raw), expiresAt); err != nil {
		return err
	}
	return m.mailer.SendEmailVerification(ctx, a.Email, raw)
}

// VerifyEmail consumes a verification token and marks the account verified.
func (m *Manager) VerifyEmail(ctx context.Context, rawToken string) error {
	return m.sessions.ConsumeEmailVerification(ctx, auth.HashToken(rawToken))
}

// RequestPasswordReset issues a reset token and mails it. An unknown email
// succeeds silently so the endpoint cannot be used to probe for accounts.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := m.accounts.GetByEmail(ctx, email)
	if errors.Is(err, account.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	raw, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(m.cfg.ResetTokenTTL)
	if err := m.sessions.IssuePasswordReset(ctx, a.ID, auth.HashToken(raw), expiresAt); err != nil {
		return err
	}
	return m.mailer.SendPasswordReset(ctx, a.Email, raw)
}

// ResetPassword consumes a reset token, replaces the password, and revokes
// all of the account's active refresh sessions.
func (m *Manager) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	passwordHash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return m.sessions.ConsumePasswordReset(ctx, auth.HashToken(rawToken), passwordHash)
}
