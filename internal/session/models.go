package session

import "time"

// Revocation reasons recorded on a refresh session. A revoked row is never
// deleted; the reason preserves why the session ended.
const (
	RevokedRotated       = "rotated"
	RevokedLogout        = "logout"
	RevokedPasswordReset = "password_reset"
)

// RefreshSession is a persisted, hashed, rotating credential used solely to
// mint new access tokens. Only the SHA-256 digest of the opaque token is
// stored; the raw value is returned to the caller once at issuance.
type RefreshSession struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	TokenHash     string     `json:"-"`
	DeviceInfo    *string    `json:"device_info,omitempty"`
	IPAddress     *string    `json:"ip_address,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
	IsRevoked     bool       `json:"is_revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason *string    `json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// VerificationToken is the shared shape for email-verification and
// password-reset tokens: single-use, hashed, expiring.
type VerificationToken struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ClientInfo carries per-request device metadata recorded on refresh sessions.
type ClientInfo struct {
	DeviceInfo string
	IPAddress  string
}

// CreateSessionParams are the fields persisted for a new refresh session.
type CreateSessionParams struct {
	AccountID  string
	TokenHash  string
	DeviceInfo string
	IPAddress  string
	ExpiresAt  time.Time
}

// CreateAccountParams are the fields for the registration unit of work:
// account row, personal organization with owner membership, and the first
// refresh session, committed atomically.
type CreateAccountParams struct {
	Email        string
	PasswordHash string
	FullName     string
	SystemRoleID string
	Session      CreateSessionParams
}

// RotateParams describe a refresh-token rotation: the presented token's hash
// and the replacement row, applied in one transaction.
type RotateParams struct {
	OldTokenHash string
	NewTokenHash string
	DeviceInfo   string
	IPAddress    string
	ExpiresAt    time.Time
}
