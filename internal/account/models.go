package account

import "time"

// Role scopes.
const (
	ScopeSystem  = "system"
	ScopeProject = "project"
)

// DefaultSystemRole is the seeded role every registered account receives.
const DefaultSystemRole = "user"

// Account is a registered user account.
//
// PasswordHash is nil for externally-authenticated accounts; such an account
// cannot log in with a password.
type Account struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	PasswordHash  *string        `json:"-"`
	FullName      string         `json:"full_name"`
	AvatarURL     *string        `json:"avatar_url,omitempty"`
	SystemRoleID  string         `json:"system_role_id"`
	OAuthProvider *string        `json:"-"`
	OAuthID       *string        `json:"-"`
	IsActive      bool           `json:"is_active"`
	EmailVerified bool           `json:"email_verified"`
	Preferences   map[string]any `json:"preferences"`
	Timezone      string         `json:"timezone"`
	Locale        string         `json:"locale"`
	LastLoginAt   *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Role is a named permission bundle, either system-wide or per-project.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	IsSystem    bool      `json:"is_system"`
	Scope       string    `json:"scope"` // "system" or "project"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
