package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gantry-app/gantry/internal/account"
	"github.com/gantry-app/gantry/internal/auth"
	"github.com/gantry-app/gantry/internal/config"
	"github.com/gantry-app/gantry/internal/metrics"
	"github.com/gantry-app/gantry/internal/session"
)

// SessionService is the slice of the session manager the handlers need.
type SessionService interface {
	Register(ctx context.Context, p session.RegisterParams) (*session.Credentials, error)
	Login(ctx context.Context, email, password string, client session.ClientInfo) (*session.Credentials, error)
	Refresh(ctx context.Context, rawRefreshToken string, client session.ClientInfo) (*session.Credentials, error)
	Logout(ctx context.Context, rawRefreshToken string) error
	SendEmailVerification(ctx context.Context, a *account.Account) error
	VerifyEmail(ctx context.Context, rawToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, rawToken, newPassword string) error
}

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	sessions SessionService
	cfg      config.AuthConfig
	metrics  *metrics.Metrics
}

func newAuthHandler(sessions SessionService, cfg config.AuthConfig, m *metrics.Metrics) *authHandler {
	return &authHandler{sessions: sessions, cfg: cfg, metrics: m}
}

// accountResponse is the public shape of an account.
type accountResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	IsActive      bool   `json:"is_active"`
	EmailVerified bool   `json:"email_verified"`
	Timezone      string `json:"timezone,omitempty"`
	Locale        string `json:"locale,omitempty"`
}

func toAccountResponse(a *account.Account) accountResponse {
	var avatar string
	if a.AvatarURL != nil {
		avatar = *a.AvatarURL
	}
	return accountResponse{
		ID:            a.ID,
		Email:         a.Email,
		FullName:      a.FullName,
		AvatarURL:     avatar,
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		Timezone:      a.Timezone,
		Locale:        a.Locale,
	}
}

func clientInfo(r *http.Request) session.ClientInfo {
	return session.ClientInfo{
		DeviceInfo: r.UserAgent(),
		IPAddress:  clientIP(r),
	}
}

// clientIP extracts the originating client address. X-Forwarded-For may carry
// a comma-separated proxy chain or arbitrary client-supplied text, so only the
// first hop is used and only when it parses as an address. The stored value
// feeds an inet column, so anything unparseable is dropped rather than
// forwarded.
func clientIP(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}

// setAuthCookies stores both tokens as httponly cookies.
func (h *authHandler) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		MaxAge:   int(h.cfg.AccessTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    refreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   int(h.cfg.RefreshTokenTTL / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *authHandler) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.AccessCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    "",
		Path:     "/api/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshTokenFromRequest prefers the refresh cookie, falling back to a JSON
// body for non-browser clients.
func (h *authHandler) refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(h.cfg.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := readJSON(r, &body); err == nil {
		return body.RefreshToken
	}
	return ""
}

// Register handles POST /api/v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=72"`
		FullName string `json:"full_name" validate:"required,max=200"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	creds, err := h.sessions.Register(r.Context(), session.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Client:   clientInfo(r),
	})
	if err != nil {
		h.metrics.IncAuthFailure("register")
		if !isClientError(err) {
			slog.Error("register failed", "error", err)
		}
		writeDomainError(w, err)
		return
	}

	// Verification email is best-effort; registration has already committed.
	if err := h.sessions.SendEmailVerification(r.Context(), creds.Account); err != nil {
		slog.Warn("verification email delivery failed", "account_id", creds.Account.ID, "error", err)
		h.metrics.IncMailSend("verification", "error")
	} else {
		h.metrics.IncMailSend("verification", "ok")
	}

	h.metrics.IncAuthSuccess("register")
	h.setAuthCookies(w, creds.AccessToken, creds.RefreshToken)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"account":       toAccountResponse(creds.Account),
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	creds, err := h.sessions.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		h.metrics.IncAuthFailure("login")
		if !isClientError(err) {
			slog.Error("login failed", "error", err)
		}
		writeDomainError(w, err)
		return
	}

	h.metrics.IncAuthSuccess("login")
	h.setAuthCookies(w, creds.AccessToken, creds.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":       toAccountResponse(creds.Account),
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
	})
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *authHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFromRequest(r)
	if raw == "" {
		h.metrics.IncAuthFailure("refresh")
		writeError(w, http.StatusUnauthorized, "invalid_session", "invalid or expired refresh token")
		return
	}

	creds, err := h.sessions.Refresh(r.Context(), raw, clientInfo(r))
	if err != nil {
		h.metrics.IncAuthFailure("refresh")
		if !isClientError(err) {
			slog.Error("refresh failed", "error", err)
		}
		h.clearAuthCookies(w)
		writeDomainError(w, err)
		return
	}

	h.metrics.IncAuthSuccess("refresh")
	h.metrics.IncSessionRotation()
	h.setAuthCookies(w, creds.AccessToken, creds.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  creds.AccessToken,
		"refresh_token": creds.RefreshToken,
	})
}

// Logout handles POST /api/v1/auth/logout. Always succeeds.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw := h.refreshTokenFromRequest(r)
	if err := h.sessions.Logout(r.Context(), raw); err != nil {
		// Revocation failure is not surfaced; the cookies are cleared anyway.
		slog.Error("logout revoke failed", "error", err)
	}
	h.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "logged out"})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())
	if a == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

// SendVerificationEmail handles POST /api/v1/auth/send-verification-email.
func (h *authHandler) SendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	a := auth.AccountFromContext(r.Context())
	if a == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}
	if a.EmailVerified {
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "already verified"})
		return
	}

	if err := h.sessions.SendEmailVerification(r.Context(), a); err != nil {
		slog.Error("verification email delivery failed", "account_id", a.ID, "error", err)
		h.metrics.IncMailSend("verification", "error")
		writeError(w, http.StatusBadGateway, "mail_error", "failed to send verification email")
		return
	}
	h.metrics.IncMailSend("verification", "ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "verification email sent"})
}

// VerifyEmail handles GET /api/v1/auth/verify-email?token=...
func (h *authHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_token", "token is required")
		return
	}

	if err := h.sessions.VerifyEmail(r.Context(), raw); err != nil {
		if !isClientError(err) {
			slog.Error("email verification failed", "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "email verified"})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password. The response is
// identical whether or not the email matches an account.
func (h *authHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	if err := h.sessions.RequestPasswordReset(r.Context(), req.Email); err != nil {
		slog.Error("password reset request failed", "error", err)
		h.metrics.IncMailSend("reset", "error")
		// Still answer generically; the failure is operational, not the
		// caller's business.
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "if the email exists, a reset link has been sent",
	})
}

// ResetPassword handles POST /api/v1/auth/reset-password.
func (h *authHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if err := validateStruct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	if err := h.sessions.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if !isClientError(err) {
			slog.Error("password reset failed", "error", err)
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "password updated"})
}
