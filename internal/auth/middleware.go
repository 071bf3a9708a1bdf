package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gantry-app/gantry/internal/account"
)

type contextKey int

const accountContextKey contextKey = iota

// ContextWithAccount returns a new context carrying the given account.
func ContextWithAccount(ctx context.Context, a *account.Account) context.Context {
	return context.WithValue(ctx, accountContextKey, a)
}

// AccountFromContext extracts the account from the context, or nil if not present.
func AccountFromContext(ctx context.Context) *account.Account {
	a, _ := ctx.Value(accountContextKey).(*account.Account)
	return a
}

// AccountLookup is the interface for resolving a token subject to an account.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// Middleware returns middleware that authenticates requests using a signed
// access token from the Authorization header or, failing that, the named
// cookie. On success the resolved account is injected into the request
// context. Every verification failure collapses to a generic 401.
func Middleware(issuer *Issuer, accounts AccountLookup, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r)
			if token == "" && cookieName != "" {
				if c, err := r.Cookie(cookieName); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				writeUnauthorized(w, "missing or malformed credentials")
				return
			}

			subject, err := issuer.Verify(token)
			if err != nil {
				writeUnauthorized(w, "invalid or expired credentials")
				return
			}

			a, err := accounts.GetByID(r.Context(), subject)
			if err != nil || a == nil {
				writeUnauthorized(w, "invalid or expired credentials")
				return
			}

			ctx := ContextWithAccount(r.Context(), a)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActive rejects requests whose authenticated account is deactivated.
// It must run after Middleware.
func RequireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := AccountFromContext(r.Context())
		if a == nil {
			writeUnauthorized(w, "not authenticated")
			return
		}
		if !a.IsActive {
			writeForbidden(w, "account is deactivated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractBearerToken extracts the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}

func writeForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "forbidden",
			Message: message,
		},
	})
}
