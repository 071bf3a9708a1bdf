package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gantry-app/gantry/internal/access"
	"github.com/gantry-app/gantry/internal/session"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// isClientError reports whether err is an expected domain failure that should
// not be logged at error level.
func isClientError(err error) bool {
	return errors.Is(err, session.ErrInvalidCredentials) ||
		errors.Is(err, session.ErrInvalidSession) ||
		errors.Is(err, session.ErrAccountDisabled) ||
		errors.Is(err, session.ErrEmailTaken) ||
		errors.Is(err, session.ErrTokenInvalid) ||
		errors.Is(err, access.ErrNotFound) ||
		errors.Is(err, access.ErrForbidden)
}

// writeDomainError maps domain sentinel errors onto the HTTP taxonomy.
// Anything unmapped is a 500 with a generic message; the detail goes to the
// log at the call site, never to the client.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, session.ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, "invalid_session", "invalid or expired refresh token")
	case errors.Is(err, session.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, "account_disabled", "account is deactivated")
	case errors.Is(err, session.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
	case errors.Is(err, session.ErrTokenInvalid):
		writeError(w, http.StatusBadRequest, "invalid_token", "token is invalid, expired, or already used")
	case errors.Is(err, access.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "you do not have access to this resource")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "an internal error occurred")
	}
}
