package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gantry-app/gantry/internal/account"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// --- password hashing tests ---

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("Secret123!")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "Secret123!" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("Secret123!", hash) {
		t.Error("CheckPassword should verify the original password")
	}
	if CheckPassword("Secret123?", hash) {
		t.Error("CheckPassword should reject a different password")
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	if CheckPassword("anything", "not-a-bcrypt-hash") {
		t.Error("CheckPassword should return false for a malformed hash")
	}
}

func TestHashPassword_DistinctSalts(t *testing.T) {
	h1, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashPassword("same-password")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}

// --- opaque token tests ---

func TestNewOpaqueToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken() error: %v", err)
		}
		if len(tok) != 64 {
			t.Fatalf("expected 64-char hex token, got %d chars", len(tok))
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	h1 := HashToken("some-opaque-token")
	h2 := HashToken("some-opaque-token")
	if h1 != h2 {
		t.Errorf("HashToken should be deterministic: %q != %q", h1, h2)
	}
	if h1 == "some-opaque-token" {
		t.Error("digest must not equal the input")
	}
	if HashToken("other-token") == h1 {
		t.Error("different inputs should produce different digests")
	}
}

// --- issuer tests ---

func TestIssuer_IssueAndVerify(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)

	token, err := issuer.Issue("account-123")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	subject, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if subject != "account-123" {
		t.Errorf("expected subject account-123, got %q", subject)
	}
}

func TestIssuer_Expired(t *testing.T) {
	issuer := NewIssuer(testSecret, -time.Minute)

	token, err := issuer.Issue("account-123")
	if err != nil {
		t.Fatal(err)
	}

	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestIssuer_BadSignature(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)
	other := NewIssuer("ffffffffffffffffffffffffffffffff", 30*time.Minute)

	token, err := other.Issue("account-123")
	if err != nil {
		t.Fatal(err)
	}

	_, err = issuer.Verify(token)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
}

func TestIssuer_Malformed(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := issuer.Verify(tok); err == nil {
			t.Errorf("expected error for token %q", tok)
		}
	}
}

func TestIssuer_WrongType(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)

	// A validly signed token whose type claim is not "access".
	now := time.Now().UTC()
	claims := Claims{
		Type: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "account-123",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	_, err = issuer.Verify(signed)
	if !errors.Is(err, ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
}

func TestIssuer_MissingSubject(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)

	now := time.Now().UTC()
	claims := Claims{
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := issuer.Verify(signed); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

// --- middleware tests ---

type mockAccountLookup struct {
	accounts map[string]*account.Account
}

func (m *mockAccountLookup) GetByID(_ context.Context, id string) (*account.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_ValidToken(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)
	lookup := &mockAccountLookup{accounts: map[string]*account.Account{
		"acc-1": {ID: "acc-1", Email: "a@x.com", IsActive: true},
	}}

	token, err := issuer.Issue("acc-1")
	if err != nil {
		t.Fatal(err)
	}

	var got *account.Account
	handler := Middleware(issuer, lookup, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = AccountFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got == nil || got.ID != "acc-1" {
		t.Errorf("expected account acc-1 in context, got %+v", got)
	}
}

func TestMiddleware_CookieFallback(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)
	lookup := &mockAccountLookup{accounts: map[string]*account.Account{
		"acc-1": {ID: "acc-1", IsActive: true},
	}}

	token, err := issuer.Issue("acc-1")
	if err != nil {
		t.Fatal(err)
	}

	handler := Middleware(issuer, lookup, "access_token")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via cookie, got %d", rec.Code)
	}
}

func TestMiddleware_Failures(t *testing.T) {
	issuer := NewIssuer(testSecret, 30*time.Minute)
	expired := NewIssuer(testSecret, -time.Minute)
	lookup := &mockAccountLookup{accounts: map[string]*account.Account{
		"acc-1": {ID: "acc-1", IsActive: true},
	}}

	expiredToken, _ := expired.Issue("acc-1")
	unknownSubject, _ := issuer.Issue("acc-gone")

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token abc") }},
		{"garbage token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer garbage") }},
		{"expired token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expiredToken) }},
		{"unknown subject", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+unknownSubject) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Middleware(issuer, lookup, "")(okHandler())
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			var body errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Error.Code != "unauthorized" {
				t.Errorf("expected code unauthorized, got %q", body.Error.Code)
			}
		})
	}
}

func TestRequireActive(t *testing.T) {
	handler := RequireActive(okHandler())

	// Active account passes.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithAccount(req.Context(), &account.Account{ID: "a", IsActive: true}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for active account, got %d", rec.Code)
	}

	// Deactivated account is forbidden.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ContextWithAccount(req.Context(), &account.Account{ID: "a", IsActive: false}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for deactivated account, got %d", rec.Code)
	}

	// No account at all is unauthorized.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without account, got %d", rec.Code)
	}
}
