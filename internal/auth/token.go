package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTypeAccess = "access"

// Token verification failures. Callers collapse all of these to a single
// unauthenticated outcome; the distinction exists for logs and tests.
var (
	ErrMalformed    = errors.New("auth: malformed token")
	ErrExpired      = errors.New("auth: token expired")
	ErrWrongType    = errors.New("auth: wrong token type")
	ErrBadSignature = errors.New("auth: bad signature")
)

// Claims are the JWT claims carried by an access token.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies signed access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer signing with HS256.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue produces a signed access token for the given subject (account id).
func (i *Issuer) Issue(subject string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Type: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry, and the type discriminator, and returns
// the subject claim. A token minted for any purpose other than "access"
// (a refresh-shaped credential, for example) is rejected with ErrWrongType.
func (i *Issuer) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrBadSignature
		}
		return i.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", ErrBadSignature
		default:
			return "", ErrMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrMalformed
	}
	if claims.Type != tokenTypeAccess {
		return "", ErrWrongType
	}
	if claims.Subject == "" {
		return "", ErrMalformed
	}
	return claims.Subject, nil
}
