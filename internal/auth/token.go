// Package auth issues and verifies the administrator credential used by the
// moderation endpoints. Tokens are stateless: validity depends only on the
// signature and the age of the token at verification time.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chatroom"

// ErrEmptySecret is returned when a TokenIssuer is built without a signing key.
var ErrEmptySecret = errors.New("token secret is required")

// AdminClaims is the payload of an admin credential.
type AdminClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies admin tokens with HMAC-SHA256.
type TokenIssuer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenIssuer builds an issuer. maxAge bounds how long a token stays valid
// after issuance.
func NewTokenIssuer(secret string, maxAge time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if maxAge <= 0 {
		return nil, errors.New("token max age must be positive")
	}
	return &TokenIssuer{secret: []byte(secret), maxAge: maxAge, now: time.Now}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	clone := *t
	clone.now = now
	return &clone
}

// MaxAge reports the validity window of issued tokens.
func (t *TokenIssuer) MaxAge() time.Duration {
	return t.maxAge
}

// Issue creates a signed admin token stamped with the current time.
func (t *TokenIssuer) Issue() (string, error) {
	issuedAt := t.now()
	claims := &AdminClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify reports whether token carries a valid signature, the admin role and
// an issuance time no older than the max age. It never returns an error.
func (t *TokenIssuer) Verify(token string) bool {
	if token == "" {
		return false
	}
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid || !claims.Admin || claims.IssuedAt == nil {
		return false
	}
	return t.now().Sub(claims.IssuedAt.Time) <= t.maxAge
}
