// Package auth verifies admin capability tokens. The engine treats a
// Capability as opaque; this package is the external authorizer boundary
// that turns a bearer token into one.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Capability is an opaque, pre-validated admin credential. An empty
// Capability authorizes nothing.
type Capability string

// Empty reports whether the capability is absent.
func (c Capability) Empty() bool { return c == "" }

// ErrInvalidToken is returned for tokens that fail verification.
var ErrInvalidToken = errors.New("auth: invalid admin token")

// adminClaims are the registered claims plus the admin scope marker.
type adminClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// Verifier validates HMAC-signed admin tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses and validates a bearer token and returns the capability the
// engine will carry. Only HS256 is accepted.
func (v *Verifier) Verify(tokenString string) (Capability, error) {
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{},
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Scope != "admin" {
		return "", fmt.Errorf("%w: missing admin scope", ErrInvalidToken)
	}
	return Capability(claims.Subject), nil
}

// Issue mints a short-lived admin token, used by the CLI and tests.
func (v *Verifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "academy/auth",
		},
		Scope: "admin",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
