// Package identity implements Identity (spec §4.H): JWT access/refresh
// issuance and verification, password and magic-link login, and the
// refresh-token-hash-at-rest pattern.
//
// Grounded on the teacher's internal/usecase/auth.go (magic-link flow,
// sha256 token hashing, golang-jwt/jwt/v5 HS256 signing) and
// internal/transport/http/middleware/auth.go (Bearer parse + HMAC keyfunc),
// generalized from one JWT-only session into an access/refresh pair plus
// password-based login.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access-token payload. Mirrors the teacher's jwt.MapClaims
// shape (sub/email/iat/exp) as a typed struct so handlers and middleware
// share one definition instead of re-keying a map.
type Claims struct {
	UserID  string `json:"sub"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies access tokens with one HS256 key, the
// teacher's own signing method.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

func NewTokenIssuer(key []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, ttl: ttl}
}

// Issue signs a new access token for user, valid for the issuer's configured ttl.
func (t *TokenIssuer) Issue(user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		UserID:  user.ID,
		Email:   user.Email,
		IsAdmin: user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses and validates a raw access token, returning its claims.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.key, nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrTokenInvalid
	}
	if claims.UserID == "" {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
