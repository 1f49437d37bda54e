package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInactive      = errors.New("user is deactivated")
	ErrEmailTaken        = errors.New("email already registered")
	ErrTokenInvalid      = errors.New("token is invalid or expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is a registered account. Rows are never hard-deleted while they own
// records elsewhere — deactivation is the terminal operation.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MagicToken is a single-use, time-boxed sign-in token. Only its hash is
// stored; the raw value is emailed once and never persisted.
type MagicToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RefreshToken backs the long-lived side of the access/refresh JWT pair.
// Revoking a user's tokens sets RevokedAt on every live row for that user.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// ApplicationToken is a long-lived, non-interactive credential (service
// account style). The plaintext is returned exactly once, at creation.
type ApplicationToken struct {
	ID         string
	Name       string
	Hash       string
	IsActive   bool
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
