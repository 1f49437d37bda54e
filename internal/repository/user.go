package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

// UserRepository is the persistence boundary for User, MagicToken and
// RefreshToken rows. Usecases depend on this interface, never on the
// concrete Postgres implementation, so tests can substitute a fake.
type UserRepository interface {
	Create(ctx context.Context, email, passwordHash string) (*domain.User, error)
	CreateAdmin(ctx context.Context, email, passwordHash string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	CountUsers(ctx context.Context) (int, error)
	CountAdmins(ctx context.Context) (int, error)

	CreateMagicToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ClaimMagicToken(ctx context.Context, tokenHash string) (*domain.MagicToken, error)

	CreateRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}

// TokenRepository manages ApplicationToken rows (spec §6 application-tokens).
type TokenRepository interface {
	Create(ctx context.Context, name, hash string, expiresAt *time.Time) (*domain.ApplicationToken, error)
	List(ctx context.Context) ([]*domain.ApplicationToken, error)
	FindActiveByHash(ctx context.Context, hash string) (*domain.ApplicationToken, error)
	Touch(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}
