package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
)

// AppTokenService manages ApplicationToken rows (spec §6
// application-tokens) and verifies them as an alternate, non-interactive
// bearer credential alongside the JWT access token.
type AppTokenService struct {
	tokens repository.TokenRepository
}

func NewAppTokenService(tokens repository.TokenRepository) *AppTokenService {
	return &AppTokenService{tokens: tokens}
}

// Create mints a new application token and returns its plaintext once; only
// the hash is ever persisted.
func (s *AppTokenService) Create(ctx context.Context, name string, expiresAt *time.Time) (string, *domain.ApplicationToken, error) {
	raw, hash, err := newOpaqueToken()
	if err != nil {
		return "", nil, err
	}
	t, err := s.tokens.Create(ctx, name, hash, expiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("create application token: %w", err)
	}
	return raw, t, nil
}

func (s *AppTokenService) List(ctx context.Context) ([]*domain.ApplicationToken, error) {
	return s.tokens.List(ctx)
}

func (s *AppTokenService) SetActive(ctx context.Context, id string, active bool) error {
	return s.tokens.SetActive(ctx, id, active)
}

func (s *AppTokenService) Delete(ctx context.Context, id string) error {
	return s.tokens.Delete(ctx, id)
}

// Verify looks up the active, unexpired token matching rawToken and touches
// its last_used_at as a usage breadcrumb.
func (s *AppTokenService) Verify(ctx context.Context, rawToken string) (*domain.ApplicationToken, error) {
	t, err := s.tokens.FindActiveByHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid or expired application token", err)
	}
	_ = s.tokens.Touch(ctx, t.ID)
	return t, nil
}
