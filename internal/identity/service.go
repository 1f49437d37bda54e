package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/email"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
)

const (
	magicTokenTTL   = 15 * time.Minute
	refreshTokenTTL = 30 * 24 * time.Hour
)

// Session is what a successful login/refresh returns: a short-lived signed
// access token plus the opaque refresh token that can mint the next one.
type Session struct {
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string
	User         *domain.User
}

// Service implements spec §4.H's collaborator contract (verify/issue/revoke)
// plus the login/register/magic-link/refresh/logout endpoints carried over
// from the teacher's AuthUsecase.
type Service struct {
	users         repository.UserRepository
	tokens        *TokenIssuer
	email         email.Sender
	magicLinkBase string
}

func NewService(users repository.UserRepository, tokens *TokenIssuer, sender email.Sender, magicLinkBase string) *Service {
	return &Service{users: users, tokens: tokens, email: sender, magicLinkBase: magicLinkBase}
}

// Register creates a non-admin account with a password and returns a fresh
// session, the same way VerifyMagicLink issues one on first sign-in.
func (s *Service) Register(ctx context.Context, emailAddr, password string) (*Session, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Create(ctx, emailAddr, hash)
	if err != nil {
		if err == domain.ErrEmailTaken {
			return nil, apperr.New(apperr.KindConflict, "email already registered", err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.issueSession(ctx, user)
}

// Login verifies email+password and issues a session. Deactivated accounts
// are rejected even with a correct password.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return nil, apperr.New(apperr.KindUnauthorized, "invalid email or password", domain.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account is deactivated", domain.ErrUserInactive)
	}
	if !checkPassword(user.PasswordHash, password) {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid email or password", domain.ErrInvalidCredentials)
	}
	return s.issueSession(ctx, user)
}

// RequestMagicLink finds the user (silently no-ops for unknown addresses so
// the endpoint cannot be used to enumerate accounts), stores a single-use
// token hash, and emails the verify link. Grounded on the teacher's
// RequestMagicLink almost unchanged, except the teacher's FindOrCreate is
// narrowed to FindByEmail since registration here is its own endpoint.
func (s *Service) RequestMagicLink(ctx context.Context, emailAddr string) error {
	user, err := s.users.FindByEmail(ctx, emailAddr)
	if err != nil {
		if err == domain.ErrUserNotFound {
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	raw, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.users.CreateMagicToken(ctx, user.ID, hash, time.Now().Add(magicTokenTTL)); err != nil {
		return fmt.Errorf("store magic token: %w", err)
	}

	link := s.magicLinkBase + "/auth/verify?token=" + raw
	subject := "Your sign-in link"
	body := fmt.Sprintf(`<p>Click the link below to sign in (expires in 15 minutes):</p><p><a href="%s">%s</a></p>`, link, link)
	if err := s.email.Send(ctx, emailAddr, subject, body); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

// VerifyMagicLink atomically claims the raw token and issues a session.
func (s *Service) VerifyMagicLink(ctx context.Context, rawToken string) (*Session, error) {
	mt, err := s.users.ClaimMagicToken(ctx, hashToken(rawToken))
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "token is invalid or expired", err)
	}
	user, err := s.users.FindByID(ctx, mt.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account is deactivated", domain.ErrUserInactive)
	}
	return s.issueSession(ctx, user)
}

// Refresh exchanges a live refresh token for a new access token, rotating
// the refresh token (old one is revoked, a new one issued) so a leaked
// refresh token has a single-use window once it is replayed.
func (s *Service) Refresh(ctx context.Context, rawRefreshToken string) (*Session, error) {
	hash := hashToken(rawRefreshToken)
	rt, err := s.users.FindRefreshToken(ctx, hash)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "refresh token is invalid or expired", err)
	}
	if rt.RevokedAt != nil || time.Now().After(rt.ExpiresAt) {
		return nil, apperr.New(apperr.KindUnauthorized, "refresh token is invalid or expired", domain.ErrTokenInvalid)
	}

	user, err := s.users.FindByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account is deactivated", domain.ErrUserInactive)
	}

	if err := s.users.RevokeRefreshToken(ctx, hash); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}
	return s.issueSession(ctx, user)
}

// Logout revokes every refresh token for userID, ending every session.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.users.RevokeAllRefreshTokens(ctx, userID)
}

// SetupStatus reports whether an admin account has been bootstrapped, so
// the CLI's init subcommand and the SPA know whether first-run setup is
// still pending (spec §6 GET /auth/setup-status).
func (s *Service) SetupStatus(ctx context.Context) (bool, error) {
	n, err := s.users.CountAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	return n > 0, nil
}

// Bootstrap creates the first admin account. Callers (the init CLI
// subcommand) must check SetupStatus first and treat an existing admin as
// exit code 3 (bootstrap conflict) per spec §6's CLI surface.
func (s *Service) Bootstrap(ctx context.Context, emailAddr, password string) (*domain.User, error) {
	bootstrapped, err := s.SetupStatus(ctx)
	if err != nil {
		return nil, err
	}
	if bootstrapped {
		return nil, apperr.New(apperr.KindConflict, "an admin has already been bootstrapped", nil)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateAdmin(ctx, emailAddr, hash)
}

// Verify parses a bearer access token into (user_id, is_admin, is_active) as
// spec §4.H's engine-facing contract describes, fetching the live user row
// so a deactivation takes effect before the token's own expiry does.
func (s *Service) Verify(ctx context.Context, rawAccessToken string) (*domain.User, error) {
	claims, err := s.tokens.Verify(rawAccessToken)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid or expired token", err)
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.New(apperr.KindUnauthorized, "invalid or expired token", err)
	}
	if !user.IsActive {
		return nil, apperr.New(apperr.KindForbidden, "account is deactivated", domain.ErrUserInactive)
	}
	return user, nil
}

func (s *Service) issueSession(ctx context.Context, user *domain.User) (*Session, error) {
	access, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	rawRefresh, refreshHash, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateRefreshToken(ctx, user.ID, refreshHash, time.Now().Add(refreshTokenTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &Session{
		AccessToken:  access,
		ExpiresAt:    expiresAt,
		RefreshToken: rawRefresh,
		User:         user,
	}, nil
}
