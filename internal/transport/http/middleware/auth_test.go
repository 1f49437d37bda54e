package middleware_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/email"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

const testKey = "middleware-test-secret-32-chars!!"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUserRepo struct {
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: make(map[string]*domain.User), byEmail: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, emailAddr, hash string) (*domain.User, error) {
	u := &domain.User{ID: "user-1", Email: emailAddr, PasswordHash: hash, IsActive: true}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *fakeUserRepo) CreateAdmin(_ context.Context, emailAddr, hash string) (*domain.User, error) {
	u := &domain.User{ID: "admin-1", Email: emailAddr, PasswordHash: hash, IsActive: true, IsAdmin: true}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, emailAddr string) (*domain.User, error) {
	u, ok := r.byEmail[emailAddr]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) SetActive(_ context.Context, id string, active bool) error {
	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (r *fakeUserRepo) CountUsers(_ context.Context) (int, error)  { return len(r.byID), nil }
func (r *fakeUserRepo) CountAdmins(_ context.Context) (int, error) { return 0, nil }

func (r *fakeUserRepo) CreateMagicToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}
func (r *fakeUserRepo) ClaimMagicToken(_ context.Context, _ string) (*domain.MagicToken, error) {
	return nil, domain.ErrTokenInvalid
}
func (r *fakeUserRepo) CreateRefreshToken(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}
func (r *fakeUserRepo) FindRefreshToken(_ context.Context, _ string) (*domain.RefreshToken, error) {
	return nil, domain.ErrTokenInvalid
}
func (r *fakeUserRepo) RevokeRefreshToken(_ context.Context, _ string) error      { return nil }
func (r *fakeUserRepo) RevokeAllRefreshTokens(_ context.Context, _ string) error  { return nil }

type fakeTokenRepo struct {
	rows map[string]*domain.ApplicationToken
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{rows: make(map[string]*domain.ApplicationToken)}
}

func (r *fakeTokenRepo) Create(_ context.Context, name, hash string, expiresAt *time.Time) (*domain.ApplicationToken, error) {
	t := &domain.ApplicationToken{ID: "token-1", Name: name, Hash: hash, IsActive: true, ExpiresAt: expiresAt}
	r.rows[hash] = t
	return t, nil
}

func (r *fakeTokenRepo) List(_ context.Context) ([]*domain.ApplicationToken, error) { return nil, nil }

func (r *fakeTokenRepo) FindActiveByHash(_ context.Context, hash string) (*domain.ApplicationToken, error) {
	t, ok := r.rows[hash]
	if !ok || !t.IsActive {
		return nil, domain.ErrTokenInvalid
	}
	return t, nil
}

func (r *fakeTokenRepo) Touch(_ context.Context, _ string) error { return nil }

func (r *fakeTokenRepo) SetActive(_ context.Context, id string, active bool) error {
	for _, t := range r.rows {
		if t.ID == id {
			t.IsActive = active
			return nil
		}
	}
	return domain.ErrTokenInvalid
}

func (r *fakeTokenRepo) Delete(_ context.Context, id string) error {
	for h, t := range r.rows {
		if t.ID == id {
			delete(r.rows, h)
			return nil
		}
	}
	return domain.ErrTokenInvalid
}

func newTestIdentity() (*identity.Service, *fakeUserRepo) {
	users := newFakeUserRepo()
	issuer := identity.NewTokenIssuer([]byte(testKey), time.Hour)
	sender := email.NewSender("local", "", "", slog.Default())
	svc := identity.NewService(users, issuer, sender, "http://localhost/magic")
	return svc, users
}

func newEngine(identitySvc *identity.Service, appTokens *identity.AppTokenService) *gin.Engine {
	r := gin.New()
	r.GET("/protected", middleware.Auth(identitySvc, appTokens), func(c *gin.Context) {
		userID, _ := c.Get("userID")
		isAdmin, _ := c.Get("isAdmin")
		c.JSON(http.StatusOK, gin.H{"userID": userID, "isAdmin": isAdmin})
	})
	r.GET("/optional", middleware.OptionalAuth(identitySvc, appTokens), func(c *gin.Context) {
		userID, hasUser := c.Get("userID")
		c.JSON(http.StatusOK, gin.H{"userID": userID, "hasUser": hasUser})
	})
	r.GET("/admin-only", middleware.Auth(identitySvc, appTokens), middleware.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuth_MissingHeader_Returns401(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_NonBearerScheme_Returns401(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_InvalidToken_Returns401(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_ValidJWT_SetsUserID(t *testing.T) {
	identitySvc, users := newTestIdentity()
	ctx := context.Background()
	session, err := identitySvc.Register(ctx, "person@example.com", "correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = users

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestAuth_DeactivatedUser_Returns401(t *testing.T) {
	identitySvc, users := newTestIdentity()
	ctx := context.Background()
	session, err := identitySvc.Register(ctx, "person@example.com", "correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := users.SetActive(ctx, session.User.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_ValidApplicationToken_SetsAdmin(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	appTokens := identity.NewAppTokenService(newFakeTokenRepo())
	raw, _, err := appTokens.Create(context.Background(), "ci-token", nil)
	if err != nil {
		t.Fatalf("create app token: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	newEngine(identitySvc, appTokens).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestOptionalAuth_NoHeader_ProceedsAnonymous(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestOptionalAuth_InvalidToken_StillProceeds(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/optional", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRequireAdmin_NonAdminUser_Returns403(t *testing.T) {
	identitySvc, _ := newTestIdentity()
	session, err := identitySvc.Register(context.Background(), "person@example.com", "correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin-only", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	newEngine(identitySvc, nil).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
