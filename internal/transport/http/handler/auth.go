package handler

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	identity *identity.Service
	logger   *slog.Logger
}

func NewAuthHandler(identitySvc *identity.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{identity: identitySvc, logger: logger.With("component", "auth_handler")}
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresAt    string `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	IsAdmin      bool   `json:"is_admin"`
}

func toSessionResponse(s *identity.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		ExpiresAt:    s.ExpiresAt.Format(http.TimeFormat),
		RefreshToken: s.RefreshToken,
		UserID:       s.User.ID,
		Email:        s.User.Email,
		IsAdmin:      s.User.IsAdmin,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.identity.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

type magicLinkRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// POST /auth/magic-link
// Always returns 200 to avoid revealing whether the email exists.
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.identity.RequestMagicLink(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("request magic link", "error", err)
	}
	c.Status(http.StatusOK)
}

// GET /auth/verify?token=<raw>
func (h *AuthHandler) VerifyMagicLink(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errTokenInvalid})
		return
	}
	sess, err := h.identity.VerifyMagicLink(c.Request.Context(), raw)
	if err != nil {
		writeError(c, h.logger, "verify magic link", err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.identity.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, "refresh", err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.identity.Logout(c.Request.Context(), c.GetString("userID")); err != nil {
		writeError(c, h.logger, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /auth/setup-status
func (h *AuthHandler) SetupStatus(c *gin.Context) {
	bootstrapped, err := h.identity.SetupStatus(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "setup status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bootstrapped": bootstrapped})
}

const errTokenInvalid = "Token is invalid or expired"
