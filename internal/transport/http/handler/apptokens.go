package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/identity"
	"github.com/gin-gonic/gin"
)

type AppTokenHandler struct {
	tokens *identity.AppTokenService
	logger *slog.Logger
}

func NewAppTokenHandler(svc *identity.AppTokenService, logger *slog.Logger) *AppTokenHandler {
	return &AppTokenHandler{tokens: svc, logger: logger.With("component", "app_token_handler")}
}

type appTokenResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

func toAppTokenResponse(t *domain.ApplicationToken) appTokenResponse {
	return appTokenResponse{ID: t.ID, Name: t.Name, IsActive: t.IsActive, ExpiresAt: t.ExpiresAt, LastUsedAt: t.LastUsedAt}
}

type createAppTokenRequest struct {
	Name      string     `json:"name" binding:"required,max=128"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// POST /api/admin/application-tokens
// Returns the plaintext token exactly once; only its hash is ever persisted.
func (h *AppTokenHandler) Create(c *gin.Context) {
	var req createAppTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	raw, t, err := h.tokens.Create(c.Request.Context(), req.Name, req.ExpiresAt)
	if err != nil {
		writeError(c, h.logger, "create application token", err)
		return
	}
	resp := toAppTokenResponse(t)
	c.JSON(http.StatusCreated, gin.H{"token": raw, "application_token": resp})
}

// GET /api/admin/application-tokens
func (h *AppTokenHandler) List(c *gin.Context) {
	tokens, err := h.tokens.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list application tokens", err)
		return
	}
	items := make([]appTokenResponse, len(tokens))
	for i, t := range tokens {
		items[i] = toAppTokenResponse(t)
	}
	c.JSON(http.StatusOK, gin.H{"application_tokens": items})
}

type patchAppTokenRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// PATCH /api/admin/application-tokens/:id
func (h *AppTokenHandler) Patch(c *gin.Context) {
	var req patchAppTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.tokens.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive); err != nil {
		writeError(c, h.logger, "patch application token", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/admin/application-tokens/:id
func (h *AppTokenHandler) Delete(c *gin.Context) {
	if err := h.tokens.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "delete application token", err)
		return
	}
	c.Status(http.StatusNoContent)
}
