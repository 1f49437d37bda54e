package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/settings"
	"github.com/gin-gonic/gin"
)

type SettingHandler struct {
	settings *settings.Service
	logger   *slog.Logger
}

func NewSettingHandler(svc *settings.Service, logger *slog.Logger) *SettingHandler {
	return &SettingHandler{settings: svc, logger: logger.With("component", "setting_handler")}
}

type settingResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ValueType domain.ValueType `json:"value_type"`
}

func toSettingResponse(s *domain.Setting) settingResponse {
	return settingResponse{Key: s.Key, Value: s.Value, ValueType: s.ValueType}
}

// GET /api/admin/settings?prefix=
func (h *SettingHandler) List(c *gin.Context) {
	items, err := h.settings.List(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		writeError(c, h.logger, "list settings", err)
		return
	}
	resp := make([]settingResponse, len(items))
	for i, s := range items {
		resp[i] = toSettingResponse(s)
	}
	c.JSON(http.StatusOK, gin.H{"settings": resp})
}

// GET /api/admin/settings/:key
func (h *SettingHandler) Get(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		writeError(c, h.logger, "get setting", err)
		return
	}
	c.JSON(http.StatusOK, toSettingResponse(s))
}

type patchSettingRequest struct {
	Value     json.RawMessage  `json:"value" binding:"required"`
	ValueType domain.ValueType `json:"value_type" binding:"required,oneof=string int float bool json"`
}

// PATCH /api/admin/settings/:key
func (h *SettingHandler) Patch(c *gin.Context) {
	var req patchSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.settings.Set(c.Request.Context(), c.GetString("userID"), c.Param("key"), req.Value, req.ValueType); err != nil {
		writeError(c, h.logger, "patch setting", err)
		return
	}
	c.Status(http.StatusNoContent)
}
