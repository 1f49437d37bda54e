package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/settings"
	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	settings *settings.Service
	logger   *slog.Logger
}

func NewAuditHandler(svc *settings.Service, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{settings: svc, logger: logger.With("component", "audit_handler")}
}

type auditEventResponse struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	Action     string `json:"action"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func toAuditEventResponse(e *domain.AuditEvent) auditEventResponse {
	return auditEventResponse{ID: e.ID, ActorID: e.ActorID, Action: e.Action, EntityType: e.EntityType, EntityID: e.EntityID}
}

// GET /api/admin/audit-events?entity_type=&limit=&offset=
func (h *AuditHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	events, total, err := h.settings.ListAudit(c.Request.Context(), c.Query("entity_type"), limit, offset)
	if err != nil {
		writeError(c, h.logger, "list audit events", err)
		return
	}
	items := make([]auditEventResponse, len(events))
	for i, e := range events {
		items[i] = toAuditEventResponse(e)
	}
	c.JSON(http.StatusOK, gin.H{"audit_events": items, "total": total})
}
