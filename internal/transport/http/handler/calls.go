package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/execengine"
	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	engine *execengine.Engine
	logger *slog.Logger
}

func NewCallHandler(engine *execengine.Engine, logger *slog.Logger) *CallHandler {
	return &CallHandler{engine: engine, logger: logger.With("component", "call_handler")}
}

// GET /api/admin/function-calls?function_name=&status=&trigger_type=&limit=&offset=
func (h *CallHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	calls, total, err := h.engine.ListCalls(c.Request.Context(),
		c.Query("function_name"), c.Query("status"), c.Query("trigger_type"), limit, offset)
	if err != nil {
		writeError(c, h.logger, "list function calls", err)
		return
	}
	items := make([]callResponse, len(calls))
	for i, call := range calls {
		items[i] = toCallResponse(call)
	}
	c.JSON(http.StatusOK, gin.H{"calls": items, "total": total})
}

// GET /api/admin/function-calls/:id
func (h *CallHandler) Get(c *gin.Context) {
	call, err := h.engine.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get function call", err)
		return
	}
	c.JSON(http.StatusOK, toCallResponse(call))
}

// POST /api/admin/function-calls/:id/cancel
// Idempotent per spec §4.E cancellation semantics: flips a per-call flag
// observed at the next protocol read, never errors on an already-terminal
// call.
func (h *CallHandler) Cancel(c *gin.Context) {
	h.engine.Cancel(c.Param("id"))
	c.Status(http.StatusAccepted)
}
