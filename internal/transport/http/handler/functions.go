package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/execengine"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/registry"
	"github.com/gin-gonic/gin"
)

type FunctionHandler struct {
	functions *registry.Service
	engine    *execengine.Engine
	logger    *slog.Logger
}

func NewFunctionHandler(functions *registry.Service, engine *execengine.Engine, logger *slog.Logger) *FunctionHandler {
	return &FunctionHandler{functions: functions, engine: engine, logger: logger.With("component", "function_handler")}
}

// callerFrom builds an *execengine.Caller from the gin context Auth left
// behind, or nil for an anonymous request (valid only against AuthPublic
// functions per spec §4.E step 2).
func callerFrom(c *gin.Context) *execengine.Caller {
	uid := c.GetString("userID")
	if uid == "" {
		return nil
	}
	return &execengine.Caller{UserID: uid, IsAdmin: c.GetBool("isAdmin")}
}

type functionResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	AuthLevel   domain.AuthLevel   `json:"auth_level"`
	Tags        []string           `json:"tags,omitempty"`
}

func toFunctionResponse(f *domain.FunctionDefinition) functionResponse {
	return functionResponse{Name: f.Name, Description: f.Description, AuthLevel: f.AuthLevel, Tags: f.Tags}
}

// GET /api/functions
func (h *FunctionHandler) List(c *gin.Context) {
	fns, err := h.functions.List(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list functions", err)
		return
	}
	items := make([]functionResponse, len(fns))
	for i, f := range fns {
		items[i] = toFunctionResponse(f)
	}
	c.JSON(http.StatusOK, gin.H{"functions": items})
}

type callResponse struct {
	CallID       string          `json:"call_id"`
	Status       domain.CallStatus `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorType    *string         `json:"error_type"`
	ErrorMessage *string         `json:"error_message"`
	DurationMS   *int64          `json:"duration_ms"`
	VersionHash  string          `json:"version_hash,omitempty"`
}

func toCallResponse(call *domain.FunctionCall) callResponse {
	resp := callResponse{CallID: call.ID, Status: call.Status, DurationMS: call.DurationMS}
	if len(call.Output) > 0 {
		resp.Result = call.Output
	}
	if call.ErrorType != "" {
		resp.ErrorType = &call.ErrorType
	}
	if call.ErrorMessage != "" {
		resp.ErrorMessage = &call.ErrorMessage
	}
	return resp
}

// POST /api/functions/:name?async=1
// Invokes synchronously by default (blocks until the call is terminal, per
// spec §6's invocation response shape); ?async=1 returns as soon as the call
// is PENDING, matching invoke_async (spec §4.E).
func (h *FunctionHandler) Invoke(c *gin.Context) {
	name := c.Param("name")
	var input json.RawMessage
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	caller := callerFrom(c)
	var call *domain.FunctionCall
	var err error
	if c.Query("async") != "" {
		call, err = h.engine.InvokeAsync(c.Request.Context(), name, input, caller, domain.TriggerAPI)
	} else {
		call, err = h.engine.Invoke(c.Request.Context(), name, input, caller, domain.TriggerAPI)
	}
	if err != nil {
		writeError(c, h.logger, "invoke function", err)
		return
	}
	c.JSON(http.StatusOK, toCallResponse(call))
}

type uploadFunctionRequest struct {
	Name        string           `json:"name" binding:"required,max=128"`
	Description string           `json:"description"`
	AuthLevel   domain.AuthLevel `json:"auth_level" binding:"omitempty,oneof=public auth admin"`
	Tags        []string         `json:"tags"`
	Source      string           `json:"source" binding:"required"`
	Notes       string           `json:"notes"`
}

// POST /api/admin/functions
// Defines the function (idempotently) and deploys req.Source as a version;
// if the content hash matches the current active version no new row is
// recorded (spec §4.C versioning rule).
func (h *FunctionHandler) Upload(c *gin.Context) {
	var req uploadFunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	authLevel := req.AuthLevel
	if authLevel == "" {
		authLevel = domain.AuthUser
	}

	def, err := h.functions.Define(c.Request.Context(), req.Name, req.Description, authLevel, req.Tags, req.Source)
	if err != nil {
		writeError(c, h.logger, "define function", err)
		return
	}

	deployedBy := c.GetString("userID")
	version, err := h.functions.PutVersion(c.Request.Context(), def.Name, req.Source, deployedBy, req.Notes)
	if err != nil {
		writeError(c, h.logger, "put function version", err)
		return
	}
	if version.IsActive {
		h.engine.DrainOlderVersions(def.Name, version.ID)
	}
	c.JSON(http.StatusCreated, gin.H{
		"function":     toFunctionResponse(def),
		"version_id":   version.ID,
		"content_hash": version.ContentHash,
		"is_active":    version.IsActive,
	})
}

// GET /api/admin/functions/:name/schema
func (h *FunctionHandler) Schema(c *gin.Context) {
	def, err := h.functions.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, h.logger, "get function schema", err)
		return
	}
	c.JSON(http.StatusOK, toFunctionResponse(def))
}

type functionVersionResponse struct {
	ID          string `json:"id"`
	ContentHash string `json:"content_hash"`
	Notes       string `json:"notes"`
	IsActive    bool   `json:"is_active"`
	DeployedBy  string `json:"deployed_by"`
}

// GET /api/admin/functions/:name/versions
func (h *FunctionHandler) ListVersions(c *gin.Context) {
	versions, err := h.functions.ListVersions(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, h.logger, "list function versions", err)
		return
	}
	items := make([]functionVersionResponse, len(versions))
	for i, v := range versions {
		items[i] = functionVersionResponse{ID: v.ID, ContentHash: v.ContentHash, Notes: v.Notes, IsActive: v.IsActive, DeployedBy: v.DeployedBy}
	}
	c.JSON(http.StatusOK, gin.H{"versions": items})
}
