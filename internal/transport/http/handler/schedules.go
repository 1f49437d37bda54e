package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/scheduler"
	"github.com/gin-gonic/gin"
)

type ScheduleHandler struct {
	schedules *scheduler.Service
	logger    *slog.Logger
}

func NewScheduleHandler(svc *scheduler.Service, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: svc, logger: logger.With("component", "schedule_handler")}
}

type scheduleResponse struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	FunctionName string              `json:"function_name"`
	Spec         domain.ScheduleSpec `json:"schedule"`
	IsActive     bool                `json:"is_active"`
	NextRunAt    *string             `json:"next_run_at"`
	LastRunAt    *string             `json:"last_run_at"`
	LastCallID   *string             `json:"last_call_id"`
}

func toScheduleResponse(s *domain.FunctionSchedule) scheduleResponse {
	resp := scheduleResponse{
		ID: s.ID, Name: s.Name, FunctionName: s.FunctionName,
		Spec: s.Spec, IsActive: s.IsActive, LastCallID: s.LastCallID,
	}
	if s.NextRunAt != nil {
		ts := s.NextRunAt.Format(http.TimeFormat)
		resp.NextRunAt = &ts
	}
	if s.LastRunAt != nil {
		ts := s.LastRunAt.Format(http.TimeFormat)
		resp.LastRunAt = &ts
	}
	return resp
}

type createScheduleRequest struct {
	Name         string              `json:"name" binding:"required,max=256"`
	FunctionName string              `json:"function_name" binding:"required"`
	Schedule     domain.ScheduleSpec `json:"schedule" binding:"required"`
	Input        json.RawMessage     `json:"input"`
}

// POST /api/admin/schedules
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.schedules.Create(c.Request.Context(), req.Name, req.FunctionName, req.Schedule, req.Input)
	if err != nil {
		writeError(c, h.logger, "create schedule", err)
		return
	}
	c.JSON(http.StatusCreated, toScheduleResponse(s))
}

// GET /api/admin/schedules
func (h *ScheduleHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = 50
	}
	schedules, err := h.schedules.List(c.Request.Context(), repository.ListSchedulesInput{Limit: limit})
	if err != nil {
		writeError(c, h.logger, "list schedules", err)
		return
	}
	items := make([]scheduleResponse, len(schedules))
	for i, s := range schedules {
		items[i] = toScheduleResponse(s)
	}
	c.JSON(http.StatusOK, gin.H{"schedules": items})
}

// GET /api/admin/schedules/:id
func (h *ScheduleHandler) Get(c *gin.Context) {
	s, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(s))
}

type patchScheduleRequest struct {
	IsActive *bool `json:"is_active"`
}

// PATCH /api/admin/schedules/:id
// The only mutable field is is_active; changing the fire spec itself means
// deleting and recreating the schedule, matching the teacher's Pause/Resume
// split rather than a general-purpose update.
func (h *ScheduleHandler) Patch(c *gin.Context) {
	var req patchScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active is required"})
		return
	}
	if err := h.schedules.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive); err != nil {
		writeError(c, h.logger, "patch schedule", err)
		return
	}
	s, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get schedule after patch", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(s))
}

// DELETE /api/admin/schedules/:id
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "delete schedule", err)
		return
	}
	c.Status(http.StatusNoContent)
}
