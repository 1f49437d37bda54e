package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/collections"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/gin-gonic/gin"
)

type RecordHandler struct {
	collections *collections.Service
	logger      *slog.Logger
}

func NewRecordHandler(svc *collections.Service, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{collections: svc, logger: logger.With("component", "record_handler")}
}

type recordResponse struct {
	ID        string         `json:"id"`
	OwnerID   *string        `json:"owner_id,omitempty"`
	Data      map[string]any `json:"data"`
	Version   int64          `json:"version"`
}

func toRecordResponse(r *domain.Record) recordResponse {
	return recordResponse{ID: r.ID, OwnerID: r.OwnerID, Data: r.Data, Version: r.Version}
}

// POST /api/collections/:name/records
func (h *RecordHandler) Create(c *gin.Context) {
	collection := c.Param("name")
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var ownerID *string
	if uid := c.GetString("userID"); uid != "" {
		ownerID = &uid
	}
	rec, err := h.collections.CreateRecord(c.Request.Context(), collection, data, ownerID)
	if err != nil {
		writeError(c, h.logger, "create record", err)
		return
	}
	c.JSON(http.StatusCreated, toRecordResponse(rec))
}

// GET /api/collections/:name/records/:id
func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.collections.GetRecord(c.Request.Context(), c.Param("name"), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "get record", err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// GET /api/collections/:name/records
func (h *RecordHandler) List(c *gin.Context) {
	collection := c.Param("name")
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	// Equality filters only, passed as plain query params (anything besides
	// limit/offset/filter).
	var filter map[string]any
	for k, v := range c.Request.URL.Query() {
		if k == "limit" || k == "offset" || k == "filter" {
			continue
		}
		if filter == nil {
			filter = map[string]any{}
		}
		if len(v) > 0 {
			filter[k] = v[0]
		}
	}

	records, total, err := h.collections.ListRecords(c.Request.Context(), collection, limit, offset, filter)
	if err != nil {
		writeError(c, h.logger, "list records", err)
		return
	}
	items := make([]recordResponse, len(records))
	for i, r := range records {
		items[i] = toRecordResponse(r)
	}
	c.JSON(http.StatusOK, gin.H{"records": items, "total": total})
}

type updateRecordRequest = map[string]any

// PATCH /api/collections/:name/records/:id
// The expected optimistic-concurrency version travels in If-Match, the same
// "caller proves what it last read" idea as an HTTP ETag precondition.
func (h *RecordHandler) Update(c *gin.Context) {
	var patch updateRecordRequest
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	expectedVersion, _ := strconv.ParseInt(c.GetHeader("If-Match"), 10, 64)

	rec, err := h.collections.UpdateRecord(c.Request.Context(), c.Param("name"), c.Param("id"), patch, expectedVersion)
	if err != nil {
		writeError(c, h.logger, "update record", err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// DELETE /api/collections/:name/records/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.collections.DeleteRecord(c.Request.Context(), c.Param("name"), c.Param("id")); err != nil {
		writeError(c, h.logger, "delete record", err)
		return
	}
	c.Status(http.StatusNoContent)
}
