package handler

import (
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/collections"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/gin-gonic/gin"
)

type CollectionHandler struct {
	collections *collections.Service
	logger      *slog.Logger
}

func NewCollectionHandler(svc *collections.Service, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collections: svc, logger: logger.With("component", "collection_handler")}
}

type fieldDefRequest struct {
	Name       string            `json:"name" binding:"required"`
	Type       domain.FieldType  `json:"type" binding:"required"`
	Required   bool              `json:"required"`
	Unique     bool              `json:"unique"`
	Default    any               `json:"default"`
	Min        *float64          `json:"min"`
	Max        *float64          `json:"max"`
	MinLength  *int              `json:"min_length"`
	MaxLength  *int              `json:"max_length"`
	Pattern    string            `json:"pattern"`
	Collection string            `json:"collection"`
}

func (r fieldDefRequest) toDomain() domain.FieldDef {
	return domain.FieldDef{
		Name: r.Name, Type: r.Type, Required: r.Required, Unique: r.Unique,
		Default: r.Default, Min: r.Min, Max: r.Max,
		MinLength: r.MinLength, MaxLength: r.MaxLength,
		Pattern: r.Pattern, Collection: r.Collection,
	}
}

type createCollectionRequest struct {
	Name   string            `json:"name" binding:"required,max=64"`
	Label  string            `json:"label" binding:"max=256"`
	Schema []fieldDefRequest `json:"schema" binding:"required,dive"`
}

type collectionResponse struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Label         string           `json:"label"`
	Schema        []domain.FieldDef `json:"schema"`
	SchemaVersion int64            `json:"schema_version"`
}

func toCollectionResponse(c *domain.Collection) collectionResponse {
	return collectionResponse{ID: c.ID, Name: c.Name, Label: c.Label, Schema: c.Schema, SchemaVersion: c.SchemaVersion}
}

// POST /api/collections
func (h *CollectionHandler) Create(c *gin.Context) {
	var req createCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	schema := make([]domain.FieldDef, len(req.Schema))
	for i, f := range req.Schema {
		schema[i] = f.toDomain()
	}
	col, err := h.collections.CreateCollection(c.Request.Context(), req.Name, req.Label, schema)
	if err != nil {
		writeError(c, h.logger, "create collection", err)
		return
	}
	c.JSON(http.StatusCreated, toCollectionResponse(col))
}

// GET /api/collections
func (h *CollectionHandler) List(c *gin.Context) {
	cols, err := h.collections.ListCollections(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "list collections", err)
		return
	}
	items := make([]collectionResponse, len(cols))
	for i, col := range cols {
		items[i] = toCollectionResponse(col)
	}
	c.JSON(http.StatusOK, gin.H{"collections": items})
}

// GET /api/collections/:name
func (h *CollectionHandler) Get(c *gin.Context) {
	col, err := h.collections.GetCollection(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, h.logger, "get collection", err)
		return
	}
	c.JSON(http.StatusOK, toCollectionResponse(col))
}

// DELETE /api/admin/collections/:name
func (h *CollectionHandler) Delete(c *gin.Context) {
	if err := h.collections.DeleteCollection(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, h.logger, "delete collection", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/admin/collections/:name/fields
func (h *CollectionHandler) AddField(c *gin.Context) {
	var req fieldDefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	col, err := h.collections.AddField(c.Request.Context(), c.Param("name"), req.toDomain())
	if err != nil {
		writeError(c, h.logger, "add field", err)
		return
	}
	c.JSON(http.StatusOK, toCollectionResponse(col))
}

// DELETE /api/admin/collections/:name/fields/:field
func (h *CollectionHandler) RemoveField(c *gin.Context) {
	col, err := h.collections.RemoveField(c.Request.Context(), c.Param("name"), c.Param("field"))
	if err != nil {
		writeError(c, h.logger, "remove field", err)
		return
	}
	c.JSON(http.StatusOK, toCollectionResponse(col))
}

type setUniqueRequest struct {
	Unique bool `json:"unique"`
}

// PATCH /api/admin/collections/:name/fields/:field/unique
func (h *CollectionHandler) SetFieldUnique(c *gin.Context) {
	var req setUniqueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	col, err := h.collections.SetFieldUnique(c.Request.Context(), c.Param("name"), c.Param("field"), req.Unique)
	if err != nil {
		writeError(c, h.logger, "set field unique", err)
		return
	}
	c.JSON(http.StatusOK, toCollectionResponse(col))
}

// GET /api/admin/collections/status
func (h *CollectionHandler) Status(c *gin.Context) {
	cols, err := h.collections.ListCollections(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "collections status", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collection_count": len(cols)})
}
