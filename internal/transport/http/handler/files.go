package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/storage"
	"github.com/gin-gonic/gin"
)

type FileHandler struct {
	backend storage.Backend
	logger  *slog.Logger
}

func NewFileHandler(backend storage.Backend, logger *slog.Logger) *FileHandler {
	return &FileHandler{backend: backend, logger: logger.With("component", "file_handler")}
}

// POST /api/files/upload (multipart, field "file")
func (h *FileHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open uploaded file", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	defer f.Close()

	key := c.PostForm("key")
	if key == "" {
		key = fh.Filename
	}

	size, err := h.backend.Put(c.Request.Context(), key, f)
	if err != nil {
		h.writeStorageError(c, "upload file", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "size": size})
}

// GET /api/files/download/:key
func (h *FileHandler) Download(c *gin.Context) {
	rc, err := h.backend.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.writeStorageError(c, "download file", err)
		return
	}
	defer rc.Close()

	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Error("stream file download", "key", c.Param("key"), "error", err)
	}
}

// DELETE /api/files/:key
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.backend.Delete(c.Request.Context(), c.Param("key")); err != nil {
		h.writeStorageError(c, "delete file", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/files/status
func (h *FileHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"enabled": h.backend != nil})
}

func (h *FileHandler) writeStorageError(c *gin.Context, logMsg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, storage.ErrInvalidKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file key"})
	default:
		h.logger.Error(logMsg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
