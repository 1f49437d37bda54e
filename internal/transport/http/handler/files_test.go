package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/storage"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func newTestFileHandler(t *testing.T) *handler.FileHandler {
	backend, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new local backend: %v", err)
	}
	return handler.NewFileHandler(backend, slog.Default())
}

func newFileEngine(h *handler.FileHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/files/upload", h.Upload)
	r.GET("/api/files/download/:key", h.Download)
	r.DELETE("/api/files/:key", h.Delete)
	r.GET("/api/files/status", h.Status)
	return r
}

func multipartFileBody(field, filename, content string) (*bytes.Buffer, string) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, _ := w.CreateFormFile(field, filename)
	part.Write([]byte(content))
	w.Close()
	return buf, w.FormDataContentType()
}

func TestFileUploadDownload_RoundTrips(t *testing.T) {
	h := newTestFileHandler(t)
	r := newFileEngine(h)

	body, contentType := multipartFileBody("file", "note.txt", "hello world")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	key, _ := resp["key"].(string)
	if key == "" {
		t.Fatal("expected a non-empty key")
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/api/files/download/"+key, nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("download status = %d, want 200, body=%s", w2.Code, w2.Body.String())
	}
	if w2.Body.String() != "hello world" {
		t.Fatalf("expected downloaded content %q, got %q", "hello world", w2.Body.String())
	}
}

func TestFileUpload_MissingField_Returns400(t *testing.T) {
	h := newTestFileHandler(t)
	r := newFileEngine(h)

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	w.Close()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rr.Code, rr.Body.String())
	}
}

func TestFileDownload_NotFound_Returns404(t *testing.T) {
	h := newTestFileHandler(t)
	r := newFileEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/download/missing.txt", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestFileDelete_RemovesFile(t *testing.T) {
	h := newTestFileHandler(t)
	r := newFileEngine(h)

	body, contentType := multipartFileBody("file", "gone.txt", "bye")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", body)
	req.Header.Set("Content-Type", contentType)
	r.ServeHTTP(w, req)
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	key := resp["key"].(string)

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodDelete, "/api/files/"+key, nil))
	if w2.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", w2.Code, w2.Body.String())
	}

	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/api/files/download/"+key, nil))
	if w3.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w3.Code)
	}
}

func TestFileStatus_ReportsEnabled(t *testing.T) {
	h := newTestFileHandler(t)
	r := newFileEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/files/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["enabled"] != true {
		t.Fatalf("expected enabled=true, got %v", resp)
	}
}
