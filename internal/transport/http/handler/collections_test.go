package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/collections"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCollectionRepo struct {
	rows map[string]*domain.Collection
}

func newFakeCollectionRepo() *fakeCollectionRepo {
	return &fakeCollectionRepo{rows: make(map[string]*domain.Collection)}
}

func (r *fakeCollectionRepo) Create(_ context.Context, c *domain.Collection) (*domain.Collection, error) {
	if _, exists := r.rows[c.Name]; exists {
		return nil, domain.ErrCollectionNameTaken
	}
	c.ID = "col-" + c.Name
	c.SchemaVersion = 1
	r.rows[c.Name] = c
	return c, nil
}

func (r *fakeCollectionRepo) GetByName(_ context.Context, name string) (*domain.Collection, error) {
	c, ok := r.rows[name]
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	return c, nil
}

func (r *fakeCollectionRepo) List(_ context.Context) ([]*domain.Collection, error) {
	var out []*domain.Collection
	for _, c := range r.rows {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCollectionRepo) UpdateSchema(_ context.Context, name string, newSchema []domain.FieldDef, fn func(tx repository.SchemaTx) error) (*domain.Collection, error) {
	c, ok := r.rows[name]
	if !ok {
		return nil, domain.ErrCollectionNotFound
	}
	if err := fn(&fakeSchemaTx{}); err != nil {
		return nil, err
	}
	c.Schema = newSchema
	c.SchemaVersion++
	return c, nil
}

func (r *fakeCollectionRepo) Delete(_ context.Context, name string) error {
	if _, ok := r.rows[name]; !ok {
		return domain.ErrCollectionNotFound
	}
	delete(r.rows, name)
	return nil
}

type fakeSchemaTx struct{}

func (fakeSchemaTx) CountRecords(_ context.Context, _ string) (int, error)              { return 0, nil }
func (fakeSchemaTx) FindDuplicateValues(_ context.Context, _, _ string) ([]any, error)   { return nil, nil }
func (fakeSchemaTx) DropFieldData(_ context.Context, _, _ string) error                 { return nil }
func (fakeSchemaTx) RebuildUniqueIndex(_ context.Context, _, _ string) error             { return nil }
func (fakeSchemaTx) DropUniqueIndex(_ context.Context, _, _ string) error                { return nil }

type fakeRecordRepo struct{}

func (fakeRecordRepo) Create(_ context.Context, _ string, _ map[string]any, _ *string) (*domain.Record, error) {
	return nil, nil
}
func (fakeRecordRepo) Get(_ context.Context, _, _ string) (*domain.Record, error) { return nil, nil }
func (fakeRecordRepo) List(_ context.Context, _ string, _, _ int, _ map[string]any) ([]*domain.Record, int, error) {
	return nil, 0, nil
}
func (fakeRecordRepo) Update(_ context.Context, _, _ string, _ map[string]any, _ int64) (*domain.Record, error) {
	return nil, nil
}
func (fakeRecordRepo) Delete(_ context.Context, _, _ string) error { return nil }
func (fakeRecordRepo) RecordExists(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

func newTestCollectionHandler() (*handler.CollectionHandler, *fakeCollectionRepo) {
	repo := newFakeCollectionRepo()
	svc := collections.NewService(repo, fakeRecordRepo{})
	return handler.NewCollectionHandler(svc, slog.Default()), repo
}

func newCollectionEngine(h *handler.CollectionHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/collections", h.Create)
	r.GET("/api/collections", h.List)
	r.GET("/api/collections/:name", h.Get)
	r.DELETE("/api/collections/:name", h.Delete)
	return r
}

func TestCollectionCreate_Succeeds(t *testing.T) {
	h, _ := newTestCollectionHandler()
	r := newCollectionEngine(h)

	body := `{"name":"notes","label":"Notes","schema":[{"name":"title","type":"string","required":true}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/collections", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["name"] != "notes" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestCollectionCreate_DuplicateName_Returns409(t *testing.T) {
	h, repo := newTestCollectionHandler()
	repo.rows["notes"] = &domain.Collection{Name: "notes"}
	r := newCollectionEngine(h)

	body := `{"name":"notes","schema":[{"name":"title","type":"string"}]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/collections", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", w.Code, w.Body.String())
	}
}

func TestCollectionGet_NotFound_Returns404(t *testing.T) {
	h, _ := newTestCollectionHandler()
	r := newCollectionEngine(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/collections/missing", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestCollectionList_ReturnsAllCollections(t *testing.T) {
	h, repo := newTestCollectionHandler()
	repo.rows["notes"] = &domain.Collection{Name: "notes"}
	repo.rows["tasks"] = &domain.Collection{Name: "tasks"}
	r := newCollectionEngine(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Collections []map[string]any `json:"collections"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Collections) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(resp.Collections))
	}
}

func TestCollectionDelete_RemovesCollection(t *testing.T) {
	h, repo := newTestCollectionHandler()
	repo.rows["notes"] = &domain.Collection{Name: "notes"}
	r := newCollectionEngine(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/collections/notes", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", w.Code, w.Body.String())
	}
	if _, ok := repo.rows["notes"]; ok {
		t.Fatal("expected collection to be removed")
	}
}
