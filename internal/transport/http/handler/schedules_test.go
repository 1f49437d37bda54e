package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/scheduler"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

type fakeScheduleHandlerRepo struct {
	rows   map[string]*domain.FunctionSchedule
	nextID int
}

func newFakeScheduleHandlerRepo() *fakeScheduleHandlerRepo {
	return &fakeScheduleHandlerRepo{rows: make(map[string]*domain.FunctionSchedule)}
}

func (r *fakeScheduleHandlerRepo) Create(_ context.Context, s *domain.FunctionSchedule) (*domain.FunctionSchedule, error) {
	r.nextID++
	s.ID = string(rune('a' + r.nextID))
	r.rows[s.ID] = s
	return s, nil
}

func (r *fakeScheduleHandlerRepo) GetByID(_ context.Context, id string) (*domain.FunctionSchedule, error) {
	s, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrScheduleNotFound
	}
	return s, nil
}

func (r *fakeScheduleHandlerRepo) List(_ context.Context, _ repository.ListSchedulesInput) ([]*domain.FunctionSchedule, error) {
	var out []*domain.FunctionSchedule
	for _, s := range r.rows {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeScheduleHandlerRepo) SetActive(_ context.Context, id string, active bool) error {
	s, ok := r.rows[id]
	if !ok {
		return domain.ErrScheduleNotFound
	}
	s.IsActive = active
	return nil
}

func (r *fakeScheduleHandlerRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.rows[id]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeScheduleHandlerRepo) ClaimDue(_ context.Context, _ time.Time, _ int, _ func(tx repository.ScheduleFireTx, s *domain.FunctionSchedule) error) error {
	return nil
}

func newTestScheduleHandler() (*handler.ScheduleHandler, *fakeScheduleHandlerRepo) {
	repo := newFakeScheduleHandlerRepo()
	svc := scheduler.NewService(repo)
	return handler.NewScheduleHandler(svc, slog.Default()), repo
}

func newScheduleEngine(h *handler.ScheduleHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/admin/schedules", h.Create)
	r.GET("/api/admin/schedules", h.List)
	r.GET("/api/admin/schedules/:id", h.Get)
	r.PATCH("/api/admin/schedules/:id", h.Patch)
	r.DELETE("/api/admin/schedules/:id", h.Delete)
	return r
}

func TestScheduleCreate_Interval_Succeeds(t *testing.T) {
	h, _ := newTestScheduleHandler()
	r := newScheduleEngine(h)

	body, _ := json.Marshal(map[string]any{
		"name":          "every-hour",
		"function_name": "echo",
		"schedule": map[string]any{
			"method":   "interval",
			"timezone": "UTC",
			"unit":     "hours",
			"value":    1,
		},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/schedules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
}

func TestScheduleCreate_InvalidCron_Returns400(t *testing.T) {
	h, _ := newTestScheduleHandler()
	r := newScheduleEngine(h)

	body, _ := json.Marshal(map[string]any{
		"name":          "bad-cron",
		"function_name": "echo",
		"schedule": map[string]any{
			"method": "cron",
			"cron":   "not a cron",
		},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/schedules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestScheduleGet_NotFound_Returns404(t *testing.T) {
	h, _ := newTestScheduleHandler()
	r := newScheduleEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/schedules/missing", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body=%s", w.Code, w.Body.String())
	}
}

func TestSchedulePatch_TogglesActiveAndReturnsUpdated(t *testing.T) {
	h, repo := newTestScheduleHandler()
	repo.rows["a"] = &domain.FunctionSchedule{ID: "a", Name: "toggle-me", FunctionName: "echo", IsActive: true}
	r := newScheduleEngine(h)

	body := `{"is_active":false}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/schedules/a", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["is_active"] != false {
		t.Fatalf("expected is_active=false, got %v", resp)
	}
}

func TestSchedulePatch_MissingIsActive_Returns400(t *testing.T) {
	h, repo := newTestScheduleHandler()
	repo.rows["a"] = &domain.FunctionSchedule{ID: "a", Name: "n", FunctionName: "echo"}
	r := newScheduleEngine(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/api/admin/schedules/a", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestScheduleDelete_RemovesRow(t *testing.T) {
	h, repo := newTestScheduleHandler()
	repo.rows["a"] = &domain.FunctionSchedule{ID: "a", Name: "n", FunctionName: "echo"}
	r := newScheduleEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/admin/schedules/a", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body=%s", w.Code, w.Body.String())
	}
	if _, ok := repo.rows["a"]; ok {
		t.Fatal("expected the schedule row to be gone")
	}
}

func TestScheduleList_ReturnsAllSchedules(t *testing.T) {
	h, repo := newTestScheduleHandler()
	repo.rows["a"] = &domain.FunctionSchedule{ID: "a", Name: "one", FunctionName: "echo"}
	repo.rows["b"] = &domain.FunctionSchedule{ID: "b", Name: "two", FunctionName: "echo"}
	r := newScheduleEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/schedules", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Schedules []map[string]any `json:"schedules"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(resp.Schedules))
	}
}
