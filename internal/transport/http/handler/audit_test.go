package handler_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/settings"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func newTestAuditHandler() (*handler.AuditHandler, *fakeSettingsAuditRepo) {
	repo := newFakeSettingRepo()
	audit := &fakeSettingsAuditRepo{}
	svc := settings.NewService(repo, audit, nil)
	return handler.NewAuditHandler(svc, slog.Default()), audit
}

func newAuditEngine(h *handler.AuditHandler) *gin.Engine {
	r := gin.New()
	r.GET("/api/admin/audit-events", h.List)
	return r
}

func TestAuditList_ReturnsRecordedEvents(t *testing.T) {
	h, audit := newTestAuditHandler()
	audit.events = append(audit.events,
		&domain.AuditEvent{ID: "e1", ActorID: "admin-1", Action: "setting.updated", EntityType: "setting", EntityID: "retries"},
		&domain.AuditEvent{ID: "e2", ActorID: "admin-1", Action: "setting.updated", EntityType: "setting", EntityID: "timeout"},
	)
	r := newAuditEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit-events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Events []map[string]any `json:"audit_events"`
		Total  int              `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Events) != 2 {
		t.Fatalf("expected 2 audit events, got %+v", resp)
	}
}

func TestAuditList_EmptyWhenNoEvents(t *testing.T) {
	h, _ := newTestAuditHandler()
	r := newAuditEngine(h)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit-events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Events []map[string]any `json:"audit_events"`
		Total  int              `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 0 || len(resp.Events) != 0 {
		t.Fatalf("expected 0 audit events, got %+v", resp)
	}
}
