// Package settings implements the Settings component (spec §4.G): a
// two-layer lookup (runtime row overrides a static default) with typed
// accessors, plus the append-only audit log administrative mutations write
// to. Grounded on the teacher's config.Config (env-prefixed static layer)
// generalized with a second, DB-backed layer this spec adds.
package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/apperr"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
)

// Service owns runtime settings reads/writes and audit event recording.
type Service struct {
	settings repository.SettingRepository
	audit    repository.AuditRepository
	defaults map[string]domain.Setting
}

// NewService takes the static defaults computed once at startup from the env config
// (spec §4.G layer 1); Get falls back to these when no runtime row exists.
func NewService(settingsRepo repository.SettingRepository, auditRepo repository.AuditRepository, defaults map[string]domain.Setting) *Service {
	return &Service{settings: settingsRepo, audit: auditRepo, defaults: defaults}
}

// Get returns the runtime value for key if one has been written, else the
// static default, else ErrSettingNotFound.
func (s *Service) Get(ctx context.Context, key string) (*domain.Setting, error) {
	v, err := s.settings.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if err != domain.ErrSettingNotFound {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	if d, ok := s.defaults[key]; ok {
		return &d, nil
	}
	return nil, domain.ErrSettingNotFound
}

// List returns every runtime-overridden setting under prefix; static-only
// defaults that were never written are not included, matching the teacher's
// "runtime layer is what's editable" framing.
func (s *Service) List(ctx context.Context, prefix string) ([]*domain.Setting, error) {
	return s.settings.List(ctx, prefix)
}

// Set validates value against the declared type and persists it, recording
// an audit event for the change.
func (s *Service) Set(ctx context.Context, actorID, key string, value json.RawMessage, valueType domain.ValueType) error {
	if err := validateType(value, valueType); err != nil {
		return apperr.New(apperr.KindValidation, "setting value does not match declared type", err)
	}
	if err := s.settings.Set(ctx, key, value, valueType); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return s.Record(ctx, actorID, "setting.update", "setting", key, map[string]any{"value": json.RawMessage(value)})
}

// Record appends one AuditEvent; callers ignore write failures at the
// handler level (an audit-log outage must never block the mutation it is
// describing).
func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID string, metadata any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	return s.audit.Insert(ctx, &domain.AuditEvent{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   raw,
	})
}

// ListAudit returns a page of audit events, optionally filtered by entity
// type, along with the true total (spec §4.B list semantics reused here).
func (s *Service) ListAudit(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.audit.List(ctx, entityType, limit, offset)
}

func validateType(value json.RawMessage, valueType domain.ValueType) error {
	var probe any
	switch valueType {
	case domain.ValueString:
		probe = new(string)
	case domain.ValueInt:
		probe = new(int64)
	case domain.ValueFloat:
		probe = new(float64)
	case domain.ValueBool:
		probe = new(bool)
	case domain.ValueJSON:
		probe = new(any)
	default:
		return domain.ErrSettingTypeMismatch
	}
	if err := json.Unmarshal(value, probe); err != nil {
		return domain.ErrSettingTypeMismatch
	}
	return nil
}
