package repository

import (
	"context"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

// SettingRepository owns the runtime, DB-backed settings layer (spec §4.G
// layer 2).
type SettingRepository interface {
	Get(ctx context.Context, key string) (*domain.Setting, error)
	Set(ctx context.Context, key string, value []byte, valueType domain.ValueType) error
	List(ctx context.Context, prefix string) ([]*domain.Setting, error)
	Delete(ctx context.Context, key string) error
}

// AuditRepository is the append-only sink for AuditEvent rows.
type AuditRepository interface {
	Insert(ctx context.Context, e *domain.AuditEvent) error
	List(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditEvent, int, error)
}
