package repository

import (
	"context"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

// FunctionRepository owns FunctionDefinition and FunctionVersion rows.
type FunctionRepository interface {
	Upsert(ctx context.Context, def *domain.FunctionDefinition) (*domain.FunctionDefinition, error)
	GetByName(ctx context.Context, name string) (*domain.FunctionDefinition, error)
	List(ctx context.Context) ([]*domain.FunctionDefinition, error)

	// PutVersion inserts a version and flips is_active atomically, unless
	// the active version already has the same content hash (spec §4.C:
	// "return it unchanged and record no new version").
	PutVersion(ctx context.Context, v *domain.FunctionVersion) (*domain.FunctionVersion, error)
	ActiveVersion(ctx context.Context, functionName string) (*domain.FunctionVersion, error)
	ListVersions(ctx context.Context, functionName string) ([]*domain.FunctionVersion, error)
}

// FunctionCallRepository owns FunctionCall rows across their pending ->
// terminal lifecycle.
type FunctionCallRepository interface {
	Insert(ctx context.Context, call *domain.FunctionCall) (*domain.FunctionCall, error)
	MarkRunning(ctx context.Context, id string, startedAt int64) error
	Complete(ctx context.Context, id string, status domain.CallStatus, output []byte, errType, errMsg string, endedAtUnixMS int64) error
	Get(ctx context.Context, id string) (*domain.FunctionCall, error)
	List(ctx context.Context, functionName, status, trigger string, limit, offset int) ([]*domain.FunctionCall, int, error)
	// SweepAbandoned marks every non-terminal call FAILED/abandoned — run once at startup (spec §4.E recovery).
	SweepAbandoned(ctx context.Context) (int, error)
}
