package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
)

type ListSchedulesInput struct {
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

// ScheduleRepository owns FunctionSchedule rows, including the atomic
// claim-and-advance transaction the tick loop drives (spec §4.F).
type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.FunctionSchedule) (*domain.FunctionSchedule, error)
	GetByID(ctx context.Context, id string) (*domain.FunctionSchedule, error)
	List(ctx context.Context, input ListSchedulesInput) ([]*domain.FunctionSchedule, error)
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error

	// ClaimDue locks and returns up to limit active schedules with
	// next_run_at <= now, ordered by next_run_at ascending, inside a
	// transaction handed to fire so the caller can insert the
	// FunctionCall and advance next_run_at atomically.
	ClaimDue(ctx context.Context, now time.Time, limit int, fire func(tx ScheduleFireTx, s *domain.FunctionSchedule) error) error
}

// ScheduleFireTx is the transactional handle the dispatcher uses per claimed
// schedule: insert the FunctionCall row it fires, then advance the row.
type ScheduleFireTx interface {
	InsertPendingCall(ctx context.Context, s *domain.FunctionSchedule, callID string) error
	Advance(ctx context.Context, scheduleID string, nextRunAt *time.Time, lastRunAt time.Time, lastCallID string, deactivate bool) error
}
