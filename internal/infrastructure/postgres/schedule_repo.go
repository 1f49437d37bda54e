package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ScheduleRepository owns FunctionSchedule rows and the claim-and-advance
// transaction the tick loop drives, grounded on the teacher's
// Dispatcher/ScheduleRepository FOR UPDATE SKIP LOCKED idiom.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.FunctionSchedule) (*domain.FunctionSchedule, error) {
	specJSON, err := json.Marshal(s.Spec)
	if err != nil {
		return nil, fmt.Errorf("marshal schedule spec: %w", err)
	}

	query := `
		INSERT INTO function_schedules (name, function_name, spec, input, is_active, next_run_at, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, name, function_name, spec, input, is_active, next_run_at, last_run_at,
		          last_call_id, timezone, created_at, updated_at`

	out, err := scanSchedule(r.pool.QueryRow(ctx, query,
		s.Name, s.FunctionName, specJSON, s.Input, s.IsActive, s.NextRunAt, s.Timezone))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrScheduleNameConflict
		}
		if isForeignKeyViolation(err) {
			return nil, domain.ErrFunctionNotFound
		}
		return nil, err
	}
	return out, nil
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.FunctionSchedule, error) {
	query := `
		SELECT id, name, function_name, spec, input, is_active, next_run_at, last_run_at,
		       last_call_id, timezone, created_at, updated_at
		FROM function_schedules WHERE id = $1`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

func (r *ScheduleRepository) List(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.FunctionSchedule, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, name, function_name, spec, input, is_active, next_run_at, last_run_at,
		       last_call_id, timezone, created_at, updated_at
		FROM function_schedules
		WHERE ($1::timestamptz IS NULL OR (created_at, id) < ($1, $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	var cursorID any
	if input.CursorID != "" {
		cursorID = input.CursorID
	}
	rows, err := r.pool.Query(ctx, query, input.CursorTime, cursorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []*domain.FunctionSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE function_schedules SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set schedule active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM function_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// ClaimDue locks up to limit active, due schedules with FOR UPDATE SKIP
// LOCKED so concurrent scheduler instances never double-fire the same row,
// then hands each one to fire inside the same transaction: the caller
// inserts the pending FunctionCall and advances next_run_at atomically.
func (r *ScheduleRepository) ClaimDue(ctx context.Context, now time.Time, limit int, fire func(tx repository.ScheduleFireTx, s *domain.FunctionSchedule) error) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			SELECT id, name, function_name, spec, input, is_active, next_run_at, last_run_at,
			       last_call_id, timezone, created_at, updated_at
			FROM function_schedules
			WHERE is_active AND next_run_at IS NOT NULL AND next_run_at <= $1
			ORDER BY next_run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED`

		rows, err := tx.Query(ctx, query, now, limit)
		if err != nil {
			return fmt.Errorf("claim due schedules: %w", err)
		}
		var due []*domain.FunctionSchedule
		for rows.Next() {
			s, err := scanSchedule(rows)
			if err != nil {
				rows.Close()
				return err
			}
			due = append(due, s)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		ftx := &scheduleFireTx{tx: tx}
		for _, s := range due {
			if err := fire(ftx, s); err != nil {
				return fmt.Errorf("fire schedule %s: %w", s.ID, err)
			}
		}
		return nil
	})
}

type scheduleFireTx struct {
	tx pgx.Tx
}

func (f *scheduleFireTx) InsertPendingCall(ctx context.Context, s *domain.FunctionSchedule, callID string) error {
	query := `
		INSERT INTO function_calls (id, function_name, version_id, trigger, status, input)
		SELECT $1, $2, fv.id, $3, $4, $5
		FROM function_versions fv
		WHERE fv.function_name = $2 AND fv.is_active`
	tag, err := f.tx.Exec(ctx, query, callID, s.FunctionName, string(domain.TriggerSchedule), string(domain.CallPending), s.Input)
	if err != nil {
		return fmt.Errorf("insert pending call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNoActiveVersion
	}
	return nil
}

func (f *scheduleFireTx) Advance(ctx context.Context, scheduleID string, nextRunAt *time.Time, lastRunAt time.Time, lastCallID string, deactivate bool) error {
	query := `
		UPDATE function_schedules
		SET next_run_at = $2,
		    last_run_at = $3,
		    last_call_id = $4,
		    is_active = CASE WHEN $5 THEN FALSE ELSE is_active END,
		    updated_at = NOW()
		WHERE id = $1`
	_, err := f.tx.Exec(ctx, query, scheduleID, nextRunAt, lastRunAt, lastCallID, deactivate)
	if err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	return nil
}

func scanSchedule(row rowScanner) (*domain.FunctionSchedule, error) {
	var s domain.FunctionSchedule
	var specJSON []byte
	err := row.Scan(&s.ID, &s.Name, &s.FunctionName, &specJSON, &s.Input, &s.IsActive, &s.NextRunAt,
		&s.LastRunAt, &s.LastCallID, &s.Timezone, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	if err := json.Unmarshal(specJSON, &s.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal schedule spec: %w", err)
	}
	return &s, nil
}
