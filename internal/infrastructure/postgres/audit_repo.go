package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository is the append-only sink for administrative AuditEvent
// rows, a supplemental entity the distilled spec does not name but which
// the dynamic-schema and function-deploy surfaces both want for traceability.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Insert(ctx context.Context, e *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (actor_id, action, entity_type, entity_id, metadata)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, e.ActorID, e.Action, e.EntityType, e.EntityID, e.Metadata)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *AuditRepository) List(ctx context.Context, entityType string, limit, offset int) ([]*domain.AuditEvent, int, error) {
	where := "TRUE"
	args := []any{}
	if entityType != "" {
		args = append(args, entityType)
		where = "entity_type = $1"
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, actor_id, action, entity_type, entity_id, metadata, created_at
		FROM audit_events WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
