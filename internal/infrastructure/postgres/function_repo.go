package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FunctionRepository owns FunctionDefinition and FunctionVersion rows.
type FunctionRepository struct {
	pool *pgxpool.Pool
}

func NewFunctionRepository(pool *pgxpool.Pool) *FunctionRepository {
	return &FunctionRepository{pool: pool}
}

func (r *FunctionRepository) Upsert(ctx context.Context, def *domain.FunctionDefinition) (*domain.FunctionDefinition, error) {
	query := `
		INSERT INTO function_definitions (name, description, auth_level, tags, module_source)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			auth_level  = EXCLUDED.auth_level,
			tags        = EXCLUDED.tags,
			module_source = EXCLUDED.module_source,
			updated_at  = NOW()
		RETURNING id, name, description, auth_level, tags, module_source, created_at, updated_at`

	return scanFunctionDef(r.pool.QueryRow(ctx, query,
		def.Name, def.Description, string(def.AuthLevel), def.Tags, def.ModuleSource))
}

func (r *FunctionRepository) GetByName(ctx context.Context, name string) (*domain.FunctionDefinition, error) {
	query := `SELECT id, name, description, auth_level, tags, module_source, created_at, updated_at
	          FROM function_definitions WHERE name = $1`
	return scanFunctionDef(r.pool.QueryRow(ctx, query, name))
}

func (r *FunctionRepository) List(ctx context.Context) ([]*domain.FunctionDefinition, error) {
	query := `SELECT id, name, description, auth_level, tags, module_source, created_at, updated_at
	          FROM function_definitions ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()

	var out []*domain.FunctionDefinition
	for rows.Next() {
		def, err := scanFunctionDef(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

// PutVersion inserts v and, unless the currently-active version already has
// the same content hash, flips is_active atomically within one transaction
// (the spec's "deploy is a no-op if content is unchanged" rule).
func (r *FunctionRepository) PutVersion(ctx context.Context, v *domain.FunctionVersion) (*domain.FunctionVersion, error) {
	var out *domain.FunctionVersion
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		active, err := scanFunctionVersion(tx.QueryRow(ctx, `
			SELECT id, function_name, content_hash, source_text, inline_deps, deployed_by, deployed_at, notes, is_active
			FROM function_versions WHERE function_name = $1 AND is_active`, v.FunctionName))
		if err != nil && err != domain.ErrVersionNotFound {
			return err
		}
		if err == nil && active.ContentHash == v.ContentHash {
			out = active
			return nil
		}

		if _, err := tx.Exec(ctx,
			`UPDATE function_versions SET is_active = FALSE WHERE function_name = $1 AND is_active`,
			v.FunctionName); err != nil {
			return fmt.Errorf("deactivate previous version: %w", err)
		}

		query := `
			INSERT INTO function_versions (function_name, content_hash, source_text, inline_deps, deployed_by, notes, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (function_name, content_hash) DO UPDATE SET is_active = TRUE, deployed_at = NOW()
			RETURNING id, function_name, content_hash, source_text, inline_deps, deployed_by, deployed_at, notes, is_active`

		nv, err := scanFunctionVersion(tx.QueryRow(ctx, query,
			v.FunctionName, v.ContentHash, v.SourceText, v.InlineDeps, v.DeployedBy, v.Notes))
		if err != nil {
			return err
		}
		out = nv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *FunctionRepository) ActiveVersion(ctx context.Context, functionName string) (*domain.FunctionVersion, error) {
	query := `
		SELECT id, function_name, content_hash, source_text, inline_deps, deployed_by, deployed_at, notes, is_active
		FROM function_versions WHERE function_name = $1 AND is_active`
	v, err := scanFunctionVersion(r.pool.QueryRow(ctx, query, functionName))
	if err == domain.ErrVersionNotFound {
		return nil, domain.ErrNoActiveVersion
	}
	return v, err
}

func (r *FunctionRepository) ListVersions(ctx context.Context, functionName string) ([]*domain.FunctionVersion, error) {
	query := `
		SELECT id, function_name, content_hash, source_text, inline_deps, deployed_by, deployed_at, notes, is_active
		FROM function_versions WHERE function_name = $1 ORDER BY deployed_at DESC`
	rows, err := r.pool.Query(ctx, query, functionName)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []*domain.FunctionVersion
	for rows.Next() {
		v, err := scanFunctionVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanFunctionDef(row rowScanner) (*domain.FunctionDefinition, error) {
	var d domain.FunctionDefinition
	var authLevel string
	err := row.Scan(&d.ID, &d.Name, &d.Description, &authLevel, &d.Tags, &d.ModuleSource, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFunctionNotFound
		}
		return nil, fmt.Errorf("scan function definition: %w", err)
	}
	d.AuthLevel = domain.AuthLevel(authLevel)
	return &d, nil
}

func scanFunctionVersion(row rowScanner) (*domain.FunctionVersion, error) {
	var v domain.FunctionVersion
	err := row.Scan(&v.ID, &v.FunctionName, &v.ContentHash, &v.SourceText, &v.InlineDeps, &v.DeployedBy, &v.DeployedAt, &v.Notes, &v.IsActive)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrVersionNotFound
		}
		return nil, fmt.Errorf("scan function version: %w", err)
	}
	return &v, nil
}

// FunctionCallRepository owns FunctionCall rows across the pending ->
// terminal lifecycle the Execution Engine drives.
type FunctionCallRepository struct {
	pool *pgxpool.Pool
}

func NewFunctionCallRepository(pool *pgxpool.Pool) *FunctionCallRepository {
	return &FunctionCallRepository{pool: pool}
}

func (r *FunctionCallRepository) Insert(ctx context.Context, call *domain.FunctionCall) (*domain.FunctionCall, error) {
	query := `
		INSERT INTO function_calls (function_name, version_id, trigger, caller_id, status, input)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, function_name, version_id, trigger, caller_id, status, started_at, ended_at,
		          duration_ms, input, output, error_type, error_message, created_at, updated_at`

	return scanFunctionCall(r.pool.QueryRow(ctx, query,
		call.FunctionName, call.VersionID, string(call.Trigger), call.CallerID, string(call.Status), call.Input))
}

func (r *FunctionCallRepository) MarkRunning(ctx context.Context, id string, startedAtUnixMS int64) error {
	startedAt := time.UnixMilli(startedAtUnixMS)
	tag, err := r.pool.Exec(ctx, `
		UPDATE function_calls SET status = $2, started_at = $3, updated_at = NOW()
		WHERE id = $1`, id, string(domain.CallRunning), startedAt)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCallNotFound
	}
	return nil
}

func (r *FunctionCallRepository) Complete(ctx context.Context, id string, status domain.CallStatus, output []byte, errType, errMsg string, endedAtUnixMS int64) error {
	endedAt := time.UnixMilli(endedAtUnixMS)
	query := `
		UPDATE function_calls
		SET status = $2,
		    output = $3,
		    error_type = $4,
		    error_message = $5,
		    ended_at = $6,
		    duration_ms = CASE WHEN started_at IS NOT NULL
		                       THEN EXTRACT(EPOCH FROM ($6::timestamptz - started_at)) * 1000
		                       ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, string(status), output, errType, errMsg, endedAt)
	if err != nil {
		return fmt.Errorf("complete call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCallNotFound
	}
	return nil
}

func (r *FunctionCallRepository) Get(ctx context.Context, id string) (*domain.FunctionCall, error) {
	query := `
		SELECT id, function_name, version_id, trigger, caller_id, status, started_at, ended_at,
		       duration_ms, input, output, error_type, error_message, created_at, updated_at
		FROM function_calls WHERE id = $1`
	return scanFunctionCall(r.pool.QueryRow(ctx, query, id))
}

func (r *FunctionCallRepository) List(ctx context.Context, functionName, status, trigger string, limit, offset int) ([]*domain.FunctionCall, int, error) {
	where := "TRUE"
	args := []any{}
	if functionName != "" {
		args = append(args, functionName)
		where += fmt.Sprintf(" AND function_name = $%d", len(args))
	}
	if status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if trigger != "" {
		args = append(args, trigger)
		where += fmt.Sprintf(" AND trigger = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM function_calls WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count calls: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, function_name, version_id, trigger, caller_id, status, started_at, ended_at,
		       duration_ms, input, output, error_type, error_message, created_at, updated_at
		FROM function_calls WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []*domain.FunctionCall
	for rows.Next() {
		c, err := scanFunctionCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// SweepAbandoned marks every call left in Pending/Running FAILED, run once
// at Execution Engine startup to recover from a previous process's abrupt
// exit (spec §4.E recovery sweep).
func (r *FunctionCallRepository) SweepAbandoned(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE function_calls
		SET status = $1,
		    error_type = 'abandoned',
		    error_message = 'process restarted while call was in flight',
		    ended_at = NOW(),
		    updated_at = NOW()
		WHERE status IN ($2, $3)`,
		string(domain.CallFailed), string(domain.CallPending), string(domain.CallRunning))
	if err != nil {
		return 0, fmt.Errorf("sweep abandoned calls: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanFunctionCall(row rowScanner) (*domain.FunctionCall, error) {
	var c domain.FunctionCall
	var trigger, status string
	err := row.Scan(&c.ID, &c.FunctionName, &c.VersionID, &trigger, &c.CallerID, &status,
		&c.StartedAt, &c.EndedAt, &c.DurationMS, &c.Input, &c.Output, &c.ErrorType, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCallNotFound
		}
		return nil, fmt.Errorf("scan function call: %w", err)
	}
	c.Trigger = domain.CallTrigger(trigger)
	c.Status = domain.CallStatus(status)
	return &c, nil
}
