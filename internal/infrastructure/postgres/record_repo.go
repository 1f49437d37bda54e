package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// fieldNamePattern matches the identifiers the collections service accepts
// for FieldDef.Name. List filters interpolate field names into the JSONB
// path operator (data->>'field'), which cannot be parameterized, so every
// name is checked against this pattern before it reaches a query string.
var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordRepository owns Record rows and the unique-index side table that
// backs FieldDef.Unique for one collection at a time.
type RecordRepository struct {
	pool *pgxpool.Pool
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

func (r *RecordRepository) Create(ctx context.Context, collection string, data map[string]any, ownerID *string) (*domain.Record, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal record data: %w", err)
	}

	var out *domain.Record
	err = withTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO records (collection_name, owner_id, data, version)
			VALUES ($1, $2, $3, 1)
			RETURNING id, collection_name, owner_id, data, version, created_at, updated_at`

		rec, err := scanRecord(tx.QueryRow(ctx, query, collection, ownerID, dataJSON))
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrReferenceViolation
			}
			return err
		}

		if err := writeUniqueIndices(ctx, tx, collection, rec.ID, data); err != nil {
			return err
		}

		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RecordRepository) Get(ctx context.Context, collection, id string) (*domain.Record, error) {
	query := `SELECT id, collection_name, owner_id, data, version, created_at, updated_at
	          FROM records WHERE collection_name = $1 AND id = $2`
	return scanRecord(r.pool.QueryRow(ctx, query, collection, id))
}

func (r *RecordRepository) List(ctx context.Context, collection string, limit, offset int, filter map[string]any) ([]*domain.Record, int, error) {
	where := "collection_name = $1"
	args := []any{collection}

	for field, val := range filter {
		if !fieldNamePattern.MatchString(field) {
			return nil, 0, fmt.Errorf("list records: invalid filter field %q", field)
		}
		args = append(args, val)
		where += fmt.Sprintf(" AND data->>'%s' = $%d", field, len(args))
	}

	countQuery := `SELECT COUNT(*) FROM records WHERE ` + where
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	args = append(args, limit, offset)
	listQuery := fmt.Sprintf(`
		SELECT id, collection_name, owner_id, data, version, created_at, updated_at
		FROM records WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

func (r *RecordRepository) Update(ctx context.Context, collection, id string, patch map[string]any, expectedVersion int64) (*domain.Record, error) {
	var out *domain.Record
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanRecord(tx.QueryRow(ctx,
			`SELECT id, collection_name, owner_id, data, version, created_at, updated_at
			 FROM records WHERE collection_name = $1 AND id = $2 FOR UPDATE`, collection, id))
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrConcurrencyConflict
		}

		merged := make(map[string]any, len(current.Data)+len(patch))
		for k, v := range current.Data {
			merged[k] = v
		}
		for k, v := range patch {
			merged[k] = v
		}
		dataJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal patched data: %w", err)
		}

		query := `
			UPDATE records
			SET data = $3, version = version + 1, updated_at = NOW()
			WHERE collection_name = $1 AND id = $2
			RETURNING id, collection_name, owner_id, data, version, created_at, updated_at`

		rec, err := scanRecord(tx.QueryRow(ctx, query, collection, id, dataJSON))
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrReferenceViolation
			}
			return err
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM unique_indices WHERE collection_name = $1 AND record_id = $2`, collection, id); err != nil {
			return fmt.Errorf("clear unique indices: %w", err)
		}
		if err := writeUniqueIndices(ctx, tx, collection, id, merged); err != nil {
			return err
		}

		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RecordRepository) Delete(ctx context.Context, collection, id string) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM records WHERE collection_name = $1 AND id = $2`, collection, id)
		if err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrRecordNotFound
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM unique_indices WHERE collection_name = $1 AND record_id = $2`, collection, id)
		return err
	})
}

func (r *RecordRepository) RecordExists(ctx context.Context, collection, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM records WHERE collection_name = $1 AND id = $2)`, collection, id,
	).Scan(&exists)
	return exists, err
}

// writeUniqueIndices inserts one unique_indices row per field in the
// collection's schema marked Unique that is present in data. The caller's
// schema-aware service layer is responsible for knowing which fields these
// are; this helper only consults the UniqueIndex-eligible columns already
// reflected in collections.schema so a stale write cannot silently skip
// enforcement.
func writeUniqueIndices(ctx context.Context, tx pgx.Tx, collection, recordID string, data map[string]any) error {
	rows, err := tx.Query(ctx, `
		SELECT field->>'name'
		FROM collections, jsonb_array_elements(schema) AS field
		WHERE collections.name = $1 AND (field->>'unique')::boolean IS TRUE`, collection)
	if err != nil {
		return fmt.Errorf("load unique fields: %w", err)
	}
	var uniqueFields []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		uniqueFields = append(uniqueFields, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, field := range uniqueFields {
		val, ok := data[field]
		if !ok || val == nil {
			continue
		}
		normalized := fmt.Sprintf("%v", val)
		_, err := tx.Exec(ctx, `
			INSERT INTO unique_indices (collection_name, field_name, normalized_value, record_id)
			VALUES ($1, $2, $3, $4)`, collection, field, normalized, recordID)
		if err != nil {
			if isUniqueViolation(err) {
				return &domain.UniqueViolationError{Field: field}
			}
			return fmt.Errorf("write unique index: %w", err)
		}
	}
	return nil
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var dataJSON []byte
	err := row.Scan(&rec.ID, &rec.CollectionName, &rec.OwnerID, &dataJSON, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	if err := json.Unmarshal(dataJSON, &rec.Data); err != nil {
		return nil, fmt.Errorf("unmarshal record data: %w", err)
	}
	return &rec, nil
}
