package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CollectionRepository owns Collection schema rows and the transactional
// schema-evolution path (spec §6 PATCH /collections/{name}/schema).
type CollectionRepository struct {
	pool *pgxpool.Pool
}

func NewCollectionRepository(pool *pgxpool.Pool) *CollectionRepository {
	return &CollectionRepository{pool: pool}
}

func (r *CollectionRepository) Create(ctx context.Context, c *domain.Collection) (*domain.Collection, error) {
	schemaJSON, err := json.Marshal(c.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	query := `
		INSERT INTO collections (name, label, schema, schema_version)
		VALUES ($1, $2, $3, 1)
		RETURNING id, name, label, schema, schema_version, created_at, updated_at`

	out, err := scanCollection(r.pool.QueryRow(ctx, query, c.Name, c.Label, schemaJSON))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrCollectionNameTaken
		}
		return nil, err
	}
	return out, nil
}

func (r *CollectionRepository) GetByName(ctx context.Context, name string) (*domain.Collection, error) {
	query := `SELECT id, name, label, schema, schema_version, created_at, updated_at
	          FROM collections WHERE name = $1`
	return scanCollection(r.pool.QueryRow(ctx, query, name))
}

func (r *CollectionRepository) List(ctx context.Context) ([]*domain.Collection, error) {
	query := `SELECT id, name, label, schema, schema_version, created_at, updated_at
	          FROM collections ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []*domain.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CollectionRepository) UpdateSchema(ctx context.Context, name string, newSchema []domain.FieldDef, fn func(tx repository.SchemaTx) error) (*domain.Collection, error) {
	schemaJSON, err := json.Marshal(newSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var out *domain.Collection
	err = withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if fn != nil {
			if err := fn(&schemaTx{tx: tx}); err != nil {
				return err
			}
		}

		query := `
			UPDATE collections
			SET schema = $2, schema_version = schema_version + 1, updated_at = NOW()
			WHERE name = $1
			RETURNING id, name, label, schema, schema_version, created_at, updated_at`

		c, err := scanCollection(tx.QueryRow(ctx, query, name, schemaJSON))
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CollectionRepository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM collections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCollectionNotFound
	}
	return nil
}

func scanCollection(row rowScanner) (*domain.Collection, error) {
	var c domain.Collection
	var schemaJSON []byte
	err := row.Scan(&c.ID, &c.Name, &c.Label, &schemaJSON, &c.SchemaVersion, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	if err := json.Unmarshal(schemaJSON, &c.Schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return &c, nil
}

// schemaTx implements repository.SchemaTx against one in-flight transaction,
// used by UpdateSchema's callback to backfill or drop data for a field
// being added/removed in the same atomic step as the schema bump.
type schemaTx struct {
	tx pgx.Tx
}

func (s *schemaTx) CountRecords(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.tx.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE collection_name = $1`, collection).Scan(&n)
	return n, err
}

func (s *schemaTx) FindDuplicateValues(ctx context.Context, collection, field string) ([]any, error) {
	query := `
		SELECT data->>$2 AS v
		FROM records
		WHERE collection_name = $1 AND data ? $2
		GROUP BY v
		HAVING COUNT(*) > 1`
	rows, err := s.tx.Query(ctx, query, collection, field)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *schemaTx) DropFieldData(ctx context.Context, collection, field string) error {
	_, err := s.tx.Exec(ctx,
		`UPDATE records SET data = data - $2 WHERE collection_name = $1`, collection, field)
	if err != nil {
		return fmt.Errorf("drop field data: %w", err)
	}
	_, err = s.tx.Exec(ctx,
		`DELETE FROM unique_indices WHERE collection_name = $1 AND field_name = $2`, collection, field)
	return err
}

func (s *schemaTx) RebuildUniqueIndex(ctx context.Context, collection, field string) error {
	if _, err := s.tx.Exec(ctx,
		`DELETE FROM unique_indices WHERE collection_name = $1 AND field_name = $2`, collection, field); err != nil {
		return fmt.Errorf("clear unique index: %w", err)
	}

	query := `
		INSERT INTO unique_indices (collection_name, field_name, normalized_value, record_id)
		SELECT $1, $2, data->>$2, id
		FROM records
		WHERE collection_name = $1 AND data ? $2`
	if _, err := s.tx.Exec(ctx, query, collection, field); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrBackfillHasDuplicates
		}
		return fmt.Errorf("rebuild unique index: %w", err)
	}
	return nil
}

func (s *schemaTx) DropUniqueIndex(ctx context.Context, collection, field string) error {
	_, err := s.tx.Exec(ctx,
		`DELETE FROM unique_indices WHERE collection_name = $1 AND field_name = $2`, collection, field)
	return err
}
