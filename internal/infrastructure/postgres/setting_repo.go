package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingRepository owns the runtime, DB-backed settings layer (spec §4.G
// layer 2), keyed by a flat string namespace.
type SettingRepository struct {
	pool *pgxpool.Pool
}

func NewSettingRepository(pool *pgxpool.Pool) *SettingRepository {
	return &SettingRepository{pool: pool}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (*domain.Setting, error) {
	query := `SELECT key, value, value_type, updated_at FROM settings WHERE key = $1`
	return scanSetting(r.pool.QueryRow(ctx, query, key))
}

func (r *SettingRepository) Set(ctx context.Context, key string, value []byte, valueType domain.ValueType) error {
	query := `
		INSERT INTO settings (key, value, value_type, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, value_type = EXCLUDED.value_type, updated_at = NOW()`
	_, err := r.pool.Exec(ctx, query, key, value, string(valueType))
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func (r *SettingRepository) List(ctx context.Context, prefix string) ([]*domain.Setting, error) {
	query := `SELECT key, value, value_type, updated_at FROM settings WHERE key LIKE $1 ORDER BY key`
	rows, err := r.pool.Query(ctx, query, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []*domain.Setting
	for rows.Next() {
		s, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SettingRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM settings WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSettingNotFound
	}
	return nil
}

func scanSetting(row rowScanner) (*domain.Setting, error) {
	var s domain.Setting
	var valueType string
	err := row.Scan(&s.Key, &s.Value, &valueType, &s.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrSettingNotFound
		}
		return nil, fmt.Errorf("scan setting: %w", err)
	}
	s.ValueType = domain.ValueType(valueType)
	return &s, nil
}
