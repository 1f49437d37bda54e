package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRepository persists ApplicationToken rows, the service-account style
// credential from spec §6.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Create(ctx context.Context, name, hash string, expiresAt *time.Time) (*domain.ApplicationToken, error) {
	query := `
		INSERT INTO application_tokens (name, hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, name, hash, is_active, expires_at, last_used_at, created_at, updated_at`

	t, err := scanAppToken(r.pool.QueryRow(ctx, query, name, hash, expiresAt))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TokenRepository) List(ctx context.Context) ([]*domain.ApplicationToken, error) {
	query := `SELECT id, name, hash, is_active, expires_at, last_used_at, created_at, updated_at
	          FROM application_tokens ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var out []*domain.ApplicationToken
	for rows.Next() {
		t, err := scanAppToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TokenRepository) FindActiveByHash(ctx context.Context, hash string) (*domain.ApplicationToken, error) {
	query := `
		SELECT id, name, hash, is_active, expires_at, last_used_at, created_at, updated_at
		FROM application_tokens
		WHERE hash = $1 AND is_active
		  AND (expires_at IS NULL OR expires_at > NOW())`
	return scanAppToken(r.pool.QueryRow(ctx, query, hash))
}

func (r *TokenRepository) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE application_tokens SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *TokenRepository) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE application_tokens SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenInvalid
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM application_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenInvalid
	}
	return nil
}

func scanAppToken(row rowScanner) (*domain.ApplicationToken, error) {
	var t domain.ApplicationToken
	err := row.Scan(&t.ID, &t.Name, &t.Hash, &t.IsActive, &t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("scan application token: %w", err)
	}
	return &t, nil
}
