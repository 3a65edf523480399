package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rickshaw-auth/internal/domain"
)

// RefreshTokenRepository define el contrato de persistencia para refresh
// tokens. Issue aplica la política de sesiones y el insert en una misma
// transacción para que la poda y la emisión sean atómicas.
type RefreshTokenRepository interface {
	Issue(ctx context.Context, token domain.RefreshToken, policy SessionPolicy) error
	GetByToken(ctx context.Context, token string) (domain.RefreshToken, error)
	DeleteByToken(ctx context.Context, token string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// PgRefreshTokenRepository implementa RefreshTokenRepository usando pgxpool.
type PgRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewPgRefreshTokenRepository(pool *pgxpool.Pool) *PgRefreshTokenRepository {
	return &PgRefreshTokenRepository{pool: pool}
}

func (r *PgRefreshTokenRepository) Issue(ctx context.Context, token domain.RefreshToken, policy SessionPolicy) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if policy != nil {
			if err := policy.Trim(ctx, &txSessionStore{tx: tx}, token.UserID); err != nil {
				return err
			}
		}
		const query = `
			INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`
		_, err := tx.Exec(ctx, query,
			token.ID,
			token.UserID,
			token.Token,
			token.ExpiresAt,
			token.CreatedAt,
		)
		return err
	})
}

func (r *PgRefreshTokenRepository) GetByToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	var t domain.RefreshToken
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.ID,
		&t.UserID,
		&t.Token,
		&t.ExpiresAt,
		&t.CreatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return t, nil
}

func (r *PgRefreshTokenRepository) DeleteByToken(ctx context.Context, token string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRefreshTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// txSessionStore expone las operaciones de poda dentro de la transacción
// abierta por Issue.
type txSessionStore struct {
	tx pgx.Tx
}

func (s *txSessionStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := s.tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *txSessionStore) DeleteOldest(ctx context.Context, userID string, keep int) (int64, error) {
	const query = `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM refresh_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`
	tag, err := s.tx.Exec(ctx, query, userID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
