package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

// ─── AuthCodeStore ───

type codeRepo struct{ pool *pgxpool.Pool }

func (r *codeRepo) Create(ctx context.Context, ac *domain.AuthCode) error {
	const query = `
		INSERT INTO auth_code (client_id, user_id, redirect_uri, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		ac.ClientID, ac.UserID, ac.RedirectURI, ac.CodeHash, ac.ExpiresAt,
	).Scan(&ac.ID, &ac.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: insert auth code: %w", err)
	}
	return nil
}

// GetByClientRedirectAndHash hace el lookup del exchange: client,
// redirect_uri y hash tienen que coincidir los tres a la vez.
func (r *codeRepo) GetByClientRedirectAndHash(ctx context.Context, clientID, redirectURI, codeHash string) (*domain.AuthCode, error) {
	const query = `
		SELECT id, client_id, user_id, redirect_uri, code_hash, expires_at, used_at, created_at
		FROM auth_code
		WHERE client_id = $1 AND redirect_uri = $2 AND code_hash = $3
	`
	var ac domain.AuthCode
	err := r.pool.QueryRow(ctx, query, clientID, redirectURI, codeHash).Scan(
		&ac.ID, &ac.ClientID, &ac.UserID, &ac.RedirectURI, &ac.CodeHash,
		&ac.ExpiresAt, &ac.UsedAt, &ac.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get auth code: %w", err)
	}
	return &ac, nil
}

func (r *codeRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE auth_code SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("pg: mark auth code used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ─── RateLimitStore ───

type rateRepo struct{ pool *pgxpool.Pool }

// Consume incrementa el contador de la ventana o lo resetea si ya venció,
// todo en un único upsert para que el conteo sea exacto bajo concurrencia.
func (r *rateRepo) Consume(ctx context.Context, scope, scopeID string, window time.Duration) (int64, time.Time, error) {
	const query = `
		INSERT INTO rate_limit (scope, scope_id, window_seconds, count, reset_at)
		VALUES ($1, $2, $3, 1, NOW() + make_interval(secs => $3))
		ON CONFLICT (scope, scope_id, window_seconds) DO UPDATE SET
			count = CASE WHEN rate_limit.reset_at <= NOW() THEN 1 ELSE rate_limit.count + 1 END,
			reset_at = CASE WHEN rate_limit.reset_at <= NOW() THEN NOW() + make_interval(secs => $3) ELSE rate_limit.reset_at END
		RETURNING count, reset_at
	`
	var count int64
	var resetAt time.Time
	err := r.pool.QueryRow(ctx, query, scope, scopeID, int64(window.Seconds())).Scan(&count, &resetAt)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("pg: consume rate limit: %w", err)
	}
	return count, resetAt, nil
}
