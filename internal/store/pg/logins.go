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

// ─── LoginRequestStore ───

type loginRepo struct{ pool *pgxpool.Pool }

const loginColumns = `id, client_id, user_id, redirect_uri, COALESCE(state, ''), COALESCE(app_return_to, ''),
		       magic_token_hash, code_hash, expires_at, used_at, attempts,
		       COALESCE(ip, ''), COALESCE(user_agent, ''), created_at`

func (r *loginRepo) Create(ctx context.Context, lr *domain.LoginRequest) error {
	const query = `
		INSERT INTO login_request (client_id, user_id, redirect_uri, state, app_return_to,
		                           magic_token_hash, code_hash, expires_at, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING id, created_at
	`
	err := r.pool.QueryRow(ctx, query,
		lr.ClientID, lr.UserID, lr.RedirectURI, nullIfEmpty(lr.State), nullIfEmpty(lr.AppReturnTo),
		lr.MagicTokenHash, lr.CodeHash, lr.ExpiresAt, nullIfEmpty(lr.IP), nullIfEmpty(lr.UserAgent),
	).Scan(&lr.ID, &lr.CreatedAt)
	if err != nil {
		return fmt.Errorf("pg: insert login request: %w", err)
	}
	return nil
}

func (r *loginRepo) HasActiveSince(ctx context.Context, clientID, userID string, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM login_request
			WHERE client_id = $1 AND user_id = $2
			  AND used_at IS NULL AND expires_at > NOW() AND created_at > $3
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, clientID, userID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("pg: check active login request: %w", err)
	}
	return exists, nil
}

func (r *loginRepo) ActiveCodeHashExists(ctx context.Context, codeHash string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM login_request
			WHERE code_hash = $1 AND used_at IS NULL AND expires_at > NOW()
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, codeHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("pg: check active code hash: %w", err)
	}
	return exists, nil
}

func (r *loginRepo) GetByMagicTokenHash(ctx context.Context, hash string) (*domain.LoginRequest, error) {
	query := `SELECT ` + loginColumns + ` FROM login_request WHERE magic_token_hash = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, hash))
}

// GetByEmailAndCodeHash resuelve el request más reciente para el par
// (email, código); ante reenvíos con colisión de código gana el último.
func (r *loginRepo) GetByEmailAndCodeHash(ctx context.Context, emailNormalized, codeHash string) (*domain.LoginRequest, error) {
	query := `
		SELECT ` + loginColumns + `
		FROM login_request lr
		WHERE lr.code_hash = $2
		  AND lr.user_id = (SELECT id FROM app_user WHERE email_normalized = $1)
		ORDER BY lr.created_at DESC
		LIMIT 1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, emailNormalized, codeHash))
}

func (r *loginRepo) scanOne(row pgx.Row) (*domain.LoginRequest, error) {
	var lr domain.LoginRequest
	err := row.Scan(
		&lr.ID, &lr.ClientID, &lr.UserID, &lr.RedirectURI, &lr.State, &lr.AppReturnTo,
		&lr.MagicTokenHash, &lr.CodeHash, &lr.ExpiresAt, &lr.UsedAt, &lr.Attempts,
		&lr.IP, &lr.UserAgent, &lr.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: scan login request: %w", err)
	}
	return &lr, nil
}

func (r *loginRepo) RecordAttempt(ctx context.Context, id string) error {
	const query = `UPDATE login_request SET attempts = attempts + 1 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("pg: record attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkUsed es el compare-and-set de single-use: el WHERE used_at IS NULL
// garantiza exactamente un ganador bajo concurrencia.
func (r *loginRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE login_request SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("pg: mark login request used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
