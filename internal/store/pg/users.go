package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

// ─── UserStore ───

type userRepo struct{ pool *pgxpool.Pool }

// GetOrCreateByEmail crea el user si no existe. El ON CONFLICT DO NOTHING
// más el re-select cubre la carrera entre dos starts simultáneos para un
// email nuevo: ambos terminan con la misma fila.
func (r *userRepo) GetOrCreateByEmail(ctx context.Context, emailNormalized string) (*domain.User, bool, error) {
	const insert = `
		INSERT INTO app_user (email_normalized, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (email_normalized) DO NOTHING
		RETURNING id, email_normalized, created_at
	`
	var u domain.User
	err := r.pool.QueryRow(ctx, insert, emailNormalized).Scan(&u.ID, &u.EmailNormalized, &u.CreatedAt)
	if err == nil {
		return &u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("pg: insert user: %w", err)
	}

	const query = `SELECT id, email_normalized, created_at FROM app_user WHERE email_normalized = $1`
	err = r.pool.QueryRow(ctx, query, emailNormalized).Scan(&u.ID, &u.EmailNormalized, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, repository.ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("pg: get user by email: %w", err)
	}
	return &u, false, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email_normalized, created_at FROM app_user WHERE id = $1`
	var u domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&u.ID, &u.EmailNormalized, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get user by id: %w", err)
	}
	return &u, nil
}
