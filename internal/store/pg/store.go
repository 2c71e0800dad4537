// Package pg implementa repository.Store sobre PostgreSQL.
// Usa pgxpool directamente; toda la lógica condicional (single-use,
// reset de ventanas de rate limit) vive en SQL para que la DB sea el
// árbitro bajo concurrencia.
package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

type Store struct {
	pool *pgxpool.Pool
}

// Connect abre el pool y verifica la conexión.
func Connect(ctx context.Context, dsn string, maxConns, minConns int) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}

	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if minConns > 0 {
		poolCfg.MinConns = int32(minConns)
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *Store) Close()                         { s.pool.Close() }

// Pool expone el pool para el runner de migraciones.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// ─── Repositorios ───

func (s *Store) Clients() repository.ClientStore             { return &clientRepo{pool: s.pool} }
func (s *Store) Users() repository.UserStore                 { return &userRepo{pool: s.pool} }
func (s *Store) LoginRequests() repository.LoginRequestStore { return &loginRepo{pool: s.pool} }
func (s *Store) AuthCodes() repository.AuthCodeStore         { return &codeRepo{pool: s.pool} }
func (s *Store) RateLimits() repository.RateLimitStore       { return &rateRepo{pool: s.pool} }
