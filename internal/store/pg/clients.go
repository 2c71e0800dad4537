package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/hellolink/internal/domain"
	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

// ─── ClientStore ───

type clientRepo struct{ pool *pgxpool.Pool }

func (r *clientRepo) Get(ctx context.Context, clientID string) (*domain.Client, error) {
	const query = `
		SELECT client_id, secret_hash, redirect_uris, allowed_origins, enabled,
		       COALESCE(app_name, ''), COALESCE(email_subject, ''), COALESCE(email_button_color, ''),
		       email_logo_png, created_at
		FROM client WHERE client_id = $1
	`
	var c domain.Client
	var uris, origins []byte
	err := r.pool.QueryRow(ctx, query, clientID).Scan(
		&c.ClientID, &c.SecretHash, &uris, &origins, &c.Enabled,
		&c.AppName, &c.EmailSubject, &c.EmailButtonColor,
		&c.EmailLogoPNG, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get client: %w", err)
	}
	if err := json.Unmarshal(uris, &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("pg: decode redirect_uris: %w", err)
	}
	if err := json.Unmarshal(origins, &c.AllowedOrigins); err != nil {
		return nil, fmt.Errorf("pg: decode allowed_origins: %w", err)
	}
	return &c, nil
}

func (r *clientRepo) Create(ctx context.Context, c *domain.Client) error {
	const query = `
		INSERT INTO client (client_id, secret_hash, redirect_uris, allowed_origins, enabled,
		                    app_name, email_subject, email_button_color, email_logo_png, created_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9, NOW())
	`
	uris, origins, err := encodeLists(c)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, query,
		c.ClientID, c.SecretHash, uris, origins, c.Enabled,
		nullIfEmpty(c.AppName), nullIfEmpty(c.EmailSubject), nullIfEmpty(c.EmailButtonColor), c.EmailLogoPNG,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repository.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("pg: insert client: %w", err)
	}
	return nil
}

func (r *clientRepo) Update(ctx context.Context, c *domain.Client) error {
	const query = `
		UPDATE client SET
			secret_hash = $2,
			redirect_uris = $3::jsonb,
			allowed_origins = $4::jsonb,
			enabled = $5,
			app_name = $6,
			email_subject = $7,
			email_button_color = $8,
			email_logo_png = $9
		WHERE client_id = $1
	`
	uris, origins, err := encodeLists(c)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, query,
		c.ClientID, c.SecretHash, uris, origins, c.Enabled,
		nullIfEmpty(c.AppName), nullIfEmpty(c.EmailSubject), nullIfEmpty(c.EmailButtonColor), c.EmailLogoPNG,
	)
	if err != nil {
		return fmt.Errorf("pg: update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func encodeLists(c *domain.Client) (uris, origins string, err error) {
	u, err := json.Marshal(emptyIfNil(c.RedirectURIs))
	if err != nil {
		return "", "", fmt.Errorf("pg: encode redirect_uris: %w", err)
	}
	o, err := json.Marshal(emptyIfNil(c.AllowedOrigins))
	if err != nil {
		return "", "", fmt.Errorf("pg: encode allowed_origins: %w", err)
	}
	return string(u), string(o), nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
