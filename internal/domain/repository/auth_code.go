package repository

import (
	"context"

	"github.com/dropDatabas3/hellolink/internal/domain"
)

// AuthCodeStore persiste los auth codes intercambiables.
type AuthCodeStore interface {
	// Create inserta el code y completa ID/CreatedAt.
	Create(ctx context.Context, ac *domain.AuthCode) error

	// GetByClientRedirectAndHash busca por la tripleta exacta
	// (client_id, redirect_uri, code_hash). El binding previene replay
	// del code contra otro client u otro callback. ErrNotFound si no hay.
	GetByClientRedirectAndHash(ctx context.Context, clientID, redirectURI, codeHash string) (*domain.AuthCode, error)

	// MarkUsed setea used_at solo si sigue en NULL (compare-and-set).
	MarkUsed(ctx context.Context, id string) (bool, error)
}
