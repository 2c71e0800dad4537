package repository

import (
	"context"

	"github.com/dropDatabas3/hellolink/internal/domain"
)

// ClientStore administra el registro de clients.
// El flow del protocolo solo usa Get; Create/Update son para el CLI.
type ClientStore interface {
	// Get retorna el client por client_id. ErrNotFound si no existe.
	Get(ctx context.Context, clientID string) (*domain.Client, error)

	// Create registra un client nuevo. ErrDuplicate si el client_id existe.
	Create(ctx context.Context, c *domain.Client) error

	// Update reemplaza los campos mutables del client. ErrNotFound si no existe.
	Update(ctx context.Context, c *domain.Client) error
}
