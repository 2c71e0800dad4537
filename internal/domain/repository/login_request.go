package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellolink/internal/domain"
)

// LoginRequestStore persiste los intentos de sign-in pendientes.
type LoginRequestStore interface {
	// Create inserta el request y completa ID/CreatedAt.
	Create(ctx context.Context, lr *domain.LoginRequest) error

	// HasActiveSince reporta si existe un request sin usar y sin vencer
	// para (client, user) creado después de since. Implementa el cooldown
	// de resend en start.
	HasActiveSince(ctx context.Context, clientID, userID string, since time.Time) (bool, error)

	// ActiveCodeHashExists reporta si algún request activo (sin usar, sin
	// vencer) ya tiene ese code_hash. Probe best-effort para evitar
	// colisiones del código de 6 dígitos.
	ActiveCodeHashExists(ctx context.Context, codeHash string) (bool, error)

	// GetByMagicTokenHash busca por hash del magic token. ErrNotFound si no hay.
	GetByMagicTokenHash(ctx context.Context, hash string) (*domain.LoginRequest, error)

	// GetByEmailAndCodeHash busca por (email normalizado, code_hash),
	// el más reciente primero: un email puede tener varios requests vivos.
	GetByEmailAndCodeHash(ctx context.Context, emailNormalized, codeHash string) (*domain.LoginRequest, error)

	// RecordAttempt incrementa attempts de forma incondicional.
	// Se llama en cada intento de validación, incluso sobre requests
	// usados o vencidos.
	RecordAttempt(ctx context.Context, id string) error

	// MarkUsed setea used_at solo si sigue en NULL (compare-and-set).
	// Retorna true si este caller ganó la escritura.
	MarkUsed(ctx context.Context, id string) (bool, error)
}
