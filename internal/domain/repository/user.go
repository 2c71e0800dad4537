package repository

import (
	"context"

	"github.com/dropDatabas3/hellolink/internal/domain"
)

// UserStore es el directorio de usuarios keyed por email normalizado.
type UserStore interface {
	// GetOrCreateByEmail retorna el usuario para el email normalizado,
	// creándolo si no existe. created indica si se creó en esta llamada.
	GetOrCreateByEmail(ctx context.Context, emailNormalized string) (u *domain.User, created bool, err error)

	// GetByID retorna el usuario por id. ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}
