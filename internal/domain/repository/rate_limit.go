package repository

import (
	"context"
	"time"
)

// RateLimitStore es el contador durable para el backend de rate limiting
// respaldado por el store.
//
// Contrato del contador: la primera vez que se toca una key después de
// reset_at, la ventana arranca de nuevo (count=1); si no, count incrementa
// monótono dentro de la ventana. La implementación debe serializar el
// read-modify-write (upsert único con reset condicional server-side),
// nunca un read-then-write con gap.
type RateLimitStore interface {
	Consume(ctx context.Context, scope, scopeID string, window time.Duration) (count int64, resetAt time.Time, err error)
}
