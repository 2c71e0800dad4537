package rate

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

// StoreLimiter es el backend durable: delega el read-modify-write en un
// upsert único del store (reset condicional evaluado server-side), así
// los incrementos concurrentes no se pierden.
type StoreLimiter struct {
	store repository.RateLimitStore
	now   func() time.Time
}

func NewStoreLimiter(store repository.RateLimitStore) *StoreLimiter {
	return &StoreLimiter{store: store, now: time.Now}
}

func (l *StoreLimiter) Consume(ctx context.Context, scope Scope, id string, window time.Duration, max int64) (Result, error) {
	count, resetAt, err := l.store.Consume(ctx, string(scope), id, window)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Allowed:     count <= max,
		CurrentHits: count,
	}
	if !res.Allowed {
		res.RetryAfter = clampRetryAfter(resetAt.Sub(l.now()))
	}
	return res, nil
}
