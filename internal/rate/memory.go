package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter: backend in-process sobre go-cache, para dev y tests.
// El mutex serializa el read-modify-write; go-cache se encarga de vencer
// las ventanas.
type MemoryLimiter struct {
	mu  sync.Mutex
	c   *gocache.Cache
	now func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		c:   gocache.New(gocache.NoExpiration, time.Minute),
		now: time.Now,
	}
}

func (l *MemoryLimiter) Consume(ctx context.Context, scope Scope, id string, window time.Duration, max int64) (Result, error) {
	key := fmt.Sprintf("%s:%d:%s", scope, int64(window.Seconds()), id)

	l.mu.Lock()
	defer l.mu.Unlock()

	var count int64
	var resetAt time.Time
	if _, exp, ok := l.c.GetWithExpiration(key); !ok {
		// primera visita de la ventana (o ventana vencida)
		l.c.Set(key, int64(1), window)
		count = 1
		resetAt = l.now().Add(window)
	} else {
		n, err := l.c.IncrementInt64(key, 1)
		if err != nil {
			return Result{}, err
		}
		count = n
		resetAt = exp
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
