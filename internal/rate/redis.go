package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// RedisLimiter: fixed window sencillo (INCR + EXPIRE).
// Es el backend "fast-cache"; equivalente observable al backend durable.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
}

func NewRedisLimiter(client *rdb.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "hl:rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix}
}

func (l *RedisLimiter) key(scope Scope, id string, window time.Duration) string {
	return fmt.Sprintf("%s%s:%d:%s", l.Prefix, scope, int64(window.Seconds()), strings.ReplaceAll(id, " ", "_"))
}

func (l *RedisLimiter) Consume(ctx context.Context, scope Scope, id string, window time.Duration, max int64) (Result, error) {
	redisKey := l.key(scope, id, window)

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	// set expiry on first hit
	if incr.Val() == 1 || ttl.Val() < 0 {
		_ = l.Client.Expire(ctx, redisKey, window).Err()
		ttl = l.Client.TTL(ctx, redisKey)
	}

	hits := incr.Val()
	res := Result{
		Allowed:     hits <= max,
		CurrentHits: hits,
	}
	if !res.Allowed {
		// Retry after: resto de la ventana
		remaining := ttl.Val()
		if remaining <= 0 {
			remaining = window
		}
		res.RetryAfter = clampRetryAfter(remaining)
	}
	return res, nil
}
