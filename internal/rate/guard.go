package rate

import (
	"context"
	"time"
)

// Check es una dimensión concreta a consumir (scope + id + ventana + máximo).
type Check struct {
	Scope  Scope
	ID     string
	Window time.Duration
	Max    int64
}

// Limits agrupa los máximos configurados por dimensión.
type Limits struct {
	IPPerMinute     int
	EmailPerMinute  int
	EmailPerHour    int
	ClientPerMinute int
}

// StartChecks arma las dimensiones para /v1/auth/start:
// ip/min, client/min, email/min, email/hora, en ese orden.
func StartChecks(l Limits, ip, emailNormalized, clientID string) []Check {
	return []Check{
		{Scope: ScopeIP, ID: ip, Window: time.Minute, Max: int64(l.IPPerMinute)},
		{Scope: ScopeClient, ID: clientID, Window: time.Minute, Max: int64(l.ClientPerMinute)},
		{Scope: ScopeEmail, ID: emailNormalized, Window: time.Minute, Max: int64(l.EmailPerMinute)},
		{Scope: ScopeEmail, ID: emailNormalized, Window: time.Hour, Max: int64(l.EmailPerHour)},
	}
}

// VerifyChecks arma las dimensiones para la redención por código:
// igual que start pero sin la dimensión client.
func VerifyChecks(l Limits, ip, emailNormalized string) []Check {
	return []Check{
		{Scope: ScopeIP, ID: ip, Window: time.Minute, Max: int64(l.IPPerMinute)},
		{Scope: ScopeEmail, ID: emailNormalized, Window: time.Minute, Max: int64(l.EmailPerMinute)},
		{Scope: ScopeEmail, ID: emailNormalized, Window: time.Hour, Max: int64(l.EmailPerHour)},
	}
}

// ConsumeAll evalúa las dimensiones en orden y corta en la primera que
// niega; el RetryAfter devuelto es el de esa dimensión.
func ConsumeAll(ctx context.Context, l Limiter, checks []Check) (Result, error) {
	for _, c := range checks {
		res, err := l.Consume(ctx, c.Scope, c.ID, c.Window, c.Max)
		if err != nil {
			return Result{}, err
		}
		if !res.Allowed {
			return res, nil
		}
	}
	return Result{Allowed: true}, nil
}
