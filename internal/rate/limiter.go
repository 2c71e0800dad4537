// Package rate implementa el control de admisión del broker: contadores
// fixed-window por scope (ip, email, client) con backends intercambiables
// (redis, store durable, memoria). Todos los backends deben verse igual
// desde afuera: contador monótono dentro de la ventana, reset atómico en
// el borde, sin perder incrementos concurrentes.
package rate

import (
	"context"
	"time"
)

// Scope clasifica la dimensión del contador.
type Scope string

const (
	ScopeIP     Scope = "ip"
	ScopeEmail  Scope = "email"
	ScopeClient Scope = "client"
)

// Result es el veredicto de un consumo.
type Result struct {
	Allowed     bool
	CurrentHits int64
	// RetryAfter es el resto de la ventana de la dimensión que negó.
	// Nunca menor a 1s cuando Allowed es false.
	RetryAfter time.Duration
}

// Limiter consume una unidad del contador (scope, id, window) y reporta
// si la request pasa el máximo. Un deny es terminal para la request:
// nadie reintenta automáticamente.
type Limiter interface {
	Consume(ctx context.Context, scope Scope, id string, window time.Duration, max int64) (Result, error)
}

// clampRetryAfter garantiza el piso de 1 segundo del contrato.
func clampRetryAfter(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
