package repository

import "context"

// Store agrupa todos los repositorios que el broker necesita.
// Implementaciones: store/pg (producción) y store/memory (dev/tests).
type Store interface {
	Clients() ClientStore
	Users() UserStore
	LoginRequests() LoginRequestStore
	AuthCodes() AuthCodeStore
	RateLimits() RateLimitStore

	// Ping verifica la conexión al backend.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close()
}
