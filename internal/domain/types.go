// Package domain contiene las entidades centrales del broker de login
// passwordless: clients, users, login requests y auth codes.
package domain

import (
	"strings"
	"time"
)

// Client es una aplicación registrada que integra con el broker.
// El core la consume read-only; el CLI la administra.
type Client struct {
	ClientID       string
	SecretHash     string // argon2id PHC
	RedirectURIs   []string
	AllowedOrigins []string
	Enabled        bool

	// Branding opcional para el email de magic link.
	AppName          string
	EmailSubject     string
	EmailButtonColor string
	EmailLogoPNG     []byte

	CreatedAt time.Time
}

// RedirectAllowed valida el redirect_uri contra la allowlist.
// Comparación por igualdad exacta de strings, nunca por prefijo.
func (c *Client) RedirectAllowed(redirectURI string) bool {
	for _, u := range c.RedirectURIs {
		if u == redirectURI {
			return true
		}
	}
	return false
}

// OriginAllowed valida un Origin contra la allowlist del client.
func (c *Client) OriginAllowed(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// User es la identidad estable detrás de un email. Se crea lazy en el
// primer intento de login.
type User struct {
	ID              string
	EmailNormalized string
	CreatedAt       time.Time
}

// NormalizeEmail normaliza un email para lookup/almacenamiento.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoginRequest representa un intento de sign-in pendiente.
//
// Single-use: exactamente una redención (link o código) puede pasar
// UsedAt de nil a non-nil; el writer que pierde la carrera ve "used".
type LoginRequest struct {
	ID             string
	ClientID       string
	UserID         string
	RedirectURI    string // copiado del start, inmutable
	State          string // CSRF opaco del client, pass-through
	AppReturnTo    string
	MagicTokenHash string
	CodeHash       string
	ExpiresAt      time.Time
	UsedAt         *time.Time
	Attempts       int
	IP             string
	UserAgent      string
	CreatedAt      time.Time
}

// Expired reporta si el request está vencido en el instante dado.
// El límite superior es exclusivo: ExpiresAt == now cuenta como vencido.
func (lr *LoginRequest) Expired(now time.Time) bool {
	return !lr.ExpiresAt.After(now)
}

// AuthCode es el código intercambiable estilo OAuth que se emite tras
// una redención exitosa. Ligado a (client_id, redirect_uri) de origen.
type AuthCode struct {
	ID          string
	ClientID    string
	UserID      string
	RedirectURI string
	CodeHash    string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// Expired reporta si el code está vencido (límite superior exclusivo).
func (ac *AuthCode) Expired(now time.Time) bool {
	return !ac.ExpiresAt.After(now)
}
