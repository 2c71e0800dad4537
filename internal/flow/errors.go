package flow

import (
	"fmt"
	"net/http"
	"time"
)

// FlowError es el catálogo cerrado de errores del protocolo. Code es el
// identificador machine-readable (va en el JSON del exchange), Message
// es el texto user-facing de los paths de browser.
type FlowError struct {
	Code       string
	Message    string
	HTTPStatus int
	// RetryAfter se setea solo en rate_limited.
	RetryAfter time.Duration
}

func (e *FlowError) Error() string { return e.Code }

// Errores de admisión y validación del start/exchange.
var (
	ErrInvalidClient       = &FlowError{Code: "invalid_client", Message: "Unknown or disabled client", HTTPStatus: http.StatusBadRequest}
	ErrInvalidRedirectURI  = &FlowError{Code: "invalid_redirect_uri", Message: "Redirect URI not allowed", HTTPStatus: http.StatusBadRequest}
	ErrInvalidClientSecret = &FlowError{Code: "invalid_client_secret", Message: "Invalid client secret", HTTPStatus: http.StatusUnauthorized}
)

// Errores de ciclo de vida del login request (paths de browser).
var (
	ErrLoginNotFound = &FlowError{Code: "login_not_found", Message: "Invalid or expired token", HTTPStatus: http.StatusBadRequest}
	ErrLoginUsed     = &FlowError{Code: "login_used", Message: "Token already used", HTTPStatus: http.StatusBadRequest}
	ErrLoginExpired  = &FlowError{Code: "login_expired", Message: "Token expired", HTTPStatus: http.StatusBadRequest}
	ErrLoginLocked   = &FlowError{Code: "login_locked", Message: "Too many attempts", HTTPStatus: http.StatusBadRequest}
)

// Errores del exchange server-to-server.
var (
	ErrInvalidCode = &FlowError{Code: "invalid_code", Message: "Invalid or expired code", HTTPStatus: http.StatusBadRequest}
	ErrCodeUsed    = &FlowError{Code: "code_used", Message: "Code already used", HTTPStatus: http.StatusBadRequest}
	ErrCodeExpired = &FlowError{Code: "code_expired", Message: "Code expired", HTTPStatus: http.StatusBadRequest}
	ErrUserMissing = &FlowError{Code: "user_missing", Message: "User not found", HTTPStatus: http.StatusInternalServerError}
)

var ErrInternal = &FlowError{Code: "internal_error", Message: "Internal error", HTTPStatus: http.StatusInternalServerError}

// RateLimited construye el rate_limited con su retry-after.
func RateLimited(retryAfter time.Duration) *FlowError {
	return &FlowError{
		Code:       "rate_limited",
		Message:    fmt.Sprintf("Too many requests, retry in %ds", int(retryAfter.Seconds())),
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}
