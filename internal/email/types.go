// Package email renderiza y despacha el correo de sign-in (magic link +
// código de 6 dígitos) con el branding del client.
package email

import "time"

// Branding son los overrides visuales por client. Campos vacíos caen al
// default del broker.
type Branding struct {
	AppName     string
	Subject     string
	ButtonColor string
	LogoPNG     []byte
}

// MagicLinkMessage contiene los datos para el email de sign-in.
type MagicLinkMessage struct {
	To           string        // email destino (ya normalizado)
	MagicLink    string        // URL absoluta de redención
	Code         string        // código de 6 dígitos
	CodeEntryURL string        // página hospedada de entrada manual, con prefill
	TTL          time.Duration // para mostrar la validez en el cuerpo
	Branding     Branding
}

// Sender despacha el email de sign-in. El flow lo llama fire-and-forget.
type Sender interface {
	Send(msg MagicLinkMessage) error
}

// ─── Configuración SMTP ───

// SMTPConfig contiene la configuración para conectarse a un servidor SMTP.
type SMTPConfig struct {
	Host               string
	Port               int    // default 587
	Username           string
	Password           string
	FromEmail          string
	FromName           string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool   // solo dev
}
