// Package token genera y digiere los secretos one-time del broker:
// magic tokens, auth codes y el código de login de 6 dígitos.
//
// Ningún secreto se persiste en claro: siempre se guarda
// SHA256Base64URL(secreto) y la verificación recalcula el digest.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// GenerateOpaqueToken genera un token opaco aleatorio (base64url sin padding).
// Con nBytes=32 da 256 bits de entropía.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL devuelve sha256(input) en base64url sin padding (para guardar en DB).
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

var million = big.NewInt(1_000_000)

// GenerateLoginCode genera un código de 6 dígitos uniforme en [0, 1000000),
// zero-padded. Es la alternativa tipeable al magic link.
func GenerateLoginCode() (string, error) {
	n, err := rand.Int(rand.Reader, million)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var codeReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", // smart quotes -> apóstrofe
)

// NormalizeLoginCode normaliza un código tipeado por un humano antes de
// hashearlo: trim, lowercase, comillas curvas a rectas y whitespace
// colapsado a un espacio. Así un copy-paste con espacios no rechaza.
func NormalizeLoginCode(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = codeReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
