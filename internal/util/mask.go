package util

import "strings"

// MaskEmail reduce un email a una forma loggeable: primera letra del
// local part y del primer label del dominio, resto elidido. El broker
// nunca escribe el email crudo en logs.
func MaskEmail(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	local, dom, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		// no tiene pinta de email; elidir casi todo
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}

	if len(local) > 1 {
		local = local[:1] + "…"
	}
	head, rest, hasDot := strings.Cut(dom, ".")
	if len(head) > 1 {
		head = head[:1] + "…"
	}
	if hasDot {
		return local + "@" + head + "." + rest
	}
	return local + "@" + head
}
