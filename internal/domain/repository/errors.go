package repository

import "errors"

// Errores comunes de los repositorios.
var (
	// ErrNotFound indica que la entidad no existe.
	ErrNotFound = errors.New("repository: not found")

	// ErrDuplicate indica una violación de unicidad (p.ej. client_id repetido).
	ErrDuplicate = errors.New("repository: duplicate")
)
