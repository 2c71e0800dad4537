package http

import (
	"net/http"

	"github.com/dropDatabas3/hellolink/internal/domain/repository"
)

// HealthHandler reporta liveness del proceso y del store.
type HealthHandler struct {
	Store repository.Store
}

func (h *HealthHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
