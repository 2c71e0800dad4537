// Package http expone el surface del broker: los endpoints del
// protocolo, la página de entrada de código, healthz y metrics.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dropDatabas3/hellolink/internal/flow"
	"github.com/dropDatabas3/hellolink/internal/observability/logger"
)

// WriteJSON serializa v con el status dado.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteFlowError escribe un error del protocolo como JSON {"error": code}.
// rate_limited agrega el header Retry-After; errores no catalogados caen
// a internal_error.
func WriteFlowError(w http.ResponseWriter, err error) {
	fe := asFlowError(err)
	if fe.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(fe.RetryAfter.Seconds())))
	}
	WriteJSON(w, fe.HTTPStatus, map[string]string{"error": fe.Code})
}

// WriteFlowErrorText es la variante para los paths de browser: texto
// plano con el mensaje user-facing del error.
func WriteFlowErrorText(w http.ResponseWriter, err error) {
	fe := asFlowError(err)
	if fe.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(fe.RetryAfter.Seconds())))
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(fe.HTTPStatus)
	_, _ = w.Write([]byte(fe.Message))
}

func asFlowError(err error) *flow.FlowError {
	var fe *flow.FlowError
	if errors.As(err, &fe) {
		return fe
	}
	logger.Named("http").Error("unclassified error", logger.Err(err))
	return flow.ErrInternal
}

// ReadJSON decodifica el body JSON en dst con un límite de tamaño.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
