package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/hellolink/internal/domain/repository"
	"github.com/dropDatabas3/hellolink/internal/flow"
	"github.com/dropDatabas3/hellolink/internal/http/middlewares"
)

// RouterConfig agrupa las dependencias del router.
type RouterConfig struct {
	Flow  *flow.Service
	Store repository.Store

	// MetricsRegistry es opcional; nil usa el registro default.
	MetricsRegistry prometheus.Registerer
}

// NewRouter arma el router del broker con la cadena de middlewares
// estándar: request id → logging → metrics → recover.
func NewRouter(cfg RouterConfig) http.Handler {
	metricsHandler := RegisterMetrics(cfg.MetricsRegistry)

	r := chi.NewRouter()

	auth := &AuthHandler{Flow: cfg.Flow}
	auth.Register(r)

	health := &HealthHandler{Store: cfg.Store}
	r.Get("/healthz", health.healthz)
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return middlewares.Chain(r,
		middlewares.WithRequestID(),
		middlewares.WithLogging(),
		WithMetrics(),
		middlewares.WithRecover(),
	)
}
