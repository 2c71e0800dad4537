package http

import (
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/hellolink/internal/http/middlewares"
	"github.com/dropDatabas3/hellolink/internal/observability/logger"
)

var (
	metricsOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	authStartsTotal      *prometheus.CounterVec
	redemptionsTotal     *prometheus.CounterVec
	exchangesTotal       *prometheus.CounterVec
	rateLimitDeniesTotal *prometheus.CounterVec
)

// RegisterMetrics inicializa los collectors (una sola vez), los registra
// en el registry dado y devuelve el handler de /metrics. Si el registry
// además implementa Gatherer, el handler sirve ese mismo registry; con
// nil se usa el registro global default.
func RegisterMetrics(registry prometheus.Registerer) http.Handler {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metricsOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		authStartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_starts_total",
			Help: "Starts del flujo de login por resultado",
		}, []string{"result"})

		redemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_redemptions_total",
			Help: "Redenciones (link o código) por vía y resultado",
		}, []string{"via", "result"})

		exchangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_exchanges_total",
			Help: "Exchanges de auth code por resultado",
		}, []string{"result"})

		rateLimitDeniesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_denies_total",
			Help: "Requests negadas por rate limiting, por endpoint",
		}, []string{"path"})
	})

	// Un collector puede vivir en varios registries; registrar acá (y no
	// dentro del once) hace que cada registry que se pase vea las series.
	for _, c := range []prometheus.Collector{
		httpRequestsTotal, httpRequestDuration,
		authStartsTotal, redemptionsTotal, exchangesTotal, rateLimitDeniesTotal,
	} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				logger.Named("http").Error("register metric", logger.Err(err))
			}
		}
	}

	if g, ok := registry.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// WithMetrics instrumenta requests con contadores y latencia.
// El label de path es la ruta tal cual; el broker tiene un set de rutas
// fijo y chico, no hay riesgo de cardinalidad.
func WithMetrics() middlewares.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if httpRequestsTotal == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &metricsRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
			if rec.status == http.StatusTooManyRequests {
				rateLimitDeniesTotal.WithLabelValues(r.URL.Path).Inc()
			}
		})
	}
}

type metricsRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (m *metricsRecorder) WriteHeader(code int) {
	if m.wroteHeader {
		return
	}
	m.status = code
	m.wroteHeader = true
	m.ResponseWriter.WriteHeader(code)
}

func (m *metricsRecorder) Write(b []byte) (int, error) {
	if !m.wroteHeader {
		m.status = http.StatusOK
		m.wroteHeader = true
	}
	return m.ResponseWriter.Write(b)
}

func countStart(result string) {
	if authStartsTotal != nil {
		authStartsTotal.WithLabelValues(result).Inc()
	}
}

func countRedemption(via, result string) {
	if redemptionsTotal != nil {
		redemptionsTotal.WithLabelValues(via, result).Inc()
	}
}

func countExchange(result string) {
	if exchangesTotal != nil {
		exchangesTotal.WithLabelValues(result).Inc()
	}
}
