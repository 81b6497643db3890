package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MetricsHandler exposes the Prometheus scrape endpoint backed by the
// otel meter provider.
type MetricsHandler struct {
	prometheus http.Handler
}

// NewMetricsHandler creates a metrics handler. A nil prometheus handler
// disables the endpoint with a 404 rather than panicking.
func NewMetricsHandler(prometheus http.Handler) *MetricsHandler {
	return &MetricsHandler{prometheus: prometheus}
}

// Routes sets up the metrics routes.
func (h *MetricsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/metrics", h.GetMetrics)
	return r
}

// GetMetrics handles GET /metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.NotFound(w, r)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}
