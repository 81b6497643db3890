package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"eventstudy/internal/services"
	"eventstudy/pkg/contracts"
)

// HealthHandler serves liveness and version endpoints.
type HealthHandler struct {
	service *services.HealthService
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(service *services.HealthService) *HealthHandler {
	return &HealthHandler{service: service}
}

// Routes sets up the health routes.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", h.GetHealth)
	r.Get("/version", h.GetVersion)
	return r
}

// GetHealth handles GET /api/health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	// Degraded is still a 200: the API can answer, the payload says
	// which probe failed.
	render.JSON(w, r, h.service.Check(r.Context()))
}

// GetVersion handles GET /api/version
func (h *HealthHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
