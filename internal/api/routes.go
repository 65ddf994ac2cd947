package api

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the dashboard routes under /api. They expect the
// identity middleware to have run.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/config", h.GetConfig)
	r.Get("/api/me", h.GetMe)

	r.Get("/api/panels", h.ListPanels)
	r.Get("/api/panels/{panel}", h.GetPanel)
	r.With(h.limit).Post("/api/panels/{panel}", h.SubmitPanel)
	r.Delete("/api/panels/{panel}", h.ResetPanel)

	r.Get("/api/schemes", h.GetSchemes)
	r.Get("/api/market/prices", h.GetPrices)
	r.Get("/api/weather", h.GetWeather)
	r.Get("/api/reference", h.GetReference)
}
