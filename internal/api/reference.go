package api

import (
	"net/http"
)

// GetSchemes returns central and state schemes filtered by ?q=.
func (h *Handler) GetSchemes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	catalog := h.adv.Catalog()
	JSON(w, http.StatusOK, map[string]any{
		"central": catalog.CentralSchemes(q),
		"state":   catalog.StateSchemes(q),
	})
}

// GetPrices returns market prices filtered by ?q= and the crop list.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	catalog := h.adv.Catalog()
	JSON(w, http.StatusOK, map[string]any{
		"prices": catalog.Prices(r.URL.Query().Get("q")),
		"crops":  catalog.Crops(),
	})
}

// GetWeather returns the forecast for ?location=.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	weather, ok := h.adv.Catalog().Weather(r.URL.Query().Get("location"))
	if !ok {
		Error(w, http.StatusBadRequest, KindBadRequest, "Please enter a location.")
		return
	}
	JSON(w, http.StatusOK, weather)
}

// GetReference returns the static option lists used by the forms.
func (h *Handler) GetReference(w http.ResponseWriter, r *http.Request) {
	catalog := h.adv.Catalog()
	JSON(w, http.StatusOK, map[string]any{
		"soil_types":         catalog.SoilTypes(),
		"financial_needs":    catalog.FinancialNeeds(),
		"financial_products": catalog.FinancialProducts(),
		"crops":              catalog.Crops(),
	})
}
