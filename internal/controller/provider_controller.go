package controller

import (
	"net/http"

	"github.com/cassiomorais/paygate/internal/providers"
)

type ProviderController struct {
	registry *providers.Registry
}

func NewProviderController(registry *providers.Registry) *ProviderController {
	return &ProviderController{registry: registry}
}

// List describes the configured providers and what each one supports.
func (h *ProviderController) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Describe())
}
