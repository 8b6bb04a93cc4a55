package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"voxd/internal/provider"
)

// ProviderHandler lists the provider registry alongside the configured
// selection. Sits behind the license gate: the provider lineup is part
// of the licensed product surface.
type ProviderHandler struct {
	registry *provider.Registry
	selected map[string]string
	logger   *slog.Logger
}

// NewProviderHandler creates a new provider listing handler.
func NewProviderHandler(registry *provider.Registry, selected map[string]string, logger *slog.Logger) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		selected: selected,
		logger:   logger.With(slog.String("handler", "providers")),
	}
}

// CapabilityProviders lists the registered providers for one capability.
type CapabilityProviders struct {
	Capability string   `json:"capability"`
	Registered []string `json:"registered"`
	Selected   string   `json:"selected,omitempty"`
}

// ProvidersResponse is the /api/providers body, in pipeline order.
type ProvidersResponse struct {
	Capabilities []CapabilityProviders `json:"capabilities"`
}

// List handles GET /api/providers.
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "provider_handler.list")
	defer span.End()

	resp := ProvidersResponse{
		Capabilities: make([]CapabilityProviders, 0, len(provider.Capabilities())),
	}
	for _, tag := range provider.Capabilities() {
		resp.Capabilities = append(resp.Capabilities, CapabilityProviders{
			Capability: string(tag),
			Registered: h.registry.Names(tag),
			Selected:   h.selected[string(tag)],
		})
	}

	render.JSON(w, r, resp)
}
