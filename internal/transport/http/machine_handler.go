package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"voxd/internal/machineid"
)

// MachineHandler reports the machine fingerprint and the host sources
// behind it. The full fingerprint is served deliberately: an operator
// needs it to request a license bound to this machine, and the endpoint
// stays outside the license gate for exactly that reason.
type MachineHandler struct {
	identity *machineid.Identity
	logger   *slog.Logger
}

// NewMachineHandler creates a new machine identity handler.
func NewMachineHandler(identity *machineid.Identity, logger *slog.Logger) *MachineHandler {
	return &MachineHandler{
		identity: identity,
		logger:   logger.With(slog.String("handler", "machine")),
	}
}

// FingerprintResponse is the diagnostic view of the machine identity.
type FingerprintResponse struct {
	Fingerprint string             `json:"fingerprint"`
	Masked      string             `json:"masked"`
	Sources     []machineid.Source `json:"sources"`
	Degraded    []string           `json:"degraded,omitempty"`
}

// Routes returns the /api/machine router.
func (h *MachineHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/fingerprint", h.Fingerprint)
	return r
}

// Fingerprint handles GET /api/machine/fingerprint.
func (h *MachineHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "machine_handler.fingerprint")
	defer span.End()

	fp := h.identity.Fingerprint()
	degraded := h.identity.Degraded()
	if len(degraded) > 0 {
		h.logger.DebugContext(ctx, "fingerprint computed with degraded sources",
			slog.Any("degraded", degraded))
	}

	render.JSON(w, r, FingerprintResponse{
		Fingerprint: fp,
		Masked:      machineid.Masked(fp),
		Sources:     h.identity.Sources(),
		Degraded:    degraded,
	})
}
