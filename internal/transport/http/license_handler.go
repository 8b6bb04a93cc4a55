package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apierrors "voxd/internal/errors"
	"voxd/internal/infrastructure"
	"voxd/internal/license"
)

// tracer covers all handler spans in this package.
var tracer = otel.Tracer("voxd/internal/transport/http")

// LicenseHandler serves license status and diagnostics. Status answers
// from the verdict cache; the decode-only info view goes straight to the
// verifier because it must work on artifacts that fail verification.
type LicenseHandler struct {
	cache    *license.Cache
	verifier *license.Verifier
	logger   *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(cache *license.Cache, verifier *license.Verifier, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		cache:    cache,
		verifier: verifier,
		logger:   logger.With(slog.String("handler", "license")),
	}
}

// Routes returns the /api/license router.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Get("/info", h.Info)
	r.Post("/reload", h.Reload)
	return r
}

// Status handles GET /api/license/status. It never errors: verification
// failures fold into the verdict so an unlicensed operator sees why.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "license_handler.status")
	defer span.End()

	verdict := h.cache.Status(ctx)
	span.SetAttributes(
		attribute.Bool("license.valid", verdict.Valid),
		attribute.String("license.status", verdict.Status),
	)

	render.JSON(w, r, verdict)
}

// Info handles GET /api/license/info: the artifact decoded for display,
// signature unchecked, machine ID masked.
func (h *LicenseHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "license_handler.info")
	defer span.End()

	info, err := h.verifier.Info(ctx)
	if err != nil {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "license info unavailable",
			slog.String("error", err.Error()))

		problem := apierrors.MapLicenseError(err, infrastructure.GetTraceID(ctx), r.URL.Path)
		if renderErr := render.Render(w, r, problem); renderErr != nil {
			h.logger.ErrorContext(ctx, "failed to render license info error",
				slog.String("error", renderErr.Error()))
		}
		return
	}

	render.JSON(w, r, info)
}

// Reload handles POST /api/license/reload. Called after a new artifact
// is installed on disk; it drops the cached verdict and returns the fresh
// one so the operator sees the result of the swap immediately.
func (h *LicenseHandler) Reload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "license_handler.reload")
	defer span.End()

	h.cache.Invalidate()
	verdict := h.cache.Status(ctx)

	span.SetAttributes(
		attribute.Bool("license.valid", verdict.Valid),
		attribute.String("license.status", verdict.Status),
	)
	h.logger.InfoContext(ctx, "license cache invalidated by reload request",
		slog.Bool("valid", verdict.Valid),
		slog.String("status", verdict.Status))

	render.JSON(w, r, verdict)
}
