package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "voxd/internal/errors"
	"voxd/internal/infrastructure"
)

// LicenseGate rejects requests while the machine has no usable license.
// Verdicts come from the license cache, so the per-request cost outside
// the re-verification windows is one mutex acquisition.
type LicenseGate struct {
	source  VerdictSource
	logger  *slog.Logger
	metrics *infrastructure.BusinessMetrics
	tracer  trace.Tracer

	excludePaths    map[string]struct{}
	excludePrefixes []string
}

// NewLicenseGate builds the gate. Health, metrics, license diagnostics
// and the machine fingerprint stay reachable without a license so an
// operator can diagnose and activate a locked-out deployment.
func NewLicenseGate(source VerdictSource, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) *LicenseGate {
	return &LicenseGate{
		source:  source,
		logger:  logger.With(slog.String("component", "license_gate")),
		metrics: metrics,
		tracer:  otel.Tracer("voxd/internal/middleware"),
		excludePaths: map[string]struct{}{
			"/healthz": {},
			"/metrics": {},
		},
		excludePrefixes: []string{
			"/api/license",
			"/api/machine",
		},
	}
}

// ExcludePath exempts an exact path from the gate. Not safe to call once
// the gate is serving.
func (g *LicenseGate) ExcludePath(path string) {
	g.excludePaths[path] = struct{}{}
}

// ExcludePrefix exempts every path under the prefix from the gate. Not
// safe to call once the gate is serving.
func (g *LicenseGate) ExcludePrefix(prefix string) {
	g.excludePrefixes = append(g.excludePrefixes, prefix)
}

// Handler enforces the license on every non-excluded route.
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := g.tracer.Start(r.Context(), "license.gate",
			trace.WithAttributes(attribute.String("http.route", r.URL.Path)),
		)
		defer span.End()

		verdict := g.source.Status(ctx)
		span.SetAttributes(
			attribute.Bool("license.valid", verdict.Valid),
			attribute.String("license.status", verdict.Status),
		)

		if verdict.Valid {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		g.metrics.RecordGateDenial(ctx, verdict.Status)
		g.logger.WarnContext(ctx, "request denied by license gate",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("license_status", verdict.Status),
			slog.String("reason", verdict.Message),
		)

		problem := apierrors.LicenseGateProblem(
			verdict.Status,
			verdict.Message,
			infrastructure.GetTraceID(ctx),
			r.URL.Path,
		)
		if err := render.Render(w, r, problem); err != nil {
			g.logger.ErrorContext(ctx, "failed to render gate response",
				slog.String("error", err.Error()))
		}
	})
}

// excluded reports whether the path bypasses the gate.
func (g *LicenseGate) excluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
