package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"voxd/internal/infrastructure"
	"voxd/internal/license"
)

// HealthHandler serves the liveness endpoint. It reports process health,
// a license summary and runtime statistics in one place so a single curl
// tells an operator what state the daemon is in.
type HealthHandler struct {
	version   string
	startTime time.Time
	cache     *license.Cache
	collector *infrastructure.SystemMetricsCollector
	logger    *slog.Logger
}

// NewHealthHandler creates a new health handler. The collector may be nil
// when metrics are disabled.
func NewHealthHandler(version string, cache *license.Cache, collector *infrastructure.SystemMetricsCollector, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		cache:     cache,
		collector: collector,
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	Uptime    string         `json:"uptime"`
	Timestamp time.Time      `json:"timestamp"`
	License   LicenseSummary `json:"license"`
	Cache     map[string]any `json:"cache"`
	Runtime   map[string]any `json:"runtime,omitempty"`
}

// LicenseSummary is the license slice of the health response. The daemon
// stays alive with a broken license, so health never turns non-200 on
// license trouble; the summary is where that trouble shows.
type LicenseSummary struct {
	Valid         bool   `json:"valid"`
	Status        string `json:"status"`
	RemainingDays int    `json:"remaining_days"`
}

// Healthz handles GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "health_handler.healthz")
	defer span.End()

	verdict := h.cache.Status(ctx)

	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
		License: LicenseSummary{
			Valid:         verdict.Valid,
			Status:        verdict.Status,
			RemainingDays: verdict.RemainingDays,
		},
		Cache: h.cache.Stats(),
	}
	if h.collector != nil {
		resp.Runtime = h.collector.GetCurrentStats(ctx).FormatStats()
	}

	render.JSON(w, r, resp)
}
