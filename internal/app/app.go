package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/sync/errgroup"

	"voxd/internal/config"
	apierrors "voxd/internal/errors"
	"voxd/internal/infrastructure"
	"voxd/internal/license"
	"voxd/internal/machineid"
	"voxd/internal/middleware"
	"voxd/internal/provider"
	"voxd/internal/timeguard"
	handlers "voxd/internal/transport/http"
)

// Version is stamped at build time via -ldflags; the default marks a
// development build.
var Version = "dev"

// systemMetricsInterval is how often runtime statistics are collected.
const systemMetricsInterval = 30 * time.Second

// Application wires configuration, logging, telemetry, license
// verification and the status API into one runnable daemon.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	Router   *chi.Mux
	Server   *http.Server
	OTel     *infrastructure.OTelProviders
	Identity *machineid.Identity
	Verifier *license.Verifier
	Cache    *license.Cache
	Registry *provider.Registry

	metrics   *infrastructure.BusinessMetrics
	collector *infrastructure.SystemMetricsCollector
	providers []provider.Provider
}

// New assembles the daemon from configuration. The license is not
// verified here: main decides whether an invalid verdict halts startup,
// so diagnostic paths can still construct the application.
func New(cfg *config.Config) (*Application, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("voxd starting",
		slog.String("version", Version),
		slog.String("data_dir", cfg.DataDir))

	if _, err := os.Stat(cfg.License.File); err != nil {
		logger.Warn("license artifact not found, activation required",
			slog.String("path", cfg.License.File))
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	var (
		businessMetrics *infrastructure.BusinessMetrics
		licenseMetrics  *license.Metrics
		collector       *infrastructure.SystemMetricsCollector
	)
	if otelProviders.Meter != nil {
		if businessMetrics, err = infrastructure.CreateBusinessMetrics(otelProviders.Meter); err != nil {
			return nil, fmt.Errorf("create business metrics: %w", err)
		}
		if licenseMetrics, err = license.InitMetrics(otelProviders.Meter); err != nil {
			return nil, fmt.Errorf("create license metrics: %w", err)
		}
		if collector, err = infrastructure.NewSystemMetricsCollector(otelProviders.Meter, systemMetricsInterval); err != nil {
			return nil, fmt.Errorf("create system metrics collector: %w", err)
		}
	}

	identity := machineid.New()

	store, err := timeguard.NewStore(cfg.TimeGuard.StateFile, identity.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("open time state store: %w", err)
	}
	detector := timeguard.NewDetector(store, timeguard.Options{
		Tolerance:      cfg.TimeGuard.Tolerance(),
		ReferencePaths: cfg.TimeGuard.ReferenceFiles,
		Logger:         logger,
	})

	pub, err := license.ResolvePublicKey(cfg.License.PublicKey, cfg.License.PublicKeyFile)
	if err != nil {
		return nil, err
	}

	verifier, err := license.NewVerifier(license.Config{
		ArtifactPath: cfg.License.File,
		PublicKey:    pub,
		Identity:     identity,
		Detector:     detector,
		StrictTime:   cfg.License.StrictTimeValidation,
		Logger:       logger,
		Metrics:      licenseMetrics,
	})
	if err != nil {
		return nil, err
	}

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		OTel:      otelProviders,
		Identity:  identity,
		Verifier:  verifier,
		Cache:     license.NewCache(verifier, 0, 0),
		Registry:  provider.Default(),
		metrics:   businessMetrics,
		collector: collector,
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// setupRouter builds the chi router. Middleware order: RequestID, RealIP,
// OTel, StructuredLogger, Recovery, SecurityHeaders, RateLimiter; the
// license gate applies to the /api group only, and its built-in
// exclusions keep the license and machine diagnostics reachable.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.NewOTelMiddleware(a.OTel, a.metrics).Handler)
	r.Use(middleware.StructuredLogger(a.Logger))

	errorHandler := apierrors.NewErrorHandler(a.Logger, false)
	r.Use(apierrors.RecoveryMiddleware(errorHandler))
	r.Use(middleware.SecurityHeaders)
	if rl := a.Config.Server.RateLimit; rl.Enabled {
		r.Use(middleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger).Handler)
	}

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(Version, a.Cache, a.collector, a.Logger)
	r.Get("/healthz", healthHandler.Healthz)

	if a.OTel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTel.PrometheusHTTP)
	}

	gate := middleware.NewLicenseGate(a.Cache, a.Logger, a.metrics)
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(a.Config.Server.ReadTimeout.Std(), a.Logger))
		r.Use(gate.Handler)

		r.Mount("/license", handlers.NewLicenseHandler(a.Cache, a.Verifier, a.Logger).Routes())
		r.Mount("/machine", handlers.NewMachineHandler(a.Identity, a.Logger).Routes())
		r.Get("/providers", handlers.NewProviderHandler(a.Registry, a.Config.Providers.Selected, a.Logger).List)
	})

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         a.Config.Server.Address(),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout.Std(),
		WriteTimeout: a.Config.Server.WriteTimeout.Std(),
		IdleTimeout:  a.Config.Server.IdleTimeout.Std(),
	}
}

// CheckLicense runs a verification pass and returns the verdict. main
// gates startup on it: an invalid verdict halts the daemon before the
// server binds.
func (a *Application) CheckLicense(ctx context.Context) *license.Verdict {
	return a.Cache.Status(ctx)
}

// Run serves the status API until ctx is cancelled, then shuts down
// gracefully. The configured providers are constructed first, after the
// startup license gate has passed; a broken provider selection stops the
// daemon before it binds.
func (a *Application) Run(ctx context.Context) error {
	if err := a.constructProviders(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("status API listening", slog.String("address", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.collector != nil {
		g.Go(func() error {
			a.collector.Start(ctx)
			return nil
		})
	}

	if interval := a.Config.License.RecheckInterval.Std(); interval > 0 {
		g.Go(func() error {
			a.recheckLoop(ctx, interval)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// constructProviders resolves the configured provider selection against
// the registry, in pipeline order. Kept out of New so an unlicensed
// deployment never spins up pipeline backends.
func (a *Application) constructProviders(ctx context.Context) error {
	for _, tag := range provider.Capabilities() {
		name := a.Config.Providers.Selected[string(tag)]
		if name == "" {
			continue
		}

		p, err := a.Registry.New(ctx, tag, name, a.Config.Providers.Options[name])
		a.metrics.RecordProviderConstruction(ctx, string(tag), name, err)
		if err != nil {
			a.closeProviders()
			return err
		}

		a.Logger.Info("provider constructed",
			slog.String("capability", string(tag)),
			slog.String("provider", name))
		a.providers = append(a.providers, p)
	}
	return nil
}

// closeProviders releases constructed providers in reverse order.
func (a *Application) closeProviders() {
	for i := len(a.providers) - 1; i >= 0; i-- {
		p := a.providers[i]
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil {
			a.Logger.Warn("provider close failed",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()))
		}
	}
	a.providers = nil
}

// recheckLoop re-verifies the license on the configured interval. The
// gate reads from the shared cache, so a failed recheck flips every gated
// route to denial without restarting the daemon.
func (a *Application) recheckLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Cache.Invalidate()
			verdict := a.Cache.Status(ctx)
			if !verdict.Valid {
				a.Logger.Error("periodic license recheck failed",
					slog.String("status", verdict.Status),
					slog.String("reason", verdict.Message))
				continue
			}
			a.Logger.Debug("periodic license recheck passed",
				slog.Int("remaining_days", verdict.RemainingDays))
		}
	}
}

// shutdown drains the HTTP server, then releases background resources.
// The parent context is already cancelled by the time this runs, so the
// drain gets its own deadline.
func (a *Application) shutdown() error {
	a.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout.Std())
	defer cancel()

	err := a.Server.Shutdown(shutdownCtx)
	if err != nil {
		err = fmt.Errorf("server shutdown: %w", err)
	}

	if a.collector != nil {
		a.collector.Stop()
	}
	a.closeProviders()

	if otelErr := a.OTel.Shutdown(shutdownCtx); otelErr != nil {
		a.Logger.Warn("telemetry shutdown failed", slog.String("error", otelErr.Error()))
	}

	a.Logger.Info("shutdown complete")
	return err
}
