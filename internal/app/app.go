// Package app assembles the dashboard server: configuration, logging,
// telemetry, services, router and the HTTP server with graceful
// shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"eventstudy/internal/config"
	apperrors "eventstudy/internal/errors"
	"eventstudy/internal/infrastructure"
	custommiddleware "eventstudy/internal/middleware"
	"eventstudy/internal/services"
	handlers "eventstudy/internal/transport/http"
)

// Application is the dependency container of the dashboard server.
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	DataService   *services.DataService
	HealthService *services.HealthService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
}

// NewApplication wires the server from a loaded configuration.
func NewApplication(configFile string) (*Application, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", cfg.Server.Port))

	paths := config.NewPaths(cfg)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		DataService:   services.NewDataServiceWithLogger(cfg, paths, logger),
		HealthService: services.NewHealthService(cfg, paths, logger),
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// setupRouter builds the middleware chain and mounts the handlers.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.RealIP)
	r.Use(custommiddleware.StructuredLogger(a.Logger))
	r.Use(custommiddleware.Recoverer(a.Logger))
	r.Use(custommiddleware.SecurityHeaders)
	r.Use(custommiddleware.Compress(5))
	r.Use(custommiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))
	r.Use(custommiddleware.CORS(custommiddleware.CORSConfig{}))
	r.Use(chimiddleware.StripSlashes)

	errorHandler := apperrors.NewErrorHandler(a.Logger)
	dataHandler := handlers.NewDataHandler(a.DataService, a.Logger, errorHandler)
	healthHandler := handlers.NewHealthHandler(a.HealthService)

	var prometheus http.Handler
	if a.OTelProviders != nil {
		prometheus = a.OTelProviders.PrometheusHTTP
	}
	metricsHandler := handlers.NewMetricsHandler(prometheus)

	r.Route("/api", func(r chi.Router) {
		r.Mount("/data", dataHandler.Routes())
		r.Mount("/", healthHandler.Routes())
	})
	r.Mount("/", metricsHandler.Routes())

	a.Router = r
}

// createServer builds the HTTP server from the server configuration.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Run serves until the context is cancelled or a termination signal
// arrives, then shuts down gracefully within the configured timeout.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.Logger.Info("shutting down",
		slog.Duration("timeout", a.Config.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return err
	}

	a.Logger.Info("shutdown complete")
	return nil
}
