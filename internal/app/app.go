package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"eyeparse/internal/cache"
	"eyeparse/internal/config"
	apierrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	handlers "eyeparse/internal/transport/http"
	ws "eyeparse/internal/websocket"
)

// Application wires the HTTP API to the pipeline, the cache and the
// progress hub
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Cache         *cache.Store
	WebSocketHub  *ws.Hub
	Router        http.Handler
	Server        *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewApplication builds every component from cfg. Nothing is started.
func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Application{Config: cfg, Logger: logger}

	otelProviders, err := infrastructure.InitializeOTel(cfg.OTel, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = otelProviders

	if cfg.Cache.Enabled {
		store, err := cache.New(cache.Options{
			Dir:     cfg.Cache.Dir,
			Logger:  logger,
			Metrics: otelProviders.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
		a.Cache = store
	}

	a.WebSocketHub = ws.NewHub(logger)

	router, err := handlers.NewRouter(handlers.Deps{
		Config:       cfg,
		Cache:        a.Cache,
		Hub:          a.WebSocketHub,
		OTel:         otelProviders,
		ErrorHandler: apierrors.NewErrorHandler(logger, false),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	a.Router = router

	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return a, nil
}

// Start purges stale cache entries, starts the hub and begins serving.
// It returns once the listener is bound.
func (a *Application) Start(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("addr", a.Server.Addr),
		slog.String("data_dir", a.Config.Server.DataDir),
		slog.Bool("cache", a.Cache != nil))

	if a.Cache != nil && a.Config.Cache.MaxAge > 0 {
		if _, err := a.Cache.Purge(a.Config.Cache.MaxAge); err != nil {
			a.Logger.WarnContext(ctx, "cache purge failed", slog.String("error", err.Error()))
		}
	}

	l, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}

	a.WebSocketHub.Start()

	a.mu.Lock()
	a.listener = l
	a.serveErr = make(chan error, 1)
	a.mu.Unlock()

	go func() {
		if err := a.Server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.Logger.InfoContext(ctx, "application started", slog.String("address", l.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has returned
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts the server down gracefully, then the hub and telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return errors.Join(errs...)
}

// Run serves until ctx is cancelled or the server fails
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.InfoContext(ctx, "received shutdown signal")
	case err, ok := <-a.serveErr:
		if ok {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	// ctx may already be cancelled; the shutdown gets its own deadline
	stopErr := a.Stop(context.WithoutCancel(ctx))
	return errors.Join(serveErr, stopErr)
}
