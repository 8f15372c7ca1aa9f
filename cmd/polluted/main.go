package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polluted/internal/api"
	"polluted/internal/cache"
	"polluted/internal/cities"
	"polluted/internal/config"
	"polluted/internal/logger"
	"polluted/internal/models"
	"polluted/internal/observability"
	"polluted/internal/ratelimit"
	"polluted/internal/storage"
	"polluted/internal/upstream"
	"polluted/internal/version"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Config       string `short:"c" long:"config" env:"POLLUTED_CONFIG" description:"Path to YAML configuration file"`
	Version      bool   `short:"v" long:"version" description:"Print version information and exit"`
	WriteExample string `long:"write-example" value-name:"FILE" description:"Write an example configuration to FILE and exit"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	ver := version.GetInfo()

	if opts.Version {
		fmt.Println(ver.String())
		return
	}

	if opts.WriteExample != "" {
		if err := config.SaveExample(opts.WriteExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(opts.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// The store is dialed on first use, so the service starts even while
	// the cache backend is still coming up.
	store := cache.New(storeConnector(cfg))
	defer store.Close()

	citiesService := newCitiesService(cfg, store)

	handlers := api.NewHandlers(citiesService,
		api.WithStore(store),
		api.WithVersion(ver.Version),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.Security.RateLimit.Enabled {
		inbound := ratelimit.NewClientLimiter(cfg.Security.RateLimit)
		defer inbound.Close()
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(inbound)))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"environment", cfg.Server.Environment,
			"cache", cfg.Cache.Type,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// storeConnector opens the configured store and wraps it with
// instrumentation when metrics are enabled.
func storeConnector(cfg *models.Config) cache.Connector {
	return func(ctx context.Context) (storage.Storage, error) {
		s, err := storage.NewFactory().Create(cfg.Cache)
		if err != nil {
			return nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, err
		}
		if !cfg.Metrics.Enabled {
			return s, nil
		}

		instrumented, err := observability.NewInstrumentedStorage(s, cfg.Cache.Type)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to instrument %s store: %w", cfg.Cache.Type, err)
		}
		return instrumented, nil
	}
}

// newCitiesService wires the upstream clients over the shared store.
func newCitiesService(cfg *models.Config, store *cache.Cache) *cities.Service {
	up := cfg.Upstreams

	pollutionHTTP := upstream.NewHTTPClient(up.Pollution.Timeout)
	tokens := upstream.NewTokenManager(up.Pollution, store, pollutionHTTP)
	limiter := ratelimit.NewFixedWindow(store, up.Pollution.RateLimit)
	pollution := upstream.NewPollutionClient(up.Pollution, store, tokens, limiter, pollutionHTTP)

	allowlist := upstream.NewCitiesClient(up.Cities, store, upstream.NewHTTPClient(up.Cities.Timeout))
	wiki := upstream.NewWikiClient(up.Wiki, store, upstream.NewHTTPClient(up.Wiki.Timeout))

	return cities.NewService(pollution, allowlist, wiki, up.Wiki.Concurrency)
}
