// Package main provides the entrypoint for the cyclemaps API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/api"
	"github.com/cyclemaps/cyclemaps/internal/api/middleware"
	"github.com/cyclemaps/cyclemaps/internal/chart"
	"github.com/cyclemaps/cyclemaps/internal/database"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/elevation/openmeteo"
	"github.com/cyclemaps/cyclemaps/internal/events"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/provider/resilience"
	"github.com/cyclemaps/cyclemaps/internal/route"
	"github.com/cyclemaps/cyclemaps/internal/routing"
	routingors "github.com/cyclemaps/cyclemaps/internal/routing/openrouteservice"
	"github.com/cyclemaps/cyclemaps/internal/session"
	"github.com/cyclemaps/cyclemaps/internal/surface"
	surfaceors "github.com/cyclemaps/cyclemaps/internal/surface/openrouteservice"
	"github.com/cyclemaps/cyclemaps/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cyclemaps-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting cyclemaps API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize feature flags repository and service
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	// Provider registry tracks upstream health for the status endpoint.
	registry := resilience.NewRegistry()

	// Initialize upstream provider clients. Open-Meteo needs no key; the
	// OpenRouteService clients still construct without one but every call
	// will be rejected upstream.
	orsAPIKey := os.Getenv("ORS_API_KEY")
	if orsAPIKey == "" {
		log.Warn().Msg("ORS_API_KEY not set - routing and surface lookups will fail")
	}

	elevationService := elevation.NewService(elevation.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			Registry: registry,
			Logger:   log,
		}),
		Flags:  ffService,
		Logger: log,
	})
	log.Info().Msg("elevation service initialized")

	routingService := routing.NewService(routing.ServiceConfig{
		Provider: routingors.NewClient(routingors.ClientConfig{
			APIKey:   orsAPIKey,
			Registry: registry,
			Logger:   log,
		}),
		Logger: log,
	})
	log.Info().Msg("routing service initialized")

	surfaceService := surface.NewService(surface.ServiceConfig{
		Provider: surfaceors.NewClient(surfaceors.ClientConfig{
			APIKey:   orsAPIKey,
			Registry: registry,
			Logger:   log,
		}),
		FeatureFlags: ffService,
		Logger:       log,
	})
	log.Info().Msg("surface service initialized")

	// Initialize the event publisher. Without a project ID saved-route
	// events are dropped; the worker's periodic sweep still repairs
	// stored profiles eventually.
	var publisher events.Publisher = events.NoopPublisher{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		topicName := os.Getenv("PUBSUB_TOPIC")
		if topicName == "" {
			topicName = "route-events"
		}
		pubsubPublisher, err := events.NewPubSubPublisher(ctx, events.PubSubConfig{
			ProjectID: projectID,
			TopicName: topicName,
			Logger:    log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub publisher")
		}
		publisher = pubsubPublisher
		log.Info().
			Str("topic", topicName).
			Msg("event publisher initialized")
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set - event publishing disabled")
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	// Initialize route repository and service
	routeService := route.NewService(route.ServiceConfig{
		Repository: route.NewPostgresRepository(pool),
		Profiler: route.NewProfiler(route.ProfilerConfig{
			Elevations: elevationService,
			Logger:     log,
		}),
		Events: publisher,
		Logger: log,
	})
	log.Info().Msg("route service initialized")

	// The renderer is shared by the route chart endpoint and every
	// builder session.
	renderer, err := chart.NewRenderer(chart.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize chart renderer")
	}

	sessionManager := session.NewManager(session.ManagerConfig{
		Routing:    routingService,
		Elevations: elevationService,
		Surfaces:   surfaceService,
		Flags:      ffService,
		Renderer:   renderer,
		Logger:     log,
	})
	defer sessionManager.Shutdown()
	log.Info().Msg("session manager initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		DB:                 pool,
		Registry:           registry,
		RouteService:       routeService,
		SessionManager:     sessionManager,
		ElevationService:   elevationService,
		FeatureFlagService: ffService,
		Renderer:           renderer,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
