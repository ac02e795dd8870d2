// Package main provides the entrypoint for the cyclemaps backfill worker.
//
// The worker repairs stored routes whose derived data (elevation profile,
// headline distance and climb) is missing or stale. It reacts to
// route.saved events from Pub/Sub and runs a periodic full sweep as a
// safety net for missed events.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/database"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/elevation/openmeteo"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/route"
	"github.com/cyclemaps/cyclemaps/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const defaultSweepInterval = 6 * time.Hour

func main() {
	const serviceName = "cyclemaps-worker"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting cyclemaps worker")

	// Get configuration from environment
	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	sweepInterval := defaultSweepInterval
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			log.Warn().
				Str("value", raw).
				Msg("invalid SWEEP_INTERVAL, using default")
		} else {
			sweepInterval = parsed
		}
	}

	checkOnly := os.Getenv("BACKFILL_CHECK_ONLY") == "true"

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	// Initialize feature flags service. The backfill job checks its
	// kill switch before every sweep and repair.
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	// Initialize the elevation service used to re-derive profiles.
	elevationService := elevation.NewService(elevation.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			Logger: log,
		}),
		Flags:  ffService,
		Logger: log,
	})

	backfillConfig := worker.DefaultBackfillConfig()
	backfillConfig.CheckOnly = checkOnly

	backfillJob := worker.NewBackfillJob(worker.BackfillJobConfig{
		Config:     backfillConfig,
		Logger:     log,
		Repository: route.NewPostgresRepository(pool),
		Profiler: route.NewProfiler(route.ProfilerConfig{
			Elevations: elevationService,
			Logger:     log,
		}),
		Flags: ffService,
	})
	log.Info().
		Dur("sweep_interval", sweepInterval).
		Bool("check_only", checkOnly).
		Msg("backfill job initialized")

	// Start the Pub/Sub handler when a project is configured. Without
	// one the periodic sweep is the only repair path.
	var pubsubHandler *worker.PubSubHandler
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		subscriptionName := os.Getenv("PUBSUB_SUBSCRIPTION")
		if subscriptionName == "" {
			subscriptionName = "route-events-worker"
		}

		pubsubHandler, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscriptionName,
			Backfill:         backfillJob,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
		}

		go func() {
			if err := pubsubHandler.Start(ctx); err != nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set - running periodic sweeps only")
	}

	// Create HTTP server for health checks
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":   "healthy",
			"version":  Version,
			"backfill": backfillJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start health check server
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start sweep loop
	go func() {
		// One sweep at startup covers events missed while the worker
		// was down, then the ticker takes over.
		backfillJob.Run(ctx)

		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sweep loop stopped")
				return
			case <-ticker.C:
				backfillJob.Run(ctx)
			}
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	if pubsubHandler != nil {
		if err := pubsubHandler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub handler")
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
