// Package api provides the HTTP API for cyclemaps.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/api/handler"
	"github.com/cyclemaps/cyclemaps/internal/api/middleware"
	"github.com/cyclemaps/cyclemaps/internal/chart"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/provider/resilience"
	"github.com/cyclemaps/cyclemaps/internal/route"
	"github.com/cyclemaps/cyclemaps/internal/session"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// DB backs the readiness check. Optional.
	DB *pgxpool.Pool

	// Registry reports provider health on the status endpoint. Optional.
	Registry *resilience.Registry

	RouteService       *route.Service
	SessionManager     *session.Manager
	ElevationService   *elevation.Service
	FeatureFlagService *featureflags.Service

	// Renderer draws route charts. Shared with the session manager.
	Renderer *chart.Renderer
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "cyclemaps-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		DB:        cfg.DB,
		Registry:  cfg.Registry,
		Flags:     cfg.FeatureFlagService,
	})
	routeHandler := handler.NewRouteHandler(cfg.RouteService, cfg.Renderer, cfg.FeatureFlagService)
	sessionHandler := handler.NewSessionHandler(cfg.SessionManager, cfg.RouteService)
	elevationHandler := handler.NewElevationHandler(cfg.ElevationService)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min

	// Liveness and readiness (public, unlimited)
	r.Get("/healthz", opsHandler.HealthCheck)
	r.Get("/readyz", opsHandler.ReadinessCheck)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops status endpoint
		r.With(standardRateLimit).Get("/ops/status", opsHandler.SystemStatus)

		// Public runtime flags
		r.With(standardRateLimit).Get("/flags", featureFlagsHandler.PublicFlags)

		// Saved routes
		r.Route("/routes", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", routeHandler.List)
			r.Post("/", routeHandler.Create)
			r.Get("/geojson", routeHandler.GeoJSON)
			r.Route("/{routeID}", func(r chi.Router) {
				r.Get("/", routeHandler.Get)
				r.Put("/", routeHandler.Update)
				r.Delete("/", routeHandler.Delete)
				// Profile derivation can call the elevation provider;
				// these share the expensive tier.
				r.With(expensiveRateLimit).Get("/profile", routeHandler.Profile)
				r.With(expensiveRateLimit).Get("/chart.png", routeHandler.Chart)
				r.With(expensiveRateLimit).Get("/gpx", routeHandler.GPX)
			})
		})

		// Raw elevation lookup - expensive, strict rate limiting
		r.With(expensiveRateLimit).Post("/elevation", elevationHandler.Lookup)

		// Builder sessions
		r.Route("/sessions", func(r chi.Router) {
			r.With(standardRateLimit).Post("/", sessionHandler.Open)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.With(standardRateLimit).Delete("/", sessionHandler.Close)
				r.With(standardRateLimit).Put("/waypoints", sessionHandler.Waypoints)
				r.With(expensiveRateLimit).Put("/geometry", sessionHandler.Geometry)
				// Chart and hover reads serve from the cached raster and
				// stay unlimited; pointer moves arrive at UI rates.
				r.Get("/chart.png", sessionHandler.Chart)
				r.Get("/hover", sessionHandler.Hover)
				r.Get("/hover.png", sessionHandler.HoverImage)
				r.Delete("/hover", sessionHandler.HoverLeave)
			})
		})

		// Admin endpoints - deployments gate these at the ingress
		r.Route("/admin", func(r chi.Router) {
			r.Use(standardRateLimit)

			// Feature flags management
			r.Route("/flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
