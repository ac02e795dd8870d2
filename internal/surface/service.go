package surface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/routing"
)

// Provider defines the interface for surface data providers.
type Provider interface {
	// GetBreakdown fetches the surface composition of the route through
	// the given waypoints.
	GetBreakdown(ctx context.Context, profile routing.RouteProfile, waypoints []orb.Point) (*Breakdown, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the surface service.
type ServiceConfig struct {
	// Provider is the surface data provider.
	Provider Provider

	// FeatureFlags is the feature flag service (optional).
	// If provided, surface lookups can be disabled via feature flag.
	FeatureFlags *featureflags.Service

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache surface data (default: 1 hour).
	// Surface composition only changes when the underlying map data does.
	CacheTTL time.Duration

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 6 hours).
	StaleIfErrorTTL time.Duration

	// CacheGridSize is the waypoint rounding grid in degrees (default: 0.001, ~110m).
	CacheGridSize float64
}

// Service provides surface composition data with caching and feature flag control.
type Service struct {
	provider        Provider
	featureFlags    *featureflags.Service
	logger          zerolog.Logger
	cacheTTL        time.Duration
	staleIfErrorTTL time.Duration
	cacheGridSize   float64

	mu              sync.RWMutex
	cache           map[string]*cachedBreakdown
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cachedBreakdown struct {
	data      *Breakdown
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new surface service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 1 * time.Hour
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 6 * time.Hour
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.001
	}

	return &Service{
		provider:        cfg.Provider,
		featureFlags:    cfg.FeatureFlags,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		staleIfErrorTTL: staleIfErrorTTL,
		cacheGridSize:   cacheGridSize,
		cache:           make(map[string]*cachedBreakdown),
		cleanupInterval: 30 * time.Minute,
	}
}

// GetBreakdown returns the surface composition of the route through the waypoints.
// Returns ErrSurfaceDisabled if surface lookup is disabled via feature flag.
func (s *Service) GetBreakdown(ctx context.Context, profile routing.RouteProfile, waypoints []orb.Point) (*Breakdown, error) {
	// Check feature flag
	if s.isSurfaceDisabled(ctx) {
		s.logger.Debug().Msg("surface lookup disabled by feature flag")
		return nil, ErrSurfaceDisabled
	}

	if len(waypoints) < 2 {
		return nil, ErrTooFewWaypoints
	}
	for _, wp := range waypoints {
		if wp[1] < -90 || wp[1] > 90 || wp[0] < -180 || wp[0] > 180 {
			return nil, ErrInvalidCoordinates
		}
	}

	cacheKey := s.cacheKey(profile, waypoints)

	// Check cache
	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		return cached.data, nil
	}
	s.mu.RUnlock()

	// Fetch from provider
	return s.fetchBreakdown(ctx, profile, waypoints, cacheKey)
}

// IsEnabled returns true if surface lookup is enabled.
func (s *Service) IsEnabled(ctx context.Context) bool {
	return !s.isSurfaceDisabled(ctx)
}

// isSurfaceDisabled checks the feature flag.
func (s *Service) isSurfaceDisabled(ctx context.Context) bool {
	if s.featureFlags == nil {
		return false
	}
	return s.featureFlags.IsSurfaceLookupDisabled(ctx)
}

// fetchBreakdown fetches surface data from the provider and updates the cache.
func (s *Service) fetchBreakdown(ctx context.Context, profile routing.RouteProfile, waypoints []orb.Point, cacheKey string) (*Breakdown, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		return cached.data, nil
	}

	s.logger.Debug().
		Str("profile", string(profile)).
		Int("waypoints", len(waypoints)).
		Str("provider", s.provider.Name()).
		Msg("fetching surface breakdown from provider")

	data, err := s.provider.GetBreakdown(ctx, profile, waypoints)
	if err != nil {
		s.logger.Error().Err(err).
			Str("profile", string(profile)).
			Int("waypoints", len(waypoints)).
			Msg("failed to fetch surface breakdown")

		// A route without surface data stays that way, do not mask it
		// with stale entries or a provider error.
		if errors.Is(err, ErrNoSurfaceData) {
			return nil, err
		}

		// Check for stale data
		if cached, ok := s.cache[cacheKey]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Msg("serving stale surface data due to provider error")
				return cached.data, nil
			}
		}

		return nil, ErrProviderUnavailable
	}

	// Update cache
	now := time.Now()
	s.cache[cacheKey] = &cachedBreakdown{
		data:      data,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	// Periodic cleanup
	s.cleanupIfNeeded()

	return data, nil
}

// cacheKey generates a cache key from the profile and grid-rounded waypoints.
func (s *Service) cacheKey(profile routing.RouteProfile, waypoints []orb.Point) string {
	var b strings.Builder
	b.WriteString(string(profile))
	for _, wp := range waypoints {
		gridLat := math.Floor(wp[1]/s.cacheGridSize) * s.cacheGridSize
		gridLon := math.Floor(wp[0]/s.cacheGridSize) * s.cacheGridSize
		fmt.Fprintf(&b, ":%.3f,%.3f", gridLat, gridLon)
	}
	return b.String()
}

// cleanupIfNeeded removes expired entries if cleanup interval has passed.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired surface cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedBreakdown)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	Provider     string
}
