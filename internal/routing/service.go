package routing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the routing data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache routed paths (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.001 ~ 110m).
	// Waypoints within the same grid cells share cached data, which absorbs
	// the sub-pixel jitter of waypoint drags.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service provides routed paths with caching.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedDirections
	lastCleanup time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.001 // ~110m at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 15 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedDirections),
	}
}

// GetDirections routes through the request's waypoints.
// Uses cached data if available and not expired.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if len(req.Waypoints) < 2 {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "TOO_FEW_WAYPOINTS",
			Message:  "routing requires at least two waypoints",
			Err:      ErrTooFewWaypoints,
		}
	}
	for i, wp := range req.Waypoints {
		if err := validateCoordinates(wp); err != nil {
			return nil, &Error{
				Provider: s.provider.Name(),
				Code:     "INVALID_WAYPOINT",
				Message:  fmt.Sprintf("invalid waypoint %d", i),
				Err:      ErrInvalidCoordinates,
			}
		}
	}

	cacheKey := s.cacheKey(req)

	// Check cache (read lock)
	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit for directions")
		return cached.response, nil
	}
	s.mu.RUnlock()

	// Fetch from provider
	return s.fetchDirections(ctx, req, cacheKey)
}

// fetchDirections fetches directions from provider and updates cache.
func (s *Service) fetchDirections(ctx context.Context, req DirectionsRequest, cacheKey string) (*DirectionsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.logger.Debug().
			Str("cache_key", cacheKey).
			Msg("cache hit after double-check")
		return cached.response, nil
	}

	s.logger.Debug().
		Int("waypoints", len(req.Waypoints)).
		Str("profile", string(req.Profile)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := s.provider.GetDirections(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).
			Int("waypoints", len(req.Waypoints)).
			Str("profile", string(req.Profile)).
			Msg("failed to fetch directions")

		// Check for stale data (stale-if-error pattern)
		if cached, ok := s.cache[cacheKey]; ok {
			if time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
				s.logger.Warn().
					Time("fetched_at", cached.fetchedAt).
					Str("cache_key", cacheKey).
					Msg("serving stale directions data due to provider error")
				return cached.response, nil
			}
		}

		return nil, err
	}

	// Update cache
	now := time.Now()
	s.cache[cacheKey] = &cachedDirections{
		response:  resp,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.logger.Debug().
		Str("cache_key", cacheKey).
		Int("path_points", len(resp.Geometry)).
		Msg("cached directions response")

	// Periodic cleanup
	s.cleanupIfNeeded()

	return resp, nil
}

// cacheKey generates a cache key for a routing request.
// Each waypoint is quantized to the cache grid.
// Format: {profile}:{gridLat},{gridLon}:{gridLat},{gridLon}:...
func (s *Service) cacheKey(req DirectionsRequest) string {
	var b strings.Builder
	b.WriteString(string(req.Profile))

	for _, wp := range req.Waypoints {
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
		// Remove entries that are past the stale-if-error window
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired routing cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedDirections)
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	fresh := 0
	stale := 0

	for _, c := range s.cache {
		if now.Before(c.expiresAt) {
			fresh++
		} else if now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// validateCoordinates checks if a [lon, lat] point is within valid ranges.
func validateCoordinates(p orb.Point) error {
	if p[1] < -90 || p[1] > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p[1])
	}
	if p[0] < -180 || p[0] > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p[0])
	}
	return nil
}
