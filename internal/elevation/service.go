package elevation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/featureflags"
)

// Provider defines the interface for elevation data providers.
type Provider interface {
	// FetchElevations returns one elevation per coordinate, in order.
	FetchElevations(ctx context.Context, coords orb.LineString) (*Samples, error)

	// Name identifies the provider.
	Name() string
}

// ServiceConfig holds configuration for the elevation service.
type ServiceConfig struct {
	// Provider is the elevation data provider.
	Provider Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Flags is the feature flag service, used to restrict lookups to
	// cached data. Optional.
	Flags *featureflags.Service

	// CacheTTL is how long to cache fetched elevations (default: 10 minutes).
	// Terrain does not change, but entries are dropped to bound memory.
	CacheTTL time.Duration

	// CleanupInterval is how often to clean up expired entries (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service provides elevation data with caching.
//
// Unlike the routing service there is no stale-if-error window: a failed
// fetch is reported to the caller, which keeps whatever profile it already
// has on screen.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	flags           *featureflags.Service
	cacheTTL        time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	cache       map[string]*cachedSamples
	lastCleanup time.Time
}

type cachedSamples struct {
	samples   *Samples
	expiresAt time.Time
}

// NewService creates a new elevation service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		flags:           cfg.Flags,
		cacheTTL:        cacheTTL,
		cleanupInterval: cleanupInterval,
		cache:           make(map[string]*cachedSamples),
	}
}

// GetElevations returns elevations for the given coordinates.
// Uses cached data if available and not expired.
func (s *Service) GetElevations(ctx context.Context, coords orb.LineString) (*Samples, error) {
	if len(coords) == 0 {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "NO_COORDINATES",
			Message:  "at least one coordinate is required",
			Err:      ErrNoCoordinates,
		}
	}
	for i, c := range coords {
		if err := validateCoordinate(c); err != nil {
			return nil, &Error{
				Provider: s.provider.Name(),
				Code:     "INVALID_COORDINATE",
				Message:  fmt.Sprintf("invalid coordinate %d", i),
				Err:      ErrInvalidCoordinates,
			}
		}
	}

	key := cacheKey(coords)

	// Check cache (read lock)
	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().
			Int("coordinates", len(coords)).
			Msg("cache hit for elevations")
		return cached.samples, nil
	}
	s.mu.RUnlock()

	if s.isCachedOnly(ctx) {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "CACHED_ONLY",
			Message:  "elevation lookups are restricted to cached data",
			Err:      ErrProviderUnavailable,
		}
	}

	return s.fetchElevations(ctx, coords, key)
}

// isCachedOnly reports whether the cached-only elevation flag is set.
// A nil flags service means the flag is not in use.
func (s *Service) isCachedOnly(ctx context.Context) bool {
	if s.flags == nil {
		return false
	}
	return s.flags.IsCachedOnlyElevation(ctx)
}

// fetchElevations fetches elevations from the provider and updates the cache.
func (s *Service) fetchElevations(ctx context.Context, coords orb.LineString, key string) (*Samples, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check cache (prevents thundering herd)
	if cached, ok := s.cache[key]; ok && time.Now().Before(cached.expiresAt) {
		return cached.samples, nil
	}

	s.logger.Debug().
		Int("coordinates", len(coords)).
		Str("provider", s.provider.Name()).
		Msg("fetching elevations from provider")

	samples, err := s.provider.FetchElevations(ctx, coords)
	if err != nil {
		s.logger.Error().Err(err).
			Int("coordinates", len(coords)).
			Msg("failed to fetch elevations")
		return nil, err
	}

	s.cache[key] = &cachedSamples{
		samples:   samples,
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cleanupIfNeeded()

	return samples, nil
}

// cleanupIfNeeded removes expired entries if the cleanup interval has passed.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}

	s.lastCleanup = now
	expired := 0

	for key, cached := range s.cache {
		if now.After(cached.expiresAt) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().
			Int("expired_entries", expired).
			Msg("cleaned up expired elevation cache entries")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedSamples)
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

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// cacheKey builds a cache key from coordinates rounded to ~11m precision,
// matching the rounding applied before coordinates go to the provider.
func cacheKey(coords orb.LineString) string {
	var b strings.Builder
	b.Grow(len(coords) * 20)
	for _, c := range coords {
		fmt.Fprintf(&b, "%.4f,%.4f;", c[1], c[0])
	}
	return b.String()
}

// validateCoordinate checks if a [lon, lat] point is within valid ranges.
func validateCoordinate(p orb.Point) error {
	if p[1] < -90 || p[1] > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p[1])
	}
	if p[0] < -180 || p[0] > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p[0])
	}
	return nil
}
