package route

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/profile"
)

// Profiler derives an elevation profile for route geometry: downsample the
// path, look the samples up, and build the profile. It backs live
// re-derivation when a cached profile is unusable, both on reads and in the
// backfill worker, and the builder session pipeline.
type Profiler struct {
	elevations *elevation.Service
	maxSamples int
	logger     zerolog.Logger
}

// ProfilerConfig holds configuration for creating a Profiler.
type ProfilerConfig struct {
	// Elevations resolves sampled coordinates to elevations.
	Elevations *elevation.Service

	// MaxSamples caps the points sent per lookup. Defaults to
	// profile.DefaultMaxSamples.
	MaxSamples int

	Logger zerolog.Logger
}

// NewProfiler creates a new profiler.
func NewProfiler(cfg ProfilerConfig) *Profiler {
	maxSamples := cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = profile.DefaultMaxSamples
	}

	return &Profiler{
		elevations: cfg.Elevations,
		maxSamples: maxSamples,
		logger:     cfg.Logger.With().Str("component", "profiler").Logger(),
	}
}

// Derive builds an elevation profile for the given geometry. Returns
// profile.ErrInsufficientGeometry when the path has fewer than two points;
// elevation lookup failures are wrapped and keep their sentinel.
func (p *Profiler) Derive(ctx context.Context, geometry orb.LineString) (*profile.Profile, error) {
	samples, err := profile.Sample(geometry, p.maxSamples)
	if err != nil {
		return nil, err
	}

	elev, err := p.elevations.GetElevations(ctx, samples.Coords())
	if err != nil {
		return nil, fmt.Errorf("looking up elevations: %w", err)
	}

	built, err := profile.Build(samples, elev.Elevations, elev.GainMeters)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Int("path_points", len(geometry)).
		Int("samples", built.Len()).
		Float64("total_km", built.TotalKm()).
		Msg("profile derived")

	return built, nil
}
