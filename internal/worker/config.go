// Package worker provides background job processing for cyclemaps.
package worker

import (
	"time"
)

// BackfillConfig holds configuration for the profile backfill job.
type BackfillConfig struct {
	// Concurrency is the number of routes repaired in parallel.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for repairing a single route, which may
	// include an elevation provider call.
	// Default: 30 seconds
	Timeout time.Duration

	// CheckOnly reports what would be repaired without writing anything.
	CheckOnly bool

	// GainToleranceM is how far the stored headline climb may drift from
	// the cached profile's before the record counts as stale.
	// Default: 1 meter
	GainToleranceM float64

	// DistanceToleranceKm is how far the stored headline distance may
	// drift from the geometry's length before the record counts as stale.
	// Default: 0.1 km
	DistanceToleranceKm float64
}

// DefaultBackfillConfig returns the default backfill configuration.
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		Concurrency:         3,
		Timeout:             30 * time.Second,
		GainToleranceM:      1.0,
		DistanceToleranceKm: 0.1,
	}
}

func (c BackfillConfig) withDefaults() BackfillConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.GainToleranceM <= 0 {
		c.GainToleranceM = 1.0
	}
	if c.DistanceToleranceKm <= 0 {
		c.DistanceToleranceKm = 0.1
	}
	return c
}
