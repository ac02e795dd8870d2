// Package elevation provides elevation lookup for route geometry.
package elevation

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Provider errors.
var (
	ErrNoCoordinates       = errors.New("no coordinates provided")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	ErrProviderUnavailable = errors.New("elevation provider unavailable")
	ErrUpstreamTimeout     = errors.New("elevation provider timed out")
	ErrSampleCountMismatch = errors.New("elevation count does not match coordinate count")
)

// Samples holds per-coordinate elevations as returned by a provider.
// An entry is nil when the provider had no reading for that coordinate.
type Samples struct {
	// Elevations has one entry per requested coordinate, in order.
	Elevations []*float64

	// GainMeters is the provider-reported total ascent, if any.
	// Open-Meteo does not report one; it stays nil and is derived.
	GainMeters *float64

	// Provider identifies the data source.
	Provider string

	// FetchedAt is when this data was retrieved.
	FetchedAt time.Time
}

// Gain returns the total ascent in meters. It prefers the provider-reported
// value and falls back to summing positive deltas, with missing readings
// treated as zero elevation.
func (s *Samples) Gain() float64 {
	if s.GainMeters != nil && !math.IsNaN(*s.GainMeters) {
		return *s.GainMeters
	}
	return SumPositiveGain(s.Elevations)
}

// SumPositiveGain sums the positive elevation deltas between consecutive
// samples. Nil and NaN entries count as zero elevation.
func SumPositiveGain(elevations []*float64) float64 {
	var gain float64
	prev := 0.0
	for i, e := range elevations {
		cur := 0.0
		if e != nil && !math.IsNaN(*e) {
			cur = *e
		}
		if i > 0 && cur > prev {
			gain += cur - prev
		}
		prev = cur
	}
	return gain
}

// Error wraps provider errors with context.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable indicates whether the underlying failure is transient.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrUpstreamTimeout)
}
