package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/route"
	"github.com/cyclemaps/cyclemaps/pkg/geo"
)

// BackfillJob repairs stale route records. Routes whose cached elevation
// profile is structurally unusable get a fresh one derived from the stored
// geometry, and headline distance and climb figures that drifted from the
// derived data are rewritten. Saving a route never blocks on this work;
// the API stores payloads verbatim and this job cleans up afterwards.
type BackfillJob struct {
	config   BackfillConfig
	logger   zerolog.Logger
	repo     route.Repository
	profiler *route.Profiler

	// flags gates the job (optional, nil means always enabled)
	flags *featureflags.Service

	// Metrics
	metrics *BackfillMetrics
}

// BackfillMetrics tracks backfill job statistics.
type BackfillMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalSweeps         int64
	RoutesScanned       int64
	RoutesRepaired      int64
	RoutesSkipped       int64
	RoutesFailed        int64
	ProfilesDerived     int64
	HeadlinesReconciled int64

	// Timings
	LastSweepAt       time.Time
	LastSweepDuration time.Duration
	TotalDuration     time.Duration
}

// BackfillJobConfig holds configuration for creating a BackfillJob.
type BackfillJobConfig struct {
	Config     BackfillConfig
	Logger     zerolog.Logger
	Repository route.Repository
	Profiler   *route.Profiler

	// Flags is checked before each sweep and each event-driven repair.
	// Optional.
	Flags *featureflags.Service
}

// NewBackfillJob creates a new backfill job processor.
func NewBackfillJob(cfg BackfillJobConfig) *BackfillJob {
	return &BackfillJob{
		config:   cfg.Config.withDefaults(),
		logger:   cfg.Logger,
		repo:     cfg.Repository,
		profiler: cfg.Profiler,
		flags:    cfg.Flags,
		metrics:  &BackfillMetrics{},
	}
}

// BackfillResult contains the result of one sweep.
type BackfillResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Disabled is true when the sweep was suppressed by the feature flag.
	Disabled bool

	Scanned    int
	Repaired   int
	Derived    int
	Reconciled int
	Skipped    int
	Failed     int
	Errors     []BackfillError
}

// BackfillError represents a failed repair.
type BackfillError struct {
	RouteID string
	Error   string
}

// Run sweeps every stored route and repairs the stale ones.
func (j *BackfillJob) Run(ctx context.Context) *BackfillResult {
	startTime := time.Now()
	result := &BackfillResult{StartTime: startTime}

	if j.flags != nil && j.flags.IsProfileBackfillDisabled(ctx) {
		j.logger.Info().Msg("profile backfill disabled by feature flag, skipping sweep")
		result.Disabled = true
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		return result
	}

	routes, err := j.repo.ListAll(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("backfill sweep could not list routes")
		result.Failed = 1
		result.Errors = append(result.Errors, BackfillError{Error: err.Error()})
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(startTime)
		j.updateMetrics(result)
		return result
	}
	result.Scanned = len(routes)

	j.logger.Info().
		Int("routes", len(routes)).
		Int("concurrency", j.config.Concurrency).
		Bool("check_only", j.config.CheckOnly).
		Msg("starting profile backfill sweep")

	// Create work channels
	routesChan := make(chan *route.Route, len(routes))
	resultsChan := make(chan routeResult, len(routes))

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.repairWorker(ctx, routesChan, resultsChan)
		}()
	}

	// Send routes to workers
	for _, rt := range routes {
		routesChan <- rt
	}
	close(routesChan)

	// Wait for workers to complete
	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	// Collect results
	for rr := range resultsChan {
		switch {
		case rr.err != nil:
			result.Failed++
			result.Errors = append(result.Errors, *rr.err)
		case rr.skipped:
			result.Skipped++
		case rr.derived || rr.reconciled:
			result.Repaired++
			if rr.derived {
				result.Derived++
			}
			if rr.reconciled {
				result.Reconciled++
			}
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	// Update metrics
	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("scanned", result.Scanned).
		Int("repaired", result.Repaired).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Msg("profile backfill sweep completed")

	return result
}

type routeResult struct {
	derived    bool
	reconciled bool
	skipped    bool
	err        *BackfillError
}

func (j *BackfillJob) repairWorker(ctx context.Context, routes <-chan *route.Route, results chan<- routeResult) {
	for rt := range routes {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.repairRoute(ctx, rt)
		}
	}
}

// RepairRoute repairs a single route by ID. Used by the event consumer
// when a route is saved. Reports whether a repair was written.
func (j *BackfillJob) RepairRoute(ctx context.Context, id string) (bool, error) {
	if j.flags != nil && j.flags.IsProfileBackfillDisabled(ctx) {
		j.logger.Debug().Str("route_id", id).Msg("profile backfill disabled, dropping repair")
		return false, nil
	}

	rt, err := j.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}

	rr := j.repairRoute(ctx, rt)
	if rr.err != nil {
		return false, fmt.Errorf("repairing route %s: %s", id, rr.err.Error)
	}
	return rr.derived || rr.reconciled, nil
}

func (j *BackfillJob) repairRoute(ctx context.Context, rt *route.Route) routeResult {
	// Create timeout context for this route
	routeCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	var result routeResult

	if !rt.Profile.Valid() {
		if len(rt.Geometry) < 2 {
			// Nothing to derive from; the record stays as uploaded.
			result.skipped = true
			return result
		}

		p, err := j.profiler.Derive(routeCtx, rt.Geometry)
		if err != nil {
			result.err = &BackfillError{RouteID: rt.ID, Error: err.Error()}
			return result
		}

		rt.Profile = route.NewStoredProfile(p)
		rt.ElevationM = p.GainMeters
		rt.DistanceKm = geo.PathLengthKm(rt.Geometry)
		result.derived = true
	} else {
		if gainDrift(rt) > j.config.GainToleranceM {
			rt.ElevationM = rt.Profile.GainM
			result.reconciled = true
		}
		if len(rt.Geometry) >= 2 {
			if drift := rt.DistanceKm - geo.PathLengthKm(rt.Geometry); abs(drift) > j.config.DistanceToleranceKm {
				rt.DistanceKm = geo.PathLengthKm(rt.Geometry)
				result.reconciled = true
			}
		}
		if !result.reconciled {
			return result
		}
	}

	if j.config.CheckOnly {
		j.logger.Info().
			Str("route_id", rt.ID).
			Bool("derived", result.derived).
			Bool("reconciled", result.reconciled).
			Msg("route needs repair (check only)")
		return result
	}

	rt.UpdatedAt = time.Now()
	if err := j.repo.Update(routeCtx, rt); err != nil {
		return routeResult{err: &BackfillError{RouteID: rt.ID, Error: err.Error()}}
	}

	j.logger.Debug().
		Str("route_id", rt.ID).
		Bool("derived", result.derived).
		Bool("reconciled", result.reconciled).
		Msg("route repaired")

	return result
}

// gainDrift is how far the headline climb sits from the cached profile's.
func gainDrift(rt *route.Route) float64 {
	return abs(rt.ElevationM - rt.Profile.GainM)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (j *BackfillJob) updateMetrics(result *BackfillResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalSweeps++
	j.metrics.RoutesScanned += int64(result.Scanned)
	j.metrics.RoutesRepaired += int64(result.Repaired)
	j.metrics.RoutesSkipped += int64(result.Skipped)
	j.metrics.RoutesFailed += int64(result.Failed)
	j.metrics.ProfilesDerived += int64(result.Derived)
	j.metrics.HeadlinesReconciled += int64(result.Reconciled)
	j.metrics.LastSweepAt = result.EndTime
	j.metrics.LastSweepDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *BackfillJob) GetMetrics() BackfillMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return BackfillMetrics{
		TotalSweeps:         j.metrics.TotalSweeps,
		RoutesScanned:       j.metrics.RoutesScanned,
		RoutesRepaired:      j.metrics.RoutesRepaired,
		RoutesSkipped:       j.metrics.RoutesSkipped,
		RoutesFailed:        j.metrics.RoutesFailed,
		ProfilesDerived:     j.metrics.ProfilesDerived,
		HeadlinesReconciled: j.metrics.HeadlinesReconciled,
		LastSweepAt:         j.metrics.LastSweepAt,
		LastSweepDuration:   j.metrics.LastSweepDuration,
		TotalDuration:       j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *BackfillJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_sweeps":         m.TotalSweeps,
		"routes_scanned":       m.RoutesScanned,
		"routes_repaired":      m.RoutesRepaired,
		"routes_skipped":       m.RoutesSkipped,
		"routes_failed":        m.RoutesFailed,
		"profiles_derived":     m.ProfilesDerived,
		"headlines_reconciled": m.HeadlinesReconciled,
		"last_sweep_at":        m.LastSweepAt,
		"last_sweep_duration":  m.LastSweepDuration.String(),
		"total_duration":       m.TotalDuration.String(),
	}
}
