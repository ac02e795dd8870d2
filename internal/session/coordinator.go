package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/chart"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/profile"
	"github.com/cyclemaps/cyclemaps/internal/routing"
	"github.com/cyclemaps/cyclemaps/internal/surface"
	"github.com/cyclemaps/cyclemaps/pkg/geo"
)

// DefaultDebounce is how long the coordinator waits after the last edit
// before issuing provider requests.
const DefaultDebounce = 300 * time.Millisecond

// Events consumed by the run loop. Edits come from the HTTP layer; the
// remaining types are posted back by fetch goroutines and carry the
// generation of the run that launched them.
type geometryEditEvent struct {
	geometry orb.LineString
}

type waypointEditEvent struct {
	waypoints []orb.Point
}

type routedEvent struct {
	generation uint64
	response   *routing.DirectionsResponse
	err        error
}

type elevationEvent struct {
	generation uint64
	samples    profile.SampleSet
	data       *elevation.Samples
	err        error
}

type surfaceEvent struct {
	generation uint64
	breakdown  *surface.Breakdown
	err        error
}

// Config holds the dependencies and tuning for one coordinator.
type Config struct {
	// ID identifies the session; a UUID is generated when empty.
	ID string

	// RouteProfile selects the routing mode for waypoint edits
	// (default: cycling-regular).
	RouteProfile routing.RouteProfile

	// Debounce is the quiet window after the last edit (default: 300ms).
	Debounce time.Duration

	// MaxSamples caps the profile sample count (default: 80).
	MaxSamples int

	// Routing resolves waypoint edits into path geometry (optional;
	// waypoint edits fail visibly without it).
	Routing *routing.Service

	// Elevations looks up sample elevations. Required.
	Elevations *elevation.Service

	// Surfaces looks up the surface breakdown in parallel with routing
	// (optional; surface data is additive).
	Surfaces *surface.Service

	// Flags gates bike-only routing and chart extremum markers (optional).
	Flags *featureflags.Service

	// Renderer draws the profile chart. Required; safe to share between
	// sessions.
	Renderer *chart.Renderer

	// Logger for coordinator operations.
	Logger zerolog.Logger

	// Seed preloads the session from a saved route (optional).
	Seed *Seed
}

// Coordinator drives one builder session. A single loop goroutine owns the
// state machine and does all geometry and pixel work; provider calls run in
// goroutines that post generation-tagged results back to the loop, so a
// result that outlives its run is recognized and dropped.
type Coordinator struct {
	id           string
	routeProfile routing.RouteProfile
	debounce     time.Duration
	maxSamples   int

	routing    *routing.Service
	elevations *elevation.Service
	surfaces   *surface.Service
	flags      *featureflags.Service
	renderer   *chart.Renderer
	hover      *chart.HoverController
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan interface{}
	done   chan struct{}

	lastActive atomic.Int64

	mu   sync.RWMutex
	snap Snapshot

	// Owned by the run loop.
	generation   uint64
	pending      interface{}
	geometry     orb.LineString
	waypoints    []orb.Point
	routedKm     float64
	fetchCtx     context.Context
	cancelFetch  context.CancelFunc
	runAborted   bool
	geometryLive bool
	surfaceGen   uint64
	heldSurface  *surface.Breakdown
}

// New builds a coordinator and starts its run loop. Callers must Close it.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Elevations == nil {
		return nil, errors.New("session: elevation service is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("session: chart renderer is required")
	}

	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	debounce := cfg.Debounce
	if debounce == 0 {
		debounce = DefaultDebounce
	}
	maxSamples := cfg.MaxSamples
	if maxSamples <= 0 {
		maxSamples = profile.DefaultMaxSamples
	}
	routeProfile := cfg.RouteProfile
	if routeProfile == "" {
		routeProfile = routing.ProfileBike
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		id:           id,
		routeProfile: routeProfile,
		debounce:     debounce,
		maxSamples:   maxSamples,
		routing:      cfg.Routing,
		elevations:   cfg.Elevations,
		surfaces:     cfg.Surfaces,
		flags:        cfg.Flags,
		renderer:     cfg.Renderer,
		hover:        chart.NewHoverController(cfg.Renderer),
		logger: cfg.Logger.With().
			Str("component", "session").
			Str("session_id", id).
			Logger(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan interface{}, 16),
		done:   make(chan struct{}),
	}
	c.touch()
	c.snap = Snapshot{State: StateIdle, UpdatedAt: time.Now()}

	if cfg.Seed != nil {
		c.applySeed(cfg.Seed)
	}

	go c.run()
	return c, nil
}

// ID returns the session identifier.
func (c *Coordinator) ID() string { return c.id }

// EditGeometry feeds a drawn or imported path into the debounced pipeline.
// The slice is retained; callers must not modify it afterwards.
func (c *Coordinator) EditGeometry(geometry orb.LineString) {
	c.touch()
	c.post(geometryEditEvent{geometry: geometry})
}

// EditWaypoints feeds an ordered marker set into the debounced pipeline.
// The waypoints are resolved into path geometry by the routing provider
// once the debounce window elapses. The slice is retained.
func (c *Coordinator) EditWaypoints(waypoints []orb.Point) {
	c.touch()
	c.post(waypointEditEvent{waypoints: waypoints})
}

// Snapshot returns a copy of the current session state.
func (c *Coordinator) Snapshot() Snapshot {
	c.touch()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Hover handles a pointer position over the chart, delegating to the hover
// controller. ok is false when no chart is cached or the position maps
// outside the plotted distance range.
func (c *Coordinator) Hover(x, y float64) (*image.RGBA, chart.HoverInfo, bool) {
	c.touch()
	return c.hover.Move(x, y)
}

// HoverLeave restores the base chart after the pointer exits. Returns nil
// when no chart is cached.
func (c *Coordinator) HoverLeave() *image.RGBA {
	c.touch()
	return c.hover.Leave()
}

// BaseRaster returns the cached base chart, or nil when no run has produced
// one yet.
func (c *Coordinator) BaseRaster() *chart.Raster {
	c.touch()
	return c.hover.Base()
}

// LastActive reports the last time the session was edited or read, for
// idle eviction.
func (c *Coordinator) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// Close cancels any in-flight request and stops the run loop. Safe to call
// more than once.
func (c *Coordinator) Close() {
	c.cancel()
	<-c.done
}

func (c *Coordinator) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// post delivers an event to the run loop, giving up when the session is
// closed so fetch goroutines never block on a dead loop.
func (c *Coordinator) post(ev interface{}) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// swap replaces the snapshot wholesale with a mutated copy.
func (c *Coordinator) swap(mutate func(*Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	mutate(&s)
	s.UpdatedAt = time.Now()
	c.snap = s
}

// applySeed preloads a saved route before the loop starts, rendering its
// cached profile so the chart is available without any provider call.
func (c *Coordinator) applySeed(seed *Seed) {
	c.geometry = seed.Geometry
	c.waypoints = seed.Waypoints

	snap := Snapshot{
		State:     StateIdle,
		Geometry:  seed.Geometry,
		Waypoints: seed.Waypoints,
		UpdatedAt: time.Now(),
	}

	if seed.Profile != nil && seed.Profile.Len() >= 2 {
		raster, err := c.renderChart(seed.Profile)
		if err != nil {
			c.logger.Warn().Err(err).Msg("failed to render seed chart")
		} else {
			c.hover.SetChart(raster, seed.Profile)

			distanceKm := seed.Profile.TotalKm()
			if len(seed.Geometry) >= 2 {
				distanceKm = geo.PathLengthKm(seed.Geometry)
			}

			snap.Profile = seed.Profile
			snap.Segments = profile.Segments(seed.Profile, seed.Geometry)
			snap.Stats = Stats{
				Available:  true,
				DistanceKm: distanceKm,
				GainMeters: seed.Profile.GainMeters,
			}
		}
	}

	c.snap = snap
}

func (c *Coordinator) run() {
	defer close(c.done)

	timer := time.NewTimer(c.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-c.ctx.Done():
			c.stopFetch()
			return
		case ev := <-c.events:
			switch e := ev.(type) {
			case geometryEditEvent:
				c.geometry = e.geometry
				c.waypoints = nil
				c.routedKm = 0
				c.supersede(e, timer)
			case waypointEditEvent:
				c.waypoints = e.waypoints
				c.supersede(e, timer)
			case routedEvent:
				c.onRouted(e)
			case elevationEvent:
				c.onElevation(e)
			case surfaceEvent:
				c.onSurface(e)
			}
		case <-timer.C:
			c.onDebounceElapsed()
		}
	}
}

// supersede records the newest edit and restarts the debounce window. Any
// in-flight run is cancelled; its late results no longer apply.
func (c *Coordinator) supersede(ev interface{}, timer *time.Timer) {
	c.stopFetch()
	c.runAborted = true
	c.heldSurface = nil
	c.pending = ev

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(c.debounce)

	c.swap(func(s *Snapshot) {
		s.State = StateDebouncing
		s.Geometry = c.geometry
		s.Waypoints = c.waypoints
	})
}

func (c *Coordinator) stopFetch() {
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
		c.fetchCtx = nil
	}
}

// onDebounceElapsed starts a run for the pending edit under a fresh
// generation.
func (c *Coordinator) onDebounceElapsed() {
	ev := c.pending
	c.pending = nil
	if ev == nil {
		return
	}

	c.generation++
	c.runAborted = false
	c.geometryLive = false
	c.heldSurface = nil

	switch e := ev.(type) {
	case geometryEditEvent:
		c.geometryLive = true
		c.startGeometryRun(c.generation, e.geometry)
	case waypointEditEvent:
		c.startWaypointRun(c.generation, e.waypoints)
	}
}

// startGeometryRun samples the edited path on the loop and hands only the
// elevation lookup to a goroutine.
func (c *Coordinator) startGeometryRun(gen uint64, geometry orb.LineString) {
	samples, err := profile.Sample(geometry, c.maxSamples)
	if err != nil {
		// Down to one point or none: not an error to show, but every
		// derived output is gone.
		c.clearOutputs(gen)
		return
	}

	c.beginFetch(gen)
	go c.fetchElevations(c.fetchCtx, gen, samples)
}

// startWaypointRun launches routing and, when configured, the surface
// lookup in parallel under the same generation. Elevation follows once the
// routed geometry arrives.
func (c *Coordinator) startWaypointRun(gen uint64, waypoints []orb.Point) {
	if len(waypoints) < 2 {
		c.geometry = nil
		c.routedKm = 0
		c.clearOutputs(gen)
		return
	}
	if c.routing == nil {
		c.abortRun(gen, "routing is not configured")
		return
	}

	c.beginFetch(gen)
	go c.fetchDirections(c.fetchCtx, gen, waypoints)
	if c.surfaces != nil {
		go c.fetchSurface(c.fetchCtx, gen, waypoints)
	}
}

func (c *Coordinator) beginFetch(gen uint64) {
	c.fetchCtx, c.cancelFetch = context.WithCancel(c.ctx)
	c.swap(func(s *Snapshot) {
		s.State = StateFetching
		s.Generation = gen
	})
}

func (c *Coordinator) fetchDirections(ctx context.Context, gen uint64, waypoints []orb.Point) {
	resp, err := c.routing.GetDirections(ctx, routing.DirectionsRequest{
		Waypoints: waypoints,
		Profile:   c.resolveRouteProfile(ctx),
	})
	c.post(routedEvent{generation: gen, response: resp, err: err})
}

func (c *Coordinator) fetchElevations(ctx context.Context, gen uint64, samples profile.SampleSet) {
	data, err := c.elevations.GetElevations(ctx, samples.Coords())
	c.post(elevationEvent{generation: gen, samples: samples, data: data, err: err})
}

func (c *Coordinator) fetchSurface(ctx context.Context, gen uint64, waypoints []orb.Point) {
	breakdown, err := c.surfaces.GetBreakdown(ctx, c.resolveRouteProfile(ctx), waypoints)
	c.post(surfaceEvent{generation: gen, breakdown: breakdown, err: err})
}

// resolveRouteProfile applies the bike-only routing flag.
func (c *Coordinator) resolveRouteProfile(ctx context.Context) routing.RouteProfile {
	if c.flags != nil && c.routeProfile == routing.ProfileWalk && c.flags.IsBikeOnlyRouting(ctx) {
		return routing.ProfileBike
	}
	return c.routeProfile
}

func (c *Coordinator) onRouted(e routedEvent) {
	if e.generation != c.generation || c.runAborted {
		c.logger.Debug().Uint64("generation", e.generation).Msg("dropping superseded routing result")
		return
	}

	if e.err != nil {
		if errors.Is(e.err, context.Canceled) {
			return
		}
		c.logger.Warn().Err(e.err).Msg("routing failed")
		if errors.Is(e.err, routing.ErrNoRouteFound) {
			// The markers stand but produce no path; the previous
			// geometry stays on the map.
			c.abortRun(e.generation, "no route found through the waypoints")
		} else {
			c.abortRun(e.generation, "routing is temporarily unavailable")
		}
		return
	}

	c.geometry = e.response.Geometry
	c.routedKm = e.response.DistanceMeters / 1000
	c.geometryLive = true

	if c.heldSurface != nil {
		c.applySurface(e.generation, c.heldSurface)
		c.heldSurface = nil
	}

	samples, err := profile.Sample(c.geometry, c.maxSamples)
	if err != nil {
		c.clearOutputs(e.generation)
		return
	}
	go c.fetchElevations(c.fetchCtx, e.generation, samples)
}

func (c *Coordinator) onElevation(e elevationEvent) {
	if e.generation != c.generation || c.runAborted {
		c.logger.Debug().Uint64("generation", e.generation).Msg("dropping superseded elevation result")
		return
	}

	if e.err != nil {
		if errors.Is(e.err, context.Canceled) {
			return
		}
		c.logger.Warn().Err(e.err).Msg("elevation lookup failed")
		c.failRun(e.generation, "elevation data is temporarily unavailable")
		return
	}

	p, err := profile.Build(e.samples, e.data.Elevations, e.data.GainMeters)
	if err != nil {
		// The provider answered with the wrong shape. The previous
		// profile stays on screen; a new edit starts over.
		c.logger.Warn().Err(err).Int("samples", len(e.samples)).Msg("profile build failed")
		c.failRun(e.generation, "elevation data did not match the requested samples")
		return
	}

	segments := profile.Segments(p, c.geometry)

	raster, err := c.renderChart(p)
	if err != nil {
		c.logger.Error().Err(err).Msg("chart render failed")
		c.failRun(e.generation, "chart rendering failed")
		return
	}
	c.hover.SetChart(raster, p)

	distanceKm := c.routedKm
	if distanceKm == 0 {
		distanceKm = geo.PathLengthKm(c.geometry)
	}

	c.swap(func(s *Snapshot) {
		s.State = StateIdle
		s.Generation = e.generation
		s.Geometry = c.geometry
		s.Waypoints = c.waypoints
		s.Profile = p
		s.Segments = segments
		s.Stats = Stats{
			Available:  true,
			DistanceKm: distanceKm,
			GainMeters: p.GainMeters,
		}
		s.LastError = ""
		// Surface data from an earlier run describes an earlier path.
		if c.surfaceGen != e.generation {
			s.Surface = nil
		}
	})

	c.logger.Debug().
		Uint64("generation", e.generation).
		Int("samples", p.Len()).
		Float64("distance_km", distanceKm).
		Float64("gain_m", p.GainMeters).
		Msg("profile applied")
}

func (c *Coordinator) onSurface(e surfaceEvent) {
	if e.generation != c.generation || c.runAborted {
		c.logger.Debug().Uint64("generation", e.generation).Msg("dropping superseded surface result")
		return
	}

	if e.err != nil {
		// Surface data is additive; its absence never fails the run.
		c.logger.Debug().Err(e.err).Msg("surface lookup failed")
		return
	}

	if !c.geometryLive {
		// Routing has not settled yet; hold the breakdown until the
		// geometry it describes becomes current.
		c.heldSurface = e.breakdown
		return
	}
	c.applySurface(e.generation, e.breakdown)
}

func (c *Coordinator) applySurface(gen uint64, breakdown *surface.Breakdown) {
	c.surfaceGen = gen
	c.swap(func(s *Snapshot) {
		s.Surface = breakdown
	})
}

func (c *Coordinator) renderChart(p *profile.Profile) (*chart.Raster, error) {
	if c.flags != nil && !c.flags.IsChartExtremaEnabled(c.ctx) {
		return c.renderer.RenderWithoutExtrema(p)
	}
	return c.renderer.Render(p)
}

// failRun ends the run visibly but keeps every previously derived output,
// and keeps later results of this run (surface) welcome.
func (c *Coordinator) failRun(gen uint64, msg string) {
	c.swap(func(s *Snapshot) {
		s.State = StateIdle
		s.Generation = gen
		s.Geometry = c.geometry
		s.Waypoints = c.waypoints
		s.LastError = msg
	})
}

// abortRun ends the run visibly and bars any of its late results.
func (c *Coordinator) abortRun(gen uint64, msg string) {
	c.runAborted = true
	c.heldSurface = nil
	c.failRun(gen, msg)
}

// clearOutputs resets every derived output after an edit left fewer than
// two usable points. Stats become unavailable, which readers must not
// confuse with a zero-length route.
func (c *Coordinator) clearOutputs(gen uint64) {
	c.runAborted = true
	c.heldSurface = nil
	c.surfaceGen = 0
	c.hover.Clear()
	c.swap(func(s *Snapshot) {
		s.State = StateIdle
		s.Generation = gen
		s.Geometry = c.geometry
		s.Waypoints = c.waypoints
		s.Profile = nil
		s.Segments = nil
		s.Surface = nil
		s.Stats = Stats{}
		s.LastError = ""
	})
}
