package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/chart"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/routing"
	"github.com/cyclemaps/cyclemaps/internal/surface"
)

// Manager defaults.
const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxSessions   = 500
)

// ErrTooManySessions indicates the session limit has been reached.
var ErrTooManySessions = errors.New("session limit reached")

// ManagerConfig holds configuration for the session registry.
type ManagerConfig struct {
	// Routing, Elevations, Surfaces, and Flags are handed to every
	// coordinator. Elevations and Renderer are required.
	Routing    *routing.Service
	Elevations *elevation.Service
	Surfaces   *surface.Service
	Flags      *featureflags.Service
	Renderer   *chart.Renderer

	// Debounce and MaxSamples tune the coordinators (defaults: 300ms, 80).
	Debounce   time.Duration
	MaxSamples int

	// TTL evicts sessions idle longer than this (default: 30m).
	TTL time.Duration

	// SweepInterval is how often idle sessions are collected (default: 1m).
	SweepInterval time.Duration

	// MaxSessions caps concurrently open sessions (default: 500).
	MaxSessions int

	// Logger for manager operations.
	Logger zerolog.Logger
}

// Manager is the registry of open builder sessions. It evicts sessions
// that have not been edited or read within the TTL.
type Manager struct {
	routing    *routing.Service
	elevations *elevation.Service
	surfaces   *surface.Service
	flags      *featureflags.Service
	renderer   *chart.Renderer

	debounce      time.Duration
	maxSamples    int
	ttl           time.Duration
	sweepInterval time.Duration
	maxSessions   int
	logger        zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*Coordinator

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// OpenOptions configures a new session.
type OpenOptions struct {
	// Seed preloads the session from a saved route (optional).
	Seed *Seed

	// RouteProfile selects the routing mode (default: cycling-regular).
	RouteProfile routing.RouteProfile
}

// NewManager creates the registry and starts its eviction sweep. Callers
// must Shutdown it.
func NewManager(cfg ManagerConfig) *Manager {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = DefaultSweepInterval
	}
	maxSessions := cfg.MaxSessions
	if maxSessions == 0 {
		maxSessions = DefaultMaxSessions
	}

	m := &Manager{
		routing:       cfg.Routing,
		elevations:    cfg.Elevations,
		surfaces:      cfg.Surfaces,
		flags:         cfg.Flags,
		renderer:      cfg.Renderer,
		debounce:      cfg.Debounce,
		maxSamples:    cfg.MaxSamples,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		maxSessions:   maxSessions,
		logger:        cfg.Logger.With().Str("component", "session-manager").Logger(),
		sessions:      make(map[string]*Coordinator),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	go m.sweep()
	return m
}

// Open starts a new session.
func (m *Manager) Open(opts OpenOptions) (*Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		return nil, ErrTooManySessions
	}

	c, err := New(Config{
		RouteProfile: opts.RouteProfile,
		Debounce:     m.debounce,
		MaxSamples:   m.maxSamples,
		Routing:      m.routing,
		Elevations:   m.elevations,
		Surfaces:     m.surfaces,
		Flags:        m.flags,
		Renderer:     m.renderer,
		Logger:       m.logger,
		Seed:         opts.Seed,
	})
	if err != nil {
		return nil, err
	}

	m.sessions[c.ID()] = c
	m.logger.Info().
		Str("session_id", c.ID()).
		Bool("seeded", opts.Seed != nil).
		Int("open_sessions", len(m.sessions)).
		Msg("session opened")
	return c, nil
}

// Get returns an open session by ID.
func (m *Manager) Get(id string) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[id]
	return c, ok
}

// Close removes and stops a session. Returns false when the ID is unknown.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return false
	}
	c.Close()
	m.logger.Info().Str("session_id", id).Msg("session closed")
	return true
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// TTL returns the idle eviction window, reported to clients when a session
// is opened.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Shutdown stops the sweep and closes every open session.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	sessions := make([]*Coordinator, 0, len(m.sessions))
	for _, c := range m.sessions {
		sessions = append(sessions, c)
	}
	m.sessions = make(map[string]*Coordinator)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}

func (m *Manager) sweep() {
	defer close(m.done)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle collects sessions idle past the TTL. Coordinators are closed
// outside the registry lock since Close waits for their loop to exit.
func (m *Manager) evictIdle() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Coordinator
	for id, c := range m.sessions {
		if c.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			expired = append(expired, c)
		}
	}
	m.mu.Unlock()

	for _, c := range expired {
		c.Close()
		m.logger.Debug().Str("session_id", c.ID()).Msg("evicted idle session")
	}
}
