package route

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	routes map[string]*Route
}

// NewInMemoryRepository creates a new in-memory route repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		routes: make(map[string]*Route),
	}
}

// Get retrieves a route by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[id]
	if !ok {
		return nil, ErrRouteNotFound
	}

	// Return a copy
	cpy := *rt
	return &cpy, nil
}

// List retrieves routes with filtering and cursor pagination.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []*Route
	for _, rt := range r.routes {
		if routeMatches(rt, opts) {
			cpy := *rt
			routes = append(routes, &cpy)
		}
	}
	sortNewestFirst(routes)

	if opts.Cursor != "" {
		// Resume after the cursor row. An unknown cursor yields an empty
		// page, matching the SQL comparison against a deleted row.
		at := -1
		for i, rt := range routes {
			if rt.ID == opts.Cursor {
				at = i
				break
			}
		}
		routes = routes[at+1:]
		if at < 0 {
			routes = nil
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	result := &ListResult{Items: routes}
	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}

	return result, nil
}

// ListAll retrieves every route, newest first.
func (r *InMemoryRepository) ListAll(_ context.Context) ([]*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make([]*Route, 0, len(r.routes))
	for _, rt := range r.routes {
		cpy := *rt
		routes = append(routes, &cpy)
	}
	sortNewestFirst(routes)

	return routes, nil
}

// Create stores a new route.
func (r *InMemoryRepository) Create(_ context.Context, rt *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *rt
	r.routes[rt.ID] = &cpy
	return nil
}

// Update rewrites an existing route.
func (r *InMemoryRepository) Update(_ context.Context, rt *Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[rt.ID]; !ok {
		return ErrRouteNotFound
	}

	cpy := *rt
	r.routes[rt.ID] = &cpy
	return nil
}

// Delete deletes a route by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.routes, id)
	return nil
}

func routeMatches(rt *Route, opts ListOptions) bool {
	if opts.RouteType != "" && rt.RouteType != opts.RouteType {
		return false
	}
	if opts.Region != "" && rt.Region != opts.Region {
		return false
	}
	if opts.GeohashPrefix != "" && !strings.HasPrefix(rt.Geohash, opts.GeohashPrefix) {
		return false
	}
	if opts.MinDistanceKm > 0 && rt.DistanceKm < opts.MinDistanceKm {
		return false
	}
	if opts.MaxDistanceKm > 0 && rt.DistanceKm > opts.MaxDistanceKm {
		return false
	}
	return true
}

// sortNewestFirst orders like the Postgres queries: created_at descending
// with ID as the tiebreak.
func sortNewestFirst(routes []*Route) {
	sort.Slice(routes, func(i, j int) bool {
		if !routes[i].CreatedAt.Equal(routes[j].CreatedAt) {
			return routes[i].CreatedAt.After(routes[j].CreatedAt)
		}
		return routes[i].ID > routes[j].ID
	})
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
