package route

import "context"

// ListOptions controls route listing.
type ListOptions struct {
	// Limit caps the page size. Zero means the default of 50.
	Limit int
	// Cursor is the route ID returned as NextCursor by a previous page.
	Cursor string

	// RouteType filters by route type when non-empty.
	RouteType string
	// Region filters by exact region when non-empty.
	Region string
	// GeohashPrefix filters to routes whose center geohash starts with
	// the given prefix.
	GeohashPrefix string
	// MinDistanceKm and MaxDistanceKm bound the route length. A zero
	// value leaves the corresponding bound open.
	MinDistanceKm float64
	MaxDistanceKm float64
}

// ListResult is one page of routes.
type ListResult struct {
	Items      []*Route
	NextCursor string
}

// Repository defines the interface for route persistence.
type Repository interface {
	// Get retrieves a route by ID. Returns ErrRouteNotFound if not found.
	Get(ctx context.Context, id string) (*Route, error)

	// List retrieves routes newest first, with filtering and cursor
	// pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// ListAll retrieves every route, newest first. Used by the GeoJSON
	// export and the backfill sweep.
	ListAll(ctx context.Context) ([]*Route, error)

	// Create stores a new route.
	Create(ctx context.Context, rt *Route) error

	// Update rewrites an existing route. Returns ErrRouteNotFound if not
	// found.
	Update(ctx context.Context, rt *Route) error

	// Delete removes a route by ID.
	Delete(ctx context.Context, id string) error
}
