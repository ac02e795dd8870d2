package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// routeColumns is the select list shared by every route query, so scans
// stay aligned with a single column order.
const routeColumns = `
	id, name, description, route_type, region,
	distance_km, elevation_m,
	geometry, waypoints,
	center_lng, center_lat, geohash,
	elevation_profile, surface_data,
	created_at, updated_at`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL route repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a route by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Route, error) {
	query := `SELECT` + routeColumns + ` FROM routes WHERE id = $1`

	rt, err := scanRoute(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return rt, nil
}

// List retrieves routes with filtering and cursor pagination.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, val interface{}) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if opts.RouteType != "" {
		add("route_type = $%d", opts.RouteType)
	}
	if opts.Region != "" {
		add("region = $%d", opts.Region)
	}
	if opts.GeohashPrefix != "" {
		add("geohash LIKE $%d", opts.GeohashPrefix+"%")
	}
	if opts.MinDistanceKm > 0 {
		add("distance_km >= $%d", opts.MinDistanceKm)
	}
	if opts.MaxDistanceKm > 0 {
		add("distance_km <= $%d", opts.MaxDistanceKm)
	}
	if opts.Cursor != "" {
		// Resume strictly after the cursor row in (created_at, id) order.
		// A deleted cursor row compares against NULL and yields no rows.
		add("(created_at, id) < (SELECT created_at, id FROM routes WHERE id = $%d)", opts.Cursor)
	}

	query := `SELECT` + routeColumns + ` FROM routes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, fetchLimit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{Items: routes}
	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}

	return result, nil
}

// ListAll retrieves every route, newest first.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Route, error) {
	query := `SELECT` + routeColumns + ` FROM routes ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []*Route
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return routes, nil
}

// Create stores a new route.
func (r *PostgresRepository) Create(ctx context.Context, rt *Route) error {
	geometry, waypoints, profileJSON, surfaceJSON, err := encodeRouteBlobs(rt)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO routes (
			id, name, description, route_type, region,
			distance_km, elevation_m,
			geometry, waypoints,
			center_lng, center_lat, geohash,
			elevation_profile, surface_data,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.pool.Exec(ctx, query,
		rt.ID, rt.Name, rt.Description, rt.RouteType, rt.Region,
		rt.DistanceKm, rt.ElevationM,
		geometry, waypoints,
		rt.CenterLng, rt.CenterLat, rt.Geohash,
		profileJSON, surfaceJSON,
		rt.CreatedAt, rt.UpdatedAt,
	)
	return err
}

// Update rewrites an existing route.
func (r *PostgresRepository) Update(ctx context.Context, rt *Route) error {
	geometry, waypoints, profileJSON, surfaceJSON, err := encodeRouteBlobs(rt)
	if err != nil {
		return err
	}

	query := `
		UPDATE routes SET
			name = $2, description = $3, route_type = $4, region = $5,
			distance_km = $6, elevation_m = $7,
			geometry = $8, waypoints = $9,
			center_lng = $10, center_lat = $11, geohash = $12,
			elevation_profile = $13, surface_data = $14,
			updated_at = $15
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		rt.ID, rt.Name, rt.Description, rt.RouteType, rt.Region,
		rt.DistanceKm, rt.ElevationM,
		geometry, waypoints,
		rt.CenterLng, rt.CenterLat, rt.Geohash,
		profileJSON, surfaceJSON,
		rt.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRouteNotFound
	}

	return nil
}

// Delete deletes a route by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM routes WHERE id = $1`, id)
	return err
}

// scanRoute scans one route row. pgx.Rows satisfies pgx.Row, so it serves
// both single-row and iterated queries.
func scanRoute(row pgx.Row) (*Route, error) {
	var (
		rt          Route
		geometry    []byte
		waypoints   []byte
		profileJSON []byte
		surfaceJSON []byte
	)

	err := row.Scan(
		&rt.ID, &rt.Name, &rt.Description, &rt.RouteType, &rt.Region,
		&rt.DistanceKm, &rt.ElevationM,
		&geometry, &waypoints,
		&rt.CenterLng, &rt.CenterLat, &rt.Geohash,
		&profileJSON, &surfaceJSON,
		&rt.CreatedAt, &rt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	decodeRouteBlobs(&rt, geometry, waypoints, profileJSON, surfaceJSON)
	return &rt, nil
}

// encodeRouteBlobs serializes the cached JSON columns. Absent fields
// become NULL.
func encodeRouteBlobs(rt *Route) (geometry, waypoints, profileJSON, surfaceJSON []byte, err error) {
	if len(rt.Geometry) > 0 {
		geometry, err = geojson.NewGeometry(rt.Geometry).MarshalJSON()
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding geometry: %w", err)
		}
	}
	if len(rt.Waypoints) > 0 {
		pts := make([][]float64, len(rt.Waypoints))
		for i, p := range rt.Waypoints {
			pts[i] = []float64{p[0], p[1]}
		}
		waypoints, err = json.Marshal(pts)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding waypoints: %w", err)
		}
	}
	if rt.Profile != nil {
		profileJSON, err = json.Marshal(rt.Profile)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding elevation profile: %w", err)
		}
	}
	if rt.Surface != nil {
		surfaceJSON, err = json.Marshal(rt.Surface)
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encoding surface data: %w", err)
		}
	}
	return geometry, waypoints, profileJSON, surfaceJSON, nil
}

// decodeRouteBlobs deserializes the cached JSON columns. A blob that fails
// to parse degrades to an absent field rather than failing the row; readers
// treat missing geometry or profile as not yet derived.
func decodeRouteBlobs(rt *Route, geometry, waypoints, profileJSON, surfaceJSON []byte) {
	if len(geometry) > 0 {
		if g, err := geojson.UnmarshalGeometry(geometry); err == nil {
			if ls, ok := g.Geometry().(orb.LineString); ok {
				rt.Geometry = ls
			}
		}
	}
	if len(waypoints) > 0 {
		var pts [][]float64
		if err := json.Unmarshal(waypoints, &pts); err == nil {
			rt.Waypoints = make([]orb.Point, 0, len(pts))
			for _, p := range pts {
				if len(p) >= 2 {
					rt.Waypoints = append(rt.Waypoints, orb.Point{p[0], p[1]})
				}
			}
		}
	}
	if len(profileJSON) > 0 {
		var sp StoredProfile
		if err := json.Unmarshal(profileJSON, &sp); err == nil {
			rt.Profile = &sp
		}
	}
	if len(surfaceJSON) > 0 {
		var shares []SurfaceShare
		if err := json.Unmarshal(surfaceJSON, &shares); err == nil {
			rt.Surface = shares
		}
	}
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
