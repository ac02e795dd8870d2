package route

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/events"
	"github.com/cyclemaps/cyclemaps/internal/profile"
	"github.com/cyclemaps/cyclemaps/pkg/geo"
)

// Validation constants.
const (
	MaxNameLength        = 120
	MaxDescriptionLength = 2000
	MaxRegionLength      = 80
)

// GeohashPrecision is the encoding precision for route centers, about
// 150 m per cell.
const GeohashPrecision = 7

// Service provides route operations.
type Service struct {
	repo     Repository
	profiler *Profiler
	events   events.Publisher
	logger   zerolog.Logger
}

// ServiceConfig holds configuration for creating a route service.
type ServiceConfig struct {
	Repository Repository

	// Profiler re-derives elevation profiles when the cached one is
	// unusable. Optional; without it such reads fail.
	Profiler *Profiler

	// Events receives route change notifications. Optional.
	Events events.Publisher

	Logger zerolog.Logger
}

// NewService creates a new route service.
func NewService(cfg ServiceConfig) *Service {
	ev := cfg.Events
	if ev == nil {
		ev = events.NoopPublisher{}
	}

	return &Service{
		repo:     cfg.Repository,
		profiler: cfg.Profiler,
		events:   ev,
		logger:   cfg.Logger.With().Str("component", "route-service").Logger(),
	}
}

// List retrieves a page of routes.
func (s *Service) List(ctx context.Context, opts ListOptions) (*models.PagedRoutes, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 200 {
		opts.Limit = 200
	}

	result, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	items := make([]models.Route, 0, len(result.Items))
	for _, rt := range result.Items {
		items = append(items, s.toAPIRoute(rt))
	}

	var nextCursor *string
	if result.NextCursor != "" {
		nextCursor = &result.NextCursor
	}

	return &models.PagedRoutes{
		Items: items,
		Meta: models.PagedResponseMeta{
			Limit:      opts.Limit,
			NextCursor: nextCursor,
		},
	}, nil
}

// Get retrieves a route by ID.
func (s *Service) Get(ctx context.Context, id string) (*models.Route, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := s.toAPIRoute(rt)
	return &result, nil
}

// Create creates a new route. Supplied profile and surface payloads are
// cached verbatim, even when structurally invalid; reads re-derive and the
// backfill worker repairs them.
func (s *Service) Create(ctx context.Context, input *models.RouteCreateRequest) (*models.Route, error) {
	geometry, waypoints, fieldErrors := parseGeometryInput(input.Geometry, input.Waypoints)
	fieldErrors = append(fieldErrors, s.validateCreateInput(input)...)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now()
	rt := &Route{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		RouteType:   input.RouteType,
		Region:      input.Region,
		DistanceKm:  input.DistanceKm,
		ElevationM:  input.ElevationM,
		Geometry:    geometry,
		Waypoints:   waypoints,
		Profile:     storedProfileFromAPI(input.ElevationProfile),
		Surface:     surfaceFromAPI(input.SurfaceData),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rt.RouteType == "" {
		rt.RouteType = TypeRoad
	}
	deriveComputedFields(rt)

	if err := s.repo.Create(ctx, rt); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeRouteSaved, rt.ID)

	result := s.toAPIRoute(rt)
	return &result, nil
}

// Update updates an existing route.
func (s *Service) Update(ctx context.Context, id string, input *models.RouteUpdateRequest) (*models.Route, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	geometry, waypoints, fieldErrors := parseGeometryInput(input.Geometry, input.Waypoints)
	fieldErrors = append(fieldErrors, s.validateUpdateInput(input)...)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	if input.Name != nil {
		rt.Name = *input.Name
	}
	if input.Description != nil {
		rt.Description = *input.Description
	}
	if input.RouteType != nil {
		rt.RouteType = *input.RouteType
	}
	if input.Region != nil {
		rt.Region = *input.Region
	}
	if input.DistanceKm != nil {
		rt.DistanceKm = *input.DistanceKm
	}
	if input.ElevationM != nil {
		rt.ElevationM = *input.ElevationM
	}
	if input.Geometry != nil {
		rt.Geometry = geometry
		// The old derived values describe the old path. Drop whatever the
		// request did not resupply and let derivation or the worker refill.
		if input.DistanceKm == nil {
			rt.DistanceKm = 0
		}
		if input.ElevationM == nil {
			rt.ElevationM = 0
		}
		if input.ElevationProfile == nil {
			rt.Profile = nil
		}
		if input.SurfaceData == nil {
			rt.Surface = nil
		}
	}
	if input.Waypoints != nil {
		rt.Waypoints = waypoints
	}
	if input.ElevationProfile != nil {
		rt.Profile = storedProfileFromAPI(input.ElevationProfile)
	}
	if input.SurfaceData != nil {
		rt.Surface = surfaceFromAPI(input.SurfaceData)
	}
	deriveComputedFields(rt)
	rt.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, rt); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeRouteSaved, rt.ID)

	result := s.toAPIRoute(rt)
	return &result, nil
}

// Delete deletes a route.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.publish(ctx, events.TypeRouteDeleted, id)
	return nil
}

// Profile returns the route's elevation profile: the cached one when it is
// structurally usable, otherwise a live re-derivation over the stored
// geometry. Live results are not written back; the backfill worker repairs
// the record.
func (s *Service) Profile(ctx context.Context, id string) (*profile.Profile, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.profileFor(ctx, rt)
}

// ProfileWithGeometry returns the profile together with the stored
// geometry, for rendering the gradient overlay.
func (s *Service) ProfileWithGeometry(ctx context.Context, id string) (*profile.Profile, orb.LineString, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.profileFor(ctx, rt)
	if err != nil {
		return nil, nil, err
	}
	return p, rt.Geometry, nil
}

func (s *Service) profileFor(ctx context.Context, rt *Route) (*profile.Profile, error) {
	if rt.Profile.Valid() {
		if p, err := rt.Profile.ToProfile(); err == nil {
			return p, nil
		}
	}

	if len(rt.Geometry) < 2 {
		return nil, profile.ErrInsufficientGeometry
	}
	if s.profiler == nil {
		return nil, ErrInvalidProfile
	}

	s.logger.Debug().Str("route_id", rt.ID).Msg("cached profile unusable, deriving live")
	return s.profiler.Derive(ctx, rt.Geometry)
}

// GPX renders the route as a GPX track.
func (s *Service) GPX(ctx context.Context, id string) ([]byte, error) {
	rt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rt.Geometry) < 2 {
		return nil, profile.ErrInsufficientGeometry
	}

	return ToGPX(rt)
}

// GeoJSON exports all routes as a FeatureCollection. Routes whose stored
// geometry is absent or unusable are skipped, not fatal.
func (s *Service) GeoJSON(ctx context.Context) (*geojson.FeatureCollection, error) {
	routes, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, rt := range routes {
		if len(rt.Geometry) < 2 {
			continue
		}

		f := geojson.NewFeature(rt.Geometry)
		f.ID = rt.ID
		f.Properties["id"] = rt.ID
		f.Properties["name"] = rt.Name
		f.Properties["routeType"] = rt.RouteType
		if rt.Region != "" {
			f.Properties["region"] = rt.Region
		}
		f.Properties["distanceKm"] = rt.DistanceKm
		f.Properties["elevationM"] = rt.ElevationM
		fc.Append(f)
	}

	return fc, nil
}

// publish sends a route event. Failures are logged, not returned; the
// worker's periodic sweep covers missed events.
func (s *Service) publish(ctx context.Context, eventType, routeID string) {
	err := s.events.Publish(ctx, events.RouteEvent{
		Type:       eventType,
		RouteID:    routeID,
		OccurredAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("type", eventType).
			Str("route_id", routeID).
			Msg("event publish failed")
	}
}

// validateCreateInput validates the create route input.
func (s *Service) validateCreateInput(input *models.RouteCreateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name == "" {
		errs = append(errs, models.FieldError{Field: "name", Message: "is required"})
	} else if len(input.Name) > MaxNameLength {
		errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 120 characters"})
	}

	if len(input.Description) > MaxDescriptionLength {
		errs = append(errs, models.FieldError{Field: "description", Message: "must be at most 2000 characters"})
	}

	if input.RouteType != "" && !IsValidType(input.RouteType) {
		errs = append(errs, models.FieldError{Field: "routeType", Message: "must be one of road, gravel, mtb"})
	}

	if len(input.Region) > MaxRegionLength {
		errs = append(errs, models.FieldError{Field: "region", Message: "must be at most 80 characters"})
	}

	if input.DistanceKm < 0 {
		errs = append(errs, models.FieldError{Field: "distanceKm", Message: "must not be negative"})
	}
	if input.ElevationM < 0 {
		errs = append(errs, models.FieldError{Field: "elevationM", Message: "must not be negative"})
	}

	return errs
}

// validateUpdateInput validates the update route input.
func (s *Service) validateUpdateInput(input *models.RouteUpdateRequest) []models.FieldError {
	var errs []models.FieldError

	if input.Name != nil {
		if *input.Name == "" {
			errs = append(errs, models.FieldError{Field: "name", Message: "cannot be empty"})
		} else if len(*input.Name) > MaxNameLength {
			errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 120 characters"})
		}
	}

	if input.Description != nil && len(*input.Description) > MaxDescriptionLength {
		errs = append(errs, models.FieldError{Field: "description", Message: "must be at most 2000 characters"})
	}

	if input.RouteType != nil && !IsValidType(*input.RouteType) {
		errs = append(errs, models.FieldError{Field: "routeType", Message: "must be one of road, gravel, mtb"})
	}

	if input.Region != nil && len(*input.Region) > MaxRegionLength {
		errs = append(errs, models.FieldError{Field: "region", Message: "must be at most 80 characters"})
	}

	if input.DistanceKm != nil && *input.DistanceKm < 0 {
		errs = append(errs, models.FieldError{Field: "distanceKm", Message: "must not be negative"})
	}
	if input.ElevationM != nil && *input.ElevationM < 0 {
		errs = append(errs, models.FieldError{Field: "elevationM", Message: "must not be negative"})
	}

	return errs
}

// parseGeometryInput converts request geometry and waypoints to orb types.
// A geometry of the wrong GeoJSON type is a field error, not a failure.
func parseGeometryInput(g *geojson.Geometry, wps [][]float64) (orb.LineString, []orb.Point, []models.FieldError) {
	var errs []models.FieldError

	var line orb.LineString
	if g != nil {
		if ls, ok := g.Geometry().(orb.LineString); ok {
			line = ls
		} else {
			errs = append(errs, models.FieldError{Field: "geometry", Message: "must be a GeoJSON LineString"})
		}
	}

	var waypoints []orb.Point
	for _, wp := range wps {
		if len(wp) < 2 {
			errs = append(errs, models.FieldError{Field: "waypoints", Message: "entries must be [lng, lat] pairs"})
			break
		}
		waypoints = append(waypoints, orb.Point{wp[0], wp[1]})
	}

	return line, waypoints, errs
}

// deriveComputedFields fills center, geohash, and zero-valued distance and
// climb from the data at hand. Supplied non-zero values are kept.
func deriveComputedFields(rt *Route) {
	if len(rt.Geometry) > 0 {
		center := geo.Center(rt.Geometry)
		rt.CenterLng = center[0]
		rt.CenterLat = center[1]
		rt.Geohash = geohash.EncodeWithPrecision(center[1], center[0], GeohashPrecision)

		if rt.DistanceKm == 0 {
			rt.DistanceKm = geo.PathLengthKm(rt.Geometry)
		}
	}
	if rt.ElevationM == 0 && rt.Profile.Valid() {
		rt.ElevationM = rt.Profile.GainM
	}
}

// toAPIRoute converts a domain Route to an API Route.
func (s *Service) toAPIRoute(rt *Route) models.Route {
	out := models.Route{
		ID:          rt.ID,
		Name:        rt.Name,
		Description: rt.Description,
		RouteType:   rt.RouteType,
		Region:      rt.Region,
		DistanceKm:  rt.DistanceKm,
		ElevationM:  rt.ElevationM,
		CenterLng:   rt.CenterLng,
		CenterLat:   rt.CenterLat,
		Geohash:     rt.Geohash,
		CreatedAt:   models.Timestamp(rt.CreatedAt),
		UpdatedAt:   models.Timestamp(rt.UpdatedAt),
	}

	if len(rt.Geometry) > 0 {
		out.Geometry = geojson.NewGeometry(rt.Geometry)
	}
	if len(rt.Waypoints) > 0 {
		out.Waypoints = make([][]float64, len(rt.Waypoints))
		for i, p := range rt.Waypoints {
			out.Waypoints[i] = []float64{p[0], p[1]}
		}
	}
	if rt.Profile != nil {
		out.ElevationProfile = &models.ElevationProfile{
			Elevations:  rt.Profile.Elevations,
			DistancesKm: rt.Profile.DistancesKm,
			Coordinates: rt.Profile.Coordinates,
			Indices:     rt.Profile.Indices,
			GainM:       rt.Profile.GainM,
		}
	}
	if len(rt.Surface) > 0 {
		out.SurfaceData = make([]models.SurfaceShare, len(rt.Surface))
		for i, sh := range rt.Surface {
			out.SurfaceData[i] = models.SurfaceShare{Surface: sh.Surface, Percent: sh.Percent}
		}
	}

	return out
}

// ProfileToAPI converts a built profile to its API shape.
func ProfileToAPI(p *profile.Profile) *models.ElevationProfile {
	out := &models.ElevationProfile{
		Elevations:  p.Elevations,
		DistancesKm: p.Distances,
		Coordinates: make([][]float64, len(p.Coords)),
		Indices:     p.Indices,
		GainM:       p.GainMeters,
	}
	for i, c := range p.Coords {
		out.Coordinates[i] = []float64{c[0], c[1]}
	}
	return out
}

// ProfileFromAPI converts a cached API profile payload back into a built
// profile. Returns nil when the payload is absent or structurally invalid,
// so callers fall through to live derivation.
func ProfileFromAPI(in *models.ElevationProfile) *profile.Profile {
	sp := storedProfileFromAPI(in)
	if sp == nil || !sp.Valid() {
		return nil
	}
	p, err := sp.ToProfile()
	if err != nil {
		return nil
	}
	return p
}

func storedProfileFromAPI(in *models.ElevationProfile) *StoredProfile {
	if in == nil {
		return nil
	}
	return &StoredProfile{
		Elevations:  in.Elevations,
		DistancesKm: in.DistancesKm,
		Coordinates: in.Coordinates,
		Indices:     in.Indices,
		GainM:       in.GainM,
	}
}

func surfaceFromAPI(in []models.SurfaceShare) []SurfaceShare {
	if in == nil {
		return nil
	}
	out := make([]SurfaceShare, len(in))
	for i, sh := range in {
		out[i] = SurfaceShare{Surface: sh.Surface, Percent: sh.Percent}
	}
	return out
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
