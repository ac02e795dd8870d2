package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/api/response"
	"github.com/cyclemaps/cyclemaps/internal/profile"
	"github.com/cyclemaps/cyclemaps/internal/route"
	"github.com/cyclemaps/cyclemaps/internal/routing"
	"github.com/cyclemaps/cyclemaps/internal/session"
)

// SessionHandler handles builder-session endpoints. A session wraps one
// FetchCoordinator; edits are accepted immediately and resolved through the
// debounced pipeline, so mutating endpoints answer 202 with the snapshot as
// it stands.
type SessionHandler struct {
	sessions *session.Manager
	routes   *route.Service
}

// NewSessionHandler creates a new SessionHandler. routes may be nil when
// seeding from saved routes is not wanted.
func NewSessionHandler(sessions *session.Manager, routes *route.Service) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		routes:   routes,
	}
}

// Open handles POST /v1/sessions - open a builder session.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var input models.SessionOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	routeProfile, ok := routingProfileFor(input.RouteType)
	if !ok {
		response.BadRequest(w, r, "invalid route type", []models.FieldError{
			{Field: "routeType", Message: "must be one of road, gravel, mtb"},
		})
		return
	}

	var seed *session.Seed
	if input.RouteID != "" {
		if h.routes == nil {
			response.BadRequest(w, r, "seeding from saved routes is not available", nil)
			return
		}
		rt, err := h.routes.Get(r.Context(), input.RouteID)
		if err != nil {
			if errors.Is(err, route.ErrRouteNotFound) {
				response.NotFound(w, r, "route not found")
				return
			}
			response.InternalError(w, r, "failed to load route")
			return
		}
		seed = seedFromRoute(rt)
	}

	c, err := h.sessions.Open(session.OpenOptions{Seed: seed, RouteProfile: routeProfile})
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			response.ServiceUnavailable(w, r, "session capacity reached, try again later")
			return
		}
		response.InternalError(w, r, "failed to open session")
		return
	}

	// A seeded route whose cached profile was unusable still has geometry
	// worth showing; push it through the live pipeline.
	if seed != nil && seed.Profile == nil && len(seed.Geometry) >= 2 {
		c.EditGeometry(seed.Geometry)
	}

	out := sessionModel(c.ID(), c.Snapshot())
	out.TTLSeconds = int(h.sessions.TTL().Seconds())
	response.Created(w, r, "/v1/sessions/"+c.ID(), out)
}

// Get handles GET /v1/sessions/{sessionID} - the current snapshot.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	response.JSON(w, r, http.StatusOK, sessionModel(c.ID(), c.Snapshot()))
}

// Waypoints handles PUT /v1/sessions/{sessionID}/waypoints - a waypoint edit.
func (h *SessionHandler) Waypoints(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}

	var input models.SessionWaypointsRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	waypoints := make([]orb.Point, 0, len(input.Waypoints))
	for i, wp := range input.Waypoints {
		if len(wp) != 2 {
			response.BadRequest(w, r, "invalid waypoints", []models.FieldError{
				{Field: "waypoints[" + strconv.Itoa(i) + "]", Message: "must be a [lng, lat] pair"},
			})
			return
		}
		waypoints = append(waypoints, orb.Point{wp[0], wp[1]})
	}

	c.EditWaypoints(waypoints)
	response.Accepted(w, r, sessionModel(c.ID(), c.Snapshot()))
}

// Geometry handles PUT /v1/sessions/{sessionID}/geometry - a direct geometry
// edit for imported or hand-drawn paths.
func (h *SessionHandler) Geometry(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}

	var input models.SessionGeometryRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Geometry == nil {
		response.BadRequest(w, r, "geometry is required", []models.FieldError{
			{Field: "geometry", Message: "required"},
		})
		return
	}
	line, ok := input.Geometry.Geometry().(orb.LineString)
	if !ok {
		response.BadRequest(w, r, "geometry must be a LineString", []models.FieldError{
			{Field: "geometry", Message: "must be a GeoJSON LineString"},
		})
		return
	}

	c.EditGeometry(line)
	response.Accepted(w, r, sessionModel(c.ID(), c.Snapshot()))
}

// Chart handles GET /v1/sessions/{sessionID}/chart.png - the cached base
// raster of the session's elevation chart.
func (h *SessionHandler) Chart(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}

	raster := c.BaseRaster()
	if raster == nil {
		response.NotFound(w, r, "session has no chart yet")
		return
	}
	response.PNG(w, r, raster.Img)
}

// Hover handles GET /v1/sessions/{sessionID}/hover - hover info for a chart
// position. Answers 204 when the position is outside the plot area.
func (h *SessionHandler) Hover(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}

	x, y, ok := hoverPosition(w, r)
	if !ok {
		return
	}

	_, info, ok := c.Hover(x, y)
	if !ok {
		response.NoContent(w, r)
		return
	}

	response.JSON(w, r, http.StatusOK, models.HoverInfo{
		Index:        info.Index,
		DistanceKm:   info.DistanceKm,
		ElevationM:   info.ElevationM,
		GradePercent: info.GradePercent,
		Coordinate:   []float64{info.Coordinate[0], info.Coordinate[1]},
	})
}

// HoverImage handles GET /v1/sessions/{sessionID}/hover.png - the chart with
// the crosshair and tooltip composited at the given position. Positions
// outside the plot area serve the plain base chart.
func (h *SessionHandler) HoverImage(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}

	x, y, ok := hoverPosition(w, r)
	if !ok {
		return
	}

	img, _, ok := c.Hover(x, y)
	if !ok {
		raster := c.BaseRaster()
		if raster == nil {
			response.NotFound(w, r, "session has no chart yet")
			return
		}
		response.PNG(w, r, raster.Img)
		return
	}
	response.PNG(w, r, img)
}

// HoverLeave handles DELETE /v1/sessions/{sessionID}/hover - pointer leave,
// restoring the base chart.
func (h *SessionHandler) HoverLeave(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	c.HoverLeave()
	response.NoContent(w, r)
}

// Close handles DELETE /v1/sessions/{sessionID}.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !h.sessions.Close(id) {
		response.NotFound(w, r, "session not found or expired")
		return
	}
	response.NoContent(w, r)
}

// session resolves the session from the URL, writing a 404 when it is gone.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) *session.Coordinator {
	id := chi.URLParam(r, "sessionID")
	c, ok := h.sessions.Get(id)
	if !ok {
		response.NotFound(w, r, "session not found or expired")
		return nil
	}
	return c
}

// hoverPosition parses the x and y query parameters.
func hoverPosition(w http.ResponseWriter, r *http.Request) (x, y float64, ok bool) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		response.BadRequest(w, r, "x and y query parameters are required", []models.FieldError{
			{Field: "x", Message: "must be a number"},
			{Field: "y", Message: "must be a number"},
		})
		return 0, 0, false
	}
	return x, y, true
}

// routingProfileFor maps the route type vocabulary onto routing profiles.
func routingProfileFor(routeType string) (routing.RouteProfile, bool) {
	switch routeType {
	case "":
		return "", true
	case route.TypeRoad:
		return routing.ProfileBikeRoad, true
	case route.TypeGravel:
		return routing.ProfileBike, true
	case route.TypeMTB:
		return routing.ProfileBikeMountain, true
	}
	return "", false
}

// seedFromRoute builds a session seed from a saved route. Geometry that
// fails to parse and profiles that fail the structural check are dropped;
// the session then derives live instead of rendering bad data.
func seedFromRoute(rt *models.Route) *session.Seed {
	seed := &session.Seed{}
	if rt.Geometry != nil {
		if line, ok := rt.Geometry.Geometry().(orb.LineString); ok {
			seed.Geometry = line
		}
	}
	for _, wp := range rt.Waypoints {
		if len(wp) == 2 {
			seed.Waypoints = append(seed.Waypoints, orb.Point{wp[0], wp[1]})
		}
	}
	seed.Profile = route.ProfileFromAPI(rt.ElevationProfile)
	return seed
}

// sessionModel converts a snapshot to its API shape.
func sessionModel(id string, snap session.Snapshot) models.Session {
	out := models.Session{
		ID:         id,
		State:      string(snap.State),
		Generation: snap.Generation,
		Stats: models.SessionStats{
			Available:  snap.Stats.Available,
			DistanceKm: snap.Stats.DistanceKm,
			GainM:      snap.Stats.GainMeters,
		},
		Error:     snap.LastError,
		UpdatedAt: models.Timestamp(snap.UpdatedAt),
	}
	if len(snap.Geometry) > 0 {
		out.Geometry = geojson.NewGeometry(snap.Geometry)
	}
	if len(snap.Segments) > 0 {
		out.Overlay = overlayFeatureCollection(snap.Segments)
	}
	if snap.Surface != nil {
		out.Surface = make([]models.SurfaceShare, len(snap.Surface.Shares))
		for i, sh := range snap.Surface.Shares {
			out.Surface[i] = models.SurfaceShare{
				Surface: string(sh.Surface),
				Percent: sh.Percent,
			}
		}
	}
	return out
}

// overlayFeatureCollection converts grade segments to a FeatureCollection
// with grade and color properties per feature.
func overlayFeatureCollection(segments []profile.GradeSegment) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, seg := range segments {
		f := geojson.NewFeature(seg.Geometry)
		f.Properties["grade"] = seg.Grade
		f.Properties["color"] = seg.ColorHex()
		fc.Append(f)
	}
	return fc
}
