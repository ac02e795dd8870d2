package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclemaps/cyclemaps/internal/api"
	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/chart"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/route"
	"github.com/cyclemaps/cyclemaps/internal/routing"
	"github.com/cyclemaps/cyclemaps/internal/session"
	"github.com/cyclemaps/cyclemaps/internal/surface"
)

// stubElevationProvider returns one rising reading per coordinate.
type stubElevationProvider struct{}

func (stubElevationProvider) FetchElevations(_ context.Context, coords orb.LineString) (*elevation.Samples, error) {
	elevations := make([]*float64, len(coords))
	for i := range elevations {
		v := 50.0 + float64(i)*5
		elevations[i] = &v
	}
	return &elevation.Samples{
		Elevations: elevations,
		Provider:   "test",
		FetchedAt:  time.Now(),
	}, nil
}

func (stubElevationProvider) Name() string { return "test" }

// stubRoutingProvider routes straight through the waypoints.
type stubRoutingProvider struct{}

func (stubRoutingProvider) GetDirections(_ context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	line := make(orb.LineString, len(req.Waypoints))
	copy(line, req.Waypoints)
	return &routing.DirectionsResponse{
		Geometry:       line,
		DistanceMeters: 1000,
		Provider:       "test",
		FetchedAt:      time.Now(),
	}, nil
}

func (stubRoutingProvider) Name() string { return "test" }

func (stubRoutingProvider) SupportedProfiles() []routing.RouteProfile {
	return []routing.RouteProfile{routing.ProfileBike}
}

type stubSurfaceProvider struct{}

func (stubSurfaceProvider) GetBreakdown(_ context.Context, _ routing.RouteProfile, _ []orb.Point) (*surface.Breakdown, error) {
	return &surface.Breakdown{
		Shares: []surface.Share{
			{Surface: surface.SurfaceAsphalt, DistanceMeters: 600, Percent: 60},
			{Surface: surface.SurfaceGravel, DistanceMeters: 400, Percent: 40},
		},
		Dominant:       surface.SurfaceAsphalt,
		DistanceMeters: 1000,
	}, nil
}

func (stubSurfaceProvider) Name() string { return "test" }

func testGeometry() *geojson.Geometry {
	return geojson.NewGeometry(orb.LineString{
		{4.9041, 52.3676}, {5.0100, 52.2300}, {5.1214, 52.0907},
	})
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)

	elevations := elevation.NewService(elevation.ServiceConfig{
		Provider: stubElevationProvider{},
		Logger:   logger,
	})
	routings := routing.NewService(routing.ServiceConfig{
		Provider: stubRoutingProvider{},
		Logger:   logger,
	})
	surfaces := surface.NewService(surface.ServiceConfig{
		Provider: stubSurfaceProvider{},
		Logger:   logger,
	})
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})

	renderer, err := chart.NewRenderer(chart.Options{})
	require.NoError(t, err)

	routes := route.NewService(route.ServiceConfig{
		Repository: route.NewInMemoryRepository(),
		Profiler: route.NewProfiler(route.ProfilerConfig{
			Elevations: elevations,
			Logger:     logger,
		}),
		Logger: logger,
	})

	sessions := session.NewManager(session.ManagerConfig{
		Routing:    routings,
		Elevations: elevations,
		Surfaces:   surfaces,
		Flags:      flags,
		Renderer:   renderer,
		Debounce:   20 * time.Millisecond,
		Logger:     logger,
	})
	t.Cleanup(sessions.Shutdown)

	return api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2024-01-01T00:00:00Z",
		Logger:             logger,
		RouteService:       routes,
		SessionManager:     sessions,
		ElevationService:   elevations,
		FeatureFlagService: flags,
		Renderer:           renderer,
	})
}

// createTestRoute saves a route with geometry and returns its ID.
func createTestRoute(t *testing.T, router http.Handler) string {
	t.Helper()

	input := models.RouteCreateRequest{
		Name:      "Amstel loop",
		RouteType: "gravel",
		Region:    "amsterdam",
		Geometry:  testGeometry(),
		Waypoints: [][]float64{{4.9041, 52.3676}, {5.1214, 52.0907}},
	}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Route
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

// openTestSession opens a builder session and returns its ID.
func openTestSession(t *testing.T, router http.Handler, body string) string {
	t.Helper()

	var rd io.Reader = http.NoBody
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var opened models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opened))
	require.NotEmpty(t, opened.ID)
	return opened.ID
}

// getSession fetches the session snapshot.
func getSession(t *testing.T, router http.Handler, id string) models.Session {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

// waitForStats polls the session until its profile stats become available.
func waitForStats(t *testing.T, router http.Handler, id string) models.Session {
	t.Helper()
	require.Eventually(t, func() bool {
		return getSession(t, router, id).Stats.Available
	}, 2*time.Second, 10*time.Millisecond)
	return getSession(t, router, id)
}

func TestRouter_HealthCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_SystemStatus(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	err := json.Unmarshal(w.Body.Bytes(), &status)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.NotEmpty(t, status.Subsystems)
	assert.Empty(t, status.ActiveDegradationFlags)
}

func TestRouter_CreateRoute(t *testing.T) {
	router := newTestRouter(t)

	input := models.RouteCreateRequest{
		Name:     "Amstel loop",
		Geometry: testGeometry(),
	}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("Location"))

	var created models.Route
	err := json.Unmarshal(w.Body.Bytes(), &created)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Amstel loop", created.Name)
	assert.Greater(t, created.DistanceKm, 0.0, "distance derives from geometry")
	assert.NotEmpty(t, created.Geohash)
}

func TestRouter_CreateRoute_ValidationError(t *testing.T) {
	router := newTestRouter(t)

	input := models.RouteCreateRequest{RouteType: "unicycle"}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.NotEmpty(t, problem.Errors)
	assert.NotEmpty(t, problem.TraceID)
}

func TestRouter_GetRoute(t *testing.T) {
	router := newTestRouter(t)
	id := createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/"+id, http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var rt models.Route
	err := json.Unmarshal(w.Body.Bytes(), &rt)
	require.NoError(t, err)

	assert.Equal(t, id, rt.ID)
	assert.NotNil(t, rt.Geometry)
}

func TestRouter_GetRoute_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/rt_missing", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeNotFound, problem.Type)
}

func TestRouter_ListRoutes(t *testing.T) {
	router := newTestRouter(t)
	createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes?type=gravel", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var page models.PagedRoutes
	err := json.Unmarshal(w.Body.Bytes(), &page)
	require.NoError(t, err)

	assert.NotEmpty(t, page.Items)
	assert.NotZero(t, page.Meta.Limit)
}

func TestRouter_ListRoutes_InvalidType(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes?type=unicycle", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
}

func TestRouter_UpdateRoute(t *testing.T) {
	router := newTestRouter(t)
	id := createTestRoute(t, router)

	name := "Renamed loop"
	input := models.RouteUpdateRequest{Name: &name}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/v1/routes/"+id, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var rt models.Route
	err := json.Unmarshal(w.Body.Bytes(), &rt)
	require.NoError(t, err)

	assert.Equal(t, "Renamed loop", rt.Name)
}

func TestRouter_DeleteRoute(t *testing.T) {
	router := newTestRouter(t)
	id := createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodDelete, "/v1/routes/"+id, http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/routes/"+id, http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RoutesGeoJSON(t *testing.T) {
	router := newTestRouter(t)
	createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/geojson", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	err := json.Unmarshal(w.Body.Bytes(), &fc)
	require.NoError(t, err)

	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.NotEmpty(t, fc.Features)
}

func TestRouter_RouteProfile(t *testing.T) {
	router := newTestRouter(t)
	id := createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/"+id+"/profile", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))

	var p models.ElevationProfile
	err := json.Unmarshal(w.Body.Bytes(), &p)
	require.NoError(t, err)

	assert.Len(t, p.Elevations, 3)
	assert.Len(t, p.DistancesKm, 3)
	assert.Equal(t, 0.0, p.DistancesKm[0])
	assert.Equal(t, 10.0, p.GainM, "stub climbs 5m per sample")
}

func TestRouter_RouteProfile_NoGeometry(t *testing.T) {
	router := newTestRouter(t)

	input := models.RouteCreateRequest{Name: "Bare route"}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Route
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodGet, "/v1/routes/"+created.ID+"/profile", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeUnprocessable, problem.Type)
}

func TestRouter_RouteChart(t *testing.T) {
	router := newTestRouter(t)
	id := createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/"+id+"/chart.png", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, chart.DefaultWidth, img.Bounds().Dx())
	assert.Equal(t, chart.DefaultHeight, img.Bounds().Dy())
}

func TestRouter_RouteGPX(t *testing.T) {
	router := newTestRouter(t)
	id := createTestRoute(t, router)

	req := httptest.NewRequest(http.MethodGet, "/v1/routes/"+id+"/gpx", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gpx+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "<gpx")
}

func TestRouter_ElevationLookup(t *testing.T) {
	router := newTestRouter(t)

	input := models.ElevationRequest{
		Coordinates: [][]float64{{4.9041, 52.3676}, {5.1214, 52.0907}},
	}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPost, "/v1/elevation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.ElevationResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)

	assert.Len(t, resp.Elevations, 2)
	require.NotNil(t, resp.ElevationGainM)
	assert.Equal(t, 5.0, *resp.ElevationGainM)
	assert.Equal(t, "test", resp.Provider)
}

func TestRouter_ElevationLookup_NoCoordinates(t *testing.T) {
	router := newTestRouter(t)

	body, _ := json.Marshal(models.ElevationRequest{})

	req := httptest.NewRequest(http.MethodPost, "/v1/elevation", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var problem models.Problem
	err := json.Unmarshal(w.Body.Bytes(), &problem)
	require.NoError(t, err)

	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
}

func TestRouter_OpenSession(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get("Location"))

	var opened models.Session
	err := json.Unmarshal(w.Body.Bytes(), &opened)
	require.NoError(t, err)

	assert.NotEmpty(t, opened.ID)
	assert.Equal(t, string(session.StateIdle), opened.State)
	assert.Greater(t, opened.TTLSeconds, 0)
	assert.False(t, opened.Stats.Available)
}

func TestRouter_OpenSession_RouteNotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions",
		bytes.NewReader([]byte(`{"routeId":"rt_missing"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_OpenSession_FromRoute(t *testing.T) {
	router := newTestRouter(t)
	routeID := createTestRoute(t, router)

	id := openTestSession(t, router, `{"routeId":"`+routeID+`"}`)

	// No cached profile was saved, so the seed geometry goes through the
	// live pipeline.
	snap := waitForStats(t, router, id)
	assert.Greater(t, snap.Stats.DistanceKm, 0.0)
	assert.NotNil(t, snap.Geometry)
}

func TestRouter_SessionGeometryEdit(t *testing.T) {
	router := newTestRouter(t)
	id := openTestSession(t, router, "")

	input := models.SessionGeometryRequest{Geometry: testGeometry()}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/geometry", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	snap := waitForStats(t, router, id)
	assert.GreaterOrEqual(t, snap.Generation, uint64(1))
	assert.Greater(t, snap.Stats.DistanceKm, 0.0)
	assert.Greater(t, snap.Stats.GainM, 0.0)
	assert.NotNil(t, snap.Overlay)
	assert.Empty(t, snap.Error)
}

func TestRouter_SessionGeometryEdit_NotALineString(t *testing.T) {
	router := newTestRouter(t)
	id := openTestSession(t, router, "")

	input := models.SessionGeometryRequest{
		Geometry: geojson.NewGeometry(orb.Point{4.9041, 52.3676}),
	}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/geometry", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_SessionWaypointsEdit(t *testing.T) {
	router := newTestRouter(t)
	id := openTestSession(t, router, "")

	input := models.SessionWaypointsRequest{
		Waypoints: [][]float64{{4.9041, 52.3676}, {5.0100, 52.2300}, {5.1214, 52.0907}},
	}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/waypoints", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	// Waypoint edits also fetch the surface composition.
	snap := waitForStats(t, router, id)
	assert.Greater(t, snap.Stats.DistanceKm, 0.0)
	assert.NotEmpty(t, snap.Surface)
	assert.Equal(t, "asphalt", snap.Surface[0].Surface)
}

func TestRouter_SessionChartAndHover(t *testing.T) {
	router := newTestRouter(t)
	id := openTestSession(t, router, "")

	input := models.SessionGeometryRequest{Geometry: testGeometry()}
	body, _ := json.Marshal(input)
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+id+"/geometry", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	waitForStats(t, router, id)

	// Base chart
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/chart.png", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	_, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)

	// Hover inside the plot area
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/hover?x=450&y=130", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var info models.HoverInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.GreaterOrEqual(t, info.Index, 0)
	assert.Greater(t, info.ElevationM, 0.0)
	assert.Len(t, info.Coordinate, 2)

	// Composited frame
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/hover.png", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	_, err = png.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)

	// Outside the plot area there is nothing to report
	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/hover?x=-5&y=130", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	// Leaving the chart clears the crosshair
	req = httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+id+"/hover", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_SessionChart_BeforeFirstEdit(t *testing.T) {
	router := newTestRouter(t)
	id := openTestSession(t, router, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/chart.png", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SessionNotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/ses_missing", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CloseSession(t *testing.T) {
	router := newTestRouter(t)
	id := openTestSession(t, router, "")

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+id, http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_PublicFlags(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/flags", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var flags map[string]bool
	err := json.Unmarshal(w.Body.Bytes(), &flags)
	require.NoError(t, err)

	assert.True(t, flags["surfaceLookupEnabled"])
	assert.True(t, flags["chartExtremaEnabled"])
	assert.False(t, flags["bikeOnlyRouting"])
}

func TestRouter_AdminFlags(t *testing.T) {
	router := newTestRouter(t)

	input := featureflags.FlagUpdateRequest{
		Updates: []featureflags.FlagUpdate{
			{Key: featureflags.FlagRoutingBikeOnly, Value: true},
		},
		Reason: "provider maintenance",
	}
	body, _ := json.Marshal(input)

	req := httptest.NewRequest(http.MethodPut, "/v1/admin/flags", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/admin/flags", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var list featureflags.FlagList
	err := json.Unmarshal(w.Body.Bytes(), &list)
	require.NoError(t, err)

	found := false
	for _, f := range list.Items {
		if f.Key == featureflags.FlagRoutingBikeOnly {
			found = true
			assert.Equal(t, true, f.Value)
		}
	}
	assert.True(t, found)

	// The flip shows up on the public surface too
	req = httptest.NewRequest(http.MethodGet, "/v1/flags", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var flags map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flags))
	assert.True(t, flags["bikeOnlyRouting"])
}

func TestRouter_AdminFlags_Invalidate(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/flags/invalidate", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
