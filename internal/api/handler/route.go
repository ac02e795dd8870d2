package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/api/response"
	"github.com/cyclemaps/cyclemaps/internal/chart"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/featureflags"
	"github.com/cyclemaps/cyclemaps/internal/profile"
	"github.com/cyclemaps/cyclemaps/internal/route"
)

// RouteHandler handles saved-route endpoints.
type RouteHandler struct {
	routes   *route.Service
	renderer *chart.Renderer
	flags    *featureflags.Service
}

// NewRouteHandler creates a new RouteHandler. flags may be nil, in which
// case charts always include extrema markers.
func NewRouteHandler(routes *route.Service, renderer *chart.Renderer, flags *featureflags.Service) *RouteHandler {
	return &RouteHandler{
		routes:   routes,
		renderer: renderer,
		flags:    flags,
	}
}

// List handles GET /v1/routes - list routes with filters and pagination.
func (h *RouteHandler) List(w http.ResponseWriter, r *http.Request) {
	opts, fieldErrs := listOptionsFromQuery(r)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	page, err := h.routes.List(r.Context(), opts)
	if err != nil {
		response.InternalError(w, r, "failed to list routes")
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

// Create handles POST /v1/routes - save a new route.
func (h *RouteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.RouteCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	created, err := h.routes.Create(r.Context(), &input)
	if err != nil {
		var verr *route.ValidationError
		if errors.As(err, &verr) {
			response.BadRequest(w, r, "validation failed", verr.Errors)
			return
		}
		response.InternalError(w, r, "failed to create route")
		return
	}

	response.Created(w, r, "/v1/routes/"+created.ID, created)
}

// Get handles GET /v1/routes/{routeID} - fetch a single route.
func (h *RouteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routeID")

	rt, err := h.routes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			response.NotFound(w, r, "route not found")
			return
		}
		response.InternalError(w, r, "failed to fetch route")
		return
	}
	response.JSON(w, r, http.StatusOK, rt)
}

// Update handles PUT /v1/routes/{routeID} - update fields and cached payloads.
func (h *RouteHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routeID")

	var input models.RouteUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	updated, err := h.routes.Update(r.Context(), id, &input)
	if err != nil {
		var verr *route.ValidationError
		switch {
		case errors.As(err, &verr):
			response.BadRequest(w, r, "validation failed", verr.Errors)
		case errors.Is(err, route.ErrRouteNotFound):
			response.NotFound(w, r, "route not found")
		default:
			response.InternalError(w, r, "failed to update route")
		}
		return
	}
	response.JSON(w, r, http.StatusOK, updated)
}

// Delete handles DELETE /v1/routes/{routeID}.
func (h *RouteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routeID")

	if err := h.routes.Delete(r.Context(), id); err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			response.NotFound(w, r, "route not found")
			return
		}
		response.InternalError(w, r, "failed to delete route")
		return
	}
	response.NoContent(w, r)
}

// GeoJSON handles GET /v1/routes/geojson - all routes as a FeatureCollection.
func (h *RouteHandler) GeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, err := h.routes.GeoJSON(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to export routes")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	response.JSON(w, r, http.StatusOK, fc)
}

// Profile handles GET /v1/routes/{routeID}/profile - the route's elevation
// profile, from cache when valid, derived live otherwise.
func (h *RouteHandler) Profile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routeID")

	p, err := h.routes.Profile(r.Context(), id)
	if err != nil {
		h.writeProfileError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.JSON(w, r, http.StatusOK, route.ProfileToAPI(p))
}

// Chart handles GET /v1/routes/{routeID}/chart.png - the rendered elevation
// chart for the route's profile.
func (h *RouteHandler) Chart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routeID")

	p, err := h.routes.Profile(r.Context(), id)
	if err != nil {
		h.writeProfileError(w, r, err)
		return
	}

	var raster *chart.Raster
	if h.flags != nil && !h.flags.IsChartExtremaEnabled(r.Context()) {
		raster, err = h.renderer.RenderWithoutExtrema(p)
	} else {
		raster, err = h.renderer.Render(p)
	}
	if err != nil {
		response.InternalError(w, r, "failed to render chart")
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=60")
	response.PNG(w, r, raster.Img)
}

// GPX handles GET /v1/routes/{routeID}/gpx - GPX track export.
func (h *RouteHandler) GPX(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "routeID")

	data, err := h.routes.GPX(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, route.ErrRouteNotFound):
			response.NotFound(w, r, "route not found")
		case errors.Is(err, profile.ErrInsufficientGeometry):
			response.UnprocessableEntity(w, r, "route has no geometry to export")
		default:
			response.InternalError(w, r, "failed to export route")
		}
		return
	}

	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "route-"+id+".gpx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// writeProfileError maps profile derivation failures onto problem responses.
func (h *RouteHandler) writeProfileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		response.NotFound(w, r, "route not found")
	case errors.Is(err, profile.ErrInsufficientGeometry):
		response.UnprocessableEntity(w, r, "route has no geometry to derive a profile from")
	case errors.Is(err, elevation.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		response.GatewayTimeout(w, r, "elevation provider timed out")
	case errors.Is(err, elevation.ErrProviderUnavailable), errors.Is(err, profile.ErrShapeMismatch):
		response.BadGateway(w, r, "elevation provider failed")
	default:
		response.InternalError(w, r, "failed to build elevation profile")
	}
}

// listOptionsFromQuery parses the list filter query parameters.
func listOptionsFromQuery(r *http.Request) (route.ListOptions, []models.FieldError) {
	q := r.URL.Query()
	opts := route.ListOptions{
		Cursor:        q.Get("cursor"),
		RouteType:     q.Get("type"),
		Region:        q.Get("region"),
		GeohashPrefix: q.Get("geohash"),
	}

	var fieldErrs []models.FieldError
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "limit", Message: "must be a positive integer"})
		} else {
			opts.Limit = limit
		}
	}
	if raw := q.Get("min_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "min_km", Message: "must be a non-negative number"})
		} else {
			opts.MinDistanceKm = v
		}
	}
	if raw := q.Get("max_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			fieldErrs = append(fieldErrs, models.FieldError{Field: "max_km", Message: "must be a non-negative number"})
		} else {
			opts.MaxDistanceKm = v
		}
	}
	if opts.RouteType != "" && !route.IsValidType(opts.RouteType) {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "type", Message: "must be one of road, gravel, mtb"})
	}

	return opts, fieldErrs
}
