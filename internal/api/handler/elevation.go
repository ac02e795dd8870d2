package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/paulmach/orb"

	"github.com/cyclemaps/cyclemaps/internal/api/models"
	"github.com/cyclemaps/cyclemaps/internal/api/response"
	"github.com/cyclemaps/cyclemaps/internal/elevation"
)

// maxElevationCoordinates caps a single lookup request. Longer paths are for
// the profile pipeline, which samples before fetching.
const maxElevationCoordinates = 512

// ElevationHandler handles the raw elevation lookup endpoint.
type ElevationHandler struct {
	elevations *elevation.Service
}

// NewElevationHandler creates a new ElevationHandler.
func NewElevationHandler(elevations *elevation.Service) *ElevationHandler {
	return &ElevationHandler{elevations: elevations}
}

// Lookup handles POST /v1/elevation - elevations for a list of coordinates.
func (h *ElevationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var input models.ElevationRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	coords, fieldErrs := parseCoordinates(input.Coordinates)
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid coordinates", fieldErrs)
		return
	}

	samples, err := h.elevations.GetElevations(r.Context(), coords)
	if err != nil {
		switch {
		case errors.Is(err, elevation.ErrNoCoordinates), errors.Is(err, elevation.ErrInvalidCoordinates):
			response.BadRequest(w, r, "invalid coordinates", nil)
		case errors.Is(err, elevation.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
			response.GatewayTimeout(w, r, "elevation provider timed out")
		default:
			response.BadGateway(w, r, "elevation provider failed")
		}
		return
	}

	gain := samples.Gain()
	response.JSON(w, r, http.StatusOK, models.ElevationResponse{
		Elevations:     samples.Elevations,
		ElevationGainM: &gain,
		Provider:       samples.Provider,
	})
}

// parseCoordinates validates [lng, lat] pairs and converts them to a line.
func parseCoordinates(pairs [][]float64) (orb.LineString, []models.FieldError) {
	if len(pairs) == 0 {
		return nil, []models.FieldError{{Field: "coordinates", Message: "at least one coordinate is required"}}
	}
	if len(pairs) > maxElevationCoordinates {
		return nil, []models.FieldError{{
			Field:   "coordinates",
			Message: fmt.Sprintf("at most %d coordinates per request", maxElevationCoordinates),
		}}
	}

	coords := make(orb.LineString, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 {
			return nil, []models.FieldError{{
				Field:   fmt.Sprintf("coordinates[%d]", i),
				Message: "must be a [lng, lat] pair",
			}}
		}
		lng, lat := pair[0], pair[1]
		if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
			return nil, []models.FieldError{{
				Field:   fmt.Sprintf("coordinates[%d]", i),
				Message: "longitude must be in [-180, 180] and latitude in [-90, 90]",
			}}
		}
		coords = append(coords, orb.Point{lng, lat})
	}
	return coords, nil
}
