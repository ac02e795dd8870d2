package models

// ElevationRequest is the request body for the elevation lookup endpoint.
type ElevationRequest struct {
	// Coordinates are [lng, lat] pairs along a path.
	Coordinates [][]float64 `json:"coordinates"`
}

// ElevationResponse carries one elevation per requested coordinate. Entries
// the provider could not resolve are null; clients treat them as 0.
type ElevationResponse struct {
	Elevations     []*float64 `json:"elevations"`
	ElevationGainM *float64   `json:"elevation_gain_m"`
	Provider       string     `json:"provider,omitempty"`
}
