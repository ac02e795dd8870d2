// Package openrouteservice provides a client for the OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/provider/resilience"
	"github.com/cyclemaps/cyclemaps/internal/routing"
	"github.com/cyclemaps/cyclemaps/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		if cfg.Registry != nil {
			clientCfg.Registry = cfg.Registry
		}
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedProfiles returns the supported routing profiles.
func (c *Client) SupportedProfiles() []routing.RouteProfile {
	return []routing.RouteProfile{
		routing.ProfileBike,
		routing.ProfileBikeRoad,
		routing.ProfileBikeMountain,
		routing.ProfileWalk,
	}
}

// GetDirections routes through the request's waypoints in order.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if len(req.Waypoints) < 2 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "TOO_FEW_WAYPOINTS",
			Message:  "routing requires at least two waypoints",
			Err:      routing.ErrTooFewWaypoints,
		}
	}
	for i, wp := range req.Waypoints {
		if err := validateCoordinates(wp); err != nil {
			return nil, &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_WAYPOINT",
				Message:  fmt.Sprintf("invalid coordinates for waypoint %d", i),
				Err:      routing.ErrInvalidCoordinates,
			}
		}
	}

	// Build request body
	coords := make([][]float64, len(req.Waypoints))
	for i, wp := range req.Waypoints {
		// ORS uses [lon, lat] order (GeoJSON)
		coords[i] = []float64{wp[0], wp[1]}
	}
	orsReq := orsRequest{
		Coordinates:  coords,
		Instructions: false,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	// Build HTTP request
	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, req.Profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().
		Str("profile", string(req.Profile)).
		Int("waypoints", len(req.Waypoints)).
		Msg("requesting directions from ORS")

	// Execute request
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	// Read response body
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	// Handle error responses
	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	// Parse successful response
	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	result, err := c.toDirectionsResponse(&orsResp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("path_points", len(result.Geometry)).
		Float64("distance_m", result.DistanceMeters).
		Msg("received directions from ORS")

	return result, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		// Fall back to generic error if we can't parse
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case http.StatusForbidden:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case http.StatusNotFound:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found through the given waypoints",
			Err:      routing.ErrNoRouteFound,
		}
	case http.StatusBadRequest:
		// Check for specific ORS error codes
		if orsErr.Error.Code == orsErrorCodeNotFound {
			return &routing.Error{
				Provider: ProviderName,
				Code:     "NO_ROUTE",
				Message:  orsErr.Error.Message,
				Err:      routing.ErrNoRouteFound,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  orsErr.Error.Message,
			Err:      routing.ErrInvalidCoordinates,
		}
	default:
		if statusCode >= 500 {
			return &routing.Error{
				Provider: ProviderName,
				Code:     fmt.Sprintf("SERVER_%d", statusCode),
				Message:  "routing provider is temporarily unavailable",
				Err:      routing.ErrProviderUnavailable,
			}
		}
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  orsErr.Error.Message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

// toDirectionsResponse converts the first ORS route to the domain model.
func (c *Client) toDirectionsResponse(resp *orsResponse) (*routing.DirectionsResponse, error) {
	if len(resp.Routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}

	first := &resp.Routes[0]
	geometry := polyline.Decode(first.Geometry)
	if len(geometry) < 2 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "EMPTY_GEOMETRY",
			Message:  "provider returned a route without usable geometry",
			Err:      routing.ErrNoRouteFound,
		}
	}

	return &routing.DirectionsResponse{
		Geometry:        geometry,
		DistanceMeters:  first.Summary.Distance,
		DurationSeconds: first.Summary.Duration,
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}, nil
}

// validateCoordinates checks if a [lon, lat] point is within valid ranges.
func validateCoordinates(p orb.Point) error {
	if p[1] < -90 || p[1] > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p[1])
	}
	if p[0] < -180 || p[0] > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p[0])
	}
	return nil
}
