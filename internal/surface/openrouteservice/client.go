// Package openrouteservice provides surface data from the OpenRouteService
// directions API.
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
	"github.com/cyclemaps/cyclemaps/internal/surface"
)

const (
	// ProviderName identifies this surface provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout for API requests.
	DefaultTimeout = 10 * time.Second
)

// orsErrorCodeNotFound is returned by ORS when no route exists between the waypoints.
const orsErrorCodeNotFound = 2009

// ClientConfig holds configuration for the OpenRouteService surface client.
type ClientConfig struct {
	// APIKey is the OpenRouteService API key (required).
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Registry is the provider registry to register with (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches surface composition via the directions API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService surface client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig("openrouteservice-surface")
		clientCfg.Timeout = DefaultTimeout
		clientCfg.Registry = cfg.Registry
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

// GetBreakdown fetches the surface composition of the route through the waypoints.
func (c *Client) GetBreakdown(ctx context.Context, profile routing.RouteProfile, waypoints []orb.Point) (*surface.Breakdown, error) {
	if len(waypoints) < 2 {
		return nil, surface.ErrTooFewWaypoints
	}

	coords := make([][]float64, len(waypoints))
	for i, wp := range waypoints {
		// ORS uses [lon, lat] order (GeoJSON)
		coords[i] = []float64{wp[0], wp[1]}
	}

	body, err := json.Marshal(directionsRequest{
		Coordinates:  coords,
		Instructions: false,
		// ORS only computes extras when geometry is enabled.
		Geometry:  true,
		ExtraInfo: []string{"surface"},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %v: %w", err, surface.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromStatus(resp)
	}

	var orsResp directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(orsResp.Routes) == 0 {
		return nil, surface.ErrNoSurfaceData
	}

	return c.toBreakdown(&orsResp.Routes[0])
}

// toBreakdown converts the surface extras summary to the domain model.
func (c *Client) toBreakdown(route *orsRoute) (*surface.Breakdown, error) {
	extras, ok := route.Extras["surface"]
	if !ok || len(extras.Summary) == 0 {
		return nil, surface.ErrNoSurfaceData
	}

	shares := make([]surface.Share, 0, len(extras.Summary))
	for _, s := range extras.Summary {
		shares = append(shares, surface.Share{
			Surface:        surface.TypeFromCode(int(s.Value)),
			DistanceMeters: s.Distance,
			Percent:        s.Amount,
		})
	}

	c.logger.Debug().
		Int("surfaces", len(shares)).
		Float64("distance_m", route.Summary.Distance).
		Msg("built surface breakdown")

	return surface.NewBreakdown(shares, ProviderName), nil
}

// errorFromStatus maps a non-200 response to a surface error.
func (c *Client) errorFromStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var orsErr errorResponse
	_ = json.Unmarshal(body, &orsErr)
	msg := orsErr.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest && orsErr.Error.Code == orsErrorCodeNotFound:
		return fmt.Errorf("%s: %w", msg, surface.ErrNoSurfaceData)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %w", surface.ErrProviderUnavailable)
	case resp.StatusCode >= 500:
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, msg, surface.ErrProviderUnavailable)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}
}

// OpenRouteService API request and response structures.

type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	ExtraInfo    []string    `json:"extra_info,omitempty"`
}

type directionsResponse struct {
	Routes []orsRoute `json:"routes"`
}

type orsRoute struct {
	Summary  routeSummary     `json:"summary"`
	Geometry string           `json:"geometry,omitempty"`
	Extras   map[string]extra `json:"extras,omitempty"`
}

type routeSummary struct {
	Distance float64 `json:"distance"` // Distance in meters
	Duration float64 `json:"duration"` // Duration in seconds
}

// extra contains additional route information reported per geometry range.
type extra struct {
	Values  [][]int        `json:"values,omitempty"`
	Summary []extraSummary `json:"summary,omitempty"`
}

// extraSummary provides summary statistics for one extra value.
type extraSummary struct {
	Value    float64 `json:"value"`
	Distance float64 `json:"distance"`
	Amount   float64 `json:"amount"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
