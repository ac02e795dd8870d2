// Package openmeteo provides a client for the Open-Meteo elevation API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/provider/resilience"
)

const (
	// ProviderName identifies this elevation provider.
	ProviderName = "open-meteo"

	// DefaultBaseURL is the Open-Meteo API base URL.
	DefaultBaseURL = "https://api.open-meteo.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	// maxBatchSize is the per-request coordinate limit of the API.
	maxBatchSize = 80
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to Open-Meteo API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 15s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo elevation API client.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
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
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// API response types (from Open-Meteo API).

type elevationResponse struct {
	Elevation []*float64 `json:"elevation"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// FetchElevations retrieves one elevation per coordinate, in order.
// Requests are batched to respect the API's per-request coordinate limit.
func (c *Client) FetchElevations(ctx context.Context, coords orb.LineString) (*elevation.Samples, error) {
	if len(coords) == 0 {
		return nil, &elevation.Error{
			Provider: ProviderName,
			Code:     "NO_COORDINATES",
			Message:  "at least one coordinate is required",
			Err:      elevation.ErrNoCoordinates,
		}
	}

	all := make([]*float64, 0, len(coords))

	for start := 0; start < len(coords); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(coords) {
			end = len(coords)
		}

		batch, err := c.fetchBatch(ctx, coords[start:end])
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}

	c.logger.Debug().
		Int("coordinates", len(coords)).
		Int("batches", (len(coords)+maxBatchSize-1)/maxBatchSize).
		Msg("fetched elevations from Open-Meteo")

	return &elevation.Samples{
		Elevations: all,
		Provider:   ProviderName,
		FetchedAt:  time.Now(),
	}, nil
}

// fetchBatch fetches elevations for a single batch of coordinates.
func (c *Client) fetchBatch(ctx context.Context, coords orb.LineString) ([]*float64, error) {
	// Coordinates are rounded to 4 decimals (~11m), which is plenty for
	// a 90m elevation grid and keeps URLs short.
	var lats, lons strings.Builder
	for i, p := range coords {
		if i > 0 {
			lats.WriteByte(',')
			lons.WriteByte(',')
		}
		fmt.Fprintf(&lats, "%.4f", p[1])
		fmt.Fprintf(&lons, "%.4f", p[0])
	}

	url := fmt.Sprintf("%s/v1/elevation?latitude=%s&longitude=%s", c.baseURL, lats.String(), lons.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var result elevationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Elevation) != len(coords) {
		return nil, &elevation.Error{
			Provider: ProviderName,
			Code:     "COUNT_MISMATCH",
			Message:  fmt.Sprintf("requested %d elevations, got %d", len(coords), len(result.Elevation)),
			Err:      elevation.ErrSampleCountMismatch,
		}
	}

	return result.Elevation, nil
}

// transportError maps request execution failures to domain errors.
func (c *Client) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &elevation.Error{
			Provider: ProviderName,
			Code:     "TIMEOUT",
			Message:  "elevation provider did not respond in time",
			Err:      elevation.ErrUpstreamTimeout,
		}
	}
	return &elevation.Error{
		Provider: ProviderName,
		Code:     "REQUEST_FAILED",
		Message:  "failed to reach elevation provider",
		Err:      elevation.ErrProviderUnavailable,
	}
}

// handleErrorResponse maps non-200 responses to domain errors.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var apiErr errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		msg := apiErr.Reason
		if msg == "" {
			msg = "elevation provider rejected the request"
		}
		return &elevation.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  msg,
			Err:      elevation.ErrInvalidCoordinates,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &elevation.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      elevation.ErrProviderUnavailable,
		}
	case resp.StatusCode >= 500:
		return &elevation.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", resp.StatusCode),
			Message:  "elevation provider is temporarily unavailable",
			Err:      elevation.ErrProviderUnavailable,
		}
	default:
		return &elevation.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("elevation provider returned status %d", resp.StatusCode),
			Err:      elevation.ErrProviderUnavailable,
		}
	}
}
