package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/cyclemaps/cyclemaps/internal/routing"
)

// directionsBody is a trimmed ORS directions response. The polyline decodes
// to three points starting at (38.5, -120.2).
const directionsBody = `{
	"routes": [
		{
			"summary": {"distance": 12345.6, "duration": 2456.7},
			"bbox": [-126.453, 38.5, -120.2, 43.252],
			"geometry": "_p~iF~ps|U_ulLnnqC",
			"way_points": [0, 2]
		}
	],
	"metadata": {"attribution": "openrouteservice.org", "service": "routing"}
}`

func TestClient_GetDirections_Success(t *testing.T) {
	// Create test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "mock123" {
			t.Errorf("expected Authorization header 'mock123', got '%s'", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type 'application/json', got '%s'", r.Header.Get("Content-Type"))
		}

		// Verify URL path contains profile
		expectedPath := "/v2/directions/cycling-regular"
		if r.URL.Path != expectedPath {
			t.Errorf("expected path %s, got %s", expectedPath, r.URL.Path)
		}

		// Verify coordinates arrive in [lon, lat] order
		var body orsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if len(body.Coordinates) != 2 {
			t.Errorf("expected 2 coordinate pairs, got %d", len(body.Coordinates))
		} else if body.Coordinates[0][0] != 4.9041 || body.Coordinates[0][1] != 52.3676 {
			t.Errorf("expected first coordinate [4.9041, 52.3676], got %v", body.Coordinates[0])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(directionsBody))
	}))
	defer server.Close()

	// Create client
	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})

	// Make request
	resp, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}, {5.1214, 52.0907}},
		Profile:   routing.ProfileBike,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify response
	if resp.Provider != ProviderName {
		t.Errorf("expected provider %s, got %s", ProviderName, resp.Provider)
	}
	if resp.DistanceMeters != 12345.6 {
		t.Errorf("expected distance 12345.6, got %f", resp.DistanceMeters)
	}
	if resp.DurationSeconds != 2456.7 {
		t.Errorf("expected duration 2456.7, got %f", resp.DurationSeconds)
	}
	if len(resp.Geometry) != 3 {
		t.Fatalf("expected 3 decoded path points, got %d", len(resp.Geometry))
	}
	first := resp.Geometry[0]
	if math.Abs(first[1]-38.5) > 1e-5 || math.Abs(first[0]-(-120.2)) > 1e-5 {
		t.Errorf("expected first point (-120.2, 38.5), got %v", first)
	}
}

func TestClient_GetDirections_EmptyRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"routes":[]}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}, {5.1214, 52.0907}},
		Profile:   routing.ProfileBike,
	})

	if !errors.Is(err, routing.ErrNoRouteFound) {
		t.Errorf("expected ErrNoRouteFound, got %v", err)
	}
}

func TestClient_GetDirections_NoRouteFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":2009,"message":"Route could not be found - Unable to find a route between points"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}, {5.1214, 52.0907}},
		Profile:   routing.ProfileBike,
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var routingErr *routing.Error
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing.Error, got %T", err)
	}
	if !errors.Is(routingErr.Err, routing.ErrNoRouteFound) {
		t.Errorf("expected ErrNoRouteFound, got %v", routingErr.Err)
	}
}

func TestClient_GetDirections_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":403,"message":"Rate limit exceeded"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}, {5.1214, 52.0907}},
		Profile:   routing.ProfileBike,
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var routingErr *routing.Error
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing.Error, got %T", err)
	}
	if !errors.Is(routingErr.Err, routing.ErrRateLimitExceeded) {
		t.Errorf("expected ErrRateLimitExceeded, got %v", routingErr.Err)
	}
}

func TestClient_GetDirections_InvalidCoordinates(t *testing.T) {
	tests := []struct {
		name      string
		waypoints []orb.Point
	}{
		{
			name:      "latitude out of range",
			waypoints: []orb.Point{{4.9, 91.0}, {5.1, 52.0}},
		},
		{
			name:      "negative latitude out of range",
			waypoints: []orb.Point{{4.9, -91.0}, {5.1, 52.0}},
		},
		{
			name:      "longitude out of range",
			waypoints: []orb.Point{{4.9, 52.0}, {181.0, 52.0}},
		},
		{
			name:      "negative longitude out of range",
			waypoints: []orb.Point{{4.9, 52.0}, {-181.0, 52.0}},
		},
	}

	client := NewClient(ClientConfig{
		APIKey: "mock123",
		Logger: zerolog.Nop(),
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
				Waypoints: tt.waypoints,
				Profile:   routing.ProfileBike,
			})

			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var routingErr *routing.Error
			if !errors.As(err, &routingErr) {
				t.Fatalf("expected routing.Error, got %T", err)
			}
			if !errors.Is(routingErr.Err, routing.ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates, got %v", routingErr.Err)
			}
		})
	}
}

func TestClient_GetDirections_TooFewWaypoints(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey: "mock123",
		Logger: zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}},
		Profile:   routing.ProfileBike,
	})

	if !errors.Is(err, routing.ErrTooFewWaypoints) {
		t.Errorf("expected ErrTooFewWaypoints, got %v", err)
	}
}

func TestClient_GetDirections_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":500,"message":"Internal server error"}}`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: &mockHTTPClient{client: server.Client()},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}, {5.1214, 52.0907}},
		Profile:   routing.ProfileBike,
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var routingErr *routing.Error
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing.Error, got %T", err)
	}
	if !errors.Is(routingErr.Err, routing.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", routingErr.Err)
	}
}

func TestClient_Name(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey: "test",
		Logger: zerolog.Nop(),
	})

	if client.Name() != ProviderName {
		t.Errorf("expected %s, got %s", ProviderName, client.Name())
	}
}

func TestClient_SupportedProfiles(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey: "test",
		Logger: zerolog.Nop(),
	})

	profiles := client.SupportedProfiles()
	if len(profiles) != 4 {
		t.Fatalf("expected 4 profiles, got %d", len(profiles))
	}

	want := map[routing.RouteProfile]bool{
		routing.ProfileBike:         false,
		routing.ProfileBikeRoad:     false,
		routing.ProfileBikeMountain: false,
		routing.ProfileWalk:         false,
	}
	for _, p := range profiles {
		want[p] = true
	}
	for profile, seen := range want {
		if !seen {
			t.Errorf("expected %s in supported profiles", profile)
		}
	}
}

// mockHTTPClient wraps http.Client to implement HTTPDoer interface.
type mockHTTPClient struct {
	client *http.Client
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.client.Do(req)
}

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		coord   orb.Point
		wantErr bool
	}{
		{
			name:    "valid Amsterdam",
			coord:   orb.Point{4.9041, 52.3676},
			wantErr: false,
		},
		{
			name:    "valid equator",
			coord:   orb.Point{0, 0},
			wantErr: false,
		},
		{
			name:    "valid extreme lat",
			coord:   orb.Point{0, 90},
			wantErr: false,
		},
		{
			name:    "valid extreme lon",
			coord:   orb.Point{180, 0},
			wantErr: false,
		},
		{
			name:    "invalid lat too high",
			coord:   orb.Point{0, 90.1},
			wantErr: true,
		},
		{
			name:    "invalid lat too low",
			coord:   orb.Point{0, -90.1},
			wantErr: true,
		},
		{
			name:    "invalid lon too high",
			coord:   orb.Point{180.1, 0},
			wantErr: true,
		},
		{
			name:    "invalid lon too low",
			coord:   orb.Point{-180.1, 0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCoordinates(tt.coord)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateCoordinates() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// mockFailingClient simulates network errors.
type mockFailingClient struct{}

func (m *mockFailingClient) Do(req *http.Request) (*http.Response, error) {
	return nil, errors.New("network error")
}

func TestClient_GetDirections_NetworkError(t *testing.T) {
	client := NewClient(ClientConfig{
		APIKey:     "mock123",
		HTTPClient: &mockFailingClient{},
		Logger:     zerolog.Nop(),
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Waypoints: []orb.Point{{4.9041, 52.3676}, {5.1214, 52.0907}},
		Profile:   routing.ProfileBike,
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var routingErr *routing.Error
	if !errors.As(err, &routingErr) {
		t.Fatalf("expected routing.Error, got %T", err)
	}
	if !errors.Is(routingErr.Err, routing.ErrProviderUnavailable) {
		t.Errorf("expected ErrProviderUnavailable, got %v", routingErr.Err)
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      *routing.Error
		expected bool
	}{
		{
			name: "provider unavailable is retryable",
			err: &routing.Error{
				Err: routing.ErrProviderUnavailable,
			},
			expected: true,
		},
		{
			name: "rate limit is retryable",
			err: &routing.Error{
				Err: routing.ErrRateLimitExceeded,
			},
			expected: true,
		},
		{
			name: "no route found is not retryable",
			err: &routing.Error{
				Err: routing.ErrNoRouteFound,
			},
			expected: false,
		},
		{
			name: "invalid coordinates is not retryable",
			err: &routing.Error{
				Err: routing.ErrInvalidCoordinates,
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.IsRetryable() != tt.expected {
				t.Errorf("IsRetryable() = %v, expected %v", tt.err.IsRetryable(), tt.expected)
			}
		})
	}
}
