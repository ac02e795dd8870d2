package openmeteo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyclemaps/cyclemaps/internal/elevation"
	"github.com/cyclemaps/cyclemaps/internal/elevation/openmeteo"
)

func TestClient_FetchElevations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/elevation", r.URL.Path)
		// Coordinates arrive comma-joined and rounded to 4 decimals
		assert.Equal(t, "52.3702,52.0907", r.URL.Query().Get("latitude"))
		assert.Equal(t, "4.8952,5.1214", r.URL.Query().Get("longitude"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elevation":[12.5,3.0]}`))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	samples, err := client.FetchElevations(context.Background(), orb.LineString{
		{4.89516799, 52.37021599},
		{5.1214, 52.0907},
	})
	require.NoError(t, err)
	require.Len(t, samples.Elevations, 2)

	require.NotNil(t, samples.Elevations[0])
	assert.Equal(t, 12.5, *samples.Elevations[0])
	require.NotNil(t, samples.Elevations[1])
	assert.Equal(t, 3.0, *samples.Elevations[1])

	assert.Nil(t, samples.GainMeters)
	assert.Equal(t, openmeteo.ProviderName, samples.Provider)
}

func TestClient_FetchElevations_Batching(t *testing.T) {
	var batchSizes []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lats := strings.Split(r.URL.Query().Get("latitude"), ",")
		batchSizes = append(batchSizes, len(lats))

		// Echo one elevation per requested coordinate
		var b strings.Builder
		b.WriteString(`{"elevation":[`)
		for i := range lats {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString("1.0")
		}
		b.WriteString(`]}`)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(b.String()))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	// 170 coordinates should split into batches of 80, 80 and 10
	coords := make(orb.LineString, 170)
	for i := range coords {
		coords[i] = orb.Point{5.0 + float64(i)*0.001, 52.0}
	}

	samples, err := client.FetchElevations(context.Background(), coords)
	require.NoError(t, err)
	assert.Len(t, samples.Elevations, 170)
	assert.Equal(t, []int{80, 80, 10}, batchSizes)
}

func TestClient_FetchElevations_NullReadings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elevation":[null,120.0,130.0]}`))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	samples, err := client.FetchElevations(context.Background(), orb.LineString{
		{4.90, 52.37}, {4.91, 52.38}, {4.92, 52.39},
	})
	require.NoError(t, err)
	require.Len(t, samples.Elevations, 3)

	assert.Nil(t, samples.Elevations[0])
	require.NotNil(t, samples.Elevations[1])
	assert.Equal(t, 120.0, *samples.Elevations[1])
}

func TestClient_FetchElevations_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"elevation":[12.5]}`))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	_, err := client.FetchElevations(context.Background(), orb.LineString{
		{4.90, 52.37}, {4.91, 52.38},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, elevation.ErrSampleCountMismatch)
}

func TestClient_FetchElevations_BadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":true,"reason":"Latitude must be in range of -90 to 90"}`))
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	_, err := client.FetchElevations(context.Background(), orb.LineString{{4.90, 52.37}})
	require.Error(t, err)
	assert.ErrorIs(t, err, elevation.ErrInvalidCoordinates)

	var elevErr *elevation.Error
	require.ErrorAs(t, err, &elevErr)
	assert.Contains(t, elevErr.Message, "Latitude must be in range")
}

func TestClient_FetchElevations_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	_, err := client.FetchElevations(context.Background(), orb.LineString{{4.90, 52.37}})
	require.Error(t, err)
	assert.ErrorIs(t, err, elevation.ErrProviderUnavailable)
}

func TestClient_FetchElevations_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 50 * time.Millisecond},
	})

	_, err := client.FetchElevations(context.Background(), orb.LineString{{4.90, 52.37}})
	require.Error(t, err)
	assert.ErrorIs(t, err, elevation.ErrUpstreamTimeout)
}

func TestClient_FetchElevations_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: http.DefaultClient,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.FetchElevations(ctx, orb.LineString{{4.90, 52.37}})
	require.Error(t, err)
}

func TestClient_FetchElevations_NoCoordinates(t *testing.T) {
	client := openmeteo.NewClient(openmeteo.ClientConfig{
		HTTPClient: http.DefaultClient,
	})

	_, err := client.FetchElevations(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, elevation.ErrNoCoordinates)
}
