package adsb

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/adsb-closest/pkg/coordinates"
)

// DefaultAirplanesLiveURL is the public airplanes.live API base URL.
const DefaultAirplanesLiveURL = "https://api.airplanes.live/v2"

// MaxAirplanesLiveRadiusNM is the largest radius the /point endpoint accepts.
const MaxAirplanesLiveRadiusNM = 250.0

// AirplanesLiveClient implements Feed using the airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	// baseURL is the API base URL (default: https://api.airplanes.live/v2)
	baseURL string

	// center is the point the /point query is built around
	center coordinates.Geographic

	// radiusNM is the query radius in nautical miles
	radiusNM float64

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// limiter paces requests to the API's published limit
	limiter *rate.Limiter
}

// AirplanesLiveConfig configures an AirplanesLiveClient.
type AirplanesLiveConfig struct {
	// BaseURL defaults to DefaultAirplanesLiveURL
	BaseURL string

	// Center of the query, normally the reference point
	Center coordinates.Geographic

	// RadiusNM is capped at MaxAirplanesLiveRadiusNM
	RadiusNM float64

	// MinInterval between requests (default: 1 second)
	MinInterval time.Duration

	// Timeout per request (default: 10 seconds)
	Timeout time.Duration
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
func NewAirplanesLiveClient(cfg AirplanesLiveConfig) *AirplanesLiveClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAirplanesLiveURL
	}
	if cfg.RadiusNM <= 0 || cfg.RadiusNM > MaxAirplanesLiveRadiusNM {
		cfg.RadiusNM = MaxAirplanesLiveRadiusNM
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &AirplanesLiveClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		center:   cfg.Center,
		radiusNM: cfg.RadiusNM,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
	}
}

// Snapshot returns all aircraft within the configured radius of the center.
// Uses the /point/[lat]/[lon]/[radius] endpoint.
func (c *AirplanesLiveClient) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	url := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, c.center.Latitude, c.center.Longitude, c.radiusNM)
	return fetchSnapshot(ctx, c.httpClient, url)
}

// Close cleanly shuts down the client.
func (c *AirplanesLiveClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
