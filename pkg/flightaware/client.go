// Package flightaware provides a client for the FlightAware AeroAPI v4.
//
// Only the flight lookup by ident is used: it supplies operator, origin and
// destination for the best-effort route annotation of the closest aircraft.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
// Rate Limits: Free tier allows 500 requests/month, paid tiers offer higher limits.
package flightaware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the FlightAware AeroAPI v4 base URL
	BaseURL = "https://aeroapi.flightaware.com/aeroapi"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second
)

// ErrRateLimited is returned instead of waiting when the hourly budget is spent.
var ErrRateLimited = errors.New("flightaware request budget exhausted")

// Client represents a FlightAware AeroAPI client.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
}

// Config contains configuration for the FlightAware client.
type Config struct {
	APIKey          string
	RequestsPerHour int
	Timeout         time.Duration
	// BaseURL overrides the AeroAPI endpoint
	BaseURL string
}

// NewClient creates a new FlightAware AeroAPI client.
//
// Requests beyond RequestsPerHour fail fast with ErrRateLimited so that a
// caller on a refresh cycle is never parked behind the limiter.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RequestsPerHour == 0 {
		// Default: 500 requests/month ≈ 0.7 requests/hour, use 1 req/hour as safe default
		cfg.RequestsPerHour = 1
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	// Convert requests per hour to rate limiter (allows burst of 1)
	requestsPerSecond := float64(cfg.RequestsPerHour) / 3600.0
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), 1)

	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: limiter,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Airport is one end of a flight.
type Airport struct {
	CodeICAO string `json:"code_icao"`
	CodeIATA string `json:"code_iata"`
	Name     string `json:"name"`
	City     string `json:"city"`
}

// Flight is the subset of an AeroAPI flight record used for annotation.
type Flight struct {
	Ident        string   `json:"ident"`
	IdentIATA    string   `json:"ident_iata"`
	FAFlightID   string   `json:"fa_flight_id"`
	Operator     string   `json:"operator"`
	OperatorIATA string   `json:"operator_iata"`
	Registration string   `json:"registration"`
	AircraftType string   `json:"aircraft_type"`
	Origin       *Airport `json:"origin"`
	Destination  *Airport `json:"destination"`
	Status       string   `json:"status"` // e.g., "Scheduled", "En Route / On Time", "Arrived"

	ActualOff *time.Time `json:"actual_off"`
	ActualOn  *time.Time `json:"actual_on"`
}

// Airborne reports whether the flight has taken off and not landed.
func (f Flight) Airborne() bool {
	return f.ActualOff != nil && f.ActualOn == nil
}

// GetFlight retrieves the current flight for an ident (callsign such as
// "DLH400" or registration such as "N12345").
//
// AeroAPI returns recent and scheduled flights; the first airborne one is
// preferred, otherwise the first listed.
//
// Returns nil, nil if no flight is found (not an error).
// Returns error for API failures or network issues.
func (c *Client) GetFlight(ctx context.Context, ident string) (*Flight, error) {
	if !c.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	endpoint := fmt.Sprintf("%s/flights/%s", c.baseURL, url.PathEscape(ident))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil // No flight found, not an error
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response struct {
		Flights []Flight `json:"flights"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if len(response.Flights) == 0 {
		return nil, nil
	}

	for i := range response.Flights {
		if response.Flights[i].Airborne() {
			return &response.Flights[i], nil
		}
	}
	return &response.Flights[0], nil
}
