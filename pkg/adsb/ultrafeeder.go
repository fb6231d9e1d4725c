package adsb

import (
	"context"
	"net/http"
	"time"
)

// DefaultUltrafeederURL is where a local ultrafeeder/readsb container
// publishes its aircraft list.
const DefaultUltrafeederURL = "http://localhost:8080/data/aircraft.json"

// UltrafeederClient reads aircraft.json from a local ADS-B decoder
// (ultrafeeder, readsb, dump1090-fa, tar1090).
type UltrafeederClient struct {
	// url is the full aircraft.json URL
	url string

	// httpClient is the HTTP client used for requests
	httpClient *http.Client
}

// NewUltrafeederClient creates a client for the given aircraft.json URL.
// An empty url selects DefaultUltrafeederURL. timeout bounds each request;
// zero means 10 seconds.
func NewUltrafeederClient(url string, timeout time.Duration) *UltrafeederClient {
	if url == "" {
		url = DefaultUltrafeederURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UltrafeederClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL returns the endpoint this client polls.
func (c *UltrafeederClient) URL() string {
	return c.url
}

// Snapshot fetches the decoder's current aircraft list.
func (c *UltrafeederClient) Snapshot(ctx context.Context) (*Snapshot, error) {
	return fetchSnapshot(ctx, c.httpClient, c.url)
}

// Close releases idle connections.
func (c *UltrafeederClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
