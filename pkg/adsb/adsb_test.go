package adsb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unklstewy/adsb-closest/pkg/coordinates"
)

const sampleAircraftJSON = `{
  "now": 1718000000.5,
  "messages": 123456,
  "aircraft": [
    {"hex": "3c6444", "flight": "DLH400  ", "alt_baro": 36000, "alt_geom": 36575, "gs": 452.3,
     "track": 271.5, "baro_rate": -64, "squawk": "1000", "lat": 52.53, "lon": 13.40,
     "rssi": -21.4, "seen": 0.3, "category": "A3", "nav_modes": ["autopilot"]},
    {"hex": "4ca7b5", "alt_baro": "ground", "gs": 0, "lat": 52.36, "lon": 13.50},
    {"hex": "~2d0f1a", "flight": "", "baro_rate": 0, "seen": 12.1}
  ]
}`

// TestNewUltrafeederClient tests client construction.
func TestNewUltrafeederClient(t *testing.T) {
	client := NewUltrafeederClient("", 0)

	if client == nil {
		t.Fatal("Expected client, got nil")
	}
	if client.URL() != DefaultUltrafeederURL {
		t.Errorf("Expected URL %s, got %s", DefaultUltrafeederURL, client.URL())
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", client.httpClient.Timeout)
	}

	custom := NewUltrafeederClient("http://feeder.lan/data/aircraft.json", 2*time.Second)
	if custom.URL() != "http://feeder.lan/data/aircraft.json" {
		t.Errorf("Expected custom URL, got %s", custom.URL())
	}
	if custom.httpClient.Timeout != 2*time.Second {
		t.Errorf("Expected timeout 2s, got %v", custom.httpClient.Timeout)
	}
}

// TestUltrafeederSnapshot tests fetching and decoding aircraft.json.
func TestUltrafeederSnapshot(t *testing.T) {
	t.Run("Successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/data/aircraft.json" {
				t.Errorf("Expected path /data/aircraft.json, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(sampleAircraftJSON))
		}))
		defer server.Close()

		client := NewUltrafeederClient(server.URL+"/data/aircraft.json", time.Second)
		snap, err := client.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		if snap.Messages != 123456 {
			t.Errorf("Expected 123456 messages, got %d", snap.Messages)
		}
		if want := time.Unix(1718000000, 500000000).UTC(); !snap.Now.Equal(want) {
			t.Errorf("Expected now %v, got %v", want, snap.Now)
		}
		if len(snap.Aircraft) != 3 {
			t.Fatalf("Expected 3 aircraft, got %d", len(snap.Aircraft))
		}

		ac := snap.Aircraft[0]
		if ac.Hex != "3C6444" {
			t.Errorf("Expected hex 3C6444, got %s", ac.Hex)
		}
		if ac.Callsign() != "DLH400" {
			t.Errorf("Expected callsign DLH400, got %q", ac.Callsign())
		}
		if ac.AltBaro == nil || *ac.AltBaro != 36000 {
			t.Errorf("Expected alt_baro 36000, got %v", ac.AltBaro)
		}
		if ac.OnGround {
			t.Error("Expected airborne aircraft")
		}
		if ac.BaroRate == nil || *ac.BaroRate != -64 {
			t.Errorf("Expected baro_rate -64, got %v", ac.BaroRate)
		}
		if ac.Squawk == nil || *ac.Squawk != "1000" {
			t.Errorf("Expected squawk 1000, got %v", ac.Squawk)
		}
		if ac.DistanceKm != nil {
			t.Error("Expected distance to be unset on decoded samples")
		}
	})

	t.Run("Ground altitude decodes to zero with flag", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(sampleAircraftJSON))
		}))
		defer server.Close()

		snap, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		ac := snap.Aircraft[1]
		if !ac.OnGround {
			t.Error("Expected OnGround for alt_baro \"ground\"")
		}
		if ac.AltBaro == nil || *ac.AltBaro != 0 {
			t.Errorf("Expected alt_baro 0, got %v", ac.AltBaro)
		}
		if ac.GroundSpeed == nil || *ac.GroundSpeed != 0 {
			t.Errorf("Expected reported zero ground speed, got %v", ac.GroundSpeed)
		}
		if ac.Flight != nil {
			t.Errorf("Expected no callsign, got %q", *ac.Flight)
		}
	})

	t.Run("Absent fields stay absent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(sampleAircraftJSON))
		}))
		defer server.Close()

		snap, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		ac := snap.Aircraft[2]
		if ac.Hex != "~2D0F1A" {
			t.Errorf("Expected hex ~2D0F1A, got %s", ac.Hex)
		}
		if ac.HasPosition() {
			t.Error("Expected no position")
		}
		if ac.AltBaro != nil || ac.GroundSpeed != nil || ac.Track != nil || ac.RSSI != nil {
			t.Error("Expected unreported numeric fields to be nil")
		}
		if ac.BaroRate == nil || *ac.BaroRate != 0 {
			t.Errorf("Expected reported zero baro_rate, got %v", ac.BaroRate)
		}
		if ac.Flight != nil {
			t.Error("Expected blank callsign to be treated as absent")
		}
	})

	t.Run("Empty aircraft array", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"now": 1718000000, "messages": 1, "aircraft": []}`))
		}))
		defer server.Close()

		snap, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(snap.Aircraft) != 0 {
			t.Errorf("Expected 0 aircraft, got %d", len(snap.Aircraft))
		}
	})

	t.Run("Wrongly typed entries do not reject the document", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"now": 1718000000, "aircraft": [
				{"hex": "abc123", "lat": 52.53, "lon": 13.40},
				{"hex": "bad001", "lat": "52.6", "lon": "13.5", "gs": "n/a", "flight": 42},
				{"hex": 7, "lat": 52.5, "lon": 13.4},
				"not an object"
			]}`))
		}))
		defer server.Close()

		snap, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(snap.Aircraft) != 2 {
			t.Fatalf("Expected 2 aircraft, got %d", len(snap.Aircraft))
		}
		if snap.Skipped != 2 {
			t.Errorf("Expected 2 skipped entries, got %d", snap.Skipped)
		}

		bad := snap.Aircraft[1]
		if bad.Hex != "BAD001" {
			t.Errorf("Expected hex BAD001, got %s", bad.Hex)
		}
		if bad.HasPosition() {
			t.Error("Expected string coordinates to count as absent")
		}
		if bad.GroundSpeed != nil || bad.Flight != nil {
			t.Error("Expected wrongly typed optional fields to be nil")
		}
	})

	t.Run("Non-success status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("decoder restarting"))
		}))
		defer server.Close()

		_, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("Expected *StatusError, got %T: %v", err, err)
		}
		if statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("Expected status 503, got %d", statusErr.StatusCode)
		}
		if statusErr.Body != "decoder restarting" {
			t.Errorf("Expected body to be kept, got %q", statusErr.Body)
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"now": 1718000000, "aircraft": [`))
		}))
		defer server.Close()

		_, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("Expected *ParseError, got %T: %v", err, err)
		}
	})

	t.Run("Missing aircraft array", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"now": 1718000000, "messages": 10}`))
		}))
		defer server.Close()

		_, err := NewUltrafeederClient(server.URL, time.Second).Snapshot(context.Background())
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("Expected *ParseError, got %T: %v", err, err)
		}
	})

	t.Run("Unreachable upstream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		_, err := NewUltrafeederClient(url, time.Second).Snapshot(context.Background())
		if err == nil {
			t.Fatal("Expected transport error, got nil")
		}
		var statusErr *StatusError
		var parseErr *ParseError
		if errors.As(err, &statusErr) || errors.As(err, &parseErr) {
			t.Errorf("Expected plain transport error, got %T", err)
		}
	})

	t.Run("Cancelled context", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := NewUltrafeederClient(server.URL, 5*time.Second).Snapshot(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

// TestAircraftUnmarshalAltitude covers the alt_baro encodings seen in feeds.
func TestAircraftUnmarshalAltitude(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantAlt    *float64
		wantGround bool
	}{
		{"Number", `{"hex":"abc","alt_baro":1200}`, floatPtr(1200), false},
		{"Zero is reported", `{"hex":"abc","alt_baro":0}`, floatPtr(0), false},
		{"Negative", `{"hex":"abc","alt_baro":-75}`, floatPtr(-75), false},
		{"Ground", `{"hex":"abc","alt_baro":"ground"}`, floatPtr(0), true},
		{"Numeric string", `{"hex":"abc","alt_baro":"3500"}`, floatPtr(3500), false},
		{"Unknown string", `{"hex":"abc","alt_baro":"n/a"}`, nil, false},
		{"Null", `{"hex":"abc","alt_baro":null}`, nil, false},
		{"Missing", `{"hex":"abc"}`, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ac Aircraft
			if err := json.Unmarshal([]byte(tt.input), &ac); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if (ac.AltBaro == nil) != (tt.wantAlt == nil) {
				t.Fatalf("Expected altitude %v, got %v", tt.wantAlt, ac.AltBaro)
			}
			if tt.wantAlt != nil && *ac.AltBaro != *tt.wantAlt {
				t.Errorf("Expected altitude %v, got %v", *tt.wantAlt, *ac.AltBaro)
			}
			if ac.OnGround != tt.wantGround {
				t.Errorf("Expected OnGround %v, got %v", tt.wantGround, ac.OnGround)
			}
		})
	}
}

// TestAircraftRoundTrip checks that encoded aircraft decode to the same values.
func TestAircraftRoundTrip(t *testing.T) {
	original := Aircraft{
		Hex:        "3C6444",
		Flight:     strPtr("DLH400"),
		AltBaro:    floatPtr(0),
		OnGround:   true,
		Lat:        floatPtr(52.53),
		Lon:        floatPtr(13.40),
		DistanceKm: floatPtr(1.16),
		Route:      &Route{Airline: "Lufthansa", Source: "callsign"},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Aircraft
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !decoded.OnGround {
		t.Error("Expected OnGround to survive the round trip")
	}
	if decoded.DistanceKm == nil || *decoded.DistanceKm != 1.16 {
		t.Errorf("Expected distance 1.16, got %v", decoded.DistanceKm)
	}
	if decoded.Route == nil || decoded.Route.Airline != "Lufthansa" {
		t.Errorf("Expected route to survive the round trip, got %+v", decoded.Route)
	}
}

// TestAirplanesLiveSnapshot tests the airplanes.live feed.
func TestAirplanesLiveSnapshot(t *testing.T) {
	t.Run("Queries around the center", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expectedPath := "/point/35.0000/-80.0000/100"
			if r.URL.Path != expectedPath {
				t.Errorf("Expected path %s, got %s", expectedPath, r.URL.Path)
			}
			w.Write([]byte(`{"ac": [{"hex": "a12345", "flight": "UAL123 ", "lat": 35.5, "lon": -80.5,
				"alt_baro": 30000, "gs": 450}], "msg": "No error", "now": 1718000000123, "total": 1}`))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(AirplanesLiveConfig{
			BaseURL:  server.URL,
			Center:   coordinates.Geographic{Latitude: 35.0, Longitude: -80.0},
			RadiusNM: 100,
		})
		snap, err := client.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(snap.Aircraft) != 1 {
			t.Fatalf("Expected 1 aircraft, got %d", len(snap.Aircraft))
		}
		if snap.Aircraft[0].Hex != "A12345" {
			t.Errorf("Expected hex A12345, got %s", snap.Aircraft[0].Hex)
		}
		if snap.Aircraft[0].Callsign() != "UAL123" {
			t.Errorf("Expected callsign UAL123, got %s", snap.Aircraft[0].Callsign())
		}
		if want := time.UnixMilli(1718000000123).UTC(); !snap.Now.Equal(want) {
			t.Errorf("Expected now %v, got %v", want, snap.Now)
		}
	})

	t.Run("Caps radius at 250 NM", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/point/35.0000/-80.0000/250" {
				t.Errorf("Expected radius capped at 250, got path %s", r.URL.Path)
			}
			w.Write([]byte(`{"ac": []}`))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(AirplanesLiveConfig{
			BaseURL:  server.URL,
			Center:   coordinates.Geographic{Latitude: 35.0, Longitude: -80.0},
			RadiusNM: 500,
		})
		if _, err := client.Snapshot(context.Background()); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
	})

	t.Run("Handles rate limit error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("Rate limit exceeded"))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(AirplanesLiveConfig{BaseURL: server.URL})
		_, err := client.Snapshot(context.Background())

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("Expected *StatusError, got %T: %v", err, err)
		}
		if statusErr.StatusCode != http.StatusTooManyRequests {
			t.Errorf("Expected status 429, got %d", statusErr.StatusCode)
		}
		if statusErr.RetryAfter != 30*time.Second {
			t.Errorf("Expected retry after 30s, got %v", statusErr.RetryAfter)
		}
	})

	t.Run("Paces consecutive requests", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ac": []}`))
		}))
		defer server.Close()

		client := NewAirplanesLiveClient(AirplanesLiveConfig{
			BaseURL:     server.URL,
			MinInterval: 100 * time.Millisecond,
		})

		start := time.Now()
		for i := 0; i < 3; i++ {
			if _, err := client.Snapshot(context.Background()); err != nil {
				t.Fatalf("Request %d failed: %v", i, err)
			}
		}
		if elapsed := time.Since(start); elapsed < 180*time.Millisecond {
			t.Errorf("Expected requests to be paced, took only %v", elapsed)
		}
	})
}

// TestParseRetryAfter tests Retry-After header parsing.
func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"Empty", "", 0},
		{"Seconds", "30", 30 * time.Second},
		{"Zero", "0", 0},
		{"Garbage", "soon", 0},
		{"Past date", "Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.header != "" {
				headers.Set("Retry-After", tt.header)
			}
			if got := parseRetryAfter(headers); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// Helper functions
func strPtr(s string) *string {
	return &s
}

func floatPtr(f float64) *float64 {
	return &f
}
