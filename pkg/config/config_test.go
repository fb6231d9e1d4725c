package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/unklstewy/adsb-closest/pkg/closest"
)

var envNames = []string{
	"ADSB_CLOSEST_HOME_LAT", "ADSB_CLOSEST_HOME_LON", "NEXT_PUBLIC_HOME_LAT", "NEXT_PUBLIC_HOME_LON",
	"ADSB_CLOSEST_FEED_URL", "NEXT_PUBLIC_ADSB_ULTRAFEEDER_URL", "ADSB_CLOSEST_FEED_TYPE",
	"ADSB_CLOSEST_POLL_INTERVAL", "ADSB_CLOSEST_PORT", "ADSB_CLOSEST_DB_ENABLED", "ADSB_CLOSEST_DB_HOST",
	"ADSB_CLOSEST_DB_PASSWORD", "ADSB_CLOSEST_FLIGHTAWARE_API_KEY", "ADSB_CLOSEST_LOG_LEVEL",
	"ADSB_CLOSEST_LOG_FILE",
}

// clearEnv blanks every variable the loader reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "3000" {
		t.Errorf("Expected default port 3000, got %s", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Feed.Type != FeedUltrafeeder {
		t.Errorf("Expected ultrafeeder feed, got %s", cfg.Feed.Type)
	}
	if cfg.Feed.PollInterval() != 3*time.Second {
		t.Errorf("Expected poll interval 3s, got %v", cfg.Feed.PollInterval())
	}
	if cfg.Feed.Timeout() != 10*time.Second {
		t.Errorf("Expected timeout 10s, got %v", cfg.Feed.Timeout())
	}

	if cfg.Observer.Latitude != nil || cfg.Observer.Longitude != nil {
		t.Error("Expected no default observer position")
	}

	if cfg.Database.Enabled {
		t.Error("Expected database disabled by default")
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected default postgres port 5432, got %d", cfg.Database.Port)
	}

	if cfg.FlightAware.Enabled {
		t.Error("Expected FlightAware disabled by default")
	}
	if cfg.FlightAware.RequestsPerHour != 1 {
		t.Errorf("Expected 1 request/hour, got %d", cfg.FlightAware.RequestsPerHour)
	}

	if !cfg.Enrichment.Enabled || !cfg.Enrichment.GuessFromCallsign {
		t.Error("Expected callsign enrichment enabled by default")
	}
	if cfg.Enrichment.RouteTTL() != time.Hour {
		t.Errorf("Expected route TTL 1h, got %v", cfg.Enrichment.RouteTTL())
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}

// TestLoadNonExistentFile tests that Load returns default config when file doesn't exist.
func TestLoadNonExistentFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("/nonexistent/path/config.json")
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config, got nil")
	}
	if cfg.Server.Port != "3000" {
		t.Error("Did not get default config for non-existent file")
	}
}

// TestLoadValidConfig tests loading a valid configuration file.
func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.json")

	lat, lon := 52.52, 13.405
	testConfig := &Config{
		Server: ServerConfig{
			Port: "9090",
			Host: "127.0.0.1",
		},
		Database: DatabaseConfig{
			Enabled:  true,
			Host:     "db.example.com",
			Port:     5433,
			Database: "testdb",
			Username: "testuser",
		},
		Feed: FeedConfig{
			Type:                FeedAirplanesLive,
			URL:                 "https://test.api",
			PollIntervalSeconds: 5,
			TimeoutSeconds:      4,
			RadiusNM:            25,
		},
		Observer: ObserverConfig{
			Name:      "Test Observer",
			Latitude:  &lat,
			Longitude: &lon,
		},
		FlightAware: FlightAwareConfig{
			Enabled:         true,
			APIKey:          "test-key",
			RequestsPerHour: 100,
		},
	}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal test config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("Expected db.example.com, got %s", cfg.Database.Host)
	}
	if cfg.Feed.Type != FeedAirplanesLive {
		t.Errorf("Expected airplanes.live feed, got %s", cfg.Feed.Type)
	}
	if cfg.Feed.PollInterval() != 5*time.Second {
		t.Errorf("Expected poll interval 5s, got %v", cfg.Feed.PollInterval())
	}

	ref, err := cfg.Observer.ReferencePoint()
	if err != nil {
		t.Fatalf("Expected reference point, got error: %v", err)
	}
	if ref.Latitude != 52.52 || ref.Longitude != 13.405 {
		t.Errorf("Expected 52.52,13.405, got %v", ref)
	}
}

// TestLoadPartialConfigKeepsDefaults checks that omitted sections fall back to defaults.
func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "partial.json")
	if err := os.WriteFile(configPath, []byte(`{"observer": {"latitude": 40.64, "longitude": -73.78}}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Feed.Type != FeedUltrafeeder {
		t.Errorf("Expected default feed type, got %s", cfg.Feed.Type)
	}
	if cfg.Feed.PollInterval() != 3*time.Second {
		t.Errorf("Expected default poll interval, got %v", cfg.Feed.PollInterval())
	}
	if cfg.Server.Port != "3000" {
		t.Errorf("Expected default port, got %s", cfg.Server.Port)
	}
	if _, err := cfg.Observer.ReferencePoint(); err != nil {
		t.Errorf("Expected reference point from file, got: %v", err)
	}
}

// TestLoadInvalidJSON tests error handling for malformed JSON.
func TestLoadInvalidJSON(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "invalid.json")

	if err := os.WriteFile(configPath, []byte("{ invalid json }"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("Expected parse error, got: %v", err)
	}
}

// TestSaveConfig tests saving configuration to file.
func TestSaveConfig(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "nested", "saved-config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = "9999"
	cfg.Observer.Name = "Test Save"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Server.Port != "9999" {
		t.Errorf("Expected port 9999, got %s", loaded.Server.Port)
	}
	if loaded.Observer.Name != "Test Save" {
		t.Errorf("Expected observer name 'Test Save', got %s", loaded.Observer.Name)
	}
	if loaded.Observer.Latitude != nil {
		t.Error("Expected unset latitude to stay unset after a round trip")
	}
}

// TestEnvironmentOverrides tests that environment variables override config values.
func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADSB_CLOSEST_HOME_LAT", "52.52")
	t.Setenv("ADSB_CLOSEST_HOME_LON", "13.405")
	t.Setenv("ADSB_CLOSEST_FEED_URL", "http://feeder.lan:8080/data/aircraft.json")
	t.Setenv("ADSB_CLOSEST_POLL_INTERVAL", "5s")
	t.Setenv("ADSB_CLOSEST_PORT", "7777")
	t.Setenv("ADSB_CLOSEST_DB_ENABLED", "true")
	t.Setenv("ADSB_CLOSEST_DB_PASSWORD", "secret")
	t.Setenv("ADSB_CLOSEST_FLIGHTAWARE_API_KEY", "fa-key")
	t.Setenv("ADSB_CLOSEST_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ref, err := cfg.Observer.ReferencePoint()
	if err != nil {
		t.Fatalf("Expected reference point, got: %v", err)
	}
	if ref.Latitude != 52.52 || ref.Longitude != 13.405 {
		t.Errorf("Expected 52.52,13.405, got %v", ref)
	}
	if cfg.Feed.URL != "http://feeder.lan:8080/data/aircraft.json" {
		t.Errorf("Expected feed URL override, got %s", cfg.Feed.URL)
	}
	if cfg.Feed.PollInterval() != 5*time.Second {
		t.Errorf("Expected poll interval 5s, got %v", cfg.Feed.PollInterval())
	}
	if cfg.Server.Port != "7777" {
		t.Errorf("Expected port 7777, got %s", cfg.Server.Port)
	}
	if !cfg.Database.Enabled || cfg.Database.Password != "secret" {
		t.Error("Expected database overrides to apply")
	}
	if !cfg.FlightAware.Enabled || cfg.FlightAware.APIKey != "fa-key" {
		t.Error("Expected FlightAware key to enable the integration")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", cfg.Warnings)
	}
}

// TestDashboardEnvironmentAliases tests the NEXT_PUBLIC_* compatibility names.
func TestDashboardEnvironmentAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEXT_PUBLIC_HOME_LAT", "48.8566")
	t.Setenv("NEXT_PUBLIC_HOME_LON", "2.3522")
	t.Setenv("NEXT_PUBLIC_ADSB_ULTRAFEEDER_URL", "http://ultrafeeder/data/aircraft.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := cfg.Observer.ReferencePoint(); err != nil {
		t.Errorf("Expected reference point from aliases, got: %v", err)
	}
	if cfg.Feed.URL != "http://ultrafeeder/data/aircraft.json" {
		t.Errorf("Expected feed URL alias, got %s", cfg.Feed.URL)
	}

	t.Setenv("ADSB_CLOSEST_HOME_LAT", "1.5")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *cfg.Observer.Latitude != 1.5 {
		t.Errorf("Expected primary name to win over alias, got %v", *cfg.Observer.Latitude)
	}
}

// TestPollIntervalFormats tests the accepted interval spellings.
func TestPollIntervalFormats(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
		warn bool
	}{
		{"5s", 5 * time.Second, false},
		{"1500ms", 1500 * time.Millisecond, false},
		{"4", 4 * time.Second, false},
		{"2.5", 2500 * time.Millisecond, false},
		{"soon", 3 * time.Second, true},
		{"-1s", 3 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ADSB_CLOSEST_POLL_INTERVAL", tt.raw)

			cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Feed.PollInterval() != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, cfg.Feed.PollInterval())
			}
			if (len(cfg.Warnings) > 0) != tt.warn {
				t.Errorf("Expected warning=%v, got %v", tt.warn, cfg.Warnings)
			}
		})
	}
}

// TestReferencePoint tests observer position validation.
func TestReferencePoint(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }

	tests := []struct {
		name    string
		obs     ObserverConfig
		wantErr bool
	}{
		{"Both set", ObserverConfig{Latitude: ptr(52.52), Longitude: ptr(13.405)}, false},
		{"Origin is a valid position", ObserverConfig{Latitude: ptr(0), Longitude: ptr(0)}, false},
		{"Latitude missing", ObserverConfig{Longitude: ptr(13.405)}, true},
		{"Longitude missing", ObserverConfig{Latitude: ptr(52.52)}, true},
		{"Neither set", ObserverConfig{}, true},
		{"Latitude out of range", ObserverConfig{Latitude: ptr(91), Longitude: ptr(0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := tt.obs.ReferencePoint()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Expected error, got %v", ref)
				}
				if !errors.Is(err, closest.ErrReferenceUnset) {
					t.Errorf("Expected ErrReferenceUnset, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
		})
	}
}

// TestUnparseableCoordinatesAreWarnings tests that bad env values never crash startup.
func TestUnparseableCoordinatesAreWarnings(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADSB_CLOSEST_HOME_LAT", "fifty-two")
	t.Setenv("ADSB_CLOSEST_HOME_LON", "13.405")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Warnings) != 1 {
		t.Errorf("Expected 1 warning, got %v", cfg.Warnings)
	}
	if _, err := cfg.Observer.ReferencePoint(); !errors.Is(err, closest.ErrReferenceUnset) {
		t.Errorf("Expected ErrReferenceUnset, got %v", err)
	}
}

// TestValidate tests startup validation.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"Defaults", func(*Config) {}, false},
		{"airplanes.live", func(c *Config) { c.Feed.Type = FeedAirplanesLive }, false},
		{"Unknown feed", func(c *Config) { c.Feed.Type = "sbs" }, true},
		{"Zero interval", func(c *Config) { c.Feed.PollIntervalSeconds = 0 }, true},
		{"Zero timeout", func(c *Config) { c.Feed.TimeoutSeconds = 0 }, true},
		{"FlightAware without key", func(c *Config) { c.FlightAware.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: "3000"}
	if s.Addr() != "127.0.0.1:3000" {
		t.Errorf("Expected 127.0.0.1:3000, got %s", s.Addr())
	}
}
