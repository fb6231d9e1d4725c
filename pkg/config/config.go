package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/unklstewy/adsb-closest/pkg/closest"
	"github.com/unklstewy/adsb-closest/pkg/coordinates"
)

// Feed types accepted in FeedConfig.Type.
const (
	FeedUltrafeeder   = "ultrafeeder"
	FeedAirplanesLive = "airplanes.live"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Feed        FeedConfig        `json:"feed"`
	Observer    ObserverConfig    `json:"observer"`
	FlightAware FlightAwareConfig `json:"flightaware"`
	Enrichment  EnrichmentConfig  `json:"enrichment"`
	Logging     LoggingConfig     `json:"logging"`

	// Warnings collects environment values that could not be applied.
	Warnings []string `json:"-"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 3000)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// CORSOrigins lists origins allowed to call the API (default: all)
	CORSOrigins []string `json:"cors_origins"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains database connection settings.
// The database only caches route lookups; it is optional.
type DatabaseConfig struct {
	// Enabled turns on the Postgres route cache
	Enabled bool `json:"enabled"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`
}

// FeedConfig selects and tunes the aircraft feed.
type FeedConfig struct {
	// Type is "ultrafeeder" (local decoder aircraft.json) or "airplanes.live"
	Type string `json:"type"`

	// URL is the aircraft.json URL for ultrafeeder, or the API base URL
	// for airplanes.live. Empty selects the feed's default.
	URL string `json:"url"`

	// PollIntervalSeconds is the refresh interval (default: 3)
	PollIntervalSeconds float64 `json:"poll_interval_seconds"`

	// TimeoutSeconds bounds one fetch (default: 10)
	TimeoutSeconds float64 `json:"timeout_seconds"`

	// RadiusNM is the airplanes.live query radius (max 250)
	RadiusNM float64 `json:"radius_nm"`

	// RateLimitSeconds is the minimum time between airplanes.live calls
	RateLimitSeconds float64 `json:"rate_limit_seconds"`
}

// PollInterval returns the refresh interval as a duration.
func (f FeedConfig) PollInterval() time.Duration {
	return secondsToDuration(f.PollIntervalSeconds)
}

// Timeout returns the per-fetch timeout as a duration.
func (f FeedConfig) Timeout() time.Duration {
	return secondsToDuration(f.TimeoutSeconds)
}

// RateLimit returns the minimum spacing between API calls.
func (f FeedConfig) RateLimit() time.Duration {
	return secondsToDuration(f.RateLimitSeconds)
}

// ObserverConfig contains the observer's geographic location.
// Latitude and Longitude are pointers so that an unset position is
// distinguishable from 0,0.
type ObserverConfig struct {
	// Name is a friendly identifier for this observer location
	Name string `json:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude *float64 `json:"latitude,omitempty"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude *float64 `json:"longitude,omitempty"`
}

// ReferencePoint returns the configured observer position. A missing or
// out-of-range position yields an error wrapping closest.ErrReferenceUnset.
func (o ObserverConfig) ReferencePoint() (*coordinates.Geographic, error) {
	if o.Latitude == nil || o.Longitude == nil {
		return nil, fmt.Errorf("%w: set ADSB_CLOSEST_HOME_LAT and ADSB_CLOSEST_HOME_LON", closest.ErrReferenceUnset)
	}
	ref := coordinates.Geographic{Latitude: *o.Latitude, Longitude: *o.Longitude}
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %v is outside the valid latitude/longitude range", closest.ErrReferenceUnset, ref)
	}
	return &ref, nil
}

// FlightAwareConfig contains FlightAware AeroAPI settings.
type FlightAwareConfig struct {
	// APIKey is the FlightAware API key for AeroAPI v4
	// Sign up at: https://www.flightaware.com/aeroapi/
	APIKey string `json:"api_key"`

	// Enabled determines if FlightAware lookups should be used
	Enabled bool `json:"enabled"`

	// RequestsPerHour limits the API call rate
	// Free tier: ~0.7 requests/hour (500/month)
	// Basic tier: ~340 requests/hour (250,000/month)
	RequestsPerHour int `json:"requests_per_hour"`

	// CacheSize is the number of callsigns kept in memory
	CacheSize int `json:"cache_size"`
}

// EnrichmentConfig controls the best-effort route annotation.
type EnrichmentConfig struct {
	// Enabled turns annotation on; the selection itself never depends on it
	Enabled bool `json:"enabled"`

	// GuessFromCallsign derives airline and flight number from the callsign
	GuessFromCallsign bool `json:"guess_from_callsign"`

	// AirlinesFile is an optional CSV (code,name) extending the airline table
	AirlinesFile string `json:"airlines_file"`

	// RoutesFile is an optional CSV of known routes keyed by hex
	RoutesFile string `json:"routes_file"`

	// RouteTTLMinutes is how long looked-up routes stay cached
	RouteTTLMinutes int `json:"route_ttl_minutes"`
}

// RouteTTL returns the route cache lifetime.
func (e EnrichmentConfig) RouteTTL() time.Duration {
	return time.Duration(e.RouteTTLMinutes) * time.Minute
}

// LoggingConfig controls log level, format and destination.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level"`

	// Format is text or json
	Format string `json:"format"`

	// File, when set, receives logs with size-based rotation
	File string `json:"file"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()
	cfg.applyDefaults()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
// The observer position has no default.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3000",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Enabled:      false,
			Host:         "localhost",
			Port:         5432,
			Database:     "adsbclosest",
			Username:     "adsbclosest",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Feed: FeedConfig{
			Type:                FeedUltrafeeder,
			URL:                 "",
			PollIntervalSeconds: 3,
			TimeoutSeconds:      10,
			RadiusNM:            50,
			RateLimitSeconds:    1,
		},
		Observer: ObserverConfig{
			Name: "Home",
		},
		FlightAware: FlightAwareConfig{
			Enabled:         false,
			RequestsPerHour: 1, // Conservative default for free tier
			CacheSize:       256,
		},
		Enrichment: EnrichmentConfig{
			Enabled:           true,
			GuessFromCallsign: true,
			RouteTTLMinutes:   60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports configuration that would prevent startup.
// A missing observer position is not an error here; it surfaces as a
// config error in every refresh cycle instead.
func (c *Config) Validate() error {
	switch c.Feed.Type {
	case FeedUltrafeeder, FeedAirplanesLive:
	default:
		return fmt.Errorf("unknown feed type %q (want %q or %q)", c.Feed.Type, FeedUltrafeeder, FeedAirplanesLive)
	}
	if c.Feed.PollIntervalSeconds <= 0 {
		return fmt.Errorf("feed poll interval must be positive, got %v", c.Feed.PollIntervalSeconds)
	}
	if c.Feed.TimeoutSeconds <= 0 {
		return fmt.Errorf("feed timeout must be positive, got %v", c.Feed.TimeoutSeconds)
	}
	if c.FlightAware.Enabled && c.FlightAware.APIKey == "" {
		return errors.New("flightaware is enabled but no API key is set")
	}
	return nil
}

// applyDefaults fills zero values that a partial config file left behind.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Feed.Type == "" {
		c.Feed.Type = d.Feed.Type
	}
	if c.Feed.TimeoutSeconds == 0 {
		c.Feed.TimeoutSeconds = d.Feed.TimeoutSeconds
	}
	if c.FlightAware.CacheSize <= 0 {
		c.FlightAware.CacheSize = d.FlightAware.CacheSize
	}
	if c.FlightAware.RequestsPerHour <= 0 {
		c.FlightAware.RequestsPerHour = d.FlightAware.RequestsPerHour
	}
	if c.Enrichment.RouteTTLMinutes <= 0 {
		c.Enrichment.RouteTTLMinutes = d.Enrichment.RouteTTLMinutes
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
// The NEXT_PUBLIC_* names are accepted for compatibility with the browser
// dashboard's .env files.
func (c *Config) applyEnvironmentOverrides() {
	if lat, ok := c.envFloat("ADSB_CLOSEST_HOME_LAT", "NEXT_PUBLIC_HOME_LAT"); ok {
		c.Observer.Latitude = &lat
	}
	if lon, ok := c.envFloat("ADSB_CLOSEST_HOME_LON", "NEXT_PUBLIC_HOME_LON"); ok {
		c.Observer.Longitude = &lon
	}
	if url := firstEnv("ADSB_CLOSEST_FEED_URL", "NEXT_PUBLIC_ADSB_ULTRAFEEDER_URL"); url != "" {
		c.Feed.URL = url
	}
	if feedType := os.Getenv("ADSB_CLOSEST_FEED_TYPE"); feedType != "" {
		c.Feed.Type = feedType
	}
	if interval := os.Getenv("ADSB_CLOSEST_POLL_INTERVAL"); interval != "" {
		if seconds, err := parseSeconds(interval); err == nil && seconds > 0 {
			c.Feed.PollIntervalSeconds = seconds
		} else {
			c.warnf("ignoring ADSB_CLOSEST_POLL_INTERVAL=%q: want a duration like 5s or a number of seconds", interval)
		}
	}
	if port := os.Getenv("ADSB_CLOSEST_PORT"); port != "" {
		c.Server.Port = port
	}
	if enabled := os.Getenv("ADSB_CLOSEST_DB_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Database.Enabled = v
		} else {
			c.warnf("ignoring ADSB_CLOSEST_DB_ENABLED=%q: not a boolean", enabled)
		}
	}
	if dbHost := os.Getenv("ADSB_CLOSEST_DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPassword := os.Getenv("ADSB_CLOSEST_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if faKey := os.Getenv("ADSB_CLOSEST_FLIGHTAWARE_API_KEY"); faKey != "" {
		c.FlightAware.APIKey = faKey
		c.FlightAware.Enabled = true
	}
	if level := os.Getenv("ADSB_CLOSEST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("ADSB_CLOSEST_LOG_FILE"); file != "" {
		c.Logging.File = file
	}
}

func (c *Config) envFloat(names ...string) (float64, bool) {
	for _, name := range names {
		raw := strings.TrimSpace(os.Getenv(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.warnf("ignoring %s=%q: not a number", name, raw)
			continue
		}
		return v, true
	}
	return 0, false
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// parseSeconds accepts a Go duration ("5s", "1500ms") or plain seconds ("5").
func parseSeconds(raw string) (float64, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d.Seconds(), nil
	}
	return strconv.ParseFloat(raw, 64)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
