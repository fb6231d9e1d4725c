package adsb

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Aircraft is one reported state of a tracked aircraft at snapshot time.
// Optional values are pointers: nil means the feed did not report the
// field, which is different from a reported zero.
type Aircraft struct {
	// Hex is the 24-bit transponder address, upper-cased (e.g., "3C6444").
	// Non-ICAO addresses keep their "~" prefix.
	Hex string `json:"hex"`

	// Flight is the callsign with padding removed
	Flight *string `json:"flight,omitempty"`

	// Squawk is the Mode A code (e.g., "7000")
	Squawk *string `json:"squawk,omitempty"`

	// AltBaro is barometric altitude in feet.
	// The feed reports "ground" for aircraft on the ground; that decodes
	// to 0 with OnGround set.
	AltBaro *float64 `json:"alt_baro,omitempty"`

	// OnGround is true when the feed reported alt_baro as "ground"
	OnGround bool `json:"on_ground,omitempty"`

	// AltGeom is geometric (GNSS) altitude in feet
	AltGeom *float64 `json:"alt_geom,omitempty"`

	// GroundSpeed in knots
	GroundSpeed *float64 `json:"gs,omitempty"`

	// Track is the ground track in degrees (0-360)
	Track *float64 `json:"track,omitempty"`

	// BaroRate is barometric vertical rate in feet/minute
	BaroRate *float64 `json:"baro_rate,omitempty"`

	// Lat is latitude in decimal degrees
	Lat *float64 `json:"lat,omitempty"`

	// Lon is longitude in decimal degrees
	Lon *float64 `json:"lon,omitempty"`

	// RSSI is the signal strength in dBFS
	RSSI *float64 `json:"rssi,omitempty"`

	// Seen is seconds since the last message from this aircraft
	Seen *float64 `json:"seen,omitempty"`

	// DistanceKm is the great-circle distance from the reference point.
	// Only set on copies returned by the selector.
	DistanceKm *float64 `json:"distance_km,omitempty"`

	// Route is a best-effort annotation attached after selection
	Route *Route `json:"route,omitempty"`
}

// Route describes the flight an aircraft is believed to be operating.
// Every field is optional; Source names the enricher that produced it.
type Route struct {
	Airline      string `json:"airline,omitempty"`
	FlightNumber string `json:"flight_number,omitempty"`
	FromIATA     string `json:"from_iata,omitempty"`
	ToIATA       string `json:"to_iata,omitempty"`
	FromCity     string `json:"from_city,omitempty"`
	ToCity       string `json:"to_city,omitempty"`
	Status       string `json:"status,omitempty"`
	Source       string `json:"source"`
}

// Callsign returns the trimmed callsign or "" when none was reported.
func (a Aircraft) Callsign() string {
	if a.Flight == nil {
		return ""
	}
	return *a.Flight
}

// Clone returns a deep copy; writes through the copy's pointers never
// reach the original.
func (a Aircraft) Clone() Aircraft {
	c := a
	c.Flight = clonePtr(a.Flight)
	c.Squawk = clonePtr(a.Squawk)
	c.AltBaro = clonePtr(a.AltBaro)
	c.AltGeom = clonePtr(a.AltGeom)
	c.GroundSpeed = clonePtr(a.GroundSpeed)
	c.Track = clonePtr(a.Track)
	c.BaroRate = clonePtr(a.BaroRate)
	c.Lat = clonePtr(a.Lat)
	c.Lon = clonePtr(a.Lon)
	c.RSSI = clonePtr(a.RSSI)
	c.Seen = clonePtr(a.Seen)
	c.DistanceKm = clonePtr(a.DistanceKm)
	c.Route = clonePtr(a.Route)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// HasPosition reports whether both latitude and longitude were reported.
func (a Aircraft) HasPosition() bool {
	return a.Lat != nil && a.Lon != nil
}

// UnmarshalJSON decodes one aircraft entry, accepting alt_baro as either
// a number or the string "ground". Optional values of the wrong JSON type
// decode as not reported.
func (a *Aircraft) UnmarshalJSON(data []byte) error {
	type plain Aircraft
	aux := struct {
		*plain
		Flight      json.RawMessage `json:"flight"`
		Squawk      json.RawMessage `json:"squawk"`
		AltBaro     json.RawMessage `json:"alt_baro"`
		AltGeom     json.RawMessage `json:"alt_geom"`
		GroundSpeed json.RawMessage `json:"gs"`
		Track       json.RawMessage `json:"track"`
		BaroRate    json.RawMessage `json:"baro_rate"`
		Lat         json.RawMessage `json:"lat"`
		Lon         json.RawMessage `json:"lon"`
		RSSI        json.RawMessage `json:"rssi"`
		Seen        json.RawMessage `json:"seen"`
		DistanceKm  json.RawMessage `json:"distance_km"`
	}{plain: (*plain)(a)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	alt, ground := parseAltitude(aux.AltBaro)
	a.AltBaro = alt
	a.OnGround = a.OnGround || ground
	a.AltGeom = parseNumber(aux.AltGeom)
	a.GroundSpeed = parseNumber(aux.GroundSpeed)
	a.Track = parseNumber(aux.Track)
	a.BaroRate = parseNumber(aux.BaroRate)
	a.Lat = parseNumber(aux.Lat)
	a.Lon = parseNumber(aux.Lon)
	a.RSSI = parseNumber(aux.RSSI)
	a.Seen = parseNumber(aux.Seen)
	a.DistanceKm = parseNumber(aux.DistanceKm)
	a.Squawk = parseString(aux.Squawk)

	a.Hex = strings.ToUpper(strings.TrimSpace(a.Hex))
	a.Flight = nil
	if flight := parseString(aux.Flight); flight != nil {
		if trimmed := strings.TrimSpace(*flight); trimmed != "" {
			a.Flight = &trimmed
		}
	}
	return nil
}

// parseNumber accepts only a JSON number; anything else is not reported.
func parseNumber(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// parseString accepts only a JSON string.
func parseString(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

// parseAltitude extracts an altitude that may be a number or "ground".
// Any other value is treated as not reported.
func parseAltitude(raw json.RawMessage) (*float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		if strings.EqualFold(s, "ground") {
			zero := 0.0
			return &zero, true
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return &v, false
		}
		return nil, false
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, false
}

// Snapshot is a point-in-time batch of aircraft reports.
type Snapshot struct {
	// Now is the capture time reported by the feed
	Now time.Time `json:"now"`

	// Messages is the decoder's running message count
	Messages int64 `json:"messages"`

	// Aircraft in feed order
	Aircraft []Aircraft `json:"aircraft"`

	// Skipped counts entries that were not JSON objects with a string hex
	Skipped int `json:"skipped,omitempty"`
}

// Feed is the interface that all aircraft snapshot providers implement.
// A local decoder (readsb/ultrafeeder aircraft.json) and the airplanes.live
// API are both supported.
type Feed interface {
	// Snapshot fetches the current set of tracked aircraft.
	// Errors are *StatusError for non-success responses, *ParseError for
	// malformed payloads, or a wrapped transport error.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Close cleanly shuts down the feed.
	Close() error
}

// feedDocument covers both document layouts: decoders publish "aircraft",
// the airplanes.live API publishes "ac". Entries stay raw so that one bad
// entry does not reject the whole document.
type feedDocument struct {
	Now      float64           `json:"now"`
	Messages int64             `json:"messages"`
	Aircraft []json.RawMessage `json:"aircraft"`
	AC       []json.RawMessage `json:"ac"`
}

// snapshot converts the document, rejecting one with no aircraft list.
func (d *feedDocument) snapshot() (*Snapshot, error) {
	list := d.Aircraft
	if list == nil {
		list = d.AC
	}
	if list == nil {
		return nil, &ParseError{Reason: "document has no aircraft array"}
	}

	snap := &Snapshot{
		Now:      epochToTime(d.Now),
		Messages: d.Messages,
		Aircraft: make([]Aircraft, 0, len(list)),
	}
	for _, raw := range list {
		var ac Aircraft
		if err := json.Unmarshal(raw, &ac); err != nil || ac.Hex == "" {
			snap.Skipped++
			continue
		}
		snap.Aircraft = append(snap.Aircraft, ac)
	}
	return snap, nil
}

// epochToTime accepts epoch seconds (decoders) or milliseconds (API).
func epochToTime(epoch float64) time.Time {
	if epoch <= 0 {
		return time.Time{}
	}
	if epoch > 1e11 {
		return time.UnixMilli(int64(epoch)).UTC()
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
