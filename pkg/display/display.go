// Package display turns a selection result into the human-readable strings
// shown by the web card, the terminal UI and the kiosk.
package display

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/unklstewy/adsb-closest/pkg/adsb"
	"github.com/unklstewy/adsb-closest/pkg/closest"
	"github.com/unklstewy/adsb-closest/pkg/coordinates"
)

// Unknown is shown for values the feed did not report.
const Unknown = "Unknown"

// Flight status labels derived from the vertical rate.
const (
	StatusClimbing   = "Climbing"
	StatusDescending = "Descending"
	StatusLevel      = "Level Flight"
	StatusEnRoute    = "En Route"
)

// climbThreshold is the vertical rate in ft/min beyond which an aircraft
// counts as climbing or descending.
const climbThreshold = 300

var printer = message.NewPrinter(language.English)

// Card holds every formatted field of the nearest-flight card.
type Card struct {
	Title             string
	Airline           string
	RouteLine         string
	OriginDestination string
	Status            string
	Distance          string
	Altitude          string
	AltitudeMeters    string
	VerticalRate      string
	Speed             string
	SpeedKmh          string
	Heading           string
	Coordinates       string
	Squawk            string
	ICAO              string
	LastSeen          string
	Signal            string
}

// NewCard formats ac. Secondary fields (AltitudeMeters, VerticalRate,
// SpeedKmh, Airline, RouteLine) are empty when there is nothing to show.
func NewCard(ac adsb.Aircraft) Card {
	card := Card{
		Title:        Title(ac),
		Status:       Status(ac),
		Distance:     Unknown,
		Altitude:     Altitude(ac),
		VerticalRate: VerticalRate(ac.BaroRate),
		Speed:        Unknown,
		Heading:      Unknown,
		Coordinates:  Unknown,
		Squawk:       "N/A",
		ICAO:         ac.Hex,
		LastSeen:     Unknown,
		Signal:       Unknown,
	}

	if ac.DistanceKm != nil {
		card.Distance = Distance(*ac.DistanceKm)
	}
	if ac.AltBaro != nil && !ac.OnGround {
		card.AltitudeMeters = printer.Sprintf("%d m", int64(math.Round(*ac.AltBaro*coordinates.FeetToMeters)))
	}
	if ac.GroundSpeed != nil {
		card.Speed = Speed(*ac.GroundSpeed)
		card.SpeedKmh = printer.Sprintf("%d km/h", int64(math.Round(*ac.GroundSpeed*coordinates.KmPerNauticalMile)))
	}
	if ac.Track != nil {
		card.Heading = Heading(*ac.Track)
	}
	if ac.HasPosition() {
		card.Coordinates = fmt.Sprintf("%.5f, %.5f", *ac.Lat, *ac.Lon)
	}
	if ac.Squawk != nil && *ac.Squawk != "" {
		card.Squawk = *ac.Squawk
	}
	if ac.Seen != nil {
		card.LastSeen = fmt.Sprintf("%.0f seconds ago", *ac.Seen)
	}
	if ac.RSSI != nil {
		card.Signal = fmt.Sprintf("%.1f dBFS", *ac.RSSI)
	}

	card.OriginDestination = "Route information unavailable"
	if r := ac.Route; r != nil {
		card.Airline = r.Airline
		if r.FromIATA != "" && r.ToIATA != "" {
			card.RouteLine = r.FromIATA + " → " + r.ToIATA
			card.OriginDestination = firstNonEmpty(r.FromCity, r.FromIATA) + " to " + firstNonEmpty(r.ToCity, r.ToIATA)
		}
	}

	return card
}

// Title is the flight number, else the callsign, else "Unknown (HEX)".
func Title(ac adsb.Aircraft) string {
	if ac.Route != nil && ac.Route.FlightNumber != "" {
		return ac.Route.FlightNumber
	}
	if cs := ac.Callsign(); cs != "" {
		return cs
	}
	return fmt.Sprintf("Unknown (%s)", ac.Hex)
}

// Distance renders kilometres, switching to metres below 1 km.
func Distance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int64(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

// Altitude renders barometric altitude in feet with thousands separators.
func Altitude(ac adsb.Aircraft) string {
	if ac.OnGround {
		return "Ground"
	}
	if ac.AltBaro == nil {
		return Unknown
	}
	return printer.Sprintf("%d ft", int64(math.Round(*ac.AltBaro)))
}

// Speed renders ground speed in knots.
func Speed(knots float64) string {
	return strconv.FormatFloat(knots, 'f', -1, 64) + " knots"
}

// Heading renders a track as "NE (45°)".
func Heading(track float64) string {
	track = coordinates.NormalizeAzimuth(track)
	return fmt.Sprintf("%s (%.0f°)", coordinates.CardinalDirection(track), track)
}

// VerticalRate renders a signed rate such as "+1,200 ft/min", or "" when
// the rate was not reported.
func VerticalRate(rate *float64) string {
	if rate == nil {
		return ""
	}
	v := int64(math.Round(*rate))
	if v > 0 {
		return "+" + printer.Sprintf("%d ft/min", v)
	}
	return printer.Sprintf("%d ft/min", v)
}

// Status is the annotated route status when present, otherwise derived
// from the vertical rate.
func Status(ac adsb.Aircraft) string {
	if ac.Route != nil && ac.Route.Status != "" {
		return ac.Route.Status
	}
	if ac.BaroRate == nil {
		return StatusEnRoute
	}
	switch rate := *ac.BaroRate; {
	case rate > climbThreshold:
		return StatusClimbing
	case rate < -climbThreshold:
		return StatusDescending
	default:
		return StatusLevel
	}
}

// Headline is the one-line summary of a result.
func Headline(res closest.Result) string {
	switch res.Outcome {
	case closest.OutcomeFound:
		card := NewCard(*res.Aircraft)
		return fmt.Sprintf("%s, %s away", card.Title, card.Distance)
	case closest.OutcomeNone:
		return "No aircraft with valid coordinates found"
	case closest.OutcomeError:
		if res.Failure == nil {
			return "Error: unknown error occurred"
		}
		return "Error: " + res.Failure.Reason
	default:
		return "Waiting for first update..."
	}
}

// Freshness describes how old the displayed result is.
func Freshness(updatedAt time.Time, fetching bool, now time.Time) string {
	if fetching {
		return "Updating..."
	}
	if updatedAt.IsZero() {
		return "Never updated"
	}
	age := now.Sub(updatedAt)
	if age < time.Second {
		return "Updated just now"
	}
	return fmt.Sprintf("Updated %s ago", age.Truncate(time.Second))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
