package coordinates

import (
	"fmt"
	"math"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the mean Earth radius in kilometers.
	// Distances are spherical; no ellipsoid correction is applied.
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile is the length of one nautical mile in kilometers
	KmPerNauticalMile = 1.852

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048
)

// cardinalPoints is the 16-point compass rose starting at north, clockwise.
var cardinalPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Geographic represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64 `json:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64 `json:"lon"`
}

// String formats the position with five decimal places (about one meter).
func (g Geographic) String() string {
	return fmt.Sprintf("%.5f, %.5f", g.Latitude, g.Longitude)
}

// Valid reports whether both components are finite and inside the
// latitude/longitude domain.
func (g Geographic) Valid() bool {
	if math.IsNaN(g.Latitude) || math.IsNaN(g.Longitude) {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 &&
		g.Longitude >= -180 && g.Longitude <= 180
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}

// CardinalDirection maps an angle in degrees to a 16-point compass label.
// Angles outside [0, 360) wrap.
func CardinalDirection(degrees float64) string {
	index := int(math.Round(NormalizeAzimuth(degrees)/22.5)) % len(cardinalPoints)
	return cardinalPoints[index]
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Uses spherical trigonometry to calculate the bearing along a great circle.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
func Bearing(from, to Geographic) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

// DistanceKm calculates the great-circle distance between two points.
// Uses the Haversine formula on a sphere of radius EarthRadiusKm.
// The longitude difference goes through sin(), so points on either side of
// the antimeridian take the short path.
// Returns distance in kilometers.
func DistanceKm(from, to Geographic) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a just past 1 near antipodes.
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceNauticalMiles is DistanceKm expressed in nautical miles.
func DistanceNauticalMiles(from, to Geographic) float64 {
	return DistanceKm(from, to) / KmPerNauticalMile
}
