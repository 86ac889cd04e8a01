// Package geo computes distance and bearing between geographic positions and
// formats them for display.
package geo

import (
	"math"
	"time"

	golanggeo "github.com/kellydunn/golang-geo"
)

// Position is a geographic fix. Altitude is meters above mean sea level.
type Position struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Time      time.Time
}

// SameLocation reports whether p and o share latitude and longitude.
// Altitude and time are ignored.
func (p Position) SameLocation(o Position) bool {
	return p.Latitude == o.Latitude && p.Longitude == o.Longitude
}

func (p Position) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) || math.IsNaN(p.Altitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

func (p Position) point() *golanggeo.Point {
	return golanggeo.NewPoint(p.Latitude, p.Longitude)
}

// Distance returns the great-circle surface distance in meters between a and b.
func Distance(a, b Position) float64 {
	if a.SameLocation(b) {
		return 0
	}
	return a.point().GreatCircleDistance(b.point()) * 1000
}

// RawBearing returns the initial great-circle bearing from -> to in degrees,
// in the range (-180, 180]. ok is false when the two positions coincide.
func RawBearing(from, to Position) (deg float64, ok bool) {
	if from.SameLocation(to) {
		return 0, false
	}
	return from.point().BearingTo(to.point()), true
}

// InitialBearing is RawBearing folded into [0, 360).
func InitialBearing(from, to Position) (deg float64, ok bool) {
	raw, ok := RawBearing(from, to)
	if !ok {
		return 0, false
	}
	return NormalizeBearing(raw), true
}

// NormalizeBearing folds a (-180, 180] bearing into [0, 360).
//
// Values in [0, 180] pass through; anything else becomes 360 + raw. Inputs
// above 180 therefore map above 360 (200 -> 560); callers only feed it
// RawBearing output.
func NormalizeBearing(raw float64) float64 {
	if raw >= 0 && raw <= 180 {
		return raw
	}
	return 180 + (180 + raw)
}

// RoundBearing rounds to whole degrees, halves up.
func RoundBearing(deg float64) int {
	return int(math.Floor(deg + 0.5))
}
