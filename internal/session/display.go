package session

import (
	"strconv"

	"rockettrack/internal/geo"
	"rockettrack/internal/orientation"
)

// State is derived from which positions are known.
type State int

const (
	Uninitialized State = iota
	PartiallyKnown
	FullyTracking
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case PartiallyKnown:
		return "partially_known"
	case FullyTracking:
		return "fully_tracking"
	default:
		return "unknown"
	}
}

// Display is the snapshot handed to the sink. Values that cannot be computed
// have an empty string and a false valid flag.
type Display struct {
	AzimuthDeg   float64
	AzimuthValid bool

	BearingDeg   int
	BearingValid bool
	Bearing      string

	DistanceMeters float64
	DistanceValid  bool
	Distance       string

	Latitude  string
	Longitude string

	AltitudeMeters    float64
	MaxAltitudeMeters float64
	AltitudeValid     bool
	Altitude          string
	MaxAltitude       string

	KeepScreenOn bool
}

// buildDisplayLocked recomputes the snapshot from current state. Caller holds s.mu.
func (s *Session) buildDisplayLocked() Display {
	d := Display{KeepScreenOn: s.prefs.KeepScreenOn}

	if angles, ok := s.estimator.Last(); ok {
		d.AzimuthDeg = orientation.AzimuthDegrees(angles, s.field.Declination, s.haveField)
		d.AzimuthValid = true
	}

	if !s.haveTarget {
		return d
	}
	t := s.target
	d.Latitude = geo.FormatLatitude(t.Latitude)
	d.Longitude = geo.FormatLongitude(t.Longitude)

	alt, maxAlt := t.Altitude, s.maxAltitude
	if s.prefs.AGL && s.haveDevice {
		alt -= s.device.Altitude
		maxAlt -= s.device.Altitude
	}
	d.AltitudeMeters = alt
	d.MaxAltitudeMeters = maxAlt
	d.AltitudeValid = true
	d.Altitude = s.formatter.Format(alt)
	d.MaxAltitude = s.formatter.Format(maxAlt)

	if !s.haveDevice {
		return d
	}
	if raw, ok := geo.RawBearing(s.device, t); ok {
		b := geo.RoundBearing(geo.NormalizeBearing(raw))
		d.BearingDeg = b
		d.BearingValid = true
		d.Bearing = strconv.Itoa(b)
	}
	dist := geo.Distance(s.device, t)
	d.DistanceMeters = dist
	d.DistanceValid = true
	d.Distance = s.formatter.Format(dist)
	return d
}
