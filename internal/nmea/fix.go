package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rockettrack/internal/geo"
)

const knotsToMS = 0.514444

// Fix is the receiver state accumulated from RMC and GGA sentences.
type Fix struct {
	Valid bool

	LatDeg float64
	LonDeg float64
	// AltM is meters above mean sea level (GGA only).
	AltM  float64
	AltOK bool

	GroundSpeedMS float64
	GroundOK      bool
	TrackDeg      float64
	TrackOK       bool

	FixQuality int
	Satellites int
	HDOP       float64

	LastFix time.Time
}

// Position returns the fix as a geo.Position. ok is false until a fix with
// latitude and longitude has been seen.
func (f Fix) Position() (geo.Position, bool) {
	if !f.Valid {
		return geo.Position{}, false
	}
	return geo.Position{Latitude: f.LatDeg, Longitude: f.LonDeg, Altitude: f.AltM, Time: f.LastFix}, true
}

// State folds sentences into a Fix. The zero value is ready to use.
type State struct {
	fix   Fix
	latOK bool
	lonOK bool
}

func (s *State) Fix() Fix { return s.fix }

// Apply folds one sentence into the state and reports whether it produced a
// position update. Sentence types other than RMC and GGA are ignored.
func (s *State) Apply(nowUTC time.Time, sent Sentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent.Fields)
	case "GGA":
		return s.applyGGA(nowUTC, sent.Fields)
	default:
		return false
	}
}

// RMC fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
func (s *State) applyRMC(nowUTC time.Time, f []string) bool {
	if len(f) < 10 {
		return false
	}
	if strings.TrimSpace(f[2]) != "A" {
		// Void fixes leave the state untouched.
		return false
	}

	if lat, ok := ParseLatLon(f[3], f[4]); ok {
		s.fix.LatDeg = lat
		s.latOK = true
	}
	if lon, ok := ParseLatLon(f[5], f[6]); ok {
		s.fix.LonDeg = lon
		s.lonOK = true
	}
	if gs, ok := parseFloat(f[7]); ok {
		s.fix.GroundSpeedMS = gs * knotsToMS
		s.fix.GroundOK = true
	}
	if trk, ok := parseFloat(f[8]); ok {
		s.fix.TrackDeg = math.Mod(trk+360.0, 360.0)
		s.fix.TrackOK = true
	}

	if s.latOK && s.lonOK {
		s.fix.LastFix = fixTime(nowUTC, f[1], f[9])
		s.fix.Valid = true
		return true
	}
	return false
}

// GGA fields:
//
//	0: talker+type
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//	10: units (M)
func (s *State) applyGGA(nowUTC time.Time, f []string) bool {
	if len(f) < 11 {
		return false
	}
	q := strings.TrimSpace(f[6])
	if q == "" || q == "0" {
		return false
	}
	if v, err := strconv.Atoi(q); err == nil {
		s.fix.FixQuality = v
	}
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.fix.Satellites = sats
	}
	if hdop, ok := parseFloat(f[8]); ok {
		s.fix.HDOP = hdop
	}

	if lat, ok := ParseLatLon(f[2], f[3]); ok {
		s.fix.LatDeg = lat
		s.latOK = true
	}
	if lon, ok := ParseLatLon(f[4], f[5]); ok {
		s.fix.LonDeg = lon
		s.lonOK = true
	}
	if alt, ok := parseFloat(f[9]); ok {
		unit := strings.ToUpper(strings.TrimSpace(f[10]))
		if unit == "F" {
			alt *= 0.3048
		}
		s.fix.AltM = alt
		s.fix.AltOK = true
	}

	if s.latOK && s.lonOK {
		s.fix.LastFix = fixTime(nowUTC, f[1], "")
		s.fix.Valid = true
		return true
	}
	return false
}

// fixTime combines the sentence's hhmmss.sss with ddmmyy when present. GGA
// carries no date, so the receive date is used. Unparseable times fall back
// to the receive time.
func fixTime(nowUTC time.Time, hms string, dmy string) time.Time {
	hms = strings.TrimSpace(hms)
	if len(hms) < 6 {
		return nowUTC
	}
	hh, err1 := strconv.Atoi(hms[0:2])
	mm, err2 := strconv.Atoi(hms[2:4])
	secs, err3 := strconv.ParseFloat(hms[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nowUTC
	}
	y, mo, d := nowUTC.Date()
	dmy = strings.TrimSpace(dmy)
	if len(dmy) == 6 {
		dd, e1 := strconv.Atoi(dmy[0:2])
		mon, e2 := strconv.Atoi(dmy[2:4])
		yy, e3 := strconv.Atoi(dmy[4:6])
		if e1 == nil && e2 == nil && e3 == nil {
			y, mo, d = 2000+yy, time.Month(mon), dd
		}
	}
	whole := math.Floor(secs)
	ns := int((secs - whole) * 1e9)
	return time.Date(y, mo, d, hh, mm, int(whole), ns, time.UTC)
}

// GGA builds a GGA sentence for pos, the format tracker radios relay.
func GGA(pos geo.Position, fixQuality, satellites int, hdop float64) string {
	t := pos.Time.UTC()
	if pos.Time.IsZero() {
		t = time.Now().UTC()
	}
	lat, ns := FormatLatLon(pos.Latitude, true)
	lon, ew := FormatLatLon(pos.Longitude, false)
	payload := fmt.Sprintf("GPGGA,%02d%02d%02d.%02d,%s,%s,%s,%s,%d,%02d,%.1f,%.1f,M,0.0,M,,",
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e7,
		lat, ns, lon, ew, fixQuality, satellites, hdop, pos.Altitude)
	return Encode(payload)
}
