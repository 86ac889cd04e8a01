package nmea

import (
	"errors"
	"math"
	"testing"
	"time"

	"rockettrack/internal/geo"
)

func TestParse_ChecksumOK(t *testing.T) {
	line := Encode("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := Parse(line)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Type != "RMC" || s.Talker != "GP" {
		t.Fatalf("type=%q talker=%q", s.Type, s.Talker)
	}
}

func TestParse_Errors(t *testing.T) {
	good := Encode("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	cases := []struct {
		name string
		line string
		want error
	}{
		{"mismatch", good[:len(good)-2] + "00", ErrChecksumMismatch},
		{"no dollar", good[1:], ErrNoStart},
		{"no star", "$GPRMC,1,2,3", ErrNoChecksum},
	}
	for _, tc := range cases {
		_, err := Parse(tc.line)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v want %v", tc.name, err, tc.want)
		}
	}
	if _, err := Parse("$G*47"); err == nil {
		t.Fatalf("expected short type error")
	}
}

func TestParseLatLon(t *testing.T) {
	cases := []struct {
		v, hemi string
		want    float64
		ok      bool
	}{
		{"4807.038", "N", 48.1173, true},
		{"01131.000", "E", 11.516666, true},
		{"3352.200", "s", -33.87, true},
		{"12219.926", "W", -122.3321, true},
		{"4807.038", "X", 0, false},
		{"", "N", 0, false},
		{"07.5", "N", 0, false},
		{"4865.000", "N", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseLatLon(tc.v, tc.hemi)
		if ok != tc.ok {
			t.Fatalf("ParseLatLon(%q,%q) ok=%v want %v", tc.v, tc.hemi, ok, tc.ok)
		}
		if ok && math.Abs(got-tc.want) > 1e-4 {
			t.Fatalf("ParseLatLon(%q,%q)=%v want %v", tc.v, tc.hemi, got, tc.want)
		}
	}
}

func TestFormatLatLon_RoundTrip(t *testing.T) {
	for _, deg := range []float64{48.1173, -33.87, 0.5, -0.0001} {
		v, h := FormatLatLon(deg, true)
		got, ok := ParseLatLon(v, h)
		if !ok || math.Abs(got-deg) > 1e-5 {
			t.Fatalf("lat %v -> %q %q -> %v ok=%v", deg, v, h, got, ok)
		}
	}
	for _, deg := range []float64{-122.3321, 179.99, 11.5} {
		v, h := FormatLatLon(deg, false)
		got, ok := ParseLatLon(v, h)
		if !ok || math.Abs(got-deg) > 1e-5 {
			t.Fatalf("lon %v -> %q %q -> %v ok=%v", deg, v, h, got, ok)
		}
	}
}

func TestState_RMCUpdatesFix(t *testing.T) {
	var st State
	s, err := Parse(Encode("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.Apply(now, s) {
		t.Fatalf("expected updated")
	}
	fix := st.Fix()
	if !fix.Valid || !fix.GroundOK || !fix.TrackOK {
		t.Fatalf("fix=%+v", fix)
	}
	if math.Abs(fix.GroundSpeedMS-22.4*knotsToMS) > 1e-9 {
		t.Fatalf("ground speed=%v", fix.GroundSpeedMS)
	}
	want := time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC)
	if !fix.LastFix.Equal(want) {
		t.Fatalf("fix time=%v want %v", fix.LastFix, want)
	}
	if fix.AltOK {
		t.Fatalf("RMC should not set altitude")
	}
}

func TestState_RMCVoidIgnored(t *testing.T) {
	var st State
	s, _ := Parse(Encode("GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W"))
	if st.Apply(time.Now(), s) {
		t.Fatalf("void fix applied")
	}
	if _, ok := st.Fix().Position(); ok {
		t.Fatalf("position from void fix")
	}
}

func TestState_GGAUpdatesAltitudeMeters(t *testing.T) {
	var st State
	s, err := Parse(Encode("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.Apply(now, s) {
		t.Fatalf("expected updated")
	}
	pos, ok := st.Fix().Position()
	if !ok {
		t.Fatalf("expected position")
	}
	if math.Abs(pos.Altitude-545.4) > 1e-9 {
		t.Fatalf("altitude=%v", pos.Altitude)
	}
	fix := st.Fix()
	if fix.FixQuality != 1 || fix.Satellites != 8 || math.Abs(fix.HDOP-0.9) > 1e-9 {
		t.Fatalf("quality=%d sats=%d hdop=%v", fix.FixQuality, fix.Satellites, fix.HDOP)
	}
	if want := time.Date(2020, 1, 1, 12, 35, 19, 0, time.UTC); !pos.Time.Equal(want) {
		t.Fatalf("time=%v want %v", pos.Time, want)
	}
}

func TestState_GGANoFixIgnored(t *testing.T) {
	var st State
	s, _ := Parse(Encode("GPGGA,123519,4807.038,N,01131.000,E,0,00,,,M,,M,,"))
	if st.Apply(time.Now(), s) {
		t.Fatalf("fix quality 0 applied")
	}
}

func TestState_GGAFeet(t *testing.T) {
	var st State
	s, _ := Parse(Encode("GPGGA,000000,4000.000,N,10500.000,W,1,05,1.0,1000,F,,M,,"))
	st.Apply(time.Now(), s)
	if got := st.Fix().AltM; math.Abs(got-304.8) > 1e-9 {
		t.Fatalf("altitude=%v want 304.8", got)
	}
}

func TestGGA_RoundTrip(t *testing.T) {
	pos := geo.Position{
		Latitude:  32.9903,
		Longitude: -106.9750,
		Altitude:  3048.2,
		Time:      time.Date(2024, 6, 1, 14, 5, 9, 500_000_000, time.UTC),
	}
	line := GGA(pos, 1, 9, 0.8)
	s, err := Parse(line)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	var st State
	if !st.Apply(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), s) {
		t.Fatalf("not applied: %q", line)
	}
	got, _ := st.Fix().Position()
	if math.Abs(got.Latitude-pos.Latitude) > 1e-5 || math.Abs(got.Longitude-pos.Longitude) > 1e-5 {
		t.Fatalf("position=%+v want %+v", got, pos)
	}
	if math.Abs(got.Altitude-pos.Altitude) > 0.05 {
		t.Fatalf("altitude=%v", got.Altitude)
	}
	if !got.Time.Equal(pos.Time) {
		t.Fatalf("time=%v want %v", got.Time, pos.Time)
	}
}
