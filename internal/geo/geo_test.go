package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistance_Properties(t *testing.T) {
	a := Position{Latitude: 47.6062, Longitude: -122.3321, Altitude: 50}
	b := Position{Latitude: 47.6205, Longitude: -122.3493, Altitude: 900}

	require.Equal(t, 0.0, Distance(a, a))
	// Altitude is ignored for the zero case.
	require.Equal(t, 0.0, Distance(a, Position{Latitude: a.Latitude, Longitude: a.Longitude, Altitude: 5000}))
	require.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
	require.Greater(t, Distance(a, b), 0.0)
}

func TestDistance_OneDegreeLongitudeAtEquator(t *testing.T) {
	d := Distance(Position{}, Position{Longitude: 1})
	require.InDelta(t, 111195, d, 1)
}

func TestInitialBearing_Cardinal(t *testing.T) {
	origin := Position{Latitude: 10, Longitude: 20}
	cases := []struct {
		name string
		to   Position
		want float64
	}{
		{"north", Position{Latitude: 11, Longitude: 20}, 0},
		{"south", Position{Latitude: 9, Longitude: 20}, 180},
		{"east", Position{Latitude: 10, Longitude: 20.001}, 90},
		{"west", Position{Latitude: 10, Longitude: 19.999}, 270},
	}
	for _, tc := range cases {
		got, ok := InitialBearing(origin, tc.to)
		require.True(t, ok, tc.name)
		require.InDelta(t, tc.want, got, 0.01, tc.name)
		require.GreaterOrEqual(t, got, 0.0, tc.name)
		require.Less(t, got, 360.0, tc.name)
	}
}

func TestInitialBearing_IsGreatCircle(t *testing.T) {
	// Due east along a parallel is not a great circle; the initial bearing from
	// 60N heads slightly north of east.
	got, ok := InitialBearing(Position{Latitude: 60, Longitude: 0}, Position{Latitude: 60, Longitude: 10})
	require.True(t, ok)
	require.InDelta(t, 85.67, got, 0.05)
}

func TestInitialBearing_UndefinedForSameLocation(t *testing.T) {
	p := Position{Latitude: 1, Longitude: 2}
	_, ok := InitialBearing(p, Position{Latitude: 1, Longitude: 2, Altitude: 300})
	require.False(t, ok)
	_, ok = RawBearing(p, p)
	require.False(t, ok)
}

func TestNormalizeBearing(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{90, 90},
		{180, 180},
		{-90, 270},
		{-0.5, 359.5},
		{200, 560},
		{-200, 160},
	}
	for _, tc := range cases {
		if got := NormalizeBearing(tc.in); got != tc.want {
			t.Fatalf("NormalizeBearing(%v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestRoundBearing(t *testing.T) {
	require.Equal(t, 90, RoundBearing(89.5))
	require.Equal(t, 89, RoundBearing(89.49))
	require.Equal(t, 360, RoundBearing(359.7))
}

func TestParseUnit(t *testing.T) {
	for in, want := range map[string]Unit{
		"meter": Meter, " Feet ": Foot, "ft": Foot, "km": Kilometer, "nautical_mile": NauticalMile,
	} {
		got, err := ParseUnit(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseUnit("furlong")
	require.True(t, errors.Is(err, ErrUnknownUnit))
}

func TestConvert(t *testing.T) {
	v, err := Convert(1000, Meter, Foot)
	require.NoError(t, err)
	require.InDelta(t, 3280.8399, v, 1e-3)

	v, err = Convert(1, Mile, Kilometer)
	require.NoError(t, err)
	require.InDelta(t, 1.609344, v, 1e-12)

	_, err = Convert(1, Meter, Unit(99))
	require.ErrorIs(t, err, ErrUnknownUnit)
}

func TestFormatter_DefaultPattern(t *testing.T) {
	f, err := NewFormatter(Meter, Meter, DefaultPattern)
	require.NoError(t, err)
	cases := map[float64]string{
		0:       "0 m",
		0.3:     "0 m",
		2.5:     "2 m", // half-even
		3.5:     "4 m",
		1234.56: "1235 m",
		-400.2:  "-400 m",
	}
	for in, want := range cases {
		require.Equal(t, want, f.Format(in), "in=%v", in)
	}
}

func TestFormatter_ConvertsUnit(t *testing.T) {
	f, err := NewFormatter(Meter, Foot, "#")
	require.NoError(t, err)
	require.Equal(t, "1312 ft", f.Format(400))
}

func TestFormatter_FractionPatterns(t *testing.T) {
	cases := []struct {
		pattern string
		in      float64
		want    string
	}{
		{"#.##", 1.5, "1.5"},
		{"#.##", 1.005, "1"},
		{"0.00", 1.5, "1.50"},
		{"#.#", 0.25, ".2"},
		{"00", 7, "07"},
	}
	for _, tc := range cases {
		f, err := NewFormatter(Meter, Meter, tc.pattern)
		require.NoError(t, err, tc.pattern)
		require.Equal(t, tc.want, f.Number(tc.in), "pattern=%q in=%v", tc.pattern, tc.in)
	}
}

func TestNewFormatter_Errors(t *testing.T) {
	_, err := NewFormatter(Meter, Unit(0), "#")
	require.ErrorIs(t, err, ErrUnknownUnit)
	_, err = NewFormatter(Meter, Foot, "#,###")
	require.Error(t, err)
	_, err = NewFormatter(Meter, Foot, "#.#0")
	require.Error(t, err)
}

func TestFormatCoordinates(t *testing.T) {
	require.Equal(t, "N 45° 30.000'", FormatLatitude(45.5))
	require.Equal(t, "S 33° 52.200'", FormatLatitude(-33.87))
	require.Equal(t, "W 122° 19.926'", FormatLongitude(-122.3321))
	require.Equal(t, "E 0° 00.000'", FormatLongitude(0))
	require.Equal(t, "N 10° 00.000'", FormatLatitude(9.9999999))
	require.False(t, math.IsNaN(Distance(Position{Latitude: 90}, Position{Latitude: -90})))
}
