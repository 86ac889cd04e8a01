// Package geomag estimates the Earth's magnetic field, chiefly the local
// declination used to turn a magnetic heading into a true one.
package geomag

import (
	"math"
	"time"
)

// Field is the magnetic field at one place and time.
// Angles are degrees (declination east-positive, inclination down-positive),
// intensities are nanotesla.
type Field struct {
	Declination float64
	Inclination float64
	North       float64
	East        float64
	Down        float64
	Horizontal  float64
	Total       float64
}

// Model evaluates the field at a geodetic position (altitude in meters above
// the ellipsoid).
type Model interface {
	Field(latDeg, lonDeg, altMeters float64, t time.Time) Field
}

// Coefficient is one Gauss coefficient pair in nT with secular variation in
// nT/year.
type Coefficient struct {
	N, M       int
	G, H       float64
	GDot, HDot float64
}

// SphericalHarmonic is a spherical-harmonic main-field model.
type SphericalHarmonic struct {
	Epoch        time.Time
	RefRadiusKm  float64
	Coefficients []Coefficient

	maxN int
}

const (
	wgs84A  = 6378.137 // km
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)

	minSinColat = 1e-10
)

func NewSphericalHarmonic(epoch time.Time, refRadiusKm float64, coeffs []Coefficient) *SphericalHarmonic {
	m := &SphericalHarmonic{Epoch: epoch, RefRadiusKm: refRadiusKm, Coefficients: coeffs}
	for _, c := range coeffs {
		if c.N > m.maxN {
			m.maxN = c.N
		}
	}
	return m
}

func (m *SphericalHarmonic) yearsSinceEpoch(t time.Time) float64 {
	return t.Sub(m.Epoch).Hours() / (24 * 365.25)
}

func (m *SphericalHarmonic) Field(latDeg, lonDeg, altMeters float64, t time.Time) Field {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	hKm := altMeters / 1000

	// Geodetic -> geocentric spherical coordinates.
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	rc := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	p := (rc + hKm) * cosLat
	z := (rc*(1-wgs84E2) + hKm) * sinLat
	r := math.Hypot(p, z)
	latC := math.Asin(z / r)

	colat := math.Pi/2 - latC
	x, s := math.Cos(colat), math.Sin(colat)
	if s < minSinColat {
		s = minSinColat
	}

	pnm, dpnm := schmidtLegendre(m.maxN, x, s)
	dt := m.yearsSinceEpoch(t)
	ratio := m.RefRadiusKm / r

	var bn, be, bd float64
	for _, c := range m.Coefficients {
		if c.N < 1 || c.M < 0 || c.M > c.N {
			continue
		}
		g := c.G + dt*c.GDot
		h := c.H + dt*c.HDot
		ml := float64(c.M) * lon
		cosML, sinML := math.Cos(ml), math.Sin(ml)
		scale := math.Pow(ratio, float64(c.N+2))

		bn += scale * (g*cosML + h*sinML) * dpnm[c.N][c.M]
		be += scale * float64(c.M) * (g*sinML - h*cosML) * pnm[c.N][c.M] / s
		bd -= scale * float64(c.N+1) * (g*cosML + h*sinML) * pnm[c.N][c.M]
	}

	// Rotate from geocentric back to the geodetic frame.
	psi := latC - lat
	north := bn*math.Cos(psi) - bd*math.Sin(psi)
	down := bn*math.Sin(psi) + bd*math.Cos(psi)
	east := be

	horiz := math.Hypot(north, east)
	return Field{
		Declination: math.Atan2(east, north) * 180 / math.Pi,
		Inclination: math.Atan2(down, horiz) * 180 / math.Pi,
		North:       north,
		East:        east,
		Down:        down,
		Horizontal:  horiz,
		Total:       math.Hypot(horiz, down),
	}
}

// schmidtLegendre returns Schmidt semi-normalized associated Legendre
// functions P[n][m](cos θ) and their θ derivatives up to degree maxN.
func schmidtLegendre(maxN int, x, s float64) (p, dp [][]float64) {
	p = make([][]float64, maxN+1)
	dp = make([][]float64, maxN+1)
	for n := range p {
		p[n] = make([]float64, maxN+1)
		dp[n] = make([]float64, maxN+1)
	}
	p[0][0] = 1

	// Gauss-normalized recursion.
	for n := 1; n <= maxN; n++ {
		for m := 0; m <= n; m++ {
			switch {
			case n == m:
				p[n][m] = s * p[n-1][m-1]
				dp[n][m] = s*dp[n-1][m-1] + x*p[n-1][m-1]
			case n == 1:
				p[n][m] = x * p[n-1][m]
				dp[n][m] = x*dp[n-1][m] - s*p[n-1][m]
			default:
				var k, pm2, dpm2 float64
				if m <= n-2 {
					k = float64((n-1)*(n-1)-m*m) / float64((2*n-1)*(2*n-3))
					pm2, dpm2 = p[n-2][m], dp[n-2][m]
				}
				p[n][m] = x*p[n-1][m] - k*pm2
				dp[n][m] = x*dp[n-1][m] - s*p[n-1][m] - k*dpm2
			}
		}
	}

	// Gauss -> Schmidt semi-normalization.
	sch := make([][]float64, maxN+1)
	for n := range sch {
		sch[n] = make([]float64, maxN+1)
	}
	sch[0][0] = 1
	for n := 1; n <= maxN; n++ {
		sch[n][0] = sch[n-1][0] * float64(2*n-1) / float64(n)
		for m := 1; m <= n; m++ {
			j := 1.0
			if m == 1 {
				j = 2
			}
			sch[n][m] = sch[n][m-1] * math.Sqrt(float64(n-m+1)*j/float64(n+m))
		}
	}
	for n := 1; n <= maxN; n++ {
		for m := 0; m <= n; m++ {
			p[n][m] *= sch[n][m]
			dp[n][m] *= sch[n][m]
		}
	}
	return p, dp
}
