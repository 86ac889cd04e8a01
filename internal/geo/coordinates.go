package geo

import (
	"fmt"
	"math"
)

// FormatLatitude renders degrees as hemisphere, whole degrees and decimal
// minutes, e.g. "N 45° 30.123'".
func FormatLatitude(deg float64) string {
	hemi := "N"
	if deg < 0 {
		hemi = "S"
	}
	return formatDegMin(hemi, deg)
}

// FormatLongitude is FormatLatitude for longitudes (E/W).
func FormatLongitude(deg float64) string {
	hemi := "E"
	if deg < 0 {
		hemi = "W"
	}
	return formatDegMin(hemi, deg)
}

func formatDegMin(hemi string, deg float64) string {
	a := math.Abs(deg)
	whole := math.Floor(a)
	mins := (a - whole) * 60
	// Avoid "59.9995" rounding up to "60.000".
	if math.Round(mins*1000) >= 60000 {
		whole++
		mins = 0
	}
	return fmt.Sprintf("%s %d° %06.3f'", hemi, int(whole), mins)
}
