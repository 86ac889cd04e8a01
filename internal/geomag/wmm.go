package geomag

import (
	"sync"
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// The wmm package caches its last evaluation in package state.
var wmmMu sync.Mutex

type worldModel struct{}

// WMM returns the full degree-12 World Magnetic Model (WMM2020 coefficients).
// Dates past the model's validity window are extrapolated with the secular
// variation terms.
func WMM() Model {
	return worldModel{}
}

func (worldModel) Field(latDeg, lonDeg, altMeters float64, t time.Time) Field {
	loc := egm96.NewLocationGeodetic(latDeg, lonDeg, altMeters)

	wmmMu.Lock()
	mf, _ := wmm.CalculateWMMMagneticField(loc, t)
	wmmMu.Unlock()

	x, y, z, _, _, _ := mf.Ellipsoidal()
	return Field{
		Declination: mf.D(),
		Inclination: mf.I(),
		North:       x,
		East:        y,
		Down:        z,
		Horizontal:  mf.H(),
		Total:       mf.F(),
	}
}
