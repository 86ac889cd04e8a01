// Package filter smooths noisy sensor vectors.
package filter

import (
	"fmt"

	"rockettrack/internal/sensors"
)

const (
	DefaultAccelAlpha  = 0.4
	DefaultMagnetAlpha = 0.25
)

// Exponential is an exponential moving average over a 3-axis vector.
//
// Higher alpha is more responsive and less smooth. The first sample seeds the
// average and is returned unchanged. An Exponential is not safe for concurrent
// use; each sensor channel needs its own instance.
type Exponential struct {
	alpha  float64
	avg    sensors.Vector3
	seeded bool
}

func New(alpha float64) (*Exponential, error) {
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("filter: alpha %v out of range (0,1]", alpha)
	}
	return &Exponential{alpha: alpha}, nil
}

// Average folds v into the running average and returns the new average.
// Non-finite samples are dropped.
func (f *Exponential) Average(v sensors.Vector3) sensors.Vector3 {
	avg, _ := f.AverageOK(v)
	return avg
}

// AverageOK is Average, with ok=false while no finite sample has been seen.
func (f *Exponential) AverageOK(v sensors.Vector3) (sensors.Vector3, bool) {
	if !v.Finite() {
		return f.avg, f.seeded
	}
	if !f.seeded {
		f.avg = v
		f.seeded = true
		return f.avg, true
	}
	f.avg.X += f.alpha * (v.X - f.avg.X)
	f.avg.Y += f.alpha * (v.Y - f.avg.Y)
	f.avg.Z += f.alpha * (v.Z - f.avg.Z)
	return f.avg, true
}

// Value returns the current average without updating it.
func (f *Exponential) Value() (sensors.Vector3, bool) {
	return f.avg, f.seeded
}

func (f *Exponential) Reset() {
	f.avg = sensors.Vector3{}
	f.seeded = false
}
