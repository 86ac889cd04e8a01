// Package orientation turns filtered accelerometer and magnetometer vectors
// into a tilt-compensated heading.
//
// The world frame is East-North-Up. A RotationMatrix maps device-frame
// vectors into that frame: its rows are East, North and Up expressed in
// device coordinates.
package orientation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"rockettrack/internal/sensors"
)

// ErrIndeterminate is returned when gravity and the magnetic field do not
// define a unique orientation (free fall, zero vectors, or the two vectors
// nearly parallel).
var ErrIndeterminate = errors.New("orientation: indeterminate")

const (
	// Below this squared gravity magnitude the device is treated as in free fall.
	freeFallGravitySquared = 0.01 * sensors.StandardGravity * sensors.StandardGravity
	// Minimum |E x A| (µT · m/s²) for a usable east vector.
	minEastNorm = 0.1
)

// RotationMatrix is an orthonormal 3x3 rotation. The zero value is not valid;
// matrices come from RotationFromVectors or Remap.
type RotationMatrix struct {
	m *mat.Dense
}

func newRotation(data []float64) RotationMatrix {
	return RotationMatrix{m: mat.NewDense(3, 3, data)}
}

func (r RotationMatrix) Valid() bool { return r.m != nil }

func (r RotationMatrix) At(i, j int) float64 { return r.m.At(i, j) }

// Dense returns a copy of the underlying matrix.
func (r RotationMatrix) Dense() *mat.Dense {
	if r.m == nil {
		return nil
	}
	return mat.DenseCopyOf(r.m)
}

func (r RotationMatrix) String() string {
	if r.m == nil {
		return "RotationMatrix(nil)"
	}
	return fmt.Sprintf("%v", mat.Formatted(r.m, mat.Squeeze()))
}

// RotationFromVectors builds the device-to-world rotation from a gravity
// vector (accelerometer, pointing up when at rest) and the geomagnetic field.
func RotationFromVectors(gravity, geomagnetic sensors.Vector3) (RotationMatrix, error) {
	if !gravity.Finite() || !geomagnetic.Finite() {
		return RotationMatrix{}, ErrIndeterminate
	}
	ax, ay, az := gravity.X, gravity.Y, gravity.Z
	if ax*ax+ay*ay+az*az < freeFallGravitySquared {
		return RotationMatrix{}, ErrIndeterminate
	}
	ex, ey, ez := geomagnetic.X, geomagnetic.Y, geomagnetic.Z

	// East = E x A.
	hx := ey*az - ez*ay
	hy := ez*ax - ex*az
	hz := ex*ay - ey*ax
	normH := math.Sqrt(hx*hx + hy*hy + hz*hz)
	if normH < minEastNorm {
		return RotationMatrix{}, ErrIndeterminate
	}
	hx, hy, hz = hx/normH, hy/normH, hz/normH

	normA := math.Sqrt(ax*ax + ay*ay + az*az)
	ax, ay, az = ax/normA, ay/normA, az/normA

	// North = A x East.
	mx := ay*hz - az*hy
	my := az*hx - ax*hz
	mz := ax*hy - ay*hx

	return newRotation([]float64{
		hx, hy, hz,
		mx, my, mz,
		ax, ay, az,
	}), nil
}

// Angles are the orientation angles in radians.
type Angles struct {
	Azimuth float64
	Pitch   float64
	Roll    float64
}

// AnglesFrom decomposes a rotation matrix into azimuth, pitch and roll.
func AnglesFrom(r RotationMatrix) Angles {
	return Angles{
		Azimuth: math.Atan2(r.At(0, 1), r.At(1, 1)),
		Pitch:   math.Asin(clamp(-r.At(2, 1), -1, 1)),
		Roll:    math.Atan2(-r.At(2, 0), r.At(2, 2)),
	}
}

// AzimuthDegrees converts the azimuth to degrees in [0,360) and then adds the
// magnetic declination when one is known. The sum is not wrapped again, so the
// result may fall slightly outside [0,360).
func AzimuthDegrees(a Angles, declinationDeg float64, haveDeclination bool) float64 {
	deg := a.Azimuth * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	if haveDeclination {
		deg += declinationDeg
	}
	return deg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
