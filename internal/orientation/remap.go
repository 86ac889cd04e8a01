package orientation

import (
	"fmt"
)

// Axis names a device axis, optionally negated.
type Axis int

const axisNegated Axis = 0x80

const (
	AxisX      Axis = 1
	AxisY      Axis = 2
	AxisZ      Axis = 3
	AxisMinusX Axis = AxisX | axisNegated
	AxisMinusY Axis = AxisY | axisNegated
	AxisMinusZ Axis = AxisZ | axisNegated
)

func (a Axis) index() int    { return int(a&0x3) - 1 }
func (a Axis) negated() bool { return a&axisNegated != 0 }
func (a Axis) wellFormed() bool {
	return a&^(axisNegated|0x3) == 0 && a&0x3 != 0
}

// ScreenRotation is the display rotation relative to the device's natural
// orientation.
type ScreenRotation int

const (
	Rotation0 ScreenRotation = iota
	Rotation90
	Rotation180
	Rotation270
)

// ParseScreenRotation maps 0, 90, 180 or 270 degrees to a ScreenRotation.
func ParseScreenRotation(deg int) (ScreenRotation, error) {
	switch deg {
	case 0:
		return Rotation0, nil
	case 90:
		return Rotation90, nil
	case 180:
		return Rotation180, nil
	case 270:
		return Rotation270, nil
	default:
		return Rotation0, fmt.Errorf("orientation: unsupported screen rotation %d (want 0, 90, 180 or 270)", deg)
	}
}

func (s ScreenRotation) Degrees() int { return int(s) * 90 }

// axes returns the remap axes for the rotation.
func (s ScreenRotation) axes() (x, y Axis) {
	switch s {
	case Rotation90:
		return AxisY, AxisX
	case Rotation180:
		return AxisX, AxisMinusY
	case Rotation270:
		return AxisMinusY, AxisMinusX
	default:
		return AxisX, AxisY
	}
}

// Remap rotates the matrix's device axes to match the screen rotation.
func Remap(r RotationMatrix, rot ScreenRotation) RotationMatrix {
	x, y := rot.axes()
	out, err := RemapAxes(r, x, y)
	if err != nil {
		// axes() only yields well-formed, distinct pairs.
		panic(err)
	}
	return out
}

// RemapAxes expresses r in a frame whose X and Y axes are the given device
// axes. Z is derived so the result stays a proper rotation.
func RemapAxes(r RotationMatrix, x, y Axis) (RotationMatrix, error) {
	if !r.Valid() {
		return RotationMatrix{}, fmt.Errorf("orientation: remap of invalid matrix")
	}
	if !x.wellFormed() || !y.wellFormed() {
		return RotationMatrix{}, fmt.Errorf("orientation: invalid remap axes %#x %#x", int(x), int(y))
	}
	if x&0x3 == y&0x3 {
		return RotationMatrix{}, fmt.Errorf("orientation: remap axes must differ")
	}

	z := x ^ y
	xi, yi, zi := x.index(), y.index(), z.index()

	// Flip Z when (x, y, z) is not a cyclic permutation, to keep det = +1.
	if xi != (zi+1)%3 || yi != (zi+2)%3 {
		z ^= axisNegated
	}
	sx, sy, sz := x.negated(), y.negated(), z.negated()

	out := make([]float64, 9)
	for j := 0; j < 3; j++ {
		out[j*3+xi] = signed(r.At(j, 0), sx)
		out[j*3+yi] = signed(r.At(j, 1), sy)
		out[j*3+zi] = signed(r.At(j, 2), sz)
	}
	return newRotation(out), nil
}

func signed(v float64, neg bool) float64 {
	if neg {
		return -v
	}
	return v
}
