// Package sensors holds the sample types shared by the IMU drivers, the
// simulators and the tracking session.
package sensors

import "math"

// StandardGravity is used to convert accelerometer readings from G to m/s².
const StandardGravity = 9.80665

// Type identifies the sensor channel a sample came from.
type Type int

const (
	Accelerometer Type = iota + 1
	Magnetometer
)

func (t Type) String() string {
	switch t {
	case Accelerometer:
		return "accelerometer"
	case Magnetometer:
		return "magnetometer"
	default:
		return "unknown"
	}
}

// Vector3 is a raw or filtered 3-axis reading in the device frame.
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sample is one reading delivered by a sensor source.
//
// Accelerometer vectors are m/s², magnetometer vectors are µT.
// TimestampNanos is a monotonic event time; only differences are meaningful.
type Sample struct {
	Type           Type
	Vector         Vector3
	TimestampNanos int64
}
