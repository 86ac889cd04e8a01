package orientation

import "rockettrack/internal/sensors"

// Estimator runs the fusion, remap and decomposition steps and keeps the last
// good result.
type Estimator struct {
	rotation ScreenRotation

	last     Angles
	haveLast bool
}

func NewEstimator(rot ScreenRotation) *Estimator {
	return &Estimator{rotation: rot}
}

func (e *Estimator) ScreenRotation() ScreenRotation { return e.rotation }

// Estimate computes orientation angles from filtered vectors. On
// ErrIndeterminate the previous result is kept.
func (e *Estimator) Estimate(accel, magnet sensors.Vector3) (Angles, error) {
	r, err := RotationFromVectors(accel, magnet)
	if err != nil {
		return e.last, err
	}
	r = Remap(r, e.rotation)
	e.last = AnglesFrom(r)
	e.haveLast = true
	return e.last, nil
}

// Last returns the most recent successful estimate.
func (e *Estimator) Last() (Angles, bool) { return e.last, e.haveLast }

func (e *Estimator) Reset() {
	e.last = Angles{}
	e.haveLast = false
}
