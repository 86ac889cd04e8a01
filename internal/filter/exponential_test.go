package filter

import (
	"math"
	"testing"

	"rockettrack/internal/sensors"
)

func TestNew_RejectsAlphaOutOfRange(t *testing.T) {
	for _, a := range []float64{0, -0.1, 1.01, math.NaN()} {
		if _, err := New(a); err == nil {
			t.Fatalf("alpha=%v: expected error", a)
		}
	}
	if _, err := New(1); err != nil {
		t.Fatalf("alpha=1: %v", err)
	}
}

func TestAverage_FirstSampleIsIdentity(t *testing.T) {
	for _, alpha := range []float64{0.05, 0.25, 0.4, 1} {
		f, err := New(alpha)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		v := sensors.Vector3{X: 1.5, Y: -2, Z: 9.8}
		if got := f.Average(v); got != v {
			t.Fatalf("alpha=%v got=%v want=%v", alpha, got, v)
		}
	}
}

func TestAverage_ConstantInputConverges(t *testing.T) {
	f, _ := New(DefaultMagnetAlpha)
	f.Average(sensors.Vector3{X: 100, Y: -100, Z: 0})
	want := sensors.Vector3{X: 20, Y: 30, Z: -40}
	var got sensors.Vector3
	for i := 0; i < 200; i++ {
		got = f.Average(want)
	}
	if math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 || math.Abs(got.Z-want.Z) > 1e-9 {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestAverage_UpdateRule(t *testing.T) {
	f, _ := New(DefaultAccelAlpha)
	f.Average(sensors.Vector3{X: 0, Y: 0, Z: 0})
	got := f.Average(sensors.Vector3{X: 10, Y: -5, Z: 1})
	want := sensors.Vector3{X: 4, Y: -2, Z: 0.4}
	if math.Abs(got.X-want.X) > 1e-12 || math.Abs(got.Y-want.Y) > 1e-12 || math.Abs(got.Z-want.Z) > 1e-12 {
		t.Fatalf("got=%v want=%v", got, want)
	}
}

func TestAverage_DropsNonFinite(t *testing.T) {
	f, _ := New(0.5)
	if _, ok := f.AverageOK(sensors.Vector3{X: math.NaN()}); ok {
		t.Fatalf("expected unseeded after NaN sample")
	}
	f.Average(sensors.Vector3{X: 2, Y: 2, Z: 2})
	got := f.Average(sensors.Vector3{X: math.Inf(1), Y: 0, Z: 0})
	if got != (sensors.Vector3{X: 2, Y: 2, Z: 2}) {
		t.Fatalf("got=%v", got)
	}
}

func TestReset(t *testing.T) {
	f, _ := New(0.25)
	f.Average(sensors.Vector3{X: 1})
	f.Reset()
	if _, ok := f.Value(); ok {
		t.Fatalf("expected unseeded after Reset")
	}
	v := sensors.Vector3{X: 7, Y: 8, Z: 9}
	if got := f.Average(v); got != v {
		t.Fatalf("got=%v want=%v", got, v)
	}
}
