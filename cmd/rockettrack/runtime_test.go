package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rockettrack/internal/config"
	"rockettrack/internal/session"
)

func simConfig(t *testing.T, extra string) config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
preferences:
  unit: m
orientation:
  throttle: 10ms
sim:
  device:
    enable: true
    center_lat_deg: 32.94
    center_lon_deg: -106.91
    altitude_m: 1300
    radius_m: 10
    interval: 10ms
  sensors:
    enable: true
    heading_deg: 45
    rate: 5ms
  flight:
    enable: true
    launch_lat_deg: 32.99
    launch_lon_deg: -106.97
    launch_alt_m: 1400
    apogee_m: 800
    interval: 10ms
` + extra))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRuntime_SimulatedSourcesReachFullTracking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := newRuntime(ctx, simConfig(t, ""), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()

	waitFor(t, "full tracking", func() bool { return rt.session.State() == session.FullyTracking })
	waitFor(t, "compass", func() bool { _, ok := rt.session.Azimuth(); return ok })

	d := rt.session.Display()
	if !d.BearingValid || !d.DistanceValid || !d.AltitudeValid {
		t.Fatalf("display=%+v", d)
	}
	if len(rt.store.History()) == 0 {
		t.Fatalf("flight sim did not feed the store")
	}
	if rt.led == nil || rt.led.Pulses() == 0 {
		t.Fatalf("indicator not pulsed on target updates")
	}
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	rt, err := newRuntime(context.Background(), simConfig(t, ""), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	rt.Close()
	rt.Close()
	if rt.session.State() != session.Uninitialized {
		t.Fatalf("state after close=%v", rt.session.State())
	}
}

func TestRuntime_NoSourcesStillRuns(t *testing.T) {
	cfg, err := config.Parse([]byte("{}\n"))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	rt, err := newRuntime(context.Background(), cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	defer rt.Close()
	if rt.session.State() != session.Uninitialized {
		t.Fatalf("state=%v", rt.session.State())
	}
}

func TestLoadFlight_FromProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flight.yaml")
	profile := "keyframes:\n  - t: 0s\n    lat_deg: 1\n    lon_deg: 1\n    alt_m: 0\n  - t: 5s\n    lat_deg: 1\n    lon_deg: 1\n    alt_m: 500\n"
	if err := os.WriteFile(path, []byte(profile), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := loadFlight(config.FlightSimConfig{Profile: path})
	if err != nil {
		t.Fatalf("loadFlight: %v", err)
	}
	if f.Duration() != 5*time.Second {
		t.Fatalf("duration=%s", f.Duration())
	}
	if _, err := loadFlight(config.FlightSimConfig{Profile: filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing profile")
	}
}
