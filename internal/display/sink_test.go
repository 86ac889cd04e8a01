package display

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"

	"rockettrack/internal/session"
)

type countingPulser struct{ n int }

func (c *countingPulser) Pulse() { c.n++ }

func newTestSink(p Pulser) (*LogSink, *bytes.Buffer, *time.Time) {
	var buf bytes.Buffer
	s := NewLogSink(log.New(&buf, "", 0), LogSinkConfig{CompassEvery: time.Second, Pulser: p})
	now := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &buf, &now
}

func lines(buf *bytes.Buffer) []string {
	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}

func TestLine_FormatsKnownAndUnknownValues(t *testing.T) {
	got := Line(session.Display{})
	want := `bearing=- distance="-" lat="-" lon="-" alt="-" max="-"`
	if got != want {
		t.Fatalf("Line()=%s want %s", got, want)
	}

	got = Line(session.Display{
		Bearing: "45", Distance: "1.2 km",
		Latitude: "N 32° 59.400'", Longitude: "W 106° 58.200'",
		Altitude: "400 m", MaxAltitude: "800 m",
	})
	if !strings.Contains(got, "bearing=45") || !strings.Contains(got, `distance="1.2 km"`) || !strings.Contains(got, `max="800 m"`) {
		t.Fatalf("Line()=%s", got)
	}
}

func TestLogSink_TargetPulsesIndicator(t *testing.T) {
	p := &countingPulser{}
	s, buf, _ := newTestSink(p)

	s.TargetLocationChanged(session.Display{})
	if p.n != 0 {
		t.Fatalf("pulsed for a cleared target")
	}
	s.TargetLocationChanged(session.Display{AltitudeValid: true, Altitude: "10 m"})
	if p.n != 1 {
		t.Fatalf("pulses=%d want 1", p.n)
	}

	got := lines(buf)
	// keep_screen_on is logged once, then one line per target update.
	if len(got) != 3 || got[0] != "keep_screen_on=false" || !strings.HasPrefix(got[2], "target bearing=") {
		t.Fatalf("lines=%q", got)
	}
}

func TestLogSink_KeepScreenOnLoggedOnChange(t *testing.T) {
	s, buf, _ := newTestSink(nil)
	s.DeviceLocationChanged(session.Display{KeepScreenOn: true})
	s.DeviceLocationChanged(session.Display{KeepScreenOn: true})
	s.TargetLocationChanged(session.Display{KeepScreenOn: false})

	n := 0
	for _, l := range lines(buf) {
		if strings.HasPrefix(l, "keep_screen_on=") {
			n++
		}
	}
	if n != 2 {
		t.Fatalf("keep_screen_on lines=%d want 2\n%s", n, buf.String())
	}
}

func TestLogSink_CompassThrottled(t *testing.T) {
	s, buf, now := newTestSink(nil)
	d := session.Display{AzimuthDeg: 123.4, AzimuthValid: true}

	s.CompassChanged(d)
	*now = now.Add(500 * time.Millisecond)
	s.CompassChanged(d)
	*now = now.Add(600 * time.Millisecond)
	s.CompassChanged(d)

	got := lines(buf)
	if len(got) != 2 || got[0] != "compass azimuth=123.4" {
		t.Fatalf("lines=%q", got)
	}
}

func TestLogSink_StatusMessage(t *testing.T) {
	s, buf, _ := newTestSink(nil)
	s.StatusMessage("GPS Status: Available")
	if got := lines(buf); len(got) != 1 || got[0] != `status msg="GPS Status: Available"` {
		t.Fatalf("lines=%q", got)
	}
}

type recordingSink struct{ calls []string }

func (r *recordingSink) CompassChanged(session.Display)        { r.calls = append(r.calls, "compass") }
func (r *recordingSink) DeviceLocationChanged(session.Display) { r.calls = append(r.calls, "device") }
func (r *recordingSink) TargetLocationChanged(session.Display) { r.calls = append(r.calls, "target") }
func (r *recordingSink) StatusMessage(string)                  { r.calls = append(r.calls, "status") }

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi(a, nil, b)
	m.CompassChanged(session.Display{})
	m.DeviceLocationChanged(session.Display{})
	m.TargetLocationChanged(session.Display{})
	m.StatusMessage("x")
	for _, r := range []*recordingSink{a, b} {
		if strings.Join(r.calls, ",") != "compass,device,target,status" {
			t.Fatalf("calls=%v", r.calls)
		}
	}
}
