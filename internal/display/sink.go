// Package display renders session output for a headless tracker: a log sink
// for the terminal and an LED pulse for each target update.
package display

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"rockettrack/internal/session"
	"rockettrack/internal/throttle"
)

// Pulser flashes an indicator, e.g. *indicator.LED.
type Pulser interface {
	Pulse()
}

// LogSink writes each display update as a key=value line.
type LogSink struct {
	logger  *log.Logger
	pulser  Pulser
	compass *throttle.Throttle
	now     func() time.Time

	mu           sync.Mutex
	keepScreenOn bool
	haveScreen   bool
}

type LogSinkConfig struct {
	// CompassEvery limits compass lines; the compass updates several times
	// a second.
	CompassEvery time.Duration
	// Pulser, if set, is pulsed on every target update.
	Pulser Pulser
}

func NewLogSink(logger *log.Logger, cfg LogSinkConfig) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	every := cfg.CompassEvery
	if every <= 0 {
		every = time.Second
	}
	return &LogSink{
		logger:  logger,
		pulser:  cfg.Pulser,
		compass: throttle.New(every),
		now:     time.Now,
	}
}

func (s *LogSink) CompassChanged(d session.Display) {
	s.mu.Lock()
	ok := s.compass.ShouldUpdate(s.now().UnixNano())
	s.mu.Unlock()
	if !ok || !d.AzimuthValid {
		return
	}
	s.logger.Printf("compass azimuth=%.1f", d.AzimuthDeg)
}

func (s *LogSink) DeviceLocationChanged(d session.Display) {
	s.screen(d)
	s.logger.Printf("device %s", Line(d))
}

func (s *LogSink) TargetLocationChanged(d session.Display) {
	s.screen(d)
	s.logger.Printf("target %s", Line(d))
	if s.pulser != nil && d.AltitudeValid {
		s.pulser.Pulse()
	}
}

func (s *LogSink) StatusMessage(msg string) {
	s.logger.Printf("status msg=%q", msg)
}

// screen logs the keep-screen-on flag when it changes.
func (s *LogSink) screen(d session.Display) {
	s.mu.Lock()
	changed := !s.haveScreen || s.keepScreenOn != d.KeepScreenOn
	s.keepScreenOn, s.haveScreen = d.KeepScreenOn, true
	s.mu.Unlock()
	if changed {
		s.logger.Printf("keep_screen_on=%t", d.KeepScreenOn)
	}
}

// Line renders the positional part of d. Unknown values print as "-".
func Line(d session.Display) string {
	dash := func(v string) string {
		if v == "" {
			return "-"
		}
		return v
	}
	var b strings.Builder
	fmt.Fprintf(&b, "bearing=%s", dash(d.Bearing))
	fmt.Fprintf(&b, " distance=%q", dash(d.Distance))
	fmt.Fprintf(&b, " lat=%q lon=%q", dash(d.Latitude), dash(d.Longitude))
	fmt.Fprintf(&b, " alt=%q max=%q", dash(d.Altitude), dash(d.MaxAltitude))
	return b.String()
}

// Multi fans every call out to each sink in order.
func Multi(sinks ...session.Sink) session.Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []session.Sink

func (m multi) CompassChanged(d session.Display) {
	for _, s := range m {
		s.CompassChanged(d)
	}
}

func (m multi) DeviceLocationChanged(d session.Display) {
	for _, s := range m {
		s.DeviceLocationChanged(d)
	}
}

func (m multi) TargetLocationChanged(d session.Display) {
	for _, s := range m {
		s.TargetLocationChanged(d)
	}
}

func (m multi) StatusMessage(msg string) {
	for _, s := range m {
		s.StatusMessage(msg)
	}
}
