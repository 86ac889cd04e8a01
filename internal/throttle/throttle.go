// Package throttle rate-limits work driven by sensor event timestamps.
package throttle

import "time"

const DefaultInterval = 250 * time.Millisecond

// Throttle accepts at most one event per interval, measured on the event's own
// timestamp (not wall clock). The first event is always accepted.
type Throttle struct {
	interval int64
	last     int64
	primed   bool
}

func New(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{interval: interval.Nanoseconds()}
}

// ShouldUpdate reports whether tsNanos is strictly later than the last
// accepted timestamp plus the interval, and records it if so.
func (t *Throttle) ShouldUpdate(tsNanos int64) bool {
	if t.primed && tsNanos <= t.last+t.interval {
		return false
	}
	t.last = tsNanos
	t.primed = true
	return true
}

func (t *Throttle) Interval() time.Duration { return time.Duration(t.interval) }

func (t *Throttle) Reset() {
	t.last = 0
	t.primed = false
}
