// Package indicator flashes a status LED on a GPIO line each time the target
// position changes.
package indicator

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const DefaultPulse = 300 * time.Millisecond

type Config struct {
	Enable bool
	// Chip is the gpiochip tried first, e.g. "gpiochip0".
	Chip string
	// GPIOPin is BCM GPIO numbering.
	GPIOPin int
	Pulse   time.Duration
}

type output interface {
	SetValue(v int) error
	Close() error
}

var openLineFn = openLine

// LED drives one output line. A disabled LED counts pulses but touches no
// hardware.
type LED struct {
	cfg Config

	mu      sync.Mutex
	out     output
	timer   *time.Timer
	lit     bool
	pulses  uint64
	lastErr string
	closed  bool
}

func New(cfg Config) (*LED, error) {
	if cfg.Pulse <= 0 {
		cfg.Pulse = DefaultPulse
	}
	l := &LED{cfg: cfg}
	if !cfg.Enable {
		return l, nil
	}
	out, err := openLineFn(cfg.Chip, cfg.GPIOPin)
	if err != nil {
		return nil, err
	}
	l.out = out
	log.Printf("indicator enabled chip=%s gpio=%d pulse=%s", cfg.Chip, cfg.GPIOPin, cfg.Pulse)
	return l, nil
}

// Pulse lights the LED for the configured duration. A pulse while lit
// extends it.
func (l *LED) Pulse() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.pulses++
	if l.out == nil {
		return
	}
	if !l.lit {
		if err := l.out.SetValue(1); err != nil {
			l.setErrLocked(err)
			return
		}
		l.lit = true
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.cfg.Pulse, l.off)
}

func (l *LED) off() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || !l.lit || l.out == nil {
		return
	}
	if err := l.out.SetValue(0); err != nil {
		l.setErrLocked(err)
		return
	}
	l.lit = false
}

func (l *LED) setErrLocked(err error) {
	msg := err.Error()
	if msg != l.lastErr {
		log.Printf("indicator gpio write failed err=%v", err)
	}
	l.lastErr = msg
}

func (l *LED) Pulses() uint64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pulses
}

func (l *LED) Lit() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

// Close turns the LED off and releases the line. Safe to call more than once.
func (l *LED) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.out == nil {
		l.lit = false
		return nil
	}
	if l.lit {
		_ = l.out.SetValue(0)
		l.lit = false
	}
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("indicator: close: %w", err)
	}
	return nil
}
