package indicator

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLine struct {
	mu     sync.Mutex
	values []int
	setErr error
	closed bool
}

func (f *fakeLine) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.values = append(f.values, v)
	return nil
}

func (f *fakeLine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeLine) snapshot() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.values...)
}

func withFakeLine(t *testing.T, line *fakeLine, openErr error) {
	t.Helper()
	old := openLineFn
	openLineFn = func(chip string, pin int) (output, error) {
		if openErr != nil {
			return nil, openErr
		}
		return line, nil
	}
	t.Cleanup(func() { openLineFn = old })
}

func TestPulse_LightsThenTurnsOff(t *testing.T) {
	line := &fakeLine{}
	withFakeLine(t, line, nil)
	l, err := New(Config{Enable: true, GPIOPin: 17, Pulse: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Pulse()
	if !l.Lit() {
		t.Fatalf("expected lit after pulse")
	}
	deadline := time.Now().Add(2 * time.Second)
	for l.Lit() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if l.Lit() {
		t.Fatalf("LED still lit after pulse duration")
	}
	got := line.snapshot()
	if len(got) != 2 || got[0] != 1 || got[1] != 0 {
		t.Fatalf("values=%v want [1 0]", got)
	}
}

func TestPulse_RetriggerWhileLitWritesOnce(t *testing.T) {
	line := &fakeLine{}
	withFakeLine(t, line, nil)
	l, _ := New(Config{Enable: true, GPIOPin: 17, Pulse: time.Hour})
	l.Pulse()
	l.Pulse()
	l.Pulse()
	if got := line.snapshot(); len(got) != 1 {
		t.Fatalf("values=%v want a single on write", got)
	}
	if l.Pulses() != 3 {
		t.Fatalf("pulses=%d", l.Pulses())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !line.closed || l.Lit() {
		t.Fatalf("close did not release the line")
	}
	if got := line.snapshot(); len(got) != 2 || got[1] != 0 {
		t.Fatalf("values=%v want the line driven low on close", got)
	}
	l.Pulse()
	if l.Pulses() != 3 {
		t.Fatalf("pulse counted after close")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPulse_WriteErrorKeepsOff(t *testing.T) {
	line := &fakeLine{setErr: errors.New("gpio busy")}
	withFakeLine(t, line, nil)
	l, _ := New(Config{Enable: true, GPIOPin: 17})
	l.Pulse()
	if l.Lit() {
		t.Fatalf("lit despite write error")
	}
	_ = l.Close()
}

func TestNew_OpenError(t *testing.T) {
	withFakeLine(t, nil, errors.New("indicator: gpio line \"GPIO17\" not found (or busy)"))
	if _, err := New(Config{Enable: true, GPIOPin: 17}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDisabledCountsPulsesOnly(t *testing.T) {
	withFakeLine(t, nil, errors.New("must not open"))
	l, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Pulse()
	if l.Pulses() != 1 || l.Lit() {
		t.Fatalf("pulses=%d lit=%v", l.Pulses(), l.Lit())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var nilLED *LED
	nilLED.Pulse()
	if nilLED.Pulses() != 0 || nilLED.Close() != nil {
		t.Fatalf("nil LED should be inert")
	}
}
