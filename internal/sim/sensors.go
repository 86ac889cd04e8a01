package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"rockettrack/internal/sensors"
)

const (
	defaultFieldNorthUT = 22.0
	defaultFieldDownUT  = 40.0
)

type SensorConfig struct {
	// HeadingDeg is the magnetic heading of the device's Y axis.
	HeadingDeg float64
	// PitchDeg tilts the top edge up.
	PitchDeg float64
	// SweepPeriod turns the device through a full circle once per period.
	// Zero holds the heading.
	SweepPeriod time.Duration

	FieldNorthUT float64
	FieldDownUT  float64

	// NoiseStd is the per-axis Gaussian noise, in sensor units.
	NoiseStd float64
	Seed     uint64
	Rate     time.Duration
}

// SensorSim publishes accelerometer and magnetometer samples for a device
// held at a known attitude.
type SensorSim struct {
	cfg   SensorConfig
	epoch time.Time
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	subMu  sync.RWMutex
	subs   map[int]func(sensors.Sample)
	nextID int

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewSensorSim(cfg SensorConfig) *SensorSim {
	if cfg.FieldNorthUT == 0 && cfg.FieldDownUT == 0 {
		cfg.FieldNorthUT = defaultFieldNorthUT
		cfg.FieldDownUT = defaultFieldDownUT
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 20 * time.Millisecond
	}
	if cfg.NoiseStd < 0 {
		cfg.NoiseStd = 0
	}
	now := time.Now()
	return &SensorSim{
		cfg:    cfg,
		epoch:  now,
		now:    time.Now,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		subs:   make(map[int]func(sensors.Sample)),
		stopCh: make(chan struct{}),
	}
}

// HeadingAt returns the simulated magnetic heading after elapsed.
func (s *SensorSim) HeadingAt(elapsed time.Duration) float64 {
	h := s.cfg.HeadingDeg
	if s.cfg.SweepPeriod > 0 {
		h += 360 * float64(elapsed%s.cfg.SweepPeriod) / float64(s.cfg.SweepPeriod)
	}
	return math.Mod(math.Mod(h, 360)+360, 360)
}

// Readings returns noise-free accelerometer (m/s²) and magnetometer (µT)
// vectors for a device with its Y axis at headingDeg and pitched by pitchDeg.
func Readings(headingDeg, pitchDeg, fieldNorthUT, fieldDownUT float64) (accel, magnet sensors.Vector3) {
	return toDevice(0, 0, sensors.StandardGravity, headingDeg, pitchDeg),
		toDevice(0, fieldNorthUT, -fieldDownUT, headingDeg, pitchDeg)
}

// toDevice rotates a world vector (east, north, up) into the device frame.
func toDevice(e, n, u, headingDeg, pitchDeg float64) sensors.Vector3 {
	h := headingDeg * math.Pi / 180
	p := pitchDeg * math.Pi / 180
	x := e*math.Cos(h) - n*math.Sin(h)
	y := e*math.Sin(h) + n*math.Cos(h)
	return sensors.Vector3{
		X: x,
		Y: y*math.Cos(p) + u*math.Sin(p),
		Z: -y*math.Sin(p) + u*math.Cos(p),
	}
}

func (s *SensorSim) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sim: sensor sim is nil")
	}
	if ctx == nil {
		return fmt.Errorf("sim: ctx is nil")
	}
	log.Printf("sim sensors enabled heading=%.1f pitch=%.1f sweep=%s rate=%s", s.cfg.HeadingDeg, s.cfg.PitchDeg, s.cfg.SweepPeriod, s.cfg.Rate)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(s.cfg.Rate)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-tick.C:
				s.step(s.now())
			}
		}
	}()
	return nil
}

func (s *SensorSim) step(now time.Time) {
	elapsed := now.Sub(s.epoch)
	accel, magnet := Readings(s.HeadingAt(elapsed), s.cfg.PitchDeg, s.cfg.FieldNorthUT, s.cfg.FieldDownUT)
	ts := elapsed.Nanoseconds()
	s.publish(sensors.Sample{Type: sensors.Accelerometer, Vector: s.noisy(accel), TimestampNanos: ts})
	s.publish(sensors.Sample{Type: sensors.Magnetometer, Vector: s.noisy(magnet), TimestampNanos: ts})
}

func (s *SensorSim) noisy(v sensors.Vector3) sensors.Vector3 {
	if s.cfg.NoiseStd == 0 {
		return v
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	sd := s.cfg.NoiseStd
	return sensors.Vector3{
		X: v.X + s.rng.NormFloat64()*sd,
		Y: v.Y + s.rng.NormFloat64()*sd,
		Z: v.Z + s.rng.NormFloat64()*sd,
	}
}

func (s *SensorSim) publish(sample sensors.Sample) {
	s.subMu.RLock()
	subs := make([]func(sensors.Sample), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(sample)
	}
}

func (s *SensorSim) SubscribeSensors(fn func(sensors.Sample)) int {
	if s == nil || fn == nil {
		return -1
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return id
}

func (s *SensorSim) UnsubscribeSensors(id int) {
	if s == nil {
		return
	}
	s.subMu.Lock()
	delete(s.subs, id)
	s.subMu.Unlock()
}

func (s *SensorSim) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}
