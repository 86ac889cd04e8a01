// Package imu polls the ICM-20948 and publishes accelerometer and
// magnetometer samples to subscribers.
package imu

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rockettrack/internal/i2c"
	"rockettrack/internal/sensors"
	"rockettrack/internal/sensors/icm20948"
)

const DefaultRate = 20 * time.Millisecond // 50 Hz

type Config struct {
	Enable  bool
	I2CBus  int
	IMUAddr uint16
	MagAddr uint16
	// Rate is the polling period.
	Rate time.Duration
}

type Snapshot struct {
	IMUDetected bool
	MagDetected bool

	Accel sensors.Vector3 // m/s²
	Mag   sensors.Vector3 // µT

	AccelSamples  uint64
	MagSamples    uint64
	MagOverflows  uint64
	LastUpdateAt  time.Time
	LastError     string
	LastErrorAt   time.Time
	ConsecutiveIO int
}

type device interface {
	Read() (icm20948.Sample, error)
	ReadMag() (icm20948.MagSample, bool, error)
	HasMagnetometer() bool
}

type Service struct {
	cfg Config

	mu   sync.RWMutex
	snap Snapshot

	bus   *i2c.Bus
	dev   device
	epoch time.Time

	subMu  sync.RWMutex
	subs   map[int]func(sensors.Sample)
	nextID int

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config) *Service {
	if cfg.I2CBus == 0 {
		cfg.I2CBus = 1
	}
	if cfg.IMUAddr == 0 {
		cfg.IMUAddr = icm20948.DefaultAddress()
	}
	if cfg.MagAddr == 0 {
		cfg.MagAddr = icm20948.MagAddress()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRate
	}
	return &Service{
		cfg:    cfg,
		subs:   make(map[int]func(sensors.Sample)),
		stopCh: make(chan struct{}),
		epoch:  time.Now(),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("imu: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("imu: ctx is nil")
	}

	busPath := fmt.Sprintf("/dev/i2c-%d", s.cfg.I2CBus)
	bus, err := i2c.Open(busPath)
	if err != nil {
		s.setErr(fmt.Sprintf("open %s: %v", busPath, err))
		return err
	}

	dev, err := icm20948.New(bus.Dev(s.cfg.IMUAddr), bus.Dev(s.cfg.MagAddr))
	if err != nil {
		s.setErr(fmt.Sprintf("imu init: %v", err))
		_ = bus.Close()
		return err
	}
	s.bus = bus
	s.attach(dev)

	log.Printf("imu enabled bus=%s addr=0x%02X mag=0x%02X rate=%s", busPath, s.cfg.IMUAddr, s.cfg.MagAddr, s.cfg.Rate)
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *Service) attach(dev device) {
	s.dev = dev
	s.mu.Lock()
	s.snap.IMUDetected = true
	s.snap.MagDetected = dev.HasMagnetometer()
	s.mu.Unlock()
}

func (s *Service) run(ctx context.Context) {
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
			s.poll()
		}
	}
}

// poll reads one accelerometer sample and, when ready, one magnetometer
// sample and publishes them.
func (s *Service) poll() {
	raw, err := s.dev.Read()
	if err != nil {
		s.ioErr(err)
		return
	}
	accel := sensors.Vector3{
		X: raw.Ax * sensors.StandardGravity,
		Y: raw.Ay * sensors.StandardGravity,
		Z: raw.Az * sensors.StandardGravity,
	}
	ts := raw.Time.Sub(s.epoch).Nanoseconds()
	s.mu.Lock()
	s.snap.Accel = accel
	s.snap.AccelSamples++
	s.snap.LastUpdateAt = raw.Time
	s.snap.ConsecutiveIO = 0
	s.mu.Unlock()
	s.publish(sensors.Sample{Type: sensors.Accelerometer, Vector: accel, TimestampNanos: ts})

	if !s.dev.HasMagnetometer() {
		return
	}
	m, ok, err := s.dev.ReadMag()
	if err != nil {
		s.ioErr(err)
		return
	}
	if !ok {
		return
	}
	if m.Overflow {
		s.mu.Lock()
		s.snap.MagOverflows++
		s.mu.Unlock()
		return
	}
	mag := sensors.Vector3{X: m.Mx, Y: m.My, Z: m.Mz}
	s.mu.Lock()
	s.snap.Mag = mag
	s.snap.MagSamples++
	s.mu.Unlock()
	s.publish(sensors.Sample{Type: sensors.Magnetometer, Vector: mag, TimestampNanos: m.Time.Sub(s.epoch).Nanoseconds()})
}

func (s *Service) ioErr(err error) {
	s.mu.Lock()
	s.snap.ConsecutiveIO++
	n := s.snap.ConsecutiveIO
	s.mu.Unlock()
	s.setErr(err.Error())
	// Log the first failure of a run, then every 250th (~5s at 50 Hz).
	if n == 1 || n%250 == 0 {
		log.Printf("imu read failed count=%d err=%v", n, err)
	}
}

func (s *Service) publish(sample sensors.Sample) {
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

func (s *Service) SubscribeSensors(fn func(sensors.Sample)) int {
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

func (s *Service) UnsubscribeSensors(id int) {
	if s == nil {
		return
	}
	s.subMu.Lock()
	delete(s.subs, id)
	s.subMu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	s.snap.LastError = msg
	s.snap.LastErrorAt = time.Now().UTC()
	s.mu.Unlock()
}

// Close stops polling and releases the bus. Safe to call more than once.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if s.bus != nil {
			_ = s.bus.Close()
			s.bus = nil
		}
	})
}
