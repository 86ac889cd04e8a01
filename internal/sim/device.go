package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"rockettrack/internal/geo"
	"rockettrack/internal/gps"
)

type DeviceConfig struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltitudeM    float64

	// RadiusM bounds the walk around the center. Zero holds the device still.
	RadiusM float64
	// Period is one lap of the walk.
	Period time.Duration
	// Interval between fixes.
	Interval time.Duration
}

// DeviceSim is a location source that walks a figure-eight around a fixed
// point, standing in for the phone's GPS receiver.
type DeviceSim struct {
	cfg DeviceConfig
	now func() time.Time

	subMu  sync.RWMutex
	subs   map[int]gps.Listener
	nextID int

	mu        sync.Mutex
	last      geo.Position
	haveLast  bool
	available bool

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewDeviceSim(cfg DeviceConfig) *DeviceSim {
	if cfg.Period <= 0 {
		cfg.Period = 120 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RadiusM < 0 {
		cfg.RadiusM = 0
	}
	return &DeviceSim{
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		subs:   make(map[int]gps.Listener),
		stopCh: make(chan struct{}),
	}
}

// Position returns the deterministic device position at now.
func (s *DeviceSim) Position(now time.Time) geo.Position {
	phase := float64(now.UnixNano()%s.cfg.Period.Nanoseconds()) / float64(s.cfg.Period.Nanoseconds())

	// Lissajous figure-eight: x = cos(2πt) east, y = 0.5*sin(4πt) north.
	w := 2 * math.Pi * phase
	east := s.cfg.RadiusM * math.Cos(w)
	north := s.cfg.RadiusM * 0.5 * math.Sin(2*w)

	lat := s.cfg.CenterLatDeg + north/metersPerDegLat
	lon := s.cfg.CenterLonDeg + east/(metersPerDegLat*math.Cos(s.cfg.CenterLatDeg*math.Pi/180))
	return geo.Position{Latitude: lat, Longitude: lon, Altitude: s.cfg.AltitudeM, Time: now}
}

func (s *DeviceSim) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sim: device sim is nil")
	}
	if ctx == nil {
		return fmt.Errorf("sim: ctx is nil")
	}
	log.Printf("sim device enabled lat=%.5f lon=%.5f radius_m=%.0f interval=%s", s.cfg.CenterLatDeg, s.cfg.CenterLonDeg, s.cfg.RadiusM, s.cfg.Interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(s.cfg.Interval)
		defer tick.Stop()
		for {
			s.step(s.now())
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-tick.C:
			}
		}
	}()
	return nil
}

// step emits the position for now, announcing availability on the first fix.
func (s *DeviceSim) step(now time.Time) {
	pos := s.Position(now)

	s.mu.Lock()
	s.last, s.haveLast = pos, true
	announce := !s.available
	s.available = true
	s.mu.Unlock()

	ls := s.listeners()
	if announce {
		for _, l := range ls {
			l.OnStatus(gps.StatusAvailable)
		}
	}
	for _, l := range ls {
		l.OnLocation(pos)
	}
}

func (s *DeviceSim) listeners() []gps.Listener {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	out := make([]gps.Listener, 0, len(s.subs))
	for _, l := range s.subs {
		out = append(out, l)
	}
	return out
}

func (s *DeviceSim) SubscribeLocation(l gps.Listener) int {
	if s == nil || l == nil {
		return -1
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = l
	return id
}

func (s *DeviceSim) UnsubscribeLocation(id int) {
	if s == nil {
		return
	}
	s.subMu.Lock()
	delete(s.subs, id)
	s.subMu.Unlock()
}

func (s *DeviceSim) LastKnownLocation() (geo.Position, bool) {
	if s == nil {
		return geo.Position{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveLast
}

func (s *DeviceSim) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}
