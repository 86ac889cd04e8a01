package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"rockettrack/internal/geo"
)

// metersPerDegLat is the small-angle conversion used for sim offsets.
const metersPerDegLat = 111320.0

// FlightProfile is a script-driven rocket flight.
//
// Time is expressed as Go duration strings. If Duration is zero it is derived
// from the latest keyframe.
//
// YAML schema (v1):
//
//	version: 1
//	keyframes:
//	  - t: 0s
//	    lat_deg: 32.99
//	    lon_deg: -106.97
//	    alt_m: 1401
//	  - t: 22s
//	    lat_deg: 32.991
//	    lon_deg: -106.969
//	    alt_m: 4400
//
// Keyframes must use non-decreasing t values.
type FlightProfile struct {
	Version   int              `yaml:"version"`
	Duration  time.Duration    `yaml:"duration"`
	Keyframes []FlightKeyframe `yaml:"keyframes"`
}

type FlightKeyframe struct {
	T      time.Duration `yaml:"t"`
	LatDeg float64       `yaml:"lat_deg"`
	LonDeg float64       `yaml:"lon_deg"`
	AltM   float64       `yaml:"alt_m"`
}

// LoadFlightProfile reads and unmarshals a YAML flight profile from path.
func LoadFlightProfile(path string) (FlightProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FlightProfile{}, err
	}
	return ParseFlightProfileYAML(b)
}

func ParseFlightProfileYAML(b []byte) (FlightProfile, error) {
	var p FlightProfile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return FlightProfile{}, fmt.Errorf("sim: parse flight profile: %w", err)
	}
	return p, nil
}

// BallisticProfile builds a plausible dual-deploy flight from a launch site:
// boost and coast to apogee, drogue descent, then main descent to landing.
// Wind drifts the rocket toward driftBearingDeg during descent.
func BallisticProfile(launch geo.Position, apogeeM, windMS, driftBearingDeg float64) FlightProfile {
	if apogeeM <= 0 {
		apogeeM = 1500
	}
	const (
		drogueMS = 25.0
		mainMS   = 6.0
		mainAGL  = 150.0
	)
	// Coast time for a rocket that reaches apogee under gravity alone after
	// a short burn, rounded to whole seconds.
	coast := math.Round(math.Sqrt(2 * apogeeM / 9.81))
	burn := 3.0
	apogeeT := burn + coast
	drogueT := apogeeT + math.Max(apogeeM-mainAGL, 0)/drogueMS
	landT := drogueT + math.Min(apogeeM, mainAGL)/mainMS

	at := func(t, agl float64) FlightKeyframe {
		drift := 0.0
		if t > apogeeT {
			drift = windMS * (t - apogeeT)
		}
		lat, lon := offset(launch.Latitude, launch.Longitude, drift, driftBearingDeg)
		return FlightKeyframe{
			T:      time.Duration(t * float64(time.Second)),
			LatDeg: lat,
			LonDeg: lon,
			AltM:   launch.Altitude + agl,
		}
	}

	return FlightProfile{
		Version: 1,
		Keyframes: []FlightKeyframe{
			at(0, 0),
			at(burn, apogeeM*0.15),
			at(burn+coast*0.5, apogeeM*0.75),
			at(apogeeT, apogeeM),
			at(drogueT, math.Min(apogeeM, mainAGL)),
			at(landT, 0),
		},
	}
}

// offset moves lat/lon by distM meters toward bearingDeg.
func offset(lat, lon, distM, bearingDeg float64) (float64, float64) {
	b := bearingDeg * math.Pi / 180
	north := distM * math.Cos(b)
	east := distM * math.Sin(b)
	lat2 := lat + north/metersPerDegLat
	lon2 := lon + east/(metersPerDegLat*math.Cos(lat*math.Pi/180))
	return lat2, lon2
}

// Flight is a validated profile.
type Flight struct {
	keyframes []FlightKeyframe
	duration  time.Duration
}

func NewFlight(p FlightProfile) (*Flight, error) {
	if p.Version == 0 {
		p.Version = 1
	}
	if p.Version != 1 {
		return nil, fmt.Errorf("sim: unsupported flight profile version %d", p.Version)
	}
	if len(p.Keyframes) == 0 {
		return nil, fmt.Errorf("sim: flight keyframes are required")
	}
	for i, kf := range p.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("sim: keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < p.Keyframes[i-1].T {
			return nil, fmt.Errorf("sim: keyframes must be sorted by t (index %d)", i)
		}
		pos := geo.Position{Latitude: kf.LatDeg, Longitude: kf.LonDeg, Altitude: kf.AltM}
		if !pos.Valid() {
			return nil, fmt.Errorf("sim: keyframes[%d] has invalid position", i)
		}
	}
	dur := p.Duration
	if dur <= 0 {
		dur = p.Keyframes[len(p.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("sim: flight duration is required (or derivable from keyframes)")
	}
	kfs := make([]FlightKeyframe, len(p.Keyframes))
	copy(kfs, p.Keyframes)
	return &Flight{keyframes: kfs, duration: dur}, nil
}

func (f *Flight) Duration() time.Duration {
	if f == nil {
		return 0
	}
	return f.duration
}

// PositionAt interpolates the flight at elapsed. With loop set elapsed wraps
// around Duration, otherwise it is clamped to [0, Duration].
func (f *Flight) PositionAt(elapsed time.Duration, loop bool) geo.Position {
	if f == nil {
		return geo.Position{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed %= f.duration
	} else if elapsed > f.duration {
		elapsed = f.duration
	}
	k0, k1, alpha := selectSegment(f.keyframes, elapsed)
	return geo.Position{
		Latitude:  lerp(k0.LatDeg, k1.LatDeg, alpha),
		Longitude: lerp(k0.LonDeg, k1.LonDeg, alpha),
		Altitude:  lerp(k0.AltM, k1.AltM, alpha),
	}
}

func selectSegment(kfs []FlightKeyframe, t time.Duration) (FlightKeyframe, FlightKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	return k0, k1, math.Max(0, math.Min(1, alpha))
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Updater receives simulated target fixes.
type Updater interface {
	Update(geo.Position) error
}

type FlightConfig struct {
	// Interval is the downlink period.
	Interval time.Duration
	// Loop restarts the flight after landing instead of holding the last fix.
	Loop bool
}

// FlightSim replays a Flight into a target store as if it arrived over the
// radio downlink.
type FlightSim struct {
	cfg    FlightConfig
	flight *Flight
	store  Updater
	now    func() time.Time

	mu      sync.Mutex
	started time.Time
	sent    uint64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewFlightSim(cfg FlightConfig, flight *Flight, store Updater) (*FlightSim, error) {
	if flight == nil {
		return nil, fmt.Errorf("sim: flight is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("sim: store is nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &FlightSim{
		cfg:    cfg,
		flight: flight,
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		stopCh: make(chan struct{}),
	}, nil
}

func (s *FlightSim) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sim: flight sim is nil")
	}
	if ctx == nil {
		return fmt.Errorf("sim: ctx is nil")
	}
	s.mu.Lock()
	s.started = s.now()
	s.mu.Unlock()

	log.Printf("sim flight enabled duration=%s interval=%s loop=%t", s.flight.Duration(), s.cfg.Interval, s.cfg.Loop)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		tick := time.NewTicker(s.cfg.Interval)
		defer tick.Stop()
		for {
			if !s.step(s.now()) {
				log.Printf("sim flight landed fixes=%d", s.Sent())
				return
			}
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

// step pushes the position for now and reports whether the flight continues.
func (s *FlightSim) step(now time.Time) bool {
	s.mu.Lock()
	elapsed := now.Sub(s.started)
	s.mu.Unlock()

	pos := s.flight.PositionAt(elapsed, s.cfg.Loop)
	pos.Time = now
	if err := s.store.Update(pos); err != nil {
		log.Printf("sim flight update failed err=%v", err)
	} else {
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
	}
	return s.cfg.Loop || elapsed < s.flight.Duration()
}

func (s *FlightSim) Sent() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *FlightSim) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}
