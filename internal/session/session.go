// Package session ties the sensor, location and target sources to the
// orientation and geo math and produces the display snapshot.
package session

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rockettrack/internal/filter"
	"rockettrack/internal/geo"
	"rockettrack/internal/geomag"
	"rockettrack/internal/gps"
	"rockettrack/internal/orientation"
	"rockettrack/internal/sensors"
	"rockettrack/internal/throttle"
)

// Preferences are loaded once per session.
type Preferences struct {
	Unit         geo.Unit
	KeepScreenOn bool
	// AGL reports target altitudes relative to the device altitude.
	AGL bool
}

func DefaultPreferences() Preferences {
	return Preferences{Unit: geo.Meter, AGL: true}
}

type Config struct {
	Preferences Preferences

	AccelAlpha     float64
	MagnetAlpha    float64
	Throttle       time.Duration
	ScreenRotation orientation.ScreenRotation
	Pattern        string

	// Declination defaults to geomag.WMM().
	Declination geomag.Model
	Now         func() time.Time
	Logger      *log.Logger
}

type Session struct {
	cfg       Config
	id        uuid.UUID
	prefs     Preferences
	formatter *geo.Formatter
	model     geomag.Model
	now       func() time.Time
	logger    *log.Logger

	sensorSrc   SensorSource
	locationSrc LocationSource
	targets     TargetProvider
	sink        Sink

	// lifeMu serializes Start and Stop.
	lifeMu sync.Mutex

	mu          sync.Mutex
	running     bool
	sensorSub   int
	locationSub int
	targetSub   int

	accel      *filter.Exponential
	magnet     *filter.Exponential
	accelVec   sensors.Vector3
	magnetVec  sensors.Vector3
	haveAccel  bool
	haveMagnet bool
	throttle   *throttle.Throttle
	estimator  *orientation.Estimator

	device      geo.Position
	haveDevice  bool
	field       geomag.Field
	haveField   bool
	target      geo.Position
	haveTarget  bool
	history     []geo.Position
	maxAltitude float64
	prevStatus  gps.Status

	display Display
}

// New validates cfg and builds a stopped session. Any source may be nil.
func New(cfg Config, sensorSrc SensorSource, locationSrc LocationSource, targets TargetProvider, sink Sink) (*Session, error) {
	if cfg.AccelAlpha == 0 {
		cfg.AccelAlpha = filter.DefaultAccelAlpha
	}
	if cfg.MagnetAlpha == 0 {
		cfg.MagnetAlpha = filter.DefaultMagnetAlpha
	}
	if cfg.Pattern == "" {
		cfg.Pattern = geo.DefaultPattern
	}
	accel, err := filter.New(cfg.AccelAlpha)
	if err != nil {
		return nil, fmt.Errorf("session: accel filter: %w", err)
	}
	magnet, err := filter.New(cfg.MagnetAlpha)
	if err != nil {
		return nil, fmt.Errorf("session: magnet filter: %w", err)
	}
	formatter, err := geo.NewFormatter(geo.Meter, cfg.Preferences.Unit, cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if cfg.Declination == nil {
		cfg.Declination = geomag.WMM()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Session{
		cfg:         cfg,
		id:          uuid.New(),
		prefs:       cfg.Preferences,
		formatter:   formatter,
		model:       cfg.Declination,
		now:         cfg.Now,
		logger:      cfg.Logger,
		sensorSrc:   sensorSrc,
		locationSrc: locationSrc,
		targets:     targets,
		sink:        sink,
		accel:       accel,
		magnet:      magnet,
		throttle:    throttle.New(cfg.Throttle),
		estimator:   orientation.NewEstimator(cfg.ScreenRotation),
		prevStatus:  gps.StatusUnknown,
	}, nil
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) Preferences() Preferences { return s.prefs }

// Start registers with the sources, seeds the device and target positions
// and emits one refresh. Starting a running session is a no-op.
func (s *Session) Start() error {
	if s == nil {
		return fmt.Errorf("session: nil session")
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.resetLocked()
	s.running = true
	if s.locationSrc != nil {
		if pos, ok := s.locationSrc.LastKnownLocation(); ok {
			s.setDeviceLocked(pos)
		}
	}
	s.fetchTargetLocked()
	s.display = s.buildDisplayLocked()
	s.sink.TargetLocationChanged(s.display)
	s.mu.Unlock()

	// Sources may deliver synchronously from Subscribe, so register unlocked.
	sensorSub, locationSub, targetSub := -1, -1, -1
	if s.sensorSrc != nil {
		sensorSub = s.sensorSrc.SubscribeSensors(s.OnSensorSample)
	}
	if s.locationSrc != nil {
		locationSub = s.locationSrc.SubscribeLocation(listener{s: s})
	}
	if s.targets != nil {
		targetSub = s.targets.Subscribe(s.OnTargetLocationChanged)
	}

	s.mu.Lock()
	s.sensorSub, s.locationSub, s.targetSub = sensorSub, locationSub, targetSub
	s.mu.Unlock()

	s.logger.Printf("session started id=%s unit=%s agl=%t rotation=%d", s.id, s.prefs.Unit, s.prefs.AGL, s.estimator.ScreenRotation().Degrees())
	return nil
}

// Stop deregisters from all sources and discards state. Safe to call more
// than once.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	sensorSub, locationSub, targetSub := s.sensorSub, s.locationSub, s.targetSub
	s.mu.Unlock()

	if s.sensorSrc != nil && sensorSub >= 0 {
		s.sensorSrc.UnsubscribeSensors(sensorSub)
	}
	if s.locationSrc != nil && locationSub >= 0 {
		s.locationSrc.UnsubscribeLocation(locationSub)
	}
	if s.targets != nil && targetSub >= 0 {
		s.targets.Unsubscribe(targetSub)
	}

	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	s.logger.Printf("session stopped id=%s", s.id)
}

func (s *Session) resetLocked() {
	s.accel.Reset()
	s.magnet.Reset()
	s.accelVec, s.magnetVec = sensors.Vector3{}, sensors.Vector3{}
	s.haveAccel, s.haveMagnet = false, false
	s.throttle.Reset()
	s.estimator.Reset()
	s.device, s.haveDevice = geo.Position{}, false
	s.field, s.haveField = geomag.Field{}, false
	s.target, s.haveTarget = geo.Position{}, false
	s.history = nil
	s.maxAltitude = 0
	s.prevStatus = gps.StatusUnknown
	s.sensorSub, s.locationSub, s.targetSub = -1, -1, -1
	s.display = Display{}
}

// OnDeviceLocation replaces the device fix and rebuilds the declination.
func (s *Session) OnDeviceLocation(pos geo.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if !pos.Valid() {
		s.logger.Printf("session: ignoring invalid device fix lat=%v lon=%v", pos.Latitude, pos.Longitude)
		return
	}
	s.setDeviceLocked(pos)
	s.display = s.buildDisplayLocked()
	s.sink.DeviceLocationChanged(s.display)
}

func (s *Session) setDeviceLocked(pos geo.Position) {
	s.device = pos
	s.haveDevice = true
	s.field = s.model.Field(pos.Latitude, pos.Longitude, pos.Altitude, s.now())
	s.haveField = true
}

// OnTargetLocationChanged pulls the current target state from the provider.
func (s *Session) OnTargetLocationChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.fetchTargetLocked()
	s.display = s.buildDisplayLocked()
	s.sink.TargetLocationChanged(s.display)
}

func (s *Session) fetchTargetLocked() {
	if s.targets == nil {
		return
	}
	pos, ok := s.targets.TargetPosition()
	s.target, s.haveTarget = pos, ok
	if !ok {
		s.target = geo.Position{}
	}
	s.history = s.targets.History()
	s.maxAltitude = s.targets.MaxAltitude()
}

// OnSensorSample smooths the sample and, when the throttle allows, updates
// the azimuth.
func (s *Session) OnSensorSample(sample sensors.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	switch sample.Type {
	case sensors.Accelerometer:
		if v, ok := s.accel.AverageOK(sample.Vector); ok {
			s.accelVec, s.haveAccel = v, true
		}
	case sensors.Magnetometer:
		if v, ok := s.magnet.AverageOK(sample.Vector); ok {
			s.magnetVec, s.haveMagnet = v, true
		}
	default:
		return
	}
	if !s.haveAccel || !s.haveMagnet {
		return
	}
	if !s.throttle.ShouldUpdate(sample.TimestampNanos) {
		return
	}
	if _, err := s.estimator.Estimate(s.accelVec, s.magnetVec); err != nil {
		return
	}
	s.display = s.buildDisplayLocked()
	s.sink.CompassChanged(s.display)
}

// OnProviderStatusChanged reports GPS status transitions to the sink.
func (s *Session) OnProviderStatusChanged(status gps.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || !status.Known() {
		return
	}
	if status != s.prevStatus {
		s.sink.StatusMessage("GPS Status: " + status.Text())
	}
	s.prevStatus = status
}

func (s *Session) Display() Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

func (s *Session) DeviceLocation() (geo.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device, s.haveDevice
}

func (s *Session) TargetLocation() (geo.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.haveTarget
}

// TargetHistory returns a copy of the provider's history as of the last
// target update.
func (s *Session) TargetHistory() []geo.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]geo.Position, len(s.history))
	copy(out, s.history)
	return out
}

// Azimuth returns the declination-corrected azimuth in degrees.
func (s *Session) Azimuth() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	angles, ok := s.estimator.Last()
	if !ok {
		return 0, false
	}
	return orientation.AzimuthDegrees(angles, s.field.Declination, s.haveField), true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.haveDevice && s.haveTarget:
		return FullyTracking
	case s.haveDevice || s.haveTarget:
		return PartiallyKnown
	default:
		return Uninitialized
	}
}
