package main

import (
	"context"
	"fmt"
	"log"

	"rockettrack/internal/config"
	"rockettrack/internal/display"
	"rockettrack/internal/geo"
	"rockettrack/internal/gps"
	"rockettrack/internal/imu"
	"rockettrack/internal/indicator"
	"rockettrack/internal/session"
	"rockettrack/internal/sim"
	"rockettrack/internal/target"
	"rockettrack/internal/telemetry"
)

// runtime owns every service built from one config.
type runtime struct {
	cfg config.Config

	store   *target.Store
	session *session.Session
	led     *indicator.LED

	gpsSvc       *gps.Service
	imuSvc       *imu.Service
	telemetrySvc *telemetry.Service

	deviceSim *sim.DeviceSim
	sensorSim *sim.SensorSim
	flightSim *sim.FlightSim
}

func newRuntime(ctx context.Context, cfg config.Config, logger *log.Logger) (*runtime, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &runtime{
		cfg:   cfg,
		store: target.NewStore(target.StoreConfig{MaxHistory: cfg.Target.MaxHistory}),
	}

	led, err := indicator.New(indicator.Config{
		Enable:  cfg.Indicator.Enable,
		Chip:    cfg.Indicator.Chip,
		GPIOPin: cfg.Indicator.GPIOPin,
		Pulse:   cfg.Indicator.Pulse,
	})
	if err != nil {
		// Keep tracking even if the LED is unavailable.
		log.Printf("indicator init failed: %v", err)
	}
	r.led = led

	// Interface values stay nil for disabled sources; a typed nil pointer
	// would look like a live source to the session.
	var sensorSrc session.SensorSource
	var locationSrc session.LocationSource

	switch {
	case cfg.IMU.Enable:
		r.imuSvc = imu.New(imu.Config{
			Enable:  true,
			I2CBus:  cfg.IMU.I2CBus,
			IMUAddr: cfg.IMU.Addr,
			MagAddr: cfg.IMU.MagAddr,
			Rate:    cfg.IMU.Rate,
		})
		sensorSrc = r.imuSvc
	case cfg.Sim.Sensors.Enable:
		r.sensorSim = sim.NewSensorSim(sim.SensorConfig{
			HeadingDeg:  cfg.Sim.Sensors.HeadingDeg,
			PitchDeg:    cfg.Sim.Sensors.PitchDeg,
			SweepPeriod: cfg.Sim.Sensors.SweepPeriod,
			NoiseStd:    cfg.Sim.Sensors.NoiseStd,
			Seed:        cfg.Sim.Sensors.Seed,
			Rate:        cfg.Sim.Sensors.Rate,
		})
		sensorSrc = r.sensorSim
	}

	switch {
	case cfg.GPS.Enable:
		r.gpsSvc = gps.New(gps.Config{
			Enable:       true,
			Source:       cfg.GPS.Source,
			GPSDAddr:     cfg.GPS.GPSDAddr,
			Device:       cfg.GPS.Device,
			Baud:         cfg.GPS.Baud,
			MinTime:      cfg.GPS.MinTime,
			MinDistanceM: *cfg.GPS.MinDistanceM,
			StaleAfter:   cfg.GPS.StaleAfter,
		})
		locationSrc = r.gpsSvc
	case cfg.Sim.Device.Enable:
		r.deviceSim = sim.NewDeviceSim(sim.DeviceConfig{
			CenterLatDeg: cfg.Sim.Device.CenterLatDeg,
			CenterLonDeg: cfg.Sim.Device.CenterLonDeg,
			AltitudeM:    cfg.Sim.Device.AltitudeM,
			RadiusM:      cfg.Sim.Device.RadiusM,
			Period:       cfg.Sim.Device.Period,
			Interval:     cfg.Sim.Device.Interval,
		})
		locationSrc = r.deviceSim
	}

	switch {
	case cfg.Telemetry.Enable:
		tc := telemetry.Config{
			Enable:      true,
			Device:      cfg.Telemetry.Device,
			Baud:        cfg.Telemetry.Baud,
			DataBits:    cfg.Telemetry.DataBits,
			StopBits:    cfg.Telemetry.StopBits,
			Parity:      cfg.Telemetry.Parity,
			ReadTimeout: cfg.Telemetry.ReadTimeout,
		}
		if cfg.Telemetry.Record.Enable {
			tc.RecordPath = cfg.Telemetry.Record.Path
		}
		if cfg.Telemetry.Replay.Enable {
			tc.ReplayPath = cfg.Telemetry.Replay.Path
			tc.ReplaySpeed = cfg.Telemetry.Replay.Speed
			tc.ReplayLoop = cfg.Telemetry.Replay.Loop
		}
		svc, err := telemetry.New(tc, r.store)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.telemetrySvc = svc
	case cfg.Sim.Flight.Enable:
		flight, err := loadFlight(cfg.Sim.Flight)
		if err != nil {
			r.Close()
			return nil, err
		}
		fs, err := sim.NewFlightSim(sim.FlightConfig{Interval: cfg.Sim.Flight.Interval, Loop: cfg.Sim.Flight.Loop}, flight, r.store)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.flightSim = fs
	}

	var pulser display.Pulser
	if led != nil {
		pulser = led
	}
	sink := display.NewLogSink(logger, display.LogSinkConfig{Pulser: pulser})

	sess, err := session.New(session.Config{
		Preferences: session.Preferences{
			Unit:         cfg.Unit,
			KeepScreenOn: cfg.Preferences.KeepScreenOn,
			AGL:          *cfg.Preferences.AGL,
		},
		AccelAlpha:     cfg.Filter.AccelAlpha,
		MagnetAlpha:    cfg.Filter.MagnetAlpha,
		Throttle:       cfg.Orientation.Throttle,
		ScreenRotation: cfg.ScreenRotation,
		Pattern:        cfg.Preferences.Pattern,
		Logger:         logger,
	}, sensorSrc, locationSrc, r.store, sink)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.session = sess

	// Subscribe before the producers start so no early fix is missed.
	if err := sess.Start(); err != nil {
		r.Close()
		return nil, err
	}
	r.startProducers(ctx)
	return r, nil
}

// startProducers starts every source. Hardware failures are logged and the
// tracker keeps running with whatever sources remain.
func (r *runtime) startProducers(ctx context.Context) {
	if r.imuSvc != nil {
		if err := r.imuSvc.Start(ctx); err != nil {
			log.Printf("imu init failed: %v", err)
		}
	}
	if r.sensorSim != nil {
		if err := r.sensorSim.Start(ctx); err != nil {
			log.Printf("sim sensors init failed: %v", err)
		}
	}
	if r.gpsSvc != nil {
		if err := r.gpsSvc.Start(ctx); err != nil {
			log.Printf("gps init failed: %v", err)
		}
	}
	if r.deviceSim != nil {
		if err := r.deviceSim.Start(ctx); err != nil {
			log.Printf("sim device init failed: %v", err)
		}
	}
	if r.telemetrySvc != nil {
		if err := r.telemetrySvc.Start(ctx); err != nil {
			log.Printf("telemetry init failed: %v", err)
		}
	}
	if r.flightSim != nil {
		if err := r.flightSim.Start(ctx); err != nil {
			log.Printf("sim flight init failed: %v", err)
		}
	}
}

func loadFlight(c config.FlightSimConfig) (*sim.Flight, error) {
	var p sim.FlightProfile
	if c.Profile != "" {
		var err error
		p, err = sim.LoadFlightProfile(c.Profile)
		if err != nil {
			return nil, fmt.Errorf("load flight profile %s: %w", c.Profile, err)
		}
	} else {
		launch := geo.Position{Latitude: c.LaunchLatDeg, Longitude: c.LaunchLonDeg, Altitude: c.LaunchAltM}
		p = sim.BallisticProfile(launch, c.ApogeeM, c.WindMS, c.DriftBearingDeg)
	}
	return sim.NewFlight(p)
}

// Close stops the session first so no callback reaches a closed service.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.session != nil {
		r.session.Stop()
	}
	if r.flightSim != nil {
		r.flightSim.Close()
		r.flightSim = nil
	}
	if r.telemetrySvc != nil {
		r.telemetrySvc.Close()
		r.telemetrySvc = nil
	}
	if r.deviceSim != nil {
		r.deviceSim.Close()
		r.deviceSim = nil
	}
	if r.gpsSvc != nil {
		r.gpsSvc.Close()
		r.gpsSvc = nil
	}
	if r.sensorSim != nil {
		r.sensorSim.Close()
		r.sensorSim = nil
	}
	if r.imuSvc != nil {
		r.imuSvc.Close()
		r.imuSvc = nil
	}
	if r.led != nil {
		_ = r.led.Close()
		r.led = nil
	}
}
