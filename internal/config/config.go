package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rockettrack/internal/filter"
	"rockettrack/internal/geo"
	"rockettrack/internal/gps"
	"rockettrack/internal/orientation"
	"rockettrack/internal/throttle"
)

type Config struct {
	Preferences PreferencesConfig `yaml:"preferences"`
	Filter      FilterConfig      `yaml:"filter"`
	Orientation OrientationConfig `yaml:"orientation"`
	GPS         GPSConfig         `yaml:"gps"`
	IMU         IMUConfig         `yaml:"imu"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Target      TargetConfig      `yaml:"target"`
	Sim         SimConfig         `yaml:"sim"`
	Indicator   IndicatorConfig   `yaml:"indicator"`

	// Resolved values, not read from YAML.
	Unit           geo.Unit                   `yaml:"-"`
	ScreenRotation orientation.ScreenRotation `yaml:"-"`
}

type PreferencesConfig struct {
	Unit         string `yaml:"unit"`
	KeepScreenOn bool   `yaml:"keep_screen_on"`
	// AGL is a pointer so an absent key keeps the default of true.
	AGL *bool `yaml:"agl"`
	// Pattern is the number format for distances and altitudes.
	Pattern string `yaml:"pattern"`
}

type FilterConfig struct {
	AccelAlpha  float64 `yaml:"accel_alpha"`
	MagnetAlpha float64 `yaml:"magnet_alpha"`
}

type OrientationConfig struct {
	Throttle time.Duration `yaml:"throttle"`
	// ScreenRotation is 0, 90, 180 or 270 degrees.
	ScreenRotation int `yaml:"screen_rotation"`
}

type GPSConfig struct {
	Enable       bool          `yaml:"enable"`
	Source       string        `yaml:"source"`
	Device       string        `yaml:"device"`
	Baud         int           `yaml:"baud"`
	GPSDAddr     string        `yaml:"gpsd_addr"`
	MinTime      time.Duration `yaml:"min_time"`
	MinDistanceM *float64      `yaml:"min_distance_m"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

type IMUConfig struct {
	Enable  bool          `yaml:"enable"`
	I2CBus  int           `yaml:"i2c_bus"`
	Addr    uint16        `yaml:"addr"`
	MagAddr uint16        `yaml:"mag_addr"`
	Rate    time.Duration `yaml:"rate"`
}

type TelemetryConfig struct {
	Enable      bool          `yaml:"enable"`
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	DataBits    int           `yaml:"data_bits"`
	StopBits    int           `yaml:"stop_bits"`
	Parity      string        `yaml:"parity"`
	ReadTimeout time.Duration `yaml:"read_timeout"`

	Record TelemetryRecordConfig `yaml:"record"`
	Replay TelemetryReplayConfig `yaml:"replay"`
}

type TelemetryRecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type TelemetryReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type TargetConfig struct {
	MaxHistory int `yaml:"max_history"`
}

type SimConfig struct {
	Device  DeviceSimConfig `yaml:"device"`
	Flight  FlightSimConfig `yaml:"flight"`
	Sensors SensorSimConfig `yaml:"sensors"`
}

type DeviceSimConfig struct {
	Enable       bool          `yaml:"enable"`
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltitudeM    float64       `yaml:"altitude_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
}

type FlightSimConfig struct {
	Enable bool `yaml:"enable"`
	// Profile is a YAML flight profile. Relative paths resolve against the
	// config file. Without a profile a ballistic flight is generated from the
	// launch site.
	Profile         string        `yaml:"profile"`
	LaunchLatDeg    float64       `yaml:"launch_lat_deg"`
	LaunchLonDeg    float64       `yaml:"launch_lon_deg"`
	LaunchAltM      float64       `yaml:"launch_alt_m"`
	ApogeeM         float64       `yaml:"apogee_m"`
	WindMS          float64       `yaml:"wind_ms"`
	DriftBearingDeg float64       `yaml:"drift_bearing_deg"`
	Interval        time.Duration `yaml:"interval"`
	Loop            bool          `yaml:"loop"`
}

type SensorSimConfig struct {
	Enable      bool          `yaml:"enable"`
	HeadingDeg  float64       `yaml:"heading_deg"`
	PitchDeg    float64       `yaml:"pitch_deg"`
	SweepPeriod time.Duration `yaml:"sweep_period"`
	NoiseStd    float64       `yaml:"noise_std"`
	Seed        uint64        `yaml:"seed"`
	Rate        time.Duration `yaml:"rate"`
}

type IndicatorConfig struct {
	Enable  bool          `yaml:"enable"`
	Chip    string        `yaml:"chip"`
	GPIOPin int           `yaml:"gpio_pin"`
	Pulse   time.Duration `yaml:"pulse"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return Config{}, err
	}
	dir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Sim.Flight.Profile, &cfg.Telemetry.Record.Path, &cfg.Telemetry.Replay.Path} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return cfg, nil
}

// Parse unmarshals b, applies defaults and validates the result.
func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if strings.TrimSpace(c.Preferences.Unit) == "" {
		c.Preferences.Unit = geo.Meter.String()
	}
	u, err := geo.ParseUnit(c.Preferences.Unit)
	if err != nil {
		return fmt.Errorf("preferences.unit: %w", err)
	}
	c.Unit = u
	if c.Preferences.AGL == nil {
		agl := true
		c.Preferences.AGL = &agl
	}
	if c.Preferences.Pattern == "" {
		c.Preferences.Pattern = geo.DefaultPattern
	}

	if c.Filter.AccelAlpha == 0 {
		c.Filter.AccelAlpha = filter.DefaultAccelAlpha
	}
	if c.Filter.MagnetAlpha == 0 {
		c.Filter.MagnetAlpha = filter.DefaultMagnetAlpha
	}
	if c.Orientation.Throttle == 0 {
		c.Orientation.Throttle = throttle.DefaultInterval
	}

	if c.GPS.Source == "" {
		c.GPS.Source = "nmea"
	}
	if c.GPS.Baud == 0 {
		c.GPS.Baud = 9600
	}
	if c.GPS.MinTime == 0 {
		c.GPS.MinTime = gps.DefaultMinTime
	}
	if c.GPS.MinDistanceM == nil {
		d := gps.DefaultMinDistanceM
		c.GPS.MinDistanceM = &d
	}
	if c.GPS.StaleAfter == 0 {
		c.GPS.StaleAfter = gps.DefaultStaleAfter
	}

	if c.IMU.I2CBus == 0 {
		c.IMU.I2CBus = 1
	}

	if c.Telemetry.Baud == 0 {
		c.Telemetry.Baud = 9600
	}
	if c.Telemetry.ReadTimeout == 0 {
		c.Telemetry.ReadTimeout = time.Second
	}
	if c.Telemetry.Replay.Speed == 0 {
		c.Telemetry.Replay.Speed = 1
	}

	// Simulator defaults (safe even if disabled).
	if c.Sim.Device.RadiusM == 0 {
		c.Sim.Device.RadiusM = 25
	}
	if c.Sim.Device.Period == 0 {
		c.Sim.Device.Period = 120 * time.Second
	}
	if c.Sim.Device.Interval == 0 {
		c.Sim.Device.Interval = time.Second
	}
	if c.Sim.Flight.ApogeeM == 0 {
		c.Sim.Flight.ApogeeM = 1500
	}
	if c.Sim.Flight.Interval == 0 {
		c.Sim.Flight.Interval = time.Second
	}
	if c.Sim.Sensors.Rate == 0 {
		c.Sim.Sensors.Rate = 20 * time.Millisecond
	}

	if c.Indicator.Chip == "" {
		c.Indicator.Chip = "gpiochip0"
	}
	if c.Indicator.Pulse == 0 {
		c.Indicator.Pulse = 300 * time.Millisecond
	}
	return nil
}

func (c *Config) validate() error {
	if a := c.Filter.AccelAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("filter.accel_alpha must be in (0, 1]")
	}
	if a := c.Filter.MagnetAlpha; a <= 0 || a > 1 {
		return fmt.Errorf("filter.magnet_alpha must be in (0, 1]")
	}
	if c.Orientation.Throttle < 0 {
		return fmt.Errorf("orientation.throttle must be >= 0")
	}
	rot, err := orientation.ParseScreenRotation(c.Orientation.ScreenRotation)
	if err != nil {
		return fmt.Errorf("orientation.screen_rotation: %w", err)
	}
	c.ScreenRotation = rot

	switch c.GPS.Source {
	case "nmea", "gpsd":
	default:
		return fmt.Errorf("gps.source must be 'nmea' or 'gpsd'")
	}
	if c.GPS.MinTime < 0 {
		return fmt.Errorf("gps.min_time must be >= 0")
	}
	if *c.GPS.MinDistanceM < 0 {
		return fmt.Errorf("gps.min_distance_m must be >= 0")
	}
	if c.GPS.StaleAfter < 0 {
		return fmt.Errorf("gps.stale_after must be > 0")
	}

	if c.Telemetry.Enable && !c.Telemetry.Replay.Enable && strings.TrimSpace(c.Telemetry.Device) == "" {
		return fmt.Errorf("telemetry.device is required when telemetry.enable is true")
	}
	if c.Telemetry.Record.Enable && c.Telemetry.Record.Path == "" {
		return fmt.Errorf("telemetry.record.path is required when telemetry.record.enable is true")
	}
	if c.Telemetry.Replay.Enable {
		if c.Telemetry.Replay.Path == "" {
			return fmt.Errorf("telemetry.replay.path is required when telemetry.replay.enable is true")
		}
		if c.Telemetry.Replay.Speed < 0 {
			return fmt.Errorf("telemetry.replay.speed must be > 0")
		}
	}
	if c.Telemetry.Record.Enable && c.Telemetry.Replay.Enable {
		return fmt.Errorf("telemetry.record and telemetry.replay cannot both be enabled")
	}
	if c.Target.MaxHistory < 0 {
		return fmt.Errorf("target.max_history must be >= 0")
	}

	if c.GPS.Enable && c.Sim.Device.Enable {
		return fmt.Errorf("gps and sim.device cannot both be enabled")
	}
	if c.IMU.Enable && c.Sim.Sensors.Enable {
		return fmt.Errorf("imu and sim.sensors cannot both be enabled")
	}
	if c.Telemetry.Enable && c.Sim.Flight.Enable {
		return fmt.Errorf("telemetry and sim.flight cannot both be enabled")
	}
	if c.Sim.Device.RadiusM < 0 {
		return fmt.Errorf("sim.device.radius_m must be >= 0")
	}
	if c.Sim.Flight.ApogeeM < 0 {
		return fmt.Errorf("sim.flight.apogee_m must be > 0")
	}
	if c.Sim.Sensors.NoiseStd < 0 {
		return fmt.Errorf("sim.sensors.noise_std must be >= 0")
	}

	if c.Indicator.Enable && c.Indicator.GPIOPin <= 0 {
		return fmt.Errorf("indicator.gpio_pin is required when indicator.enable is true")
	}
	if c.Indicator.Pulse < 0 {
		return fmt.Errorf("indicator.pulse must be >= 0")
	}
	return nil
}
