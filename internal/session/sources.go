package session

import (
	"rockettrack/internal/geo"
	"rockettrack/internal/gps"
	"rockettrack/internal/sensors"
)

// SensorSource delivers raw accelerometer and magnetometer samples.
type SensorSource interface {
	SubscribeSensors(fn func(sensors.Sample)) int
	UnsubscribeSensors(id int)
}

// LocationListener receives device fixes and provider status changes.
type LocationListener = gps.Listener

// LocationSource delivers device fixes.
type LocationSource interface {
	SubscribeLocation(l LocationListener) int
	UnsubscribeLocation(id int)
	LastKnownLocation() (geo.Position, bool)
}

// TargetProvider owns the tracked object's position history. Subscribers are
// called with no arguments and pull the current values.
type TargetProvider interface {
	TargetPosition() (geo.Position, bool)
	History() []geo.Position
	MaxAltitude() float64
	Subscribe(fn func()) int
	Unsubscribe(id int)
}

// Sink renders session output. Calls are made while the session lock is held
// and must not call back into the session.
type Sink interface {
	CompassChanged(Display)
	DeviceLocationChanged(Display)
	TargetLocationChanged(Display)
	StatusMessage(msg string)
}

type nopSink struct{}

func (nopSink) CompassChanged(Display)        {}
func (nopSink) DeviceLocationChanged(Display) {}
func (nopSink) TargetLocationChanged(Display) {}
func (nopSink) StatusMessage(string)          {}

// listener adapts the session to LocationListener.
type listener struct{ s *Session }

func (l listener) OnLocation(p geo.Position) { l.s.OnDeviceLocation(p) }
func (l listener) OnStatus(st gps.Status)    { l.s.OnProviderStatusChanged(st) }
