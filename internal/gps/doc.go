// Package gps supplies device location fixes from a serial NMEA receiver or
// from gpsd.
//
// Fixes are filtered by a minimum interval and minimum movement before being
// delivered to listeners; the most recent fix is always kept as the last known
// location. Provider status follows the receiver: Available while fixes
// arrive, TemporarilyUnavailable once the fix goes stale and OutOfService when
// the receiver cannot be read.
package gps
