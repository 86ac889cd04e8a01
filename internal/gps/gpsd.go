package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strings"
	"time"

	"rockettrack/internal/geo"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports. scaled=true yields meters and
// m/s.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Class string `json:"class"`
	Mode  *int   `json:"mode"`
	Time  string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`

	Epx *float64 `json:"epx"`
	Epy *float64 `json:"epy"`
	Eph *float64 `json:"eph"`
}

type gpsdSat struct {
	Used bool `json:"used"`
}

type gpsdSKY struct {
	Class      string    `json:"class"`
	HDOP       *float64  `json:"hdop"`
	Satellites []gpsdSat `json:"satellites"`
}

type gpsdState struct {
	mode   int
	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool
	altM   float64

	hAccM    float64
	satsUsed int
	hdop     float64

	fixTime time.Time
}

// applyLine folds one gpsd JSON report into the state. fix is true when the
// report carried a 2D or 3D position.
func (s *gpsdState) applyLine(nowUTC time.Time, line string) (fix bool, err error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return false, fmt.Errorf("gps: gpsd json parse failed: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return false, fmt.Errorf("gps: gpsd tpv parse failed: %w", err)
		}
		return s.applyTPV(nowUTC, tpv), nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return false, fmt.Errorf("gps: gpsd sky parse failed: %w", err)
		}
		s.applySKY(sky)
		return false, nil
	default:
		// VERSION, DEVICES, WATCH and friends.
		return false, nil
	}
}

func (s *gpsdState) applyTPV(nowUTC time.Time, tpv gpsdTPV) bool {
	if tpv.Mode != nil {
		s.mode = *tpv.Mode
	}
	if tpv.Eph != nil {
		s.hAccM = *tpv.Eph
	} else if tpv.Epx != nil && tpv.Epy != nil {
		s.hAccM = math.Hypot(*tpv.Epx, *tpv.Epy)
	}
	if tpv.Lat != nil {
		s.latDeg, s.latOK = *tpv.Lat, true
	}
	if tpv.Lon != nil {
		s.lonDeg, s.lonOK = *tpv.Lon, true
	}
	alt := tpv.AltMSL
	if alt == nil {
		alt = tpv.Alt
	}
	if alt != nil {
		s.altM = *alt
	}

	if s.mode < 2 || !s.latOK || !s.lonOK || tpv.Lat == nil || tpv.Lon == nil {
		return false
	}
	s.fixTime = nowUTC
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(tpv.Time)); err == nil {
		s.fixTime = t.UTC()
	}
	return true
}

func (s *gpsdState) applySKY(sky gpsdSKY) {
	if sky.HDOP != nil {
		s.hdop = *sky.HDOP
	}
	if len(sky.Satellites) > 0 {
		used := 0
		for _, sat := range sky.Satellites {
			if sat.Used {
				used++
			}
		}
		s.satsUsed = used
	}
}

func (s *gpsdState) position() geo.Position {
	return geo.Position{Latitude: s.latDeg, Longitude: s.lonDeg, Altitude: s.altM, Time: s.fixTime}
}
