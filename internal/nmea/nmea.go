// Package nmea parses and emits the NMEA 0183 sentences used by GNSS
// receivers and rocket tracker radios: RMC for position and GGA for
// position plus altitude.
package nmea

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNoStart          = errors.New("nmea: missing '$'")
	ErrNoChecksum       = errors.New("nmea: missing checksum")
	ErrChecksumMismatch = errors.New("nmea: checksum mismatch")
)

type Sentence struct {
	// Talker is the two-letter talker ID (GP, GN, ...), if present.
	Talker string
	// Type is the upper-case three-letter sentence type (RMC, GGA, ...).
	Type string
	// Fields is the comma-split payload (excluding $ and checksum).
	Fields []string
}

// Checksum is the XOR of every payload byte between '$' and '*'.
func Checksum(payload string) byte {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// Encode wraps payload with '$', '*' and the checksum.
func Encode(payload string) string {
	return fmt.Sprintf("$%s*%02X", payload, Checksum(payload))
}

func Parse(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sentence{}, ErrNoStart
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return Sentence{}, ErrNoChecksum
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return Sentence{}, fmt.Errorf("nmea: short checksum %q", ck)
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return Sentence{}, fmt.Errorf("nmea: bad checksum %q", ck[:2])
	}
	if got := Checksum(payload); got != want[0] {
		return Sentence{}, fmt.Errorf("%w: got %02X want %02X", ErrChecksumMismatch, got, want[0])
	}

	parts := strings.Split(payload, ",")
	typeField := parts[0]
	if len(typeField) < 3 {
		return Sentence{}, fmt.Errorf("nmea: short type %q", typeField)
	}
	// Accept GNxxx/GPxxx and proprietary talkers; normalize to the last 3 chars.
	out := Sentence{Type: strings.ToUpper(typeField[len(typeField)-3:]), Fields: parts}
	if len(typeField) == 5 {
		out.Talker = strings.ToUpper(typeField[:2])
	}
	return out, nil
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLatLon parses ddmm.mmmm (latitude) or dddmm.mmmm (longitude) plus a
// hemisphere letter into signed decimal degrees.
func ParseLatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// The last two digits of the integer part are whole minutes.
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil || mins < 0 || mins >= 60 {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}

// FormatLatLon is the inverse of ParseLatLon.
func FormatLatLon(deg float64, isLat bool) (value string, hemi string) {
	hemi = "N"
	width := 2
	if !isLat {
		hemi = "E"
		width = 3
	}
	if deg < 0 {
		deg = -deg
		if isLat {
			hemi = "S"
		} else {
			hemi = "W"
		}
	}
	d := int(deg)
	mins := (deg - float64(d)) * 60
	// Keep 4 decimals of minutes without rolling 59.99995 into "60.0000".
	if mins >= 59.99995 {
		d++
		mins = 0
	}
	return fmt.Sprintf("%0*d%07.4f", width, d, mins), hemi
}
