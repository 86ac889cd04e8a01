package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownUnit is returned for unit names or unit pairs that cannot be
// converted.
var ErrUnknownUnit = errors.New("geo: unknown unit")

// Unit is a length unit used for distance and altitude display.
type Unit int

const (
	Meter Unit = iota + 1
	Kilometer
	Foot
	Yard
	Mile
	NauticalMile
)

var unitInfo = map[Unit]struct {
	name   string
	abbr   string
	meters float64
}{
	Meter:        {"meter", "m", 1},
	Kilometer:    {"kilometer", "km", 1000},
	Foot:         {"foot", "ft", 0.3048},
	Yard:         {"yard", "yd", 0.9144},
	Mile:         {"mile", "mi", 1609.344},
	NauticalMile: {"nautical_mile", "nm", 1852},
}

var unitAliases = map[string]Unit{
	"meter": Meter, "meters": Meter, "metre": Meter, "m": Meter,
	"kilometer": Kilometer, "kilometers": Kilometer, "km": Kilometer,
	"foot": Foot, "feet": Foot, "ft": Foot,
	"yard": Yard, "yards": Yard, "yd": Yard,
	"mile": Mile, "miles": Mile, "mi": Mile,
	"nautical_mile": NauticalMile, "nautical_miles": NauticalMile, "nm": NauticalMile, "nmi": NauticalMile,
}

// ParseUnit accepts the canonical unit name or a common abbreviation.
func ParseUnit(s string) (Unit, error) {
	u, ok := unitAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownUnit, s)
	}
	return u, nil
}

func (u Unit) String() string {
	if info, ok := unitInfo[u]; ok {
		return info.name
	}
	return fmt.Sprintf("Unit(%d)", int(u))
}

func (u Unit) Abbreviation() string {
	return unitInfo[u].abbr
}

func (u Unit) Valid() bool {
	_, ok := unitInfo[u]
	return ok
}

// Convert converts v from one unit to another.
func Convert(v float64, from, to Unit) (float64, error) {
	f, ok := unitInfo[from]
	if !ok {
		return 0, fmt.Errorf("%w %v", ErrUnknownUnit, from)
	}
	t, ok := unitInfo[to]
	if !ok {
		return 0, fmt.Errorf("%w %v", ErrUnknownUnit, to)
	}
	if from == to {
		return v, nil
	}
	return v * f.meters / t.meters, nil
}

// DefaultPattern formats whole numbers without grouping.
const DefaultPattern = "#"

// Formatter converts and formats values for one fixed unit pair and pattern.
//
// Patterns follow the decimal-format convention: '0' is a required digit, '#'
// an optional one, and at most one '.' separates the fraction. Rounding is
// half-even on the exact binary value.
type Formatter struct {
	from, to Unit

	minInt  int
	minFrac int
	maxFrac int
}

// NewFormatter validates the unit pair and pattern once so that formatting
// itself cannot fail.
func NewFormatter(from, to Unit, pattern string) (*Formatter, error) {
	if _, err := Convert(0, from, to); err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	f := &Formatter{from: from, to: to}
	intPart, fracPart, hasDot := strings.Cut(pattern, ".")
	if intPart == "" && !hasDot {
		return nil, fmt.Errorf("geo: empty format pattern")
	}
	for _, c := range intPart {
		switch c {
		case '0':
			f.minInt++
		case '#':
		default:
			return nil, fmt.Errorf("geo: bad format pattern %q", pattern)
		}
	}
	optional := false
	for _, c := range fracPart {
		switch c {
		case '0':
			if optional {
				return nil, fmt.Errorf("geo: bad format pattern %q", pattern)
			}
			f.minFrac++
		case '#':
			optional = true
		default:
			return nil, fmt.Errorf("geo: bad format pattern %q", pattern)
		}
		f.maxFrac++
	}
	return f, nil
}

func (f *Formatter) To() Unit { return f.to }

// Number converts v and formats it without a unit suffix.
func (f *Formatter) Number(v float64) string {
	c, _ := Convert(v, f.from, f.to)
	s := strconv.FormatFloat(c, 'f', f.maxFrac, 64)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, fracPart, _ := strings.Cut(s, ".")

	for len(fracPart) > f.minFrac && strings.HasSuffix(fracPart, "0") {
		fracPart = fracPart[:len(fracPart)-1]
	}
	if f.minInt == 0 && intPart == "0" && fracPart != "" {
		intPart = ""
	}
	for len(intPart) < f.minInt {
		intPart = "0" + intPart
	}

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if out == "" {
		out = "0"
	}
	if neg {
		out = "-" + out
	}
	return out
}

// Format converts v and appends the unit abbreviation, e.g. "1234 m".
func (f *Formatter) Format(v float64) string {
	return f.Number(v) + " " + f.to.Abbreviation()
}
