// Package mechanical models the mount-native coordinate frame of an EQ500X
// equatorial mount. Positions are held as fixed-point sexagesimal tick counts
// (seconds of time for RA, seconds of arc for DEC) so that wire encoding and
// decoding never accumulate floating-point drift.
package mechanical

import (
	"errors"
	"fmt"
	"math"
)

// Angular constants, in degrees
const (
	OneDegree = 1.0
	ArcMinute = OneDegree / 60.0
	ArcSecond = OneDegree / 3600.0

	// RAGranularity is the smallest detectable RA movement. The mount handles
	// RA in hours, so one tick of RA is one second of time, or 15 arcseconds.
	RAGranularity = 15.0 * ArcSecond

	// DECGranularity is the smallest detectable DEC movement, one arcsecond.
	DECGranularity = 1.0 * ArcSecond
)

const (
	raTicksPerDay   = 24 * 3600  // RA ticks are seconds of time, circular over 24h
	decTicksPerTurn = 256 * 3600 // DEC ticks are arcseconds over the extended 256-degree range
	poleTicks       = 90 * 3600  // mechanical DEC of the celestial pole
)

var (
	// ErrEncode is returned when a coordinate cannot be represented in the
	// mount's fixed-width text format.
	ErrEncode = errors.New("coordinate not encodable")

	// ErrDecode is returned when a position reply does not match the
	// fixed-width format the mount emits.
	ErrDecode = errors.New("malformed coordinate")

	// ErrPierSideUnset is returned when encoding or decoding is attempted
	// before a pier side has been established. The text format is
	// pier-side-dependent, so there is no safe default.
	ErrPierSideUnset = errors.New("pier side not established")
)

// PierSide is the side of the mechanical pier the optical tube sits on.
// It shifts RA encoding by 12 hours and mirrors the DEC sign convention.
type PierSide int

const (
	PierUnknown PierSide = iota
	PierEast
	PierWest
)

func (s PierSide) String() string {
	switch s {
	case PierEast:
		return "east"
	case PierWest:
		return "west"
	default:
		return "unknown"
	}
}

// Point is a mount-native mechanical position. RA is stored in seconds of
// time over [0,24h), DEC in arcseconds over the mount's extended [0,256°)
// range where 90° is the celestial pole. The zero value has both axes at
// zero and no pier side established.
type Point struct {
	raTicks  int64
	decTicks int64
	pier     PierSide
}

// NewPoint builds a Point from RA hours and mechanical DEC degrees, with no
// pier side established.
func NewPoint(raHours, decDegrees float64) Point {
	var p Point
	p.SetRA(raHours)
	p.SetDEC(decDegrees)
	return p
}

// pmod returns x mod y in [0,y) for positive y.
func pmod(x, y int64) int64 {
	m := x % y
	if m < 0 {
		m += y
	}
	return m
}

// RA returns the right ascension in hours.
func (p *Point) RA() float64 {
	return float64(p.raTicks) / 3600.0
}

// DEC returns the mechanical declination in degrees.
func (p *Point) DEC() float64 {
	return float64(p.decTicks) / 3600.0
}

// SetRA stores an RA value in hours, normalized into [0,24) and rounded to
// the nearest second of time. Returns the canonical value.
func (p *Point) SetRA(hours float64) float64 {
	p.raTicks = pmod(int64(math.Round(hours*3600.0)), raTicksPerDay)
	return p.RA()
}

// SetDEC stores a DEC value in degrees, normalized into the mount's extended
// [0,256) range and rounded to the nearest arcsecond. Physical range is
// [-90,+90] but the protocol accepts up to ±255°59'59". Returns the
// canonical value.
func (p *Point) SetDEC(degrees float64) float64 {
	p.decTicks = pmod(int64(math.Round(degrees*3600.0)), decTicksPerTurn)
	return p.DEC()
}

// Pier returns the pier side context of the point.
func (p *Point) Pier() PierSide {
	return p.pier
}

// SetPier establishes the pier side context used by the text codec.
func (p *Point) SetPier(side PierSide) {
	p.pier = side
}

// StringRA encodes the RA position as "HH:MM:SS" for the :Sr command. When
// the tube is west of the pier the mechanical RA axis is flipped, so a
// 12-hour offset is added before splitting into components.
func (p *Point) StringRA() (string, error) {
	if p.pier == PierUnknown {
		return "", fmt.Errorf("encoding RA: %w", ErrPierSideUnset)
	}

	offset := int64(0)
	if p.pier == PierWest {
		offset = 12
	}

	hours := (offset + 24 + p.raTicks/3600) % 24
	minutes := (p.raTicks / 60) % 60
	seconds := p.raTicks % 60

	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds), nil
}

// ParseRA decodes a "HH:MM:SS" reply to the :GR command, undoing the
// 12-hour pier offset and normalizing into [0,24h).
func (p *Point) ParseRA(s string) error {
	if p.pier == PierUnknown {
		return fmt.Errorf("decoding RA: %w", ErrPierSideUnset)
	}

	if len(s) != 8 || s[2] != ':' || s[5] != ':' {
		return fmt.Errorf("decoding RA %q: %w", s, ErrDecode)
	}
	for _, i := range []int{0, 1, 3, 4, 6, 7} {
		if s[i] < '0' || '9' < s[i] {
			return fmt.Errorf("decoding RA %q: %w", s, ErrDecode)
		}
	}

	hours := int64(s[0]-'0')*10 + int64(s[1]-'0')
	minutes := int64(s[3]-'0')*10 + int64(s[4]-'0')
	seconds := int64(s[6]-'0')*10 + int64(s[7]-'0')

	offset := int64(0)
	if p.pier == PierWest {
		offset = -12 * 3600
	}

	p.raTicks = (offset + raTicksPerDay + (hours%24)*3600 + minutes*60 + seconds) % raTicksPerDay
	return nil
}

// StringDEC encodes the DEC position as "sHU:MM:SS" for the :Sd command,
// nine characters. The mount's fixed-width field has only two digit slots
// for degrees, so magnitudes of 100° and beyond overflow the tens digit
// into the printable ASCII range past '9': tens-and-hundreds 10 encodes as
// ':', 11 as ';', up to 25 as 'I'. The firmware expects this table
// verbatim.
func (p *Point) StringDEC() (string, error) {
	if p.pier == PierUnknown {
		return "", fmt.Errorf("encoding DEC: %w", ErrPierSideUnset)
	}

	var value int64
	if p.pier == PierEast {
		value = poleTicks - p.decTicks
	} else {
		value = p.decTicks - poleTicks
	}

	degrees := (value / 3600) % 256
	minutes := (abs64(value) / 60) % 60
	seconds := abs64(value) % 60

	if degrees < -255 || 255 < degrees {
		return "", fmt.Errorf("encoding DEC %d°: %w", degrees, ErrEncode)
	}

	tens := abs64(degrees) / 10
	var high byte
	switch {
	case tens < 10:
		high = '0' + byte(tens)
	case tens <= 25:
		high = ':' + byte(tens-10)
	default:
		return "", fmt.Errorf("encoding DEC %d°: %w", degrees, ErrEncode)
	}
	low := '0' + byte(abs64(degrees)%10)

	sign := byte('+')
	if degrees < 0 {
		sign = '-'
	}

	return fmt.Sprintf("%c%c%c:%02d:%02d", sign, high, low, minutes, seconds), nil
}

// ParseDEC decodes a "sHU:MM:SS" reply to the :GD command. The high degree
// digit spans '0' to 'I', covering 0 to 25 tens-and-hundreds; any other
// character is malformed.
func (p *Point) ParseDEC(s string) error {
	if p.pier == PierUnknown {
		return fmt.Errorf("decoding DEC: %w", ErrPierSideUnset)
	}

	if len(s) != 9 || (s[0] != '+' && s[0] != '-') || s[3] != ':' || s[6] != ':' {
		return fmt.Errorf("decoding DEC %q: %w", s, ErrDecode)
	}
	if s[1] < '0' || 'I' < s[1] {
		return fmt.Errorf("decoding DEC %q: %w", s, ErrDecode)
	}
	for _, i := range []int{2, 4, 5, 7, 8} {
		if s[i] < '0' || '9' < s[i] {
			return fmt.Errorf("decoding DEC %q: %w", s, ErrDecode)
		}
	}

	// '0'..'9' then ':'..'I' are contiguous in ASCII, so the offset from
	// '0' directly yields the 0..25 tens-and-hundreds value.
	tens := int64(s[1] - '0')
	degrees := tens*10 + int64(s[2]-'0')
	minutes := int64(s[4]-'0')*10 + int64(s[5]-'0')
	seconds := int64(s[7]-'0')*10 + int64(s[8]-'0')

	sgn := int64(+1)
	if s[0] == '-' {
		sgn = -1
	}
	orientation := int64(+1)
	if p.pier == PierEast {
		orientation = -1
	}

	p.decTicks = pmod(poleTicks+orientation*sgn*(degrees*3600+minutes*60+seconds), decTicksPerTurn)
	return nil
}

// RADistanceTo returns the signed circular RA distance to b in degrees,
// wrapped into (-180,+180]. The computation stays in whole seconds of time
// because that is the precision the mount handles; using real degrees would
// demand movements 15 times finer than the axis can resolve.
func (p *Point) RADistanceTo(b Point) float64 {
	delta := b.raTicks - p.raTicks
	if delta > +12*3600 {
		delta -= raTicksPerDay
	}
	if delta < -12*3600 {
		delta += raTicksPerDay
	}
	return float64(delta*15) / 3600.0
}

// DECDistanceTo returns the signed DEC distance to b in degrees. DEC is not
// circular.
func (p *Point) DECDistanceTo(b Point) float64 {
	return float64(b.decTicks-p.decTicks) / 3600.0
}

// SeparationTo returns a flat angular separation to b in degrees, good
// enough for logging and rate selection.
func (p *Point) SeparationTo(b Point) float64 {
	ra := p.RADistanceTo(b)
	dec := p.DECDistanceTo(b)
	return math.Sqrt(ra*ra + dec*dec)
}

// Equal reports whether two points designate the same mechanical position:
// matching pier sides and both axis distances under their granularity.
func (p *Point) Equal(b Point) bool {
	return p.pier == b.pier &&
		math.Abs(p.RADistanceTo(b)) < RAGranularity &&
		math.Abs(p.DECDistanceTo(b)) < DECGranularity
}

// AtPark reports whether the mount sits at the parking position, RA 0h with
// the tube aimed at the pole. Pier side is ignored since the pole is
// reachable from either side.
func (p *Point) AtPark() bool {
	park := NewPoint(0, 90)
	return math.Abs(p.RADistanceTo(park)) < RAGranularity &&
		math.Abs(p.DECDistanceTo(park)) < DECGranularity
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
