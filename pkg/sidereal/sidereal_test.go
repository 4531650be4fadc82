package sidereal

import (
	"math"
	"testing"
	"time"
)

func TestLocalKnownValue(t *testing.T) {
	// GMST at J2000.0 (2000-01-01 12:00 UT) is 18.697h; apparent sidereal
	// time differs by the equation of the equinoxes, under a second of time.
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)

	got := Local(j2000, 0)
	if math.Abs(got-18.697374558) > 0.01 {
		t.Errorf("Local(J2000, 0) = %v, expected ~18.697", got)
	}
}

func TestLocalLongitudeOffset(t *testing.T) {
	// 15 degrees of east longitude is exactly one sidereal hour ahead.
	now := time.Date(2024, 6, 1, 3, 30, 0, 0, time.UTC)

	at0 := Local(now, 0)
	at15 := Local(now, 15)

	diff := math.Mod(at15-at0+24, 24)
	if math.Abs(diff-1.0) > 1e-9 {
		t.Errorf("longitude offset = %v h, expected 1.0 h", diff)
	}
}

func TestLocalAdvancesFasterThanSolar(t *testing.T) {
	// A sidereal day is ~3m56s shorter than a solar day, so over 24 solar
	// hours LST gains about 0.0657 hours.
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	day0 := Local(start, 0)
	day1 := Local(start.Add(24*time.Hour), 0)

	gain := math.Mod(day1-day0+24, 24)
	if math.Abs(gain-0.0657) > 0.001 {
		t.Errorf("sidereal gain over one day = %v h, expected ~0.0657 h", gain)
	}
}

func TestLocalRange(t *testing.T) {
	for hour := 0; hour < 48; hour += 5 {
		ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(hour) * time.Hour)
		for _, lon := range []float64{-170, -71.1, 0, 2.35, 120, 179.9} {
			if lst := Local(ts, lon); lst < 0 || lst >= 24 {
				t.Errorf("Local(%v, %v) = %v, out of [0,24)", ts, lon, lst)
			}
		}
	}
}
