package mechanical

import "math"

// HourAngle folds LST minus RA the way the pier-side decision consumes it,
// into (-12,+12) hours.
func HourAngle(lstHours, raHours float64) float64 {
	return math.Mod(lstHours-raHours+12.0, 12.0)
}

// ExpectedPierSide decides which side of the pier the tube must be on to
// reach a target RA, from the local sidereal time. The mount claims the west
// side for HA in (-12,-6] and [0,6); everything else is east. This is the
// EQ500X's own meridian convention, not a general astronomical rule, and the
// text codec is only consistent with the physical axis when it is matched
// exactly.
func ExpectedPierSide(lstHours, raHours float64) PierSide {
	ha := HourAngle(lstHours, raHours)
	if (-12 < ha && ha <= -6) || (0 <= ha && ha < 6) {
		return PierWest
	}
	return PierEast
}
