package mechanical

import "testing"

func TestExpectedPierSide(t *testing.T) {
	tests := []struct {
		name     string
		lst, ra  float64
		ha       float64 // folded hour angle, for readability
		expected PierSide
	}{
		{"west quadrant negative", 0, 19, -7, PierWest},
		{"west boundary included", 0, 18, -6, PierWest},
		{"east just past boundary", 0, 17, -5, PierEast},
		{"west quadrant positive", 12, 9, 3, PierWest},
		{"east at meridian flip", 6, 0, 6, PierEast},
		{"east quadrant high", 7, 0, 7, PierEast},
		{"west at zero", 12, 0, 0, PierWest},
		{"east negative low", 0, 15, -3, PierEast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// HourAngle is the value the quadrant decision consumes and the
			// one the driver reports, so both must agree with the table.
			if got := HourAngle(tt.lst, tt.ra); got != tt.ha {
				t.Errorf("HourAngle(%v, %v) = %v, expected %v", tt.lst, tt.ra, got, tt.ha)
			}
			if got := ExpectedPierSide(tt.lst, tt.ra); got != tt.expected {
				t.Errorf("ExpectedPierSide(%v, %v) [HA %v] = %v, expected %v",
					tt.lst, tt.ra, tt.ha, got, tt.expected)
			}
		})
	}
}
