package mount

import (
	"fmt"
	"time"

	"github.com/chrissnell/remotescope/pkg/lx200"
	"github.com/chrissnell/remotescope/pkg/mechanical"
)

// Rate is one tier of the slew-rate table. While a delta is under Distance
// degrees, the axis is adjusted at this tier's speed until the delta drops
// under Epsilon degrees, polling at the tier's interval. Finer tiers need
// faster sampling to avoid overshoot, so the poll interval shrinks with the
// epsilon.
type Rate struct {
	Token    string        // rate-select command for this tier
	Epsilon  float64       // degrees; adjust down to this delta
	Distance float64       // degrees; tier applies to deltas under this
	Poll     time.Duration // position sampling period at this tier
}

// DefaultRates is the hand-tuned five-tier table for the EQ500X, ordered by
// increasing distance threshold: guiding, centering, finding, slew and a
// top slew tier that catches any remaining delta.
func DefaultRates() []Rate {
	return []Rate{
		{lx200.RateGuide, 1 * mechanical.ArcSecond, 0.7 * mechanical.ArcMinute, 100 * time.Millisecond},
		{lx200.RateCenter, 0.7 * mechanical.ArcMinute, 10 * mechanical.ArcMinute, 200 * time.Millisecond},
		{lx200.RateFind, 10 * mechanical.ArcMinute, 5 * mechanical.OneDegree, 500 * time.Millisecond},
		{lx200.RateSlew, 5 * mechanical.OneDegree, 10 * mechanical.OneDegree, 500 * time.Millisecond},
		{lx200.RateSlew, 10 * mechanical.OneDegree, 360 * mechanical.OneDegree, 1000 * time.Millisecond},
	}
}

// validateRates sanitizes a rate table at construction time: the epsilon of
// each tier must not exceed the distance of its finer sibling, otherwise a
// delta could fall in a gap between tiers and oscillate at the boundary.
// The table is static and hand-tuned, so a violation is a configuration
// bug, not a runtime condition.
func validateRates(rates []Rate) error {
	if len(rates) == 0 {
		return fmt.Errorf("rate table is empty")
	}
	for i := 0; i+1 < len(rates); i++ {
		if rates[i+1].Epsilon > rates[i].Distance {
			return fmt.Errorf("rate table tier %d epsilon %v° exceeds tier %d distance %v°",
				i+1, rates[i+1].Epsilon, i, rates[i].Distance)
		}
	}
	return nil
}

// rateFor returns the index of the first tier whose distance threshold
// covers the given absolute delta. With the default table the top tier
// spans 360°, so failure means a malformed table.
func rateFor(rates []Rate, absDelta float64) (int, error) {
	for i := range rates {
		if absDelta <= rates[i].Distance {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no rate tier covers a delta of %v°", absDelta)
}
