package mount

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chrissnell/remotescope/pkg/lx200"
	"github.com/chrissnell/remotescope/pkg/mechanical"
)

// trackingPoll is the sampling period while not slewing.
const trackingPoll = 1000 * time.Millisecond

// plan is the outcome of one convergence step: the batched command string
// for this tick and the resulting disposition.
type plan struct {
	cmd       string        // movement and rate tokens to send, possibly empty
	converged bool          // both deltas under granularity; slew complete
	failed    bool          // countdown exhausted; convergence abandoned
	settled   bool          // all movement stopped at this tier, still converging
	poll      time.Duration // recommended interval until the next tick
}

// step advances the convergence state machine by one poll tick. Both axes
// share one commanded rate, so the driving tier is the coarser of the two
// per-axis requirements (numerically larger index); on an exact tie RA is
// processed before DEC. Motors do not support direct reversal, so a stop
// token is always batched ahead of an opposite start token.
func (s *session) step(current mechanical.Point, rates []Rate) (plan, error) {
	raDelta := current.RADistanceTo(s.target)
	decDelta := current.DECDistanceTo(s.target)
	absRA := math.Abs(raDelta)
	absDEC := math.Abs(decDelta)

	s.loops++

	// At target within one tick of each axis: stop everything and resume
	// guiding-rate tracking.
	if absRA < mechanical.RAGranularity && absDEC < mechanical.DECGranularity {
		s.clearMovement()
		return plan{cmd: lx200.StopThenGuide, converged: true, poll: trackingPoll}, nil
	}

	raRate, err := rateFor(rates, absRA)
	if err != nil {
		return plan{}, err
	}
	decRate, err := rateFor(rates, absDEC)
	if err != nil {
		return plan{}, err
	}

	driving := raRate
	if decRate > driving {
		driving = decRate
	}

	var cmd strings.Builder
	if driving != s.prevRate {
		cmd.WriteString(rates[driving].Token)

		// Dropping to a finer tier is expected convergence progress, so the
		// countdown gets a fresh budget for the new tier.
		if s.prevRate >= 0 && driving < s.prevRate {
			s.countdown = MaxConvergenceLoops
		}
		s.prevRate = driving
	}

	if raRate == driving {
		// The axis cannot resolve finer than its own granularity whatever
		// the tier's epsilon says.
		eps := math.Max(rates[driving].Epsilon, mechanical.RAGranularity)

		goEast := eps <= raDelta
		goWest := raDelta <= -eps
		if goEast && goWest {
			return plan{}, fmt.Errorf("RA delta %v° requires both directions", raDelta)
		}

		if s.east && (!goEast || goWest) {
			cmd.WriteString(lx200.QuitEast)
			s.east = false
		}
		if s.west && (!goWest || goEast) {
			cmd.WriteString(lx200.QuitWest)
			s.west = false
		}
		if goEast && !s.east {
			cmd.WriteString(lx200.MoveEast)
			s.east = true
		}
		if goWest && !s.west {
			cmd.WriteString(lx200.MoveWest)
			s.west = true
		}
	}

	if decRate == driving {
		eps := math.Max(rates[driving].Epsilon, mechanical.DECGranularity)

		goSouth := eps <= decDelta
		goNorth := decDelta <= -eps
		if goSouth && goNorth {
			return plan{}, fmt.Errorf("DEC delta %v° requires both directions", decDelta)
		}

		if s.south && (!goSouth || goNorth) {
			cmd.WriteString(lx200.QuitSouth)
			s.south = false
		}
		if s.north && (!goNorth || goSouth) {
			cmd.WriteString(lx200.QuitNorth)
			s.north = false
		}
		if goSouth && !s.south {
			cmd.WriteString(lx200.MoveSouth)
			s.south = true
		}
		if goNorth && !s.north {
			cmd.WriteString(lx200.MoveNorth)
			s.north = true
		}
	}

	if (s.east && s.west) || (s.north && s.south) {
		return plan{}, fmt.Errorf("conflicting movement markers E%v W%v N%v S%v", s.east, s.west, s.north, s.south)
	}

	p := plan{cmd: cmd.String(), poll: rates[driving].Poll}

	if !s.moving() {
		// Sub-target for this tier reached; the loop continues at a finer
		// tier on the next tick. The countdown is deliberately not reset
		// here, only tier transitions refresh it.
		p.settled = true
		return p, nil
	}

	s.countdown--
	if s.countdown <= 0 {
		// The mount decelerates when asked to stop under minimum distance
		// and can drift past the target, so convergence may stall. Give up
		// rather than hunt forever.
		s.clearMovement()
		p.failed = true
		p.poll = trackingPoll
	}
	return p, nil
}
