package mount

import (
	"time"

	"github.com/google/uuid"
	"github.com/chrissnell/remotescope/pkg/mechanical"
)

// MaxConvergenceLoops bounds the number of adjustment polls for one slew. A
// full rotation at 5°/s takes 72 seconds at slew speed; checking twice per
// second gives 144 loops.
const MaxConvergenceLoops = 144

// session is the mutable state of one slew, created by a goto and destroyed
// when the slew converges, fails or is aborted. It is only ever touched from
// the mount's polling goroutine.
type session struct {
	id        uuid.UUID
	target    mechanical.Point
	countdown int
	startedAt time.Time
	loops     int

	// movement markers; adjustment is done when no movement is required
	// and all four are cleared
	east, west, north, south bool

	// previously selected rate tier, to emit a rate-select command only on
	// change; -1 until the first tier is chosen
	prevRate int
}

func newSession(target mechanical.Point, startedAt time.Time) *session {
	return &session{
		id:        uuid.New(),
		target:    target,
		countdown: MaxConvergenceLoops,
		startedAt: startedAt,
		prevRate:  -1,
	}
}

func (s *session) moving() bool {
	return s.east || s.west || s.north || s.south
}

func (s *session) clearMovement() {
	s.east, s.west, s.north, s.south = false, false, false, false
}
