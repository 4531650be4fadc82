package mount

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/chrissnell/remotescope/pkg/lx200"
	"github.com/chrissnell/remotescope/pkg/mechanical"
	"go.uber.org/zap"
)

// Emulated axis speeds in degrees per second for each commanded rate.
// Move durations stay realistic without making tests crawl.
var emulatorRates = map[string]float64{
	lx200.RateGuide:  5 * mechanical.ArcSecond,
	lx200.RateCenter: 5 * mechanical.ArcMinute,
	lx200.RateFind:   20 * mechanical.ArcMinute,
	lx200.RateSlew:   5 * mechanical.OneDegree,
}

// Emulator is an in-process EQ500X that speaks the mount's serial protocol
// through io.ReadWriter. Write consumes ':'-prefixed '#'-terminated command
// tokens and queues the replies that Read returns. Position advances by
// wall-clock (or injected-clock) elapsed time at the commanded rate, and is
// kept in float degrees/hours so sub-arcsecond motion accumulates between
// reads.
type Emulator struct {
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.SugaredLogger

	pier       mechanical.PierSide
	raHours    float64
	decDegrees float64

	targetRA   float64
	targetDEC  float64
	haveTarget bool

	rate                     string
	east, west, north, south bool
	last                     time.Time

	in  []byte
	out bytes.Buffer
}

// NewEmulator returns an emulated mount parked at the celestial pole.
func NewEmulator(pier mechanical.PierSide, now func() time.Time, logger *zap.SugaredLogger) *Emulator {
	e := &Emulator{
		now:        now,
		logger:     logger,
		pier:       pier,
		raHours:    0,
		decDegrees: 90,
		rate:       lx200.RateSlew, // power-on default of the hand controller
	}
	e.last = now()
	return e
}

// Write parses complete command tokens out of p and executes them. Partial
// tokens are buffered until the terminator arrives.
func (e *Emulator) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.in = append(e.in, p...)
	for {
		start := bytes.IndexByte(e.in, ':')
		if start < 0 {
			e.in = e.in[:0]
			break
		}
		end := bytes.IndexByte(e.in[start:], '#')
		if end < 0 {
			e.in = e.in[start:]
			break
		}
		token := string(e.in[start : start+end+1])
		e.in = e.in[start+end+1:]
		e.execute(token)
	}
	return len(p), nil
}

// Read pops queued reply bytes. With nothing queued it reports io.EOF,
// which the driver treats the same as a reply timeout.
func (e *Emulator) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.out.Len() == 0 {
		return 0, io.EOF
	}
	return e.out.Read(p)
}

func (e *Emulator) Close() error {
	return nil
}

// SetPierSide places the emulated axes in the given session frame. The
// simulated position lives in the frame of the driver commanding it; the
// wire strings only decode consistently when both ends share the side, so
// the driver forwards every side change here.
func (e *Emulator) SetPierSide(side mechanical.PierSide) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pier = side
}

// Position reports the emulated coordinates, for test assertions.
func (e *Emulator) Position() (ra, dec float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advance()
	return e.raHours, e.decDegrees
}

func (e *Emulator) execute(token string) {
	e.advance()

	switch {
	case token == lx200.QueryRA:
		p := e.point()
		s, err := p.StringRA()
		if err != nil {
			e.logger.Errorf("emulator cannot encode RA %f: %v", e.raHours, err)
			return
		}
		e.out.WriteString(s + "#")
	case token == lx200.QueryDEC:
		p := e.point()
		s, err := p.StringDEC()
		if err != nil {
			e.logger.Errorf("emulator cannot encode DEC %f: %v", e.decDegrees, err)
			return
		}
		e.out.WriteString(s + "#")
	case strings.HasPrefix(token, ":Sr"):
		var p mechanical.Point
		p.SetPier(e.pier)
		if err := p.ParseRA(strings.TrimSuffix(strings.TrimPrefix(token, ":Sr"), "#")); err != nil {
			e.out.WriteByte('0')
			return
		}
		e.targetRA = p.RA()
		e.haveTarget = true
		e.out.WriteByte('1')
	case strings.HasPrefix(token, ":Sd"):
		var p mechanical.Point
		p.SetPier(e.pier)
		if err := p.ParseDEC(strings.TrimSuffix(strings.TrimPrefix(token, ":Sd"), "#")); err != nil {
			e.out.WriteByte('0')
			return
		}
		e.targetDEC = p.DEC()
		e.out.WriteByte('1')
	case token == lx200.SyncTarget:
		if !e.haveTarget {
			e.out.WriteString("No name#")
			return
		}
		e.raHours = e.targetRA
		e.decDegrees = e.targetDEC
		e.out.WriteString("Synced#")
	case token == lx200.MoveEast:
		e.east = true
	case token == lx200.MoveWest:
		e.west = true
	case token == lx200.MoveNorth:
		e.north = true
	case token == lx200.MoveSouth:
		e.south = true
	case token == lx200.QuitEast:
		e.east = false
	case token == lx200.QuitWest:
		e.west = false
	case token == lx200.QuitNorth:
		e.north = false
	case token == lx200.QuitSouth:
		e.south = false
	case token == lx200.QuitAll:
		e.east, e.west, e.north, e.south = false, false, false, false
	case token == lx200.RateGuide, token == lx200.RateCenter, token == lx200.RateFind, token == lx200.RateSlew:
		e.rate = token
	default:
		e.logger.Debugf("emulator ignoring unknown token <%s>", token)
	}
}

// advance moves the position by whatever time elapsed since the last call,
// at the commanded rate on each flagged axis.
func (e *Emulator) advance() {
	now := e.now()
	dt := now.Sub(e.last).Seconds()
	e.last = now
	if dt <= 0 {
		return
	}

	rate := emulatorRates[e.rate]
	if e.east {
		e.raHours += rate * dt / 15.0
	}
	if e.west {
		e.raHours -= rate * dt / 15.0
	}
	if e.south {
		e.decDegrees += rate * dt
	}
	if e.north {
		e.decDegrees -= rate * dt
	}

	for e.raHours < 0 {
		e.raHours += 24
	}
	for e.raHours >= 24 {
		e.raHours -= 24
	}
}

func (e *Emulator) point() mechanical.Point {
	p := mechanical.NewPoint(e.raHours, e.decDegrees)
	p.SetPier(e.pier)
	return p
}

// Serve bridges the emulator to a network connection, for running it as a
// standalone TCP serial console.
func (e *Emulator) Serve(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		e.Write(buf[:n])

		e.mu.Lock()
		reply := e.out.Bytes()
		e.out.Reset()
		e.mu.Unlock()

		if len(reply) > 0 {
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}
}
