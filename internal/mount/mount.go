// Package mount implements the EQ500X mount driver: transport connection
// management, the position polling loop and the multi-rate convergence
// state machine that drives gotos.
//
// The EQ500X's own goto feature always slews at full speed and can stop
// 0-5 degrees off target, and its firmware refuses short slews outright.
// The driver therefore never uses it: it centers the target itself by
// starting and stopping the two axes at discrete rates until the position
// reads back within one tick of each axis.
package mount

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chrissnell/remotescope/internal/log"
	"github.com/chrissnell/remotescope/internal/types"
	"github.com/chrissnell/remotescope/pkg/config"
	"github.com/chrissnell/remotescope/pkg/lx200"
	"github.com/chrissnell/remotescope/pkg/mechanical"
	"github.com/chrissnell/remotescope/pkg/sidereal"
	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

// State is the convergence controller's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSlewing
	StateTracking
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSlewing:
		return "slewing"
	case StateTracking:
		return "tracking"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrConvergence is reported when a slew exhausts its loop budget without
// settling on the target.
var ErrConvergence = errors.New("convergence failed")

// SlewRecorder persists finished slews. A nil recorder disables history.
type SlewRecorder interface {
	Record(rec types.SlewRecord) error
}

type reqKind int

const (
	reqGoto reqKind = iota
	reqSync
	reqAbort
	reqLocation
)

type request struct {
	kind     reqKind
	ra, dec  float64
	lat, lon float64
	resp     chan error
}

// Mount holds the connection to an EQ500X mount along with the polling and
// convergence state. All mutable slew state is owned by the single polling
// goroutine; external calls cross over via the request channel.
type Mount struct {
	ctx               context.Context
	wg                *sync.WaitGroup
	config            config.MountData
	StatusDistributor chan types.MountStatus
	logger            *zap.SugaredLogger
	recorder          SlewRecorder

	netConn net.Conn
	rwc     io.ReadWriteCloser
	codec   *lx200.Codec

	connecting   bool
	connectingMu sync.RWMutex
	connected    bool
	connectedMu  sync.RWMutex

	now      func() time.Time
	requests chan request

	// state below is touched only by the polling goroutine (and by tests
	// driving tick() directly)
	state     State
	current   mechanical.Point
	sess      *session
	rates     []Rate
	poll      time.Duration
	latitude  float64
	longitude float64
}

// NewMount creates a mount driver from configuration. The rate table is
// validated here; a broken table is a fatal configuration error.
func NewMount(ctx context.Context, wg *sync.WaitGroup, cfg config.MountData, distributor chan types.MountStatus, recorder SlewRecorder, logger *zap.SugaredLogger) (*Mount, error) {
	rates := DefaultRates()
	if err := validateRates(rates); err != nil {
		return nil, fmt.Errorf("mount [%s]: %w", cfg.Name, err)
	}

	if !cfg.Simulated && cfg.SerialDevice == "" && (cfg.Hostname == "" || cfg.Port == "") {
		return nil, fmt.Errorf("mount [%s] must define a serial device, hostname+port, or simulation", cfg.Name)
	}

	lon := cfg.Longitude
	if lon > 180 {
		lon -= 360
	}

	m := &Mount{
		ctx:               ctx,
		wg:                wg,
		config:            cfg,
		StatusDistributor: distributor,
		logger:            logger,
		recorder:          recorder,
		now:               time.Now,
		requests:          make(chan request, 4),
		state:             StateTracking, // the mount tracks as soon as it is powered on
		rates:             rates,
		poll:              trackingPoll,
		latitude:          cfg.Latitude,
		longitude:         lon,
	}

	// A freshly powered mount sits parked with the tube on the east side of
	// the pier, so position readout starts in the east frame. Every goto
	// re-establishes the side from the target's hour angle.
	m.current.SetPier(mechanical.PierEast)

	return m, nil
}

// Name returns the configured mount name.
func (m *Mount) Name() string {
	return m.config.Name
}

// Start connects to the mount, verifies it responds to position queries and
// launches the polling goroutine.
func (m *Mount) Start() error {
	log.Infof("Starting EQ500X mount [%v]...", m.config.Name)

	m.Connect()
	if m.rwc == nil {
		return fmt.Errorf("mount [%s]: no connection established", m.config.Name)
	}
	m.codec = lx200.NewCodec(m.rwc, m.logger)

	if err := m.checkConnection(); err != nil {
		return fmt.Errorf("mount [%s]: %w", m.config.Name, err)
	}

	m.updateLocation(m.latitude, m.longitude)

	m.wg.Add(1)
	go m.run()

	return nil
}

// Connect establishes the transport: the built-in emulator, a serial port,
// or a TCP serial bridge.
func (m *Mount) Connect() {
	if m.config.Simulated {
		log.Infof("Mount [%s] running against the built-in emulator", m.config.Name)
		m.rwc = NewEmulator(mechanical.PierEast, m.now, m.logger)
		m.setConnected(true)
		return
	}
	if len(m.config.SerialDevice) > 0 {
		m.connectToSerialMount()
	} else {
		m.connectToNetworkMount()
	}
}

func (m *Mount) connectToSerialMount() {
	var err error

	m.connectingMu.RLock()
	if m.connecting {
		m.connectingMu.RUnlock()
		m.logger.Info("skipping reconnect since a connection attempt is already in progress")
		return
	}

	m.connectingMu.RUnlock()
	m.connectingMu.Lock()
	m.connecting = true
	m.connectingMu.Unlock()

	baud := m.config.Baud
	if baud == 0 {
		baud = 9600
	}

	m.logger.Infof("connecting to %v ...", m.config.SerialDevice)

	for {
		sc := &serial.Config{Name: m.config.SerialDevice, Baud: baud}
		m.logger.Debugf("attempting to open serial port %s at %d baud", m.config.SerialDevice, baud)
		m.rwc, err = serial.OpenPort(sc)

		if err != nil {
			m.logger.Errorf("failed to open serial port %s: %v", m.config.SerialDevice, err)
			m.logger.Error("sleeping 30 seconds and trying again")

			select {
			case <-m.ctx.Done():
				m.logger.Info("cancellation request received during retry wait")
				m.connectingMu.Lock()
				m.connecting = false
				m.connectingMu.Unlock()
				return
			case <-time.After(30 * time.Second):
				// Continue to next iteration
			}
		} else {
			m.setConnected(true)
			m.connectingMu.Lock()
			m.connecting = false
			m.connectingMu.Unlock()
			return
		}
	}
}

func (m *Mount) connectToNetworkMount() {
	var err error

	console := fmt.Sprint(m.config.Hostname, ":", m.config.Port)

	m.connectingMu.RLock()
	if m.connecting {
		m.connectingMu.RUnlock()
		log.Info("skipping reconnect since a connection attempt is already in progress")
		return
	}

	m.connectingMu.RUnlock()
	m.connectingMu.Lock()
	m.connecting = true
	m.connectingMu.Unlock()

	log.Info("connecting to:", console)

	for {
		m.netConn, err = net.DialTimeout("tcp", console, 10*time.Second)

		if err != nil {
			log.Errorf("could not connect to %v: %v", console, err)
			log.Error("sleeping 5 seconds and trying again.")

			select {
			case <-m.ctx.Done():
				m.logger.Info("cancellation request received during retry wait")
				m.connectingMu.Lock()
				m.connecting = false
				m.connectingMu.Unlock()
				return
			case <-time.After(5 * time.Second):
				// Continue to next iteration
			}
		} else {
			m.setConnected(true)
			m.connectingMu.Lock()
			m.connecting = false
			m.connectingMu.Unlock()

			m.rwc = io.ReadWriteCloser(m.netConn)
			return
		}
	}
}

func (m *Mount) setConnected(v bool) {
	m.connectedMu.Lock()
	m.connected = v
	m.connectedMu.Unlock()
}

// checkConnection probes the mount with position queries. The first read
// after power-up is allowed to fail while the controller wakes up.
func (m *Mount) checkConnection() error {
	m.logger.Debug("testing mount connection using GR/GD...")

	for i := 0; i < 2; i++ {
		if _, err := m.readPosition(); err != nil {
			if i >= 1 {
				return fmt.Errorf("mount is not responding to GR/GD: %w", err)
			}
		}
		time.Sleep(50 * time.Millisecond)
	}

	m.logger.Debug("connection check successful")
	return nil
}

// Goto slews to the given apparent RA (hours) and DEC (degrees). It returns
// once the slew is started; progress is published on the distributor.
func (m *Mount) Goto(ra, dec float64) error {
	return m.send(request{kind: reqGoto, ra: ra, dec: dec, resp: make(chan error, 1)})
}

// Sync tells the mount its current position is the given coordinate.
func (m *Mount) Sync(ra, dec float64) error {
	return m.send(request{kind: reqSync, ra: ra, dec: dec, resp: make(chan error, 1)})
}

// Abort stops any slew in progress. The stop is handled at the top of the
// next poll tick; in-flight transport I/O is never interrupted.
func (m *Mount) Abort() error {
	return m.send(request{kind: reqAbort, resp: make(chan error, 1)})
}

// UpdateLocation sets the observer's coordinates. When the mount is parked
// at the pole, RA is synced against the new local sidereal time.
func (m *Mount) UpdateLocation(lat, lon float64) error {
	return m.send(request{kind: reqLocation, lat: lat, lon: lon, resp: make(chan error, 1)})
}

// SetPierSide is rejected: the pier side is derived from the target's hour
// angle and cannot be forced externally.
func (m *Mount) SetPierSide(side mechanical.PierSide) error {
	return fmt.Errorf("setting pier side %v: not supported", side)
}

func (m *Mount) send(req request) error {
	select {
	case m.requests <- req:
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
	select {
	case err := <-req.resp:
		return err
	case <-m.ctx.Done():
		return m.ctx.Err()
	}
}

// run is the polling loop. The interval follows the driving rate tier while
// slewing and falls back to one second while tracking.
func (m *Mount) run() {
	defer m.wg.Done()
	log.Infof("starting mount [%s] polling loop", m.config.Name)

	timer := time.NewTimer(m.poll)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			log.Info("cancellation request received. Stopping mount polling loop")
			if m.state == StateSlewing {
				m.codec.Command(lx200.QuitAll)
			}
			m.rwc.Close()
			return
		case req := <-m.requests:
			req.resp <- m.handleRequest(req)
		case <-timer.C:
			m.tick()
			timer.Reset(m.poll)
		}
	}
}

func (m *Mount) handleRequest(req request) error {
	switch req.kind {
	case reqGoto:
		return m.handleGoto(req.ra, req.dec)
	case reqSync:
		return m.handleSync(req.ra, req.dec)
	case reqAbort:
		return m.handleAbort()
	case reqLocation:
		return m.updateLocation(req.lat, req.lon)
	default:
		return fmt.Errorf("unknown request kind %d", req.kind)
	}
}

func (m *Mount) handleGoto(ra, dec float64) error {
	lst := sidereal.Local(m.now(), m.longitude)
	side := mechanical.ExpectedPierSide(lst, ra)
	m.logger.Infof("goto target HA is %f, LST is %f, quadrant is %s",
		mechanical.HourAngle(lst, ra), lst, side)

	// If moving, stop first and give the motors time to settle. Direct
	// retargeting mid-motion is not supported by the hardware.
	if m.state == StateSlewing {
		if err := m.codec.Command(lx200.QuitAll); err != nil {
			return fmt.Errorf("aborting previous slew: %w", err)
		}
		m.finishSlew("aborted")
		time.Sleep(100 * time.Millisecond)
	}

	target := mechanical.NewPoint(ra, dec)
	target.SetPier(side)
	m.current.SetPier(side)
	m.propagatePierSide(side)

	if err := m.setTargetPosition(target); err != nil {
		return err
	}

	m.sess = newSession(target, m.now())
	m.state = StateSlewing
	m.poll = 100 * time.Millisecond

	raStr, _ := target.StringRA()
	decStr, _ := target.StringDEC()
	m.logger.Infof("slewing to RA %s DEC %s on pier side %s [session %s]", raStr, decStr, side, m.sess.id)
	return nil
}

// propagatePierSide keeps the built-in emulator in the session frame. A
// physical mount has no frame to share; its replies are interpreted through
// the current position's side alone.
func (m *Mount) propagatePierSide(side mechanical.PierSide) {
	if sim, ok := m.rwc.(*Emulator); ok {
		sim.SetPierSide(side)
	}
}

func (m *Mount) setTargetPosition(target mechanical.Point) error {
	raStr, err := target.StringRA()
	if err != nil {
		return fmt.Errorf("encoding target: %w", err)
	}
	decStr, err := target.StringDEC()
	if err != nil {
		return fmt.Errorf("encoding target: %w", err)
	}
	m.logger.Debugf("target RA '%f' DEC '%f' converted to Sr%s/Sd%s", target.RA(), target.DEC(), raStr, decStr)

	return m.codec.SetTarget(raStr, decStr)
}

func (m *Mount) handleSync(ra, dec float64) error {
	lst := sidereal.Local(m.now(), m.longitude)
	side := mechanical.ExpectedPierSide(lst, ra)

	target := mechanical.NewPoint(ra, dec)
	target.SetPier(side)
	m.propagatePierSide(side)

	if err := m.setTargetPosition(target); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	reply, err := m.codec.CommandString(lx200.SyncTarget)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if reply == "No name" {
		return fmt.Errorf("sync: mount refused target: %w", lx200.ErrProtocol)
	}

	m.current = target
	m.logger.Infof("mount synced to RA '%f' DEC '%f'", target.RA(), target.DEC())
	m.publishStatus("")
	return nil
}

func (m *Mount) handleAbort() error {
	if m.state != StateSlewing {
		return nil
	}
	if err := m.codec.Command(lx200.QuitAll); err != nil {
		return fmt.Errorf("abort: %w", err)
	}
	m.finishSlew("aborted")
	m.state = StateIdle
	m.poll = trackingPoll
	m.logger.Info("slew aborted")
	return nil
}

func (m *Mount) updateLocation(lat, lon float64) error {
	if lon > 180 {
		lon -= 360
	}
	m.latitude = lat
	m.longitude = lon
	m.logger.Infof("location updated: longitude (%g) latitude (%g)", lon, lat)

	// A parked mount aims at the pole with its mechanical hour angle six
	// hours east of the meridian; adopt the new LST accordingly.
	if m.isConnected() {
		if p, err := m.readPosition(); err == nil && p.AtPark() {
			lst := sidereal.Local(m.now(), m.longitude)
			if err := m.handleSync(lst-6, p.DEC()); err != nil {
				return err
			}
			m.logger.Infof("location updated: mount considered parked, synced to LST %gh", lst)
		}
	}
	return nil
}

func (m *Mount) isConnected() bool {
	m.connectedMu.RLock()
	defer m.connectedMu.RUnlock()
	return m.connected
}

// readPosition queries both axes and decodes them in the current pier-side
// frame. The current position is untouched on failure.
func (m *Mount) readPosition() (mechanical.Point, error) {
	p := m.current

	s, err := m.codec.CommandString(lx200.QueryRA)
	if err != nil {
		return p, err
	}
	if err := p.ParseRA(s); err != nil {
		return p, err
	}
	m.logger.Debugf("RA reads '%s' as %f", s, p.RA())

	s, err = m.codec.CommandString(lx200.QueryDEC)
	if err != nil {
		return p, err
	}
	if err := p.ParseDEC(s); err != nil {
		return p, err
	}
	m.logger.Debugf("DEC reads '%s' as %f", s, p.DEC())

	return p, nil
}

// tick performs one polling cycle: refresh the position, advance the
// convergence state machine if slewing, publish status.
func (m *Mount) tick() {
	p, err := m.readPosition()
	switch {
	case errors.Is(err, lx200.ErrProtocol):
		// Transport trouble: halt any slew best-effort and surface an alert.
		m.logger.Errorf("error reading RA/DEC: %v", err)
		if m.state == StateSlewing {
			m.codec.Command(lx200.QuitAll)
			m.finishSlew("failed")
			m.state = StateFailed
			m.poll = trackingPoll
		}
		m.publishStatus("error reading RA/DEC")
		return
	case err != nil:
		// Malformed reply: position is stale this tick, issue nothing.
		m.logger.Errorf("discarding malformed position: %v", err)
		m.publishStatus("malformed position reply")
		return
	}
	m.current = p

	if m.state == StateSlewing && m.sess != nil {
		m.advanceSlew()
	}

	m.publishStatus("")
}

func (m *Mount) advanceSlew() {
	pl, err := m.sess.step(m.current, m.rates)
	if err != nil {
		// Logic error, not a runtime condition: stop hardware and bail out.
		m.logger.Errorf("convergence logic error: %v", err)
		m.codec.Command(lx200.QuitAll)
		m.finishSlew("failed")
		m.state = StateFailed
		m.poll = trackingPoll
		return
	}

	if pl.cmd != "" {
		if err := m.codec.Command(pl.cmd); err != nil {
			m.logger.Errorf("error centering at (%f°,%f°): %v", m.sess.target.RA()*15.0, m.sess.target.DEC(), err)
			m.codec.Command(lx200.QuitAll)
			m.finishSlew("failed")
			m.state = StateFailed
			m.poll = trackingPoll
			return
		}
	}

	switch {
	case pl.converged:
		m.logger.Info("slew is complete. Tracking...")
		m.finishSlew("converged")
		m.state = StateTracking
		m.poll = pl.poll
	case pl.failed:
		m.logger.Errorf("failed centering to (%f,%f) under loop limit, aborting: %v",
			m.sess.target.RA(), m.sess.target.DEC(), ErrConvergence)
		m.codec.Command(lx200.QuitAll)
		m.finishSlew("failed")
		m.state = StateFailed
		m.poll = pl.poll
	case pl.settled:
		m.logger.Infof("centering intermediate adjustment complete (%d loops)", MaxConvergenceLoops-m.sess.countdown)
		m.poll = pl.poll
	default:
		m.poll = pl.poll
	}
}

// finishSlew records the session outcome and drops it.
func (m *Mount) finishSlew(result string) {
	if m.sess == nil {
		return
	}
	if m.recorder != nil {
		rec := types.SlewRecord{
			SessionID:  m.sess.id.String(),
			MountName:  m.config.Name,
			RAHours:    m.sess.target.RA(),
			DECDegrees: m.sess.target.DEC(),
			PierSide:   m.sess.target.Pier().String(),
			Result:     result,
			Loops:      m.sess.loops,
			StartedAt:  m.sess.startedAt,
			FinishedAt: m.now(),
		}
		if err := m.recorder.Record(rec); err != nil {
			m.logger.Errorf("error recording slew %s: %v", rec.SessionID, err)
		}
	}
	m.sess = nil
}

func (m *Mount) publishStatus(alert string) {
	st := types.MountStatus{
		Timestamp:  m.now(),
		MountName:  m.config.Name,
		RAHours:    m.current.RA(),
		DECDegrees: m.current.DEC(),
		PierSide:   m.current.Pier().String(),
		State:      m.state.String(),
		Alert:      alert,
	}
	if m.sess != nil {
		st.SessionID = m.sess.id.String()
	}

	select {
	case m.StatusDistributor <- st:
	default:
		m.logger.Debug("status distributor full, dropping update")
	}
}
