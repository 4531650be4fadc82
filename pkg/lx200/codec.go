// Package lx200 implements the subset of the LX200 serial command set the
// EQ500X mount understands: position query and set, per-direction movement
// start/stop, slew-rate selection and abort. Commands are ':'-prefixed and
// '#'-terminated, one round trip per command.
package lx200

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Command tokens understood by the mount.
const (
	QueryRA  = ":GR#"
	QueryDEC = ":GD#"

	MoveEast  = ":Me#"
	MoveWest  = ":Mw#"
	MoveNorth = ":Mn#"
	MoveSouth = ":Ms#"

	QuitEast  = ":Qe#"
	QuitWest  = ":Qw#"
	QuitNorth = ":Qn#"
	QuitSouth = ":Qs#"
	QuitAll   = ":Q#"

	RateGuide  = ":RG#"
	RateCenter = ":RC#"
	RateFind   = ":RM#"
	RateSlew   = ":RS#"

	SyncTarget = ":CM#"

	// StopThenGuide is issued in one batch when a slew converges: all axes
	// stop and the mount drops back to guiding rate for tracking.
	StopThenGuide = ":Q#:RG#"
)

// ReadTimeout is how long the mount is given to answer before a reply is
// considered lost.
const ReadTimeout = 5 * time.Second

// replyMax bounds '#'-terminated replies; the mount never sends more.
const replyMax = 64

// ErrProtocol is returned when a write fails, a reply times out, or a reply
// does not match the expected acknowledgement pattern.
var ErrProtocol = errors.New("protocol error")

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Codec frames commands and replies over a serial transport. The transport
// is exclusively owned by the caller for the duration of each exchange; the
// codec itself keeps no state beyond the connection.
type Codec struct {
	rw     io.ReadWriter
	logger *zap.SugaredLogger
}

// NewCodec wraps a transport. When the transport supports read deadlines
// (TCP serial bridges do, raw serial ports do not), each read is bounded by
// ReadTimeout.
func NewCodec(rw io.ReadWriter, logger *zap.SugaredLogger) *Codec {
	return &Codec{rw: rw, logger: logger}
}

// Command writes a command string, which may batch several tokens, without
// expecting a reply.
func (c *Codec) Command(cmd string) error {
	c.logger.Debugf("CMD <%s>", cmd)

	n, err := c.rw.Write([]byte(cmd))
	if err != nil {
		return fmt.Errorf("writing %q: %w: %v", cmd, ErrProtocol, err)
	}
	if n != len(cmd) {
		return fmt.Errorf("writing %q: short write of %d bytes: %w", cmd, n, ErrProtocol)
	}
	return nil
}

// Reply reads exactly n bytes from the mount.
func (c *Codec) Reply(n int) ([]byte, error) {
	c.armDeadline()

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, fmt.Errorf("reading %d-byte reply: %w: %v", n, ErrProtocol, err)
	}

	c.logger.Debugf("RES <%s>", buf)
	return buf, nil
}

// CommandReply sends a command and reads a fixed-size reply.
func (c *Codec) CommandReply(cmd string, n int) ([]byte, error) {
	if err := c.Command(cmd); err != nil {
		return nil, err
	}
	return c.Reply(n)
}

// CommandString sends a command and reads a '#'-terminated text reply,
// returned without the terminator.
func (c *Codec) CommandString(cmd string) (string, error) {
	if err := c.Command(cmd); err != nil {
		return "", err
	}

	c.armDeadline()

	var reply []byte
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(c.rw, buf); err != nil {
			return "", fmt.Errorf("reading reply to %q: %w: %v", cmd, ErrProtocol, err)
		}
		if buf[0] == '#' {
			break
		}
		reply = append(reply, buf[0])
		if len(reply) > replyMax {
			return "", fmt.Errorf("reply to %q exceeds %d bytes: %w", cmd, replyMax, ErrProtocol)
		}
	}

	c.logger.Debugf("RES <%s>", reply)
	return string(reply), nil
}

// SetTarget writes the chained :Sr/:Sd target command from pre-encoded RA
// and DEC strings. The mount acknowledges each half with a '1', so success
// is the 2-byte reply "11".
func (c *Codec) SetTarget(ra, dec string) error {
	cmd := fmt.Sprintf(":Sr%s#:Sd%s#", ra, dec)

	reply, err := c.CommandReply(cmd, 2)
	if err != nil {
		return err
	}
	if reply[0] != '1' || reply[1] != '1' {
		return fmt.Errorf("target %q rejected, mount replied %q: %w", cmd, reply, ErrProtocol)
	}
	return nil
}

func (c *Codec) armDeadline() {
	if d, ok := c.rw.(deadliner); ok {
		d.SetReadDeadline(time.Now().Add(ReadTimeout))
	}
}
