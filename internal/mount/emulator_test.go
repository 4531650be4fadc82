package mount

import (
	"math"
	"testing"
	"time"

	"github.com/chrissnell/remotescope/pkg/lx200"
	"github.com/chrissnell/remotescope/pkg/mechanical"
	"go.uber.org/zap"
)

// testClock is a manually advanced clock so emulated motion is exact.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 21, 4, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func emulatorReply(t *testing.T, e *Emulator, cmd string) string {
	t.Helper()
	if _, err := e.Write([]byte(cmd)); err != nil {
		t.Fatalf("write %q: %v", cmd, err)
	}
	buf := make([]byte, 64)
	n, err := e.Read(buf)
	if err != nil {
		t.Fatalf("read reply to %q: %v", cmd, err)
	}
	return string(buf[:n])
}

func TestEmulatorStartsParked(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	if got := emulatorReply(t, e, lx200.QueryRA); got != "00:00:00#" {
		t.Errorf("RA = %q, want parked 00:00:00#", got)
	}
	if got := emulatorReply(t, e, lx200.QueryDEC); got != "+00:00:00#" {
		t.Errorf("DEC = %q, want pole +00:00:00#", got)
	}
}

func TestEmulatorMovesAtCommandedRate(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	// Centering rate south for 60 seconds moves DEC by 5 arcminutes per
	// second, 5 degrees total.
	if _, err := e.Write([]byte(lx200.RateCenter + lx200.MoveSouth)); err != nil {
		t.Fatal(err)
	}
	clk.Advance(60 * time.Second)
	if _, err := e.Write([]byte(lx200.QuitSouth)); err != nil {
		t.Fatal(err)
	}

	_, dec := e.Position()
	if math.Abs(dec-95) > 1e-9 {
		t.Errorf("DEC = %v, want 95", dec)
	}

	// Stopped: no further motion.
	clk.Advance(60 * time.Second)
	if _, dec = e.Position(); math.Abs(dec-95) > 1e-9 {
		t.Errorf("DEC = %v after stop, want 95", dec)
	}
}

func TestEmulatorRAMotionEastward(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	// Slew rate east for 3 seconds: 15 degrees, one hour of RA.
	if _, err := e.Write([]byte(lx200.RateSlew + lx200.MoveEast)); err != nil {
		t.Fatal(err)
	}
	clk.Advance(3 * time.Second)
	if _, err := e.Write([]byte(lx200.QuitAll)); err != nil {
		t.Fatal(err)
	}

	ra, _ := e.Position()
	if math.Abs(ra-1) > 1e-9 {
		t.Errorf("RA = %v hours, want 1", ra)
	}
	if got := emulatorReply(t, e, lx200.QueryRA); got != "01:00:00#" {
		t.Errorf("RA reads %q, want 01:00:00#", got)
	}
}

func TestEmulatorTargetAndSync(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	if got := emulatorReply(t, e, ":Sr08:30:00#"); got != "1" {
		t.Errorf("Sr ack = %q, want 1", got)
	}
	if got := emulatorReply(t, e, ":Sd+04:30:00#"); got != "1" {
		t.Errorf("Sd ack = %q, want 1", got)
	}
	if got := emulatorReply(t, e, lx200.SyncTarget); got != "Synced#" {
		t.Errorf("sync reply = %q, want Synced#", got)
	}

	ra, dec := e.Position()
	if math.Abs(ra-8.5) > 1e-9 {
		t.Errorf("RA = %v after sync, want 8.5", ra)
	}
	// +04:30:00 in the east frame is a mechanical DEC of 85.5 degrees.
	if math.Abs(dec-85.5) > 1e-9 {
		t.Errorf("DEC = %v after sync, want 85.5", dec)
	}
}

func TestEmulatorRejectsMalformedTarget(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	if got := emulatorReply(t, e, ":Sr8:30:00#"); got != "0" {
		t.Errorf("short Sr ack = %q, want 0", got)
	}
}

func TestEmulatorSyncWithoutTarget(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	if got := emulatorReply(t, e, lx200.SyncTarget); got != "No name#" {
		t.Errorf("sync reply = %q, want No name#", got)
	}
}

func TestEmulatorPartialWrites(t *testing.T) {
	clk := newTestClock()
	e := NewEmulator(mechanical.PierEast, clk.Now, zap.NewNop().Sugar())

	// Token split across writes must still execute once complete.
	if _, err := e.Write([]byte(":G")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Write([]byte("R#")); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 64)
	n, err := e.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "00:00:00#" {
		t.Errorf("reply = %q, want 00:00:00#", buf[:n])
	}
}
