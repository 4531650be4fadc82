// Package types holds data structures shared between the mount driver and
// the controllers that publish its state.
package types

import "time"

// MountStatus is one snapshot of a mount's position and slew state, emitted
// on the status distributor channel once per poll tick.
type MountStatus struct {
	Timestamp  time.Time `json:"timestamp"`
	MountName  string    `json:"mount_name"`
	RAHours    float64   `json:"ra_hours"`
	DECDegrees float64   `json:"dec_degrees"`
	PierSide   string    `json:"pier_side"`
	State      string    `json:"state"`
	SessionID  string    `json:"session_id,omitempty"`
	Alert      string    `json:"alert,omitempty"`
}

// SlewRecord describes one completed, failed or aborted slew for the
// history log.
type SlewRecord struct {
	SessionID  string    `json:"session_id"`
	MountName  string    `json:"mount_name"`
	RAHours    float64   `json:"ra_hours"`
	DECDegrees float64   `json:"dec_degrees"`
	PierSide   string    `json:"pier_side"`
	Result     string    `json:"result"` // converged, failed, aborted
	Loops      int       `json:"loops"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
