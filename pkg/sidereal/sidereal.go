// Package sidereal computes local apparent sidereal time, which the mount
// controller needs to derive hour angles and pier orientation.
package sidereal

import (
	"time"

	"github.com/soniakeys/meeus/v3/julian"
	msidereal "github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/unit"
)

// Local returns the local apparent sidereal time in hours [0,24) for an
// observer at the given longitude in degrees, east-positive.
func Local(t time.Time, longitudeDeg float64) float64 {
	gst := msidereal.Apparent(julian.TimeToJD(t.UTC()))
	return unit.PMod(gst.Hour()+longitudeDeg/15.0, 24)
}
