// Package freeplan implements C5: the per-joint trapezoidal planner used
// for jog-continuous, jog-incremental, jog-absolute, and homing sub-moves,
// plus the homing state machine. Grounded on the teacher's
// standalone/planner/planner.go calculateTrapezoid (now expressed as a
// continuous per-tick integrator rather than a one-shot tick-count
// schedule, since FreePlanner runs inside MotionLoop's servo tick rather
// than under the MCU's own timer), and on the teacher's core/endstop.go
// for its homing switch/trigger-sync semantics (not carried into this
// module's own core/ package — see DESIGN.md).
package freeplan

import (
	"math"

	"cncmotion/motion"
)

// Planner is a single joint's free-mode trapezoidal sub-planner (§4.5).
type Planner struct {
	Enabled    bool
	PosCmd     float64 // target
	VelLim     float64
	CurrentPos float64
	CurrentVel float64

	home homing
}

// Step advances the constant-acceleration profile toward PosCmd by one
// servo tick of dt seconds, respecting VelLim and accelLimit. Returns the
// new CurrentPos.
func (p *Planner) Step(dt, accelLimit float64) float64 {
	if !p.Enabled {
		return p.CurrentPos
	}

	remaining := p.PosCmd - p.CurrentPos
	dir := 1.0
	if remaining < 0 {
		dir = -1.0
	}
	distToGo := math.Abs(remaining)

	// Velocity needed to decelerate to zero exactly at the target, given
	// accelLimit; this is the teacher's triangle-profile check
	// (accelDist*2 >= distance) applied per tick instead of once up front.
	stopDist := (p.CurrentVel * p.CurrentVel) / (2 * maxf(accelLimit, 1e-9))
	var targetVel float64
	if stopDist >= distToGo {
		targetVel = 0
	} else {
		targetVel = dir * math.Abs(p.VelLim)
	}

	maxDeltaV := accelLimit * dt
	dv := targetVel - p.CurrentVel
	if dv > maxDeltaV {
		dv = maxDeltaV
	} else if dv < -maxDeltaV {
		dv = -maxDeltaV
	}
	p.CurrentVel += dv

	step := p.CurrentVel * dt
	if dir > 0 && p.CurrentPos+step > p.PosCmd {
		step = p.PosCmd - p.CurrentPos
		p.CurrentVel = 0
	} else if dir < 0 && p.CurrentPos+step < p.PosCmd {
		step = p.PosCmd - p.CurrentPos
		p.CurrentVel = 0
	}
	p.CurrentPos += step
	return p.CurrentPos
}

// AtTarget reports whether the planner has reached PosCmd and stopped.
func (p *Planner) AtTarget() bool {
	return p.CurrentPos == p.PosCmd && p.CurrentVel == 0
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// JogInputs bundles the predicate's observed machine state (§4.5's
// "jog_ok" gate).
type JogInputs struct {
	ModeFree     bool
	MotionEnable bool
	HomingActive bool
	FeedScale    float64
	Direction    int // -1 or +1, the sign of the requested jog
}

// JogOK rejects a new jog command when motion-mode is not free, motion is
// not enabled, homing is active, feed-scale is below 1e-4, or the
// requested direction would violate an active hard or soft limit.
func JogOK(in JogInputs, j *motion.Joint) bool {
	if !in.ModeFree || !in.MotionEnable || in.HomingActive {
		return false
	}
	if in.FeedScale < 1e-4 {
		return false
	}
	if j.OverrideLimits {
		return true
	}
	if in.Direction > 0 && (j.AtPositiveLimit || j.PosCmd > j.MaxPosLimit) {
		return false
	}
	if in.Direction < 0 && (j.AtNegativeLimit || j.PosCmd < j.MinPosLimit) {
		return false
	}
	return true
}
