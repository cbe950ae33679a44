// Package axis implements C4: the per-joint record and transition logic
// layered over motion.Joint's static data. Grounded on the teacher's
// config-then-apply pattern (standalone/config's AxisSection.ToJoint, now
// in package config) and on the backlash-ramp idiom described in the
// original LinuxCNC motion.c (original_source/), reworked around
// motion.Joint instead of a C struct.
package axis

import (
	"fmt"

	"cncmotion/motion"
)

// Axis wraps a motion.Joint with the public mutators §4.4 names, plus the
// velocity-sign backlash ramp bounded by acceleration.
type Axis struct {
	Joint motion.Joint

	backlashRamp float64 // current ramped backlash offset, relative to commanded position
}

// New returns an Axis with a fresh two-sentinel compensation table.
func New() *Axis {
	a := &Axis{}
	a.Joint.CompTable = motion.NewCompTable()
	return a
}

func (a *Axis) SetBacklash(v float64) { a.Joint.Backlash = v }

func (a *Axis) SetMinLimit(v float64) { a.Joint.MinPosLimit = v }

func (a *Axis) SetMaxLimit(v float64) { a.Joint.MaxPosLimit = v }

func (a *Axis) SetFerror(v float64) { a.Joint.MaxFerror = v }

func (a *Axis) SetMinFerror(v float64) { a.Joint.MinFerror = v }

func (a *Axis) SetMaxVelocity(v float64) { a.Joint.VelocityLimit = v }

func (a *Axis) SetMaxAcceleration(v float64) { a.Joint.AccelLimit = v }

// SetHomingParams configures the homing sub-profile (§4.5 inputs).
func (a *Axis) SetHomingParams(home, offset, searchVel, latchVel float64, flags motion.HomeFlags, sequence int) {
	a.Joint.Home = home
	a.Joint.HomeOffset = offset
	a.Joint.HomeSearchVel = searchVel
	a.Joint.HomeLatchVel = latchVel
	a.Joint.HomeFlags = flags
	a.Joint.HomeSequence = sequence
}

// Activate enables the joint for motion.
func (a *Axis) Activate() { a.Joint.Enabled = true }

// Deactivate disables the joint; MotionLoop must not command a disabled
// joint.
func (a *Axis) Deactivate() { a.Joint.Enabled = false }

// OverrideLimits suppresses hard/soft limit faulting for manual jog-off
// moves (operator-acknowledged override).
func (a *Axis) OverrideLimits(on bool) { a.Joint.OverrideLimits = on }

// LoadComp replaces the compensation table from a parsed list of entries,
// validating monotonic nominals (§4.4).
func (a *Axis) LoadComp(entries []motion.CompEntry) error {
	table := motion.NewCompTable()
	var err error
	for _, e := range entries {
		table, err = motion.InsertComp(table, e)
		if err != nil {
			return fmt.Errorf("axis: load_comp: %w", err)
		}
	}
	a.Joint.CompTable = table
	return nil
}

// MotorCommand computes the motor-position-command for a newly commanded
// joint position, applying the backlash ramp and the compensation table
// (§4.4). velSign is the sign of the just-commanded velocity (-1, 0, +1);
// dt is the servo period in seconds, used to bound the ramp rate by the
// joint's acceleration limit.
func (a *Axis) MotorCommand(posCmd float64, velSign int, dt float64) float64 {
	target := 0.0
	if velSign > 0 {
		target = a.Joint.Backlash
	} else if velSign < 0 {
		target = -a.Joint.Backlash
	} else {
		target = a.backlashRamp
	}

	maxStep := a.Joint.AccelLimit * dt * dt
	delta := target - a.backlashRamp
	if delta > maxStep {
		delta = maxStep
	} else if delta < -maxStep {
		delta = -maxStep
	}
	a.backlashRamp += delta

	compensated := a.Joint.Compensate(posCmd, velSign)
	return compensated + a.backlashRamp
}
