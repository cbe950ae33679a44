package freeplan

import "cncmotion/motion"

// HomeInputs bundles the switch/index state a homing tick observes
// (§4.5): the home switch level, whether an index pulse has just been
// latched by the stepgen, and whether a shared home input is still busy
// with another joint.
type HomeInputs struct {
	SwitchActive bool
	IndexLatched bool
	SharedBusy   bool
}

// homing is the per-joint homing sub-state carried inside Planner.
type homing struct {
	state       motion.HomingState
	startPos    float64
	latchedHome float64
}

// State returns the joint's current homing state.
func (p *Planner) State() motion.HomingState { return p.home.state }

// StartHoming begins the sequence: IDLE -> START (§4.5). No-op if a
// sequence is already in progress.
func (p *Planner) StartHoming(joint *motion.Joint, in HomeInputs) {
	if p.home.state != motion.HomeIdle && p.home.state != motion.HomeFinished && p.home.state != motion.HomeAbort {
		return
	}
	if joint.HomeFlags&motion.HomeIsShared != 0 && in.SharedBusy {
		return
	}
	p.home.state = motion.HomeStart
	p.home.startPos = p.CurrentPos
	joint.Homing = true
	joint.Homed = false
}

// AbortHoming cancels an in-progress sequence.
func (p *Planner) AbortHoming(joint *motion.Joint) {
	p.home.state = motion.HomeAbort
	joint.Homing = false
	p.Enabled = false
}

// StepHoming advances the homing state machine by one servo tick,
// driving Planner's trapezoidal sub-moves at home_search_vel /
// home_latch_vel as the state dictates (§4.5). Returns true once FINISHED
// is reached (the caller should then clear Homing and disable further
// calls until StartHoming is invoked again).
func (p *Planner) StepHoming(joint *motion.Joint, in HomeInputs, dt float64) bool {
	switch p.home.state {
	case motion.HomeStart:
		p.Enabled = true
		p.VelLim = joint.HomeSearchVel
		if p.VelLim >= 0 {
			p.PosCmd = joint.MaxPosLimit
		} else {
			p.PosCmd = joint.MinPosLimit
		}
		p.home.state = motion.HomeInitialSearch

	case motion.HomeInitialSearch:
		if in.SwitchActive {
			// Reverse at home_latch_vel until the switch releases.
			p.VelLim = -signOf(joint.HomeSearchVel) * absf(joint.HomeLatchVel)
			if p.VelLim >= 0 {
				p.PosCmd = joint.MaxPosLimit
			} else {
				p.PosCmd = joint.MinPosLimit
			}
			if joint.HomeFlags&motion.HomeUseIndex != 0 {
				p.home.state = motion.HomeWaitForIndex
			} else {
				p.home.state = motion.HomeFinalBackoff
			}
			return false
		}
		p.Step(dt, joint.AccelLimit)

	case motion.HomeWaitForIndex:
		p.Step(dt, joint.AccelLimit)
		if !in.SwitchActive && in.IndexLatched {
			p.home.state = motion.HomeFinalBackoff
		}

	case motion.HomeFinalBackoff:
		p.Step(dt, joint.AccelLimit)
		if !in.SwitchActive {
			p.home.state = motion.HomeSetHome
		}

	case motion.HomeSetHome:
		// motor_fb now reads as home_offset: fold the discrepancy into
		// the joint's motor offset rather than teleporting CurrentPos.
		joint.MotorOffset += joint.HomeOffset - joint.MotorPosFb
		p.CurrentPos = joint.HomeOffset
		p.CurrentVel = 0
		p.VelLim = absf(joint.HomeSearchVel)
		p.PosCmd = joint.Home
		p.home.state = motion.HomeFinalMove

	case motion.HomeFinalMove:
		p.Step(dt, joint.AccelLimit)
		if p.AtTarget() {
			p.home.state = motion.HomeFinished
			joint.Homing = false
			joint.Homed = true
			return true
		}

	case motion.HomeFinished, motion.HomeAbort, motion.HomeIdle:
		return p.home.state == motion.HomeFinished
	}
	return false
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
