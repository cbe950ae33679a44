// Package task implements C10: the mode/state machine that gates every
// incoming command against the transition matrix in §4.10, runs the
// PlanRead execution pipeline with its INTERP_EXECUTE_FINISH barrier, and
// computes per-command preconditions before handing queued motion
// primitives to the servo domain. Grounded on the teacher's
// core/command.go CommandRegistry/Dispatch idiom for the gate-then-act
// shape (generalized from a byte-protocol dispatcher to the mode x state
// table of §4.10), and on cncmotion/_examples/original_source's task
// controller for the precondition/postcondition categories of §4.10 (task
// and motion share a process there; here they are decoupled by C9/a
// MotionTarget boundary, per §5's "task communicates with servo only
// through C9").
package task

import (
	"errors"

	"cncmotion/cmdchan"
	"cncmotion/motion"
)

// CommandKind enumerates the operator/interpreter command categories the
// transition matrix gates (§4.10's table columns, collapsed to one enum).
type CommandKind int

const (
	CmdParamSet CommandKind = iota
	CmdModeSwitch
	CmdEstopReset
	CmdDebug
	CmdJog
	CmdHome
	CmdOverrideLimits
	CmdSpindle
	CmdCoolant
	CmdAbort
	CmdToolChange
	CmdToolTableLoad
	CmdRun
	CmdMDIExecute
	CmdOverrides
	CmdPause
	CmdResume
	CmdStep
	CmdOpen
)

// Disposition is the gate's verdict for one command (§4.10).
type Disposition int

const (
	Rejected Disposition = iota
	AcceptedImmediately
	Queued
)

// ErrRejected is returned by Submit when the gate rejects a command in
// the current mode/state.
var ErrRejected = errors.New("task: command rejected in current mode/state")

// ErrQueueFull bounds the interpreter-output list (§4.10: "cap ~1000").
var ErrQueueFull = errors.New("task: interp queue full")

const interpQueueCap = 1000

// admit implements the transition matrix of §4.10 (partial, normative:
// unlisted combinations default to Rejected, matching the table's
// conservative closed-world reading).
func admit(st motion.TaskState, cmd CommandKind) Disposition {
	if st.State == motion.StateEstop || st.State == motion.StateOff {
		switch cmd {
		case CmdParamSet, CmdModeSwitch, CmdEstopReset, CmdDebug:
			return AcceptedImmediately
		}
		return Rejected
	}

	if st.Mode == motion.TaskManual {
		switch cmd {
		case CmdJog, CmdHome, CmdOverrideLimits, CmdSpindle, CmdCoolant, CmdAbort, CmdParamSet:
			return AcceptedImmediately
		case CmdToolChange, CmdToolTableLoad:
			return Queued
		}
		return Rejected
	}

	if st.Mode == motion.TaskMDI {
		switch cmd {
		case CmdMDIExecute, CmdAbort, CmdParamSet:
			return AcceptedImmediately
		case CmdToolChange, CmdToolTableLoad:
			return Queued
		}
		return Rejected
	}

	// TaskAuto: disposition depends on InterpState.
	switch st.InterpState {
	case motion.InterpIdle:
		switch cmd {
		case CmdRun, CmdParamSet, CmdAbort, CmdOverrides:
			return AcceptedImmediately
		case CmdToolChange, CmdToolTableLoad:
			return Queued
		}
		return Rejected
	case motion.InterpReading:
		switch cmd {
		case CmdPause, CmdResume, CmdAbort, CmdOverrides, CmdStep:
			return AcceptedImmediately
		}
		return Rejected
	case motion.InterpPaused:
		switch cmd {
		case CmdResume, CmdStep, CmdAbort, CmdOverrides:
			return AcceptedImmediately
		}
		return Rejected
	case motion.InterpWaiting:
		switch cmd {
		case CmdAbort, CmdOverrides:
			return AcceptedImmediately
		}
		return Rejected
	}
	return Rejected
}

// MotionTarget is the bounded trajectory queue TaskFSM drains into, once
// a queued segment's precondition is satisfied (§4.10's "issuing a
// queued command to MotionLoop"). trajq.Queue satisfies this directly.
type MotionTarget interface {
	Enqueue(seg *motion.MotionSegment, startPos motion.Pose) error
}

// FSM is C10.
type FSM struct {
	State motion.TaskState

	interpList []*motion.MotionSegment
	barrier    bool // set by Finish(), cleared once drained and motion/io done

	target MotionTarget
	ch     *cmdchan.Channel

	lastEnd motion.Pose

	stepActive       bool
	waitForStep      bool
	stepLineID       int
	currentLineID    int
}

// New creates an FSM draining into target and issuing discrete operator
// commands over ch.
func New(target MotionTarget, ch *cmdchan.Channel) *FSM {
	return &FSM{target: target, ch: ch}
}

// Submit runs a command through the transition-matrix gate (§4.10). The
// caller is responsible for actually performing an AcceptedImmediately
// command (e.g. dispatch to cmdchan); Submit only adjudicates.
func (f *FSM) Submit(cmd CommandKind) Disposition {
	return admit(f.State, cmd)
}

// Enqueue implements interpadapter.Enqueuer: appends a primitive to the
// bounded interpreter-output list (§4.10's PlanRead step).
func (f *FSM) Enqueue(seg *motion.MotionSegment) error {
	if len(f.interpList) >= interpQueueCap {
		return ErrQueueFull
	}
	f.interpList = append(f.interpList, seg)
	return nil
}

// Finish implements interpadapter.Enqueuer: the interpreter returned
// INTERP_EXECUTE_FINISH. Sets the synchronization barrier that Barriered
// reports; DrainOne clears it once the queued list has fully drained and
// motion/io report done (§4.10). Enqueue does not refuse segments while
// the barrier is set, so holding off further PlanRead calls is up to the
// caller.
func (f *FSM) Finish() {
	f.barrier = true
}

// QueueLen reports the number of primitives still held in the
// interpreter-output list.
func (f *FSM) QueueLen() int { return len(f.interpList) }

// Barriered reports whether PlanRead is currently blocked on a finish
// barrier.
func (f *FSM) Barriered() bool { return f.barrier && len(f.interpList) > 0 }

// DrainOne attempts to hand the head of the interpreter-output list to
// MotionTarget, honoring the precondition computed from motionDone/ioDone
// (§4.10). Returns false if there is nothing to drain, the precondition
// is unsatisfied, or single-step mode is waiting for Step(). A finish
// barrier does not stop queued segments from draining.
func (f *FSM) DrainOne(motionDone, ioDone bool) (bool, error) {
	if len(f.interpList) == 0 {
		if f.barrier && motionDone && ioDone {
			f.barrier = false
		}
		return false, nil
	}

	if f.waitForStep {
		f.State.ExecState = motion.ExecWaitingForPause
		return false, nil
	}

	seg := f.interpList[0]
	pre := precondition(seg.Kind)
	switch pre {
	case waitMotionAndIO:
		if !motionDone || !ioDone {
			f.State.ExecState = motion.ExecWaitingForMotionAndIO
			return false, nil
		}
	case waitMotion:
		if !motionDone {
			f.State.ExecState = motion.ExecWaitingForMotion
			return false, nil
		}
	case waitIO:
		if !ioDone {
			f.State.ExecState = motion.ExecWaitingForIO
			return false, nil
		}
	case waitDelay:
		f.State.ExecState = motion.ExecWaitingForDelay
	}

	if err := f.target.Enqueue(seg, f.lastEnd); err != nil {
		return false, err
	}
	f.lastEnd = seg.End
	f.currentLineID = seg.LineID
	f.interpList = f.interpList[1:]
	f.State.ExecState = motion.ExecDone

	// Single-step discipline (§4.10): once armed, every accepted command
	// sets wait-for-step on the line it just executed; Step() clears it
	// for exactly the next drain.
	if f.stepActive {
		f.waitForStep = true
	}

	return true, nil
}

// StartStep arms single-step mode: further drains wait for a Step() call,
// and each Step() releases exactly one drain. Line ids are not compared,
// so a line that produced several segments takes one Step() per segment.
func (f *FSM) StartStep() {
	f.stepActive = true
	f.stepLineID = f.currentLineID
	f.waitForStep = true
}

// Step clears the wait-for-step flag for one more drained segment.
func (f *FSM) Step() {
	if f.stepActive {
		f.stepLineID = f.currentLineID
		f.waitForStep = false
	}
}

type precond int

const (
	waitMotionAndIO precond = iota
	waitMotion
	waitIO
	waitDelay
)

// precondition maps a queued segment kind to its exec-state precondition
// (§4.10's bullet list).
func precondition(kind motion.SegmentKind) precond {
	switch kind {
	case motion.SegProbe, motion.SegRigidTap:
		return waitMotionAndIO
	case motion.SegLine, motion.SegArc, motion.SegSetTermCond, motion.SegSetSpindleSync:
		return waitIO
	case motion.SegSyncDigitalOut, motion.SegSyncAnalogOut:
		return waitMotion
	case motion.SegPause:
		return waitDelay
	}
	return waitMotionAndIO
}
