// Package interpadapter implements C11: a thin translator from an
// interpreter's canonical-machining calls into MotionSegments appended to
// the TaskFSM queue, grounded on the teacher's gcode.Interpreter dispatch
// style (cncmotion/_examples/amken3d-gopper/standalone/gcode/interpreter.go)
// generalized from "drive a planner directly" to "enumerate canonical
// calls for a task-domain queue to gate."
package interpadapter

import (
	"errors"
	"io"

	"cncmotion/motion"
)

// CallKind enumerates the interpreter canonical-machining calls named in
// §4.11.
type CallKind int

const (
	CallStraightFeed CallKind = iota
	CallArcFeed
	CallStraightTraverse
	CallStraightProbe
	CallRigidTap
	CallDwell
	CallSetFeedRate
	CallSetSpindleSpeed
	CallUseToolLengthOffset
	CallSetOriginOffsets
	CallFinish // INTERP_EXECUTE_FINISH: barrier, see §4.10 execution pipeline
)

// Call is one canonical-machining call pulled from the interpreter.
type Call struct {
	Kind   CallKind
	LineID int

	End       motion.Pose
	Center    motion.Pose
	Normal    motion.Pose
	TurnCount int

	Vel, MaxVel, Accel float64
	FeedPerRev         float64
	Enables            motion.EnableBits

	DwellSeconds     float64
	FeedRate         float64
	SpindleSpeed     float64
	ToolLengthOffset float64
	OriginOffset     motion.Pose
}

// Source is the interpreter boundary contract (§1: "the interpreter is
// spec'd only as the producer of motion primitives"). Next returns one
// call per invocation and io.EOF once the program is exhausted. A
// non-EOF, non-nil error is an Interp-kind error (§7): the caller should
// capture the current line id and transition the task to waiting.
type Source interface {
	Next() (*Call, error)
}

// Enqueuer is the subset of TaskFSM's queue API the adapter needs. It is
// defined here, not in package task, so task need not import this
// package: task.FSM satisfies it structurally.
type Enqueuer interface {
	Enqueue(seg *motion.MotionSegment) error
	Finish()
}

// ErrRigidTapNotSynced is returned when a RIGID_TAP call arrives while
// spindle-sync mode is not in effect. The design notes' second open
// question adopts the source's implicit precondition explicitly: rigid
// tap requires spindle-sync mode before the segment begins, and it is
// rejected at enqueue time rather than failing mid-cycle.
var ErrRigidTapNotSynced = errors.New("interpadapter: rigid tap requires spindle-sync mode")

// Adapter pumps a Source into an Enqueuer, maintaining the interpreter's
// end-point model so repeated position queries without hardware feedback
// return the last commanded endpoint (§4.11).
type Adapter struct {
	src Source

	endpoint     motion.Pose
	feedRate     float64
	spindleSpeed float64
	toolOffset   float64
	originOffset motion.Pose
	spindleSync  bool
}

// New creates an Adapter reading calls from src.
func New(src Source) *Adapter {
	return &Adapter{src: src}
}

// Endpoint returns the last commanded endpoint.
func (a *Adapter) Endpoint() motion.Pose { return a.endpoint }

// SetSpindleSync turns spindle-sync mode (G33.1/G76 bracket) on or off,
// gating RIGID_TAP acceptance. Spindle sync starts off; task.FSM does not
// call this.
func (a *Adapter) SetSpindleSync(on bool) { a.spindleSync = on }

// Pump reads the next call and appends the resulting segment (if any) to
// q. It returns finished=true once the source is exhausted.
func (a *Adapter) Pump(q Enqueuer) (finished bool, err error) {
	call, err := a.src.Next()
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	seg, err := a.translate(call)
	if err != nil {
		return false, err
	}
	if seg == nil {
		return false, nil
	}
	if seg.Kind == SegFinishMarker {
		q.Finish()
		return false, nil
	}
	return false, q.Enqueue(seg)
}

// SegFinishMarker is a sentinel Kind value used only internally by
// translate to signal a barrier call; it is never stored in a queued
// segment because Pump calls q.Finish for a segment of this Kind instead
// of enqueueing it.
const SegFinishMarker = motion.SegmentKind(-1)

func (a *Adapter) translate(c *Call) (*motion.MotionSegment, error) {
	switch c.Kind {
	case CallStraightFeed, CallStraightTraverse:
		seg := &motion.MotionSegment{
			Kind:    motion.SegLine,
			Start:   a.endpoint,
			End:     c.End,
			ReqVel:  c.Vel,
			IniMaxVel: c.MaxVel,
			Accel:   c.Accel,
			Enables: c.Enables,
			LineID:  c.LineID,
		}
		a.endpoint = c.End
		return seg, nil

	case CallArcFeed:
		seg := &motion.MotionSegment{
			Kind:      motion.SegArc,
			Start:     a.endpoint,
			End:       c.End,
			Center:    c.Center,
			Normal:    c.Normal,
			TurnCount: c.TurnCount,
			ReqVel:    c.Vel,
			IniMaxVel: c.MaxVel,
			Accel:     c.Accel,
			Enables:   c.Enables,
			LineID:    c.LineID,
		}
		a.endpoint = c.End
		return seg, nil

	case CallStraightProbe:
		seg := &motion.MotionSegment{
			Kind:    motion.SegProbe,
			Start:   a.endpoint,
			End:     c.End,
			ReqVel:  c.Vel,
			IniMaxVel: c.MaxVel,
			Accel:   c.Accel,
			LineID:  c.LineID,
		}
		// Endpoint is not advanced: a probe's actual stopping point is
		// only known after it trips, and is latched by TrajQueue.
		return seg, nil

	case CallRigidTap:
		if !a.spindleSync {
			return nil, ErrRigidTapNotSynced
		}
		seg := &motion.MotionSegment{
			Kind:       motion.SegRigidTap,
			Start:      a.endpoint,
			End:        c.End,
			ReqVel:     c.Vel,
			IniMaxVel:  c.MaxVel,
			Accel:      c.Accel,
			FeedPerRev: c.FeedPerRev,
			LineID:     c.LineID,
		}
		return seg, nil

	case CallDwell:
		return &motion.MotionSegment{
			Kind:         motion.SegPause,
			Start:        a.endpoint,
			End:          a.endpoint,
			DwellSeconds: c.DwellSeconds,
			LineID:       c.LineID,
		}, nil

	case CallSetFeedRate:
		a.feedRate = c.FeedRate
		return nil, nil

	case CallSetSpindleSpeed:
		a.spindleSpeed = c.SpindleSpeed
		return nil, nil

	case CallUseToolLengthOffset:
		a.toolOffset = c.ToolLengthOffset
		return nil, nil

	case CallSetOriginOffsets:
		a.originOffset = c.OriginOffset
		return nil, nil

	case CallFinish:
		return &motion.MotionSegment{Kind: SegFinishMarker}, nil
	}

	return nil, nil
}
