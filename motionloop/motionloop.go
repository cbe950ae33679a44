// Package motionloop implements C8: the servo-period tick handler that
// orchestrates AxisState, FreePlanner, CubicInterp, TrajQueue, and
// CommandChannel. Grounded on the teacher's standalone/manager.go
// Manager.ProcessLine/Start orchestration idiom (now driving a fixed-rate
// servo tick instead of a byte-stream dispatch loop) and on
// core/scheduler.go's periodic-timer discipline for the tick's ordering
// guarantees (§5: servo never suspends, drops into a
// waiting-for-buffer micro-state on a full ring).
package motionloop

import (
	"math"
	"sync"

	"cncmotion/axis"
	"cncmotion/cmdchan"
	"cncmotion/cubic"
	"cncmotion/freeplan"
	"cncmotion/kinematics"
	"cncmotion/motion"
	"cncmotion/ringbuf"
	"cncmotion/stepgen"
	"cncmotion/trajq"
)

// IOInputs bundles one servo tick's HAL reads (§4.8 step 2, §6's HAL pin
// registry).
type IOInputs struct {
	LimitPos     [motion.MaxJoints]bool
	LimitNeg     [motion.MaxJoints]bool
	HomeSwitch   [motion.MaxJoints]bool
	IndexLatched [motion.MaxJoints]bool
	Probe        bool
	SpindleRevs  float64
	SpindleSpeed float64
	AdaptiveFeed float64
	FeedHold     bool
	FeedScaleEn  bool
	Enable       bool
	TrajWaitReady bool
}

// Status is the end-of-tick snapshot published via CommandChannel (§4.8
// step 7).
type Status struct {
	Mode        motion.Mode
	MotionError bool
	JointFerrored [motion.MaxJoints]bool
	JointPos      [motion.MaxJoints]float64
	QueueLen      int
	Homed         [motion.MaxJoints]bool
}

// Loop is C8.
type Loop struct {
	Joints []*axis.Axis
	Kin    kinematics.Kinematics
	Traj   *trajq.Queue
	Free   []*freeplan.Planner
	Splines []*cubic.Spline
	Interps []*cubic.Interpolator

	Ring    *ringbuf.Ring
	Stepgen *stepgen.Stepgen
	Chan    *cmdchan.Channel

	StepsPerUnit [motion.MaxJoints]float64
	TServoNs     int64

	Mode        motion.Mode
	MotionError bool
	waitingForBuffer bool

	feedScale    float64
	spindleScale float64
	overrides    Overrides

	nudgeDelay  [motion.MaxJoints]int
	lastSteps   [motion.MaxJoints]int64
	teleopVel   motion.Pose

	statusMu   sync.RWMutex
	lastStatus Status
}

// Overrides holds the operator-settable scale/enable switches (§4.8
// step 4, §6).
type Overrides struct {
	FeedHoldEnable     bool
	FeedScaleEnable    bool
	SpindleScaleEnable bool
	AdaptiveFeedEnable bool
}

// New constructs a Loop for n joints.
func New(n int, kin kinematics.Kinematics, chanl *cmdchan.Channel, ring *ringbuf.Ring, sg *stepgen.Stepgen) *Loop {
	l := &Loop{
		Kin:          kin,
		Traj:         trajq.New(1000),
		Chan:         chanl,
		Ring:         ring,
		Stepgen:      sg,
		feedScale:    1,
		spindleScale: 1,
	}
	for i := 0; i < n; i++ {
		l.Joints = append(l.Joints, axis.New())
		l.Free = append(l.Free, &freeplan.Planner{})
		l.Splines = append(l.Splines, &cubic.Spline{})
		l.Interps = append(l.Interps, cubic.NewInterpolator(l.Splines[i], 1))
	}
	return l
}

// Tick runs one complete servo-period iteration (§4.8, steps 1-7).
func (l *Loop) Tick(dt float64, io IOInputs) Status {
	l.drainCommands()
	l.updateLimitFlags(io)

	var setpoints [motion.MaxJoints]float64

	switch l.Mode {
	case motion.ModeCoordinated:
		setpoints = l.tickCoordinated(dt, io)
	case motion.ModeFree:
		setpoints = l.tickFree(dt, io)
	case motion.ModeTeleop:
		setpoints = l.tickTeleop(dt, io)
	}

	setpoints = l.interpolate(setpoints)
	l.applyBacklashAndPublish(setpoints, dt)
	l.nudgeFromStepgenFeedback()

	st := l.snapshot()
	l.statusMu.Lock()
	l.lastStatus = st
	l.statusMu.Unlock()
	return st
}

// Latest returns the most recent Tick's status snapshot. Safe to call
// from a goroutine other than the one driving Tick (e.g. httpstatus's
// HTTP handlers), which is the entire reason it exists separately from
// Tick's own return value.
func (l *Loop) Latest() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.lastStatus
}

func (l *Loop) drainCommands() {
	msg, ok := l.Chan.Receive()
	if !ok {
		return
	}
	l.dispatchCommand(msg)
}

func (l *Loop) dispatchCommand(msg cmdchan.Message) {
	switch msg.Type {
	case cmdchan.MsgAbort:
		l.Traj.Abort()
		l.MotionError = false
		l.resetInterpolators()
	case cmdchan.MsgEnable:
		for _, j := range l.Joints {
			j.Activate()
		}
	case cmdchan.MsgDisable:
		for _, j := range l.Joints {
			j.Deactivate()
		}
	case cmdchan.MsgModeFree:
		l.Mode = motion.ModeFree
		l.resetInterpolators()
	case cmdchan.MsgModeCoord:
		l.Mode = motion.ModeCoordinated
		l.resetInterpolators()
	case cmdchan.MsgModeTeleop:
		l.Mode = motion.ModeTeleop
		l.resetInterpolators()
	case cmdchan.MsgPause:
		l.Traj.Pause()
	case cmdchan.MsgResume:
		l.Traj.Resume()
	case cmdchan.MsgStep:
		l.Traj.Step()
	case cmdchan.MsgFeedScale:
		if len(msg.Payload) >= 8 {
			l.feedScale = decodeFloat(msg.Payload[:8])
		}
	case cmdchan.MsgSpindleScale:
		if len(msg.Payload) >= 8 {
			l.spindleScale = decodeFloat(msg.Payload[:8])
		}
	case cmdchan.MsgFeedHoldEnable:
		l.overrides.FeedHoldEnable = msg.Payload[0] != 0
	case cmdchan.MsgJogCont:
		l.dispatchJogCont(msg.Payload)
	case cmdchan.MsgJogIncr:
		l.dispatchJogIncr(msg.Payload)
	case cmdchan.MsgJogAbs:
		l.dispatchJogAbs(msg.Payload)
	case cmdchan.MsgHome:
		l.dispatchHome(msg.Payload)
	}
}

// jogAxis decodes the [axis (1 byte), value (8 bytes, float64 LE)] payload
// shape shared by the three jog message variants (§6).
func jogAxis(payload [cmdchan.PayloadSize]byte) (int, float64) {
	axis := int(payload[0])
	return axis, decodeFloat(payload[1:9])
}

func (l *Loop) dispatchJogCont(payload [cmdchan.PayloadSize]byte) {
	i, vel := jogAxis(payload)
	if i < 0 || i >= len(l.Free) {
		return
	}
	fp := l.Free[i]
	if vel == 0 {
		fp.Enabled = false
		return
	}
	far := 1e9
	if vel < 0 {
		far = -1e9
	}
	fp.VelLim = math.Abs(vel)
	fp.PosCmd = far
	fp.Enabled = true
}

func (l *Loop) dispatchJogIncr(payload [cmdchan.PayloadSize]byte) {
	i, delta := jogAxis(payload)
	if i < 0 || i >= len(l.Free) {
		return
	}
	fp := l.Free[i]
	fp.PosCmd = fp.CurrentPos + delta
	if fp.VelLim == 0 {
		fp.VelLim = l.Joints[i].Joint.VelocityLimit
	}
	fp.Enabled = true
}

func (l *Loop) dispatchJogAbs(payload [cmdchan.PayloadSize]byte) {
	i, target := jogAxis(payload)
	if i < 0 || i >= len(l.Free) {
		return
	}
	fp := l.Free[i]
	fp.PosCmd = target
	if fp.VelLim == 0 {
		fp.VelLim = l.Joints[i].Joint.VelocityLimit
	}
	fp.Enabled = true
}

func (l *Loop) dispatchHome(payload [cmdchan.PayloadSize]byte) {
	i := int(payload[0])
	if i < 0 || i >= len(l.Free) || i >= len(l.Joints) {
		return
	}
	l.Free[i].StartHoming(&l.Joints[i].Joint, freeplan.HomeInputs{})
	if i < len(l.Splines) {
		l.Splines[i].Reset(l.Joints[i].Joint.PosCmd)
	}
}

func decodeFloat(b []byte) float64 {
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return math.Float64frombits(bits)
}

func (l *Loop) updateLimitFlags(io IOInputs) {
	for i, j := range l.Joints {
		if i >= motion.MaxJoints {
			break
		}
		j.Joint.AtPositiveLimit = io.LimitPos[i]
		j.Joint.AtNegativeLimit = io.LimitNeg[i]
		if (io.LimitPos[i] || io.LimitNeg[i]) && !j.Joint.OverrideLimits && j.Joint.Enabled {
			l.MotionError = true
		}
		if j.Joint.CheckFerror() {
			l.MotionError = true
		}
	}
}

// holdCurrentPositions fills setpoints with each joint's already-committed
// PosCmd, used whenever coordinated mode has nothing new to command (an
// empty queue, or a rejected segment) so a tick without fresh trajectory
// output doesn't get mistaken for a command to return to zero.
func (l *Loop) holdCurrentPositions(setpoints *[motion.MaxJoints]float64) {
	for i, j := range l.Joints {
		if i >= motion.MaxJoints {
			break
		}
		setpoints[i] = j.Joint.PosCmd
	}
}

func (l *Loop) tickCoordinated(dt float64, io IOInputs) [motion.MaxJoints]float64 {
	var setpoints [motion.MaxJoints]float64
	l.holdCurrentPositions(&setpoints)
	head := l.Traj.Head()
	if head == nil {
		return setpoints
	}

	m := trajq.Multipliers{FeedScale: l.feedScale, SpindleScale: l.spindleScale, FeedHold: io.FeedHold && l.overrides.FeedHoldEnable}
	if io.AdaptiveFeed > 0 && l.overrides.AdaptiveFeedEnable {
		m.AdaptiveFeed = io.AdaptiveFeed
	} else {
		m.AdaptiveFeed = 1
	}

	var res trajq.AdvanceResult
	if head.FeedPerRev > 0 {
		res = l.Traj.AdvanceByRevs(io.SpindleRevs * l.spindleScale)
	} else {
		res = l.Traj.Advance(head.ReqVel, dt, m)
	}

	if head.Kind == motion.SegProbe && io.Probe {
		l.Traj.TripProbe(res.Pose)
	}

	joints, _, err := l.Kin.Inverse(res.Pose, 0)
	if err != nil {
		l.MotionError = true
		return setpoints
	}

	// §8 invariant 1: pos_cmd must stay within [min_limit, max_limit] for
	// every active, non-homing, non-override joint. Validate the whole
	// inverse-kinematics result before committing any of it, so a segment
	// that would push one joint out of range aborts the move instead of
	// partially applying it.
	for i, j := range l.Joints {
		if i >= motion.MaxJoints || i >= len(joints) {
			break
		}
		if j.Joint.Enabled && !j.Joint.Homing && !j.Joint.OverrideLimits && !j.Joint.WithinSoftLimits(joints[i]) {
			l.MotionError = true
			l.Traj.Abort()
			l.holdCurrentPositions(&setpoints)
			return setpoints
		}
	}

	for i, j := range l.Joints {
		if i >= motion.MaxJoints || i >= len(joints) {
			break
		}
		j.Joint.PosCmd = joints[i]
		setpoints[i] = joints[i]
	}

	if res.SegmentDone {
		l.Traj.PopHead()
	}
	return setpoints
}

// interpolate runs each joint's raw per-tick setpoint through its
// CubicInterp (C6) spline before it reaches backlash compensation and
// the ring buffer (§4.8 step 5: "Through CubicInterp, produce servo-rate
// joint setpoints"). Feeds the new endpoint and evaluates the
// interpolator's one substep per tick (NewInterpolator was constructed
// with rate=1), smoothing the setpoint stream rather than passing raw
// trajectory output straight through.
func (l *Loop) interpolate(raw [motion.MaxJoints]float64) [motion.MaxJoints]float64 {
	var out [motion.MaxJoints]float64
	for i, j := range l.Joints {
		if i >= motion.MaxJoints || i >= len(l.Splines) || i >= len(l.Interps) {
			break
		}
		l.Splines[i].Feed(raw[i])
		l.Interps[i].ResetSubstep()
		smoothed := l.Interps[i].Next()
		out[i] = smoothed
		j.Joint.PosCmd = smoothed
	}
	return out
}

// resetInterpolators clears every joint's spline to its current
// commanded position, discarding interpolation history. Called on any
// discontinuity per §4.6: abort, homing transitions, mode switch.
func (l *Loop) resetInterpolators() {
	for i, j := range l.Joints {
		if i >= len(l.Splines) {
			break
		}
		l.Splines[i].Reset(j.Joint.PosCmd)
	}
}

func (l *Loop) tickFree(dt float64, io IOInputs) [motion.MaxJoints]float64 {
	var setpoints [motion.MaxJoints]float64
	for i, j := range l.Joints {
		if i >= len(l.Free) {
			break
		}
		fp := l.Free[i]
		if j.Joint.Homing {
			in := freeplan.HomeInputs{
				SwitchActive: io.HomeSwitch[i],
				IndexLatched: io.IndexLatched[i],
			}
			fp.StepHoming(&j.Joint, in, dt)
		} else if fp.Enabled {
			fp.Step(dt, j.Joint.AccelLimit)
		}
		j.Joint.PosCmd = fp.CurrentPos
		setpoints[i] = fp.CurrentPos
	}
	return setpoints
}

func (l *Loop) tickTeleop(dt float64, io IOInputs) [motion.MaxJoints]float64 {
	var setpoints [motion.MaxJoints]float64
	// Teleop velocity integration is driven externally via SetTeleopVelocity;
	// here we simply integrate the last commanded velocity vector.
	pose := l.teleopVel
	joints, _, err := l.Kin.Inverse(pose, 0)
	if err != nil {
		l.MotionError = true
		return setpoints
	}
	for i := range l.Joints {
		if i >= len(joints) || i >= motion.MaxJoints {
			break
		}
		l.Joints[i].Joint.PosCmd += joints[i] * dt
		setpoints[i] = l.Joints[i].Joint.PosCmd
	}
	return setpoints
}

// SetTeleopVelocity sets the operator's velocity vector for teleop mode,
// clamped by the global velocity limit (§4.8 step 4).
func (l *Loop) SetTeleopVelocity(v motion.Pose, globalVelLimit float64) {
	speed := 0.0
	arr := v.Array()
	for _, c := range arr {
		speed += c * c
	}
	speed = math.Sqrt(speed)
	if speed > globalVelLimit && speed > 0 {
		scale := globalVelLimit / speed
		var scaled [9]float64
		for i, c := range arr {
			scaled[i] = c * scale
		}
		v = motion.PoseFromArray(scaled)
	}
	l.teleopVel = v
}

func (l *Loop) applyBacklashAndPublish(setpoints [motion.MaxJoints]float64, dt float64) {
	var seg motion.StepSegment
	for i, j := range l.Joints {
		if i >= motion.MaxJoints {
			break
		}
		velSign := 0
		if setpoints[i] > j.Joint.PosFb {
			velSign = 1
		} else if setpoints[i] < j.Joint.PosFb {
			velSign = -1
		}
		motorCmd := j.MotorCommand(setpoints[i], velSign, dt)
		j.Joint.MotorPosCmd = motorCmd

		steps := int64(motorCmd * l.StepsPerUnit[i])
		deltaSteps := steps - l.lastSteps[i]
		seg.CmdPos[i] = steps
		seg.Direction[i] = deltaSteps >= 0

		tServoNs := l.TServoNs
		if tServoNs <= 0 {
			tServoNs = int64(dt * 1e9)
		}
		seg.Adder[i] = computeAdder(deltaSteps, tServoNs)
	}
	seg.ScanSync = true

	if err := l.Ring.Publish(seg); err != nil {
		l.waitingForBuffer = true
		return
	}
	l.waitingForBuffer = false
	for i := range l.Joints {
		if i >= motion.MaxJoints {
			break
		}
		l.lastSteps[i] = seg.CmdPos[i]
	}
}

// computeAdder derives the DDS adder from a per-tick step delta, per §4.8
// step 5: adder = |delta_steps| * 2^31 / T_servo_ns, saturating at
// MaxUint32. The stepgen's ticks-per-servo ratio is not part of the
// formula.
func computeAdder(deltaSteps int64, tServoNs int64) uint32 {
	if tServoNs <= 0 {
		return 0
	}
	abs := deltaSteps
	if abs < 0 {
		abs = -abs
	}
	scaled := (abs << 31) / tServoNs
	if scaled > math.MaxUint32 {
		scaled = math.MaxUint32
	}
	return uint32(scaled)
}

func (l *Loop) nudgeFromStepgenFeedback() {
	for i := range l.Joints {
		if i >= motion.MaxJoints {
			break
		}
		posErr := l.Stepgen.PosError(i)
		if l.nudgeDelay[i] > 0 {
			l.nudgeDelay[i]--
			continue
		}
		if posErr > 1 {
			l.Joints[i].Joint.PosCmd -= 1.0 / l.StepsPerUnit[i]
			l.nudgeDelay[i] = l.Ring.Size()
		} else if posErr < -1 {
			l.Joints[i].Joint.PosCmd += 1.0 / l.StepsPerUnit[i]
			l.nudgeDelay[i] = l.Ring.Size()
		}
	}
}

func (l *Loop) snapshot() Status {
	var st Status
	st.Mode = l.Mode
	st.MotionError = l.MotionError
	st.QueueLen = l.Traj.Len()
	for i, j := range l.Joints {
		if i >= motion.MaxJoints {
			break
		}
		st.JointFerrored[i] = j.Joint.Ferrored
		st.JointPos[i] = j.Joint.PosCmd
		st.Homed[i] = j.Joint.Homed
	}
	return st
}
