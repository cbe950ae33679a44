package motionloop

import (
	"math"
	"testing"

	"cncmotion/cmdchan"
	"cncmotion/core"
	"cncmotion/kinematics"
	"cncmotion/motion"
	"cncmotion/ringbuf"
	"cncmotion/stepgen"
)

type mockGPIO struct{ pins map[core.GPIOPin]bool }

func newMockGPIO() *mockGPIO { return &mockGPIO{pins: make(map[core.GPIOPin]bool)} }
func (m *mockGPIO) ConfigureOutput(core.GPIOPin) error        { return nil }
func (m *mockGPIO) ConfigureInputPullUp(core.GPIOPin) error   { return nil }
func (m *mockGPIO) ConfigureInputPullDown(core.GPIOPin) error { return nil }
func (m *mockGPIO) SetPin(p core.GPIOPin, v bool) error       { m.pins[p] = v; return nil }
func (m *mockGPIO) GetPin(p core.GPIOPin) (bool, error)       { return m.pins[p], nil }
func (m *mockGPIO) ReadPin(p core.GPIOPin) bool               { return m.pins[p] }

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	kin, err := kinematics.NewIdentity(3)
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	ring := ringbuf.New(8)
	sg := stepgen.New(ring, []stepgen.AxisPins{{Step: 1, Dir: 2}, {Step: 3, Dir: 4}, {Step: 5, Dir: 6}}, newMockGPIO(), 1)
	ch := cmdchan.New()
	l := New(3, kin, ch, ring, sg)
	l.TServoNs = 1_000_000
	for i := range l.StepsPerUnit {
		l.StepsPerUnit[i] = 1000
	}
	for _, j := range l.Joints {
		j.Activate()
		j.SetMaxVelocity(100)
		j.SetMaxAcceleration(1000)
		j.SetMinLimit(-1000)
		j.SetMaxLimit(1000)
	}
	return l
}

func TestTickFreeModeJogMovesJoint(t *testing.T) {
	l := newTestLoop(t)
	l.Mode = motion.ModeFree
	l.Free[0].Enabled = true
	l.Free[0].PosCmd = 10
	l.Free[0].VelLim = 50

	for i := 0; i < 1000; i++ {
		l.Tick(0.001, IOInputs{})
	}

	if l.Joints[0].Joint.PosCmd <= 0 {
		t.Errorf("PosCmd = %v after jogging, want > 0", l.Joints[0].Joint.PosCmd)
	}
}

func TestTickPublishesRingSlotEachTick(t *testing.T) {
	l := newTestLoop(t)
	before := l.Ring.Size()
	l.Tick(0.001, IOInputs{})
	if l.Ring.Size() <= before && l.Ring.Capacity() > before {
		t.Errorf("Ring.Size() did not increase after Tick: before=%d after=%d", before, l.Ring.Size())
	}
}

func TestHardLimitRaisesMotionError(t *testing.T) {
	l := newTestLoop(t)
	io := IOInputs{}
	io.LimitPos[0] = true
	l.Tick(0.001, io)
	if !l.MotionError {
		t.Errorf("MotionError = false after tripping a hard limit, want true")
	}
}

func TestJogContCommandMovesJointTowardSign(t *testing.T) {
	l := newTestLoop(t)
	l.Mode = motion.ModeFree

	var payload [cmdchan.PayloadSize]byte
	payload[0] = 0
	bits := math.Float64bits(10)
	for i := 0; i < 8; i++ {
		payload[1+i] = byte(bits >> (8 * i))
	}
	l.Chan.ForcePublish(cmdchan.MsgJogCont, payload[:])

	for i := 0; i < 1000; i++ {
		l.Tick(0.001, IOInputs{})
	}

	if l.Joints[0].Joint.PosCmd <= 0 {
		t.Errorf("PosCmd = %v after jog-cont, want > 0", l.Joints[0].Joint.PosCmd)
	}
}

func TestCoordinatedMoveExceedingSoftLimitRaisesMotionErrorAndHoldsPosition(t *testing.T) {
	l := newTestLoop(t)
	l.Mode = motion.ModeCoordinated
	for _, j := range l.Joints {
		j.SetMinLimit(-100)
		j.SetMaxLimit(100)
	}

	seg := &motion.MotionSegment{
		Kind:   motion.SegLine,
		End:    motion.PoseFromArray([9]float64{150, 0, 0, 0, 0, 0, 0, 0, 0}),
		ReqVel: 20,
		Accel:  100,
		Term:   motion.TermExactStop,
	}
	if err := l.Traj.Enqueue(seg, motion.Pose{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for i := 0; i < 10000; i++ {
		l.Tick(0.001, IOInputs{})
		if l.Joints[0].Joint.PosCmd > 100 {
			t.Fatalf("tick %d: PosCmd[0] = %v, want <= 100", i, l.Joints[0].Joint.PosCmd)
		}
	}

	if !l.MotionError {
		t.Errorf("MotionError = false after a move past the soft limit, want true")
	}
	if l.Traj.Len() != 0 {
		t.Errorf("Traj.Len() = %d after a rejected move, want 0 (queue emptied)", l.Traj.Len())
	}
}

func TestInterpolateSmoothsRawSetpointsTowardTarget(t *testing.T) {
	l := newTestLoop(t)
	l.Mode = motion.ModeFree
	l.Free[0].Enabled = true
	l.Free[0].PosCmd = 50
	l.Free[0].VelLim = 50

	for i := 0; i < 2000; i++ {
		l.Tick(0.001, IOInputs{})
	}

	if got := l.Joints[0].Joint.PosCmd; math.Abs(got-50) > 0.5 {
		t.Errorf("PosCmd[0] = %v after settling, want close to 50", got)
	}
	if l.Splines[0] == nil {
		t.Fatalf("Splines[0] is nil")
	}
}

func TestLatestReflectsMostRecentTick(t *testing.T) {
	l := newTestLoop(t)
	io := IOInputs{}
	io.LimitNeg[1] = true
	l.Tick(0.001, io)

	st := l.Latest()
	if !st.MotionError {
		t.Errorf("Latest().MotionError = false, want true after tripping a limit")
	}
}
