package task

import (
	"testing"

	"cncmotion/cmdchan"
	"cncmotion/motion"
)

type fakeTarget struct {
	segs []*motion.MotionSegment
	fail bool
}

func (f *fakeTarget) Enqueue(seg *motion.MotionSegment, start motion.Pose) error {
	if f.fail {
		return errFake
	}
	seg.Start = start
	f.segs = append(f.segs, seg)
	return nil
}

var errFake = &fakeErr{}

type fakeErr struct{}

func (*fakeErr) Error() string { return "fake enqueue failure" }

func TestAdmitEstopRejectsMotion(t *testing.T) {
	f := New(&fakeTarget{}, cmdchan.New())
	f.State.State = motion.StateEstop
	if got := f.Submit(CmdJog); got != Rejected {
		t.Errorf("Submit(CmdJog) in estop = %v, want Rejected", got)
	}
	if got := f.Submit(CmdParamSet); got != AcceptedImmediately {
		t.Errorf("Submit(CmdParamSet) in estop = %v, want AcceptedImmediately", got)
	}
}

func TestAdmitManualRejectsRun(t *testing.T) {
	f := New(&fakeTarget{}, cmdchan.New())
	f.State.State = motion.StateOn
	f.State.Mode = motion.TaskManual
	if got := f.Submit(CmdRun); got != Rejected {
		t.Errorf("Submit(CmdRun) in manual = %v, want Rejected", got)
	}
	if got := f.Submit(CmdJog); got != AcceptedImmediately {
		t.Errorf("Submit(CmdJog) in manual = %v, want AcceptedImmediately", got)
	}
}

func TestAdmitAutoIdleQueuesToolOps(t *testing.T) {
	f := New(&fakeTarget{}, cmdchan.New())
	f.State.State = motion.StateOn
	f.State.Mode = motion.TaskAuto
	f.State.InterpState = motion.InterpIdle
	if got := f.Submit(CmdToolChange); got != Queued {
		t.Errorf("Submit(CmdToolChange) in auto/idle = %v, want Queued", got)
	}
	if got := f.Submit(CmdJog); got != Rejected {
		t.Errorf("Submit(CmdJog) in auto/idle = %v, want Rejected", got)
	}
}

func TestEnqueueRespectsQueueCap(t *testing.T) {
	f := New(&fakeTarget{}, cmdchan.New())
	for i := 0; i < interpQueueCap; i++ {
		if err := f.Enqueue(&motion.MotionSegment{}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if err := f.Enqueue(&motion.MotionSegment{}); err != ErrQueueFull {
		t.Errorf("Enqueue past cap = %v, want ErrQueueFull", err)
	}
}

func TestDrainOneWaitsOnPrecondition(t *testing.T) {
	target := &fakeTarget{}
	f := New(target, cmdchan.New())
	_ = f.Enqueue(&motion.MotionSegment{Kind: motion.SegLine})

	drained, err := f.DrainOne(true, false)
	if err != nil {
		t.Fatalf("DrainOne: %v", err)
	}
	if drained {
		t.Fatalf("DrainOne drained a line segment with ioDone=false, want blocked")
	}

	drained, err = f.DrainOne(true, true)
	if err != nil {
		t.Fatalf("DrainOne: %v", err)
	}
	if !drained {
		t.Fatalf("DrainOne did not drain once io is done")
	}
	if len(target.segs) != 1 {
		t.Errorf("target received %d segments, want 1", len(target.segs))
	}
}

func TestFinishBarrierClearsOnlyWhenDrainedAndDone(t *testing.T) {
	target := &fakeTarget{}
	f := New(target, cmdchan.New())
	_ = f.Enqueue(&motion.MotionSegment{Kind: motion.SegLine})
	f.Finish()

	if !f.Barriered() {
		t.Fatalf("Barriered() = false with segments still queued, want true")
	}

	f.DrainOne(true, true)
	if f.Barriered() {
		t.Fatalf("Barriered() = true after the only segment drained, want false")
	}
}

func TestStepModeBlocksPastSteppedLine(t *testing.T) {
	target := &fakeTarget{}
	f := New(target, cmdchan.New())
	_ = f.Enqueue(&motion.MotionSegment{Kind: motion.SegLine, LineID: 1})
	_ = f.Enqueue(&motion.MotionSegment{Kind: motion.SegLine, LineID: 2})

	f.DrainOne(true, true) // line 1 drains, currentLineID=1
	f.StartStep()          // arms step mode at line 1

	drained, _ := f.DrainOne(true, true)
	if drained {
		t.Fatalf("DrainOne drained line 2 while step-waiting, want blocked")
	}

	f.Step()
	drained, _ = f.DrainOne(true, true)
	if !drained {
		t.Fatalf("DrainOne did not drain line 2 after Step()")
	}
}
