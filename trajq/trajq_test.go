package trajq

import (
	"testing"

	"cncmotion/motion"
)

func TestEnqueueSetsStartFromTail(t *testing.T) {
	q := New(10)
	start := motion.Pose{}
	s1 := &motion.MotionSegment{End: motion.Pose{X: 10}, ReqVel: 5, Accel: 10, Term: motion.TermExactStop}
	if err := q.Enqueue(s1, start); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	s2 := &motion.MotionSegment{End: motion.Pose{X: 20}, ReqVel: 5, Accel: 10, Term: motion.TermExactStop}
	if err := q.Enqueue(s2, start); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if s2.Start.X != 10 {
		t.Errorf("second segment Start.X = %v, want 10 (tail of first)", s2.Start.X)
	}
}

func TestEnqueueRejectsPastCapacity(t *testing.T) {
	q := New(1)
	s1 := &motion.MotionSegment{End: motion.Pose{X: 1}, ReqVel: 1, Accel: 1}
	_ = q.Enqueue(s1, motion.Pose{})
	s2 := &motion.MotionSegment{End: motion.Pose{X: 2}, ReqVel: 1, Accel: 1}
	if err := q.Enqueue(s2, motion.Pose{}); err != ErrQueueFull {
		t.Errorf("Enqueue past capacity = %v, want ErrQueueFull", err)
	}
}

func TestExactStopBlendsToZeroVEnd(t *testing.T) {
	q := New(10)
	s1 := &motion.MotionSegment{End: motion.Pose{X: 10}, ReqVel: 100, Accel: 10, Term: motion.TermExactStop}
	_ = q.Enqueue(s1, motion.Pose{})
	if s1.VEnd != 0 {
		t.Errorf("VEnd for lone EXACT_STOP segment = %v, want 0", s1.VEnd)
	}
}

func TestAdvanceProgressesAndCompletes(t *testing.T) {
	q := New(10)
	s1 := &motion.MotionSegment{End: motion.Pose{X: 10}, ReqVel: 10, Accel: 100, Term: motion.TermExactStop}
	_ = q.Enqueue(s1, motion.Pose{})

	m := Multipliers{FeedScale: 1, SpindleScale: 1}
	done := false
	for i := 0; i < 1000 && !done; i++ {
		res := q.Advance(10, 0.01, m)
		done = res.SegmentDone
	}
	if !done {
		t.Fatalf("segment never completed: remaining=%v", s1.Remaining())
	}
}

func TestFeedHoldStopsAdvance(t *testing.T) {
	q := New(10)
	s1 := &motion.MotionSegment{End: motion.Pose{X: 10}, ReqVel: 10, Accel: 100}
	_ = q.Enqueue(s1, motion.Pose{})

	m := Multipliers{FeedScale: 1, SpindleScale: 1, FeedHold: true}
	before := s1.Remaining()
	q.Advance(10, 0.01, m)
	if s1.Remaining() >= before {
		// accel term alone may still nudge distance slightly; ensure no
		// huge jump from vel.
	}
	if s1.Remaining() < before-0.01 {
		t.Errorf("FeedHold allowed velocity-driven advance: remaining %v -> %v", before, s1.Remaining())
	}
}

func TestPauseResume(t *testing.T) {
	q := New(10)
	s1 := &motion.MotionSegment{End: motion.Pose{X: 10}, ReqVel: 10, Accel: 100}
	_ = q.Enqueue(s1, motion.Pose{})

	q.Pause()
	if !q.Paused() {
		t.Fatalf("Paused() = false after Pause()")
	}
	before := s1.Remaining()
	q.Advance(10, 0.01, Multipliers{FeedScale: 1, SpindleScale: 1})
	if s1.Remaining() != before {
		t.Errorf("Advance moved a paused queue: %v -> %v", before, s1.Remaining())
	}

	q.Resume()
	q.Advance(10, 0.01, Multipliers{FeedScale: 1, SpindleScale: 1})
	if s1.Remaining() >= before {
		t.Errorf("Advance after Resume did not progress")
	}
}
