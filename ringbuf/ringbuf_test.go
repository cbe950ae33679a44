package ringbuf

import (
	"testing"

	"cncmotion/motion"
)

func TestPublishAdvance(t *testing.T) {
	r := New(4)

	for i := 0; i < 4; i++ {
		seg := motion.StepSegment{}
		seg.CmdPos[0] = int64(i)
		if err := r.Publish(seg); err != nil {
			t.Fatalf("Publish(%d) = %v, want nil", i, err)
		}
	}

	if err := r.Publish(motion.StepSegment{}); err != ErrBufferFull {
		t.Fatalf("Publish on full ring = %v, want ErrBufferFull", err)
	}

	if got := r.Size(); got != 4 {
		t.Errorf("Size() = %d, want 4", got)
	}

	for i := 0; i < 4; i++ {
		seg, ok := r.PeekHead()
		if !ok {
			t.Fatalf("PeekHead() at step %d: ok=false", i)
		}
		if seg.CmdPos[0] != int64(i) {
			t.Errorf("PeekHead() at step %d: CmdPos[0]=%d, want %d", i, seg.CmdPos[0], i)
		}
		if !r.Advance() {
			t.Fatalf("Advance() at step %d returned false", i)
		}
	}

	if got := r.Size(); got != 0 {
		t.Errorf("Size() after draining = %d, want 0", got)
	}
}

func TestUnderrunOnEmpty(t *testing.T) {
	r := New(2)

	if _, ok := r.PeekHead(); ok {
		t.Fatalf("PeekHead() on empty ring returned ok=true")
	}
	if !r.Underrun() {
		t.Errorf("Underrun() = false after peeking empty ring, want true")
	}

	if err := r.Publish(motion.StepSegment{}); err != nil {
		t.Fatalf("Publish() = %v, want nil", err)
	}
	if _, ok := r.PeekHead(); !ok {
		t.Fatalf("PeekHead() after publish returned ok=false")
	}
	if r.Underrun() {
		t.Errorf("Underrun() = true after successful peek, want false")
	}
}

func TestAdvanceNeverPassesPutPtr(t *testing.T) {
	r := New(3)
	if r.Advance() {
		t.Errorf("Advance() on empty ring returned true, want false")
	}

	_ = r.Publish(motion.StepSegment{})
	if !r.Advance() {
		t.Errorf("Advance() after one publish returned false, want true")
	}
	if r.Advance() {
		t.Errorf("Advance() past put_ptr returned true, want false")
	}
}

func TestUpdateFlagProtocol(t *testing.T) {
	r := New(2)

	if r.ConsumeUpdate() {
		t.Errorf("ConsumeUpdate() before any publish = true, want false")
	}

	_ = r.Publish(motion.StepSegment{})
	if !r.ConsumeUpdate() {
		t.Errorf("ConsumeUpdate() after publish = false, want true")
	}
	if r.ConsumeUpdate() {
		t.Errorf("ConsumeUpdate() called twice = true on second call, want false")
	}
}
