// Package ringbuf implements C2: the fixed-capacity single-producer/
// single-consumer queue of StepSegments between MotionLoop (servo domain)
// and StepgenFIQ (FIQ domain). Grounded on the teacher's stepper command
// queue idiom (core/stepper.go, standalone/stepgen/stepper.go) and the
// design notes' explicit rule: "the only safe model is SPSC lock-free
// with one-sided memory ordering; do not adopt locking here."
package ringbuf

import (
	"errors"
	"sync/atomic"

	"cncmotion/motion"
)

// ErrBufferFull is returned by Publish when the ring is at capacity
// (§4.2, boundary case: "Ringbuffer full -> producer receives BufferFull,
// no slot corrupted").
var ErrBufferFull = errors.New("ringbuf: buffer full")

// Ring is a fixed-capacity SPSC ring buffer of StepSegments. putPtr is
// written only by Publish (producer, MotionLoop); headPtr only by Advance
// (consumer, StepgenFIQ). size is written by both sides: Publish
// increments it and Advance decrements it, so it is an atomic counter.
// The update flag is only a publish notification; ConsumeUpdate clears
// it and does not change size.
type Ring struct {
	slots []motion.StepSegment

	capacity int
	putPtr   int
	headPtr  int

	size atomic.Int32 // incremented by Publish, decremented by Advance

	// update is set by the producer after publishing a slot and cleared
	// by the consumer after observing it, per §4.2's memory-ordering
	// rule: "producer publishes slot contents before setting update;
	// consumer reads update before observing slot."
	update atomic.Bool

	underrun atomic.Bool
}

// New creates a ring of the given capacity (default small, e.g. 16;
// tunable up to 128 per §4.2).
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 16
	}
	return &Ring{
		slots:    make([]motion.StepSegment, capacity),
		capacity: capacity,
	}
}

// Capacity returns the ring's fixed slot count.
func (r *Ring) Capacity() int { return r.capacity }

// Size returns the number of unconsumed slots. Safe to call from either
// side.
func (r *Ring) Size() int { return int(r.size.Load()) }

// Publish writes seg at put_ptr and advances put_ptr modulo capacity
// (producer side only). Fails with ErrBufferFull without touching the
// slot if the ring is at capacity.
func (r *Ring) Publish(seg motion.StepSegment) error {
	if int(r.size.Load()) >= r.capacity {
		return ErrBufferFull
	}
	r.slots[r.putPtr] = seg
	r.putPtr = (r.putPtr + 1) % r.capacity
	r.size.Add(1)
	r.update.Store(true)
	return nil
}

// PeekHead returns the current head slot and whether one is available
// (consumer side only).
func (r *Ring) PeekHead() (motion.StepSegment, bool) {
	if r.size.Load() == 0 {
		r.underrun.Store(true)
		return motion.StepSegment{}, false
	}
	r.underrun.Store(false)
	return r.slots[r.headPtr], true
}

// Advance consumes the head slot: wraps head, decrements size (consumer
// side only). It is a no-op (returns false) if the ring is already empty.
func (r *Ring) Advance() bool {
	if r.size.Load() == 0 {
		return false
	}
	r.headPtr = (r.headPtr + 1) % r.capacity
	r.size.Add(-1)
	return true
}

// ConsumeUpdate clears the producer's update flag after the consumer has
// observed a fresh publish, matching the one-sided ordering rule in
// §4.2: the consumer must read update before trusting slot contents, and
// clear it only after having done so.
func (r *Ring) ConsumeUpdate() bool {
	return r.update.Swap(false)
}

// Underrun reports whether the consumer found the ring empty on its most
// recent PeekHead (§4.1 consumption policy / §8 scenario 5).
func (r *Ring) Underrun() bool {
	return r.underrun.Load()
}

// PutIndex returns put_ptr mod capacity: the index of the next producer
// slot, exposed for the invariant in §8 ("put_ptr mod capacity is the
// index of the next producer slot").
func (r *Ring) PutIndex() int { return r.putPtr }
