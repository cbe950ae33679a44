// Package trajq implements C7: the bounded FIFO of MotionSegments with
// forward/backward blend look-ahead, per-tick arclength advancement, and
// the abort/pause/resume/step termination semantics. Grounded on the
// teacher's trapezoidal math in standalone/planner/planner.go
// (calculateTrapezoid), generalized here from a single move's one-shot
// accel/cruise/decel schedule to a continuous multi-segment blend that
// iterates corner velocities to a fixed point, per §4.7.
package trajq

import (
	"errors"
	"math"

	"cncmotion/motion"
)

// ErrQueueFull is returned by Enqueue when the bounded FIFO is at
// capacity.
var ErrQueueFull = errors.New("trajq: queue full")

// Multipliers bundles the per-tick scale factors Advance applies (§4.7).
// Advance applies them to every segment; a segment's Enables bitmask is
// not consulted.
type Multipliers struct {
	FeedScale    float64
	SpindleScale float64
	AdaptiveFeed float64
	FeedHold     bool
}

// Queue is the bounded trajectory FIFO.
type Queue struct {
	segs     []*motion.MotionSegment
	capacity int

	paused  bool
	pausedAtLineID int
	aborting bool
}

// New creates a Queue with the given bounded capacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Queue{capacity: capacity}
}

// Len returns the number of queued segments.
func (q *Queue) Len() int { return len(q.segs) }

// Enqueue appends a segment, filling in its Start from the current tail
// end (or startPos if the queue is empty), then re-runs the forward and
// backward blend passes to a fixed point (§4.7).
func (q *Queue) Enqueue(seg *motion.MotionSegment, startPos motion.Pose) error {
	if len(q.segs) >= q.capacity {
		return ErrQueueFull
	}
	if len(q.segs) == 0 {
		seg.Start = startPos
	} else {
		seg.Start = q.segs[len(q.segs)-1].End
	}
	q.segs = append(q.segs, seg)
	q.blend()
	return nil
}

// Head returns the segment currently being traversed, or nil if empty.
func (q *Queue) Head() *motion.MotionSegment {
	if len(q.segs) == 0 {
		return nil
	}
	return q.segs[0]
}

// PopHead removes the head segment once it is Done.
func (q *Queue) PopHead() {
	if len(q.segs) == 0 {
		return
	}
	q.segs = q.segs[1:]
}

// cornerVelocity computes EXACT_PATH's cornering speed: min over axes of
// a_i / |delta_dir_i| at the geometric tangent discontinuity between seg
// and its successor, per §4.7.
func cornerVelocity(seg, next *motion.MotionSegment, accel float64) float64 {
	d1 := seg.End.Sub(seg.Start)
	d2 := next.End.Sub(next.Start)
	len1 := seg.Start.Distance(seg.End)
	len2 := next.Start.Distance(next.End)
	if len1 <= 0 || len2 <= 0 {
		return 0
	}
	a1, a2 := d1.Array(), d2.Array()
	minVel := math.Inf(1)
	for i := range a1 {
		u1 := a1[i] / len1
		u2 := a2[i] / len2
		deltaDir := math.Abs(u1 - u2)
		if deltaDir < 1e-9 {
			continue
		}
		v := accel / deltaDir
		if v < minVel {
			minVel = v
		}
	}
	if math.IsInf(minVel, 1) {
		return math.Max(seg.ReqVel, next.ReqVel)
	}
	return minVel
}

// terminalVelocity computes a segment's declared-termination maximum v_end
// (§4.7): EXACT_STOP -> 0, EXACT_PATH -> cornering speed, CONTINUOUS(tau)
// -> a velocity bounded by the requested rate (the tolerance check itself
// is geometric and left to the caller once arc/line radii are known; here
// we apply the rate cap that keeps deviation proportionate to tau).
func terminalVelocity(seg, next *motion.MotionSegment) float64 {
	switch seg.Term {
	case motion.TermExactStop:
		return 0
	case motion.TermExactPath:
		if next == nil {
			return 0
		}
		return math.Min(cornerVelocity(seg, next, seg.Accel), seg.ReqVel)
	case motion.TermContinuous:
		if next == nil {
			return 0
		}
		v := math.Min(seg.ReqVel, next.ReqVel)
		if seg.Tol > 0 {
			// Larger tolerance permits faster blending; scale toward
			// ReqVel as Tol grows, never exceeding it.
			v = math.Min(v*(1+seg.Tol), seg.ReqVel)
		}
		return v
	}
	return 0
}

// blend runs the forward and backward passes to a fixed point: forward
// caps VEnd by acceleration from VStart, backward caps each successor's
// VStart (the junction velocity) by deceleration to that successor's
// VEnd. Finite because velocities only decrease (§4.7).
func (q *Queue) blend() {
	n := len(q.segs)
	if n == 0 {
		return
	}

	for i, s := range q.segs {
		var next *motion.MotionSegment
		if i+1 < n {
			next = q.segs[i+1]
		}
		s.VEnd = terminalVelocity(s, next)
	}

	for pass := 0; pass < n+1; pass++ {
		changed := false

		// Forward: cap VEnd by what's reachable accelerating from VStart
		// over the segment's length. The head's VStart reflects whatever
		// velocity the head has already reached mid-traversal; every
		// other segment's VStart is recomputed fresh each pass.
		vStart := q.segs[0].VStart
		for i := 0; i < n; i++ {
			s := q.segs[i]
			s.VStart = vStart
			reachable := math.Sqrt(vStart*vStart + 2*s.Accel*s.Length())
			if s.VEnd > reachable {
				s.VEnd = reachable
				changed = true
			}
			vStart = s.VEnd
		}

		// Backward: cap each successor's VStart (this segment's VEnd, the
		// junction velocity) by what the successor can shed decelerating
		// to its own VEnd over its length.
		for i := n - 2; i >= 0; i-- {
			s, succ := q.segs[i], q.segs[i+1]
			reachable := math.Sqrt(succ.VEnd*succ.VEnd + 2*succ.Accel*succ.Length())
			if s.VEnd > reachable {
				s.VEnd = reachable
				changed = true
			}
		}

		if !changed {
			break
		}
	}
}

// Abort empties the queue and clears the pause at once; it does not
// decelerate the head. DecelerateToStop is the per-tick deceleration
// helper; MotionLoop calls Abort directly, without it.
func (q *Queue) Abort() {
	q.segs = nil
	q.paused = false
	q.aborting = false
}

// Pause holds the queue at its current head without discarding it.
func (q *Queue) Pause() {
	if h := q.Head(); h != nil {
		q.pausedAtLineID = h.LineID
	}
	q.paused = true
}

// Resume restarts the queue from where it was paused.
func (q *Queue) Resume() {
	q.paused = false
}

// Paused reports whether the queue is currently held.
func (q *Queue) Paused() bool { return q.paused }

// Step clears the pause (single-step execution, §4.7). It does not
// re-pause by itself; re-pausing at the next line happens only when the
// caller invokes CheckStepBoundary, which nothing in this module does.
func (q *Queue) Step() {
	q.paused = false
}

// CheckStepBoundary pauses the queue whenever the head segment's LineID
// differs from the line recorded at the last Pause or re-pause, and
// records the new line.
func (q *Queue) CheckStepBoundary() {
	if h := q.Head(); h != nil && h.LineID != q.pausedAtLineID {
		q.paused = true
		q.pausedAtLineID = h.LineID
	}
}
