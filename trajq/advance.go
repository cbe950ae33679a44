package trajq

import (
	"math"

	"cncmotion/motion"
)

// AdvanceResult reports what happened during one servo-tick advance of
// the head segment.
type AdvanceResult struct {
	Pose       motion.Pose
	SegmentDone bool
	ProbeTripped bool
}

// Advance moves the head segment forward by one servo tick, per §4.7:
//
//	Δs = clamp(v*dt + 1/2*a*dt^2, 0, remaining)
//
// v is the segment's current velocity estimate (vel), scaled by
// feed-scale/spindle-scale/adaptive-feed and gated by feed-hold. These
// multipliers apply to every segment; the head's Enables bitmask is not
// consulted. Returns the new head pose and whether the head segment has
// completed.
func (q *Queue) Advance(vel float64, dt float64, m Multipliers) AdvanceResult {
	head := q.Head()
	if head == nil || q.paused || q.aborting {
		return AdvanceResult{}
	}

	if head.FeedPerRev > 0 {
		// Spindle-sync: handled by AdvanceByRevs instead of dt.
		return AdvanceResult{Pose: head.PoseAt(head.Remaining())}
	}

	effectiveVel := vel * m.FeedScale * m.SpindleScale
	if m.AdaptiveFeed > 0 {
		effectiveVel *= m.AdaptiveFeed
	}
	if m.FeedHold {
		effectiveVel = 0
	}

	ds := effectiveVel*dt + 0.5*head.Accel*dt*dt
	if ds < 0 {
		ds = 0
	}
	remaining := head.Remaining()
	if ds > remaining {
		ds = remaining
	}
	head.Advance(ds)

	result := AdvanceResult{Pose: head.PoseAt(head.Length() - head.Remaining())}

	if head.Kind == motion.SegProbe {
		// Probe tripping is reported by the caller (MotionLoop owns the
		// HAL read); TripProbe below records the latch.
	}

	if head.Done() {
		result.SegmentDone = true
	}
	return result
}

// AdvanceByRevs drives a spindle-synced segment (G33/G76) by spindle
// revolutions rather than dt: Δs = feed_per_rev * Δrevs (§4.7).
func (q *Queue) AdvanceByRevs(deltaRevs float64) AdvanceResult {
	head := q.Head()
	if head == nil || head.FeedPerRev <= 0 {
		return AdvanceResult{}
	}
	ds := head.FeedPerRev * deltaRevs
	if ds < 0 {
		ds = 0
	}
	remaining := head.Remaining()
	if ds > remaining {
		ds = remaining
	}
	head.Advance(ds)

	result := AdvanceResult{Pose: head.PoseAt(head.Length() - head.Remaining())}
	if head.Done() {
		result.SegmentDone = true
	}
	return result
}

// TripProbe latches a probe trip on the head segment: records the actual
// position at trip and marks the segment complete with ProbeTripped set
// (§4.7).
func (q *Queue) TripProbe(actualPos motion.Pose) {
	head := q.Head()
	if head == nil || head.Kind != motion.SegProbe {
		return
	}
	head.ProbeTripped = true
	head.ProbedPos = actualPos
	head.Advance(head.Remaining())
}

// DecelerateToStop runs one tick of emergency deceleration on the head
// segment at its own acceleration limit, for Abort's "decelerate the head
// to rest" requirement (§4.7). Returns the velocity after this tick; the
// caller should keep calling until it returns 0, then call Abort.
func (q *Queue) DecelerateToStop(currentVel, dt float64) float64 {
	head := q.Head()
	if head == nil {
		return 0
	}
	dv := head.Accel * dt
	newVel := currentVel - dv
	if newVel < 0 {
		newVel = 0
	}
	ds := currentVel*dt - 0.5*head.Accel*dt*dt
	if ds < 0 {
		ds = 0
	}
	remaining := head.Remaining()
	if ds > remaining {
		ds = remaining
	}
	head.Advance(ds)
	return newVel
}

// RigidTapReversal reports whether a rigid-tap segment has reached its
// commanded endpoint and should now reverse direction and the spindle
// (§4.7): the segment completes only when the spindle has returned and
// the axis returns to start, which this function does not itself drive —
// it only signals the reversal point.
func RigidTapReversal(seg *motion.MotionSegment) bool {
	return seg.Kind == motion.SegRigidTap && seg.Done()
}

// CornerTolOK reports whether blending seg into next at the computed VEnd
// keeps the geometric deviation within seg.Tol for a CONTINUOUS
// termination, using the chord-sagitta approximation deviation ~=
// v^2/(8*a) at the corner (a conservative bound consistent with the
// forward/backward velocity caps already applied).
func CornerTolOK(seg *motion.MotionSegment) bool {
	if seg.Term != motion.TermContinuous {
		return true
	}
	deviation := (seg.VEnd * seg.VEnd) / (8 * math.Max(seg.Accel, 1e-9))
	return deviation <= seg.Tol
}
