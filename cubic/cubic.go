// Package cubic implements C6: a 4-point cubic (Catmull-Rom family)
// spline fed a new endpoint at the trajectory period and evaluated at the
// faster servo period to produce smooth intermediate positions.
// Grounded on the teacher's interpolation idiom in
// standalone/stepgen/stepper.go's MoveTo ramp (now generalized from a
// single linear ramp to a proper 4-point spline per §4.6) and on the
// design notes' requirement that a discontinuity (abort, homing
// transition, mode switch) resets the spline rather than blending through
// it.
package cubic

// Spline holds the last four fed endpoints p0..p3, where p1 is the
// segment currently being interpolated (between p1 and p2) and p0/p3
// provide tangent information, matching a standard Catmull-Rom
// parameterization.
type Spline struct {
	p0, p1, p2, p3 float64
	fed            int // number of Feed calls since the last Reset, capped at 4
}

// Reset clears the spline to a single known position with no tangent
// information (§4.6: reset on any discontinuity).
func (s *Spline) Reset(pos float64) {
	s.p0, s.p1, s.p2, s.p3 = pos, pos, pos, pos
	s.fed = 1
}

// Feed pushes a new trajectory-period endpoint, shifting the spline
// window forward by one segment.
func (s *Spline) Feed(pos float64) {
	s.p0, s.p1, s.p2, s.p3 = s.p1, s.p2, s.p3, pos
	if s.fed < 4 {
		s.fed++
	}
}

// Eval evaluates the spline at fractional position t in [0,1] between p1
// and p2, using the standard Catmull-Rom basis. Before four points have
// been fed, falls back to linear interpolation between p1 and p2 so the
// very first trajectory segment still produces motion.
func (s *Spline) Eval(t float64) float64 {
	if s.fed < 4 {
		return s.p1 + (s.p2-s.p1)*t
	}
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * s.p1) +
		(-s.p0+s.p2)*t +
		(2*s.p0-5*s.p1+4*s.p2-s.p3)*t2 +
		(-s.p0+3*s.p1-3*s.p2+s.p3)*t3)
}

// Interpolator evaluates a Spline at `interpolation_rate` evenly spaced
// substeps per trajectory tick, producing one servo-rate setpoint per
// call to Next.
type Interpolator struct {
	spline *Spline
	rate   int
	idx    int
}

// NewInterpolator binds an Interpolator to a Spline with the given number
// of substeps per trajectory period.
func NewInterpolator(spline *Spline, rate int) *Interpolator {
	if rate < 1 {
		rate = 1
	}
	return &Interpolator{spline: spline, rate: rate}
}

// Next returns the next servo-rate setpoint. Call exactly `rate` times
// per trajectory tick; the caller must call Reset/Feed on the underlying
// Spline at trajectory-tick boundaries.
func (it *Interpolator) Next() float64 {
	t := float64(it.idx) / float64(it.rate)
	it.idx++
	if it.idx > it.rate {
		it.idx = it.rate
	}
	return it.spline.Eval(t)
}

// ResetSubstep restarts the substep counter at a new trajectory-tick
// boundary, without touching the spline's fed points.
func (it *Interpolator) ResetSubstep() {
	it.idx = 0
}
