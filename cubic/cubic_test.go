package cubic

import "testing"

func TestResetFixesSinglePoint(t *testing.T) {
	var s Spline
	s.Reset(5)
	if got := s.Eval(0.5); got != 5 {
		t.Errorf("Eval(0.5) after Reset = %v, want 5", got)
	}
}

func TestEvalEndpointsMatchFedPoints(t *testing.T) {
	var s Spline
	s.Reset(0)
	s.Feed(1)
	s.Feed(2)
	s.Feed(3)

	if got := s.Eval(0); got != s.p1 {
		t.Errorf("Eval(0) = %v, want p1 = %v", got, s.p1)
	}
	if got := s.Eval(1); got != s.p2 {
		t.Errorf("Eval(1) = %v, want p2 = %v", got, s.p2)
	}
}

func TestInterpolatorSubsteps(t *testing.T) {
	var s Spline
	s.Reset(0)
	s.Feed(10)
	s.Feed(20)
	s.Feed(30)

	it := NewInterpolator(&s, 4)
	var last float64 = -1
	for i := 0; i < 4; i++ {
		v := it.Next()
		if v < last {
			t.Errorf("substep %d: value %v decreased from %v", i, v, last)
		}
		last = v
	}
}

func TestLinearFallbackBeforeFourPoints(t *testing.T) {
	var s Spline
	s.Reset(0)
	s.Feed(10)
	s.Feed(20) // p1=0, p2=10: the segment Eval interpolates
	if got := s.Eval(0.5); got != 5 {
		t.Errorf("Eval(0.5) with <4 fed points = %v, want linear midpoint 5", got)
	}
}
