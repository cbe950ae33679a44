package axis

import (
	"testing"

	"cncmotion/motion"
)

func TestActivateDeactivate(t *testing.T) {
	a := New()
	a.Activate()
	if !a.Joint.Enabled {
		t.Fatalf("Activate() did not set Enabled")
	}
	a.Deactivate()
	if a.Joint.Enabled {
		t.Fatalf("Deactivate() left Enabled set")
	}
}

func TestLoadCompRejectsDuplicateNominal(t *testing.T) {
	a := New()
	entries := []motion.CompEntry{
		{Nominal: 1.0, FwdTrim: 0.01},
		{Nominal: 1.0, FwdTrim: 0.02},
	}
	if err := a.LoadComp(entries); err == nil {
		t.Fatalf("LoadComp with duplicate nominal = nil error, want error")
	}
}

func TestMotorCommandRampBoundedByAcceleration(t *testing.T) {
	a := New()
	a.SetBacklash(0.1)
	a.SetMaxAcceleration(1.0)

	dt := 0.001
	first := a.MotorCommand(0, 1, dt)
	maxStep := 1.0 * dt * dt
	if first > maxStep+1e-12 {
		t.Errorf("MotorCommand ramped %v in one tick, want <= %v", first, maxStep)
	}
}

func TestSetHomingParams(t *testing.T) {
	a := New()
	a.SetHomingParams(0, 0.5, 10, 1, motion.HomeUseIndex|motion.HomeIsShared, 2)
	if a.Joint.HomeOffset != 0.5 {
		t.Errorf("HomeOffset = %v, want 0.5", a.Joint.HomeOffset)
	}
	if a.Joint.HomeFlags&motion.HomeUseIndex == 0 {
		t.Errorf("HomeUseIndex flag not set")
	}
	if a.Joint.HomeSequence != 2 {
		t.Errorf("HomeSequence = %v, want 2", a.Joint.HomeSequence)
	}
}
