package freeplan

import (
	"testing"

	"cncmotion/motion"
)

func TestStepReachesTarget(t *testing.T) {
	p := &Planner{Enabled: true, PosCmd: 10, VelLim: 5}
	dt := 0.01
	for i := 0; i < 10000 && !p.AtTarget(); i++ {
		p.Step(dt, 50)
	}
	if !p.AtTarget() {
		t.Fatalf("Step never reached target: pos=%v vel=%v", p.CurrentPos, p.CurrentVel)
	}
}

func TestJogOKRejectsWhenNotFreeMode(t *testing.T) {
	j := &motion.Joint{MinPosLimit: -10, MaxPosLimit: 10}
	in := JogInputs{ModeFree: false, MotionEnable: true, FeedScale: 1, Direction: 1}
	if JogOK(in, j) {
		t.Errorf("JogOK = true with ModeFree=false, want false")
	}
}

func TestJogOKRejectsLowFeedScale(t *testing.T) {
	j := &motion.Joint{MinPosLimit: -10, MaxPosLimit: 10}
	in := JogInputs{ModeFree: true, MotionEnable: true, FeedScale: 1e-5, Direction: 1}
	if JogOK(in, j) {
		t.Errorf("JogOK = true with feed-scale below 1e-4, want false")
	}
}

func TestJogOKRejectsAtPositiveLimit(t *testing.T) {
	j := &motion.Joint{MinPosLimit: -10, MaxPosLimit: 10, AtPositiveLimit: true}
	in := JogInputs{ModeFree: true, MotionEnable: true, FeedScale: 1, Direction: 1}
	if JogOK(in, j) {
		t.Errorf("JogOK = true jogging into an active positive limit, want false")
	}
}

func TestHomingSequenceReachesFinished(t *testing.T) {
	j := &motion.Joint{
		MinPosLimit: -100, MaxPosLimit: 100,
		HomeSearchVel: 10, HomeLatchVel: 1, Home: 0, HomeOffset: 0,
		AccelLimit: 1000,
	}
	p := &Planner{}
	in := HomeInputs{}
	p.StartHoming(j, in)

	dt := 0.001
	finished := false
	for i := 0; i < 2000000 && !finished; i++ {
		switch p.State() {
		case motion.HomeInitialSearch:
			if p.CurrentPos >= 50 {
				in.SwitchActive = true
			}
		case motion.HomeWaitForIndex, motion.HomeFinalBackoff:
			if !in.SwitchActive {
				// already released
			} else if p.CurrentPos < 49 {
				in.SwitchActive = false
			}
		}
		finished = p.StepHoming(j, in, dt)
	}
	if !finished {
		t.Fatalf("homing sequence never reached FINISHED, stuck at %v", p.State())
	}
	if !j.Homed {
		t.Errorf("Homed = false after FINISHED")
	}
}
