package stepgen

import (
	"testing"

	"cncmotion/core"
	"cncmotion/motion"
	"cncmotion/ringbuf"
)

type mockGPIO struct {
	pins map[core.GPIOPin]bool
}

func newMockGPIO() *mockGPIO { return &mockGPIO{pins: make(map[core.GPIOPin]bool)} }

func (m *mockGPIO) ConfigureOutput(pin core.GPIOPin) error         { return nil }
func (m *mockGPIO) ConfigureInputPullUp(pin core.GPIOPin) error    { return nil }
func (m *mockGPIO) ConfigureInputPullDown(pin core.GPIOPin) error  { return nil }
func (m *mockGPIO) SetPin(pin core.GPIOPin, value bool) error      { m.pins[pin] = value; return nil }
func (m *mockGPIO) GetPin(pin core.GPIOPin) (bool, error)          { return m.pins[pin], nil }
func (m *mockGPIO) ReadPin(pin core.GPIOPin) bool                  { return m.pins[pin] }

func TestTickEmptyRingSetsUnderrun(t *testing.T) {
	ring := ringbuf.New(4)
	gpio := newMockGPIO()
	sg := New(ring, []AxisPins{{Step: 1, Dir: 2}}, gpio, 1)

	sg.Tick()

	if !sg.Underrun() {
		t.Errorf("Underrun() = false after ticking an empty ring, want true")
	}
}

func TestTickAdvancesStepCountOnOverflow(t *testing.T) {
	ring := ringbuf.New(4)
	gpio := newMockGPIO()
	sg := New(ring, []AxisPins{{Step: 1, Dir: 2}}, gpio, 1)

	seg := motion.StepSegment{}
	seg.Adder[0] = 1 << 31 // overflows every other tick
	seg.Direction[0] = true
	if err := ring.Publish(seg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := ring.Publish(seg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sg.Tick()
	sg.Tick()

	if got := sg.StepCount(0); got != 1 {
		t.Errorf("StepCount(0) = %d, want 1", got)
	}
	if sg.Underrun() {
		t.Errorf("Underrun() = true, want false after successful ticks")
	}
}

func TestTickSetsDirectionWithPolarity(t *testing.T) {
	ring := ringbuf.New(4)
	gpio := newMockGPIO()
	sg := New(ring, []AxisPins{{Step: 1, Dir: 2, DirPolarity: true}}, gpio, 1)

	seg := motion.StepSegment{}
	seg.Direction[0] = true
	if err := ring.Publish(seg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sg.Tick()

	if gpio.pins[2] != false {
		t.Errorf("dir pin = %v, want false (direction XOR polarity)", gpio.pins[2])
	}
}

func TestPosErrorTracksCmdPosition(t *testing.T) {
	ring := ringbuf.New(4)
	gpio := newMockGPIO()
	sg := New(ring, []AxisPins{{Step: 1, Dir: 2}}, gpio, 1)

	seg := motion.StepSegment{}
	seg.CmdPos[0] = 100
	if err := ring.Publish(seg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sg.Tick()

	if got := sg.PosError(0); got != 100 {
		t.Errorf("PosError(0) = %d, want 100 (no steps emitted yet)", got)
	}
}
