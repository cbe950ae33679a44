// Package stepgen implements C1: the real-time step-pulse emitter that
// drains ringbuf.Ring and converts DDS phase-accumulator overflow into
// step/direction GPIO edges, grounded on the teacher's stepper_commands.go
// / core/stepper.go timer-driven pulse generation adapted from a
// move-queue-of-intervals model to the ring-buffer-of-StepSegments model
// §4.1 specifies, and on core/gpio.go for the GPIO HAL boundary.
package stepgen

import (
	"sync/atomic"

	"cncmotion/core"
	"cncmotion/motion"
	"cncmotion/ringbuf"
)

// MaxPWMChannels bounds the PWM side channel (§4.1: "up to P PWM
// outputs").
const MaxPWMChannels = 8

// pwmPeriodTicks is the down-counter period, in FIQ ticks, for the PWM
// side channel (§4.1: "a period of 100 T_fiq ticks").
const pwmPeriodTicks = 100

// AxisPins is one axis's GPIO boundary: step/dir outputs plus the
// direction polarity bit StepgenFIQ XORs against direction[i] (§4.1).
type AxisPins struct {
	Step        core.GPIOPin
	Dir         core.GPIOPin
	DirPolarity bool
}

// pwmChannel is one down-counter PWM output (§4.1 PWM side channel).
type pwmChannel struct {
	pin      core.GPIOPin
	duty     atomic.Int32 // 0..pwmPeriodTicks, written directly by the producer
	counter  int32
}

// Stepgen is C1: the FIQ-domain handler. Tick must be invoked at the
// fixed period T_fiq (target 10us); in this host simulation it is driven
// by a time.Ticker in the caller (motionloop or a dedicated goroutine),
// since Go has no real FIQ/NMI context — the closest idiomatic
// approximation to a "periodic, non-preemptible handler" available to a
// userspace Go program is a single goroutine with no blocking calls and a
// high-resolution ticker, which is what this type assumes.
type Stepgen struct {
	ring  *ringbuf.Ring
	axes  []AxisPins
	gpio  core.GPIODriver
	pwm   [MaxPWMChannels]pwmChannel
	npwm  int

	accumulator [motion.MaxJoints]uint32
	direction   [motion.MaxJoints]bool
	stepCount   [motion.MaxJoints]atomic.Int64 // signed, read by the servo domain
	cmdPosition [motion.MaxJoints]atomic.Int64 // last-published cmd_position, for pos_error

	ticksInSegment uint32 // ticks consumed against the current head segment
	ticksPerServo  uint32 // T_servo / T_fiq, i.e. how many ticks one segment spans

	underrunSticky atomic.Bool
}

// New creates a Stepgen over the given ring, axis pin set, and GPIO HAL.
// ticksPerServo is the integer ratio T_servo/T_fiq (§5: "typically
// 100-1000").
func New(ring *ringbuf.Ring, axes []AxisPins, gpio core.GPIODriver, ticksPerServo uint32) *Stepgen {
	if ticksPerServo == 0 {
		ticksPerServo = 1
	}
	return &Stepgen{
		ring:          ring,
		axes:          axes,
		gpio:          gpio,
		ticksPerServo: ticksPerServo,
	}
}

// AddPWM registers a down-counter PWM channel and returns its index.
func (s *Stepgen) AddPWM(pin core.GPIOPin) int {
	idx := s.npwm
	s.pwm[idx].pin = pin
	s.npwm++
	return idx
}

// SetDuty sets a PWM channel's duty (0..100, mapped to 0..pwmPeriodTicks
// ticks on), written directly by the producer as §4.1 requires.
func (s *Stepgen) SetDuty(channel int, dutyPercent int) {
	if channel < 0 || channel >= s.npwm {
		return
	}
	ticks := int32(dutyPercent) * pwmPeriodTicks / 100
	s.pwm[channel].duty.Store(ticks)
}

// StepCount returns axis i's signed step counter (servo domain read).
func (s *Stepgen) StepCount(i int) int64 {
	if i < 0 || i >= motion.MaxJoints {
		return 0
	}
	return s.stepCount[i].Load()
}

// PosError computes pos_error[i] = cmd_position[i] - step_count[i]
// (§4.1 error feedback).
func (s *Stepgen) PosError(i int) int64 {
	if i < 0 || i >= motion.MaxJoints {
		return 0
	}
	return s.cmdPosition[i].Load() - s.stepCount[i].Load()
}

// Underrun reports whether the most recent tick found the ring empty.
func (s *Stepgen) Underrun() bool {
	return s.underrunSticky.Load()
}

// Tick is one FIQ-domain invocation (§4.1). It must not block, allocate,
// or log (§5): the only shared-memory touches are the ring buffer head,
// the GPIO driver's pins, step counters, and pos_error fields.
func (s *Stepgen) Tick() {
	seg, ok := s.ring.PeekHead()
	if !ok {
		s.underrunSticky.Store(true)
		s.tickPWM()
		return
	}
	s.underrunSticky.Store(false)

	for i := range s.axes {
		s.cmdPosition[i].Store(seg.CmdPos[i])

		// Direction GPIO is written only when the wanted level changes,
		// before the DDS advance below. A step edge emitted in the same
		// tick follows the direction change within that tick, not one
		// T_fiq later.
		wantDir := seg.Direction[i] != s.axes[i].DirPolarity
		if wantDir != s.direction[i] {
			s.direction[i] = wantDir
			s.gpio.SetPin(s.axes[i].Dir, wantDir)
		}

		prev := s.accumulator[i]
		s.accumulator[i] += seg.Adder[i]
		if s.accumulator[i] < prev {
			// 32-bit overflow: emit one step edge.
			s.gpio.SetPin(s.axes[i].Step, true)
			s.gpio.SetPin(s.axes[i].Step, false)
			if seg.Direction[i] {
				s.stepCount[i].Add(1)
			} else {
				s.stepCount[i].Add(-1)
			}
		}
	}

	s.tickPWM()

	s.ticksInSegment++
	if s.ticksInSegment >= s.ticksPerServo {
		s.ticksInSegment = 0
		s.ring.Advance()
	}
}

// tickPWM advances the PWM down-counters (§4.1 PWM side channel).
func (s *Stepgen) tickPWM() {
	for i := 0; i < s.npwm; i++ {
		ch := &s.pwm[i]
		ch.counter--
		if ch.counter <= 0 {
			ch.counter = pwmPeriodTicks
		}
		on := ch.counter <= ch.duty.Load()
		s.gpio.SetPin(ch.pin, on)
	}
}
