package stepgen

import (
	"fmt"
	"sync"

	"cncmotion/core"
)

// PinMode is a GpioMap pin's declared mode.
type PinMode uint8

const (
	PinModeInput PinMode = iota
	PinModeOutput
	PinModePeripheral
)

// pinDescriptor is one row of the static logical-pin-index table (§4.3):
// port register, data register, bit offset, declared mode.
type pinDescriptor struct {
	port   uint8
	reg    uint8
	bit    uint8
	mode   PinMode
	hwPin  core.GPIOPin
	reserved bool
}

// GpioMap is C3: a static table mapping logical pin index to hardware
// port/bit, with batched set/clear via per-port shadow registers. Grounded
// on the teacher's digitalOutputs OID table (core/gpio.go) but restructured
// around shadow-register batching rather than per-pin timer scheduling,
// since StepgenFIQ needs to update many pins in one tick without racing
// the servo loop (§4.3).
type GpioMap struct {
	mu      sync.Mutex
	pins    map[int]*pinDescriptor
	shadow  map[uint8]uint32 // port -> pending OR-mask of set bits
	clearMask map[uint8]uint32 // port -> pending AND-NOT-mask of clear bits
	dirty   map[uint8]bool
	gpio    core.GPIODriver
}

// NewGpioMap creates an empty map bound to a GPIO HAL driver.
func NewGpioMap(gpio core.GPIODriver) *GpioMap {
	return &GpioMap{
		pins:      make(map[int]*pinDescriptor),
		shadow:    make(map[uint8]uint32),
		clearMask: make(map[uint8]uint32),
		dirty:     make(map[uint8]bool),
		gpio:      gpio,
	}
}

// ErrPinReserved is returned by Configure when the logical index is
// already reserved (§4.3: "reserves it against concurrent allocation").
var ErrPinReserved = fmt.Errorf("stepgen: pin already reserved")

// Configure declares a logical pin: port/reg/bit address and mode, and
// reserves the index against a second Configure call.
func (g *GpioMap) Configure(logical int, port, reg, bit uint8, mode PinMode, hwPin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.pins[logical]; exists {
		return ErrPinReserved
	}

	desc := &pinDescriptor{port: port, reg: reg, bit: bit, mode: mode, hwPin: hwPin, reserved: true}
	g.pins[logical] = desc

	var err error
	switch mode {
	case PinModeOutput:
		err = g.gpio.ConfigureOutput(hwPin)
	case PinModeInput:
		err = g.gpio.ConfigureInputPullUp(hwPin)
	}
	return err
}

// Set stages logical pin to the high state in its port's shadow register
// (does not touch hardware yet; §4.3 batches the apply).
func (g *GpioMap) Set(logical int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	desc, ok := g.pins[logical]
	if !ok {
		return
	}
	mask := uint32(1) << desc.bit
	g.shadow[desc.port] |= mask
	g.clearMask[desc.port] &^= mask
	g.dirty[desc.port] = true
}

// Clear stages logical pin to the low state.
func (g *GpioMap) Clear(logical int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	desc, ok := g.pins[logical]
	if !ok {
		return
	}
	mask := uint32(1) << desc.bit
	g.shadow[desc.port] &^= mask
	g.clearMask[desc.port] |= mask
	g.dirty[desc.port] = true
}

// Apply flushes every dirty port's shadow register to hardware atomically
// with respect to the caller (one lock hold), so StepgenFIQ can update many
// pins in a single tick without the servo loop observing a partial port
// write (§4.3).
func (g *GpioMap) Apply() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for port, dirty := range g.dirty {
		if !dirty {
			continue
		}
		setMask := g.shadow[port]
		for logical, desc := range g.pins {
			_ = logical
			if desc.port != port || desc.mode != PinModeOutput {
				continue
			}
			bit := uint32(1) << desc.bit
			on := setMask&bit != 0
			if err := g.gpio.SetPin(desc.hwPin, on); err != nil {
				return err
			}
		}
		g.dirty[port] = false
	}
	return nil
}

// Read returns the current hardware level of a configured input pin.
func (g *GpioMap) Read(logical int) bool {
	g.mu.Lock()
	desc, ok := g.pins[logical]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return g.gpio.ReadPin(desc.hwPin)
}
