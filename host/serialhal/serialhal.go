// Package serialhal is the optional serial-attached HAL bridge: it
// implements core.GPIODriver by sending commands to a real MCU over the
// teacher's Klipper-style wire transport (host/mcu, protocol) instead of
// the in-process stepgen.Stepgen simulation, so this module can drive
// actual stepper-driver hardware without changing anything above the HAL
// boundary. Grounded on host/mcu/mcu.go's dictionary-driven
// MCU.SendCommand and the config_digital_out/update_digital_out command
// pair core/gpio.go declares on the MCU side.
package serialhal

import (
	"fmt"
	"sync"

	"cncmotion/core"
	"cncmotion/host/mcu"
	"cncmotion/host/serial"
	"cncmotion/protocol"
)

// Bridge adapts an mcu.MCU connection to core.GPIODriver. Each logical
// pin gets an oid (object id) the MCU associates with one
// config_digital_out instance, matching the config_digital_out /
// update_digital_out oid-keyed protocol core/gpio.go implements.
type Bridge struct {
	mu      sync.Mutex
	conn    *mcu.MCU
	nextOID uint8
	oids    map[core.GPIOPin]uint8
	state   map[core.GPIOPin]bool
}

// Dial connects to an MCU at device and retrieves its command dictionary.
// The returned Bridge is ready to use as a core.GPIODriver once its pins
// are configured.
func Dial(device string) (*Bridge, error) {
	conn := mcu.NewMCU()
	if err := conn.Connect(device); err != nil {
		return nil, fmt.Errorf("serialhal: connect %s: %w", device, err)
	}
	if err := conn.RetrieveDictionary(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("serialhal: retrieve dictionary: %w", err)
	}
	return &Bridge{
		conn:  conn,
		oids:  make(map[core.GPIOPin]uint8),
		state: make(map[core.GPIOPin]bool),
	}, nil
}

// DialWithConfig connects using an explicit serial configuration (baud,
// read timeout) instead of serial.DefaultConfig's Klipper defaults.
func DialWithConfig(cfg *serial.Config) (*Bridge, error) {
	conn := mcu.NewMCU()
	if err := conn.ConnectWithConfig(cfg); err != nil {
		return nil, fmt.Errorf("serialhal: connect: %w", err)
	}
	if err := conn.RetrieveDictionary(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("serialhal: retrieve dictionary: %w", err)
	}
	return &Bridge{
		conn:  conn,
		oids:  make(map[core.GPIOPin]uint8),
		state: make(map[core.GPIOPin]bool),
	}, nil
}

// Close tears down the underlying serial connection.
func (b *Bridge) Close() error {
	return b.conn.Close()
}

func (b *Bridge) allocOID(pin core.GPIOPin) uint8 {
	if oid, ok := b.oids[pin]; ok {
		return oid
	}
	oid := b.nextOID
	b.nextOID++
	b.oids[pin] = oid
	return oid
}

// ConfigureOutput declares pin as a config_digital_out instance,
// defaulting low with no forced-shutdown duration.
func (b *Bridge) ConfigureOutput(pin core.GPIOPin) error {
	b.mu.Lock()
	oid := b.allocOID(pin)
	b.mu.Unlock()

	return b.conn.SendCommand("config_digital_out", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(oid))
		protocol.EncodeVLQUint(out, uint32(pin))
		protocol.EncodeVLQInt(out, 0) // value
		protocol.EncodeVLQInt(out, 0) // default_value
		protocol.EncodeVLQUint(out, 0) // max_duration: never force-shutdown
	})
}

// ConfigureInputPullUp has no dictionary analogue on the MCU side in
// this command set (endstop/input pins are declared via the
// endstop-specific commands, not gpio's digital-out family); it records
// the pin locally so ReadPin/GetPin have a defined zero value until the
// caller wires a real endstop command for it.
func (b *Bridge) ConfigureInputPullUp(pin core.GPIOPin) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allocOID(pin)
	return nil
}

// ConfigureInputPullDown mirrors ConfigureInputPullUp.
func (b *Bridge) ConfigureInputPullDown(pin core.GPIOPin) error {
	return b.ConfigureInputPullUp(pin)
}

// SetPin sends update_digital_out for pin's oid.
func (b *Bridge) SetPin(pin core.GPIOPin, value bool) error {
	b.mu.Lock()
	oid, ok := b.oids[pin]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("serialhal: pin %d not configured", pin)
	}
	b.mu.Unlock()

	v := int32(0)
	if value {
		v = 1
	}
	if err := b.conn.SendCommand("update_digital_out", func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(oid))
		protocol.EncodeVLQInt(out, v)
	}); err != nil {
		return err
	}

	b.mu.Lock()
	b.state[pin] = value
	b.mu.Unlock()
	return nil
}

// GetPin returns the last value this Bridge commanded for pin (the MCU
// does not echo digital-out state back on every write, so this reflects
// the host's shadow, not a fresh hardware read).
func (b *Bridge) GetPin(pin core.GPIOPin) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.oids[pin]; !ok {
		return false, fmt.Errorf("serialhal: pin %d not configured", pin)
	}
	return b.state[pin], nil
}

// ReadPin is GetPin with errors swallowed, matching core.GPIODriver's
// convenience alias.
func (b *Bridge) ReadPin(pin core.GPIOPin) bool {
	v, _ := b.GetPin(pin)
	return v
}
