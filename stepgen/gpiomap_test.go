package stepgen

import "testing"

func TestConfigureRejectsDuplicateLogicalPin(t *testing.T) {
	gpio := newMockGPIO()
	m := NewGpioMap(gpio)

	if err := m.Configure(0, 0, 0, 0, PinModeOutput, 5); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Configure(0, 0, 0, 1, PinModeOutput, 6); err != ErrPinReserved {
		t.Errorf("Configure duplicate = %v, want ErrPinReserved", err)
	}
}

func TestSetClearApplyBatches(t *testing.T) {
	gpio := newMockGPIO()
	m := NewGpioMap(gpio)

	_ = m.Configure(0, 0, 0, 0, PinModeOutput, 10)
	_ = m.Configure(1, 0, 0, 1, PinModeOutput, 11)

	m.Set(0)
	m.Set(1)

	if gpio.pins[10] || gpio.pins[11] {
		t.Fatalf("hardware updated before Apply()")
	}

	if err := m.Apply(); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if !gpio.pins[10] || !gpio.pins[11] {
		t.Errorf("pins not set after Apply(): pin0=%v pin1=%v", gpio.pins[10], gpio.pins[11])
	}

	m.Clear(0)
	if err := m.Apply(); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if gpio.pins[10] {
		t.Errorf("pin0 still set after Clear()+Apply()")
	}
	if !gpio.pins[11] {
		t.Errorf("pin1 unexpectedly cleared by unrelated Clear()")
	}
}

func TestReadReflectsHardware(t *testing.T) {
	gpio := newMockGPIO()
	m := NewGpioMap(gpio)
	_ = m.Configure(0, 0, 0, 0, PinModeInput, 7)
	gpio.pins[7] = true

	if !m.Read(0) {
		t.Errorf("Read(0) = false, want true")
	}
}
