// Package pcf8574 drives relay modules wired to a PCF8574 8-bit I2C port
// expander. It implements core.RelayDriver with expander bits 0-7 as pins.
//
// The expander has no duty-cycle output: SetPower accepts only 0 and
// core.PowerMax and returns core.ErrNoPower for anything in between.
package pcf8574

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"

	"ssrpwm/core"
)

// Address is the I2C address with A0-A2 tied low
const Address = 0x20

// Pins is the number of expander outputs
const Pins = 8

// ErrInvalidPin is returned for pins beyond the expander's outputs
var ErrInvalidPin = errors.New("pcf8574: pin out of range")

// Config controls the expander wiring. All fields are optional.
type Config struct {
	// Address defaults to 0x20 if zero.
	Address uint16
	// ActiveHigh drives a bit high to close a relay. Most relay modules are
	// active-low, which is the default.
	ActiveHigh bool
}

// Device wraps an I2C connection to a PCF8574
type Device struct {
	mu         sync.Mutex
	bus        drivers.I2C
	address    uint16
	activeHigh bool
	closed     uint8 // bit set = relay closed
	buf        [1]byte
}

// New creates a device on bus. The bus must already be configured. The
// device is not touched until the first pin is configured.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	return &Device{
		bus:        bus,
		address:    cfg.Address,
		activeHigh: cfg.ActiveHigh,
	}
}

// ConfigureOutput opens the relay on pin. PCF8574 outputs are
// quasi-bidirectional, so no direction register is written.
func (d *Device) ConfigureOutput(pin core.GPIOPin) error {
	return d.SetPin(pin, false)
}

// SetPin closes or opens the relay on pin
func (d *Device) SetPin(pin core.GPIOPin, closed bool) error {
	if pin >= Pins {
		return ErrInvalidPin
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if closed {
		d.closed |= 1 << pin
	} else {
		d.closed &^= 1 << pin
	}
	return d.flush()
}

// SetPower only supports fully off and fully on
func (d *Device) SetPower(pin core.GPIOPin, power uint8) error {
	switch power {
	case 0:
		return d.SetPin(pin, false)
	case core.PowerMax:
		return d.SetPin(pin, true)
	}
	return core.ErrNoPower
}

// State returns the closed relays as a bit mask
func (d *Device) State() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// flush writes the port byte. Must be called with lock held.
func (d *Device) flush() error {
	d.buf[0] = d.portValue()
	return d.bus.Tx(d.address, d.buf[:], nil)
}

func (d *Device) portValue() uint8 {
	if d.activeHigh {
		return d.closed
	}
	return ^d.closed
}
