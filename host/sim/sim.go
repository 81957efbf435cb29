// Package sim provides virtual relay hardware for running the firmware core
// on a host: a GPIO output stage and a PCF8574 on a simulated I2C bus.
package sim

import (
	"errors"
	"sync"

	"ssrpwm/core"
)

// ErrNotConfigured is returned when a pin is driven before ConfigureOutput
var ErrNotConfigured = errors.New("sim: pin not configured as output")

// PinState is the simulated level of one output
type PinState struct {
	Configured bool
	Closed     bool
	Power      uint8 // duty level while Closed, core.PowerMax for a plain close
	Writes     int
}

// Driver is a virtual GPIO relay driver. Pins listed as high-frequency
// accept duty levels; the rest return core.ErrNoPower.
type Driver struct {
	mu       sync.Mutex
	pins     map[core.GPIOPin]*PinState
	highFreq map[core.GPIOPin]bool
}

// NewDriver creates a driver with duty output on highFreq pins
func NewDriver(highFreq []core.GPIOPin) *Driver {
	d := &Driver{
		pins:     make(map[core.GPIOPin]*PinState),
		highFreq: make(map[core.GPIOPin]bool, len(highFreq)),
	}
	for _, pin := range highFreq {
		d.highFreq[pin] = true
	}
	return d
}

func (d *Driver) ConfigureOutput(pin core.GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pins[pin] = &PinState{Configured: true}
	return nil
}

func (d *Driver) SetPin(pin core.GPIOPin, closed bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.pins[pin]
	if !ok {
		return ErrNotConfigured
	}
	st.Closed = closed
	st.Power = 0
	if closed {
		st.Power = core.PowerMax
	}
	st.Writes++
	return nil
}

func (d *Driver) SetPower(pin core.GPIOPin, power uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.pins[pin]
	if !ok {
		return ErrNotConfigured
	}
	if !d.highFreq[pin] {
		return core.ErrNoPower
	}
	st.Closed = power > 0
	st.Power = power
	st.Writes++
	return nil
}

// Pin returns a copy of the pin's state
func (d *Driver) Pin(pin core.GPIOPin) PinState {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.pins[pin]; ok {
		return *st
	}
	return PinState{}
}

// ErrNoDevice is returned for I2C transfers to an address nothing answers
var ErrNoDevice = errors.New("sim: no device at address")

// Expander emulates a PCF8574 on an I2C bus. It implements tinygo
// drivers.I2C: writes latch the last byte onto the port, reads return it.
type Expander struct {
	mu      sync.Mutex
	address uint16
	port    byte
	writes  int
}

// NewExpander creates an expander answering at address with every port
// bit high, as after power-on
func NewExpander(address uint16) *Expander {
	return &Expander{address: address, port: 0xFF}
}

func (e *Expander) Tx(addr uint16, w, r []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if addr != e.address {
		return ErrNoDevice
	}
	if len(w) > 0 {
		e.port = w[len(w)-1]
		e.writes++
	}
	for i := range r {
		r[i] = e.port
	}
	return nil
}

// Port returns the last latched port byte
func (e *Expander) Port() byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.port
}

// Writes returns the number of port writes
func (e *Expander) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}
