//go:build (rp2040 || rp2350) && !pcf8574

package main

import (
	"machine"

	"ssrpwm/core"
)

// pwmPeriod is the carrier period of duty-scaled relays (1kHz)
const pwmPeriod = 1e6

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

type pwmOutput struct {
	group   pwmPeripheral
	channel uint8
}

// RPRelayDriver drives relays from GPIO pins. Pins listed as high
// frequency are routed to their hardware PWM slice instead.
type RPRelayDriver struct {
	highFreq map[core.GPIOPin]bool
	pins     map[core.GPIOPin]machine.Pin
	pwm      map[core.GPIOPin]pwmOutput

	// Slices already configured. Both channels of a slice share the period.
	slices map[uint8]bool
}

// NewRPRelayDriver creates a relay driver for the given duty-capable pins
func NewRPRelayDriver(highFreq []core.GPIOPin) *RPRelayDriver {
	d := &RPRelayDriver{
		highFreq: make(map[core.GPIOPin]bool, len(highFreq)),
		pins:     make(map[core.GPIOPin]machine.Pin),
		pwm:      make(map[core.GPIOPin]pwmOutput),
		slices:   make(map[uint8]bool),
	}
	for _, pin := range highFreq {
		d.highFreq[pin] = true
	}
	return d
}

// ConfigureOutput configures a relay pin, open
func (d *RPRelayDriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, ok := d.pins[pin]; ok {
		return nil
	}
	if _, ok := d.pwm[pin]; ok {
		return nil
	}

	if d.highFreq[pin] {
		return d.configurePWM(pin)
	}

	machinePin := machine.Pin(pin)
	machinePin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	machinePin.Low()
	d.pins[pin] = machinePin
	return nil
}

// configurePWM maps GPIO N to slice (N >> 1) & 0x7, channel N & 1
func (d *RPRelayDriver) configurePWM(pin core.GPIOPin) error {
	sliceNum := uint8((uint32(pin) >> 1) & 0x7)
	group := pwmGroup(sliceNum)

	if !d.slices[sliceNum] {
		if err := group.Configure(machine.PWMConfig{Period: pwmPeriod}); err != nil {
			return err
		}
		d.slices[sliceNum] = true
	}

	channel, err := group.Channel(machine.Pin(pin))
	if err != nil {
		return err
	}
	group.Set(channel, 0)
	d.pwm[pin] = pwmOutput{group: group, channel: channel}
	return nil
}

// SetPin closes (true) or opens (false) the relay on pin
func (d *RPRelayDriver) SetPin(pin core.GPIOPin, closed bool) error {
	if out, ok := d.pwm[pin]; ok {
		duty := uint32(0)
		if closed {
			duty = out.group.Top()
		}
		out.group.Set(out.channel, duty)
		return nil
	}

	machinePin, ok := d.pins[pin]
	if !ok {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		return d.SetPin(pin, closed)
	}
	machinePin.Set(closed)
	return nil
}

// SetPower scales the duty of a high frequency pin from 0 to core.PowerMax
func (d *RPRelayDriver) SetPower(pin core.GPIOPin, power uint8) error {
	out, ok := d.pwm[pin]
	if !ok {
		return core.ErrNoPower
	}
	if power > core.PowerMax {
		power = core.PowerMax
	}
	out.group.Set(out.channel, uint32(power)*out.group.Top()/core.PowerMax)
	return nil
}

// pwmGroup returns the PWM peripheral for a slice number
func pwmGroup(sliceNum uint8) pwmPeripheral {
	switch sliceNum {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		return machine.PWM0
	}
}

func newRelayDriver(cfg core.BoardConfig) (core.RelayDriver, error) {
	return NewRPRelayDriver(cfg.HighFreqPins), nil
}

func boardConfig() core.BoardConfig {
	return core.DefaultBoardConfig()
}
