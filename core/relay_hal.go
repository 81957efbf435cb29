package core

import "errors"

// GPIOPin identifies a hardware pin number
type GPIOPin uint32

// PowerMax is the full-power duty level accepted by RelayDriver.SetPower
const PowerMax = 100

// ErrNoPower is returned by drivers whose outputs cannot be duty-scaled
var ErrNoPower = errors.New("relay driver: duty output not supported")

// RelayDriver is the abstract output interface the relay board drives.
// Platform-specific implementations handle actual hardware control.
type RelayDriver interface {
	// ConfigureOutput configures a relay pin as an output, open
	ConfigureOutput(pin GPIOPin) error

	// SetPin closes (true) or opens (false) the relay on pin
	SetPin(pin GPIOPin, closed bool) error

	// SetPower drives a high-frequency-capable pin at a duty level
	// from 0 (off) to PowerMax (fully on)
	SetPower(pin GPIOPin, power uint8) error
}
