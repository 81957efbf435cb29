// Relay board support
// Maps logical relays to pins and tracks relay and PWM status per relay
package core

import (
	"errors"
	"strconv"
)

// RelayStatus is the commanded state of a relay
type RelayStatus uint8

const (
	RelayOpen   RelayStatus = 0
	RelayClosed RelayStatus = 1
)

// PwmStatus tells whether a relay is inside an active PWM cycle
type PwmStatus uint8

const (
	PwmStopped PwmStatus = 0
	PwmRunning PwmStatus = 1
)

// ErrInvalidRelay is returned for relay indices outside the board
var ErrInvalidRelay = errors.New("relay index out of range")

// BoardConfig is the static wiring of a relay board
type BoardConfig struct {
	// RelayPins maps relay index to pin
	RelayPins []GPIOPin
	// HighFreqPins lists pins that support duty-scaled output
	HighFreqPins []GPIOPin
}

// DefaultBoardConfig is an 8 relay board on pins 2-9 with hardware PWM
// available on pins 3, 5, 6 and 9
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		RelayPins:    []GPIOPin{2, 3, 4, 5, 6, 7, 8, 9},
		HighFreqPins: []GPIOPin{3, 5, 6, 9},
	}
}

// RelayBoard owns the relay outputs of one board
type RelayBoard struct {
	driver   RelayDriver
	pins     []GPIOPin
	highFreq []bool
	relays   []RelayStatus
	pwm      []PwmStatus
	observer Observer
}

// NewRelayBoard configures every relay pin as an output and opens it
func NewRelayBoard(driver RelayDriver, cfg BoardConfig) (*RelayBoard, error) {
	if driver == nil {
		return nil, errors.New("relay driver not configured")
	}
	if len(cfg.RelayPins) == 0 {
		return nil, errors.New("board has no relays")
	}

	n := len(cfg.RelayPins)
	b := &RelayBoard{
		driver:   driver,
		pins:     append([]GPIOPin(nil), cfg.RelayPins...),
		highFreq: make([]bool, n),
		relays:   make([]RelayStatus, n),
		pwm:      make([]PwmStatus, n),
		observer: NopObserver{},
	}

	for relay, pin := range b.pins {
		for _, hf := range cfg.HighFreqPins {
			if pin == hf {
				b.highFreq[relay] = true
			}
		}
		if err := driver.ConfigureOutput(pin); err != nil {
			return nil, err
		}
		if err := driver.SetPin(pin, false); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// SetObserver installs the observer notified on relay and PWM status changes
func (b *RelayBoard) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	b.observer = o
}

// RelayCount returns the number of relays on the board
func (b *RelayBoard) RelayCount() int {
	return len(b.pins)
}

// Valid reports whether relay is a relay index on this board
func (b *RelayBoard) Valid(relay int) bool {
	return relay >= 0 && relay < len(b.pins)
}

// Pin returns the pin wired to relay
func (b *RelayBoard) Pin(relay int) GPIOPin {
	return b.pins[relay]
}

// IsHighFreq reports whether the relay's pin supports duty-scaled output
func (b *RelayBoard) IsHighFreq(relay int) bool {
	return b.Valid(relay) && b.highFreq[relay]
}

// CloseRelay switches the relay on
func (b *RelayBoard) CloseRelay(relay int) {
	if err := b.driver.SetPin(b.pins[relay], true); err != nil {
		DebugPrintln("[relay] close " + strconv.Itoa(relay) + ": " + err.Error())
	}
	b.setRelay(relay, RelayClosed)
}

// OpenRelay switches the relay off
func (b *RelayBoard) OpenRelay(relay int) {
	if err := b.driver.SetPin(b.pins[relay], false); err != nil {
		DebugPrintln("[relay] open " + strconv.Itoa(relay) + ": " + err.Error())
	}
	b.setRelay(relay, RelayOpen)
}

// HighFreqPwmRelay drives the relay at a reduced duty level. A power of
// zero leaves the relay open.
func (b *RelayBoard) HighFreqPwmRelay(relay int, power uint8) {
	if power > PowerMax {
		power = PowerMax
	}
	if err := b.driver.SetPower(b.pins[relay], power); err != nil {
		DebugPrintln("[relay] power " + strconv.Itoa(relay) + ": " + err.Error())
	}
	if power == 0 {
		b.setRelay(relay, RelayOpen)
		return
	}
	b.setRelay(relay, RelayClosed)
}

// OpenAllRelays opens every relay
func (b *RelayBoard) OpenAllRelays() {
	for relay := range b.pins {
		b.OpenRelay(relay)
	}
}

// RelayStatus returns the commanded state of relay
func (b *RelayBoard) RelayStatus(relay int) RelayStatus {
	return b.relays[relay]
}

// PwmStatus returns the PWM status of relay
func (b *RelayBoard) PwmStatus(relay int) PwmStatus {
	return b.pwm[relay]
}

// SetPwmStatusRunning marks relay as inside an active PWM cycle
func (b *RelayBoard) SetPwmStatusRunning(relay int) {
	b.setPwm(relay, PwmRunning)
}

// SetPwmStatusStopped marks relay as idle
func (b *RelayBoard) SetPwmStatusStopped(relay int) {
	b.setPwm(relay, PwmStopped)
}

// SetAllPwmStatusStopped marks every relay idle
func (b *RelayBoard) SetAllPwmStatusStopped() {
	for relay := range b.pwm {
		b.setPwm(relay, PwmStopped)
	}
}

func (b *RelayBoard) setRelay(relay int, status RelayStatus) {
	if b.relays[relay] == status {
		return
	}
	b.relays[relay] = status
	b.observer.RelayChanged(relay, status)
}

func (b *RelayBoard) setPwm(relay int, status PwmStatus) {
	if b.pwm[relay] == status {
		return
	}
	b.pwm[relay] = status
	b.observer.PwmStatusChanged(relay, status)
}
