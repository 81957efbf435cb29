//go:build (rp2040 || rp2350) && pcf8574

package main

import (
	"machine"

	"ssrpwm/core"
	"ssrpwm/drivers/pcf8574"
)

// Expander wiring: I2C0 on GP4 (SDA) and GP5 (SCL), relays on P0-P7,
// active low as on common relay modules
func newRelayDriver(core.BoardConfig) (core.RelayDriver, error) {
	bus := machine.I2C0
	err := bus.Configure(machine.I2CConfig{
		Frequency: 100000,
		SDA:       machine.GP4,
		SCL:       machine.GP5,
	})
	if err != nil {
		return nil, err
	}
	return pcf8574.New(bus, pcf8574.Config{Address: pcf8574.Address}), nil
}

func boardConfig() core.BoardConfig {
	return core.BoardConfig{
		RelayPins: []core.GPIOPin{0, 1, 2, 3, 4, 5, 6, 7},
	}
}
