//go:build !tinygo

package core

// getSystemTicks returns the tick counter; on regular Go it only moves when
// SetTime is called by the host runtime or a test.
func getSystemTicks() uint32 {
	return systemTicks
}

func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}
