//go:build tinygo

package core

import "sync/atomic"

// The main loop publishes the time while interrupt handlers may read it
var ticks atomic.Uint32

func getSystemTicks() uint32 {
	return ticks.Load()
}

func setSystemTicks(t uint32) {
	ticks.Store(t)
}
