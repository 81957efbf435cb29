//go:build !tinygo

package core

// State stands in for the interrupt state on regular Go builds, where the
// scheduler is only touched from the loop goroutine.
type State uintptr

// disableInterrupts is a no-op on regular Go
func disableInterrupts() State {
	return 0
}

// restoreInterrupts is a no-op on regular Go
func restoreInterrupts(State) {}
