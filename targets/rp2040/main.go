//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"ssrpwm/core"
	"ssrpwm/protocol"
)

// usbOutput collects replies until the main loop flushes them to USB
type usbOutput struct {
	buf []byte
}

func (o *usbOutput) Write(p []byte) (int, error) {
	o.buf = append(o.buf, p...)
	return len(p), nil
}

var (
	seq       *core.Sequencer
	transport *protocol.Transport
	output    = &usbOutput{buf: make([]byte, 0, 256)}

	// Debug counters
	msgerrors uint32

	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left over from a previous reset
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	core.TimerInit()
	UpdateSystemTime()

	cfg := boardConfig()
	driver, err := newRelayDriver(cfg)
	if err != nil {
		core.DebugPrintln("[RELAY] driver init failed: " + err.Error())
		return
	}
	board, err := core.NewRelayBoard(driver, cfg)
	if err != nil {
		core.DebugPrintln("[RELAY] board init failed: " + err.Error())
		return
	}
	seq = core.NewSequencer(board, core.NewScheduler(core.GetTime()))

	registry := core.NewCommandRegistry()
	core.InitPwmCommands(registry, seq)
	transport = protocol.NewTransport(output, registry.DispatchRequest)
	transport.SetErrorHandler(func(line string, err error) {
		msgerrors++
	})

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					output.buf = output.buf[:0]
					transport.Reset()
				}
			}()

			now := UpdateSystemTime()
			seq.Scheduler().Dispatch(now)

			pollUSB()
			if len(output.buf) > 0 {
				writeUSB()
			}
		}()

		// Yield to other goroutines
		time.Sleep(100 * time.Microsecond)
	}
}

// pollUSB feeds whatever USB has buffered to the transport
func pollUSB() {
	var chunk [64]byte
	n := 0
	for n < len(chunk) && USBAvailable() > 0 {
		b, err := USBRead()
		if err != nil {
			msgerrors++
			break
		}
		chunk[n] = b
		n++
	}
	if n > 0 {
		transport.Receive(chunk[:n])
	}
}

// writeUSB flushes pending replies. Stale replies are dropped once the host
// stops reading.
func writeUSB() {
	written := 0
	for written < len(output.buf) {
		n, err := USBWriteBytes(output.buf[written:])
		if err != nil || n == 0 {
			output.buf = append(output.buf[:0], output.buf[written:]...)
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				consecutiveWriteFailures = 0
				output.buf = output.buf[:0]
				transport.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	output.buf = output.buf[:0]
}
