// Package serial opens the command port of a relay controller
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is an open command port. Tests substitute in-memory pipes.
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	Device string // e.g. /dev/ttyACM0
	Baud   int    // ignored by USB CDC

	// ReadTimeout in milliseconds. Zero blocks reads until data arrives.
	ReadTimeout int
}

// DefaultConfig returns the default configuration for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// tarmPort wraps a github.com/tarm/serial port
type tarmPort struct {
	*serial.Port
	timeout bool
}

// Open opens the device named by cfg
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Device == "" {
		return nil, errors.New("no serial device configured")
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return &tarmPort{Port: port, timeout: cfg.ReadTimeout > 0}, nil
}

// Read reports an expired read timeout as (0, nil) rather than io.EOF, so
// EOF always means the port went away
func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && p.timeout && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}
