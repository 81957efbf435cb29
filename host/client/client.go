// Package client talks to a relay controller over its command port
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"ssrpwm/host/serial"
	"ssrpwm/protocol"
)

// ErrNoReply is returned when the controller stays silent
var ErrNoReply = errors.New("no reply from controller")

// Client sends command lines and collects reply lines
type Client struct {
	port  io.ReadWriter
	lines *protocol.LineBuffer
	buf   []byte

	// Idle ends a multi-line reply once no data arrived for this long
	Idle time.Duration
}

// New creates a client on an open port. Reads on port must return
// periodically (a read timeout) so deadlines can be honored.
func New(port io.ReadWriter) *Client {
	return &Client{
		port:  port,
		lines: protocol.NewLineBuffer(protocol.LineMax),
		buf:   make([]byte, protocol.LineMax),
		Idle:  200 * time.Millisecond,
	}
}

// Dial opens the serial port described by cfg
func Dial(cfg *serial.Config) (*Client, io.Closer, error) {
	if cfg != nil && cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100
	}
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	// Drop anything left over from a previous session
	_ = port.Flush()
	return New(port), port, nil
}

// Send writes one command line. The line is checked locally first.
func (c *Client) Send(line string) error {
	if _, err := protocol.ParseLine(line); err != nil {
		return fmt.Errorf("invalid command %q: %w", line, err)
	}
	if _, err := io.WriteString(c.port, line+string(protocol.LineTerminator)); err != nil {
		return fmt.Errorf("failed to send %q: %w", line, err)
	}
	return nil
}

// Query sends line and returns the first reply line
func (c *Client) Query(ctx context.Context, line string) (string, error) {
	if err := c.Send(line); err != nil {
		return "", err
	}
	lines, err := c.read(ctx, 1)
	if err != nil {
		return "", err
	}
	return lines[0], nil
}

// QueryAll sends line and collects reply lines until the port goes idle
func (c *Client) QueryAll(ctx context.Context, line string) ([]string, error) {
	if err := c.Send(line); err != nil {
		return nil, err
	}
	return c.read(ctx, 0)
}

// RelaysStatus queries the state of every relay
func (c *Client) RelaysStatus(ctx context.Context) ([]int, error) {
	return c.queryArray(ctx, "getRelaysStatus")
}

// PwmStatus queries the PWM status of every relay
func (c *Client) PwmStatus(ctx context.Context) ([]int, error) {
	return c.queryArray(ctx, "getPwmStatus")
}

func (c *Client) queryArray(ctx context.Context, command string) ([]int, error) {
	reply, err := c.Query(ctx, command)
	if err != nil {
		return nil, err
	}
	values, err := protocol.ParseArray(reply)
	if err != nil {
		return nil, fmt.Errorf("bad %s reply %q: %w", command, reply, err)
	}
	return values, nil
}

// read collects want lines, or with want 0 every line until the port has
// been idle for c.Idle
func (c *Client) read(ctx context.Context, want int) ([]string, error) {
	var lines []string
	lastData := time.Now()

	for {
		for {
			line, ok := c.lines.Next()
			if !ok {
				break
			}
			lines = append(lines, line)
			if want > 0 && len(lines) == want {
				return lines, nil
			}
		}

		if want == 0 && len(lines) > 0 && time.Since(lastData) >= c.Idle {
			return lines, nil
		}
		if err := ctx.Err(); err != nil {
			if len(lines) > 0 && want == 0 {
				return lines, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrNoReply, err)
		}

		n, err := c.port.Read(c.buf)
		if n > 0 {
			c.lines.Write(c.buf[:n])
			lastData = time.Now()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reply: %w", err)
		}
	}
}
