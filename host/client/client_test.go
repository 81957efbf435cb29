package client

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"ssrpwm/protocol"
)

// scriptedPort answers each written line with a canned reply. Reads
// return (0, nil) when nothing is pending, like a port with a read timeout.
type scriptedPort struct {
	mu      sync.Mutex
	replies map[string]string
	written []string
	pending bytes.Buffer
}

func newScriptedPort(replies map[string]string) *scriptedPort {
	return &scriptedPort{replies: replies}
}

func (p *scriptedPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := strings.TrimSuffix(string(data), "\n")
	p.written = append(p.written, line)
	p.pending.WriteString(p.replies[line])
	return len(data), nil
}

func (p *scriptedPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	// Hand out a few bytes at a time to split lines across reads
	if len(buf) > 5 {
		buf = buf[:5]
	}
	return p.pending.Read(buf)
}

func TestQuery(t *testing.T) {
	port := newScriptedPort(map[string]string{
		"getRelaysStatus": "[0,1,0,0,0,0,0,1]\n",
		"getPwmStatus":    "[0,0,0,0,0,0,0,0]\n",
	})
	c := New(port)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	relays, err := c.RelaysStatus(ctx)
	if err != nil {
		t.Fatalf("RelaysStatus failed: %v", err)
	}
	if !reflect.DeepEqual(relays, []int{0, 1, 0, 0, 0, 0, 0, 1}) {
		t.Errorf("RelaysStatus = %v", relays)
	}

	pwm, err := c.PwmStatus(ctx)
	if err != nil {
		t.Fatalf("PwmStatus failed: %v", err)
	}
	if len(pwm) != 8 {
		t.Errorf("PwmStatus = %v", pwm)
	}
}

func TestQueryAll(t *testing.T) {
	port := newScriptedPort(map[string]string{
		"getCommands": "0 startPwm relay period onDuration delay\n1 stopAllPwm\n",
	})
	c := New(port)
	c.Idle = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	lines, err := c.QueryAll(ctx, "getCommands")
	if err != nil {
		t.Fatalf("QueryAll failed: %v", err)
	}
	want := []string{"0 startPwm relay period onDuration delay", "1 stopAllPwm"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("QueryAll = %q, want %q", lines, want)
	}
}

func TestSend(t *testing.T) {
	port := newScriptedPort(nil)
	c := New(port)

	if err := c.Send("startPwm 1 1000 500 0"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := c.Send("   "); !errors.Is(err, protocol.ErrEmptyLine) {
		t.Errorf("Send(blank): expected ErrEmptyLine, got %v", err)
	}
	if !reflect.DeepEqual(port.written, []string{"startPwm 1 1000 500 0"}) {
		t.Errorf("written = %q", port.written)
	}
}

func TestQueryNoReply(t *testing.T) {
	c := New(newScriptedPort(nil))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Query(ctx, "stopAllPwm"); !errors.Is(err, ErrNoReply) {
		t.Errorf("expected ErrNoReply, got %v", err)
	}
	if _, err := c.QueryAll(ctx, "stopAllPwm"); !errors.Is(err, ErrNoReply) {
		t.Errorf("expected ErrNoReply, got %v", err)
	}
}

func TestQueryBadReply(t *testing.T) {
	port := newScriptedPort(map[string]string{"getRelaysStatus": "garbage\n"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := New(port).RelaysStatus(ctx); !errors.Is(err, protocol.ErrBadArg) {
		t.Errorf("expected ErrBadArg, got %v", err)
	}
}
