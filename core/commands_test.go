package core

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"ssrpwm/protocol"
)

type commandFixture struct {
	seq      *Sequencer
	registry *CommandRegistry
	obs      *recordingObserver
	out      bytes.Buffer
}

func newCommandFixture(t *testing.T) *commandFixture {
	t.Helper()
	seq, _, obs := newTestSequencer(t)
	f := &commandFixture{seq: seq, registry: NewCommandRegistry(), obs: obs}
	InitPwmCommands(f.registry, seq)
	return f
}

// send dispatches one line and returns the reply
func (f *commandFixture) send(t *testing.T, line string) (string, error) {
	t.Helper()
	req, err := protocol.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine(%q): %v", line, err)
	}
	f.out.Reset()
	err = f.registry.DispatchRequest(req, &f.out)
	return f.out.String(), err
}

func TestInitPwmCommands(t *testing.T) {
	f := newCommandFixture(t)

	names := []string{
		"startPwm", "startPwmPattern", "startPwmPatternPower",
		"stopAllPwm", "stopPwm",
		"getRelaysStatus", "getPwmStatus", "getPatternsStatus", "getCommands",
	}
	if f.registry.Count() != len(names) {
		t.Fatalf("Expected %d commands, got %d", len(names), f.registry.Count())
	}
	for id, name := range names {
		cmd, ok := f.registry.GetCommandByName(name)
		if !ok || cmd.ID != uint16(id) {
			t.Errorf("Command %s: expected id %d", name, id)
		}
	}
}

func TestStartPwmCommand(t *testing.T) {
	f := newCommandFixture(t)

	if _, err := f.send(t, "[startPwm,2,1000,300,0]"); err != nil {
		t.Fatalf("startPwm failed: %v", err)
	}
	f.seq.Scheduler().Dispatch(0)

	reply, err := f.send(t, "getRelaysStatus")
	if err != nil || reply != "[0,0,1,0,0,0,0,0]\n" {
		t.Errorf("getRelaysStatus = %q, %v", reply, err)
	}
	reply, _ = f.send(t, "getPwmStatus")
	if reply != "[0,0,1,0,0,0,0,0]\n" {
		t.Errorf("getPwmStatus = %q", reply)
	}

	f.seq.Scheduler().Dispatch(300)
	reply, _ = f.send(t, "getRelaysStatus")
	if reply != "[0,0,0,0,0,0,0,0]\n" {
		t.Errorf("getRelaysStatus at 300ms = %q", reply)
	}
}

func TestPatternCommands(t *testing.T) {
	f := newCommandFixture(t)

	if _, err := f.send(t, "startPwmPattern 1 50 10 2000 500 0"); err != nil {
		t.Fatalf("startPwmPattern failed: %v", err)
	}
	if _, err := f.send(t, "startPwmPatternPower 3 50 10 2000 500 100 40"); err != nil {
		t.Fatalf("startPwmPatternPower failed: %v", err)
	}
	f.seq.Scheduler().Dispatch(0)

	reply, err := f.send(t, "getPatternsStatus")
	if err != nil || reply != "[[0,1,1,1],[1,3,0,0]]\n" {
		t.Errorf("getPatternsStatus = %q, %v", reply, err)
	}

	if _, err := f.send(t, "stopPwm 1"); err != nil {
		t.Fatalf("stopPwm failed: %v", err)
	}
	reply, _ = f.send(t, "getPatternsStatus")
	if reply != "[[1,3,0,0]]\n" {
		t.Errorf("getPatternsStatus after stopPwm = %q", reply)
	}

	if _, err := f.send(t, "stopAllPwm"); err != nil {
		t.Fatalf("stopAllPwm failed: %v", err)
	}
	reply, _ = f.send(t, "getPatternsStatus")
	if reply != "[]\n" {
		t.Errorf("getPatternsStatus after stopAllPwm = %q", reply)
	}
}

func TestRejectedCommandsAreSilent(t *testing.T) {
	f := newCommandFixture(t)

	lines := []string{
		"startPwmPatternPower 0 50 10 2000 500 0 40", // relay 0 is not high-frequency
		"startPwm 8 1000 300 0",                      // no relay 8
		"stopPwm -1",
	}
	for _, line := range lines {
		reply, err := f.send(t, line)
		if err != nil || reply != "" {
			t.Errorf("%q: expected silent no-op, got %q, %v", line, reply, err)
		}
	}

	if len(f.obs.rejected) != len(lines) {
		t.Fatalf("Expected %d observed rejections, got %d", len(lines), len(f.obs.rejected))
	}
	if !errors.Is(f.obs.rejected[0], ErrUnsupportedRelay) || !errors.Is(f.obs.rejected[1], ErrInvalidRelay) {
		t.Errorf("Unexpected rejection reasons %v", f.obs.rejected)
	}
	if f.seq.Scheduler().Pending() != 0 {
		t.Error("Rejected commands registered events")
	}
}

func TestCommandArgumentErrors(t *testing.T) {
	f := newCommandFixture(t)

	tests := []struct {
		line string
		err  error
	}{
		{"startPwm 2 1000 300", protocol.ErrMissingArg},
		{"startPwm two 1000 300 0", protocol.ErrBadArg},
		{"startPwmPattern 1 50 10 2000 500", protocol.ErrMissingArg},
		{"startPwmPatternPower 1 50 10 2000 500 0", protocol.ErrMissingArg},
		{"startPwmPatternPower 1 50 10 2000 500 0 300", protocol.ErrBadArg},
		{"startPwm 2 1000 300 2592000000", protocol.ErrBadArg},
		{"startPwmPattern 1 50 10 4294967295 500 0", protocol.ErrBadArg},
		{"stopPwm", protocol.ErrMissingArg},
		{"resetAll", ErrUnknownCommand},
	}

	for _, tt := range tests {
		if _, err := f.send(t, tt.line); !errors.Is(err, tt.err) {
			t.Errorf("%q: expected %v, got %v", tt.line, tt.err, err)
		}
	}

	if f.seq.Scheduler().Pending() != 0 || f.seq.PatternCount() != 0 {
		t.Error("Malformed commands changed scheduler state")
	}
}

func TestCommandByNumericID(t *testing.T) {
	f := newCommandFixture(t)

	cmd, _ := f.registry.GetCommandByName("getPwmStatus")
	reply, err := f.send(t, strconv.Itoa(int(cmd.ID)))
	if err != nil || reply != "[0,0,0,0,0,0,0,0]\n" {
		t.Errorf("numeric getPwmStatus = %q, %v", reply, err)
	}
}

func TestGetCommands(t *testing.T) {
	f := newCommandFixture(t)

	reply, err := f.send(t, "getCommands")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(reply, "0 startPwm relay period onDuration delay\n") {
		t.Errorf("Unexpected dictionary %q", reply)
	}
	if !strings.HasSuffix(reply, "8 getCommands\n") {
		t.Errorf("Dictionary should end with getCommands, got %q", reply)
	}
}
