package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ssrpwm/host/client"
	"ssrpwm/host/config"
)

func TestLoadConfigFlags(t *testing.T) {
	cmd := &cobra.Command{}
	config.RegisterFlags(cmd.Flags())
	if err := cmd.Flags().Parse([]string{"--listen", "", "--log-format", "json", "--tick-ms", "2"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.HTTP.Listen != "" || cfg.Logging.Format != "json" || cfg.Runtime.TickMS != 2 {
		t.Errorf("Flags not applied: %+v", cfg)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	cmd := &cobra.Command{}
	config.RegisterFlags(cmd.Flags())
	if err := cmd.Flags().Parse([]string{"--driver", "relaybox"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if _, err := loadConfig(cmd); err == nil {
		t.Error("Expected an error for an unknown driver")
	}
}

func TestNewDriver(t *testing.T) {
	cfg := config.Default()
	if _, err := newDriver(cfg); err != nil {
		t.Errorf("gpio driver: %v", err)
	}

	cfg.Board.Driver = config.DriverPCF8574
	d, err := newDriver(cfg)
	if err != nil {
		t.Fatalf("pcf8574 driver: %v", err)
	}
	if err := d.SetPower(0, 50); err == nil {
		t.Error("Expected the expander to reject duty output")
	}

	cfg.Board.Driver = "relaybox"
	if _, err := newDriver(cfg); err == nil {
		t.Error("Expected an error for an unknown driver")
	}
}

func TestLoadConfigExpanderDutyPins(t *testing.T) {
	cmd := &cobra.Command{}
	config.RegisterFlags(cmd.Flags())
	args := []string{"--driver", "pcf8574", "--relay-pins", "0,1,2,3", "--high-freq-pins", "3"}
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	_, err := loadConfig(cmd)
	if err == nil || !strings.Contains(err.Error(), "no duty control") {
		t.Errorf("Expected duty pins to be rejected for pcf8574, got %v", err)
	}
}

func TestControllerExpanderRejectsPower(t *testing.T) {
	cmd := &cobra.Command{}
	config.RegisterFlags(cmd.Flags())
	args := []string{"--driver", "pcf8574", "--relay-pins", "0,1,2,3", "--high-freq-pins", "", "--listen", ""}
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	c, err := newController(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newController failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	if _, err := c.rt.Exec(ctx, "startPwmPatternPower 3 50 10 2000 500 0 40"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	for line, want := range map[string]string{
		"getRelaysStatus":   "[0,0,0,0]\n",
		"getPwmStatus":      "[0,0,0,0]\n",
		"getPatternsStatus": "[]\n",
	} {
		reply, err := c.rt.Exec(ctx, line)
		if err != nil {
			t.Fatalf("Exec(%s) failed: %v", line, err)
		}
		if reply != want {
			t.Errorf("%s = %q, want %q", line, reply, want)
		}
	}
}

func TestControllerRun(t *testing.T) {
	cfg := config.Default()
	cfg.Board.Driver = config.DriverPCF8574
	cfg.Board.RelayPins = []uint32{0, 1, 2, 3, 4, 5, 6, 7}
	cfg.Board.HighFreqPins = nil
	cfg.HTTP.Listen = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	c, err := newController(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newController failed: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	reply, err := c.rt.Exec(ctx, "getRelaysStatus")
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	if reply != "[0,0,0,0,0,0,0,0]\n" {
		t.Errorf("Unexpected reply %q", reply)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

// echoPort answers every command line with a fixed reply
type echoPort struct {
	mu      sync.Mutex
	reply   string
	pending bytes.Buffer
}

func (p *echoPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.WriteString(p.reply)
	return len(data), nil
}

func (p *echoPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending.Len() == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	return p.pending.Read(buf)
}

func TestConsole(t *testing.T) {
	c := client.New(&echoPort{reply: "[0,1]\n"})
	c.Idle = 10 * time.Millisecond

	var out bytes.Buffer
	in := strings.NewReader("getRelaysStatus\n\nquit\ngetPwmStatus\n")
	if err := console(context.Background(), c, 200*time.Millisecond, in, &out); err != nil {
		t.Fatalf("console failed: %v", err)
	}

	if got := strings.Count(out.String(), "[0,1]"); got != 1 {
		t.Errorf("Expected one reply before quit, got %d in %q", got, out.String())
	}
}

func TestSendLineNoReply(t *testing.T) {
	c := client.New(&echoPort{})

	var out bytes.Buffer
	if err := sendLine(context.Background(), c, "stopAllPwm", 20*time.Millisecond, &out); err != nil {
		t.Errorf("sendLine failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Unexpected output %q", out.String())
	}
}
