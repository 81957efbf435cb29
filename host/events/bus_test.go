package events

import (
	"errors"
	"testing"
	"time"

	"ssrpwm/core"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
		panic("unreachable")
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan RelayChangedEvent, 1)

	unsub := bus.Subscribe(func(e RelayChangedEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(RelayChangedEvent{Relay: 3, State: "closed"})

	got := receive(t, received)
	if got.Relay != 3 || got.State != "closed" {
		t.Errorf("Unexpected event %+v", got)
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(s string) {})
	unsub()
}

func TestBus_SubscribeChannel(t *testing.T) {
	bus := New()
	ch := make(chan Event, 4)
	unsub := bus.SubscribeChannel(ch)
	defer unsub()

	bus.Publish(PatternsChangedEvent{Active: 2})
	if e, ok := receive(t, ch).(PatternsChangedEvent); !ok || e.Active != 2 {
		t.Errorf("Unexpected event %+v", e)
	}

	bus.Publish(CommandRejectedEvent{Command: "startPwmPattern"})
	if e, ok := receive(t, ch).(CommandRejectedEvent); !ok || e.Command != "startPwmPattern" {
		t.Errorf("Unexpected event %+v", e)
	}
}

func TestObserver(t *testing.T) {
	bus := New()
	ch := make(chan Event, 8)
	defer bus.SubscribeChannel(ch)()

	var obs core.Observer = NewObserver(bus, func() uint32 { return 1234 })

	obs.RelayChanged(1, core.RelayClosed)
	if e := receive(t, ch).(RelayChangedEvent); e.Relay != 1 || e.State != "closed" || e.Uptime != 1234 {
		t.Errorf("Unexpected relay event %+v", e)
	}

	obs.PwmStatusChanged(4, core.PwmRunning)
	if e := receive(t, ch).(PwmStatusChangedEvent); e.Relay != 4 || !e.Running {
		t.Errorf("Unexpected pwm event %+v", e)
	}

	obs.CommandRejected("startPwmPatternPower", 0, errors.New("relay is not high-frequency capable"))
	if e := receive(t, ch).(CommandRejectedEvent); e.Error != "relay is not high-frequency capable" {
		t.Errorf("Unexpected rejection event %+v", e)
	}
}

func TestName(t *testing.T) {
	tests := map[string]Event{
		"relay_changed":      RelayChangedEvent{},
		"pwm_status_changed": PwmStatusChangedEvent{},
		"patterns_changed":   PatternsChangedEvent{},
		"command_rejected":   CommandRejectedEvent{},
	}
	for want, ev := range tests {
		if got := Name(ev); got != want {
			t.Errorf("Name(%T) = %q, want %q", ev, got, want)
		}
	}
}
