// Package events broadcasts relay sequencer activity to host subscribers.
package events

import (
	"github.com/kelindar/event"

	"ssrpwm/core"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
// Handlers run asynchronously, one goroutine per subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case RelayChangedEvent:
		event.Publish(b.dispatcher, e)
	case PwmStatusChangedEvent:
		event.Publish(b.dispatcher, e)
	case PatternsChangedEvent:
		event.Publish(b.dispatcher, e)
	case CommandRejectedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type selects the events it receives. Returns an unsubscribe
// function.
// Usage: unsub := bus.Subscribe(func(e RelayChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RelayChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PwmStatusChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PatternsChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CommandRejectedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// SubscribeAll delivers every event type to handler
func (b *Bus) SubscribeAll(handler func(Event)) func() {
	unsubs := []func(){
		b.Subscribe(func(e RelayChangedEvent) { handler(e) }),
		b.Subscribe(func(e PwmStatusChangedEvent) { handler(e) }),
		b.Subscribe(func(e PatternsChangedEvent) { handler(e) }),
		b.Subscribe(func(e CommandRejectedEvent) { handler(e) }),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Observer publishes core.Observer notifications on a bus. Clock supplies
// the uptime stamped on each event.
type Observer struct {
	Bus   *Bus
	Clock func() uint32
}

// NewObserver creates an Observer stamping events with clock
func NewObserver(bus *Bus, clock func() uint32) *Observer {
	if clock == nil {
		clock = core.GetUptime
	}
	return &Observer{Bus: bus, Clock: clock}
}

func (o *Observer) RelayChanged(relay int, status core.RelayStatus) {
	state := "open"
	if status == core.RelayClosed {
		state = "closed"
	}
	o.Bus.Publish(RelayChangedEvent{Relay: relay, State: state, Uptime: o.Clock()})
}

func (o *Observer) PwmStatusChanged(relay int, status core.PwmStatus) {
	o.Bus.Publish(PwmStatusChangedEvent{Relay: relay, Running: status == core.PwmRunning, Uptime: o.Clock()})
}

func (o *Observer) PatternsChanged(active int) {
	o.Bus.Publish(PatternsChangedEvent{Active: active, Uptime: o.Clock()})
}

func (o *Observer) CommandRejected(command string, relay int, err error) {
	o.Bus.Publish(CommandRejectedEvent{Command: command, Relay: relay, Error: err.Error(), Uptime: o.Clock()})
}

// SubscribeChannel forwards every event to ch without blocking. Events are
// dropped while ch is full.
func (b *Bus) SubscribeChannel(ch chan<- Event) func() {
	return b.SubscribeAll(func(e Event) {
		select {
		case ch <- e:
		default:
		}
	})
}
