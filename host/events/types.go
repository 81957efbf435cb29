package events

// Event type constants for kelindar/event.
const (
	TypeRelayChanged uint32 = iota + 1
	TypePwmStatusChanged
	TypePatternsChanged
	TypeCommandRejected
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RelayChangedEvent reports a relay opening or closing.
type RelayChangedEvent struct {
	Relay  int    `json:"relay"`
	State  string `json:"state"`
	Uptime uint32 `json:"uptime_ms"`
}

// Type returns the event type identifier for RelayChangedEvent.
func (e RelayChangedEvent) Type() uint32 { return TypeRelayChanged }

// PwmStatusChangedEvent reports a relay entering or leaving a PWM cycle.
type PwmStatusChangedEvent struct {
	Relay   int    `json:"relay"`
	Running bool   `json:"running"`
	Uptime  uint32 `json:"uptime_ms"`
}

// Type returns the event type identifier for PwmStatusChangedEvent.
func (e PwmStatusChangedEvent) Type() uint32 { return TypePwmStatusChanged }

// PatternsChangedEvent reports the number of occupied pattern slots.
type PatternsChangedEvent struct {
	Active int    `json:"active"`
	Uptime uint32 `json:"uptime_ms"`
}

// Type returns the event type identifier for PatternsChangedEvent.
func (e PatternsChangedEvent) Type() uint32 { return TypePatternsChanged }

// CommandRejectedEvent reports a command dropped without effect.
type CommandRejectedEvent struct {
	Command string `json:"command"`
	Relay   int    `json:"relay"`
	Error   string `json:"error"`
	Uptime  uint32 `json:"uptime_ms"`
}

// Type returns the event type identifier for CommandRejectedEvent.
func (e CommandRejectedEvent) Type() uint32 { return TypeCommandRejected }

// Name returns the wire name of an event type
func Name(ev Event) string {
	switch ev.Type() {
	case TypeRelayChanged:
		return "relay_changed"
	case TypePwmStatusChanged:
		return "pwm_status_changed"
	case TypePatternsChanged:
		return "patterns_changed"
	case TypeCommandRejected:
		return "command_rejected"
	default:
		return "unknown"
	}
}
