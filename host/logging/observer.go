package logging

import (
	"github.com/rs/zerolog"

	"ssrpwm/core"
)

// Observer logs relay activity. Transitions go out at debug level,
// rejected commands as throttled warnings.
type Observer struct {
	log      zerolog.Logger
	rejected *Throttled
}

// NewObserver creates an Observer on log
func NewObserver(log zerolog.Logger, perSec int) *Observer {
	log = log.With().Str("component", "relays").Logger()
	return &Observer{log: log, rejected: NewThrottled(log, perSec)}
}

func (o *Observer) RelayChanged(relay int, status core.RelayStatus) {
	state := "open"
	if status == core.RelayClosed {
		state = "closed"
	}
	o.log.Debug().Int("relay", relay).Str("state", state).Msg("relay changed")
}

func (o *Observer) PwmStatusChanged(relay int, status core.PwmStatus) {
	o.log.Debug().Int("relay", relay).Bool("running", status == core.PwmRunning).Msg("pwm status changed")
}

func (o *Observer) PatternsChanged(active int) {
	o.log.Debug().Int("active", active).Msg("patterns changed")
}

func (o *Observer) CommandRejected(command string, relay int, err error) {
	o.rejected.Warn().Str("command", command).Int("relay", relay).Err(err).Msg("command rejected")
}
