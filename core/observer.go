package core

// Observer receives state changes and silently rejected commands. Every
// method is called from the scheduler loop and must not block.
type Observer interface {
	RelayChanged(relay int, status RelayStatus)
	PwmStatusChanged(relay int, status PwmStatus)
	PatternsChanged(active int)
	CommandRejected(command string, relay int, err error)
}

// NopObserver ignores everything
type NopObserver struct{}

func (NopObserver) RelayChanged(int, RelayStatus)      {}
func (NopObserver) PwmStatusChanged(int, PwmStatus)    {}
func (NopObserver) PatternsChanged(int)                {}
func (NopObserver) CommandRejected(string, int, error) {}

// Observers fans out to several observers in order
type Observers []Observer

func (o Observers) RelayChanged(relay int, status RelayStatus) {
	for _, obs := range o {
		obs.RelayChanged(relay, status)
	}
}

func (o Observers) PwmStatusChanged(relay int, status PwmStatus) {
	for _, obs := range o {
		obs.PwmStatusChanged(relay, status)
	}
}

func (o Observers) PatternsChanged(active int) {
	for _, obs := range o {
		obs.PatternsChanged(active)
	}
}

func (o Observers) CommandRejected(command string, relay int, err error) {
	for _, obs := range o {
		obs.CommandRejected(command, relay, err)
	}
}
