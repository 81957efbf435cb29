// Relay PWM sequencing
// Turns start/stop requests into scheduled relay event pairs, including the
// two-level pattern mode where an envelope pair gates an inner PWM burst
package core

import (
	"errors"
	"strconv"
)

var (
	// ErrCapacityExceeded is returned when every pattern slot is in use
	ErrCapacityExceeded = errors.New("pattern store full")

	// ErrUnsupportedRelay is returned when a power-limited pattern targets
	// a relay without duty-scaled output
	ErrUnsupportedRelay = errors.New("relay is not high-frequency capable")
)

// PwmParams describes a plain PWM cycle. Durations are in ticks.
type PwmParams struct {
	Relay      int
	Period     uint32
	OnDuration uint32
	Delay      uint32
}

// PatternParams describes a pattern of PWM. Durations are in ticks; Power is
// only used by StartPwmPatternPower.
type PatternParams struct {
	Relay             int
	PwmPeriod         uint32
	PwmOnDuration     uint32
	PatternPeriod     uint32
	PatternOnDuration uint32
	Delay             uint32
	Power             uint8
}

// PatternStatus is a read-only view of one stored pattern
type PatternStatus struct {
	Slot     int           `json:"slot"`
	Relay    int           `json:"relay"`
	Envelope EnvelopeState `json:"envelope"`
	Burst    BurstState    `json:"burst"`
}

// Sequencer owns the relay board, the scheduler registrations and the
// pattern store. All methods must run on the loop that dispatches the
// scheduler.
type Sequencer struct {
	board    *RelayBoard
	sched    *Scheduler
	patterns PatternStore
	simple   map[int][]EventPairID // plain PWM pairs by relay
	observer Observer
}

// NewSequencer creates a sequencer driving board from sched
func NewSequencer(board *RelayBoard, sched *Scheduler) *Sequencer {
	return &Sequencer{
		board:    board,
		sched:    sched,
		simple:   make(map[int][]EventPairID),
		observer: NopObserver{},
	}
}

// SetObserver installs o on the sequencer and its relay board
func (s *Sequencer) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	s.observer = o
	s.board.SetObserver(o)
}

// Board returns the relay board
func (s *Sequencer) Board() *RelayBoard {
	return s.board
}

// Scheduler returns the event scheduler
func (s *Sequencer) Scheduler() *Scheduler {
	return s.sched
}

// PatternCount returns the number of running patterns
func (s *Sequencer) PatternCount() int {
	return s.patterns.Len()
}

// StartPwm cycles a relay closed for OnDuration every Period, starting
// after Delay, until stopped
func (s *Sequencer) StartPwm(p PwmParams) error {
	if !s.board.Valid(p.Relay) {
		return s.reject("startPwm", p.Relay, ErrInvalidRelay)
	}

	id := s.sched.AddInfinitePwm(s.closeRelayEvent, s.openRelayEvent,
		p.Delay, p.Period, p.OnDuration, p.Relay)
	s.simple[p.Relay] = append(s.simple[p.Relay], id)
	return nil
}

// StartPwmPattern runs an inner PWM burst on a relay during the on phase of
// a slower envelope cycle
func (s *Sequencer) StartPwmPattern(p PatternParams) (PatternHandle, error) {
	return s.startPattern("startPwmPattern", p, false)
}

// StartPwmPatternPower is StartPwmPattern with the inner burst driven at a
// reduced power level. Only relays on high-frequency pins are accepted.
func (s *Sequencer) StartPwmPatternPower(p PatternParams) (PatternHandle, error) {
	return s.startPattern("startPwmPatternPower", p, true)
}

func (s *Sequencer) startPattern(command string, p PatternParams, power bool) (PatternHandle, error) {
	if !s.board.Valid(p.Relay) {
		return PatternHandle{}, s.reject(command, p.Relay, ErrInvalidRelay)
	}
	if s.patterns.Full() {
		return PatternHandle{}, s.reject(command, p.Relay, ErrCapacityExceeded)
	}
	if power && !s.board.IsHighFreq(p.Relay) {
		return PatternHandle{}, s.reject(command, p.Relay, ErrUnsupportedRelay)
	}

	info := PatternInfo{
		Relay:         p.Relay,
		PwmPeriod:     p.PwmPeriod,
		PwmOnDuration: p.PwmOnDuration,
	}
	if power {
		info.Power = p.Power
		if info.Power > PowerMax {
			info.Power = PowerMax
		}
		info.HasPower = true
	}

	h, _ := s.patterns.Add(info)
	stored, _ := s.patterns.Get(h)
	stored.envelope = s.sched.AddInfinitePwm(
		func(int) { s.beginBurst(h) },
		func(int) { s.endBurst(h) },
		p.Delay, p.PatternPeriod, p.PatternOnDuration, h.Index())

	s.observer.PatternsChanged(s.patterns.Len())
	return h, nil
}

// StopAllPwm cancels every scheduled event, empties the pattern store, opens
// every relay and marks every relay stopped
func (s *Sequencer) StopAllPwm() {
	// Cancel before clearing so no callback can see a cleared slot
	s.sched.RemoveAllEvents()
	s.patterns.Clear()
	for relay := range s.simple {
		delete(s.simple, relay)
	}

	s.board.OpenAllRelays()
	s.board.SetAllPwmStatusStopped()
	s.observer.PatternsChanged(0)
}

// StopPwm cancels every PWM cycle and pattern on one relay, then opens it
func (s *Sequencer) StopPwm(relay int) error {
	if !s.board.Valid(relay) {
		return s.reject("stopPwm", relay, ErrInvalidRelay)
	}

	for _, id := range s.simple[relay] {
		s.sched.RemoveEventPair(id)
	}
	delete(s.simple, relay)

	removed := 0
	s.patterns.Each(func(h PatternHandle, info *PatternInfo) {
		if info.Relay != relay {
			return
		}
		s.sched.RemoveEventPair(info.envelope)
		if info.burstState == BurstRunning {
			s.sched.RemoveEventPair(info.burst)
		}
		s.patterns.Remove(h)
		removed++
	})

	s.board.OpenRelay(relay)
	s.board.SetPwmStatusStopped(relay)
	if removed > 0 {
		s.observer.PatternsChanged(s.patterns.Len())
	}
	return nil
}

// RelaysStatus returns the state of every relay in relay order
func (s *Sequencer) RelaysStatus() []RelayStatus {
	status := make([]RelayStatus, s.board.RelayCount())
	for relay := range status {
		status[relay] = s.board.RelayStatus(relay)
	}
	return status
}

// PwmStatus returns the PWM status of every relay in relay order
func (s *Sequencer) PwmStatus() []PwmStatus {
	status := make([]PwmStatus, s.board.RelayCount())
	for relay := range status {
		status[relay] = s.board.PwmStatus(relay)
	}
	return status
}

// PatternsStatus returns every stored pattern in slot order
func (s *Sequencer) PatternsStatus() []PatternStatus {
	var status []PatternStatus
	s.patterns.Each(func(h PatternHandle, info *PatternInfo) {
		status = append(status, PatternStatus{
			Slot:     h.Index(),
			Relay:    info.Relay,
			Envelope: info.envelopeState,
			Burst:    info.burstState,
		})
	})
	return status
}

// closeRelayEvent starts a plain PWM cycle
func (s *Sequencer) closeRelayEvent(relay int) {
	s.board.CloseRelay(relay)
	s.board.SetPwmStatusRunning(relay)
}

// openRelayEvent ends the on phase of any PWM cycle
func (s *Sequencer) openRelayEvent(relay int) {
	s.board.OpenRelay(relay)
}

// beginBurst is the envelope start callback. The inner pair id is stored in
// the slot before any inner callback can run.
func (s *Sequencer) beginBurst(h PatternHandle) {
	info, ok := s.patterns.Get(h)
	if !ok {
		DebugPrintln("[pattern] start for stale slot " + strconv.Itoa(h.Index()))
		return
	}
	if info.burstState == BurstRunning {
		panic("pattern burst started twice")
	}

	s.board.SetPwmStatusRunning(info.Relay)

	var start EventCallback
	if info.HasPower {
		start = func(int) {
			if p, ok := s.patterns.Get(h); ok {
				s.board.HighFreqPwmRelay(p.Relay, p.Power)
			}
		}
	} else {
		start = func(relay int) {
			s.board.CloseRelay(relay)
		}
	}

	info.burst = s.sched.AddInfinitePwm(start, s.openRelayEvent,
		0, info.PwmPeriod, info.PwmOnDuration, info.Relay)
	info.burstState = BurstRunning
	info.envelopeState = EnvelopeActive
}

// endBurst is the envelope stop callback. It cancels the burst through the
// id currently stored in the slot.
func (s *Sequencer) endBurst(h PatternHandle) {
	info, ok := s.patterns.Get(h)
	if !ok {
		DebugPrintln("[pattern] stop for stale slot " + strconv.Itoa(h.Index()))
		return
	}
	if info.burstState != BurstRunning || info.burst == 0 {
		panic("pattern envelope stopped without a running burst")
	}

	s.sched.RemoveEventPair(info.burst)
	info.burst = 0
	info.burstState = BurstIdle
	info.envelopeState = EnvelopeInactive

	s.board.OpenRelay(info.Relay)
	s.board.SetPwmStatusStopped(info.Relay)
}

// reject reports a command that is dropped without effect
func (s *Sequencer) reject(command string, relay int, err error) error {
	DebugPrintln("[" + command + "] relay " + strconv.Itoa(relay) + " rejected: " + err.Error())
	s.observer.CommandRejected(command, relay, err)
	return err
}
