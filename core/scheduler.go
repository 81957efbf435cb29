package core

// Timer represents a scheduled wakeup
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// EventCallback is invoked by the scheduler with the argument supplied when
// the event pair was registered.
type EventCallback func(arg int)

// EventPairID identifies a linked start/stop registration. Zero is never
// issued and means "no pair".
type EventPairID uint32

// eventPair is an infinite start/stop cycle driven by a single timer, so its
// callbacks strictly alternate.
type eventPair struct {
	timer      Timer
	id         EventPairID
	start      EventCallback
	stop       EventCallback
	arg        int
	period     uint32
	onDuration uint32
	cycleStart uint32 // wake time of the most recent start
	started    bool   // next fire is the stop callback
	cancelled  bool
}

// Scheduler keeps timers sorted by wake time and runs them from Dispatch.
// It is not safe for concurrent use; all calls must come from the loop that
// calls Dispatch.
type Scheduler struct {
	timerList *Timer
	now       uint32
	pairs     map[EventPairID]*eventPair
	lastID    EventPairID
}

// NewScheduler creates a scheduler whose clock starts at now
func NewScheduler(now uint32) *Scheduler {
	return &Scheduler{
		now:   now,
		pairs: make(map[EventPairID]*eventPair),
	}
}

// Now returns the scheduler's notion of the current tick. While a callback
// runs this is the wake time of the timer being handled.
func (s *Scheduler) Now() uint32 {
	return s.now
}

// Pending returns the number of registered event pairs
func (s *Scheduler) Pending() int {
	return len(s.pairs)
}

// IsActive reports whether the pair is still registered
func (s *Scheduler) IsActive(id EventPairID) bool {
	_, ok := s.pairs[id]
	return ok
}

// ScheduleTimer adds a timer to the schedule
func (s *Scheduler) ScheduleTimer(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.insertTimer(t)
}

// insertTimer inserts a timer in sorted order by WakeTime. Timers with equal
// wake times keep insertion order.
func (s *Scheduler) insertTimer(t *Timer) {
	if s.timerList == nil || timerBefore(t.WakeTime, s.timerList.WakeTime) {
		t.Next = s.timerList
		s.timerList = t
		return
	}

	current := s.timerList
	for current.Next != nil && !timerBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// removeTimer unlinks t if it is queued
func (s *Scheduler) removeTimer(t *Timer) {
	if s.timerList == t {
		s.timerList = t.Next
		t.Next = nil
		return
	}
	for current := s.timerList; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// popDue removes and returns the head timer if it is due at now
func (s *Scheduler) popDue(now uint32) *Timer {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.timerList == nil || timerBefore(now, s.timerList.WakeTime) {
		return nil
	}
	timer := s.timerList
	s.timerList = timer.Next
	timer.Next = nil // Clear Next pointer to avoid circular references
	return timer
}

// Dispatch runs every timer due at or before now, including reschedules that
// fall due before now, in wake time order.
func (s *Scheduler) Dispatch(now uint32) {
	for {
		timer := s.popDue(now)
		if timer == nil {
			break
		}
		s.now = timer.WakeTime

		if timer.Handler(timer) == SF_RESCHEDULE {
			s.ScheduleTimer(timer)
		}
	}
	s.now = now
}

// AddInfinitePwm registers a pair that calls start after delay, stop
// onDuration later, and repeats every period until removed.
func (s *Scheduler) AddInfinitePwm(start, stop EventCallback, delay, period, onDuration uint32, arg int) EventPairID {
	if period == 0 {
		period = 1
	}
	period = min(period, MaxInterval)
	delay = min(delay, MaxInterval)
	if onDuration > period {
		onDuration = period
	}

	s.lastID++
	if s.lastID == 0 {
		s.lastID++
	}

	p := &eventPair{
		id:         s.lastID,
		start:      start,
		stop:       stop,
		arg:        arg,
		period:     period,
		onDuration: onDuration,
	}
	p.timer.WakeTime = s.now + delay
	p.timer.Handler = func(*Timer) uint8 {
		return s.firePair(p)
	}

	s.pairs[p.id] = p
	s.ScheduleTimer(&p.timer)
	return p.id
}

// firePair is the timer handler shared by every event pair
func (s *Scheduler) firePair(p *eventPair) uint8 {
	if p.cancelled {
		return SF_DONE
	}

	if !p.started {
		p.cycleStart = p.timer.WakeTime
		p.started = true
		if p.start != nil {
			p.start(p.arg)
		}
		if p.cancelled {
			return SF_DONE
		}
		p.timer.WakeTime = p.cycleStart + p.onDuration
		return SF_RESCHEDULE
	}

	p.started = false
	if p.stop != nil {
		p.stop(p.arg)
	}
	if p.cancelled {
		return SF_DONE
	}
	p.timer.WakeTime = p.cycleStart + p.period
	return SF_RESCHEDULE
}

// RemoveEventPair cancels a pair. No callback of the pair runs afterwards,
// even one already due in the current Dispatch. Unknown ids are ignored.
func (s *Scheduler) RemoveEventPair(id EventPairID) {
	p, ok := s.pairs[id]
	if !ok {
		return
	}
	delete(s.pairs, id)
	p.cancelled = true

	state := disableInterrupts()
	s.removeTimer(&p.timer)
	restoreInterrupts(state)
}

// RemoveAllEvents cancels every pair and drops every queued timer
func (s *Scheduler) RemoveAllEvents() {
	for id, p := range s.pairs {
		p.cancelled = true
		delete(s.pairs, id)
	}

	state := disableInterrupts()
	s.timerList = nil
	restoreInterrupts(state)
}
