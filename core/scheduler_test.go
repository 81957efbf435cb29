package core

import (
	"reflect"
	"testing"
)

type firing struct {
	name string
	at   uint32
}

// eventLog records callback firings against the scheduler clock
type eventLog struct {
	sched  *Scheduler
	events []firing
}

func (l *eventLog) callback(name string) EventCallback {
	return func(int) {
		l.events = append(l.events, firing{name, l.sched.Now()})
	}
}

func TestAddInfinitePwmTiming(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 0, 1000, 300, 2)

	for now := uint32(0); now <= 2500; now += 50 {
		s.Dispatch(now)
	}

	want := []firing{
		{"start", 0}, {"stop", 300},
		{"start", 1000}, {"stop", 1300},
		{"start", 2000}, {"stop", 2300},
	}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("Unexpected firings:\n got %v\nwant %v", log.events, want)
	}
}

func TestAddInfinitePwmDelay(t *testing.T) {
	s := NewScheduler(100)
	log := &eventLog{sched: s}

	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 250, 100, 10, 0)

	s.Dispatch(349)
	if len(log.events) != 0 {
		t.Fatalf("Pair fired before its delay: %v", log.events)
	}
	s.Dispatch(360)
	want := []firing{{"start", 350}, {"stop", 360}}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}
}

func TestDispatchCatchUp(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 0, 100, 40, 0)

	// One late dispatch runs every due callback at its own wake time
	s.Dispatch(250)

	want := []firing{
		{"start", 0}, {"stop", 40},
		{"start", 100}, {"stop", 140},
		{"start", 200}, {"stop", 240},
	}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}
	if s.Now() != 250 {
		t.Errorf("Expected Now 250 after dispatch, got %d", s.Now())
	}
}

func TestAddInfinitePwmClamps(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	// onDuration longer than the period clamps to the period
	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 0, 10, 50, 0)
	s.Dispatch(10)

	want := []firing{{"start", 0}, {"stop", 10}, {"start", 10}}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}

	// A zero period is treated as one tick
	s.RemoveAllEvents()
	log.events = nil
	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 0, 0, 0, 0)
	s.Dispatch(12)
	if len(log.events) != 6 {
		t.Errorf("Expected one cycle per tick for a zero period, got %v", log.events)
	}
}

func TestAddInfinitePwmLongDelay(t *testing.T) {
	s := NewScheduler(10)
	log := &eventLog{sched: s}

	// Past MaxInterval the wake time would wrap behind now
	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 1<<32-1, 1<<32-1, 100, 0)

	s.Dispatch(11)
	s.Dispatch(10 + MaxInterval - 1)
	if len(log.events) != 0 {
		t.Fatalf("Pair fired early: %v", log.events)
	}

	s.Dispatch(10 + MaxInterval)
	want := []firing{{"start", 10 + MaxInterval}}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}
}

func TestDispatchFIFOTies(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	s.AddInfinitePwm(log.callback("a"), nil, 5, 100, 50, 0)
	s.AddInfinitePwm(log.callback("b"), nil, 5, 100, 50, 0)
	s.AddInfinitePwm(log.callback("c"), nil, 5, 100, 50, 0)

	s.Dispatch(5)

	want := []firing{{"a", 5}, {"b", 5}, {"c", 5}}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("Equal wake times must fire in registration order: got %v", log.events)
	}
}

func TestRemoveEventPair(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	id := s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 0, 100, 50, 0)
	s.Dispatch(0)

	if !s.IsActive(id) || s.Pending() != 1 {
		t.Fatal("Expected pair to be active")
	}

	s.RemoveEventPair(id)
	s.Dispatch(1000)

	if len(log.events) != 1 {
		t.Errorf("Callbacks fired after removal: %v", log.events)
	}
	if s.IsActive(id) || s.Pending() != 0 {
		t.Error("Pair still registered after removal")
	}

	// Unknown and zero ids are ignored
	s.RemoveEventPair(id)
	s.RemoveEventPair(0)
}

func TestRemoveInsideDispatch(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	var victim EventPairID
	s.AddInfinitePwm(func(int) {
		log.events = append(log.events, firing{"killer", s.Now()})
		s.RemoveEventPair(victim)
	}, nil, 10, 100, 50, 0)
	victim = s.AddInfinitePwm(log.callback("victim"), nil, 10, 100, 50, 0)

	s.Dispatch(500)

	for _, e := range log.events {
		if e.name == "victim" {
			t.Fatalf("Pair removed earlier in the same dispatch still fired: %v", log.events)
		}
	}
}

func TestRemoveSelfFromCallback(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	var id EventPairID
	id = s.AddInfinitePwm(func(int) {
		log.events = append(log.events, firing{"start", s.Now()})
		s.RemoveEventPair(id)
	}, log.callback("stop"), 0, 100, 50, 0)

	s.Dispatch(1000)

	want := []firing{{"start", 0}}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}
}

func TestRemoveAllEventsInsideDispatch(t *testing.T) {
	s := NewScheduler(0)
	log := &eventLog{sched: s}

	s.AddInfinitePwm(func(int) {
		log.events = append(log.events, firing{"stopper", s.Now()})
		s.RemoveAllEvents()
	}, nil, 20, 100, 50, 0)
	s.AddInfinitePwm(log.callback("other"), log.callback("other-stop"), 0, 30, 10, 0)

	s.Dispatch(1000)

	want := []firing{{"other", 0}, {"other-stop", 10}, {"stopper", 20}}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}
	if s.Pending() != 0 {
		t.Errorf("Expected no pending pairs, got %d", s.Pending())
	}
}

func TestSchedulerWrapAround(t *testing.T) {
	start := uint32(0xFFFFFFFF - 150)
	s := NewScheduler(start)
	log := &eventLog{sched: s}

	s.AddInfinitePwm(log.callback("start"), log.callback("stop"), 0, 100, 20, 0)

	for i := uint32(0); i <= 300; i += 10 {
		s.Dispatch(start + i)
	}

	want := []firing{
		{"start", start}, {"stop", start + 20},
		{"start", start + 100}, {"stop", start + 120},
		{"start", start + 200}, {"stop", start + 220},
		{"start", start + 300},
	}
	if !reflect.DeepEqual(log.events, want) {
		t.Errorf("got %v, want %v", log.events, want)
	}
}

func TestTimerConversions(t *testing.T) {
	if TimerFromMS(1500) != 1500 {
		t.Errorf("TimerFromMS(1500) = %d", TimerFromMS(1500))
	}
	if TimerToMS(TimerFromMS(42)) != 42 {
		t.Error("TimerToMS does not invert TimerFromMS")
	}
	if TimerFromUS(2500) != 2 {
		t.Errorf("TimerFromUS(2500) = %d", TimerFromUS(2500))
	}

	SetTime(1000)
	TimerInit()
	SetTime(1250)
	if GetUptime() != 250 {
		t.Errorf("Expected uptime 250, got %d", GetUptime())
	}
}

func TestTimerBefore(t *testing.T) {
	if !timerBefore(0xFFFFFFF0, 0x10) {
		t.Error("Expected wrapped tick to compare earlier")
	}
	if timerBefore(5, 5) {
		t.Error("Equal ticks are not before each other")
	}
}
