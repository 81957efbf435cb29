package core

// PatternCountMax is the number of patterns that can run at once
const PatternCountMax = 8

// PatternHandle addresses a pattern slot. The generation changes every time
// the slot is reused, so a handle held by a cancelled callback can never
// resolve to a newer pattern. The zero handle is never valid.
type PatternHandle struct {
	index      uint8
	generation uint16
}

// Index returns the slot index
func (h PatternHandle) Index() int {
	return int(h.index)
}

// EnvelopeState is the outer on/off cycle of a pattern
type EnvelopeState uint8

const (
	EnvelopePending  EnvelopeState = iota // waiting for the first start
	EnvelopeActive                        // inner burst running
	EnvelopeInactive                      // inner burst cancelled until the next start
)

// BurstState is the inner PWM cycle of a pattern
type BurstState uint8

const (
	BurstIdle BurstState = iota
	BurstRunning
)

// PatternInfo is one pattern of PWM
type PatternInfo struct {
	Relay         int
	PwmPeriod     uint32
	PwmOnDuration uint32
	Power         uint8
	HasPower      bool

	envelope      EventPairID
	envelopeState EnvelopeState
	burst         EventPairID // valid only while burstState is BurstRunning
	burstState    BurstState
}

// EnvelopeState returns the outer cycle state
func (p *PatternInfo) EnvelopeState() EnvelopeState {
	return p.envelopeState
}

// BurstState returns the inner cycle state
func (p *PatternInfo) BurstState() BurstState {
	return p.burstState
}

type patternSlot struct {
	info       PatternInfo
	generation uint16
	used       bool
}

// PatternStore is a fixed-capacity table of running patterns
type PatternStore struct {
	slots [PatternCountMax]patternSlot
	count int
}

// Add stores info in the first free slot. It returns false when the store
// is full.
func (s *PatternStore) Add(info PatternInfo) (PatternHandle, bool) {
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.used {
			continue
		}
		slot.generation++
		if slot.generation == 0 {
			slot.generation++
		}
		slot.info = info
		slot.used = true
		s.count++
		return PatternHandle{index: uint8(i), generation: slot.generation}, true
	}
	return PatternHandle{}, false
}

// Get resolves a handle. Stale or zero handles return false.
func (s *PatternStore) Get(h PatternHandle) (*PatternInfo, bool) {
	if int(h.index) >= len(s.slots) {
		return nil, false
	}
	slot := &s.slots[h.index]
	if !slot.used || slot.generation != h.generation {
		return nil, false
	}
	return &slot.info, true
}

// Remove frees the slot addressed by h
func (s *PatternStore) Remove(h PatternHandle) bool {
	if _, ok := s.Get(h); !ok {
		return false
	}
	slot := &s.slots[h.index]
	slot.used = false
	slot.info = PatternInfo{}
	s.count--
	return true
}

// Clear frees every slot
func (s *PatternStore) Clear() {
	for i := range s.slots {
		s.slots[i].used = false
		s.slots[i].info = PatternInfo{}
	}
	s.count = 0
}

// Each calls fn for every stored pattern in slot order
func (s *PatternStore) Each(fn func(h PatternHandle, info *PatternInfo)) {
	for i := range s.slots {
		slot := &s.slots[i]
		if slot.used {
			fn(PatternHandle{index: uint8(i), generation: slot.generation}, &slot.info)
		}
	}
}

// Len returns the number of stored patterns
func (s *PatternStore) Len() int {
	return s.count
}

// Cap returns the store capacity
func (s *PatternStore) Cap() int {
	return len(s.slots)
}

// Full reports whether no slot is free
func (s *PatternStore) Full() bool {
	return s.count == len(s.slots)
}

// Empty reports whether no slot is used
func (s *PatternStore) Empty() bool {
	return s.count == 0
}
