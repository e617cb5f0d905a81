package watchdog

import (
	"sync"
	"time"
)

// Firing is delivered when a scheduled slot comes due.
type Firing[T any] struct {
	Gen   uint64
	Value T
}

// Slot is a single-slot delayed task. Scheduling replaces whatever is
// pending, cancelling removes it. Every Schedule or Cancel bumps the
// generation, so a consumer holding an older Firing cannot re-arm it.
type Slot[T any] struct {
	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
	value T
	fired chan Firing[T]
}

func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{fired: make(chan Firing[T], 1)}
}

// C delivers due firings. At most one firing is ever buffered.
func (s *Slot[T]) C() <-chan Firing[T] {
	return s.fired
}

// Schedule replaces any pending firing with value, due after delay.
func (s *Slot[T]) Schedule(value T, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.gen++
	s.value = value
	s.armLocked(s.gen, delay)
}

// Reschedule re-arms the slot with its current value, but only if nothing
// was scheduled or cancelled since gen was handed out.
func (s *Slot[T]) Reschedule(gen uint64, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return false
	}
	s.stopTimerLocked()
	s.armLocked(gen, delay)
	return true
}

// Cancel removes any pending or buffered firing.
func (s *Slot[T]) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked()
	s.gen++
}

// Pending reports whether a firing is armed or waiting to be consumed.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil || len(s.fired) > 0
}

func (s *Slot[T]) armLocked(gen uint64, delay time.Duration) {
	if delay <= 0 {
		s.deliverLocked(gen)
		return
	}
	// The callback blocks on mu until armLocked returns, so t is set by then.
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.timer != t {
			return
		}
		s.timer = nil
		s.deliverLocked(gen)
	})
	s.timer = t
}

// deliverLocked only ever runs under mu, so after the drain the send
// cannot block.
func (s *Slot[T]) deliverLocked(gen uint64) {
	select {
	case <-s.fired:
	default:
	}
	s.fired <- Firing[T]{Gen: gen, Value: s.value}
}

func (s *Slot[T]) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Slot[T]) clearLocked() {
	s.stopTimerLocked()
	select {
	case <-s.fired:
	default:
	}
}
