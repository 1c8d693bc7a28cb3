package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Repeat scheduler
// ============================================================================
// Press fires an action at once and, for as long as the chord stays held,
// again every repeat interval once the hold delay has passed. Each held
// action gets its own ticker goroutine polling its state; Release only
// clears a flag, so a repeat stops at most one poll period after the key-up.
//
// Every request (Press or Trigger) also passes a per-action debounce: a
// second request for the same action inside the window is dropped.
// ============================================================================

// RepeatTiming holds the scheduler's durations.
type RepeatTiming struct {
	HoldDelay      time.Duration
	RepeatInterval time.Duration
	PollPeriod     time.Duration
	Debounce       time.Duration
}

func defaultRepeatTiming() RepeatTiming {
	return RepeatTiming{
		HoldDelay:      defaultHoldDelay,
		RepeatInterval: defaultRepeatInterval,
		PollPeriod:     defaultPollPeriod,
		Debounce:       defaultActionDebounce,
	}
}

func repeatTimingFromConfig(h HotkeysConfig) RepeatTiming {
	return RepeatTiming{
		HoldDelay:      h.HoldDelay(),
		RepeatInterval: h.RepeatInterval(),
		PollPeriod:     h.PollPeriod(),
		Debounce:       h.Debounce(),
	}
}

// repeatState is the per-action state machine. Times are UnixNano.
type repeatState struct {
	active    atomic.Bool
	running   atomic.Bool // a ticker goroutine owns this state
	pressedAt atomic.Int64
	lastFire  atomic.Int64
}

type RepeatScheduler struct {
	fire func(Action)
	now  func() time.Time

	timing atomic.Pointer[RepeatTiming]

	mu          sync.Mutex
	states      map[Action]*repeatState
	lastRequest map[Action]time.Time

	stop     chan struct{}
	stopOnce sync.Once
	stopped  bool // guarded by mu
	wg       sync.WaitGroup
}

// NewRepeatScheduler returns a scheduler that calls fire for every firing.
// fire runs on the caller's goroutine (key callback or ticker) and must not
// block.
func NewRepeatScheduler(fire func(Action), timing RepeatTiming) *RepeatScheduler {
	s := &RepeatScheduler{
		fire:        fire,
		now:         time.Now,
		states:      make(map[Action]*repeatState),
		lastRequest: make(map[Action]time.Time),
		stop:        make(chan struct{}),
	}
	s.timing.Store(&timing)
	return s
}

// SetTiming swaps the durations. Running tickers pick them up on their next poll.
func (s *RepeatScheduler) SetTiming(t RepeatTiming) {
	s.timing.Store(&t)
}

func (s *RepeatScheduler) state(a Action) *repeatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[a]
	if !ok {
		st = &repeatState{}
		s.states[a] = st
	}
	return st
}

// allow applies the per-action debounce and records the request.
func (s *RepeatScheduler) allow(a Action, now time.Time) bool {
	window := s.timing.Load().Debounce

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastRequest[a]; ok && now.Sub(last) < window {
		return false
	}
	s.lastRequest[a] = now
	return true
}

// Trigger fires a one-shot action. It returns false if the request was
// debounced.
func (s *RepeatScheduler) Trigger(a Action) bool {
	if !s.allow(a, s.now()) {
		return false
	}
	s.fire(a)
	return true
}

// Press starts the hold cycle for a: fire now, then repeat while held.
// It returns false if the request was debounced or a is already held.
func (s *RepeatScheduler) Press(a Action) bool {
	now := s.now()
	if !s.allow(a, now) {
		return false
	}

	st := s.state(a)
	if st.active.Load() {
		return false
	}
	// Timestamps are published before active so a ticker that sees the new
	// press never pairs it with the previous cycle's times.
	st.pressedAt.Store(now.UnixNano())
	st.lastFire.Store(now.UnixNano())
	if !st.active.CompareAndSwap(false, true) {
		return false
	}
	s.fire(a)

	if st.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			st.running.Store(false)
			return true
		}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.tick(a, st)
	}
	return true
}

// Release ends the hold cycle for a.
func (s *RepeatScheduler) Release(a Action) {
	s.mu.Lock()
	st, ok := s.states[a]
	s.mu.Unlock()
	if ok {
		st.active.Store(false)
	}
}

// ReleaseAll ends every hold cycle.
func (s *RepeatScheduler) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		st.active.Store(false)
	}
}

// IsActive reports whether a is currently held.
func (s *RepeatScheduler) IsActive(a Action) bool {
	s.mu.Lock()
	st, ok := s.states[a]
	s.mu.Unlock()
	return ok && st.active.Load()
}

func (s *RepeatScheduler) tick(a Action, st *repeatState) {
	defer s.wg.Done()

	for {
		poll := s.timing.Load().PollPeriod
		timer := time.NewTimer(poll)
		select {
		case <-s.stop:
			timer.Stop()
			st.active.Store(false)
			st.running.Store(false)
			return
		case <-timer.C:
		}

		if !st.active.Load() {
			st.running.Store(false)
			// A Press between the Load above and the Store saw running=true
			// and left the repeat to this goroutine.
			if st.active.Load() && st.running.CompareAndSwap(false, true) {
				continue
			}
			return
		}

		t := s.timing.Load()
		now := s.now().UnixNano()
		if now-st.pressedAt.Load() >= int64(t.HoldDelay) && now-st.lastFire.Load() >= int64(t.RepeatInterval) {
			st.lastFire.Store(now)
			s.fire(a)
		}
	}
}

// Run blocks until ctx is done, then stops every ticker and waits for them.
func (s *RepeatScheduler) Run(ctx context.Context) error {
	<-ctx.Done()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}
