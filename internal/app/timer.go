package app

import (
	"sync"
	"time"
)

type timerState int

const (
	timerIdle timerState = iota
	timerRunning
	timerPaused
	timerExpired
)

// Timer is the per-question countdown. Only one activation is live at a time;
// starting a new one silently discards the previous one.
//
// Methods are called by the session authority. Tick and expiry callbacks run on
// clock goroutines and are expected to hand off to the authority.
type Timer struct {
	clock    Clock
	interval time.Duration
	onTick   func(activation uint64, remaining int)
	onExpire func(activation uint64)

	mu         sync.Mutex
	activation uint64
	gen        uint64 // bumped on every (re)schedule so stale callbacks drop themselves
	state      timerState
	deadline   time.Time
	frozen     time.Duration
	stopExpire func() bool
	stopTick   func() bool
}

// NewTimer builds a timer ticking every interval (no ticks when interval <= 0).
func NewTimer(clock Clock, interval time.Duration, onTick func(uint64, int), onExpire func(uint64)) *Timer {
	if onTick == nil {
		onTick = func(uint64, int) {}
	}
	if onExpire == nil {
		onExpire = func(uint64) {}
	}
	return &Timer{clock: clock, interval: interval, onTick: onTick, onExpire: onExpire}
}

// Start begins a new activation of d and returns its id.
func (t *Timer) Start(d time.Duration) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.activation++
	t.scheduleLocked(d)
	return t.activation
}

// Pause freezes the countdown and returns the remaining whole seconds. expired
// is true when the activation had already run out before the pause landed.
func (t *Timer) Pause() (remaining int, expired bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case timerRunning:
		secs := wholeSeconds(t.deadline.Sub(t.clock.Now()))
		t.cancelLocked()
		if secs == 0 {
			// The expiry callback was due but had not run yet.
			t.state = timerExpired
			return 0, true
		}
		t.frozen = time.Duration(secs) * time.Second
		t.state = timerPaused
		return secs, false
	case timerPaused:
		return wholeSeconds(t.frozen), false
	case timerExpired:
		return 0, true
	default:
		return 0, false
	}
}

// Resume restarts a paused activation from the frozen remainder.
func (t *Timer) Resume() (remaining int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != timerPaused {
		return 0, false
	}
	t.scheduleLocked(t.frozen)
	return wholeSeconds(t.frozen), true
}

// Stop cancels the live activation without firing its expiry.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.state = timerIdle
}

// Remaining reports the whole seconds left on the live activation.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case timerRunning:
		return wholeSeconds(t.deadline.Sub(t.clock.Now()))
	case timerPaused:
		return wholeSeconds(t.frozen)
	default:
		return 0
	}
}

// Deadline is the expiry instant of a running activation.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

func (t *Timer) scheduleLocked(d time.Duration) {
	t.gen++
	gen, act := t.gen, t.activation
	t.state = timerRunning
	t.deadline = t.clock.Now().Add(d)
	t.stopExpire = t.clock.AfterFunc(d, func() { t.expire(gen, act) })
	if t.interval > 0 && d > t.interval {
		t.stopTick = t.clock.AfterFunc(t.interval, func() { t.tick(gen, act) })
	}
}

func (t *Timer) cancelLocked() {
	t.gen++
	if t.stopExpire != nil {
		t.stopExpire()
		t.stopExpire = nil
	}
	if t.stopTick != nil {
		t.stopTick()
		t.stopTick = nil
	}
}

func (t *Timer) expire(gen, act uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != timerRunning {
		t.mu.Unlock()
		return
	}
	t.state = timerExpired
	if t.stopTick != nil {
		t.stopTick()
		t.stopTick = nil
	}
	t.mu.Unlock()
	t.onExpire(act)
}

func (t *Timer) tick(gen, act uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != timerRunning {
		t.mu.Unlock()
		return
	}
	left := t.deadline.Sub(t.clock.Now())
	if left > t.interval {
		t.stopTick = t.clock.AfterFunc(t.interval, func() { t.tick(gen, act) })
	} else {
		t.stopTick = nil
	}
	t.mu.Unlock()
	t.onTick(act, wholeSeconds(left))
}

// wholeSeconds rounds up so a countdown never shows 0 while time remains.
func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
