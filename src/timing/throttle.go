package timing

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle runs a callback at most once per interval. Calls that arrive too
// early collapse into a single trailing call at the end of the interval.
type Throttle struct {
	clock    Clock
	interval time.Duration
	limiter  *rate.Limiter

	mu       sync.Mutex
	lastRun  time.Time
	trailing Timer
	pending  func()
}

// NewThrottle creates a throttle. A nil clock means the real clock.
func NewThrottle(clock Clock, interval time.Duration) *Throttle {
	if clock == nil {
		clock = Real()
	}
	return &Throttle{
		clock:    clock,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Trigger runs fn now if the interval allows, otherwise arranges for the
// latest fn to run when it does.
func (t *Throttle) Trigger(fn func()) {
	t.mu.Lock()
	now := t.clock.Now()
	if t.trailing == nil && t.limiter.AllowN(now, 1) {
		t.lastRun = now
		t.mu.Unlock()
		fn()
		return
	}
	t.pending = fn
	if t.trailing == nil {
		delay := t.interval - now.Sub(t.lastRun)
		if delay < 0 {
			delay = 0
		}
		t.trailing = t.clock.AfterFunc(delay, t.fireTrailing)
	}
	t.mu.Unlock()
}

// Force cancels any trailing call and runs fn immediately.
func (t *Throttle) Force(fn func()) {
	t.mu.Lock()
	t.stopLocked()
	now := t.clock.Now()
	t.limiter.AllowN(now, 1)
	t.lastRun = now
	t.mu.Unlock()
	fn()
}

// Stop cancels any trailing call.
func (t *Throttle) Stop() {
	t.mu.Lock()
	t.stopLocked()
	t.mu.Unlock()
}

func (t *Throttle) stopLocked() {
	if t.trailing != nil {
		t.trailing.Stop()
		t.trailing = nil
	}
	t.pending = nil
}

func (t *Throttle) fireTrailing() {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.trailing = nil
	now := t.clock.Now()
	t.limiter.AllowN(now, 1)
	t.lastRun = now
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}
