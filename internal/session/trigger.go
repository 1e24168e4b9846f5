package session

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period coalescing rapid transcript growth
// into a single synthesis call.
const DefaultDebounce = time.Second

// Trigger debounces synthesis requests. Scheduling while a timer is
// pending cancels and replaces it, so a burst of threshold crossings
// yields exactly one invocation, after the last crossing's delay expires.
// Continuous growth can postpone the invocation indefinitely; natural
// pauses in speech bound that in practice.
type Trigger struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewTrigger(delay time.Duration) *Trigger {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Trigger{delay: delay}
}

// Schedule arms the debounce timer, replacing any pending one. fn runs on
// the timer goroutine after the delay; it should snapshot its inputs at
// that point, not at scheduling time.
func (t *Trigger) Schedule(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}

	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		t.timer = nil
		t.mu.Unlock()

		fn()
	})
}

// Cancel stops any pending invocation.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Pending reports whether an invocation is armed.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}
