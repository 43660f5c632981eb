package voxa

import (
	"sync"
	"time"
)

// IdleTimer is a restartable, cancelable deferred action. Restarting always
// replaces the pending firing; a stopped timer never fires late.
type IdleTimer struct {
	mu        sync.Mutex
	delay     time.Duration
	active    bool
	startTime time.Time
	timer     *time.Timer
	onExpired func()
}

// NewIdleTimer creates a timer with the given delay. onExpired runs off the
// caller's goroutine when the quiet period elapses without a restart.
func NewIdleTimer(delay time.Duration, onExpired func()) *IdleTimer {
	return &IdleTimer{
		delay:     delay,
		onExpired: onExpired,
	}
}

// Restart arms the timer with the current delay, canceling any pending fire.
func (t *IdleTimer) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.active = true
	t.startTime = time.Now()
	t.timer = time.AfterFunc(t.delay, t.expire)
}

func (t *IdleTimer) expire() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	callback := t.onExpired
	t.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// Cancel stops the timer without triggering the callback.
func (t *IdleTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.active = false
}

// SetDelay replaces the delay. A pending timer is re-armed with the new
// delay measured from now.
func (t *IdleTimer) SetDelay(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.delay = delay
	if t.active {
		if t.timer != nil {
			t.timer.Stop()
		}
		t.startTime = time.Now()
		t.timer = time.AfterFunc(t.delay, t.expire)
	}
}

// Delay returns the configured delay.
func (t *IdleTimer) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// Pending reports whether a fire is scheduled.
func (t *IdleTimer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// TimeRemaining returns how long until the pending fire, 0 when idle.
func (t *IdleTimer) TimeRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.active {
		return 0
	}
	remaining := t.delay - time.Since(t.startTime)
	if remaining < 0 {
		return 0
	}
	return remaining
}
