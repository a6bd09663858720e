package interview

import (
	"sync"
	"time"
)

// SessionTimer is the wall-clock countdown for one session. It ticks once
// per interval, reports remaining time, and fires onExpire exactly once
// when the countdown reaches zero. It runs independently of whatever phase
// the orchestrator is in.
type SessionTimer struct {
	mu        sync.Mutex
	interval  time.Duration
	remaining time.Duration
	stopped   bool
	started   bool
	stop      chan struct{}
}

// TimerOption configures timer behaviour.
type TimerOption func(*SessionTimer)

// WithTickInterval overrides the one-second tick, used by tests to run the
// countdown at full speed.
func WithTickInterval(d time.Duration) TimerOption {
	return func(t *SessionTimer) {
		if d > 0 {
			t.interval = d
		}
	}
}

func NewSessionTimer(duration time.Duration, opts ...TimerOption) *SessionTimer {
	t := &SessionTimer{
		interval:  time.Second,
		remaining: duration,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins ticking. onTick receives the remaining duration after each
// tick; onExpire fires exactly once when the countdown hits zero, after
// which the timer stops itself. Start is a no-op on a started timer.
func (t *SessionTimer) Start(onTick func(remaining time.Duration), onExpire func()) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run(onTick, onExpire)
}

func (t *SessionTimer) run(onTick func(remaining time.Duration), onExpire func()) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.stopped {
				t.mu.Unlock()
				return
			}
			t.remaining -= t.interval
			if t.remaining < 0 {
				t.remaining = 0
			}
			remaining := t.remaining
			expired := remaining == 0
			if expired {
				// mark stopped before firing so a concurrent Cancel
				// becomes a no-op and expiry can never fire twice
				t.stopped = true
			}
			t.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
			if expired {
				if onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// Cancel stops ticking and guarantees onExpire will never fire afterwards.
// Cancelling a cancelled or expired timer is a no-op.
func (t *SessionTimer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stop)
}

// Remaining returns the time left on the countdown.
func (t *SessionTimer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}
