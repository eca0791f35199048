// Package retrytimer implements the subscribe engine's single recurring
// retry clock: a cancellable 1 Hz ticker that re-enters the restore path
// after a recoverable failure.
package retrytimer

import (
	"sync"
	"time"
)

// Interval is the fixed retry cadence the engine's restore path uses.
const Interval = 1 * time.Second

// Timer is a cancellable, idempotent 1 Hz recurring timer. The zero value
// is ready to use.
type Timer struct {
	mu     sync.Mutex
	cancel func()
	active bool
}

// New returns an inactive Timer.
func New() *Timer {
	return &Timer{}
}

// Start arms the timer, invoking fn once per second until Stop is called.
// Start always cancels whatever timer was previously running first — it is
// idempotent in the sense that calling it repeatedly never stacks up
// multiple tickers.
func (t *Timer) Start(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	stop := make(chan struct{})
	t.cancel = sync.OnceFunc(func() { close(stop) })
	t.active = true

	go func() {
		ticker := time.NewTicker(Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Stop cancels the timer. It is a no-op if the timer is not active, and
// calling it repeatedly is safe.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Timer) stopLocked() {
	if !t.active {
		return
	}
	t.cancel()
	t.cancel = nil
	t.active = false
}

// Active reports whether the timer currently has a live ticker goroutine.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
