package rebuild

import (
	"sync"
	"time"
)

// restartWindow is the trailing debounce window for restart notifications.
const restartWindow = 300 * time.Millisecond

// debouncer coalesces restart notifications over a trailing window: every
// notify re-arms the timer, and when it finally elapses fn runs exactly
// once. Only one timer is armed at a time. Notifications arriving while fn
// is mid-flight arm a fresh window and fire again afterwards.
type debouncer struct {
	window time.Duration
	fn     func()

	mu    sync.Mutex
	timer *time.Timer
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	return &debouncer{window: window, fn: fn}
}

func (d *debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()

		d.fn()
	})
}

// Stop cancels any armed window.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
