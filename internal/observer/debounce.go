package observer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer runs fn once a burst of Schedule calls has been quiet for delay.
type Debouncer struct {
	clock clockwork.Clock
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer clockwork.Timer
}

// NewDebouncer returns an idle Debouncer.
func NewDebouncer(clock clockwork.Clock, delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: clock, delay: delay, fn: fn}
}

// Schedule restarts the quiet period.
func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, d.fn)
}

// Cancel drops a pending run. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	return stopped
}
