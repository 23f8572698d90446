package retry

import (
	"sync"
	"time"
)

// DefaultDelay is the fixed pause before a transport retry.
const DefaultDelay = 200 * time.Millisecond

// Timer is the cancellable handle returned by an AfterFunc.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

// SystemAfterFunc schedules on the runtime timer.
func SystemAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Debouncer holds at most one pending action. Scheduling a new action cancels
// and replaces the pending one, so only the most recently scheduled action runs.
type Debouncer struct {
	mu      sync.Mutex
	after   AfterFunc
	pending Timer
	gen     uint64
}

func NewDebouncer(after AfterFunc) *Debouncer {
	if after == nil {
		after = SystemAfterFunc
	}
	return &Debouncer{after: after}
}

// Debounce schedules fn after delay and reports whether a pending action was
// superseded. A superseded action never runs, even if its timer already fired.
func (d *Debouncer) Debounce(delay time.Duration, fn func()) bool {
	if delay < 0 {
		delay = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	replaced := d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = d.after(delay, func() {
		d.mu.Lock()
		if d.gen != gen {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		fn()
	})
	return replaced
}

// Pending reports whether an action is scheduled and has not started.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) stopLocked() bool {
	if d.pending == nil {
		return false
	}
	// Stop may lose the race with a timer that already fired; the generation
	// check in the wrapper keeps the stale action from running.
	d.pending.Stop()
	d.pending = nil
	return true
}
