// Package debounce provides a trailing-edge debouncer with optional max-wait
// semantics. Repeated Call invocations within the wait window coalesce into a
// single deferred invocation of the wrapped function; a max-wait cap forces a
// fire at least once per window even under continuous activity.
package debounce

import (
	"sync"
	"time"
)

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithMaxWait caps how long a burst of calls can postpone the fire. With a
// max wait of m, the function fires no later than m after the first call of
// the current burst, regardless of continued activity.
func WithMaxWait(d time.Duration) Option {
	return func(deb *Debouncer) {
		deb.maxWait = d
	}
}

// Debouncer coalesces bursts of Call invocations into single invocations of
// fn. All methods are safe for concurrent use. fn is always invoked without
// the Debouncer's internal lock held, so it may call back into the Debouncer.
type Debouncer struct {
	fn      func()
	wait    time.Duration
	maxWait time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	deadline time.Time // max-wait cap for the current burst; zero if unset
	gen      uint64    // invalidates stale timer callbacks after re-arm/cancel
}

// New creates a Debouncer that invokes fn wait after the most recent Call.
func New(fn func(), wait time.Duration, opts ...Option) *Debouncer {
	deb := &Debouncer{
		fn:   fn,
		wait: wait,
	}

	for _, opt := range opts {
		opt(deb)
	}

	return deb
}

// Call arms or re-arms the debounce timer. The first call of a burst starts
// the max-wait window; subsequent calls postpone the fire up to that cap.
func (d *Debouncer) Call() {
	d.mu.Lock()

	now := time.Now()

	if !d.pending {
		d.pending = true

		if d.maxWait > 0 {
			d.deadline = now.Add(d.maxWait)
		} else {
			d.deadline = time.Time{}
		}
	}

	fireIn := d.wait
	if !d.deadline.IsZero() {
		if remaining := d.deadline.Sub(now); remaining < fireIn {
			fireIn = remaining
			if fireIn < 0 {
				fireIn = 0
			}
		}
	}

	d.gen++
	gen := d.gen

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(fireIn, func() {
		d.fire(gen)
	})

	d.mu.Unlock()
}

// fire is the timer callback. The generation check discards callbacks from
// timers that were superseded by a later Call, Flush, or Stop.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()

	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}

	d.pending = false
	d.mu.Unlock()

	d.fn()
}

// Flush cancels the pending timer and, if a call was pending, invokes fn
// synchronously before returning. A Flush with nothing pending is a no-op.
func (d *Debouncer) Flush() {
	d.mu.Lock()

	if !d.pending {
		d.mu.Unlock()
		return
	}

	d.pending = false
	d.gen++

	if d.timer != nil {
		d.timer.Stop()
	}

	d.mu.Unlock()

	d.fn()
}

// Stop cancels any pending invocation without firing. The Debouncer remains
// usable; a subsequent Call starts a fresh burst.
func (d *Debouncer) Stop() {
	d.mu.Lock()

	d.pending = false
	d.gen++

	if d.timer != nil {
		d.timer.Stop()
	}

	d.mu.Unlock()
}

// Pending reports whether an invocation is currently scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.pending
}
