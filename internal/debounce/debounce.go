// Package debounce coalesces bursts of triggers into a single delayed
// callback. The repository watcher uses it to fold a storm of
// filesystem events into one refresh.
package debounce

import (
	"sync"
	"time"
)

// afterFunc is swapped out in tests to control timer firing.
var afterFunc = time.AfterFunc

type Debouncer struct {
	mu         sync.Mutex
	delay      time.Duration
	timer      *time.Timer
	generation uint64
	fn         func()
}

func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger schedules the callback after the delay, replacing any
// pending schedule. Only the most recent schedule may fire: a stale
// timer callback that races past Trigger or Stop finds its generation
// superseded and returns without calling fn.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.generation++
	gen := d.generation
	d.timer = afterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.generation
		d.mu.Unlock()
		if current {
			d.fn()
		}
	})
}

// Stop cancels any pending callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
}
