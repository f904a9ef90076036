package viewmodel

import (
	"sync"
	"time"
)

// Debouncer collapses rapid successive values into a single downstream call,
// firing on the trailing edge of the quiet window with the last value seen.
// UI bindings use it for the safety-threshold input so that typing does not turn
// into a write per keystroke against the shared store.
type Debouncer struct {
	window time.Duration
	fire   func(float64)

	mu      sync.Mutex
	timer   *time.Timer
	pending float64
	gen     uint64
}

func NewDebouncer(window time.Duration, fire func(float64)) *Debouncer {
	return &Debouncer{
		window: window,
		fire:   fire,
	}
}

// Set records a new value and restarts the quiet window. Only the last value set
// within the window reaches the fire callback.
func (d *Debouncer) Set(value float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = value
	if d.timer != nil {
		d.timer.Stop()
	}

	// Stop does not cancel a callback that has already started, so each timer
	// carries the generation it was armed for and superseded callbacks bail out.
	d.gen++
	gen := d.gen

	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		v := d.pending
		d.mu.Unlock()
		d.fire(v)
	})
}

// Stop cancels any pending fire. A value set but not yet fired is discarded.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
}
