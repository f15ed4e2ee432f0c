package sessions

import (
	"sync"
	"time"
)

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func timeAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// Debouncer runs fn once the quiet period has elapsed since the last Trigger.
// Every Trigger resets the timer.
type Debouncer struct {
	delay     time.Duration
	fn        func()
	afterFunc afterFunc

	mu      sync.Mutex
	timer   stopper
	seq     uint64
	pending bool
	closed  bool
	running sync.WaitGroup
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{
		delay:     delay,
		fn:        fn,
		afterFunc: timeAfterFunc,
	}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.stopTimer()
	d.seq++
	d.pending = true
	seq := d.seq
	d.timer = d.afterFunc(d.delay, func() {
		d.fire(seq)
	})
}

func (d *Debouncer) fire(seq uint64) {
	d.mu.Lock()
	if d.closed || !d.pending || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.timer = nil
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fn()
}

// Cancel drops the pending run, if any. A run already in progress is not interrupted.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimer()
	d.seq++
	d.pending = false
}

// Flush runs a pending fn right away and reports whether there was one.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return false
	}
	d.stopTimer()
	d.seq++
	d.pending = false
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fn()
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close cancels the pending run and waits for an in-flight one to finish.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	d.stopTimer()
	d.seq++
	d.pending = false
	d.mu.Unlock()

	d.running.Wait()
}

func (d *Debouncer) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
