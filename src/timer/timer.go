// Package timer provides pausable intervals and cancellable deadlines.
//
// Both types are owned by a caller-supplied sync.Locker. Every method must be
// called with the locker held, and callbacks run with the locker held. A
// firing that races with Pause, Cancel or a re-arm is dropped, so callbacks
// never observe a timer the owner has already stopped.
package timer

import (
	"sync"
	"time"
)

// Interval calls fn every period while active.
type Interval struct {
	l      sync.Locker
	period time.Duration
	fn     func()
	active bool
	gen    uint64
	t      *time.Timer
}

// NewInterval returns a paused interval.
func NewInterval(l sync.Locker, period time.Duration, fn func()) *Interval {
	return &Interval{
		l:      l,
		period: period,
		fn:     fn,
	}
}

// Resume starts ticking. The first tick happens one period from now.
func (i *Interval) Resume() {
	if i.active {
		return
	}
	i.active = true
	i.schedule()
}

// Pause stops ticking. A pending tick is discarded.
func (i *Interval) Pause() {
	if !i.active {
		return
	}
	i.active = false
	i.gen++
	if i.t != nil {
		i.t.Stop()
		i.t = nil
	}
}

func (i *Interval) Active() bool {
	return i.active
}

func (i *Interval) schedule() {
	gen := i.gen
	i.t = time.AfterFunc(i.period, func() {
		i.l.Lock()
		defer i.l.Unlock()
		if !i.active || i.gen != gen {
			return
		}
		i.fn()
		if i.active && i.gen == gen {
			i.schedule()
		}
	})
}

// Deadline runs a callback once unless cancelled first.
type Deadline struct {
	l     sync.Locker
	armed bool
	gen   uint64
	t     *time.Timer
}

func NewDeadline(l sync.Locker) *Deadline {
	return &Deadline{l: l}
}

// Arm schedules fn after d, replacing any outstanding deadline.
func (d *Deadline) Arm(after time.Duration, fn func()) {
	d.Cancel()
	d.armed = true
	gen := d.gen
	d.t = time.AfterFunc(after, func() {
		d.l.Lock()
		defer d.l.Unlock()
		if !d.armed || d.gen != gen {
			return
		}
		d.armed = false
		d.t = nil
		fn()
	})
}

// Cancel discards the outstanding deadline, if any.
func (d *Deadline) Cancel() {
	d.gen++
	if !d.armed {
		return
	}
	d.armed = false
	if d.t != nil {
		d.t.Stop()
		d.t = nil
	}
}

func (d *Deadline) Armed() bool {
	return d.armed
}
