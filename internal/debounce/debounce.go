// Package debounce delays an action and collapses repeated triggers.
//
// A Debouncer is owned by the event loop: Trigger is called from a loop
// handler and the action runs on the loop when the timer expires, carried
// by an event.TimerExpired.
package debounce

import (
	"time"

	"github.com/nerrad567/gray-logic-platform/internal/event"
)

// Debouncer runs an action once, delay after the first of a burst of triggers.
type Debouncer struct {
	name    string
	delay   time.Duration
	action  func()
	poster  event.Poster
	pending bool

	// afterFunc is time.AfterFunc, swapped in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// New creates a debouncer. Expiry is posted to poster; action runs when
// the loop processes it.
func New(name string, delay time.Duration, action func(), poster event.Poster) *Debouncer {
	return &Debouncer{
		name:      name,
		delay:     delay,
		action:    action,
		poster:    poster,
		afterFunc: time.AfterFunc,
	}
}

// Name returns the debouncer name.
func (d *Debouncer) Name() string {
	return d.name
}

// Pending reports whether an execution is scheduled.
func (d *Debouncer) Pending() bool {
	return d.pending
}

// Trigger schedules the action unless it is already pending.
// It returns true if this call scheduled it.
func (d *Debouncer) Trigger() bool {
	if d.pending {
		return false
	}
	d.pending = true
	d.afterFunc(d.delay, func() {
		d.poster.Post(event.TimerExpired{Name: d.name, Fire: d.fire})
	})
	return true
}

func (d *Debouncer) fire() {
	d.pending = false
	if d.action != nil {
		d.action()
	}
}
