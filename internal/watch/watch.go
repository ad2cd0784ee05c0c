// Package watch defines the value subscription handle shared by the
// object tree and its consumers.
//
// A Watch delivers the current value of one path immediately on
// subscription and every subsequent change after that, until cancelled.
// Consumers never cache a copy of the watched value; every decision is
// driven by a delivery.
package watch

import "github.com/nerrad567/gray-logic-platform/internal/value"

// Func receives a value delivery.
type Func func(v value.Value)

// Source hands out watches. Implementations deliver the initial value
// synchronously from inside Watch.
type Source interface {
	Watch(path string, fn Func) *Watch
}

// Watch is a live subscription to one path.
type Watch struct {
	path      string
	fn        Func
	release   func(*Watch)
	cancelled bool
}

// New creates a watch. release is called once on Cancel so the source can
// forget the subscription; it may be nil.
func New(path string, fn Func, release func(*Watch)) *Watch {
	return &Watch{path: path, fn: fn, release: release}
}

// Path returns the watched path.
func (w *Watch) Path() string { return w.path }

// Deliver passes v to the subscriber unless the watch was cancelled.
func (w *Watch) Deliver(v value.Value) {
	if w == nil || w.cancelled || w.fn == nil {
		return
	}
	w.fn(v)
}

// Cancel stops deliveries. It is safe to call more than once and on nil.
func (w *Watch) Cancel() {
	if w == nil || w.cancelled {
		return
	}
	w.cancelled = true
	if w.release != nil {
		w.release(w)
	}
}

// Cancelled reports whether Cancel was called.
func (w *Watch) Cancelled() bool {
	return w == nil || w.cancelled
}
