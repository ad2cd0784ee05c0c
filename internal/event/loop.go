package event

import (
	"context"
	"fmt"
	"sync"
)

// Handler processes one event on the loop goroutine.
type Handler func(Event)

// Logger defines the logging interface for the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Poster is the write side of the loop, handed to transport adapters.
type Poster interface {
	Post(ev Event)
}

// Loop is a FIFO event queue with a single consumer.
//
// Handle must be called before Run starts. Post is safe from any goroutine.
type Loop struct {
	logger Logger

	handlers map[Kind][]Handler

	mu     sync.Mutex
	queue  []Event
	wake   chan struct{}
	closed bool
}

// NewLoop creates an empty loop.
// TimerExpired and Call events are executed by built-in handlers.
func NewLoop() *Loop {
	l := &Loop{
		logger:   noopLogger{},
		handlers: make(map[Kind][]Handler),
		wake:     make(chan struct{}, 1),
	}
	l.Handle(KindTimerExpired, func(ev Event) {
		if te := ev.(TimerExpired); te.Fire != nil {
			te.Fire()
		}
	})
	l.Handle(KindCall, func(ev Event) {
		if c := ev.(Call); c.Fn != nil {
			c.Fn()
		}
	})
	return l
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// Handle registers h for events of the given kind. Handlers for the same
// kind run in registration order.
func (l *Loop) Handle(kind Kind, h Handler) {
	l.handlers[kind] = append(l.handlers[kind], h)
}

// Post appends an event to the queue. Events posted after Run returned
// are dropped.
func (l *Loop) Post(ev Event) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("event dropped, loop closed", "kind", ev.Kind().String())
		return
	}
	l.queue = append(l.queue, ev)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Drain processes queued events, including ones posted by handlers while
// draining, until the queue is empty. It returns the number processed.
// Drain must not be called concurrently with Run.
func (l *Loop) Drain() int {
	n := 0
	for {
		ev, ok := l.next()
		if !ok {
			return n
		}
		l.dispatch(ev)
		n++
	}
}

// Run processes events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Invoke runs fn on the loop goroutine and waits for it to finish.
// It must not be called from the loop goroutine itself.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(Call{Fn: func() {
		defer close(done)
		fn()
	}})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for event loop: %w", ctx.Err())
	}
}

func (l *Loop) next() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	ev := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return ev, true
}

// dispatch delivers one event; a panicking handler is logged and does not
// take the loop down.
func (l *Loop) dispatch(ev Event) {
	for _, h := range l.handlers[ev.Kind()] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.logger.Error("event handler panic",
						"kind", ev.Kind().String(),
						"panic", fmt.Sprint(r),
					)
				}
			}()
			h(ev)
		}()
	}
}
