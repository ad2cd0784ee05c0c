package event

import (
	"fmt"

	"github.com/nerrad567/gray-logic-platform/internal/value"
)

// Kind identifies an event type.
type Kind int

const (
	KindValueChanged Kind = iota + 1
	KindAppeared
	KindRemoved
	KindStateChanged
	KindTimerExpired
	KindCall
)

// String returns the event kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindValueChanged:
		return "value_changed"
	case KindAppeared:
		return "appeared"
	case KindRemoved:
		return "removed"
	case KindStateChanged:
		return "state_changed"
	case KindTimerExpired:
		return "timer_expired"
	case KindCall:
		return "call"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is implemented by every event type carried by the loop.
type Event interface {
	Kind() Kind
}

// State is the lifecycle state of a remote object.
type State string

const (
	StateUnknown        State = "unknown"
	StateSyncing        State = "syncing"
	StateSynchronized   State = "synchronized"
	StateDesynchronized State = "desynchronized"
)

// ParseState maps a transport state string to a State.
func ParseState(s string) State {
	switch State(s) {
	case StateSyncing, StateSynchronized, StateDesynchronized:
		return State(s)
	default:
		return StateUnknown
	}
}

// ValueChanged carries a new value for a tree path.
type ValueChanged struct {
	Path  string
	Value value.Value
}

// Kind implements Event.
func (ValueChanged) Kind() Kind { return KindValueChanged }

// Appeared announces a new remote object.
type Appeared struct {
	ID string
}

// Kind implements Event.
func (Appeared) Kind() Kind { return KindAppeared }

// Removed announces that a remote object is gone.
type Removed struct {
	ID string
}

// Kind implements Event.
func (Removed) Kind() Kind { return KindRemoved }

// StateChanged reports a lifecycle transition of a remote object.
type StateChanged struct {
	ID    string
	State State
}

// Kind implements Event.
func (StateChanged) Kind() Kind { return KindStateChanged }

// TimerExpired is posted when a scheduled timer fires.
// Fire runs on the loop goroutine.
type TimerExpired struct {
	Name string
	Fire func()
}

// Kind implements Event.
func (TimerExpired) Kind() Kind { return KindTimerExpired }

// Call runs an arbitrary function on the loop goroutine. It is how
// outer surfaces (HTTP status, MQTT write requests) read or poke
// loop-owned state.
type Call struct {
	Fn func()
}

// Kind implements Event.
func (Call) Kind() Kind { return KindCall }
