package tree

import (
	"sort"
	"strings"

	"github.com/nerrad567/gray-logic-platform/internal/event"
	"github.com/nerrad567/gray-logic-platform/internal/value"
	"github.com/nerrad567/gray-logic-platform/internal/watch"
)

// Path joins an object id and a property path.
func Path(id, property string) string {
	return id + "/" + strings.TrimPrefix(property, "/")
}

// Split separates a path into object id and property path.
// Object ids never contain a slash.
func Split(path string) (id, property string) {
	id, property, _ = strings.Cut(path, "/")
	return id, property
}

// Listener receives object lifecycle notifications.
type Listener interface {
	ObjectAppeared(id string)
	ObjectStateChanged(id string, state event.State)
	ObjectRemoved(id string)
}

// Object is a snapshot of one remote object.
type Object struct {
	ID    string      `json:"id"`
	State event.State `json:"state"`
}

// Logger defines the logging interface for the tree.
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

// Tree is the loop-owned mirror of remote objects and values.
// It is not safe for concurrent use.
type Tree struct {
	logger    Logger
	objects   map[string]*Object
	values    map[string]value.Value
	watches   map[string][]*watch.Watch
	listeners []Listener
}

// New creates an empty tree.
func New() *Tree {
	return &Tree{
		logger:  noopLogger{},
		objects: make(map[string]*Object),
		values:  make(map[string]value.Value),
		watches: make(map[string][]*watch.Watch),
	}
}

// SetLogger sets the logger for the tree.
func (t *Tree) SetLogger(logger Logger) {
	t.logger = logger
}

// Attach registers the tree's handlers on the loop.
func (t *Tree) Attach(loop *event.Loop) {
	loop.Handle(event.KindValueChanged, func(ev event.Event) {
		vc := ev.(event.ValueChanged)
		t.SetValue(vc.Path, vc.Value)
	})
	loop.Handle(event.KindAppeared, func(ev event.Event) {
		t.Appear(ev.(event.Appeared).ID)
	})
	loop.Handle(event.KindStateChanged, func(ev event.Event) {
		sc := ev.(event.StateChanged)
		t.SetState(sc.ID, sc.State)
	})
	loop.Handle(event.KindRemoved, func(ev event.Event) {
		t.Remove(ev.(event.Removed).ID)
	})
}

// AddListener subscribes l to object lifecycle notifications.
func (t *Tree) AddListener(l Listener) {
	t.listeners = append(t.listeners, l)
}

// Watch subscribes fn to path. The current value (Unknown if none) is
// delivered before Watch returns.
func (t *Tree) Watch(path string, fn watch.Func) *watch.Watch {
	w := watch.New(path, fn, t.release)
	t.watches[path] = append(t.watches[path], w)
	w.Deliver(t.values[path])
	return w
}

func (t *Tree) release(w *watch.Watch) {
	list := t.watches[w.Path()]
	for i, candidate := range list {
		if candidate == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.watches, w.Path())
		return
	}
	t.watches[w.Path()] = list
}

// WatchCount returns the number of live watches on path.
func (t *Tree) WatchCount(path string) int {
	return len(t.watches[path])
}

// Value returns the mirrored value of path.
func (t *Tree) Value(path string) value.Value {
	return t.values[path]
}

// SetValue records v and notifies watchers when it differs from the
// previous value.
func (t *Tree) SetValue(path string, v value.Value) {
	old, known := t.values[path]
	if known && old.Equal(v) {
		return
	}
	if v.Valid() {
		t.values[path] = v
	} else {
		delete(t.values, path)
		if !known {
			return
		}
	}
	t.notify(path, v)
}

func (t *Tree) notify(path string, v value.Value) {
	// Copy: a delivery may cancel or add watches on the same path.
	list := append([]*watch.Watch(nil), t.watches[path]...)
	for _, w := range list {
		w.Deliver(v)
	}
}

// Appear registers an object. Announcing a known object is a no-op.
func (t *Tree) Appear(id string) {
	if id == "" {
		return
	}
	if _, ok := t.objects[id]; ok {
		return
	}
	t.objects[id] = &Object{ID: id, State: event.StateUnknown}
	t.logger.Debug("object appeared", "id", id)
	for _, l := range t.listeners {
		l.ObjectAppeared(id)
	}
}

// SetState records a lifecycle transition. An unknown object appears first.
func (t *Tree) SetState(id string, state event.State) {
	if id == "" {
		return
	}
	t.Appear(id)
	obj := t.objects[id]
	if obj.State == state {
		return
	}
	obj.State = state
	t.logger.Debug("object state changed", "id", id, "state", string(state))
	for _, l := range t.listeners {
		l.ObjectStateChanged(id, state)
	}
}

// Remove destroys an object. Listeners run first so they can cancel
// their own watches; remaining watchers of the object's paths then see
// the values go invalid.
func (t *Tree) Remove(id string) {
	if _, ok := t.objects[id]; !ok {
		return
	}
	delete(t.objects, id)
	t.logger.Debug("object removed", "id", id)
	for _, l := range t.listeners {
		l.ObjectRemoved(id)
	}

	prefix := id + "/"
	var paths []string
	for path := range t.values {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		t.SetValue(path, value.Unknown)
	}
}

// Object returns a snapshot of one object.
func (t *Tree) Object(id string) (Object, bool) {
	obj, ok := t.objects[id]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Objects returns snapshots of all known objects sorted by id.
func (t *Tree) Objects() []Object {
	out := make([]Object, 0, len(t.objects))
	for _, obj := range t.objects {
		out = append(out, *obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
