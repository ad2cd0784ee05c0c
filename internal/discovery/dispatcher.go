// Package discovery classifies remote objects as they come and go and
// feeds the condition gates that depend on them.
//
// Generators (genset and DC genset objects) are reasons for the generator
// starter while synchronized. Batteries whose ProductId is one of the
// parallel-BMS models are reasons for the parallel BMS service.
package discovery

import (
	"sort"

	"github.com/nerrad567/gray-logic-platform/internal/event"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
	"github.com/nerrad567/gray-logic-platform/internal/value"
	"github.com/nerrad567/gray-logic-platform/internal/watch"
)

// ProductIDProperty is the battery property holding the product code.
const ProductIDProperty = "ProductId"

// Source is the object tree the dispatcher listens to.
type Source interface {
	watch.Source
	AddListener(l tree.Listener)
	Objects() []tree.Object
}

// ReasonSet is the part of a gate the dispatcher drives.
type ReasonSet interface {
	Add(key string) bool
	Remove(key string) bool
}

// Logger defines the logging interface for the dispatcher.
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

// Config wires a Dispatcher.
type Config struct {
	Rules         Rules
	BMSProductIDs []int64
	Generators    ReasonSet
	ParallelBMS   ReasonSet
	Logger        Logger
}

// Tracked is an object the dispatcher currently follows.
type Tracked struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

// Dispatcher implements tree.Listener. It is owned by the event loop.
type Dispatcher struct {
	rules      Rules
	bms        map[int64]bool
	generators ReasonSet
	parallel   ReasonSet
	logger     Logger

	src     Source
	tracked map[string]Category
	watches map[string]*watch.Watch
	started bool
}

// New creates a dispatcher. Start attaches it to a source.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	bms := make(map[int64]bool, len(cfg.BMSProductIDs))
	for _, id := range cfg.BMSProductIDs {
		bms[id] = true
	}
	return &Dispatcher{
		rules:      cfg.Rules,
		bms:        bms,
		generators: cfg.Generators,
		parallel:   cfg.ParallelBMS,
		logger:     logger,
		tracked:    make(map[string]Category),
		watches:    make(map[string]*watch.Watch),
	}
}

// Start registers the dispatcher with src and classifies every object
// src already knows, exactly as if each had just appeared.
func (d *Dispatcher) Start(src Source) {
	if d.started {
		return
	}
	d.started = true
	d.src = src
	src.AddListener(d)

	objects := src.Objects()
	d.logger.Debug("replaying known objects", "count", len(objects))
	for _, obj := range objects {
		d.ObjectAppeared(obj.ID)
		d.ObjectStateChanged(obj.ID, obj.State)
	}
}

// ObjectAppeared implements tree.Listener.
func (d *Dispatcher) ObjectAppeared(id string) {
	cat := d.rules.Classify(id)
	if cat == CategoryNone {
		return
	}
	if _, ok := d.tracked[id]; ok {
		return
	}
	d.tracked[id] = cat
	d.logger.Debug("object classified", "id", id, "category", cat.String())

	if cat == CategoryBattery {
		d.watches[id] = d.src.Watch(tree.Path(id, ProductIDProperty), func(v value.Value) {
			d.productID(id, v)
		})
	}
}

// ObjectStateChanged implements tree.Listener.
func (d *Dispatcher) ObjectStateChanged(id string, state event.State) {
	if d.tracked[id] != CategoryGenerator {
		return
	}
	if state == event.StateSynchronized {
		if d.generators.Add(id) {
			d.logger.Info("generator available", "id", id)
		}
		return
	}
	if d.generators.Remove(id) {
		d.logger.Info("generator unavailable", "id", id, "state", string(state))
	}
}

// ObjectRemoved implements tree.Listener.
func (d *Dispatcher) ObjectRemoved(id string) {
	cat, ok := d.tracked[id]
	if !ok {
		return
	}
	delete(d.tracked, id)

	switch cat {
	case CategoryGenerator:
		if d.generators.Remove(id) {
			d.logger.Info("generator removed", "id", id)
		}
	case CategoryBattery:
		if w, ok := d.watches[id]; ok {
			w.Cancel()
			delete(d.watches, id)
		}
		if d.parallel.Remove(id) {
			d.logger.Info("parallel BMS battery removed", "id", id)
		}
	}
}

func (d *Dispatcher) productID(id string, v value.Value) {
	code, ok := v.AsInt()
	if ok && d.bms[code] {
		if d.parallel.Add(id) {
			d.logger.Info("parallel BMS battery found", "id", id, "product_id", code)
		}
		return
	}
	if d.parallel.Remove(id) {
		d.logger.Info("battery is no longer a parallel BMS", "id", id, "product_id", v.String())
	}
}

// Tracked returns the classified objects, sorted by id.
func (d *Dispatcher) Tracked() []Tracked {
	out := make([]Tracked, 0, len(d.tracked))
	for id, cat := range d.tracked {
		out = append(out, Tracked{ID: id, Category: cat.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
