// Package gate aggregates independent reasons into one start/stop decision.
//
// A Gate is active while at least one reason key is present. Subscribers
// see an edge exactly once per empty↔non-empty transition; adding a
// second reason or removing one of several never emits. The same type
// drives the generator starter and the parallel BMS service.
//
//	g := gate.New("generator-starter")
//	g.Drive(svc)
//	g.Add("com.victronenergy.genset.socketcan_can0") // starts svc
//	g.Add("Relay")                                     // no edge
//	g.Remove("com.victronenergy.genset.socketcan_can0") // no edge
//	g.Remove("Relay")                                  // stops svc
//
// A Gate is owned by the event loop and is not safe for concurrent use.
package gate

import "sort"

// EdgeFunc is called with the new activity state on every transition.
type EdgeFunc func(active bool)

// Commander is the start/stop side of a supervised process.
type Commander interface {
	Start() error
	Stop() error
}

// Logger defines the logging interface for gates.
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

// Gate is a set of reason keys with an edge-triggered activity signal.
type Gate struct {
	name        string
	logger      Logger
	reasons     map[string]struct{}
	active      bool
	subscribers []EdgeFunc
}

// New creates an inactive gate.
func New(name string) *Gate {
	return &Gate{
		name:    name,
		logger:  noopLogger{},
		reasons: make(map[string]struct{}),
	}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.logger = logger
}

// Name returns the gate's name.
func (g *Gate) Name() string { return g.name }

// OnChange subscribes fn to activity edges.
func (g *Gate) OnChange(fn EdgeFunc) {
	g.subscribers = append(g.subscribers, fn)
}

// Drive binds c to the gate: the current state is applied once, then
// every edge starts or stops c. Command errors are logged.
func (g *Gate) Drive(c Commander) {
	apply := func(active bool) {
		var err error
		if active {
			err = c.Start()
		} else {
			err = c.Stop()
		}
		if err != nil {
			g.logger.Error("gate command failed", "gate", g.name, "active", active, "error", err)
		}
	}
	apply(g.active)
	g.OnChange(apply)
}

// Add inserts key. It returns true if the key was not present.
func (g *Gate) Add(key string) bool {
	if _, ok := g.reasons[key]; ok {
		return false
	}
	g.reasons[key] = struct{}{}
	g.logger.Debug("gate reason added", "gate", g.name, "reason", key)
	g.evaluate()
	return true
}

// Remove deletes key. Removing an absent key is a no-op returning false.
func (g *Gate) Remove(key string) bool {
	if _, ok := g.reasons[key]; !ok {
		return false
	}
	delete(g.reasons, key)
	g.logger.Debug("gate reason removed", "gate", g.name, "reason", key)
	g.evaluate()
	return true
}

// Set adds key when present is true and removes it otherwise.
func (g *Gate) Set(key string, present bool) bool {
	if present {
		return g.Add(key)
	}
	return g.Remove(key)
}

// Has reports whether key is present.
func (g *Gate) Has(key string) bool {
	_, ok := g.reasons[key]
	return ok
}

// IsActive reports whether at least one reason is present.
func (g *Gate) IsActive() bool { return g.active }

// Reasons returns the present keys in sorted order.
func (g *Gate) Reasons() []string {
	out := make([]string, 0, len(g.reasons))
	for k := range g.reasons {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *Gate) evaluate() {
	active := len(g.reasons) > 0
	if active == g.active {
		return
	}
	g.active = active
	g.logger.Info("gate changed", "gate", g.name, "active", active, "reasons", g.Reasons())
	for _, fn := range g.subscribers {
		fn(active)
	}
}
