package supervise

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Registry hands out Service values for one backend. Services are created
// on the event loop; Services and Snapshot may be called from any goroutine.
type Registry struct {
	backend   Backend
	logger    Logger
	observers []Observer

	mu       sync.Mutex
	services map[string]*Service
}

// NewRegistry creates a registry over backend.
func NewRegistry(backend Backend) *Registry {
	return &Registry{
		backend:  backend,
		logger:   noopLogger{},
		services: make(map[string]*Service),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnCommand registers an observer for every command issued through the registry.
func (r *Registry) OnCommand(fn Observer) {
	r.observers = append(r.observers, fn)
}

// Backend returns the underlying backend.
func (r *Registry) Backend() Backend {
	return r.backend
}

// Exists reports whether the backend knows the service.
func (r *Registry) Exists(name string) bool {
	return r.backend.Exists(name)
}

// Service returns the Service for name, creating it on first use.
func (r *Registry) Service(name string) *Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.services[name]; ok {
		return svc
	}
	svc := &Service{
		name:     name,
		backend:  r.backend,
		observer: r.notify,
		now:      timeNow,
	}
	r.services[name] = svc
	return svc
}

// Glob returns the services whose names match pattern (path.Match syntax).
func (r *Registry) Glob(pattern string) ([]*Service, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad service pattern %q: %w", pattern, err)
	}
	names, err := r.backend.List()
	if err != nil {
		return nil, err
	}
	var out []*Service
	for _, name := range names {
		if ok, _ := path.Match(pattern, name); ok {
			out = append(out, r.Service(name))
		}
	}
	return out, nil
}

// Services returns every Service handed out so far, sorted by name.
func (r *Registry) Services() []*Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ServiceStatus combines the commanded and reported state of a service.
type ServiceStatus struct {
	Name    string  `json:"name"`
	Desired Desired `json:"desired"`
	State   *State  `json:"state,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Snapshot returns the status of every known service. Supervisor query
// errors are reported per service.
func (r *Registry) Snapshot(ctx context.Context) []ServiceStatus {
	services := r.Services()
	out := make([]ServiceStatus, 0, len(services))
	for _, svc := range services {
		st := ServiceStatus{Name: svc.name, Desired: svc.Desired()}
		state, err := r.backend.Status(ctx, svc.name)
		if err != nil {
			st.Error = err.Error()
		} else {
			st.State = &state
		}
		out = append(out, st)
	}
	return out
}

func (r *Registry) notify(rec Record) {
	if rec.Err != nil {
		r.logger.Error("supervisor command failed",
			"service", rec.Service,
			"command", rec.Command,
			"error", rec.Err,
		)
	} else {
		r.logger.Info("supervisor command issued",
			"service", rec.Service,
			"command", rec.Command,
		)
	}
	for _, fn := range r.observers {
		fn(rec)
	}
}

// Close closes the backend.
func (r *Registry) Close() error {
	return r.backend.Close()
}
