package supervise

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-platform/internal/process"
)

// execQueueSize bounds pending commands of the exec backend.
const execQueueSize = 64

// processManager is the part of process.Manager the exec backend uses.
type processManager interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	Stats() process.Stats
}

type execRequest struct {
	name string
	cmd  Command
}

// ExecBackend supervises child processes itself.
//
// Commands are queued to one worker goroutine, so a restart (stop then
// start) is never interleaved with another command.
type ExecBackend struct {
	logger   Logger
	managers map[string]processManager

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	queue  chan execRequest
	wg     sync.WaitGroup
}

// NewExecBackend creates a backend for the given process specs, keyed by
// service name, and starts its worker.
func NewExecBackend(specs map[string]process.Config, logger Logger) *ExecBackend {
	if logger == nil {
		logger = noopLogger{}
	}
	managers := make(map[string]processManager, len(specs))
	for name, spec := range specs {
		mgr := process.NewManager(spec)
		mgr.SetLogger(logger)
		managers[name] = mgr
	}
	return newExecBackend(managers, logger)
}

func newExecBackend(managers map[string]processManager, logger Logger) *ExecBackend {
	ctx, cancel := context.WithCancel(context.Background())
	e := &ExecBackend{
		logger:   logger,
		managers: managers,
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan execRequest, execQueueSize),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

// Exists reports whether the service is configured.
func (e *ExecBackend) Exists(name string) bool {
	_, ok := e.managers[name]
	return ok
}

// List returns the configured service names, sorted.
func (e *ExecBackend) List() ([]string, error) {
	names := make([]string, 0, len(e.managers))
	for name := range e.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Command queues cmd for the worker.
func (e *ExecBackend) Command(name string, cmd Command) error {
	if _, ok := e.managers[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownService)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	select {
	case e.queue <- execRequest{name: name, cmd: cmd}:
		return nil
	default:
		return fmt.Errorf("%s %s: %w", cmd, name, ErrBusy)
	}
}

func (e *ExecBackend) worker() {
	defer e.wg.Done()
	for req := range e.queue {
		if err := e.apply(req); err != nil {
			e.logger.Error("exec supervisor command failed",
				"service", req.name,
				"command", req.cmd,
				"error", err,
			)
		}
	}
}

func (e *ExecBackend) apply(req execRequest) error {
	mgr := e.managers[req.name]
	switch req.cmd {
	case CommandUp:
		if mgr.IsRunning() {
			return nil
		}
		return mgr.Start(e.ctx)
	case CommandDown:
		return mgr.Stop()
	case CommandRestart:
		if err := mgr.Stop(); err != nil {
			return fmt.Errorf("stopping for restart: %w", err)
		}
		return mgr.Start(e.ctx)
	case CommandTerm:
		if !mgr.IsRunning() {
			return nil
		}
		if err := mgr.Stop(); err != nil {
			return fmt.Errorf("stopping on term: %w", err)
		}
		return mgr.Start(e.ctx)
	default:
		return fmt.Errorf("unsupported command %q", req.cmd)
	}
}

// Status reports the managed process state.
func (e *ExecBackend) Status(_ context.Context, name string) (State, error) {
	mgr, ok := e.managers[name]
	if !ok {
		return State{}, fmt.Errorf("%s: %w", name, ErrUnknownService)
	}
	stats := mgr.Stats()
	st := State{
		Name: name,
		Up:   stats.Status == process.StatusRunning,
		PID:  stats.PID,
		Want: "down",
	}
	if st.Up || stats.Status == process.StatusBackoff {
		st.Want = "up"
	}
	return st, nil
}

// Close drains queued commands, then stops every process.
func (e *ExecBackend) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	e.wg.Wait()
	for name, mgr := range e.managers {
		if err := mgr.Stop(); err != nil {
			e.logger.Warn("stopping process on close", "service", name, "error", err)
		}
	}
	e.cancel()
	return nil
}
