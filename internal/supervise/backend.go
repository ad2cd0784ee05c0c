package supervise

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/process"
)

// Command is an instruction sent to a supervisor.
type Command string

const (
	CommandUp      Command = "up"
	CommandDown    Command = "down"
	CommandRestart Command = "restart"
	// CommandTerm asks a running service to exit without changing what
	// the supervisor wants.
	CommandTerm Command = "term"
)

// State is what the supervisor reports about a service.
type State struct {
	Name string `json:"name"`
	// Up is true while the service process is running.
	Up  bool `json:"up"`
	PID int  `json:"pid,omitempty"`
	// Want is the state the supervisor is driving towards ("up" or "down").
	Want string `json:"want,omitempty"`
}

// Backend is a process supervisor.
type Backend interface {
	// Exists reports whether the service is installed.
	Exists(name string) bool

	// List returns the names of all installed services.
	List() ([]string, error)

	// Command sends cmd to the service. It must not block on the service
	// converging.
	Command(name string, cmd Command) error

	// Status queries the supervisor for the current service state.
	Status(ctx context.Context, name string) (State, error)

	Close() error
}

// Logger defines the logging interface for the supervise package.
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

// NewBackend builds the backend selected in cfg.
func NewBackend(cfg config.SupervisorConfig, logger Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendDaemontools:
		return NewDaemontools(cfg.ServiceDir), nil
	case config.BackendExec:
		specs := make(map[string]process.Config, len(cfg.Services))
		for name, svc := range cfg.Services {
			pc := process.DefaultConfig(name, svc.Binary, svc.Args)
			pc.Env = svc.Env
			pc.WorkDir = svc.WorkDir
			if cfg.GracefulTimeout > 0 {
				pc.StopTimeout = cfg.GracefulTimeout
			}
			specs[name] = pc
		}
		return NewExecBackend(specs, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
