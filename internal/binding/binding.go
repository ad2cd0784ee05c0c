package binding

import (
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-platform/internal/value"
	"github.com/nerrad567/gray-logic-platform/internal/watch"
)

// Kind selects how inputs combine into a decision.
type Kind int

const (
	KindEnable Kind = iota + 1
	KindAnyOf
	KindModeSelect
	KindVersionEdge
)

// String returns the kind name used in logs and status output.
func (k Kind) String() string {
	switch k {
	case KindEnable:
		return "enable"
	case KindAnyOf:
		return "any_of"
	case KindModeSelect:
		return "mode_select"
	case KindVersionEdge:
		return "version_edge"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Policy selects what a decision change does.
type Policy int

const (
	// Restart drives the bound Service: start, stop, or restart on a
	// mode or version change.
	Restart Policy = iota
	// SideEffectOnly calls Effect once per decision change.
	SideEffectOnly
)

// String returns the policy name.
func (p Policy) String() string {
	if p == SideEffectOnly {
		return "side_effect_only"
	}
	return "restart"
}

// Errors returned by New.
var (
	ErrInvalidConfig = errors.New("binding: invalid configuration")
)

// Service is the supervised process a Restart binding drives.
// Restart must be a single atomic command at the supervisor.
type Service interface {
	Name() string
	Start() error
	Stop() error
	Restart() error
}

// Decision is the desired state computed from the inputs.
type Decision struct {
	Enabled bool   `json:"enabled"`
	Mode    int    `json:"mode,omitempty"`
	Version string `json:"version,omitempty"`
}

// Change describes a decision transition handed to an Effect.
// First is true for the first decision after startup; Prev is then zero.
type Change struct {
	Prev  Decision
	Next  Decision
	First bool
}

// Effect performs the side effect of a SideEffectOnly binding.
type Effect func(Change) error

// Command is the process command a Restart binding issued.
type Command string

const (
	CommandNone    Command = ""
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandRestart Command = "restart"
)

// Applied is reported to observers after every decision change.
type Applied struct {
	Binding string
	Change  Change
	Command Command
	Err     error
}

// Input is one watched path and the predicate evaluating it.
// KindVersionEdge ignores Predicate.
type Input struct {
	Path      string
	Predicate Predicate
}

// Config describes a binding.
type Config struct {
	Name    string
	Kind    Kind
	Inputs  []Input
	Policy  Policy
	Service Service
	Effect  Effect
	Logger  Logger
}

// Logger defines the logging interface for bindings.
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

// outcome is the last valid evaluation of one input.
type outcome struct {
	observed bool
	enabled  bool
	mode     int
	version  string
}

// Binding is a live ServiceBinding.
type Binding struct {
	cfg    Config
	logger Logger

	outcomes   []outcome
	watches    []*watch.Watch
	starting   bool
	applied    Decision
	hasApplied bool
	observers  []func(Applied)
}

// New validates cfg and creates an unstarted binding.
func New(cfg Config) (*Binding, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Binding{
		cfg:      cfg,
		logger:   logger,
		outcomes: make([]outcome, len(cfg.Inputs)),
	}, nil
}

func validate(cfg Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	switch cfg.Kind {
	case KindEnable, KindModeSelect, KindVersionEdge:
		if len(cfg.Inputs) != 1 {
			return fmt.Errorf("%w: %s binding %q needs exactly one input", ErrInvalidConfig, cfg.Kind, cfg.Name)
		}
	case KindAnyOf:
		if len(cfg.Inputs) == 0 {
			return fmt.Errorf("%w: any_of binding %q needs at least one input", ErrInvalidConfig, cfg.Name)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d for %q", ErrInvalidConfig, cfg.Kind, cfg.Name)
	}
	for i, in := range cfg.Inputs {
		if in.Path == "" {
			return fmt.Errorf("%w: input %d of %q has no path", ErrInvalidConfig, i, cfg.Name)
		}
		if cfg.Kind != KindVersionEdge && in.Predicate == nil {
			return fmt.Errorf("%w: input %d of %q has no predicate", ErrInvalidConfig, i, cfg.Name)
		}
	}
	switch cfg.Policy {
	case Restart:
		if cfg.Service == nil {
			return fmt.Errorf("%w: restart binding %q needs a service", ErrInvalidConfig, cfg.Name)
		}
	case SideEffectOnly:
		if cfg.Effect == nil {
			return fmt.Errorf("%w: side-effect binding %q needs an effect", ErrInvalidConfig, cfg.Name)
		}
	default:
		return fmt.Errorf("%w: unknown policy %d for %q", ErrInvalidConfig, cfg.Policy, cfg.Name)
	}
	return nil
}

// Name returns the binding name.
func (b *Binding) Name() string { return b.cfg.Name }

// Kind returns the binding kind.
func (b *Binding) Kind() Kind { return b.cfg.Kind }

// Policy returns the binding policy.
func (b *Binding) Policy() Policy { return b.cfg.Policy }

// Decision returns the last applied decision and whether one exists.
func (b *Binding) Decision() (Decision, bool) { return b.applied, b.hasApplied }

// OnApply subscribes fn to decision changes.
func (b *Binding) OnApply(fn func(Applied)) {
	b.observers = append(b.observers, fn)
}

// Start subscribes to every input. The initial values of all inputs are
// combined into one decision, applied before Start returns.
func (b *Binding) Start(src watch.Source) {
	b.starting = true
	for i, in := range b.cfg.Inputs {
		idx := i
		b.watches = append(b.watches, src.Watch(in.Path, func(v value.Value) {
			b.handle(idx, v)
		}))
	}
	b.starting = false

	if d, ok := b.decide(); ok {
		b.apply(d)
	}
}

// Close cancels all watches. The supervised process is left as is.
func (b *Binding) Close() {
	for _, w := range b.watches {
		w.Cancel()
	}
	b.watches = nil
}

func (b *Binding) handle(idx int, v value.Value) {
	if !v.Valid() {
		b.logger.Debug("binding input unavailable", "binding", b.cfg.Name, "path", b.cfg.Inputs[idx].Path)
		return
	}
	if v.Kind() == value.Unsupported {
		b.logger.Warn("unsupported value shape, treating as false",
			"binding", b.cfg.Name,
			"path", b.cfg.Inputs[idx].Path,
			"value", v.String(),
		)
	}

	if !b.record(idx, v) || b.starting {
		return
	}
	if d, ok := b.decide(); ok {
		b.apply(d)
	}
}

// record stores the evaluation of a valid value. An input that turns
// invalid later keeps this outcome.
func (b *Binding) record(idx int, v value.Value) bool {
	if b.cfg.Kind == KindVersionEdge {
		if v.Kind() == value.Unsupported {
			return false
		}
		b.outcomes[idx] = outcome{observed: true, enabled: true, version: v.String()}
		return true
	}

	enabled, mode := b.cfg.Inputs[idx].Predicate(v)
	b.outcomes[idx] = outcome{observed: true, enabled: enabled, mode: mode}
	return true
}

// decide combines the recorded outcomes. ok is false until an input has
// been observed.
func (b *Binding) decide() (Decision, bool) {
	if b.cfg.Kind == KindAnyOf {
		observed := false
		for _, o := range b.outcomes {
			if !o.observed {
				continue
			}
			observed = true
			if o.enabled {
				return Decision{Enabled: true}, true
			}
		}
		return Decision{}, observed
	}

	o := b.outcomes[0]
	switch {
	case !o.observed:
		return Decision{}, false
	case b.cfg.Kind == KindVersionEdge:
		return Decision{Enabled: true, Version: o.version}, true
	case !o.enabled:
		return Decision{}, true
	case b.cfg.Kind == KindModeSelect:
		return Decision{Enabled: true, Mode: o.mode}, true
	default:
		return Decision{Enabled: true}, true
	}
}

func (b *Binding) apply(next Decision) {
	if b.hasApplied && next == b.applied {
		return
	}
	change := Change{Prev: b.applied, Next: next, First: !b.hasApplied}
	b.applied = next
	b.hasApplied = true

	result := Applied{Binding: b.cfg.Name, Change: change}
	switch b.cfg.Policy {
	case SideEffectOnly:
		result.Err = b.cfg.Effect(change)
	default:
		result.Command = command(b.cfg.Kind, change)
		result.Err = b.issue(result.Command)
	}

	if result.Err != nil {
		b.logger.Error("binding action failed",
			"binding", b.cfg.Name,
			"command", string(result.Command),
			"error", result.Err,
		)
	} else {
		b.logger.Info("binding applied",
			"binding", b.cfg.Name,
			"enabled", next.Enabled,
			"mode", next.Mode,
			"command", string(result.Command),
		)
	}

	for _, fn := range b.observers {
		fn(result)
	}
}

// command maps a decision change to the process command it requires.
func command(kind Kind, c Change) Command {
	if kind == KindVersionEdge {
		if c.First || c.Prev.Version == c.Next.Version {
			return CommandNone
		}
		return CommandRestart
	}

	switch {
	case c.First && c.Next.Enabled:
		return CommandStart
	case c.First:
		return CommandStop
	case !c.Prev.Enabled && c.Next.Enabled:
		return CommandStart
	case c.Prev.Enabled && !c.Next.Enabled:
		return CommandStop
	case c.Prev.Enabled && c.Next.Enabled && c.Prev.Mode != c.Next.Mode:
		return CommandRestart
	default:
		return CommandNone
	}
}

func (b *Binding) issue(cmd Command) error {
	svc := b.cfg.Service
	switch cmd {
	case CommandStart:
		return svc.Start()
	case CommandStop:
		return svc.Stop()
	case CommandRestart:
		return svc.Restart()
	default:
		return nil
	}
}
