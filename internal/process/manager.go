package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	// StatusBackoff means the process exited and a respawn is pending.
	StatusBackoff Status = "backoff"
	// StatusFailed means the process exited and will not be respawned.
	StatusFailed Status = "failed"
)

// ErrAlreadyStarted is returned by Start while the manager supervises a process.
var ErrAlreadyStarted = errors.New("process already started")

// Config describes one supervised service process.
type Config struct {
	Name    string
	Binary  string
	Args    []string
	Env     []string // appended to the daemon environment
	WorkDir string

	// Respawn restarts the process whenever it exits on its own.
	Respawn bool
	// RespawnDelay is the first respawn delay. It doubles per consecutive
	// exit up to MaxRespawnDelay.
	RespawnDelay    time.Duration
	MaxRespawnDelay time.Duration
	// StableAfter resets the backoff once a process stayed up this long.
	StableAfter time.Duration
	// MaxRespawns gives up after this many consecutive exits. 0 is unlimited.
	MaxRespawns int

	// StopTimeout is the wait between SIGTERM and SIGKILL.
	StopTimeout time.Duration
}

// DefaultConfig returns a respawning Config with daemontools-like timing.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:            name,
		Binary:          binary,
		Args:            args,
		Respawn:         true,
		RespawnDelay:    time.Second,
		MaxRespawnDelay: time.Minute,
		StableAfter:     time.Minute,
		StopTimeout:     10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.RespawnDelay <= 0 {
		c.RespawnDelay = time.Second
	}
	if c.MaxRespawnDelay < c.RespawnDelay {
		c.MaxRespawnDelay = c.RespawnDelay
	}
	if c.StableAfter <= 0 {
		c.StableAfter = time.Minute
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
}

// Logger defines the logging interface for the process package.
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

// Manager keeps one service process up between Start and Stop.
type Manager struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	status   Status
	pid      int
	since    time.Time
	respawns int
	lastErr  error
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewManager creates a manager for cfg. Nothing runs until Start.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Name returns the service name.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// Start spawns the process and supervises it until Stop or until ctx is
// cancelled. A spawn failure is returned and leaves the manager failed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return fmt.Errorf("%s: %w", m.cfg.Name, ErrAlreadyStarted)
	}

	cmd, err := m.spawn()
	if err != nil {
		m.status = StatusFailed
		m.lastErr = err
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.respawns = 0
	m.setRunning(cmd)
	go m.supervise(runCtx, cmd, m.done)
	return nil
}

// Stop terminates the process group and cancels a pending respawn. It
// returns once the process is gone.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// IsRunning reports whether the process is supervised, including while a
// respawn is pending.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

// Stats is a point-in-time view of a managed process.
type Stats struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	PID      int           `json:"pid,omitempty"`
	Uptime   time.Duration `json:"uptime,omitempty"`
	Respawns int           `json:"respawns"`
	LastErr  string        `json:"last_error,omitempty"`
}

// Stats returns the current process state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Name: m.cfg.Name, Status: m.status, Respawns: m.respawns}
	if m.status == StatusRunning {
		st.PID = m.pid
		st.Uptime = time.Since(m.since)
	}
	if m.lastErr != nil {
		st.LastErr = m.lastErr.Error()
	}
	return st
}

// spawn starts the binary in its own process group so Stop reaches its
// children too. Output is logged line by line.
func (m *Manager) spawn() (*exec.Cmd, error) {
	cmd := exec.Command(m.cfg.Binary, m.cfg.Args...) //nolint:gosec // binary comes from the supervisor config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if m.cfg.Env != nil {
		cmd.Env = append(os.Environ(), m.cfg.Env...)
	}
	cmd.Dir = m.cfg.WorkDir
	cmd.Stdout = &lineLogger{logger: m.logger, name: m.cfg.Name, stream: "stdout"}
	cmd.Stderr = &lineLogger{logger: m.logger, name: m.cfg.Name, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.cfg.Name, err)
	}
	m.logger.Info("process started", "name", m.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// setRunning must be called with mu held.
func (m *Manager) setRunning(cmd *exec.Cmd) {
	m.status = StatusRunning
	m.pid = cmd.Process.Pid
	m.since = time.Now()
}

func (m *Manager) setStatus(status Status, err error) {
	m.mu.Lock()
	m.status = status
	if err != nil {
		m.lastErr = err
	}
	m.mu.Unlock()
}

// finish ends supervision so Start can be called again.
func (m *Manager) finish(done chan struct{}, status Status, err error) {
	m.mu.Lock()
	m.status = status
	if err != nil {
		m.lastErr = err
	}
	m.pid = 0
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()
	close(done)
}

func (m *Manager) supervise(ctx context.Context, cmd *exec.Cmd, done chan struct{}) {
	for {
		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()

		var err error
		select {
		case err = <-exited:
		case <-ctx.Done():
			m.terminate(cmd, exited)
			m.logger.Info("process stopped", "name", m.cfg.Name)
			m.finish(done, StatusStopped, nil)
			return
		}
		if err == nil {
			err = errors.New("exited with status 0")
		}

		m.mu.Lock()
		uptime := time.Since(m.since)
		if uptime >= m.cfg.StableAfter {
			m.respawns = 0
		}
		m.respawns++
		attempt := m.respawns
		m.mu.Unlock()

		m.logger.Warn("process exited", "name", m.cfg.Name, "error", err, "uptime", uptime)

		if !m.cfg.Respawn {
			m.finish(done, StatusFailed, err)
			return
		}
		if m.cfg.MaxRespawns > 0 && attempt > m.cfg.MaxRespawns {
			m.logger.Error("giving up on process", "name", m.cfg.Name, "exits", attempt)
			m.finish(done, StatusFailed, err)
			return
		}

		delay := respawnDelay(m.cfg.RespawnDelay, m.cfg.MaxRespawnDelay, attempt)
		m.setStatus(StatusBackoff, err)
		m.logger.Info("respawning process", "name", m.cfg.Name, "attempt", attempt, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.finish(done, StatusStopped, nil)
			return
		case <-timer.C:
		}

		next, spawnErr := m.spawn()
		if spawnErr != nil {
			m.logger.Error("respawn failed", "name", m.cfg.Name, "error", spawnErr)
			m.finish(done, StatusFailed, spawnErr)
			return
		}
		m.mu.Lock()
		m.setRunning(next)
		m.mu.Unlock()
		cmd = next
	}
}

// terminate sends SIGTERM to the process group and SIGKILL after
// StopTimeout, then collects the exit.
func (m *Manager) terminate(cmd *exec.Cmd, exited <-chan error) {
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("SIGTERM failed", "name", m.cfg.Name, "error", err)
	}

	timer := time.NewTimer(m.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return
	case <-timer.C:
	}

	m.logger.Warn("process ignored SIGTERM, killing", "name", m.cfg.Name, "timeout", m.cfg.StopTimeout)
	if err := syscall.Kill(pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Error("SIGKILL failed", "name", m.cfg.Name, "error", err)
	}
	<-exited
}

// respawnDelay returns base * 2^(attempt-1) capped at limit.
func respawnDelay(base, limit time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

// lineLogger logs each complete line written to it.
type lineLogger struct {
	logger Logger
	name   string
	stream string
	buf    []byte
}

// maxLineSize flushes a partial line that grew this long.
const maxLineSize = 64 * 1024

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) >= maxLineSize {
		l.emit(l.buf)
		l.buf = nil
	}
	return len(p), nil
}

func (l *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	l.logger.Debug("process output", "name", l.name, "stream", l.stream, "line", string(line))
}
