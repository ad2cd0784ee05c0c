package canbus

import (
	"context"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/value"
)

// Publisher exports platform values.
type Publisher interface {
	PublishValue(path string, v value.Value) error
}

// Logger defines the logging interface for the monitor.
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

// Monitor keeps CanBus/Interfaces current.
type Monitor struct {
	dir    string
	pub    Publisher
	logger Logger

	mu        sync.Mutex
	conn      *netlink.UEventConn
	quit      chan struct{}
	running   bool
	published string
}

// NewMonitor creates a monitor. It returns nil when CAN discovery is disabled;
// a nil Monitor is safe to use.
func NewMonitor(cfg config.CANBusConfig, pub Publisher) *Monitor {
	if !cfg.Enabled || pub == nil {
		return nil
	}
	return &Monitor{
		dir:    cfg.SysClassNet,
		pub:    pub,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	if m != nil {
		m.logger = logger
	}
}

// Refresh enumerates the interfaces and publishes the list if it changed.
func (m *Monitor) Refresh() error {
	if m == nil {
		return nil
	}
	list, err := Enumerate(m.dir)
	if err != nil {
		return err
	}
	payload, err := encode(list)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if payload == m.published {
		return nil
	}
	if err := m.pub.PublishValue(PathInterfaces, value.OfUnsupported(payload)); err != nil {
		return err
	}
	m.published = payload
	m.logger.Info("CAN interfaces changed", "interfaces", payload)
	return nil
}

// Start publishes the current interfaces and follows udev network events.
// A netlink failure is logged; the initial list is still published.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if err := m.Refresh(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink unavailable, CAN interfaces will not be re-scanned", "error", err)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true
	go m.monitorLoop(ctx, conn, m.quit)

	m.logger.Info("CAN interface monitor started", "sys_class_net", m.dir)
	return nil
}

// Stop shuts the netlink monitor down.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
	m.logger.Info("CAN interface monitor stopped")
}

// Running reports whether the netlink monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, netMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case ev := <-queue:
			m.logger.Debug("network device event", "action", string(ev.Action), "kobj", ev.KObj)
			if err := m.Refresh(); err != nil {
				m.logger.Warn("refreshing CAN interfaces failed", "error", err)
			}
		case err := <-errs:
			m.logger.Warn("netlink monitor error", "error", err)
		}
	}
}

// netMatcher matches network interfaces coming and going.
func netMatcher() netlink.Matcher {
	action := "add|remove|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}
