package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-platform/internal/binding"
	"github.com/nerrad567/gray-logic-platform/internal/debounce"
	"github.com/nerrad567/gray-logic-platform/internal/discovery"
	"github.com/nerrad567/gray-logic-platform/internal/event"
	"github.com/nerrad567/gray-logic-platform/internal/gate"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-platform/internal/supervise"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
	"github.com/nerrad567/gray-logic-platform/internal/value"
	"github.com/nerrad567/gray-logic-platform/internal/watch"
)

// Gate names.
const (
	GateGeneratorStarter = "generator-starter"
	GateParallelBMS      = "parallel-bms"
)

// Supervised services driven directly by the platform.
const (
	ServiceGeneratorStarter = "dbus-generator-starter"
	ServiceParallelBMS      = "dbus-parallel-bms"
	ServiceStartGui         = "start-gui"
	ServiceLegacyGui        = "gui"
	ServiceNodeRed          = "node-red-venus"
	ServiceSignalK          = "signalk-server"
	ServiceEvcc             = "evcc"
	ServiceTailscaleBackend = "tailscale-backend"
	ServiceTailscaleControl = "tailscale-control"

	// vebusServices matches every VE.Bus service instance.
	vebusServices = "mk2-dbus.*"
)

// Platform value paths.
const (
	PathProductName        = "ProductName"
	PathUniqueID           = "Device/UniqueId"
	PathDataPartitionError = "Device/DataPartitionError"
	PathReboot             = "Device/Reboot"
	PathEvccInstalled      = "Services/Evcc/Installed"
	PathRunningGui         = "Gui/RunningVersion"
)

// Relay/Function values.
const (
	relayFunctionGenerator  = 1
	relayFunctionPump       = 3
	relayFunctionTempSensor = 4
)

// reasonRelay is the generator-starter reason contributed by the relay setting.
const reasonRelay = "Relay"

// helperTimeout bounds synchronous helper commands run on the loop.
const helperTimeout = 10 * time.Second

// afterFunc is time.AfterFunc, swapped in tests.
var afterFunc = time.AfterFunc

// Runner executes helper commands.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
	Spawn(name string, args ...string) error
}

// Logger defines the logging interface for the platform.
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

// SourceRecorder attributes supervisor commands for a service to the gate
// or binding that drives it.
type SourceRecorder interface {
	SetSource(service, source string)
}

// GateObserver is told about every gate edge.
type GateObserver func(name string, active bool, reasons []string)

// Deps are the collaborators of an Application.
type Deps struct {
	Config    *config.Config
	Loop      *event.Loop
	Tree      *tree.Tree
	Registry  *supervise.Registry
	Publisher Publisher
	Runner    Runner
	Sources   SourceRecorder // optional
	Logger    Logger
}

// Application owns the platform wiring. It is driven by the event loop.
type Application struct {
	cfg       *config.Config
	loop      *event.Loop
	tree      *tree.Tree
	registry  *supervise.Registry
	publisher Publisher
	runner    Runner
	sources   SourceRecorder
	logger    Logger

	settings    SettingsTable
	generator   *gate.Gate
	parallelBMS *gate.Gate
	dispatcher  *discovery.Dispatcher
	bindings    []*binding.Binding
	watches     []*watch.Watch
	proxies     map[string]string
	reboot      *debounce.Debouncer

	started       bool
	initialized   bool
	settingsTimer *time.Timer
	fatal         chan error

	gateObservers    []GateObserver
	bindingObservers []func(binding.Applied)

	demoStarted bool
	lastMk3     value.Value
}

// New creates an Application. Start begins the startup sequence.
func New(d Deps) (*Application, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("platform: config is required")
	case d.Loop == nil || d.Tree == nil:
		return nil, errors.New("platform: loop and tree are required")
	case d.Registry == nil:
		return nil, errors.New("platform: service registry is required")
	case d.Publisher == nil || d.Runner == nil:
		return nil, errors.New("platform: publisher and runner are required")
	}

	logger := d.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	a := &Application{
		cfg:         d.Config,
		loop:        d.Loop,
		tree:        d.Tree,
		registry:    d.Registry,
		publisher:   d.Publisher,
		runner:      d.Runner,
		sources:     d.Sources,
		logger:      logger,
		generator:   gate.New(GateGeneratorStarter),
		parallelBMS: gate.New(GateParallelBMS),
		proxies:     make(map[string]string),
		fatal:       make(chan error, 1),
	}
	a.generator.SetLogger(logger)
	a.parallelBMS.SetLogger(logger)
	a.reboot = debounce.New("reboot", d.Config.Platform.RebootDelay, a.doReboot, d.Loop)
	return a, nil
}

// OnGateChange subscribes fn to the edges of both gates.
func (a *Application) OnGateChange(fn GateObserver) {
	a.gateObservers = append(a.gateObservers, fn)
}

// OnBindingApplied subscribes fn to the decisions of every binding.
func (a *Application) OnBindingApplied(fn func(binding.Applied)) {
	a.bindingObservers = append(a.bindingObservers, fn)
}

// Fatal delivers a condition the daemon cannot recover from. It may be
// read from any goroutine.
func (a *Application) Fatal() <-chan error {
	return a.fatal
}

// Initialized reports whether the settings service was found and the
// platform wiring is in place.
func (a *Application) Initialized() bool {
	return a.initialized
}

// Settings returns the registered settings table; nil before initialization.
func (a *Application) Settings() SettingsTable {
	return a.settings
}

func (a *Application) settingsService() string {
	return a.cfg.Platform.SettingsService
}

// Start waits for the settings service. If it is already synchronized the
// platform initializes before Start returns; otherwise a timer is armed
// and ErrSettingsUnavailable is reported when it expires.
func (a *Application) Start() {
	if a.started {
		return
	}
	a.started = true
	a.tree.AddListener(settingsListener{app: a})

	svc := a.settingsService()
	if obj, ok := a.tree.Object(svc); ok && obj.State == event.StateSynchronized {
		a.logger.Info("settings service found", "service", svc)
		a.init()
		return
	}

	timeout := a.cfg.Platform.SettingsTimeout
	a.logger.Info("waiting for settings service", "service", svc, "timeout", timeout.String())
	a.settingsTimer = afterFunc(timeout, func() {
		a.loop.Post(event.TimerExpired{Name: "settings-timeout", Fire: a.settingsTimedOut})
	})
}

func (a *Application) settingsTimedOut() {
	if a.initialized {
		return
	}
	a.fail(fmt.Errorf("%w after %s", ErrSettingsUnavailable, a.cfg.Platform.SettingsTimeout))
}

func (a *Application) settingsStateChanged(state event.State) {
	if a.initialized {
		if state != event.StateSynchronized {
			a.fail(fmt.Errorf("%w: state %s", ErrSettingsLost, state))
		}
		return
	}
	if state != event.StateSynchronized {
		a.logger.Debug("settings service not ready", "state", string(state))
		return
	}
	if a.settingsTimer != nil {
		a.settingsTimer.Stop()
	}
	a.logger.Info("settings service appeared", "service", a.settingsService())
	a.init()
}

func (a *Application) fail(err error) {
	a.logger.Error("platform cannot continue", "error", err)
	select {
	case a.fatal <- err:
	default:
	}
}

// init builds the platform once the settings service is available.
func (a *Application) init() {
	a.initialized = true

	pc := a.cfg.Platform
	accessPoint := templateExists(a.cfg.Supervisor.TemplateDir, "hostapd")
	a.settings = DefaultSettings(mk3UpdateDefault(pc.InstallerVersion), accessPoint)

	a.logger.Info("registering settings", "count", len(a.settings))
	if err := a.publisher.RegisterSettings(a.settingsService(), a.settings); err != nil {
		a.fail(fmt.Errorf("registering settings: %w", err))
		return
	}

	a.publishDeviceValues()
	if err := a.startGates(); err != nil {
		a.fail(err)
		return
	}
	a.startGui()
	for _, cfg := range append(a.serviceBindings(), a.sideEffectBindings()...) {
		if err := a.startBinding(cfg); err != nil {
			a.fail(err)
			return
		}
	}
	a.watch(settingPath(a.settingsService(), SettingMk3Update), a.mk3Changed)
	a.startProxies()

	a.logger.Info("platform started",
		"bindings", len(a.bindings),
		"proxies", len(a.proxies),
	)
}

func (a *Application) publish(path string, v value.Value) {
	if err := a.publisher.PublishValue(path, v); err != nil {
		a.logger.Warn("publishing platform value failed", "path", path, "error", err)
	}
}

func (a *Application) publishDeviceValues() {
	pc := a.cfg.Platform

	a.publish(PathProductName, value.OfString(a.cfg.Site.Name))

	ctx, cancel := context.WithTimeout(context.Background(), helperTimeout)
	id, err := a.runner.Output(ctx, pc.UniqueIDCommand)
	cancel()
	if err != nil {
		a.logger.Warn("reading unique id failed", "command", pc.UniqueIDCommand, "error", err)
	}
	a.publish(PathUniqueID, value.OfString(id))

	var partitionError int64
	if dataPartitionError(pc.DataPartitionState) {
		partitionError = 1
		a.logger.Warn("data partition failed", "state_file", pc.DataPartitionState)
	}
	a.publish(PathDataPartitionError, value.OfInt(partitionError))
	a.publish(PathEvccInstalled, value.OfBool(dirExists(pc.EvccServiceDir)))
}

// startGates wires both condition gates. Discovery replays known objects
// before the gates are bound to their services, so the first command
// reflects everything already on the bus.
func (a *Application) startGates() error {
	for _, g := range []*gate.Gate{a.generator, a.parallelBMS} {
		g := g
		g.OnChange(func(active bool) {
			reasons := g.Reasons()
			for _, fn := range a.gateObservers {
				fn(g.Name(), active, reasons)
			}
		})
	}

	err := a.startBinding(binding.Config{
		Name: "generator-relay",
		Kind: binding.KindEnable,
		Inputs: []binding.Input{{
			Path:      settingPath(a.settingsService(), SettingRelayFunction),
			Predicate: binding.Equals(relayFunctionGenerator),
		}},
		Policy: binding.SideEffectOnly,
		Effect: func(c binding.Change) error {
			a.generator.Set(reasonRelay, c.Next.Enabled)
			return nil
		},
	})
	if err != nil {
		return err
	}

	a.dispatcher = discovery.New(discovery.Config{
		Rules:         discovery.RulesFromConfig(a.cfg.Discovery),
		BMSProductIDs: a.cfg.Discovery.BMSProductIDs,
		Generators:    a.generator,
		ParallelBMS:   a.parallelBMS,
		Logger:        a.logger,
	})
	a.dispatcher.Start(a.tree)

	a.attribute(ServiceGeneratorStarter, GateGeneratorStarter)
	a.attribute(ServiceParallelBMS, GateParallelBMS)
	a.generator.Drive(a.registry.Service(ServiceGeneratorStarter))
	a.parallelBMS.Drive(a.registry.Service(ServiceParallelBMS))
	return nil
}

// startGui restarts the GUI switcher whenever the selected GUI version
// changes. Appliances with only the legacy GUI have nothing to switch.
func (a *Application) startGui() {
	if a.registry.Exists(ServiceLegacyGui) {
		a.publish(PathRunningGui, value.OfInt(1))
		return
	}

	path := settingPath(a.settingsService(), SettingRunningVersion)
	if err := a.startBinding(binding.Config{
		Name:    ServiceStartGui,
		Kind:    binding.KindVersionEdge,
		Inputs:  []binding.Input{{Path: path}},
		Policy:  binding.Restart,
		Service: a.registry.Service(ServiceStartGui),
	}); err != nil {
		a.logger.Error("gui binding failed", "error", err)
		return
	}
	a.watch(path, func(v value.Value) {
		if v.Valid() {
			a.publish(PathRunningGui, v)
		}
	})
}

func (a *Application) enabledBy(setting string) binding.Input {
	return binding.Input{
		Path:      settingPath(a.settingsService(), setting),
		Predicate: binding.Truthy(a.settings.Domain(setting)),
	}
}

func (a *Application) serviceBinding(service string, kind binding.Kind, inputs ...binding.Input) binding.Config {
	return binding.Config{
		Name:    service,
		Kind:    kind,
		Inputs:  inputs,
		Policy:  binding.Restart,
		Service: a.registry.Service(service),
	}
}

// serviceBindings returns the setting-driven services. Optional services
// are only bound when installed.
func (a *Application) serviceBindings() []binding.Config {
	relay := func(setting string, function int64) binding.Input {
		return binding.Input{
			Path:      settingPath(a.settingsService(), setting),
			Predicate: binding.Equals(function),
		}
	}

	cfgs := []binding.Config{
		a.serviceBinding("dbus-ble-sensors", binding.KindEnable, a.enabledBy(SettingBleSensors)),
		a.serviceBinding("dbus-pump", binding.KindEnable, relay(SettingRelayFunction, relayFunctionPump)),
		a.serviceBinding("dbus-modbustcp", binding.KindEnable, a.enabledBy(SettingModbus)),
		a.serviceBinding("dbus-tempsensor-relay", binding.KindAnyOf,
			relay(SettingRelayFunction, relayFunctionTempSensor),
			relay(SettingRelay1Function, relayFunctionTempSensor),
		),
	}

	if a.registry.Exists(ServiceNodeRed) {
		cfgs = append(cfgs, a.serviceBinding(ServiceNodeRed, binding.KindModeSelect, binding.Input{
			Path:      settingPath(a.settingsService(), SettingNodeRed),
			Predicate: binding.OneOf(1, 2),
		}))
	}
	if a.registry.Exists(ServiceSignalK) {
		cfgs = append(cfgs, a.serviceBinding(ServiceSignalK, binding.KindEnable, a.enabledBy(SettingSignalK)))
	}

	cfgs = append(cfgs, a.serviceBinding("vesmart-server", binding.KindEnable, a.enabledBy(SettingBluetooth)))

	if templateExists(a.cfg.Supervisor.TemplateDir, "hostapd") {
		cfgs = append(cfgs, a.serviceBinding("hostapd", binding.KindEnable, a.enabledBy(SettingAccessPoint)))
	}

	return append(cfgs, a.serviceBinding("socketcand", binding.KindEnable, a.enabledBy(SettingSocketcand)))
}

// sideEffectBindings returns the settings that run helpers instead of
// driving a single service.
func (a *Application) sideEffectBindings() []binding.Config {
	a.attribute(ServiceTailscaleBackend, "tailscale")
	a.attribute(ServiceTailscaleControl, "tailscale")

	cfgs := []binding.Config{
		{
			Name: "demo-mode",
			Kind: binding.KindModeSelect,
			Inputs: []binding.Input{{
				Path:      settingPath(a.settingsService(), SettingDemoMode),
				Predicate: binding.OneOf(1, 2, 3),
			}},
			Policy: binding.SideEffectOnly,
			Effect: a.demoEffect,
		},
		{
			Name:   "tailscale",
			Kind:   binding.KindEnable,
			Inputs: []binding.Input{a.enabledBy(SettingTailscale)},
			Policy: binding.SideEffectOnly,
			Effect: a.tailscaleEffect,
		},
	}
	if dirExists(a.cfg.Platform.EvccServiceDir) {
		a.attribute(ServiceEvcc, ServiceEvcc)
		cfgs = append(cfgs, binding.Config{
			Name:   ServiceEvcc,
			Kind:   binding.KindEnable,
			Inputs: []binding.Input{a.enabledBy(SettingEvcc)},
			Policy: binding.SideEffectOnly,
			Effect: a.evccEffect,
		})
	}
	return cfgs
}

func (a *Application) startBinding(cfg binding.Config) error {
	cfg.Logger = a.logger
	b, err := binding.New(cfg)
	if err != nil {
		return fmt.Errorf("creating binding %s: %w", cfg.Name, err)
	}
	b.OnApply(func(applied binding.Applied) {
		for _, fn := range a.bindingObservers {
			fn(applied)
		}
	})
	if cfg.Service != nil {
		a.attribute(cfg.Service.Name(), cfg.Name)
	}
	a.bindings = append(a.bindings, b)
	b.Start(a.tree)
	return nil
}

func (a *Application) attribute(service, source string) {
	if a.sources != nil {
		a.sources.SetSource(service, source)
	}
}

func (a *Application) watch(path string, fn watch.Func) {
	a.watches = append(a.watches, a.tree.Watch(path, fn))
}

// ListenWrites subscribes to platform write requests. Requests are
// decoded on the MQTT goroutine and applied on the loop.
func (a *Application) ListenWrites(sub tree.Subscriber, topics mqtt.Topics, qos byte) error {
	err := sub.Subscribe(topics.AllPlatformWrites(), qos, func(topic string, payload []byte) error {
		path, ok := topics.ParsePlatformWrite(topic)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPath, topic)
		}
		v, err := value.Decode(payload)
		if err != nil {
			return fmt.Errorf("decoding write to %s: %w", path, err)
		}
		a.loop.Post(event.Call{Fn: func() {
			if err := a.HandleWrite(path, v); err != nil {
				a.logger.Warn("platform write rejected", "path", path, "error", err)
			}
		}})
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to platform writes: %w", err)
	}
	return nil
}

// HandleWrite applies a write request to a platform path.
func (a *Application) HandleWrite(path string, v value.Value) error {
	if path == PathReboot {
		if a.reboot.Trigger() {
			a.logger.Warn("reboot queued", "delay", a.cfg.Platform.RebootDelay.String())
		}
		return nil
	}
	if target, ok := a.proxies[path]; ok {
		if err := a.publisher.WriteSetting(target, v); err != nil {
			return fmt.Errorf("forwarding %s: %w", path, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPath, path)
}

// Close cancels every watch and pending timer. Supervised services keep
// their current state.
func (a *Application) Close() {
	if a.settingsTimer != nil {
		a.settingsTimer.Stop()
	}
	for _, b := range a.bindings {
		b.Close()
	}
	for _, w := range a.watches {
		w.Cancel()
	}
	a.bindings = nil
	a.watches = nil
}

type settingsListener struct {
	app *Application
}

func (l settingsListener) ObjectAppeared(string) {}

func (l settingsListener) ObjectStateChanged(id string, state event.State) {
	if id == l.app.settingsService() {
		l.app.settingsStateChanged(state)
	}
}

func (l settingsListener) ObjectRemoved(id string) {
	if id == l.app.settingsService() {
		l.app.settingsStateChanged(event.StateUnknown)
	}
}
