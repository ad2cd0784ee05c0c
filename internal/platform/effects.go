package platform

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"

	"github.com/nerrad567/gray-logic-platform/internal/binding"
	"github.com/nerrad567/gray-logic-platform/internal/value"
)

// signalInit asks init to reboot the appliance.
var signalInit = func() error {
	return syscall.Kill(1, syscall.SIGINT)
}

func (a *Application) doReboot() {
	a.logger.Warn("rebooting")
	if err := signalInit(); err != nil {
		a.logger.Error("signalling init failed", "error", err)
	}
}

// demoEffect starts the recorded demo for modes 1..3. The stop script
// restarts the regular services, so it only runs after a start.
func (a *Application) demoEffect(c binding.Change) error {
	dir := a.cfg.Platform.DemoDir
	if c.Next.Enabled {
		a.demoStarted = true
		return a.runner.Spawn(filepath.Join(dir, "startdemo.sh"), strconv.Itoa(c.Next.Mode))
	}
	if !a.demoStarted {
		return nil
	}
	a.demoStarted = false
	return a.runner.Spawn(filepath.Join(dir, "stopdemo.sh"))
}

// tailscaleEffect runs the VPN backend and control services together.
// Disabling logs the node out before the services stop.
func (a *Application) tailscaleEffect(c binding.Change) error {
	backend := a.registry.Service(ServiceTailscaleBackend)
	control := a.registry.Service(ServiceTailscaleControl)

	if c.Next.Enabled {
		a.logger.Info("enabling tailscale")
		return errors.Join(backend.Start(), control.Start())
	}

	a.logger.Info("disabling tailscale")
	ctx, cancel := context.WithTimeout(context.Background(), helperTimeout)
	defer cancel()
	if _, err := a.runner.Output(ctx, a.cfg.Platform.TailscaleBinary, "down"); err != nil {
		a.logger.Warn("tailscale down failed", "error", err)
	}
	return errors.Join(backend.Stop(), control.Stop())
}

// evccEffect links the optional evcc service into the service directory
// and brings it up, or takes it down and unlinks it.
func (a *Application) evccEffect(c binding.Change) error {
	link := filepath.Join(a.cfg.Supervisor.ServiceDir, ServiceEvcc)
	svc := a.registry.Service(ServiceEvcc)

	if c.Next.Enabled {
		a.logger.Info("enabling evcc", "link", link)
		if err := os.Symlink(a.cfg.Platform.EvccServiceDir, link); err != nil && !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("linking evcc service: %w", err)
		}
		return svc.Start()
	}

	if _, err := os.Lstat(link); err != nil {
		return nil
	}
	a.logger.Info("removing evcc", "link", link)
	stopErr := svc.Stop()
	if err := os.Remove(link); err != nil {
		return errors.Join(stopErr, fmt.Errorf("unlinking evcc service: %w", err))
	}
	return stopErr
}

// mk3Changed terminates the running VE.Bus services when an MK3 firmware
// update becomes allowed, so they come back with the new setting. Services
// that are down stay down.
func (a *Application) mk3Changed(v value.Value) {
	prev := a.lastMk3
	a.lastMk3 = v

	from, okFrom := prev.AsInt()
	to, okTo := v.AsInt()
	if !okFrom || !okTo || from != Mk3UpdateDisallowed || to != Mk3UpdateAllowed {
		return
	}

	services, err := a.registry.Glob(vebusServices)
	if err != nil {
		a.logger.Error("listing VE.Bus services failed", "error", err)
		return
	}
	a.logger.Info("terminating VE.Bus services", "count", len(services))
	for _, svc := range services {
		a.attribute(svc.Name(), "mk3-update")
		if err := svc.Term(); err != nil {
			a.logger.Error("terminating VE.Bus service failed", "service", svc.Name(), "error", err)
		}
	}
}

// mirror is a setting re-exported below the platform namespace. Writes
// to Path are forwarded to the setting.
type mirror struct {
	Path    string
	Setting string
}

func (a *Application) mirrors() []mirror {
	var out []mirror
	if a.registry.Exists(ServiceNodeRed) {
		out = append(out, mirror{Path: "Services/NodeRed/Mode", Setting: SettingNodeRed})
	}
	if a.registry.Exists(ServiceSignalK) {
		out = append(out, mirror{Path: "Services/SignalK/Enabled", Setting: SettingSignalK})
	}
	if templateExists(a.cfg.Supervisor.TemplateDir, "hostapd") {
		out = append(out, mirror{Path: "Services/AccessPoint/Enabled", Setting: SettingAccessPoint})
	}
	if fileExists(a.cfg.Platform.ConsoleDevice) {
		out = append(out, mirror{Path: "Services/Console/Enabled", Setting: SettingConsole})
	}
	return out
}

func (a *Application) startProxies() {
	for _, m := range a.mirrors() {
		m := m
		target := settingPath(a.settingsService(), m.Setting)
		a.proxies[m.Path] = target
		a.watch(target, func(v value.Value) {
			a.publish(m.Path, v)
		})
	}
}

// Proxies returns the mirrored platform paths sorted.
func (a *Application) Proxies() []string {
	out := make([]string, 0, len(a.proxies))
	for p := range a.proxies {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
