package platform

import (
	"github.com/nerrad567/gray-logic-platform/internal/binding"
	"github.com/nerrad567/gray-logic-platform/internal/discovery"
	"github.com/nerrad567/gray-logic-platform/internal/gate"
	"github.com/nerrad567/gray-logic-platform/internal/tree"
)

// GateStatus is a snapshot of one condition gate.
type GateStatus struct {
	Name    string   `json:"name"`
	Active  bool     `json:"active"`
	Reasons []string `json:"reasons"`
}

// BindingStatus is a snapshot of one binding.
type BindingStatus struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Policy   string            `json:"policy"`
	Decided  bool              `json:"decided"`
	Decision *binding.Decision `json:"decision,omitempty"`
}

// Status is a snapshot of the loop-owned platform state.
type Status struct {
	Initialized     bool                `json:"initialized"`
	SettingsService string              `json:"settings_service"`
	RebootPending   bool                `json:"reboot_pending"`
	Gates           []GateStatus        `json:"gates"`
	Bindings        []BindingStatus     `json:"bindings"`
	Objects         []tree.Object       `json:"objects"`
	Tracked         []discovery.Tracked `json:"tracked"`
	Proxies         []string            `json:"proxies"`
}

// Status builds a snapshot. It must run on the loop goroutine.
func (a *Application) Status() Status {
	st := Status{
		Initialized:     a.initialized,
		SettingsService: a.settingsService(),
		RebootPending:   a.reboot.Pending(),
		Objects:         a.tree.Objects(),
		Proxies:         a.Proxies(),
		Tracked:         []discovery.Tracked{},
		Bindings:        make([]BindingStatus, 0, len(a.bindings)),
	}
	for _, g := range []*gate.Gate{a.generator, a.parallelBMS} {
		st.Gates = append(st.Gates, GateStatus{Name: g.Name(), Active: g.IsActive(), Reasons: g.Reasons()})
	}
	if a.dispatcher != nil {
		st.Tracked = a.dispatcher.Tracked()
	}
	for _, b := range a.bindings {
		bs := BindingStatus{Name: b.Name(), Kind: b.Kind().String(), Policy: b.Policy().String()}
		if d, ok := b.Decision(); ok {
			bs.Decided = true
			bs.Decision = &d
		}
		st.Bindings = append(st.Bindings, bs)
	}
	return st
}
