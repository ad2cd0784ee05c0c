package api

import (
	"github.com/nerrad567/gray-logic-platform/internal/binding"
	"github.com/nerrad567/gray-logic-platform/internal/supervise"
)

// Event channels a client can subscribe to.
const (
	ChannelServiceCommand = "service.command"
	ChannelGateChanged    = "gate.changed"
	ChannelBindingApplied = "binding.applied"
)

// CommandEvent is broadcast on ChannelServiceCommand.
type CommandEvent struct {
	Service string `json:"service"`
	Command string `json:"command"`
	Error   string `json:"error,omitempty"`
}

// GateEvent is broadcast on ChannelGateChanged.
type GateEvent struct {
	Gate    string   `json:"gate"`
	Active  bool     `json:"active"`
	Reasons []string `json:"reasons"`
}

// BindingEvent is broadcast on ChannelBindingApplied.
type BindingEvent struct {
	Binding  string           `json:"binding"`
	Previous binding.Decision `json:"previous"`
	Decision binding.Decision `json:"decision"`
	First    bool             `json:"first"`
	Command  string           `json:"command,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Command publishes a supervisor command. It matches supervise.Observer.
func (h *Hub) Command(rec supervise.Record) {
	h.Broadcast(ChannelServiceCommand, CommandEvent{
		Service: rec.Service,
		Command: string(rec.Command),
		Error:   errString(rec.Err),
	})
}

// Gate publishes a gate edge. Reasons is never null on the wire.
func (h *Hub) Gate(name string, active bool, reasons []string) {
	if reasons == nil {
		reasons = []string{}
	}
	h.Broadcast(ChannelGateChanged, GateEvent{Gate: name, Active: active, Reasons: reasons})
}

// BindingApplied publishes a changed binding decision.
func (h *Hub) BindingApplied(a binding.Applied) {
	h.Broadcast(ChannelBindingApplied, BindingEvent{
		Binding:  a.Binding,
		Previous: a.Change.Prev,
		Decision: a.Change.Next,
		First:    a.Change.First,
		Command:  string(a.Command),
		Error:    errString(a.Err),
	})
}
