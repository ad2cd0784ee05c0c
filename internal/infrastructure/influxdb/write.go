package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the platform daemon.
const (
	MeasurementCommand = "supervisor_command"
	MeasurementGate    = "gate_state"
	MeasurementBinding = "binding_decision"
)

func commandPoint(service, command, source string, failed bool, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCommand,
		map[string]string{
			"service": service,
			"command": command,
			"source":  source,
		},
		map[string]interface{}{
			"count":  1,
			"failed": failed,
		},
		at,
	)
}

func gatePoint(gate string, active bool, reasons int, at time.Time) *write.Point {
	state := 0
	if active {
		state = 1
	}
	return write.NewPoint(
		MeasurementGate,
		map[string]string{"gate": gate},
		map[string]interface{}{
			"active":  state,
			"reasons": reasons,
		},
		at,
	)
}

func bindingPoint(binding string, enabled bool, mode int64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementBinding,
		map[string]string{"binding": binding},
		map[string]interface{}{
			"enabled": enabled,
			"mode":    mode,
		},
		at,
	)
}

// WriteCommand records one supervisor command.
func (c *Client) WriteCommand(service, command, source string, failed bool, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(commandPoint(service, command, source, failed, at))
}

// WriteGateState records a gate edge together with the number of reasons
// holding it open.
func (c *Client) WriteGateState(gate string, active bool, reasons int) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(gatePoint(gate, active, reasons, time.Now()))
}

// WriteBindingDecision records a new binding decision.
func (c *Client) WriteBindingDecision(binding string, enabled bool, mode int64) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(bindingPoint(binding, enabled, mode, time.Now()))
}
