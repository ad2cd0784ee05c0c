package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func tagMap(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldMap(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestCommandPoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := commandPoint("dbus-pump", "restart", "pump", true, at)

	if p.Name() != MeasurementCommand {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementCommand)
	}
	tags := tagMap(p)
	if tags["service"] != "dbus-pump" || tags["command"] != "restart" || tags["source"] != "pump" {
		t.Errorf("tags = %v", tags)
	}
	fields := fieldMap(p)
	if fields["failed"] != true {
		t.Errorf("failed field = %v, want true", fields["failed"])
	}
	if fields["count"] != int64(1) {
		t.Errorf("count field = %v (%T), want int64 1", fields["count"], fields["count"])
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}
}

func TestGatePoint(t *testing.T) {
	tests := []struct {
		active bool
		want   int64
	}{
		{true, 1},
		{false, 0},
	}
	for _, tt := range tests {
		p := gatePoint("parallel-bms", tt.active, 3, time.Now())
		fields := fieldMap(p)
		if fields["active"] != tt.want {
			t.Errorf("active=%v: field = %v, want %d", tt.active, fields["active"], tt.want)
		}
		if fields["reasons"] != int64(3) {
			t.Errorf("reasons field = %v, want 3", fields["reasons"])
		}
		if tagMap(p)["gate"] != "parallel-bms" {
			t.Errorf("gate tag = %q", tagMap(p)["gate"])
		}
	}
}

func TestBindingPoint(t *testing.T) {
	p := bindingPoint("node-red-venus", true, 2, time.Now())
	if p.Name() != MeasurementBinding {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementBinding)
	}
	fields := fieldMap(p)
	if fields["enabled"] != true || fields["mode"] != int64(2) {
		t.Errorf("fields = %v", fields)
	}
}

func TestWritesWhenDisconnectedAreNoops(t *testing.T) {
	c := &Client{}

	// No writer: these must return before touching it.
	c.WriteCommand("a", "up", "b", false, time.Now())
	c.WriteGateState("g", true, 1)
	c.WriteBindingDecision("b", false, 0)
	c.Flush()
}

func TestPositive(t *testing.T) {
	tests := []struct {
		v    int
		want uint
	}{
		{0, 7},
		{-3, 7},
		{250, 250},
	}
	for _, tt := range tests {
		if got := positive(tt.v, 7); got != tt.want {
			t.Errorf("positive(%d) = %d, want %d", tt.v, got, tt.want)
		}
	}
}
