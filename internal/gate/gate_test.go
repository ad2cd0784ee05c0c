package gate

import (
	"errors"
	"testing"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

type mockCommander struct {
	calls []string
	err   error
}

func (m *mockCommander) Start() error {
	m.calls = append(m.calls, "start")
	return m.err
}

func (m *mockCommander) Stop() error {
	m.calls = append(m.calls, "stop")
	return m.err
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestGate_EdgesOnlyOnEmptyTransitions(t *testing.T) {
	g := New("generator-starter")

	var edges []bool
	g.OnChange(func(active bool) { edges = append(edges, active) })

	g.Add("genset-A")
	g.Add("Relay")
	g.Remove("genset-A")
	g.Remove("Relay")

	if len(edges) != 2 || edges[0] != true || edges[1] != false {
		t.Errorf("edges = %v, want [true false]", edges)
	}
}

func TestGate_IdempotentKeys(t *testing.T) {
	g := New("parallel-bms")

	var edges int
	g.OnChange(func(bool) { edges++ })

	if !g.Add("bat-1") {
		t.Error("first Add() = false, want true")
	}
	if g.Add("bat-1") {
		t.Error("duplicate Add() = true, want false")
	}
	if g.Remove("bat-2") {
		t.Error("Remove() of absent key = true, want false")
	}
	if !g.Remove("bat-1") {
		t.Error("Remove() of present key = false, want true")
	}
	if g.Remove("bat-1") {
		t.Error("second Remove() = true, want false")
	}

	if edges != 2 {
		t.Errorf("edges = %d, want 2", edges)
	}
	if g.IsActive() {
		t.Error("IsActive() = true with no reasons")
	}
}

// Edge count equals the number of empty↔non-empty transitions for any
// add/remove sequence.
func TestGate_EdgeCountMatchesTransitions(t *testing.T) {
	ops := []struct {
		add bool
		key string
	}{
		{true, "a"}, {true, "b"}, {false, "a"}, {true, "a"}, {false, "b"},
		{false, "a"}, {false, "a"}, {true, "c"}, {true, "c"}, {false, "c"},
		{true, "a"}, {false, "b"},
	}

	g := New("test")
	edges := 0
	g.OnChange(func(bool) { edges++ })

	set := map[string]bool{}
	wantEdges := 0
	for _, op := range ops {
		before := len(set) > 0
		if op.add {
			set[op.key] = true
		} else {
			delete(set, op.key)
		}
		if (len(set) > 0) != before {
			wantEdges++
		}
		g.Set(op.key, op.add)

		if g.IsActive() != (len(set) > 0) {
			t.Fatalf("IsActive() = %v after %+v, want %v", g.IsActive(), op, len(set) > 0)
		}
	}

	if edges != wantEdges {
		t.Errorf("edges = %d, want %d", edges, wantEdges)
	}
}

func TestGate_DriveAppliesInitialStateThenEdges(t *testing.T) {
	g := New("generator-starter")
	cmd := &mockCommander{}

	g.Drive(cmd)
	g.Add("genset-A")
	g.Add("genset-B")
	g.Remove("genset-A")
	g.Remove("genset-B")

	want := []string{"stop", "start", "stop"}
	if len(cmd.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", cmd.calls, want)
	}
	for i := range want {
		if cmd.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, cmd.calls[i], want[i])
		}
	}
}

func TestGate_DriveErrorsAreNotFatal(t *testing.T) {
	g := New("parallel-bms")
	cmd := &mockCommander{err: errors.New("supervise not running")}
	g.Drive(cmd)

	g.Add("bat-1")
	if !g.IsActive() {
		t.Error("gate should stay active after a failed start")
	}
}

func TestGate_Reasons(t *testing.T) {
	g := New("x")
	g.Add("b")
	g.Add("a")

	got := g.Reasons()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Reasons() = %v, want [a b]", got)
	}
	if !g.Has("a") || g.Has("c") {
		t.Error("Has() mismatch")
	}
	if g.Name() != "x" {
		t.Errorf("Name() = %q", g.Name())
	}
}
