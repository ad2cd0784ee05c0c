package supervise

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-platform/internal/process"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

type fakeManager struct {
	mu      sync.Mutex
	name    string
	running bool
	log     *[]string
	logMu   *sync.Mutex
}

func (f *fakeManager) record(op string) {
	f.logMu.Lock()
	*f.log = append(*f.log, f.name+":"+op)
	f.logMu.Unlock()
}

func (f *fakeManager) Start(context.Context) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	f.record("start")
	return nil
}

func (f *fakeManager) Stop() error {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.record("stop")
	return nil
}

func (f *fakeManager) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeManager) Stats() process.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := process.Stats{Name: f.name, Status: process.StatusStopped}
	if f.running {
		st.Status = process.StatusRunning
		st.PID = 100
	}
	return st
}

func newFakeExec(names ...string) (*ExecBackend, *[]string, *sync.Mutex) {
	var log []string
	var mu sync.Mutex
	managers := make(map[string]processManager, len(names))
	for _, n := range names {
		managers[n] = &fakeManager{name: n, log: &log, logMu: &mu}
	}
	return newExecBackend(managers, nil), &log, &mu
}

func TestExecBackend_OrderedCommands(t *testing.T) {
	e, log, mu := newFakeExec("dbus-modbustcp")

	for _, cmd := range []Command{CommandUp, CommandUp, CommandRestart, CommandDown} {
		if err := e.Command("dbus-modbustcp", cmd); err != nil {
			t.Fatalf("Command(%s) error = %v", cmd, err)
		}
	}
	// Close drains the queue before stopping everything.
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"dbus-modbustcp:start",
		"dbus-modbustcp:stop",
		"dbus-modbustcp:start",
		"dbus-modbustcp:stop",
		"dbus-modbustcp:stop", // close
	}
	if len(*log) != len(want) {
		t.Fatalf("operations = %v, want %v", *log, want)
	}
	for i := range want {
		if (*log)[i] != want[i] {
			t.Errorf("operation[%d] = %q, want %q", i, (*log)[i], want[i])
		}
	}
}

func TestExecBackend_TermOnlyWhenRunning(t *testing.T) {
	e, log, mu := newFakeExec("mk2-dbus.ttyS3")

	for _, cmd := range []Command{CommandTerm, CommandUp, CommandTerm} {
		if err := e.Command("mk2-dbus.ttyS3", cmd); err != nil {
			t.Fatalf("Command(%s) error = %v", cmd, err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"mk2-dbus.ttyS3:start",
		"mk2-dbus.ttyS3:stop",
		"mk2-dbus.ttyS3:start",
		"mk2-dbus.ttyS3:stop", // close
	}
	if len(*log) != len(want) {
		t.Fatalf("operations = %v, want %v", *log, want)
	}
	for i := range want {
		if (*log)[i] != want[i] {
			t.Errorf("operation[%d] = %q, want %q", i, (*log)[i], want[i])
		}
	}
}

func TestExecBackend_UnknownService(t *testing.T) {
	e, _, _ := newFakeExec("socketcand")
	defer e.Close()

	if err := e.Command("hostapd", CommandUp); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Command() error = %v, want ErrUnknownService", err)
	}
	if _, err := e.Status(context.Background(), "hostapd"); !errors.Is(err, ErrUnknownService) {
		t.Errorf("Status() error = %v, want ErrUnknownService", err)
	}
	if e.Exists("hostapd") {
		t.Error("Exists(hostapd) = true, want false")
	}
}

func TestExecBackend_CommandAfterClose(t *testing.T) {
	e, _, _ := newFakeExec("socketcand")
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if err := e.Command("socketcand", CommandUp); !errors.Is(err, ErrClosed) {
		t.Errorf("Command() after close error = %v, want ErrClosed", err)
	}
}

func TestExecBackend_ListAndStatus(t *testing.T) {
	e, _, _ := newFakeExec("b", "a")
	defer e.Close()

	names, err := e.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("List() = %v, want [a b]", names)
	}

	st, err := e.Status(context.Background(), "a")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Up || st.Want != "down" {
		t.Errorf("Status() = %+v, want stopped", st)
	}
}

func TestExecBackend_RealProcess(t *testing.T) {
	e := NewExecBackend(map[string]process.Config{
		"sleeper": {Name: "sleeper", Binary: "/bin/sleep", Args: []string{"30"}},
	}, nil)

	if err := e.Command("sleeper", CommandUp); err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	st, err := e.Status(context.Background(), "sleeper")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Up {
		t.Errorf("Status() after Close = %+v, want not running", st)
	}
}
