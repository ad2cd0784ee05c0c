package supervise

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/config"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

type mockBackend struct {
	services map[string]bool
	sent     []string
	failWith error
	closed   bool
}

func newMockBackend(names ...string) *mockBackend {
	m := &mockBackend{services: make(map[string]bool)}
	for _, n := range names {
		m.services[n] = true
	}
	return m
}

func (m *mockBackend) Exists(name string) bool { return m.services[name] }

func (m *mockBackend) List() ([]string, error) {
	var out []string
	for _, n := range []string{"dbus-pump", "mk2-dbus.ttyS3", "mk2-dbus.ttyUSB0", "socketcand"} {
		if m.services[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockBackend) Command(name string, cmd Command) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, name+":"+string(cmd))
	return nil
}

func (m *mockBackend) Status(_ context.Context, name string) (State, error) {
	if !m.services[name] {
		return State{}, ErrNotSupervised
	}
	return State{Name: name, Up: true, Want: "up"}, nil
}

func (m *mockBackend) Close() error {
	m.closed = true
	return nil
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestService_Idempotent(t *testing.T) {
	b := newMockBackend("dbus-pump")
	r := NewRegistry(b)
	svc := r.Service("dbus-pump")

	steps := []struct {
		name string
		op   func() error
	}{
		{"start", svc.Start},
		{"start again", svc.Start},
		{"stop", svc.Stop},
		{"stop again", svc.Stop},
		{"restart", svc.Restart},
		{"restart again", svc.Restart},
		{"start after restart", svc.Start},
	}
	for _, s := range steps {
		if err := s.op(); err != nil {
			t.Fatalf("%s: error = %v", s.name, err)
		}
	}

	want := []string{"dbus-pump:up", "dbus-pump:down", "dbus-pump:restart", "dbus-pump:restart"}
	if len(b.sent) != len(want) {
		t.Fatalf("sent = %v, want %v", b.sent, want)
	}
	for i := range want {
		if b.sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, b.sent[i], want[i])
		}
	}
	if svc.Desired() != DesiredUp {
		t.Errorf("Desired() = %q, want %q", svc.Desired(), DesiredUp)
	}
}

func TestService_FirstStopIsIssued(t *testing.T) {
	b := newMockBackend("hostapd")
	svc := NewRegistry(b).Service("hostapd")

	if svc.Desired() != DesiredUnknown {
		t.Fatalf("Desired() = %q, want unknown", svc.Desired())
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(b.sent) != 1 || b.sent[0] != "hostapd:down" {
		t.Errorf("sent = %v, want [hostapd:down]", b.sent)
	}
}

func TestService_FailureKeepsDesired(t *testing.T) {
	b := newMockBackend("socketcand")
	b.failWith = ErrNotSupervised
	svc := NewRegistry(b).Service("socketcand")

	if err := svc.Start(); !errors.Is(err, ErrNotSupervised) {
		t.Fatalf("Start() error = %v, want ErrNotSupervised", err)
	}
	if svc.Desired() != DesiredUnknown {
		t.Errorf("Desired() = %q after failure, want unknown", svc.Desired())
	}

	b.failWith = nil
	if err := svc.Start(); err != nil {
		t.Fatalf("Start() retry error = %v", err)
	}
	if len(b.sent) != 1 {
		t.Errorf("sent = %v, want one command after recovery", b.sent)
	}
}

func TestService_TermKeepsDesired(t *testing.T) {
	tests := []struct {
		name    string
		before  func(*Service) error
		desired Desired
	}{
		{"never commanded", func(*Service) error { return nil }, DesiredUnknown},
		{"down", (*Service).Stop, DesiredDown},
		{"up", (*Service).Start, DesiredUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMockBackend("mk2-dbus.ttyS3")
			svc := NewRegistry(b).Service("mk2-dbus.ttyS3")
			if err := tt.before(svc); err != nil {
				t.Fatalf("setup error = %v", err)
			}
			if err := svc.Term(); err != nil {
				t.Fatalf("Term() error = %v", err)
			}
			if last := b.sent[len(b.sent)-1]; last != "mk2-dbus.ttyS3:term" {
				t.Errorf("last command = %q, want term", last)
			}
			if got := svc.Desired(); got != tt.desired {
				t.Errorf("Desired() = %q, want %q", got, tt.desired)
			}
			if err := svc.Term(); err != nil || len(b.sent) < 2 {
				t.Errorf("second Term() not issued: %v, sent %v", err, b.sent)
			}
		})
	}
}

// TestRegistry_SnapshotWhileCommanding runs the loop side (creating and
// commanding services) against API-side snapshots; run with -race.
func TestRegistry_SnapshotWhileCommanding(t *testing.T) {
	r := NewRegistry(newMockBackend("dbus-pump", "socketcand"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			svc := r.Service(fmt.Sprintf("svc-%d", i))
			svc.Start() //nolint:errcheck // unknown services still record the command
			svc.Stop()  //nolint:errcheck // unknown services still record the command
		}
	}()

	for {
		select {
		case <-done:
			if got := len(r.Snapshot(context.Background())); got != 200 {
				t.Errorf("Snapshot() has %d services, want 200", got)
			}
			return
		default:
			for _, st := range r.Snapshot(context.Background()) {
				if st.Name == "" {
					t.Fatal("snapshot entry without a name")
				}
			}
		}
	}
}

func TestRegistry_OnCommand(t *testing.T) {
	b := newMockBackend("dbus-pump")
	r := NewRegistry(b)

	var records []Record
	r.OnCommand(func(rec Record) { records = append(records, rec) })

	svc := r.Service("dbus-pump")
	_ = svc.Start()
	_ = svc.Start()
	b.failWith = errors.New("boom")
	_ = svc.Restart()

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Command != CommandUp || records[0].Err != nil {
		t.Errorf("records[0] = %+v, want successful up", records[0])
	}
	if records[1].Command != CommandRestart || records[1].Err == nil {
		t.Errorf("records[1] = %+v, want failed restart", records[1])
	}
	if records[0].At.IsZero() {
		t.Error("record timestamp not set")
	}
}

func TestRegistry_ServiceIsShared(t *testing.T) {
	r := NewRegistry(newMockBackend())
	if r.Service("a") != r.Service("a") {
		t.Error("Service() returned different instances for the same name")
	}
}

func TestRegistry_Glob(t *testing.T) {
	r := NewRegistry(newMockBackend("dbus-pump", "mk2-dbus.ttyS3", "mk2-dbus.ttyUSB0"))

	got, err := r.Glob("mk2-dbus.*")
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(got) != 2 || got[0].Name() != "mk2-dbus.ttyS3" || got[1].Name() != "mk2-dbus.ttyUSB0" {
		t.Errorf("Glob() = %v, want the two mk2-dbus services", got)
	}

	if _, err := r.Glob("["); err == nil {
		t.Error("Glob([) error = nil, want pattern error")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(newMockBackend("dbus-pump"))
	_ = r.Service("dbus-pump").Start()
	r.Service("hostapd")

	snap := r.Snapshot(context.Background())
	if len(snap) != 2 {
		t.Fatalf("Snapshot() has %d entries, want 2", len(snap))
	}
	if snap[0].Name != "dbus-pump" || snap[0].State == nil || snap[0].Desired != DesiredUp {
		t.Errorf("snap[0] = %+v, want dbus-pump up with state", snap[0])
	}
	if snap[1].Name != "hostapd" || snap[1].Error == "" {
		t.Errorf("snap[1] = %+v, want hostapd with error", snap[1])
	}
}

func TestRegistry_Close(t *testing.T) {
	b := newMockBackend()
	if err := NewRegistry(b).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !b.closed {
		t.Error("backend not closed")
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SupervisorConfig
		wantErr error
	}{
		{"daemontools", config.SupervisorConfig{Backend: config.BackendDaemontools, ServiceDir: "/service"}, nil},
		{"exec", config.SupervisorConfig{Backend: config.BackendExec, Services: map[string]config.ExecServiceConfig{
			"dbus-pump": {Binary: "/bin/true"},
		}}, nil},
		{"unknown", config.SupervisorConfig{Backend: "systemd"}, ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(tt.cfg, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewBackend() error = %v, want %v", err, tt.wantErr)
			}
			if b != nil {
				b.Close()
			}
		})
	}
}
