package journal

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-platform/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-platform/internal/supervise"
	"github.com/nerrad567/gray-logic-platform/migrations"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []*Entry{
		{Service: "dbus-pump", Command: "up", Source: "pump", CreatedAt: base},
		{Service: "hostapd", Command: "down", Source: "access-point", Error: "service is not supervised", CreatedAt: base.Add(time.Second)},
		{Service: "dbus-pump", Command: "down", Source: "pump", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if len(e.ID) != len("cmd-")+8 {
			t.Errorf("generated ID = %q, want cmd- plus 8 characters", e.ID)
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Entries) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3", all.Total, len(all.Entries))
	}
	if all.Entries[0].Command != "down" || all.Entries[0].Service != "dbus-pump" {
		t.Errorf("first entry = %+v, want most recent first", all.Entries[0])
	}
	if all.Entries[1].Error != "service is not supervised" {
		t.Errorf("error text = %q, want it round-tripped", all.Entries[1].Error)
	}
	if !all.Entries[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", all.Entries[2].CreatedAt, base)
	}
	if all.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", all.Limit, defaultLimit)
	}

	pump, err := repo.List(ctx, Filter{Service: "dbus-pump", Command: "up"})
	if err != nil {
		t.Fatalf("List(filter) error = %v", err)
	}
	if pump.Total != 1 || pump.Entries[0].Source != "pump" {
		t.Errorf("List(filter) = %+v, want the single pump up entry", pump)
	}
}

func TestSQLiteRepository_ListPaging(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, &Entry{Service: "socketcand", Command: "restart", Source: "socketcand"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantLen   int
		wantLimit int
	}{
		{"limit 2", Filter{Limit: 2}, 2, 2},
		{"offset past end", Filter{Offset: 10}, 0, defaultLimit},
		{"limit clamped", Filter{Limit: 1000}, 5, maxLimit},
		{"negative offset", Filter{Offset: -3}, 5, defaultLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(res.Entries) != tt.wantLen || res.Limit != tt.wantLimit || res.Total != 5 {
				t.Errorf("List() len=%d limit=%d total=%d, want %d %d 5",
					len(res.Entries), res.Limit, res.Total, tt.wantLen, tt.wantLimit)
			}
		})
	}
}

func TestSQLiteRepository_GateTransitions(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	transitions := []*GateTransition{
		{Gate: "generator-starter", Active: true, Reasons: []string{"Relay"}, CreatedAt: base},
		{Gate: "parallel-bms", Active: true, Reasons: []string{"com.victronenergy.battery.ttyO2"}, CreatedAt: base.Add(time.Second)},
		{Gate: "generator-starter", Active: false, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, g := range transitions {
		if err := repo.CreateGateTransition(ctx, g); err != nil {
			t.Fatalf("CreateGateTransition() error = %v", err)
		}
	}

	gen, err := repo.ListGateTransitions(ctx, "generator-starter", 0)
	if err != nil {
		t.Fatalf("ListGateTransitions() error = %v", err)
	}
	if len(gen) != 2 {
		t.Fatalf("got %d transitions, want 2", len(gen))
	}
	if gen[0].Active || !gen[1].Active {
		t.Errorf("transitions = %+v, want inactive then active (newest first)", gen)
	}
	if !reflect.DeepEqual(gen[1].Reasons, []string{"Relay"}) {
		t.Errorf("Reasons = %v, want [Relay]", gen[1].Reasons)
	}

	all, err := repo.ListGateTransitions(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListGateTransitions(all) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d transitions, want limit of 2", len(all))
	}
}

func TestSQLiteRepository_Prune(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{old, old.Add(time.Minute), recent} {
		if err := repo.Create(ctx, &Entry{Service: "dbus-pump", Command: "up", Source: "pump", CreatedAt: at}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := repo.CreateGateTransition(ctx, &GateTransition{Gate: "parallel-bms", Active: true, CreatedAt: old}); err != nil {
		t.Fatalf("CreateGateTransition() error = %v", err)
	}

	n, err := repo.Prune(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Prune() removed %d rows, want 3", n)
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || !res.Entries[0].CreatedAt.Equal(recent) {
		t.Errorf("remaining = %+v, want only the recent entry", res.Entries)
	}
	gates, err := repo.ListGateTransitions(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListGateTransitions() error = %v", err)
	}
	if len(gates) != 0 {
		t.Errorf("gate transitions left = %d, want 0", len(gates))
	}
}

// ─── Mock Dependencies ─────────────────────────────────────────────

type mockRepository struct {
	mu      sync.Mutex
	entries []Entry
	gates   []GateTransition
	block   chan struct{}
	err     error
}

func (m *mockRepository) Create(_ context.Context, e *Entry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return m.err
}

func (m *mockRepository) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func (m *mockRepository) CreateGateTransition(_ context.Context, g *GateTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates = append(m.gates, *g)
	return m.err
}

func (m *mockRepository) ListGateTransitions(context.Context, string, int) ([]GateTransition, error) {
	return nil, nil
}

// ─── Writer Tests ──────────────────────────────────────────────────

func TestWriter_RecordsCommandsWithSource(t *testing.T) {
	repo := &mockRepository{}
	w := NewWriter(repo, 8, nil)
	w.SetSource("dbus-pump", "pump")

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Command(supervise.Record{Service: "dbus-pump", Command: supervise.CommandUp, At: at})
	w.Command(supervise.Record{Service: "mk2-dbus.ttyS3", Command: supervise.CommandRestart, Err: errors.New("boom"), At: at})
	w.Gate("parallel-bms", true, []string{"battery"})
	w.Close()

	if len(repo.entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(repo.entries))
	}
	if repo.entries[0].Source != "pump" || repo.entries[0].Command != "up" || !repo.entries[0].CreatedAt.Equal(at) {
		t.Errorf("entries[0] = %+v", repo.entries[0])
	}
	if repo.entries[1].Source != defaultSource || repo.entries[1].Error != "boom" {
		t.Errorf("entries[1] = %+v, want default source and error", repo.entries[1])
	}
	if len(repo.gates) != 1 || repo.gates[0].Gate != "parallel-bms" || !repo.gates[0].Active {
		t.Errorf("gates = %+v", repo.gates)
	}
}

func TestWriter_DropsWhenFull(t *testing.T) {
	repo := &mockRepository{block: make(chan struct{})}
	w := NewWriter(repo, 1, nil)

	// The first record is taken by the worker and blocks; the second fills
	// the queue; everything after is dropped.
	for i := 0; i < 10; i++ {
		w.Command(supervise.Record{Service: "hostapd", Command: supervise.CommandDown})
		time.Sleep(time.Millisecond)
	}
	if w.Dropped() == 0 {
		t.Error("Dropped() = 0, want records dropped while the queue was full")
	}

	close(repo.block)
	w.Close()

	if got := len(repo.entries) + w.Dropped(); got != 10 {
		t.Errorf("written + dropped = %d, want 10", got)
	}
}

func TestWriter_CloseIsIdempotent(t *testing.T) {
	w := NewWriter(&mockRepository{}, 0, nil)
	w.Close()
	w.Close()

	// Records after close are ignored.
	w.Gate("generator-starter", false, nil)
}

func TestWriter_RepositoryErrorIsLogged(t *testing.T) {
	repo := &mockRepository{err: errors.New("disk full")}
	w := NewWriter(repo, 4, nil)
	w.Command(supervise.Record{Service: "socketcand", Command: supervise.CommandUp})
	w.Close()

	if len(repo.entries) != 1 {
		t.Errorf("got %d create calls, want 1", len(repo.entries))
	}
}
