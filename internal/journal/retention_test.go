package journal

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

type mockPruner struct {
	cutoffs []time.Time
	rows    int64
	err     error
}

func (m *mockPruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.rows, m.err
}

type mockCompactor struct{ calls int }

func (m *mockCompactor) Checkpoint(context.Context) error {
	m.calls++
	return nil
}

// ─── Tests ─────────────────────────────────────────────────────────

func TestRetention_PruneOnce(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name            string
		rows            int64
		err             error
		wantCheckpoints int
	}{
		{"rows removed", 12, nil, 1},
		{"nothing to remove", 0, nil, 0},
		{"prune fails", 0, errors.New("disk I/O error"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := &mockPruner{rows: tt.rows, err: tt.err}
			compactor := &mockCompactor{}
			r := &Retention{
				Pruner:    pruner,
				Compactor: compactor,
				MaxAge:    30 * 24 * time.Hour,
				now:       func() time.Time { return now },
			}
			r.PruneOnce(context.Background())

			if len(pruner.cutoffs) != 1 || !pruner.cutoffs[0].Equal(now.Add(-30*24*time.Hour)) {
				t.Errorf("cutoffs = %v", pruner.cutoffs)
			}
			if compactor.calls != tt.wantCheckpoints {
				t.Errorf("checkpoints = %d, want %d", compactor.calls, tt.wantCheckpoints)
			}
		})
	}
}

func TestRetention_DisabledReturnsImmediately(t *testing.T) {
	pruner := &mockPruner{}
	r := &Retention{Pruner: pruner}

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() with zero MaxAge did not return")
	}
	if len(pruner.cutoffs) != 0 {
		t.Errorf("pruned %d times, want 0", len(pruner.cutoffs))
	}
}

func TestRetention_RunStopsOnCancel(t *testing.T) {
	pruner := &mockPruner{}
	r := &Retention{Pruner: pruner, MaxAge: time.Hour, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}
