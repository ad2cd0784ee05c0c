package journal

import (
	"context"
	"time"
)

// Pruner deletes journal rows older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compactor returns freed pages to the filesystem after a prune.
type Compactor interface {
	Checkpoint(ctx context.Context) error
}

// Retention keeps the journal within a maximum age.
type Retention struct {
	Pruner    Pruner
	Compactor Compactor // optional
	MaxAge    time.Duration
	Interval  time.Duration
	Logger    Logger

	now func() time.Time
}

// Run prunes once immediately and then every Interval until ctx ends.
// A zero MaxAge keeps everything and returns at once.
func (r *Retention) Run(ctx context.Context) {
	if r.MaxAge <= 0 {
		return
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	r.PruneOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.PruneOnce(ctx)
		}
	}
}

// PruneOnce deletes everything older than MaxAge.
func (r *Retention) PruneOnce(ctx context.Context) {
	log := r.Logger
	if log == nil {
		log = noopLogger{}
	}
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	cutoff := now().Add(-r.MaxAge)
	n, err := r.Pruner.Prune(ctx, cutoff)
	if err != nil {
		log.Error("pruning journal", "error", err)
		return
	}
	if n == 0 {
		return
	}
	log.Info("pruned journal", "rows", n, "before", cutoff.UTC().Format(time.RFC3339))

	if r.Compactor != nil {
		if err := r.Compactor.Checkpoint(ctx); err != nil {
			log.Warn("checkpointing journal", "error", err)
		}
	}
}
