package workers

import (
	"context"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
)

const DefaultPruneInterval = time.Minute

// Pruner drops records that can no longer be shown.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

type PruneWorker struct {
	pruner   Pruner
	interval time.Duration
}

type NewPruneWorkerOptions struct {
	Pruner Pruner
	// Interval defaults to DefaultPruneInterval.
	Interval time.Duration
}

// NewPruneWorker creates a new PruneWorker.
// The worker prunes the local store once on start and then periodically.
func NewPruneWorker(opts NewPruneWorkerOptions) *PruneWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &PruneWorker{
		pruner:   opts.Pruner,
		interval: interval,
	}
}

func (w *PruneWorker) Start(ctx context.Context) {
	w.prune(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.prune(ctx)
		}
	}
}

func (w *PruneWorker) prune(ctx context.Context) {
	pruned, err := w.pruner.Prune(ctx)
	if err != nil {
		log.Error("Failed to prune local records: %v", err)
		return
	}
	if pruned > 0 {
		log.Debug("Pruned %d local records", pruned)
	}
}
