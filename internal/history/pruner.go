package history

import (
	"context"
	"time"
)

// DefaultPruneInterval is how often Prune runs when no interval is given.
const DefaultPruneInterval = time.Hour

// RunPruner deletes entries older than retention once at start and then on
// every interval until ctx is cancelled. A non-positive retention disables
// pruning.
func RunPruner(ctx context.Context, repo Repository, retention, interval time.Duration, logger Logger) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}

	prune := func() {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("pruning event history failed", "error", err)
			}
			return
		}
		if n > 0 {
			logger.Info("event history pruned", "deleted", n, "retention", retention)
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
