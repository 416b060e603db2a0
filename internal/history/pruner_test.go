package history

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type pruneCounter struct {
	memoryRepository
	calls     atomic.Int32
	retention atomic.Int64
}

func (p *pruneCounter) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	p.calls.Add(1)
	p.retention.Store(int64(olderThan))
	return 1, nil
}

func TestRunPruner(t *testing.T) {
	repo := &pruneCounter{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunPruner(ctx, repo, 24*time.Hour, 10*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("prune calls = %d, want >= 3", repo.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPruner did not return after cancel")
	}
	if got := time.Duration(repo.retention.Load()); got != 24*time.Hour {
		t.Errorf("retention = %v, want 24h", got)
	}
}

func TestRunPruner_DisabledRetention(t *testing.T) {
	repo := &pruneCounter{}
	RunPruner(context.Background(), repo, 0, time.Millisecond, nil)
	if repo.calls.Load() != 0 {
		t.Errorf("prune calls = %d, want 0", repo.calls.Load())
	}
}
