package subprocess

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestReaperOrderingAgnostic exercises both rendezvous orderings: a waiter
// registered before the child exits, and one registered after the status
// is already sitting in the map.
func TestReaperOrderingAgnostic(t *testing.T) {
	t.Run("waiter before exit", func(t *testing.T) {
		pid, err := RunDetached(SpawnRequest{Path: "/bin/sleep", Argv: []string{"sleep", "0.05"}})
		if err != nil {
			t.Fatalf("RunDetached: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		status, err := globalReaper.waitFor(ctx, pid)
		if err != nil {
			t.Fatalf("waitFor: %v", err)
		}
		if !status.Success() {
			t.Fatalf("status = %v, want success", status)
		}
	})

	t.Run("status ready before waiter", func(t *testing.T) {
		pid, err := RunDetached(SpawnRequest{Path: "/bin/true", Argv: []string{"true"}})
		if err != nil {
			t.Fatalf("RunDetached: %v", err)
		}
		// Give the SIGCHLD handler a chance to stash ReadyStatus before we
		// ever call waitFor.
		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		status, err := globalReaper.waitFor(ctx, pid)
		if err != nil {
			t.Fatalf("waitFor: %v", err)
		}
		if !status.Success() {
			t.Fatalf("status = %v, want success", status)
		}
	})
}

func TestReaperConcurrentSpawnsAllReaped(t *testing.T) {
	const n = 50
	before := globalReaper.pendingCount()

	var wg sync.WaitGroup
	pids := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid, err := RunDetached(SpawnRequest{Path: "/bin/true", Argv: []string{"true"}})
			if err != nil {
				t.Errorf("RunDetached: %v", err)
				return
			}
			pids[i] = pid
		}(i)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pid := range pids {
		if pid == 0 {
			continue
		}
		if _, err := globalReaper.waitFor(ctx, pid); err != nil {
			t.Errorf("waitFor(%d): %v", pid, err)
		}
	}

	if got := globalReaper.pendingCount(); got != before {
		t.Fatalf("pendingCount = %d, want %d (back to baseline)", got, before)
	}
}

func TestReaperWaitForRespectsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	// pid 1<<30 is above any real pid limit, so no child with it will ever
	// be reaped by us.
	_, err := globalReaper.waitFor(ctx, 1<<30)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}
