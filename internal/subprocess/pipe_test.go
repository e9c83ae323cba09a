package subprocess

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPipePairCloseAllIsIdempotent(t *testing.T) {
	p, err := makePipe()
	if err != nil {
		t.Fatalf("makePipe: %v", err)
	}
	p.closeAll()
	p.closeAll() // must not panic or error on the second call
}

func TestPipePairTakeThenCloseAllLeavesTakenEndAlone(t *testing.T) {
	p, err := makePipe()
	if err != nil {
		t.Fatalf("makePipe: %v", err)
	}
	r := p.takeRead()
	if r == nil {
		t.Fatal("takeRead returned nil")
	}
	defer r.Close()

	// closeAll must only close the write end now; the caller owns r.
	p.closeAll()

	if err := r.Close(); err != nil {
		t.Fatalf("r should still be open and closable: %v", err)
	}
}

func TestDedupeEnvLastOccurrenceWins(t *testing.T) {
	got := dedupeEnv([]string{"A=1", "B=2", "A=3"})
	want := map[string]string{"A": "3", "B": "2"}
	if len(got) != len(want) {
		t.Fatalf("dedupeEnv = %v, want %d entries", got, len(want))
	}
	for _, kv := range got {
		key, value := splitEnv(kv)
		if want[key] != value {
			t.Fatalf("dedupeEnv = %v, key %s should resolve to %s", got, key, want[key])
		}
	}
}

func TestNoChdirWhenDirEqualsCWD(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Skipf("cannot determine cwd: %v", err)
	}
	e, spawnErr := NewSpawner().Spawn(SpawnRequest{
		Path:   "/bin/true",
		Argv:   []string{"true"},
		Dir:    cwd,
		Stdin:  NoInput(),
		Stdout: Discarded(),
		Stderr: Discarded(),
	})
	if spawnErr != nil {
		t.Fatalf("Spawn: %v", spawnErr)
	}
	defer e.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = e.Wait(ctx)
}
