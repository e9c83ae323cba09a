package subprocess

import (
	"context"
	"io"
	"testing"
	"time"
)

func spawnSleeper(t *testing.T, stdout, stderr StdioDisposition) *Execution {
	t.Helper()
	e, err := NewSpawner().Spawn(SpawnRequest{
		Path:   "/bin/sh",
		Argv:   []string{"sh", "-c", "echo out; echo err >&2"},
		Stdin:  NoInput(),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	t.Cleanup(func() {
		_ = e.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = e.Wait(ctx)
	})
	return e
}

func TestStdoutSecondConsumePanics(t *testing.T) {
	e := spawnSleeper(t, Piped(), Piped())

	_ = e.Stdout() // first consumption: fine

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double consumption of stdout")
		}
	}()
	_ = e.Stdout()
}

func TestStderrGatedOnOwnBit(t *testing.T) {
	// Consuming stdout must never flip stderr's bit, and vice versa: this
	// is the exact bug the design notes flag about the source
	// implementation.
	e := spawnSleeper(t, Piped(), Piped())

	_ = e.Stdout()
	// Must not panic: stderr has its own, still-unset bit.
	r := e.Stderr()
	buf, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read stderr: %v", err)
	}
	if string(buf) != "err\n" {
		t.Fatalf("stderr = %q, want %q", buf, "err\n")
	}
}

func TestCaptureBothConcurrentDrain(t *testing.T) {
	e := spawnSleeper(t, Piped(), Piped())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stdout, stderr, err := e.CaptureBoth(ctx, 0)
	if err != nil {
		t.Fatalf("CaptureBoth: %v", err)
	}
	if string(stdout) != "out\n" {
		t.Fatalf("stdout = %q", stdout)
	}
	if string(stderr) != "err\n" {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestCaptureBothAfterStdoutConsumedPanics(t *testing.T) {
	e := spawnSleeper(t, Piped(), Piped())
	_ = e.Stdout()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic: CaptureBoth after stdout already streamed")
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, _ = e.CaptureBoth(ctx, 0)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := spawnSleeper(t, Piped(), Piped())
	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
