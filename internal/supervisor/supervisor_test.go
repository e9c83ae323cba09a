package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/arclet/subprocess/internal/subprocess"
)

func drainEvents(t *testing.T, s *Supervisor) []Event {
	t.Helper()
	var got []Event
	for ev := range s.Events() {
		got = append(got, ev)
	}
	return got
}

func TestSupervisorStopsAfterCleanExit(t *testing.T) {
	req := subprocess.SpawnRequest{Path: "/bin/true"}
	s := New(req, RestartPolicy{MaxRetries: 3, Backoff: Backoff{Min: time.Millisecond, Max: 10 * time.Millisecond}})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	events := drainEvents(t, s)
	<-done

	if len(events) == 0 {
		t.Fatalf("expected at least a starting and exited event")
	}
	last := events[len(events)-1]
	if last.Type != EventExited || !last.Status.Success() {
		t.Fatalf("expected a successful exit to end the loop, got %+v", last)
	}
}

func TestSupervisorRestartsOnCrash(t *testing.T) {
	req := subprocess.SpawnRequest{Path: "/bin/sh", Argv: []string{"/bin/sh", "-c", "exit 1"}}
	s := New(req, RestartPolicy{MaxRetries: 2, Backoff: Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond}})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	events := drainEvents(t, s)
	<-done

	restarts := 0
	for _, ev := range events {
		if ev.Type == EventRestarting {
			restarts++
		}
	}
	if restarts != 2 {
		t.Fatalf("expected 2 restarts before the policy gave up, got %d (%+v)", restarts, events)
	}
	if events[len(events)-1].Type != EventFailed {
		t.Fatalf("expected the loop to end in EventFailed once retries were exhausted, got %+v", events[len(events)-1])
	}
}

func TestSupervisorStopSignalsProcessGroup(t *testing.T) {
	req := subprocess.SpawnRequest{Path: "/bin/sh", Argv: []string{"/bin/sh", "-c", "sleep 30"}}
	s := New(req, RestartPolicy{MaxRetries: -1, Backoff: Backoff{Min: time.Millisecond, Max: 5 * time.Millisecond}})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		if _, err := s.PID(); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("service never reported a pid")
		case <-time.After(time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop returned an error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("supervisor loop did not return after Stop")
	}
}
