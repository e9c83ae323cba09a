package subprocess

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// waiterKind tags which half of the Waiting/Ready tagged variant a map
// entry currently holds.
type waiterKind int

const (
	waiterWaiting waiterKind = iota
	waiterReady
)

type waiterEntry struct {
	kind   waiterKind
	ch     chan TerminationStatus // set when kind == waiterWaiting
	status TerminationStatus      // set when kind == waiterReady
}

// reaper is the process-singleton mechanism described in §4.3: a
// lock-protected pid -> WaiterState map fed by a dedicated SIGCHLD
// dispatch goroutine. There is exactly one of these per process; every
// Spawner call routes through it via ensureStarted.
type reaper struct {
	mu        sync.Mutex
	waiters   map[int]*waiterEntry
	installed atomic.Bool
	sigCh     chan os.Signal
}

var globalReaper = &reaper{waiters: make(map[int]*waiterEntry)}

// ensureStarted installs the SIGCHLD handler exactly once per process. It
// is safe, and expected, to call this before every spawn; a spawn must
// never fork before this has returned, or a child that dies in the window
// between fork and handler installation could be missed.
func (r *reaper) ensureStarted() {
	if !r.installed.CompareAndSwap(false, true) {
		return
	}
	r.sigCh = make(chan os.Signal, 1)
	signal.Notify(r.sigCh, syscall.SIGCHLD)
	go r.dispatchLoop()
}

// dispatchLoop runs on its own goroutine for the lifetime of the process.
// Each wakeup drains every terminated child currently reapable, because
// SIGCHLD delivery coalesces: two children dying in quick succession can
// produce a single notification.
func (r *reaper) dispatchLoop() {
	for range r.sigCh {
		r.reapAvailable()
	}
}

func (r *reaper) reapAvailable() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil {
			// ECHILD: no children left to wait for. EINTR: retry.
			if err == syscall.EINTR {
				continue
			}
			return
		}
		if pid <= 0 {
			// No terminated child is currently reapable.
			return
		}
		status, terminal := decodeStatus(ws)
		if !terminal {
			// Stopped/continued notifications are not terminal; keep
			// draining in case a real exit follows in the same batch.
			continue
		}
		r.deliver(pid, status)
	}
}

// decodeStatus turns a raw wait status into a TerminationStatus, or
// reports false when the status describes a non-terminal event (a
// stopped or continued child) that this layer ignores.
func decodeStatus(ws syscall.WaitStatus) (TerminationStatus, bool) {
	switch {
	case ws.Exited():
		return TerminationStatus{Kind: ExitKindExited, Code: ws.ExitStatus()}, true
	case ws.Signaled():
		return TerminationStatus{Kind: ExitKindSignaled, Signal: int(ws.Signal())}, true
	default:
		return TerminationStatus{}, false
	}
}

// deliver resolves the rendezvous for pid, whichever order the caller's
// waitFor and the kernel's termination arrived in.
func (r *reaper) deliver(pid int, status TerminationStatus) {
	r.mu.Lock()
	entry, exists := r.waiters[pid]
	if exists && entry.kind == waiterWaiting {
		ch := entry.ch
		delete(r.waiters, pid)
		r.mu.Unlock()
		ch <- status
		close(ch)
		return
	}
	r.waiters[pid] = &waiterEntry{kind: waiterReady, status: status}
	r.mu.Unlock()
}

// waitFor suspends until pid's termination status is available, or until
// ctx is done. It never returns an error solely because the child hasn't
// exited yet; the only failure mode is context cancellation.
func (r *reaper) waitFor(ctx context.Context, pid int) (TerminationStatus, error) {
	r.mu.Lock()
	if entry, ok := r.waiters[pid]; ok && entry.kind == waiterReady {
		delete(r.waiters, pid)
		r.mu.Unlock()
		return entry.status, nil
	}
	ch := make(chan TerminationStatus, 1)
	r.waiters[pid] = &waiterEntry{kind: waiterWaiting, ch: ch}
	r.mu.Unlock()

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		r.mu.Lock()
		if entry, ok := r.waiters[pid]; ok && entry.ch == ch {
			delete(r.waiters, pid)
		}
		r.mu.Unlock()
		return TerminationStatus{}, ctx.Err()
	}
}

// pendingCount reports the number of pids currently tracked, either
// waiting on a continuation or holding an unclaimed ready status. It
// exists to make the "map returns to empty" property in §8 testable.
func (r *reaper) pendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
