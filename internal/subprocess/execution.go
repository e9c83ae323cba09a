package subprocess

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Output-consumption gate bits. Each flips from 0 to 1 at most once.
const (
	bitStdoutConsumed uint32 = 1 << 0
	bitStderrConsumed uint32 = 1 << 1
)

// Execution is the handle returned to callers by Spawner.Spawn. It owns the
// parent-side pipe endpoints and the output-consumption gate; its zero
// value is never valid, it is always produced by newExecution.
type Execution struct {
	pid int

	stdin  *os.File // non-nil only when Stdin was StdioPiped
	stdout *os.File // non-nil only when Stdout was StdioPiped
	stderr *os.File // non-nil only when Stderr was StdioPiped

	consumed atomic.Uint32

	closeOnce sync.Once
}

func newExecution(pid int, stdin, stdout, stderr *os.File) *Execution {
	return &Execution{pid: pid, stdin: stdin, stdout: stdout, stderr: stderr}
}

// PID returns the child's process identifier. It remains valid (usable
// with, e.g., a direct kill(2)) until the child is reaped.
func (e *Execution) PID() int { return e.pid }

// Stdin returns the parent-side write end of the child's stdin pipe, and
// whether one exists. The caller owns closing it when done writing.
func (e *Execution) Stdin() (io.WriteCloser, bool) {
	return e.stdin, e.stdin != nil
}

// markConsumed flips the given bit and reports whether it was already set
// before this call. The XOR-set semantics are implemented with an atomic
// Or so the "I set it" vs "it was already set" distinction never races.
func (e *Execution) markConsumed(bit uint32) (alreadySet bool) {
	old := e.consumed.Or(bit)
	return old&bit != 0
}

// Stdout returns a lazy, finite, non-restartable reader over the child's
// stdout pipe. It panics if stdout was not requested as StdioPiped, or if
// this Execution's stdout has already been consumed once — a second
// concurrent reader would silently steal bytes from the first, which is a
// contract violation this layer treats as unrecoverable.
func (e *Execution) Stdout() io.Reader {
	if e.stdout == nil {
		panic("subprocess: stdout was not requested as a pipe")
	}
	if e.markConsumed(bitStdoutConsumed) {
		panic("subprocess: stdout pipe consumed more than once")
	}
	return e.stdout
}

// Stderr is the symmetric counterpart to Stdout, gated on its own bit.
func (e *Execution) Stderr() io.Reader {
	if e.stderr == nil {
		panic("subprocess: stderr was not requested as a pipe")
	}
	if e.markConsumed(bitStderrConsumed) {
		panic("subprocess: stderr pipe consumed more than once")
	}
	return e.stderr
}

// CaptureBoth drains stdout and stderr concurrently and returns both
// buffers. Concurrency here is not an optimization: draining one pipe at a
// time deadlocks as soon as the child writes enough to the other to fill
// its kernel pipe buffer while nothing is reading it. maxBytes, when
// positive, caps each side independently; a child that writes past the cap
// is simply stopped short rather than erroring.
//
// Cancelling ctx cancels both drainers and discards whatever they had
// collected; the child itself is not signaled.
func (e *Execution) CaptureBoth(ctx context.Context, maxBytes int) (stdout, stderr []byte, err error) {
	if e.stdout == nil || e.stderr == nil {
		panic("subprocess: CaptureBoth requires both stdout and stderr to be piped")
	}
	if e.markConsumed(bitStdoutConsumed) {
		panic("subprocess: stdout pipe consumed more than once")
	}
	if e.markConsumed(bitStderrConsumed) {
		panic("subprocess: stderr pipe consumed more than once")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, drainErr := drain(gctx, e.stdout, maxBytes)
		stdout = b
		return drainErr
	})
	g.Go(func() error {
		b, drainErr := drain(gctx, e.stderr, maxBytes)
		stderr = b
		return drainErr
	})
	err = g.Wait()
	return stdout, stderr, err
}

// drain reads f to EOF (or until maxBytes, when positive, is reached),
// unblocking an in-flight Read as soon as ctx is cancelled by pulling the
// fd's read deadline forward.
func drain(ctx context.Context, f *os.File, maxBytes int) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = f.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 32*1024)
	for maxBytes <= 0 || len(buf) < maxBytes {
		want := chunk
		if maxBytes > 0 && maxBytes-len(buf) < len(want) {
			want = chunk[:maxBytes-len(buf)]
		}
		n, err := f.Read(want)
		if n > 0 {
			buf = append(buf, want[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return buf, nil
			}
			if ctx.Err() != nil {
				return buf, ctx.Err()
			}
			return buf, newError("drain", IOFailure, err)
		}
	}
	return buf, nil
}

// Close releases any parent-side fd that is still open. The write-ends
// that belong to the child are already closed by the Spawner right after
// a successful spawn; this only matters for ends the caller never
// consumed (streamed or captured).
func (e *Execution) Close() error {
	var firstErr error
	e.closeOnce.Do(func() {
		if e.stdin != nil {
			if err := e.stdin.Close(); err != nil {
				firstErr = err
			}
			e.stdin = nil
		}
		if e.stdout != nil {
			if err := e.stdout.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			e.stdout = nil
		}
		if e.stderr != nil {
			if err := e.stderr.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
			e.stderr = nil
		}
	})
	return firstErr
}

// Wait suspends until the Reaper observes this child's termination.
func (e *Execution) Wait(ctx context.Context) (TerminationStatus, error) {
	return globalReaper.waitFor(ctx, e.pid)
}
