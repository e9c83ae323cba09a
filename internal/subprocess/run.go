package subprocess

import "context"

// Run spawns req, hands the live Execution to body, and waits for both
// body and the child's termination before returning. body is free to read
// from the Execution's streams, write to its stdin, or ignore it entirely
// and just wait on the child.
//
// The Execution is always closed before Run returns, so any stream body
// did not consume is released automatically.
func Run[T any](ctx context.Context, req SpawnRequest, body func(context.Context, *Execution) (T, error)) (T, TerminationStatus, error) {
	var zero T

	ex, err := NewSpawner().Spawn(req)
	if err != nil {
		return zero, TerminationStatus{}, err
	}
	defer ex.Close()

	type bodyResult struct {
		value T
		err   error
	}
	bodyDone := make(chan bodyResult, 1)
	go func() {
		v, bodyErr := body(ctx, ex)
		bodyDone <- bodyResult{value: v, err: bodyErr}
	}()

	status, waitErr := ex.Wait(ctx)
	res := <-bodyDone

	if waitErr != nil {
		return res.value, status, waitErr
	}
	return res.value, status, res.err
}

// RunCaptured is the "capture both" convenience from §6: it spawns req
// with stdout and stderr piped, drains both concurrently, and returns
// everything captured alongside the termination status.
func RunCaptured(ctx context.Context, req SpawnRequest, maxBytes int) (stdout, stderr []byte, status TerminationStatus, err error) {
	req.Stdin = NoInput()
	req.Stdout = Piped()
	req.Stderr = Piped()

	type captured struct {
		stdout, stderr []byte
	}
	result, status, err := Run(ctx, req, func(ctx context.Context, e *Execution) (captured, error) {
		out, errOut, captureErr := e.CaptureBoth(ctx, maxBytes)
		return captured{stdout: out, stderr: errOut}, captureErr
	})
	return result.stdout, result.stderr, status, err
}

// RunDetached spawns req and returns the child's pid immediately. It
// installs no waiter and never blocks on the child. The Reaper still reaps
// the child when it exits; deliver then stores a waiterReady entry for the
// pid, which stays in the process-wide map until a waitFor for that pid
// claims it.
func RunDetached(req SpawnRequest) (pid int, err error) {
	ex, err := NewSpawner().Spawn(req)
	if err != nil {
		return 0, err
	}
	pid = ex.PID()
	// No caller will ever read these; an Execution with unconsumed piped
	// streams would otherwise hold them open forever.
	_ = ex.Close()
	return pid, nil
}
