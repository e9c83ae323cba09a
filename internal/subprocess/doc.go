// Package subprocess implements the low-level mechanics of spawning a child
// process with precisely controlled standard I/O, credentials, and session
// state; reaping its termination asynchronously through a process-wide
// SIGCHLD dispatcher; and draining its stdout/stderr concurrently without
// deadlocking.
//
// It deliberately stops short of a user-facing command-running API: argument
// parsing, convenience overloads, and result shaping belong to callers such
// as internal/supervisor and internal/cli. This package only promises a
// correctly-spawned child, a reliable way to learn how it exited, and a way
// to drain its output.
//
// Callers never spawn through os/exec.Cmd here. Fork and exec are performed
// directly through syscall.ForkExec, and termination is observed through a
// dedicated SIGCHLD handler rather than a per-child blocking wait, so that a
// single process-wide Reaper can service every child regardless of which
// package started it.
package subprocess
