package subprocess

import (
	"os"
	"os/exec"
)

// Spawner converts a validated SpawnRequest into a running child. It has no
// state of its own; every call is independent except that it shares the
// process-wide Reaper with every other Spawner call.
type Spawner struct{}

// NewSpawner returns a Spawner. There is nothing to configure: every
// per-spawn parameter travels on the SpawnRequest.
func NewSpawner() *Spawner { return &Spawner{} }

// Spawn resolves the executable, materializes argv/envp, wires up the
// requested stdio, and forks+execs the child. On success it returns an
// Execution owning the parent-side pipe ends and the child's pid. On
// failure every fd the Spawner opened is closed before the error is
// returned.
func (s *Spawner) Spawn(req SpawnRequest) (*Execution, error) {
	if req.Credentials.mutuallyExclusive() {
		return nil, newError("spawn", InvalidConfiguration, nil)
	}
	if req.Credentials.PreExecHook != nil {
		// Go's safe fork+exec path (syscall.ForkExec) runs entirely inside
		// the runtime's own async-signal-safe trampoline; there is no
		// supported way to splice a caller-provided closure into the
		// post-fork/pre-exec window without risking a hang in the
		// multithreaded runtime. Rejecting this up front is preferable to
		// silently ignoring it.
		return nil, newError("spawn", InvalidConfiguration, nil)
	}

	path, err := resolveExecutablePath(req.Path)
	if err != nil {
		return nil, classifySpawnErrno("spawn", err)
	}

	argv := req.Argv
	if len(argv) == 0 {
		argv = []string{path}
	}

	env := req.Env
	if env == nil {
		env = os.Environ()
	}
	env = dedupeEnv(env)

	dir := req.Dir
	if dir != "" {
		if cwd, err := os.Getwd(); err == nil && cwd == dir {
			dir = ""
		}
	}

	devNull := newDevNullOpener()
	defer devNull.close()

	stdin, err := resolveStdio(req.Stdin, true, devNull.open)
	if err != nil {
		return nil, err
	}
	stdout, err := resolveStdio(req.Stdout, false, devNull.open)
	if err != nil {
		stdin.release()
		return nil, err
	}
	stderr, err := resolveStdio(req.Stderr, false, devNull.open)
	if err != nil {
		stdin.release()
		stdout.release()
		return nil, err
	}

	globalReaper.ensureStarted()

	pid, spawnErr := forkExecChild(path, argv, env, dir, req.Credentials, stdin, stdout, stderr)

	// Every fd the parent handed to the child belongs to the child now;
	// whether the fork succeeded or failed, the parent's reference to it
	// must go away.
	closeChildSide(stdin)
	closeChildSide(stdout)
	closeChildSide(stderr)

	if spawnErr != nil {
		stdin.releaseParent()
		stdout.releaseParent()
		stderr.releaseParent()
		return nil, classifySpawnErrno("spawn", spawnErr)
	}

	return newExecution(pid, stdin.parentFile, stdout.parentFile, stderr.parentFile), nil
}

// resolveExecutablePath resolves an absolute path verbatim and searches
// PATH for a bare name, matching exec.LookPath's semantics. Reusing
// exec.LookPath here is a path-resolution convenience, not the "library
// spawn abstraction" the design calls out: no part of argv/envp
// construction, fork, or exec goes through the os/exec package.
func resolveExecutablePath(path string) (string, error) {
	if path == "" {
		return "", newError("resolveExecutablePath", InvalidConfiguration, nil)
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// dedupeEnv keeps the position of each key's first occurrence but the
// value of its last occurrence, so "duplicate keys, last occurrence wins"
// holds at the single merged envp array execve actually sees.
func dedupeEnv(env []string) []string {
	order := make([]string, 0, len(env))
	values := make(map[string]string, len(env))
	seen := make(map[string]bool, len(env))
	for _, kv := range env {
		key, value := splitEnv(kv)
		if !seen[key] {
			seen[key] = true
			order = append(order, key)
		}
		values[key] = value
	}
	out := make([]string, 0, len(order))
	for _, key := range order {
		out = append(out, key+"="+values[key])
	}
	return out
}

func splitEnv(kv string) (key, value string) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:]
		}
	}
	return kv, ""
}
