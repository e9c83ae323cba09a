//go:build !windows

package subprocess

import (
	"os"
	"syscall"
)

// forkExecChild performs the actual fork+exec. It is a thin wrapper around
// syscall.ForkExec rather than a hand-rolled fork(2)/execve(2) pair: Go's
// runtime does not allow user code to safely call fork(2) directly from a
// goroutine and continue running arbitrary Go afterward in the child (only
// the forking thread survives, every other goroutine and the GC simply
// vanish). syscall.ForkExec already performs precisely the sequence §4.2
// describes — open a close-on-exec error pipe, fork, and in the child
// chdir, setgroups, setgid, setuid, setsid-or-setpgid, dup2 the stdio fds
// onto 0/1/2, close everything else, execve, and on any failure write the
// errno back through the pipe before exiting with a sentinel status — so
// reimplementing those steps by hand here would only reproduce (and risk
// subtly breaking) what the standard library's runtime trampoline already
// guarantees.
func forkExecChild(path string, argv, env []string, dir string, creds Credentials, stdin, stdout, stderr resolvedStdio) (int, error) {
	sys, err := credentialsToSysProcAttr(creds)
	if err != nil {
		return 0, err
	}

	attr := &syscall.ProcAttr{
		Dir: dir,
		Env: env,
		Files: []uintptr{
			stdin.childFD.Fd(),
			stdout.childFD.Fd(),
			stderr.childFD.Fd(),
		},
		Sys: sys,
	}

	pid, err := syscall.ForkExec(path, argv, attr)
	if err != nil {
		return 0, err
	}
	return pid, nil
}

func credentialsToSysProcAttr(creds Credentials) (*syscall.SysProcAttr, error) {
	sys := &syscall.SysProcAttr{}

	if creds.UID != nil || creds.GID != nil || len(creds.SupplementaryGroups) > 0 {
		uid := uint32(os.Getuid())
		if creds.UID != nil {
			uid = *creds.UID
		}
		gid := uint32(os.Getgid())
		if creds.GID != nil {
			gid = *creds.GID
		}
		sys.Credential = &syscall.Credential{
			Uid:         uid,
			Gid:         gid,
			Groups:      creds.SupplementaryGroups,
			NoSetGroups: len(creds.SupplementaryGroups) == 0,
		}
	}

	switch {
	case creds.CreateSession:
		// setsid() makes the child the leader of a new session and, as a
		// kernel side effect, a new process group: the two are the same
		// primitive at the syscall level, which is exactly why the design
		// treats CreateSession and ProcessGroupID as mutually exclusive.
		sys.Setsid = true
	case creds.ProcessGroupID != nil:
		sys.Setpgid = true
		sys.Pgid = *creds.ProcessGroupID
	}

	return sys, nil
}
