package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCmd()
	root.SetContext(context.Background())
	var outBuf, errBuf bytes.Buffer
	root.SetOut(&outBuf)
	root.SetErr(&errBuf)
	root.SetArgs(args)
	err = root.Execute()
	return outBuf.String(), errBuf.String(), err
}

func TestRunCmdLogsTerminationStatus(t *testing.T) {
	_, stderr, err := execCmd(t, "run", "--", "/bin/echo", "hello")
	if err != nil {
		t.Fatalf("run returned an error: %v", err)
	}
	if !strings.Contains(stderr, "exit status 0") {
		t.Fatalf("expected the termination status to be logged, got %q", stderr)
	}
}

func TestSpawnDetachedPrintsPID(t *testing.T) {
	stdout, _, err := execCmd(t, "spawn-detached", "--", "/bin/true")
	if err != nil {
		t.Fatalf("spawn-detached returned an error: %v", err)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Fatalf("expected a pid on stdout, got empty output")
	}
}

func TestRunCmdRejectsConflictingCredentialFlags(t *testing.T) {
	_, _, err := execCmd(t, "run", "--session", "--process-group", "1", "--", "/bin/true")
	if err == nil {
		t.Fatalf("expected --session and --process-group to be rejected together")
	}
}
