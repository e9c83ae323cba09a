package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arclet/subprocess/internal/subprocess"
)

func newRunCmd() *cobra.Command {
	creds := &credentialFlags{}
	env := &envFlags{}
	var maxBytes int

	cmd := &cobra.Command{
		Use:   "run -- PATH [ARGS...]",
		Short: "Spawn a command, capture its stdio, and wait for it to exit",
		Args:  cobra.MinimumNArgs(1),
	}

	creds.register(cmd)
	env.register(cmd)
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "cap each of stdout/stderr to this many bytes (0 = unlimited)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := creds.toCredentials()
		if err != nil {
			return err
		}

		req := subprocess.SpawnRequest{
			Path:        args[0],
			Argv:        args,
			Env:         env.toEnv(),
			Dir:         env.dir,
			Credentials: c,
		}

		stdout, stderr, status, err := subprocess.RunCaptured(cmd.Context(), req, maxBytes)
		if len(stdout) > 0 {
			_, _ = io.Copy(os.Stdout, bytes.NewReader(stdout))
		}
		if len(stderr) > 0 {
			_, _ = io.Copy(os.Stderr, bytes.NewReader(stderr))
		}
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.ErrOrStderr(), status)
		switch {
		case status.Exited() && status.Code != 0:
			os.Exit(status.Code)
		case status.Signaled():
			os.Exit(128 + status.Signal)
		}
		return nil
	}

	return cmd
}
