package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arclet/subprocess/internal/subprocess"
)

func newDetachedCmd() *cobra.Command {
	creds := &credentialFlags{}
	env := &envFlags{}

	cmd := &cobra.Command{
		Use:   "spawn-detached -- PATH [ARGS...]",
		Short: "Spawn a command and print its pid without waiting on it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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
				Stdin:       subprocess.NoInput(),
				Stdout:      subprocess.Discarded(),
				Stderr:      subprocess.Discarded(),
			}

			pid, err := subprocess.RunDetached(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pid)
			return nil
		},
	}

	creds.register(cmd)
	env.register(cmd)
	return cmd
}
