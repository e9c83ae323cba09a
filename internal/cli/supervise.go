package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arclet/subprocess/internal/subprocess"
	"github.com/arclet/subprocess/internal/supervisor"
)

func newSuperviseCmd() *cobra.Command {
	creds := &credentialFlags{}
	env := &envFlags{}
	var maxRetries int
	var backoffMin, backoffMax time.Duration
	var backoffFactor float64

	cmd := &cobra.Command{
		Use:   "supervise -- PATH [ARGS...]",
		Short: "Run a command under restart-with-backoff supervision until it exits cleanly, its restarts run out, or the command is interrupted",
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
			}

			policy := supervisor.RestartPolicy{
				MaxRetries: maxRetries,
				Backoff: supervisor.Backoff{
					Min:    backoffMin,
					Max:    backoffMax,
					Factor: backoffFactor,
				},
			}

			sup := supervisor.New(req, policy)

			out := cmd.ErrOrStderr()
			done := make(chan struct{})
			go func() {
				for ev := range sup.Events() {
					fmt.Fprintln(out, describeEvent(ev))
				}
				close(done)
			}()

			sup.Run(cmd.Context())
			<-done
			return nil
		},
	}

	creds.register(cmd)
	env.register(cmd)
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "maximum restart attempts after a crash (-1 = unlimited)")
	cmd.Flags().DurationVar(&backoffMin, "backoff-min", time.Second, "initial delay before the first restart attempt")
	cmd.Flags().DurationVar(&backoffMax, "backoff-max", 30*time.Second, "ceiling on the restart delay")
	cmd.Flags().Float64Var(&backoffFactor, "backoff-factor", 2.0, "multiplier applied to the delay after each restart")

	return cmd
}

func describeEvent(ev supervisor.Event) string {
	switch ev.Type {
	case supervisor.EventStarting:
		return "starting"
	case supervisor.EventExited:
		if ev.Err != nil {
			return fmt.Sprintf("exited: %v", ev.Err)
		}
		return fmt.Sprintf("exited: %s", ev.Status)
	case supervisor.EventRestarting:
		return "restarting"
	case supervisor.EventFailed:
		return fmt.Sprintf("failed permanently: %s %v", ev.Status, ev.Err)
	case supervisor.EventStopped:
		return "stopped"
	default:
		return "unknown event"
	}
}
