// Package cli wires the warden command tree onto internal/subprocess and
// internal/supervisor.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCmd assembles the warden command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Run and supervise a child process with precise stdio, credential, and restart control",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.AddCommand(newRunCmd())
	root.AddCommand(newDetachedCmd())
	root.AddCommand(newSuperviseCmd())

	return root
}

// Execute runs the CLI entrypoint, cancelling on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
