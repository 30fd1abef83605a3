package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkphnx/uninterruptible/ctrlsock"
)

// dialAndPrint sends a single command line to the control socket and prints
// whatever the running supervisor wrote back.
func dialAndPrint(cmd string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := ctrlsock.Dial(ctx, flagCtrlSock, cmd, args...)
	if err != nil {
		return fmt.Errorf("gracesrvd: %s: %w", cmd, err)
	}
	fmt.Print(out)
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the running server's lifecycle state and connection count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dialAndPrint("status")
		},
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running server to acknowledge a config-only reload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dialAndPrint("reload")
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Trigger a graceful restart (the same path SIGUSR1 takes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dialAndPrint("restart")
		},
	}
}

func newStopCmd() *cobra.Command {
	var delay int
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Trigger a graceful stop (the same path SIGTERM takes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if delay > 0 {
				return dialAndPrint("stop", fmt.Sprintf("%d", delay))
			}
			return dialAndPrint("stop")
		},
	}
	cmd.Flags().IntVar(&delay, "delay", 0, "seconds to wait before stopping")
	return cmd
}
