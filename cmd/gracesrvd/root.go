package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagEnv      string
	flagCtrlSock string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gracesrvd",
		Short: "An uninterruptible echo server with graceful restart and shutdown",
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to the YAML config file")
	root.PersistentFlags().StringVar(&flagEnv, "env-file", "", "path to a .env file to load before reading config")
	root.PersistentFlags().StringVar(&flagCtrlSock, "ctrl-sock", "gracesrvd.ctrl", "path to the control socket")

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newReloadCmd())
	root.AddCommand(newRestartCmd())
	root.AddCommand(newStopCmd())

	return root
}
