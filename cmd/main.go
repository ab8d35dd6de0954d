package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:           "dispatchdesk",
		Short:         "Presence and messaging hub for dispatch teams",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before DISPATCHDESK_* variables")

	cmd.AddCommand(
		newServeCommand(&envFile),
		newHistoryCommand(&envFile),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
