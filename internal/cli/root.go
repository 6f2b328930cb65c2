// Package cli implements the headfix command line.
package cli

import "github.com/spf13/cobra"

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "headfix",
		Short:         "Run an RFID head-fix cage and inspect its session records",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newRunCmd(),
		newStatsCmd(),
		newSessionsCmd(),
	)
	return root
}
