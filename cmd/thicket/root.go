package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "thicket",
		Short:         "Turn-based multi-agent simulation driven by a language model",
		Long:          "thicket runs a small world of actors. Each turn every actor states an intent, one arbiter call decides what actually happens, and every actor then updates its own memory.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newStateCmd(),
	)
	return rootCmd
}
