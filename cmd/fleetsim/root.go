package main

import (
	"fmt"

	"fleetsim/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root fleetsim command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fleetsim",
		Short:         "Fleet command-and-control simulator",
		Long:          "fleetsim runs a fleet controller, individual unit agents,\nor a full in-process simulation from a scenario file.",
		Version:       fmt.Sprintf("fleetsim %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newControllerCmd(),
		newAgentCmd(),
		newSimulateCmd(),
		newLogsCmd(),
		newVersionCmd(),
	)

	return cmd
}

// newVersionCmd creates the "fleetsim version" subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fleetsim version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "fleetsim %s\n", version.String())
			return nil
		},
	}
}
