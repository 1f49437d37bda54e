package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand assembles the backend CLI, grounded on the cobra tree
// roach88-nysm/brutalist builds (one NewXCommand per subcommand, wired into
// a single root via AddCommand).
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "backend",
		Short:         "Collections, functions, schedules and identity in one binary",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newFunctionsCommand())

	return cmd
}
