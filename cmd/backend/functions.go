package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ErlanBelekov/dist-job-scheduler/config"
	"github.com/spf13/cobra"
)

// functionStubTemplate scaffolds a fresh function module: the PEP-723 style
// dependency header spec §6 parses, plus a handle(input) entry point the
// worker protocol invokes. No third-party scaffolding/templating library in
// the pack targets Python sources, so this is a plain fmt.Sprintf template.
const functionStubTemplate = `# /// script
# dependencies = []
# ///
#
# %s

def handle(input):
    return {"ok": True}
`

func newFunctionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "Manage local function source files",
	}
	cmd.AddCommand(newFunctionsNewCommand())
	return cmd
}

func newFunctionsNewCommand() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Scaffold a new function module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFunctionsNew(args[0], description)
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "short description stored in the file header")

	return cmd
}

func runFunctionsNew(name, description string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", errConfig, err)
	}

	if err := os.MkdirAll(cfg.FunctionsDir, 0o755); err != nil {
		return fmt.Errorf("create functions dir: %w", err)
	}

	path := filepath.Join(cfg.FunctionsDir, name+".py")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	contents := fmt.Sprintf(functionStubTemplate, description)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Printf("created %s\n", path)
	return nil
}
