package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/halcyon-systems/halcyon/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "halcyon",
		Short: "Outcome-driven healing engine for home-automation platforms",
		Long: `Halcyon validates that automations achieved their intended outcomes and
heals the ones that didn't. Failed outcomes escalate through entity-level
retries, device-level recovery, and integration reloads, with learned
patterns routing future cascades straight to the level that worked.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewRunCmd(),
		commands.NewStatusCmd(),
		commands.NewHealCmd(),
		commands.NewResetCmd(),
		commands.NewValidateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
