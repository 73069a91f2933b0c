package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [automation-id]",
		Short: "Re-baseline an automation's health gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resetAutomation(args[0])
		},
	}
}

func resetAutomation(automationID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, _, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	status, err := eng.ResetHealth(ctx, automationID)
	if err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	color.Green("%s reset; lifetime totals preserved (%d executions)",
		automationID, status.TotalExecutions)
	return nil
}
