package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [execution-id]",
		Short: "Validate one execution's outcome immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateExecution(args[0])
		},
	}
}

func validateExecution(executionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	eng, _, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.Validate(ctx, executionID)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if result.OverallSuccess {
		color.Green("execution %s achieved its desired outcome", executionID)
	} else {
		color.Red("execution %s did not achieve its desired outcome", executionID)
	}
	for _, ev := range result.Entities {
		if ev.Achieved {
			color.Green("  ✓ %s -> %s (%dms)", ev.EntityID, ev.ActualState, ev.TimeToAchievement)
		} else {
			color.Red("  ✗ %s: %s", ev.EntityID, ev.Reason)
		}
	}
	if result.CascadeQueued {
		color.Yellow("healing cascade queued for failed entities")
		// Give the background cascade a moment to record before the store
		// is torn down.
		if err := eng.Drain(ctx); err != nil {
			return fmt.Errorf("waiting for cascade: %w", err)
		}
	}
	return nil
}
