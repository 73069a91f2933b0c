package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewHealCmd creates the heal command.
func NewHealCmd() *cobra.Command {
	var entities []string
	cmd := &cobra.Command{
		Use:   "heal [automation-id]",
		Short: "Run a manual healing cascade for the given entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return healAutomation(args[0], entities)
		},
	}
	cmd.Flags().StringSliceVarP(&entities, "entity", "e", nil, "entity id to heal (repeatable)")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func healAutomation(automationID string, entities []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	eng, _, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	color.Cyan("healing %s (%d entities)...", automationID, len(entities))
	result, err := eng.Heal(ctx, automationID, entities)
	if err != nil {
		return fmt.Errorf("cascade failed: %w", err)
	}

	if result.Success {
		color.Green("cascade %s healed at %s level in %.1fs",
			result.CascadeID, result.SuccessfulLevel, result.DurationSeconds)
	} else {
		color.Red("cascade %s failed: %s", result.CascadeID, result.ErrorMessage)
	}
	for entity, healed := range result.EntityResults {
		mark := color.RedString("✗")
		if healed {
			mark = color.GreenString("✓")
		}
		fmt.Printf("  %s %s\n", mark, entity)
	}
	if result.PlanRequested {
		color.Yellow("no learned pattern; flagged for plan generation")
	}
	return nil
}
