package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [automation-id]",
		Short: "Show automation health, breakers, and recent cascades",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			automationID := ""
			if len(args) == 1 {
				automationID = args[0]
			}
			return showStatus(automationID)
		},
	}
}

func showStatus(automationID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eng, _, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if automationID != "" {
		status, err := eng.Health(ctx, automationID)
		if err != nil {
			return fmt.Errorf("reading health: %w", err)
		}
		if status == nil {
			color.Yellow("%s: never validated", automationID)
			return nil
		}
		score, err := eng.ReliabilityScore(ctx, automationID)
		if err != nil {
			return fmt.Errorf("reading reliability: %w", err)
		}

		if status.IsValidatedHealthy {
			color.Green("%s: validated healthy", automationID)
		} else {
			color.Red("%s: not validated healthy", automationID)
		}
		fmt.Printf("  reliability:           %.2f\n", score)
		fmt.Printf("  consecutive successes: %d\n", status.ConsecutiveSuccesses)
		fmt.Printf("  consecutive failures:  %d\n", status.ConsecutiveFailures)
		fmt.Printf("  executions:            %d (%d ok / %d failed)\n",
			status.TotalExecutions, status.TotalSuccesses, status.TotalFailures)
		if status.LastValidationAt != nil {
			fmt.Printf("  last validated:        %s\n", status.LastValidationAt.Format(time.RFC3339))
		}

		results, err := eng.CascadeResults(ctx, automationID, 5)
		if err != nil {
			return fmt.Errorf("listing cascades: %w", err)
		}
		if len(results) > 0 {
			fmt.Println("  recent cascades:")
			for _, r := range results {
				mark := color.RedString("failed")
				if r.Success {
					mark = color.GreenString("healed at %s", r.SuccessfulLevel)
				}
				fmt.Printf("    %s  %s  %.1fs\n", r.CascadeID, mark, r.DurationSeconds)
			}
		}
		return nil
	}

	breakers, err := eng.Breakers(ctx)
	if err != nil {
		return fmt.Errorf("listing breakers: %w", err)
	}
	if len(breakers) == 0 {
		color.Green("no circuit breakers recorded")
		return nil
	}
	now := time.Now()
	for _, b := range breakers {
		if b.Open(now) {
			color.Red("%s: OPEN until %s (%d failures)",
				b.IntegrationID, b.OpenUntil.Format(time.RFC3339), b.ConsecutiveFailures)
		} else {
			color.Green("%s: closed (%d failures)", b.IntegrationID, b.ConsecutiveFailures)
		}
	}
	return nil
}
