package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const starterConfig = `# Halcyon project configuration
instanceId: home
provider: memory

platform:
  baseUrl: http://homeassistant.local:8123
  token: ${HA_TOKEN}

healing:
  successThreshold: 3
  maxRetryAttempts: 3
  retryBaseDelayMillis: 500
  cascadeTimeoutSeconds: 120
  breakerFailureThreshold: 10
  breakerCooldownSeconds: 300

watcher:
  interval: 15s

alerts:
  - type: console

server:
  addr: :8090

# provider: redis
# redis:
#   addr: localhost:6379

# provider: dynamodb
# dynamodb:
#   tableName: halcyon
#   region: us-east-1
`

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter halcyon.yaml in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat("halcyon.yaml"); err == nil {
				return fmt.Errorf("halcyon.yaml already exists")
			}
			if err := os.WriteFile("halcyon.yaml", []byte(starterConfig), 0o644); err != nil {
				return fmt.Errorf("writing halcyon.yaml: %w", err)
			}
			color.Green("created halcyon.yaml")
			return nil
		},
	}
}
