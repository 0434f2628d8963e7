package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldops/dispatch/cmd/dispatch/commands"
	"github.com/fieldops/dispatch/config"
	"github.com/fieldops/dispatch/internal/version"
	"github.com/fieldops/dispatch/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "dispatch - service appointment scheduling and lifecycle coordination",
	Long: `dispatch - service appointment scheduling and lifecycle coordination.

Available commands:
  jobs   - Create, list and inspect jobs
  limbo  - Scan a provider's active jobs for stalled lifecycle states
  impact - Preview which jobs a cancellation would put at risk

Examples:
  dispatch jobs ls                    # List all jobs
  dispatch jobs show JOB_abc123       # Show job details
  dispatch limbo scan --provider P1   # Scan for limbo jobs
  dispatch impact JOB_abc123          # Preview cancellation impact`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.Version = version.Get().String()
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.LimboCmd)
	rootCmd.AddCommand(commands.ImpactCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
