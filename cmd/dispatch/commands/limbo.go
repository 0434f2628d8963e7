package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fieldops/dispatch/config"
	"github.com/fieldops/dispatch/limbo"
	"github.com/fieldops/dispatch/logger"
)

// LimboCmd groups staleness detection subcommands.
var LimboCmd = &cobra.Command{
	Use:   "limbo",
	Short: "Detect stalled jobs",
	Long: `Limbo detection scans a provider's active jobs for states that
have dwelled past their thresholds: unanswered cancellation requests,
unreviewed completion submissions, past-due work, and more.

Examples:
  dispatch limbo scan --provider PROV_1            # Summary and table
  dispatch limbo scan --provider PROV_1 --alerts   # Render alert cards`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var limboScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a provider's active jobs for limbo states",
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID, _ := cmd.Flags().GetString("provider")
		showAlerts, _ := cmd.Flags().GetBool("alerts")
		return runLimboScan(providerID, showAlerts)
	},
}

func init() {
	limboScanCmd.Flags().String("provider", "", "Provider ID to scan (required)")
	limboScanCmd.Flags().Bool("alerts", false, "Render actionable alert cards instead of the issue table")
	limboScanCmd.MarkFlagRequired("provider")

	LimboCmd.AddCommand(limboScanCmd)
}

func runLimboScan(providerID string, showAlerts bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	jobs, database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	detector := limbo.NewDetector(jobs, logger.Logger).
		WithThresholds(cfg.Limbo.Thresholds())

	result, err := detector.FindLimboJobs(context.Background(), providerID)
	if err != nil {
		return fmt.Errorf("limbo scan failed: %w", err)
	}

	if result.Summary.Total == 0 {
		pterm.Success.Printf("No limbo jobs for provider %s\n", providerID)
		return nil
	}

	pterm.DefaultHeader.Printf("Limbo scan: %s", providerID)
	pterm.Println()
	pterm.Printf("Flagged: %d (high %d, medium %d, low %d)\n",
		result.Summary.Total, result.Summary.High, result.Summary.Medium, result.Summary.Low)
	pterm.Println()

	if showAlerts {
		renderAlerts(limbo.GenerateAlerts(result.LimboJobs))
		return nil
	}

	rows := pterm.TableData{{"JOB", "TITLE", "SEVERITY", "ISSUE", "AGE"}}
	for _, flagged := range result.LimboJobs {
		for _, issue := range flagged.Issues {
			rows = append(rows, []string{
				truncate(flagged.Job.ID, 20),
				truncate(flagged.Job.Title, 25),
				string(issue.Severity),
				string(issue.Type),
				issue.AgeFormatted,
			})
		}
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func renderAlerts(alerts []limbo.Alert) {
	for _, alert := range alerts {
		printer := pterm.Info
		switch alert.Severity {
		case limbo.SeverityHigh:
			printer = pterm.Error
		case limbo.SeverityMedium:
			printer = pterm.Warning
		}
		printer.Printf("%s\n", alert.Title)
		pterm.Printf("  %s\n", alert.Message)
		pterm.Printf("  %s • actions: %v\n", alert.Age, alert.Actions)
		pterm.Println()
	}
}
