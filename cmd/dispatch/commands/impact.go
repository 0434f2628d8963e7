package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fieldops/dispatch/cascade"
	"github.com/fieldops/dispatch/config"
)

// ImpactCmd previews the blast radius of cancelling a scheduled job.
var ImpactCmd = &cobra.Command{
	Use:   "impact <job-id>",
	Short: "Preview which jobs a cancellation would put at risk",
	Long: `Impact analysis inspects the provider's other scheduled jobs and
reports which ones assumed the subject's visit: same-day appointments
within the travel buffer and overlapping multi-day work.

The result is advisory. Cancellation proceeds once the caller
acknowledges it.

Example:
  dispatch impact JOB_abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImpact(args[0])
	},
}

func runImpact(jobID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	jobs, database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	subject, err := jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if subject.ContractorID == "" {
		pterm.Info.Printf("%s has no provider assigned; nothing to analyze\n", jobID)
		return nil
	}

	others, err := jobs.ListActiveByProvider(ctx, subject.ContractorID)
	if err != nil {
		return fmt.Errorf("failed to load provider schedule: %w", err)
	}

	impact := cascade.AnalyzeCancellationImpact(subject, others, cascade.Options{
		TravelBuffer: cfg.Cascade.TravelBuffer(),
		Timezone:     subject.Timezone,
	})

	if !impact.HasImpact() {
		pterm.Success.Printf("Cancelling %s affects no other jobs\n", jobID)
		return nil
	}

	pterm.Warning.Printf("%s\n", impact.Summary)
	pterm.Println()
	rows := pterm.TableData{{"JOB", "TITLE", "REASON"}}
	for _, affected := range impact.AffectedJobs {
		rows = append(rows, []string{
			truncate(affected.Job.ID, 20),
			truncate(affected.Job.Title, 25),
			affected.Reason,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
