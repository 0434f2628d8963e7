package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldops/dispatch/config"
	"github.com/fieldops/dispatch/job"
	"github.com/fieldops/dispatch/logger"
	"github.com/fieldops/dispatch/store"
	"github.com/fieldops/dispatch/tzdate"
)

// JobsCmd groups job management subcommands.
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create, list and inspect jobs",
	Long: `Job management.

Commands:
  dispatch jobs ls                  # List jobs
  dispatch jobs show <job-id>       # Show job details
  dispatch jobs create              # Create a pending job`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	Long: `List jobs, optionally filtered by status.

Examples:
  dispatch jobs ls                     # List all jobs
  dispatch jobs ls --status scheduled  # Only scheduled jobs
  dispatch jobs ls --limit 50          # Show up to 50 jobs`,
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		return runJobsLs(statusFilter, limit)
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show job details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJobsShow(args[0])
	},
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a pending job",
	Long: `Create a pending job for a customer request.

Example:
  dispatch jobs create --title "Water heater replacement" --customer CUST_1 --customer-name "Dana Whitfield"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		customerID, _ := cmd.Flags().GetString("customer")
		customerName, _ := cmd.Flags().GetString("customer-name")
		return runJobsCreate(title, customerID, customerName)
	},
}

func init() {
	jobsLsCmd.Flags().String("status", "", "Filter by status (pending, scheduled, in_progress, ...)")
	jobsLsCmd.Flags().Int("limit", 20, "Maximum number of jobs to show")

	jobsCreateCmd.Flags().String("title", "", "Job title (required)")
	jobsCreateCmd.Flags().String("customer", "", "Customer ID (required)")
	jobsCreateCmd.Flags().String("customer-name", "", "Customer display name")
	jobsCreateCmd.MarkFlagRequired("title")
	jobsCreateCmd.MarkFlagRequired("customer")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
	JobsCmd.AddCommand(jobsCreateCmd)
}

// openStore opens the configured database and wraps it in a job store.
// The caller closes the returned database handle.
func openStore() (*store.JobStore, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	database, err := store.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	jobs, err := store.NewJobStore(database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return jobs, database, nil
}

func runJobsLs(statusFilter string, limit int) error {
	jobs, database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := context.Background()
	var list []*job.Job
	if statusFilter != "" {
		if !job.IsValidStatus(statusFilter) {
			return fmt.Errorf("unknown status %q", statusFilter)
		}
		list, err = jobs.ListByStatus(ctx, job.Status(statusFilter), limit)
	} else {
		list, err = jobs.ListAll(ctx, limit)
	}
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-20s %-22s %-25s %-18s %s\n", "JOB ID", "STATUS", "TITLE", "SCHEDULED", "CUSTOMER")
	fmt.Printf("%-20s %-22s %-25s %-18s %s\n", "------", "------", "-----", "---------", "--------")
	for _, j := range list {
		scheduled := "-"
		if j.ScheduledTime.IsSet() {
			scheduled = tzdate.FormatDate(j.ScheduledTime.Time, j.Timezone)
		}
		fmt.Printf("%-20s %-22s %-25s %-18s %s\n",
			truncate(j.ID, 20),
			j.Status,
			truncate(j.Title, 25),
			scheduled,
			truncate(j.CustomerName, 25))
	}
	fmt.Printf("\nTotal: %d job(s)\n", len(list))
	return nil
}

func runJobsShow(jobID string) error {
	jobs, database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	j, err := jobs.Get(context.Background(), jobID)
	if err != nil {
		return err
	}

	fmt.Printf("Job:       %s\n", j.ID)
	fmt.Printf("Title:     %s\n", j.Title)
	fmt.Printf("Status:    %s\n", j.Status)
	fmt.Printf("Customer:  %s (%s)\n", j.CustomerName, j.CustomerID)
	if j.ContractorID != "" {
		fmt.Printf("Provider:  %s\n", j.ContractorID)
	}
	if j.Timezone != "" {
		fmt.Printf("Timezone:  %s\n", j.Timezone)
	}
	if j.MultiDay != nil {
		fmt.Printf("Schedule:  %s\n", j.MultiDay.Describe(j.Timezone))
	} else if j.ScheduledTime.IsSet() {
		fmt.Printf("Schedule:  %s\n", tzdate.FormatDateTime(j.ScheduledTime.Time, j.Timezone))
	}
	if len(j.ProposedTimes) > 0 {
		fmt.Printf("Proposals:\n")
		for i, p := range j.ProposedTimes {
			fmt.Printf("  [%d] %s by %s\n", i,
				tzdate.FormatDateTime(p.Date.Time, j.Timezone), p.ProposedBy)
		}
	}
	for i, slot := range j.OfferedSlots {
		fmt.Printf("Slot [%d]:  %s - %s (%s)\n", i,
			tzdate.FormatDateTime(slot.Start.Time, j.Timezone),
			tzdate.FormatTime(slot.End.Time, j.Timezone),
			slot.Status)
	}
	if j.CancellationRequest != nil {
		fmt.Printf("Cancellation requested by %s: %s\n",
			j.CancellationRequest.RequestedBy, j.CancellationRequest.Reason)
	}
	fmt.Printf("Created:   %s\n", j.CreatedAt.Time.Format(time.RFC3339))
	fmt.Printf("Updated:   %s (version %d)\n", j.UpdatedAt.Time.Format(time.RFC3339), j.Version)
	return nil
}

func runJobsCreate(title, customerID, customerName string) error {
	jobs, database, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	j := job.NewJob(title, customerID, customerName, time.Now())
	if err := jobs.Create(context.Background(), j); err != nil {
		return err
	}
	fmt.Printf("Created %s (%s)\n", j.ID, j.Status)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
