package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cinelex/internal/daemon"
	"cinelex/internal/store"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect catalog sync jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		year     int
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sync jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.SyncJobFilter{Year: year, Limit: limit}
			for _, status := range statuses {
				if trimmed := strings.ToUpper(strings.TrimSpace(status)); trimmed != "" {
					filter.Statuses = append(filter.Statuses, store.SyncStatus(trimmed))
				}
			}
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				jobs, err := c.Syncer.ListJobs(runCtx, filter)
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No sync jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						strconv.Itoa(job.Year),
						job.Language,
						string(job.Status),
						strconv.Itoa(job.Priority),
						strconv.Itoa(job.Attempts),
						strconv.Itoa(job.ProcessedCount),
						strconv.Itoa(job.FailedCount),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"ID", "Year", "Lang", "Status", "Priority", "Attempts", "Processed", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (PENDING, IN_PROGRESS, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&year, "year", 0, "Filter by year")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum jobs to list")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one sync job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(runCtx context.Context, c *daemon.Components) error {
				job, err := c.Syncer.Job(runCtx, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ctx.wantJSON() {
					return writeJSON(cmd, job)
				}
				printSyncJob(cmd, job)
				return nil
			})
		},
	}
}

func printSyncJob(cmd *cobra.Command, job *store.SyncJob) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:        %s\n", job.ID)
	fmt.Fprintf(out, "Key:        %s\n", job.JobKey)
	fmt.Fprintf(out, "Status:     %s\n", job.Status)
	fmt.Fprintf(out, "Year:       %d\n", job.Year)
	fmt.Fprintf(out, "Language:   %s\n", job.Language)
	fmt.Fprintf(out, "Max:        %d\n", job.MaxResults)
	fmt.Fprintf(out, "Priority:   %d\n", job.Priority)
	fmt.Fprintf(out, "Attempts:   %d\n", job.Attempts)
	fmt.Fprintf(out, "Processed:  %d\n", job.ProcessedCount)
	fmt.Fprintf(out, "Failed:     %d\n", job.FailedCount)
	if job.LastAttempt != nil {
		fmt.Fprintf(out, "Last run:   %s\n", job.LastAttempt.Local().Format("2006-01-02 15:04:05"))
	}
	if job.RetryOf != "" {
		fmt.Fprintf(out, "Retry of:   %s\n", job.RetryOf)
	}
	fmt.Fprintf(out, "Superseded: %s\n", yesNo(job.Superseded))
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", job.ErrorMessage)
	}
}
