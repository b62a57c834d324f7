package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/queue"
)

var (
	listStatus string
	listLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage queued jobs",
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stats, err := queue.NewPgStore(pool).Stats(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		for _, st := range []queue.Status{queue.StatusPending, queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed} {
			fmt.Fprintf(w, "%s\t%d\n", st, stats[st])
		}
		return w.Flush()
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		jobs, err := queue.NewPgStore(pool).List(ctx, queue.Status(listStatus), listLimit)
		if err != nil {
			return err
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(jobs)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tSCHEDULED\tLAST ERROR")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
				j.ID, j.Type, j.Status, j.Attempts, j.MaxAttempts,
				j.ScheduledAt.Format(time.RFC3339), truncate(j.LastError, 60))
		}
		return w.Flush()
	},
}

var jobsRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a terminally failed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := queue.NewPgStore(pool).Retry(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("job requeued:", args[0])
		return nil
	},
}

var sweepOlderThan time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reclaim jobs stuck in processing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := queue.NewPgStore(pool).ReclaimStuck(ctx, sweepOlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("reclaimed %d stuck jobs\n", n)
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	jobsListCmd.Flags().StringVar(&listStatus, "status", "failed", "job status to list")
	jobsListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum rows")
	sweepCmd.Flags().DurationVar(&sweepOlderThan, "older-than", 10*time.Minute, "reclaim jobs locked longer than this")

	jobsCmd.AddCommand(jobsStatsCmd, jobsListCmd, jobsRetryCmd)
	rootCmd.AddCommand(jobsCmd, sweepCmd)
}
