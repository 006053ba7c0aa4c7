package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/models"

	"github.com/spf13/cobra"
)

// withApp loads config, builds the engine and runs fn against it.
func withApp(integrations bool, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, &logger, integrations)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run scheduled jobs",
	}
	cmd.AddCommand(newJobsProcessCmd())
	cmd.AddCommand(newJobsListCmd())
	cmd.AddCommand(newJobsRequeueCmd())
	cmd.AddCommand(newJobsHealthCmd())
	return cmd
}

func newJobsProcessCmd() *cobra.Command {
	var limit int
	c := &cobra.Command{
		Use:   "process",
		Short: "Run one pass over due jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(ctx context.Context, a *app) error {
				res, err := a.trigger.RunJobs(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	c.Flags().IntVar(&limit, "limit", 0, "maximum jobs to run (0 uses jobs.batch_size)")
	return c
}

func newJobsListCmd() *cobra.Command {
	var (
		bookingID int64
		status    string
		jobType   string
		limit     int
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := models.JobFilter{
				Status: models.JobStatus(status),
				Type:   models.JobType(jobType),
				Limit:  limit,
			}
			if bookingID > 0 {
				filter.BookingID = &bookingID
			}
			return withApp(false, func(ctx context.Context, a *app) error {
				list, err := a.proc.List(ctx, filter)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tBOOKING\tTYPE\tSTATUS\tRUN AT\tATTEMPTS\tLAST ERROR")
				for _, j := range list {
					booking := "-"
					if j.BookingID != nil {
						booking = strconv.FormatInt(*j.BookingID, 10)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
						j.ID, booking, j.Type, j.Status, j.RunAt.Format(time.RFC3339), j.Attempts, j.LastError)
				}
				return w.Flush()
			})
		},
	}
	c.Flags().Int64Var(&bookingID, "booking-id", 0, "only jobs of this booking")
	c.Flags().StringVar(&status, "status", "", "pending, completed, failed or cancelled")
	c.Flags().StringVar(&jobType, "type", "", "job type")
	c.Flags().IntVar(&limit, "limit", 100, "maximum rows")
	return c
}

func newJobsRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Reset a failed job to pending with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			return withApp(false, func(ctx context.Context, a *app) error {
				if err := a.proc.Requeue(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "job %d requeued\n", id)
				return nil
			})
		},
	}
}

func newJobsHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *app) error {
				h, err := a.proc.Health(ctx)
				if err != nil {
					return err
				}
				return printJSON(h)
			})
		},
	}
}

func newLifecycleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Run lifecycle maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "advance",
		Short: "Advance due bookings and repair missing standing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *app) error {
				run, err := a.trigger.RunLifecycle(ctx)
				if err != nil {
					return err
				}
				return printJSON(run)
			})
		},
	})
	return cmd
}

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot to the backup directory and prune old ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *app) error {
				backups := database.NewBackupService(a.db, a.cfg.Backup, a.cfg.BackupInterval(), a.logger)
				path, err := backups.PerformBackup(ctx)
				if err != nil {
					return err
				}
				removed, err := backups.CleanupOldBackups(time.Now())
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "backup written to %s (%d old removed)\n", path, removed)
				return nil
			})
		},
	})
	return cmd
}
