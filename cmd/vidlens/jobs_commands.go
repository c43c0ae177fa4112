package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidlens/internal/config"
	"vidlens/internal/queue"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage the analysis queue",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsStatusCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsRetryCommand(ctx))
	cmd.AddCommand(newJobsRemoveCommand(ctx))
	cmd.AddCommand(newJobsClearCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := queue.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						fmt.Sprintf("%.0f%%", job.Progress*100),
						jobLabel(job),
						job.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Status", "Progress", "Video", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats))
				for _, status := range queue.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id|job-id>",
		Short: "Show a job and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				job, err := findJob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOut {
					if job.ResultJSON == "" {
						return fmt.Errorf("job %d has no result", job.ID)
					}
					var buf bytes.Buffer
					if err := json.Indent(&buf, []byte(job.ResultJSON), "", "  "); err != nil {
						return fmt.Errorf("format result: %w", err)
					}
					buf.WriteByte('\n')
					_, err := buf.WriteTo(out)
					return err
				}
				fmt.Fprint(out, renderJob(job))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print only the stored result document")
	return cmd
}

func newJobsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Return failed jobs to pending (all failed jobs when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d job(s)\n", count)
				return nil
			})
		},
	}
}

func newJobsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := store.Remove(cmd.Context(), id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Removed job %d\n", id)
					} else {
						fmt.Fprintf(out, "Job %d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var completed, failed, all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !completed && !failed && !all {
				return fmt.Errorf("choose --completed, --failed or --all")
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var (
					count int64
					err   error
				)
				switch {
				case all:
					count, err = store.Clear(cmd.Context())
				case completed && failed:
					var n int64
					if count, err = store.ClearCompleted(cmd.Context()); err == nil {
						n, err = store.ClearFailed(cmd.Context())
						count += n
					}
				case completed:
					count, err = store.ClearCompleted(cmd.Context())
				default:
					count, err = store.ClearFailed(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s)\n", count)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Remove completed jobs")
	cmd.Flags().BoolVar(&failed, "failed", false, "Remove failed jobs")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every job")
	return cmd
}

// findJob resolves a numeric row id first and falls back to the external job id.
func findJob(ctx context.Context, store *queue.Store, ref string) (*queue.Job, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		job, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}
	}
	job, err := store.GetByJobID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s not found", ref)
	}
	return job, nil
}

func parseJobIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func jobLabel(job *queue.Job) string {
	if job.VideoID != "" {
		return job.VideoID
	}
	return job.SourcePath
}

func renderJob(job *queue.Job) string {
	progress := fmt.Sprintf("%.0f%%", job.Progress*100)
	if detail := strings.TrimSpace(job.ProgressStage + " " + job.ProgressMessage); detail != "" {
		progress += " " + detail
	}
	rows := [][2]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Job ID", job.JobID},
		{"Video ID", job.VideoID},
		{"Source", job.SourcePath},
		{"Status", string(job.Status)},
		{"Motion", yesNo(job.RunMotion)},
		{"Transcript", yesNo(job.RunTranscript)},
		{"Progress", progress},
		{"Attempts", strconv.Itoa(job.Attempts)},
		{"Created", job.CreatedAt.Local().Format(time.DateTime)},
	}
	if job.CompletedAt != nil {
		rows = append(rows, [2]string{"Completed", job.CompletedAt.Local().Format(time.DateTime)})
	}
	if job.ErrorKind != "" || job.ErrorMessage != "" {
		rows = append(rows, [2]string{"Error", fmt.Sprintf("%s: %s", job.ErrorKind, job.ErrorMessage)})
	}
	rows = append(rows,
		[2]string{"Thumbnail", job.ThumbnailPath},
		[2]string{"Result", truncateText(job.ResultJSON, 160)},
	)
	return renderFields(rows)
}
