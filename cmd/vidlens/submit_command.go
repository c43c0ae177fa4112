package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vidlens/internal/config"
	"vidlens/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		videoID      string
		noMotion     bool
		noTranscript bool
	)

	cmd := &cobra.Command{
		Use:   "submit <video>...",
		Short: "Queue videos for the daemon to analyze",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if videoID != "" && len(args) > 1 {
				return fmt.Errorf("--video-id applies to a single video")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve path: %w", err)
					}
					if _, err := os.Stat(path); err != nil {
						return fmt.Errorf("video %s: %w", arg, err)
					}
					job, err := store.NewJob(cmd.Context(), queue.NewJobParams{
						VideoID:       videoID,
						SourcePath:    path,
						RunMotion:     cfg.Analysis.Motion && !noMotion,
						RunTranscript: cfg.Analysis.Transcript && !noTranscript,
					})
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued job %d (%s) for %s\n", job.ID, job.JobID, path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&videoID, "video-id", "", "Caller-supplied video identifier")
	cmd.Flags().BoolVar(&noMotion, "no-motion", false, "Skip motion profiling")
	cmd.Flags().BoolVar(&noTranscript, "no-transcript", false, "Skip transcription and content flags")
	return cmd
}
