package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidlens/internal/analysis"
	"vidlens/internal/logging"
	"vidlens/internal/services"
	"vidlens/internal/services/whisper"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut      bool
		noMotion     bool
		noTranscript bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze a video and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			logger := ctx.cliLogger(verbose)

			req := analysis.DefaultRequest(cfg, filepath.Base(path), path)
			if noMotion {
				req.Motion = false
			}
			if noTranscript {
				req.Transcript = false
			}
			if !req.Motion && !req.Transcript {
				return fmt.Errorf("nothing to do: both motion and transcript are disabled")
			}

			var model *whisper.Model
			if req.Transcript {
				model = whisper.NewModel(whisper.ConfigFromSettings(cfg), whisper.WithLogger(logger))
				defer func() {
					if err := model.Close(); err != nil {
						logger.Warn("failed to close speech model", logging.Error(err))
					}
				}()
			}

			pipeline, err := analysis.NewFromConfig(cfg, model, logger)
			if err != nil {
				return err
			}

			var progress analysis.ProgressFunc
			if !jsonOut {
				sampler := logging.NewProgressSampler(25)
				errOut := cmd.ErrOrStderr()
				progress = func(p analysis.Progress) {
					if sampler.ShouldLog(p.Fraction*100, "") {
						fmt.Fprintf(errOut, "%3.0f%% %s\n", p.Fraction*100, p.Message)
					}
				}
			}

			result, err := pipeline.Run(cmd.Context(), req, progress)
			if err != nil {
				return fmt.Errorf("%s: %w", services.KindOf(err), err)
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderResult(path, result))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result document as JSON")
	cmd.Flags().BoolVar(&noMotion, "no-motion", false, "Skip motion profiling")
	cmd.Flags().BoolVar(&noTranscript, "no-transcript", false, "Skip transcription and content flags")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func renderResult(path string, result *analysis.Result) string {
	rows := [][2]string{{"Video", path}}
	if result.Metadata {
		rows = append(rows,
			[2]string{"Duration", fmt.Sprintf("%.2fs", result.Duration)},
			[2]string{"FPS", fmt.Sprintf("%.3f", result.FPS)},
			[2]string{"Frames", fmt.Sprintf("%d", result.FrameCount)},
		)
	}
	if result.Motion {
		rows = append(rows,
			[2]string{"Motion", fmt.Sprintf("%.2f%%", result.MotionPercentage)},
			[2]string{"Intensity", fmt.Sprintf("min %d / max %d / mean %.2f",
				result.MotionIntensity.Min, result.MotionIntensity.Max, result.MotionIntensity.Mean)},
		)
		if result.Truncated {
			rows = append(rows, [2]string{"Truncated", strings.TrimSpace("yes " + result.DecodeError)})
		}
	}
	rows = append(rows, [2]string{"Thumbnail", result.ThumbnailPath})
	if result.Transcript != nil {
		rows = append(rows,
			[2]string{"Language", result.Transcript.LanguageName()},
			[2]string{"Transcript", truncateText(result.Transcript.Text, 120)},
			[2]string{"Content flags", fmt.Sprintf("%d", len(result.ContentFlags))},
		)
	}
	out := renderFields(rows)
	if len(result.ContentFlags) > 0 {
		flagRows := make([][]string, 0, len(result.ContentFlags))
		for _, flag := range result.ContentFlags {
			flagRows = append(flagRows, []string{
				flag.ContentType,
				fmt.Sprintf("%.2f", flag.Confidence),
				truncateText(flag.TextSpan, 80),
			})
		}
		out += renderTable([]string{"Type", "Confidence", "Text"}, flagRows,
			[]columnAlignment{alignLeft, alignRight, alignLeft})
	}
	return out
}

func truncateText(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
