package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidlens/internal/daemon"
	"vidlens/internal/deps"
	"vidlens/internal/preflight"
	"vidlens/internal/queue"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies, directories and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			fmt.Fprintln(out, renderSectionHeader("Dependencies", colorize))
			statuses := preflight.CheckSystemDeps(cfg)
			for _, status := range statuses {
				kind, message := dependencyLine(status)
				if kind == statusError {
					problems++
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("Environment", colorize))
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					problems++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
			locked, err := daemon.IsLocked(cfg)
			switch {
			case err != nil:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, err.Error(), colorize))
			case locked:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "running", colorize))
			default:
				fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
			}

			store, err := queue.Open(cfg)
			if err != nil {
				problems++
				fmt.Fprintln(out, renderStatusLine("Queue", statusError, err.Error(), colorize))
			} else {
				health, herr := store.Health(cmd.Context())
				_ = store.Close()
				if herr != nil {
					problems++
					fmt.Fprintln(out, renderStatusLine("Queue", statusError, herr.Error(), colorize))
				} else {
					fmt.Fprintln(out, renderStatusLine("Queue", statusOK, fmt.Sprintf(
						"%d total, %d pending, %d processing, %d failed",
						health.Total, health.Pending, health.Processing, health.Failed), colorize))
				}
			}

			if problems > 0 {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}
}

func dependencyLine(status deps.Status) (statusKind, string) {
	if status.Available {
		return statusOK, status.Path
	}
	message := status.Detail
	if message == "" {
		message = "not found"
	}
	message = fmt.Sprintf("%s (%s)", message, status.Command)
	if status.Optional {
		return statusWarn, message
	}
	return statusError, message
}
