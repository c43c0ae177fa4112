package preflight

import (
	"context"
	"strings"

	"vidlens/internal/classify"
	"vidlens/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Thumbnail directory", cfg.Paths.ThumbnailDir),
	}
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	if cfg.Transcription.Enabled && strings.EqualFold(strings.TrimSpace(cfg.Classifier.Strategy), classify.StrategyLLM) {
		results = append(results, CheckLLM(ctx, "Classifier LLM", cfg.GetLLM()))
	}

	if strings.TrimSpace(cfg.Dispatch.NATSURL) != "" {
		results = append(results, CheckNATS(ctx, cfg.Dispatch.NATSURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
