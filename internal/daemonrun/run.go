package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"vidlens/internal/analysis"
	"vidlens/internal/config"
	"vidlens/internal/daemon"
	"vidlens/internal/dispatch"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/notifications"
	"vidlens/internal/preflight"
	"vidlens/internal/queue"
	"vidlens/internal/services/whisper"
	"vidlens/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the vidlens daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", filepath.Join(cfg.Paths.LogDir, "vidlens.log")},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(signalCtx, logger, cfg)

	pidPath := filepath.Join(cfg.Paths.StateDir, "vidlens.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	if reset, err := store.ResetStuckProcessing(signalCtx); err != nil {
		logging.WarnWithContext(logger, "failed to reset interrupted jobs", "queue_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "interrupted jobs wait for heartbeat reclaim"),
		)
	} else if reset > 0 {
		logger.Info("returned interrupted jobs to pending", logging.Int64("count", reset))
	}

	var model *whisper.Model
	if cfg.Transcription.Enabled {
		model = whisper.NewModel(whisper.ConfigFromSettings(cfg), whisper.WithLogger(logger))
		defer func() {
			if err := model.Close(); err != nil {
				logger.Warn("failed to close speech model", logging.Error(err))
			}
		}()
	}

	pipeline, err := analysis.NewFromConfig(cfg, model, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("build analysis pipeline: %w", err)
	}

	recorder := metrics.New()
	manager := workflow.NewManager(cfg, store, pipeline, logger,
		workflow.WithNotifier(notifications.NewService(cfg)),
		workflow.WithMetrics(recorder),
	)
	consumer := dispatch.NewConsumer(cfg.Dispatch, dispatch.NewHandler(store, cfg.Analysis, logger, recorder), logger)

	d, err := daemon.New(cfg, store, logger, manager,
		daemon.WithDispatch(consumer),
		daemon.WithMetrics(recorder),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("vidlens daemon shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("transcription_enabled", cfg.Transcription.Enabled),
		logging.String("classifier", cfg.Classifier.Strategy),
		logging.Bool("dispatch_enabled", strings.TrimSpace(cfg.Dispatch.NATSURL) != ""),
		logging.String("metrics_bind", cfg.Metrics.Bind),
	}
	for _, status := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "jobs depending on this check may fail"),
		)
	}
}
