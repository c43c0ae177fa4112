package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vidlens/internal/config"
	"vidlens/internal/dispatch"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/queue"
	"vidlens/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	consumer *dispatch.Consumer
	metrics  *metrics.Recorder

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Workflow      workflow.StatusSummary
	QueueDBPath   string
	LockFilePath  string
	DispatchOn    bool
	MetricsListen string
}

// Option configures optional daemon services.
type Option func(*Daemon)

// WithDispatch starts consumer alongside the workflow when it is enabled.
func WithDispatch(consumer *dispatch.Consumer) Option {
	return func(d *Daemon) { d.consumer = consumer }
}

// WithMetrics serves rec on the configured metrics bind address.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(d *Daemon) { d.metrics = rec }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the workflow manager, the
// dispatch consumer and the metrics listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidlens daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	if d.consumer != nil && d.consumer.Enabled() {
		d.goService(runCtx, "dispatch", d.consumer.Run)
	}
	if d.metrics != nil && d.cfg.Metrics.Bind != "" {
		bind := d.cfg.Metrics.Bind
		d.goService(runCtx, "metrics", func(ctx context.Context) error {
			return d.metrics.Serve(ctx, bind, d.logger)
		})
	}

	d.running.Store(true)
	d.logger.Info("vidlens daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) goService(ctx context.Context, name string, run func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(d.logger, "daemon service stopped", "daemon_service_failed",
				logging.String("service", name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check "+name+" configuration"),
			)
		}
	}()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vidlens daemon stopped")
}

// Close stops the daemon and releases the queue store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		DispatchOn:   d.consumer != nil && d.consumer.Enabled(),
	}
	if d.metrics != nil {
		status.MetricsListen = d.cfg.Metrics.Bind
	}
	return status
}

// IsLocked reports whether another process currently holds the daemon lock
// at cfg's lock path.
func IsLocked(cfg *config.Config) (bool, error) {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
