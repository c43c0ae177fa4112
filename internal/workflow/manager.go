package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vidlens/internal/analysis"
	"vidlens/internal/config"
	"vidlens/internal/logging"
	"vidlens/internal/metrics"
	"vidlens/internal/notifications"
	"vidlens/internal/queue"
)

// Analyzer runs the analysis pipeline for one request. *analysis.Pipeline
// satisfies it.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request, progress analysis.ProgressFunc) (*analysis.Result, error)
}

// Manager coordinates queue processing across a pool of workers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	analyzer     Analyzer
	logger       *slog.Logger
	notifier     notifications.Service
	metrics      *metrics.Recorder
	pollInterval time.Duration
	workers      int
	progressStep float64

	heartbeat *HeartbeatMonitor

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	queueActive bool
	queueStart  time.Time
	processed   int
	failed      int
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithMetrics records job outcomes on rec.
func WithMetrics(rec *metrics.Recorder) ManagerOption {
	return func(m *Manager) {
		m.metrics = rec
	}
}

// WithPollInterval overrides the queue poll interval from configuration.
func WithPollInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.pollInterval = interval
		}
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, analyzer Analyzer, logger *slog.Logger, opts ...ManagerOption) *Manager {
	logger = logging.NewComponentLogger(logger, "workflow")
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		analyzer:     analyzer,
		logger:       logger,
		notifier:     notifications.NewService(cfg),
		pollInterval: pollInterval,
		workers:      workers,
		progressStep: 5,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
