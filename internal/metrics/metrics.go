// Package metrics exposes Prometheus collectors for analysis jobs.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidlens/internal/logging"
)

// Job outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRequeued  = "requeued"
)

// Recorder collects job metrics into a registry.
type Recorder struct {
	registry *prometheus.Registry

	jobsTotal        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	motionPercentage prometheus.Histogram
	activeJobs       prometheus.Gauge
	intakeTotal      *prometheus.CounterVec
}

// New registers the vidlens collectors on a fresh registry together with the
// Go runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidlens_jobs_total",
			Help: "Analysis jobs finished, by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidlens_job_duration_seconds",
			Help:    "Wall time of analysis jobs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidlens_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		motionPercentage: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidlens_motion_percentage",
			Help:    "Distribution of motion_percentage across completed jobs.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vidlens_active_jobs",
			Help: "Jobs currently being analyzed.",
		}),
		intakeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidlens_intake_messages_total",
			Help: "Dispatch messages received, by result.",
		}, []string{"result"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// JobStarted increments the active job gauge.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.activeJobs.Inc()
}

// JobFinished records a finished job. kind is empty for successful jobs.
func (r *Recorder) JobFinished(outcome, kind string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.activeJobs.Dec()
	r.jobsTotal.WithLabelValues(outcome, kind).Inc()
	r.jobDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveStage records time spent in a pipeline stage.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	if r == nil || stage == "" {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveMotion records the motion percentage of a completed analysis.
func (r *Recorder) ObserveMotion(percentage float64) {
	if r == nil {
		return
	}
	r.motionPercentage.Observe(percentage)
}

// IntakeMessage counts a dispatch message by result (enqueued, invalid, retry).
func (r *Recorder) IntakeMessage(result string) {
	if r == nil {
		return
	}
	r.intakeTotal.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve listens on bind and serves /metrics until ctx is cancelled.
func (r *Recorder) Serve(ctx context.Context, bind string, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", logging.String("bind", listener.Addr().String()))
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
