package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for skyloop runs.
// A Metrics built from a disabled config is a no-op.
type Metrics struct {
	config MetricsConfig

	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec

	iterations       prometheus.Counter
	overridesEmitted *prometheus.CounterVec
	documentsWritten prometheus.Counter
	artifactsClaimed *prometheus.CounterVec

	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DurationBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of whole runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of external tool invocations",
			},
			[]string{"tool", "status"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Duration of external tool invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"tool"},
		),
		iterations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "iterations_completed_total",
				Help:      "Total number of map-maker passes completed",
			},
		),
		overridesEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overrides_emitted_total",
				Help:      "Lifecycle overrides added to the accumulated configuration",
			},
			[]string{"key"},
		),
		documentsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_documents_written_total",
				Help:      "Configuration documents written to the working area",
			},
		),
		artifactsClaimed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifacts_claimed_total",
				Help:      "Side artifacts claimed after the first pass",
			},
			[]string{"kind"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.invocations,
		m.invocationDuration,
		m.iterations,
		m.overridesEmitted,
		m.documentsWritten,
		m.artifactsClaimed,
		m.errorsByClass,
	)

	return m, nil
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordInvocation records one external tool invocation.
func (m *Metrics) RecordInvocation(tool string, duration time.Duration, err error) {
	if m == nil || m.invocations == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.invocations.WithLabelValues(tool, status).Inc()
	m.invocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordIteration counts a completed pass.
func (m *Metrics) RecordIteration() {
	if m == nil || m.iterations == nil {
		return
	}
	m.iterations.Inc()
}

// RecordOverride counts a lifecycle override emission.
func (m *Metrics) RecordOverride(key string) {
	if m == nil || m.overridesEmitted == nil {
		return
	}
	m.overridesEmitted.WithLabelValues(key).Inc()
}

// RecordDocument counts a configuration document write.
func (m *Metrics) RecordDocument() {
	if m == nil || m.documentsWritten == nil {
		return
	}
	m.documentsWritten.Inc()
}

// RecordClaimed counts claimed side artifacts of the given kind.
func (m *Metrics) RecordClaimed(kind string, n int) {
	if m == nil || m.artifactsClaimed == nil {
		return
	}
	m.artifactsClaimed.WithLabelValues(kind).Add(float64(n))
}

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Gatherer returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes all metrics to the configured textfile path.
// It is a no-op when metrics are disabled or no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.TextfilePath, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Timer measures the wall time of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer was started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
