// Package telemetry carries the observability of a skyloop run: structured
// logging with zerolog, OpenTelemetry tracing and Prometheus metrics.
//
// A run builds one Telemetry from a Config:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/skyloop.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Logging
//
// Loggers are derived per component and carry the run ID, the iteration
// number and the tool name as fields:
//
//	logger := tel.Logger.NewComponentLogger("controller").WithRunID(id)
//	logger.WithIteration(3).Info("Iteration started")
//
// # Tracing
//
// A run span contains one span per iteration, which in turn contains one
// span per external tool invocation. Tracing is disabled by default; the
// stdout and otlp exporters are available.
//
// # Metrics
//
// skyloop is a batch process, so metrics are not scraped. When
// Metrics.TextfilePath is set the registry is written in the Prometheus
// text format at shutdown, for the node_exporter textfile collector.
// All metric methods are safe on a disabled or nil Metrics.
package telemetry
