package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/stores"
	"github.com/jlzhang001/skyloop/pkg/telemetry"
)

var (
	// Global flags
	paramsPath    string
	verbose       bool
	jsonOutput    bool
	logFormat     string
	journalPath   string
	metricsFile   string
	traceExporter string
	traceEndpoint string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skyloop",
		Short: "Iterative map-maker driver",
		Long: `skyloop drives the SMURF map-maker one iteration at a time.

The first pass cleans the raw time-series and exports the cleaned data and
the extinction model. Every later pass starts from the cleaned data and
the map produced by the previous pass, so the sky estimate is refined
between passes. Per-model thresholds (zero_niter, zero_freeze,
zero_notlast) are honoured across passes by emitting configuration
overrides at the right iteration.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&paramsPath, "params", "p", "", "YAML run parameters file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&journalPath, "journal", "", "SQLite run journal (default $SKYLOOP_JOURNAL)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file at exit")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "none", "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP collector endpoint")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// newTelemetry builds the process telemetry from the global flags and env.
func newTelemetry(env config.Env, version string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}

	cfg.Logging.Level = env.LogLevel
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = logFormat

	cfg.Tracing.Exporter = traceExporter
	cfg.Tracing.Enabled = traceExporter != "" && traceExporter != "none"
	cfg.Tracing.Endpoint = traceEndpoint

	cfg.Metrics.TextfilePath = metricsFile

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}
	return tel, nil
}

// openJournal opens the run journal named by --journal or SKYLOOP_JOURNAL.
// It returns nil when neither is set.
func openJournal(ctx context.Context, env config.Env) (*stores.SQLiteStore, error) {
	path := journalPath
	if path == "" {
		path = env.Journal
	}
	if path == "" {
		return nil, nil
	}
	store, err := stores.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return store, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
