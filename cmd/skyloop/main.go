package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jlzhang001/skyloop/cmd/skyloop/commands"
	"github.com/jlzhang001/skyloop/pkg/engine"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The running map-maker pass is never killed; the loop stops before
	// the next one starts.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn().Msg("Received interrupt signal, stopping after the current pass...")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		ev := log.Error().Err(err)
		var loopErr *engine.LoopError
		if errors.As(err, &loopErr) {
			ev = ev.Str("class", string(loopErr.Class))
			if loopErr.Diagnostics != "" {
				ev = ev.Str("diagnostics", loopErr.Diagnostics)
			}
		}
		ev.Msg("skyloop failed")
		os.Exit(1)
	}
}

// setupLogging configures the global zerolog logger used before the run's
// own telemetry is built.
func setupLogging() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch os.Getenv("SKYLOOP_LOG_LEVEL") {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
