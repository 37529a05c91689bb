package engine

import (
	"context"
	"os"

	"github.com/google/uuid"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/telemetry"
	"github.com/jlzhang001/skyloop/pkg/workspace"
)

// SessionOptions configures a session.
type SessionOptions struct {
	// Root is the directory the working area is created in. Empty means
	// os.TempDir.
	Root string

	Logger *telemetry.Logger
}

// Session is the context of one run. It owns the working area and the
// cleanup coordinator; every component of the run reaches shared state
// through it.
type Session struct {
	// ID identifies the run.
	ID string

	// Params are the validated run parameters with absolute paths.
	Params config.Params

	// WorkDir is the directory the tools run in.
	WorkDir string

	Workspace *workspace.Workspace
	Cleanup   *workspace.Coordinator

	logger *telemetry.Logger
}

// Open validates p, checks that the user's inputs exist and creates the
// working area. Parameter and input failures are returned as input errors
// before anything is created.
func Open(p config.Params, opts SessionOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}

	if err := p.Validate(); err != nil {
		return nil, NewInputError("invalid parameters", err).WithCode(ErrCodeInvalidParams)
	}
	p, err := p.Absolute()
	if err != nil {
		return nil, NewInputError("invalid parameters", err).WithCode(ErrCodeInvalidParams)
	}
	if err := p.CheckInputs(); err != nil {
		return nil, NewInputError("missing input", err).WithCode(ErrCodeMissingInput)
	}

	workDir := p.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, NewInternalError("resolve working directory", err).WithCode(ErrCodeWorkspace)
		}
	}

	ws, err := workspace.New(opts.Root)
	if err != nil {
		return nil, NewInternalError("create working area", err).WithCode(ErrCodeWorkspace)
	}

	id := uuid.NewString()
	logger = logger.WithRunID(id)
	logger.Zerolog().Debug().Str("workspace", ws.Dir()).Str("workdir", workDir).Msg("Session opened")

	return &Session{
		ID:        id,
		Params:    p,
		WorkDir:   workDir,
		Workspace: ws,
		Cleanup:   workspace.NewCoordinator(ws, p.Retain, logger),
		logger:    logger,
	}, nil
}

// Close tears down the run's transient state. It is safe to call more than
// once; only the first call does anything.
func (s *Session) Close() workspace.CleanupReport {
	return s.Cleanup.Cleanup()
}

// Logger returns the session logger.
func (s *Session) Logger() *telemetry.Logger {
	return s.logger
}

// Execute opens a session, runs fn in it and tears the session down on
// every exit path: success, failure, cancellation or panic. A panic is
// re-raised after cleanup.
func Execute(ctx context.Context, p config.Params, opts SessionOptions, fn func(context.Context, *Session) error) (report workspace.CleanupReport, err error) {
	s, err := Open(p, opts)
	if err != nil {
		return report, err
	}

	defer func() {
		if r := recover(); r != nil {
			s.Close()
			panic(r)
		}
	}()

	err = fn(ctx, s)
	report = s.Close()
	return report, err
}
