package engine

import (
	"context"

	"github.com/jlzhang001/skyloop/pkg/invoke"
)

// MapMaker performs one reconstruction pass.
type MapMaker interface {
	// Make runs the map-maker synchronously. A nil error means the tool
	// exited successfully; the controller still checks the output exists.
	Make(ctx context.Context, req invoke.MapRequest) (*invoke.MapResult, error)
}

// Introspector reads effective configuration values.
type Introspector interface {
	// Int returns the integer value of name in config, with the
	// map-maker's defaults applied.
	Int(ctx context.Context, name, config string) (int, error)
}

// Stacker builds the diagnostics cube.
type Stacker interface {
	// Stack writes a cube holding inputs as planes, in order, to out.
	Stack(ctx context.Context, inputs []string, out string) error
}

// Journal persists run history. Journal failures never fail a run.
type Journal interface {
	// StartRun records a run that is about to begin.
	StartRun(ctx context.Context, run *Run) error

	// RecordIteration records a completed iteration.
	RecordIteration(ctx context.Context, runID string, rec Record) error

	// FinishRun records the final state of a run.
	FinishRun(ctx context.Context, run *Run) error
}
