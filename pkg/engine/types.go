package engine

import (
	"time"

	"github.com/jlzhang001/skyloop/pkg/config"
)

// SubModel is a signal component with its own zero-masking lifecycle.
type SubModel string

const (
	SubModelAST SubModel = "ast"
	SubModelCOM SubModel = "com"
	SubModelFLT SubModel = "flt"
)

// SubModels lists the sub-models in evaluation order.
var SubModels = []SubModel{SubModelAST, SubModelCOM, SubModelFLT}

// Counters are the lifecycle controls of one sub-model, read once from the
// effective base configuration.
type Counters struct {
	// DisableAfter switches zero-masking off once this many iterations
	// have run. Zero or negative means inactive.
	DisableAfter int `json:"disable_after"`

	// SkipLast is non-zero when the user's configuration suppresses
	// zero-masking on the last iteration.
	SkipLast int `json:"skip_last"`

	// FreezeAfter freezes the mask once this many iterations have run.
	// Zero or negative means inactive.
	FreezeAfter int `json:"freeze_after"`
}

// Bundle is the cleaned time-series data and noise-model files written by
// the first iteration and reused by all later ones.
type Bundle struct {
	// Cleaned are the cleaned time-series files, relocated into the
	// working area.
	Cleaned []string `json:"cleaned"`

	// Ext are the noise-model files. Unlike Cleaned they are not moved
	// into the working area: ext.import reads them from the tool's working
	// directory, so they stay there and are tracked for cleanup.
	Ext []string `json:"ext"`
}

// Empty reports whether the bundle holds no cleaned data.
func (b Bundle) Empty() bool {
	return len(b.Cleaned) == 0
}

// Record describes one completed iteration.
type Record struct {
	// Index is the 1-based iteration number.
	Index int `json:"index"`

	// Role is the configuration role used.
	Role string `json:"role"`

	// Config is the path of the configuration document used.
	Config string `json:"config"`

	// ConfigIndex is the document number (0 for conf0).
	ConfigIndex int `json:"config_index"`

	// Output is the map written by the iteration.
	Output string `json:"output"`

	// InitialSky is the map the iteration started from, if any.
	InitialSky string `json:"initial_sky,omitempty"`

	// Last is true for the final iteration.
	Last bool `json:"last"`

	// Overrides are the accumulated overrides in effect.
	Overrides []config.Entry `json:"overrides,omitempty"`

	// Duration is the wall time of the map-maker invocation.
	Duration time.Duration `json:"duration"`
}

// RunStatus is the state of a run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusSucceeded   RunStatus = "succeeded"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is the journaled summary of one execution.
type Run struct {
	ID          string     `json:"id"`
	In          string     `json:"in"`
	Out         string     `json:"out"`
	Iterations  int        `json:"iterations"`
	Config      string     `json:"config"`
	Workspace   string     `json:"workspace"`
	Status      RunStatus  `json:"status"`
	Completed   int        `json:"completed"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Result is what a completed run produced.
type Result struct {
	RunID     string   `json:"run_id"`
	Output    string   `json:"output"`
	IterMap   string   `json:"itermap,omitempty"`
	Records   []Record `json:"records"`
	Bundle    Bundle   `json:"bundle"`
	Documents []string `json:"documents"`
}
