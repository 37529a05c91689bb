package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/invoke"
	"github.com/jlzhang001/skyloop/pkg/telemetry"
	"github.com/jlzhang001/skyloop/pkg/tracker"
)

// Deps are the collaborators of a controller. MapMaker and Introspector
// are required; Stacker is required when a diagnostics cube is requested.
type Deps struct {
	MapMaker     MapMaker
	Introspector Introspector
	Stacker      Stacker
	Journal      Journal

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer
}

// Controller runs the iteration loop of one session.
type Controller struct {
	session *Session
	params  config.Params
	extra   []string
	deps    Deps
	logger  *telemetry.Logger

	composer  *config.Composer
	lifecycle *Lifecycle
	acc       *config.Overrides

	current string
	bundle  Bundle
	records []Record
	run     *Run
}

// NewController returns a controller for s.
func NewController(s *Session, deps Deps) (*Controller, error) {
	if deps.MapMaker == nil || deps.Introspector == nil {
		return nil, errors.New("map-maker and introspector are required")
	}
	if s.Params.IterMap != "" && deps.Stacker == nil {
		return nil, errors.New("a stacker is required for the diagnostics cube")
	}

	extra, err := invoke.SplitFields(s.Params.Extra)
	if err != nil {
		return nil, NewInputError("invalid extra options", err).WithCode(ErrCodeInvalidParams)
	}

	logger := deps.Logger
	if logger == nil {
		logger = s.Logger()
	}

	return &Controller{
		session:  s,
		params:   s.Params,
		extra:    extra,
		deps:     deps,
		logger:   logger.NewComponentLogger("controller").WithRunID(s.ID),
		composer: config.NewComposer(s.Workspace, s.Params.Config),
		acc:      config.NewOverrides(),
	}, nil
}

// Run performs every iteration and, if requested, assembles the
// diagnostics cube. It does not clean up; the session does.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	n := c.params.Iterations
	ctx, span := c.deps.Tracer.StartRunSpan(ctx, c.session.ID, n)
	defer span.End()

	timer := telemetry.NewTimer()
	c.startJournal(ctx)
	c.logger.Zerolog().Info().
		Int("iterations", n).
		Str("workspace", c.session.Workspace.Dir()).
		Msg("Starting run")

	err := c.loop(ctx)

	status := RunStatusSucceeded
	switch {
	case IsInterrupted(err):
		status = RunStatusInterrupted
	case err != nil:
		status = RunStatusFailed
	}
	c.finishJournal(ctx, status, err)
	c.deps.Metrics.RecordRunCompleted(string(status), timer.Duration())

	if err != nil {
		c.deps.Metrics.RecordError(string(ClassOf(err)))
		telemetry.RecordError(span, err)
		return c.result(), err
	}

	telemetry.RecordSuccess(span)
	c.logger.Zerolog().Info().
		Str("output", c.params.Out).
		Dur("duration", timer.Duration()).
		Msg("Run completed")
	return c.result(), nil
}

func (c *Controller) loop(ctx context.Context) error {
	if err := c.checkpoint(ctx, 1); err != nil {
		return err
	}

	lc, err := ReadLifecycle(ctx, c.deps.Introspector, c.params.Config, c.params.LastMasking)
	if err != nil {
		return c.failure(ctx, 0, "configecho", "reading lifecycle controls failed", err).
			WithCode(ErrCodeIntrospection)
	}
	c.lifecycle = lc
	for _, m := range SubModels {
		cnt := lc.Counters(m)
		c.logger.Zerolog().Debug().
			Str("model", string(m)).
			Int("zero_niter", cnt.DisableAfter).
			Int("zero_notlast", cnt.SkipLast).
			Int("zero_freeze", cnt.FreezeAfter).
			Msg("Lifecycle controls")
	}

	if err := c.first(ctx); err != nil {
		return err
	}
	for i := 2; i <= c.params.Iterations; i++ {
		if err := c.iterate(ctx, i); err != nil {
			return err
		}
	}

	if c.params.IterMap != "" {
		return c.assemble(ctx)
	}
	return nil
}

// first runs iteration 1 on the raw input and collects the reusable bundle.
func (c *Controller) first(ctx context.Context) error {
	c.logger.Info("Iteration 1...")
	ctx, span := c.deps.Tracer.StartIterationSpan(ctx, 1, config.RoleFirst.String())
	defer span.End()

	doc, _, err := c.composer.Compose(1, config.RoleFirst, nil)
	if err != nil {
		return NewInternalError("compose configuration", err).WithCode(ErrCodeDocument).WithIteration(1)
	}
	c.deps.Metrics.RecordDocument()

	patterns := []string{c.params.CleanedPattern, c.params.ExtPattern}
	snap, err := tracker.Take(c.session.WorkDir, patterns)
	if err != nil {
		return NewInternalError("snapshot working directory", err).WithIteration(1)
	}
	watcher := c.watch(patterns)

	out := c.outputFor(1)
	res, dur, invokeErr := c.invoke(ctx, config.RoleFirst, invoke.MapRequest{
		Iteration: 1,
		InGroup:   c.params.In,
		Out:       out,
		Config:    doc.Path,
		PixSize:   c.params.PixSize,
		Ref:       c.params.Ref,
		Mask2:     c.params.Mask2,
		Mask3:     c.params.Mask3,
		Extra:     c.extra,
	})

	cleaned, ext, claimErr := c.claim(snap, c.unwatch(watcher), res)
	if invokeErr != nil {
		// Whatever the failed pass left behind is still ours to remove.
		c.session.Cleanup.Track(cleaned...)
		c.session.Cleanup.Track(ext...)
		telemetry.RecordError(span, invokeErr)
		return invokeErr
	}
	if claimErr != nil {
		return NewInternalError("identify exported files", claimErr).WithIteration(1)
	}

	c.session.Cleanup.Track(ext...)
	c.deps.Metrics.RecordClaimed("ext", len(ext))
	c.deps.Metrics.RecordClaimed("cleaned", len(cleaned))

	moved, err := c.relocate(cleaned)
	if err != nil {
		return err
	}
	c.bundle = Bundle{Cleaned: moved, Ext: ext}
	c.logger.Zerolog().Debug().
		Strs("cleaned", moved).
		Strs("ext", ext).
		Msg("Reusable bundle collected")

	if c.params.Iterations > 1 && c.bundle.Empty() {
		return NewInvocationError("map-maker exported no cleaned time-series data", nil).
			WithCode(ErrCodeMissingBundle).
			WithIteration(1).
			WithTool("makemap")
	}

	c.record(ctx, Record{
		Index:       1,
		Role:        config.RoleFirst.String(),
		Config:      doc.Path,
		ConfigIndex: doc.Index,
		Output:      out,
		Last:        c.params.Iterations == 1,
		Duration:    dur,
	})
	telemetry.RecordSuccess(span)
	return nil
}

// iterate runs iteration i >= 2 on the reusable bundle, starting from the
// previous iteration's map.
func (c *Controller) iterate(ctx context.Context, i int) error {
	n := c.params.Iterations
	role := config.RoleFor(i, n)
	c.logger.Infof("Iteration %d...", i)
	ctx, span := c.deps.Tracer.StartIterationSpan(ctx, i, role.String())
	defer span.End()

	for _, key := range c.lifecycle.Advance(i, n, c.acc) {
		v, _ := c.acc.Get(key)
		c.deps.Metrics.RecordOverride(key)
		c.logger.WithIteration(i).Zerolog().Debug().Str("key", key).Str("value", v).Msg("Override emitted")
	}

	doc, created, err := c.composer.Compose(i, role, c.acc)
	if err != nil {
		return NewInternalError("compose configuration", err).WithCode(ErrCodeDocument).WithIteration(i)
	}
	if created {
		c.deps.Metrics.RecordDocument()
		c.logger.WithIteration(i).Zerolog().Debug().Str("config", doc.Path).Msg("Configuration document written")
	}

	if !artifactExists(c.current) {
		return NewInternalError("initial sky estimate is missing", fmt.Errorf("%s not found", c.current)).
			WithCode(ErrCodeMissingOutput).
			WithIteration(i)
	}

	initial := c.current
	out := c.outputFor(i)
	_, dur, err := c.invoke(ctx, role, invoke.MapRequest{
		Iteration:  i,
		InFiles:    c.bundle.Cleaned,
		Out:        out,
		Config:     doc.Path,
		PixSize:    c.params.PixSize,
		Ref:        c.params.Ref,
		InitialSky: initial,
		Mask2:      c.params.Mask2,
		Mask3:      c.params.Mask3,
		Extra:      c.extra,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	c.record(ctx, Record{
		Index:       i,
		Role:        role.String(),
		Config:      doc.Path,
		ConfigIndex: doc.Index,
		Output:      out,
		InitialSky:  initial,
		Last:        i == n,
		Overrides:   c.acc.Entries(),
		Duration:    dur,
	})
	telemetry.RecordSuccess(span)
	return nil
}

func (c *Controller) assemble(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewInterruptedError("interrupted before the diagnostics cube", err)
	}
	c.logger.Infof("Creating output itermap cube %s...", c.params.IterMap)

	if err := NewAssembler(c.deps.Stacker).Assemble(ctx, c.records, c.params.IterMap); err != nil {
		return c.failure(ctx, 0, "paste", "diagnostics cube failed", err).WithCode(ErrCodeDiagnosticCube)
	}
	if !artifactExists(c.params.IterMap) {
		return NewInvocationError("diagnostics cube was not written", fmt.Errorf("%s not found", c.params.IterMap)).
			WithCode(ErrCodeMissingOutput).
			WithTool("paste")
	}
	return nil
}

// invoke runs the map-maker for one iteration and checks its output.
func (c *Controller) invoke(ctx context.Context, role config.Role, req invoke.MapRequest) (*invoke.MapResult, time.Duration, error) {
	if err := c.checkpoint(ctx, req.Iteration); err != nil {
		return nil, 0, err
	}

	start := time.Now()
	res, err := c.deps.MapMaker.Make(ctx, req)
	dur := time.Since(start)
	if err != nil {
		return res, dur, c.failure(ctx, req.Iteration, "makemap", "map-maker failed", err)
	}
	if !artifactExists(req.Out) {
		return res, dur, NewInvocationError("map-maker produced no output", fmt.Errorf("%s not found", req.Out)).
			WithCode(ErrCodeMissingOutput).
			WithIteration(req.Iteration).
			WithTool("makemap")
	}

	c.deps.Metrics.RecordIteration()
	c.logger.WithIteration(req.Iteration).Zerolog().Debug().
		Str("role", role.String()).
		Str("output", req.Out).
		Dur("duration", dur).
		Msg("Iteration completed")
	return res, dur, nil
}

// checkpoint reports an interruption observed before iteration next.
func (c *Controller) checkpoint(ctx context.Context, next int) error {
	if err := ctx.Err(); err != nil {
		return NewInterruptedError("interrupted", err).WithIteration(next)
	}
	return nil
}

// failure classifies a tool error. Cancellation seen by the tool wrapper
// becomes an interruption; anything else is an invocation failure.
func (c *Controller) failure(ctx context.Context, i int, tool, msg string, err error) *LoopError {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return NewInterruptedError("interrupted", err).WithIteration(i)
	}

	le := NewInvocationError(msg, err).WithCode(ErrCodeToolFailed).WithIteration(i).WithTool(tool)
	var ierr *invoke.InvocationError
	if errors.As(err, &ierr) {
		le.WithDiagnostics(ierr.Diagnostics)
	}
	return le
}

func (c *Controller) outputFor(i int) string {
	if i == c.params.Iterations {
		return c.params.Out
	}
	return c.session.Workspace.NewMap()
}

func (c *Controller) watch(patterns []string) *tracker.Watcher {
	w, err := tracker.Watch(c.session.WorkDir, patterns)
	if err != nil {
		c.logger.WithError(err).Warn("File watcher unavailable, relying on modification times")
		return nil
	}
	return w
}

func (c *Controller) unwatch(w *tracker.Watcher) []string {
	if w == nil {
		return nil
	}
	hits, err := w.Stop()
	if err != nil {
		c.logger.WithError(err).Warn("File watcher reported an error")
	}
	return hits
}

// claim returns the cleaned and noise-model files written by the first
// iteration: files that are new or changed since snap, plus files the
// watcher saw written or the map-maker reported.
func (c *Controller) claim(snap tracker.Snapshot, hits []string, res *invoke.MapResult) (cleaned, ext []string, err error) {
	dir := c.session.WorkDir
	seen := hits
	if res != nil {
		for _, p := range res.Produced {
			if !filepath.IsAbs(p) {
				p = filepath.Join(dir, p)
			}
			seen = append(seen, p)
		}
	}

	pick := func(pattern string) ([]string, error) {
		patterns := []string{pattern}
		claimed, err := tracker.Claim(dir, patterns, snap)
		if err != nil {
			return nil, err
		}
		var extra []string
		for _, p := range seen {
			if tracker.Matches(p, patterns) && fileExists(p) {
				extra = append(extra, p)
			}
		}
		return tracker.Union(claimed, extra), nil
	}

	if cleaned, err = pick(c.params.CleanedPattern); err != nil {
		return nil, nil, err
	}
	if ext, err = pick(c.params.ExtPattern); err != nil {
		return cleaned, nil, err
	}
	return cleaned, ext, nil
}

// relocate moves the cleaned files into the working area. Files that could
// not be moved are tracked so cleanup still removes them.
func (c *Controller) relocate(paths []string) ([]string, error) {
	moved := make([]string, 0, len(paths))
	for k, p := range paths {
		dst, err := c.session.Workspace.Adopt(p)
		if err != nil {
			c.session.Cleanup.Track(paths[k:]...)
			return moved, NewInternalError("relocate cleaned data", err).
				WithCode(ErrCodeRelocation).
				WithIteration(1)
		}
		moved = append(moved, dst)
	}
	return moved, nil
}

func (c *Controller) record(ctx context.Context, rec Record) {
	c.records = append(c.records, rec)
	c.current = rec.Output

	if c.deps.Journal == nil {
		return
	}
	if err := c.deps.Journal.RecordIteration(context.WithoutCancel(ctx), c.session.ID, rec); err != nil {
		c.logger.WithError(err).Warn("Failed to journal iteration")
	}
}

func (c *Controller) startJournal(ctx context.Context) {
	c.run = &Run{
		ID:         c.session.ID,
		In:         c.params.In,
		Out:        c.params.Out,
		Iterations: c.params.Iterations,
		Config:     c.params.Config,
		Workspace:  c.session.Workspace.Dir(),
		Status:     RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	if c.deps.Journal == nil {
		return
	}
	if err := c.deps.Journal.StartRun(ctx, c.run); err != nil {
		c.logger.WithError(err).Warn("Failed to journal run start")
	}
}

func (c *Controller) finishJournal(ctx context.Context, status RunStatus, runErr error) {
	completed := time.Now().UTC()
	c.run.Status = status
	c.run.Completed = len(c.records)
	c.run.CompletedAt = &completed
	if runErr != nil {
		c.run.Error = runErr.Error()
	}
	if c.deps.Journal == nil {
		return
	}
	if err := c.deps.Journal.FinishRun(context.WithoutCancel(ctx), c.run); err != nil {
		c.logger.WithError(err).Warn("Failed to journal run result")
	}
}

func (c *Controller) result() *Result {
	docs := c.composer.Documents()
	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = d.Path
	}
	return &Result{
		RunID:     c.session.ID,
		Output:    c.params.Out,
		IterMap:   c.params.IterMap,
		Records:   append([]Record(nil), c.records...),
		Bundle:    c.bundle,
		Documents: paths,
	}
}

// Records returns the iterations completed so far.
func (c *Controller) Records() []Record {
	return append([]Record(nil), c.records...)
}

// artifactExists reports whether a data file exists. Paths without an
// extension also match the ".sdf" file the tools create for them.
func artifactExists(path string) bool {
	if path == "" {
		return false
	}
	if fileExists(path) {
		return true
	}
	return filepath.Ext(path) == "" && fileExists(path+".sdf")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
