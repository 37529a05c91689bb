package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jlzhang001/skyloop/pkg/config"
	"github.com/jlzhang001/skyloop/pkg/invoke"
	"github.com/jlzhang001/skyloop/pkg/workspace"
)

// fakeMaker stands in for the map-maker. The first call exports cleaned
// and noise-model files into dir the way the real tool does.
type fakeMaker struct {
	dir string

	calls    []invoke.MapRequest
	configs  []*config.Assignments
	failAt   int
	noOutput int
	noBundle bool
	onCall   func(n int)
}

func (f *fakeMaker) Make(_ context.Context, req invoke.MapRequest) (*invoke.MapResult, error) {
	f.calls = append(f.calls, req)
	n := len(f.calls)

	eff, err := config.ParseFile(req.Config)
	if err != nil {
		return nil, fmt.Errorf("fake makemap: %w", err)
	}
	f.configs = append(f.configs, eff)

	if f.onCall != nil {
		f.onCall(n)
	}
	if n == 1 && !f.noBundle {
		for _, name := range []string{"s8a_con_res_cln.sdf", "s8b_con_res_cln.sdf", "s8a_con_ext.sdf"} {
			if err := os.WriteFile(filepath.Join(f.dir, name), []byte("iteration 1"), 0o644); err != nil {
				return nil, err
			}
		}
	}
	if n == f.failAt {
		return nil, &invoke.InvocationError{Tool: "makemap", ExitCode: 1, Diagnostics: "!! SMF__NOMEM", Err: errors.New("exit status 1")}
	}
	if n != f.noOutput {
		if err := os.WriteFile(req.Out, []byte(fmt.Sprintf("map %d", n)), 0o644); err != nil {
			return nil, err
		}
	}
	return &invoke.MapResult{Output: req.Out}, nil
}

func (f *fakeMaker) value(t *testing.T, iteration int, key string) string {
	t.Helper()
	v, _ := f.configs[iteration-1].Get(key)
	return v
}

type fakeStacker struct {
	inputs []string
}

func (f *fakeStacker) Stack(_ context.Context, inputs []string, out string) error {
	f.inputs = append([]string(nil), inputs...)
	return os.WriteFile(out, []byte(strings.Join(inputs, "\n")+"\n"), 0o644)
}

type fakeJournal struct {
	started  *Run
	records  []Record
	finished *Run
}

func (f *fakeJournal) StartRun(_ context.Context, run *Run) error {
	cp := *run
	f.started = &cp
	return nil
}

func (f *fakeJournal) RecordIteration(_ context.Context, _ string, rec Record) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeJournal) FinishRun(_ context.Context, run *Run) error {
	cp := *run
	f.finished = &cp
	return nil
}

type harness struct {
	dir    string
	root   string
	params config.Params
	maker  *fakeMaker
	intro  *mapIntrospector
	stack  *fakeStacker
	jrnl   *fakeJournal
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	dir := t.TempDir()
	raw := filepath.Join(dir, "s8a20120101_00001_0001.sdf")
	if err := os.WriteFile(raw, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := config.DefaultParams()
	p.In = raw
	p.Out = filepath.Join(dir, "final.sdf")
	p.Iterations = n
	p.Config = "numiter=20"
	p.WorkDir = dir

	return &harness{
		dir:    dir,
		root:   t.TempDir(),
		params: p,
		maker:  &fakeMaker{dir: dir},
		intro:  &mapIntrospector{values: map[string]int{}},
		stack:  &fakeStacker{},
		jrnl:   &fakeJournal{},
	}
}

func (h *harness) run(ctx context.Context) (*Result, workspace.CleanupReport, error) {
	var res *Result
	report, err := Execute(ctx, h.params, SessionOptions{Root: h.root}, func(ctx context.Context, s *Session) error {
		ctl, err := NewController(s, Deps{
			MapMaker:     h.maker,
			Introspector: h.intro,
			Stacker:      h.stack,
			Journal:      h.jrnl,
		})
		if err != nil {
			return err
		}
		res, err = ctl.Run(ctx)
		return err
	})
	return res, report, err
}

func (h *harness) workspaceLeft(t *testing.T) bool {
	t.Helper()
	entries, err := os.ReadDir(h.root)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries) > 0
}

func TestRunInvocationCount(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			h := newHarness(t, n)
			res, _, err := h.run(context.Background())
			if err != nil {
				t.Fatalf("run error = %v", err)
			}
			if len(h.maker.calls) != n {
				t.Fatalf("expected %d invocations, got %d", n, len(h.maker.calls))
			}
			if got := h.maker.calls[n-1].Out; got != h.params.Out {
				t.Errorf("final output = %s, want %s", got, h.params.Out)
			}
			for _, call := range h.maker.calls[:n-1] {
				if call.Out == h.params.Out {
					t.Errorf("iteration %d wrote the final output", call.Iteration)
				}
			}
			if len(res.Records) != n || !res.Records[n-1].Last {
				t.Errorf("unexpected records %+v", res.Records)
			}
			if _, err := os.Stat(h.params.Out); err != nil {
				t.Errorf("final output missing: %v", err)
			}
		})
	}
}

func TestRunThreadsSkyEstimate(t *testing.T) {
	h := newHarness(t, 4)
	if _, _, err := h.run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if h.maker.calls[0].InitialSky != "" {
		t.Errorf("iteration 1 must not have an initial sky, got %s", h.maker.calls[0].InitialSky)
	}
	for i := 1; i < len(h.maker.calls); i++ {
		if got, want := h.maker.calls[i].InitialSky, h.maker.calls[i-1].Out; got != want {
			t.Errorf("iteration %d initial sky = %s, want %s", i+1, got, want)
		}
	}
}

func TestRunReusesBundle(t *testing.T) {
	h := newHarness(t, 3)
	h.params.Retain = true
	res, report, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	first := h.maker.calls[0]
	if first.InGroup != h.params.In || len(first.InFiles) != 0 {
		t.Errorf("iteration 1 must read the raw input, got %+v", first)
	}
	if len(res.Bundle.Cleaned) != 2 {
		t.Fatalf("expected 2 cleaned files, got %v", res.Bundle.Cleaned)
	}
	for _, p := range res.Bundle.Cleaned {
		if filepath.Dir(p) != report.Dir {
			t.Errorf("cleaned file %s not relocated into %s", p, report.Dir)
		}
	}
	for _, call := range h.maker.calls[1:] {
		if call.InGroup != "" {
			t.Errorf("iteration %d read the raw input", call.Iteration)
		}
		if strings.Join(call.InFiles, ",") != strings.Join(res.Bundle.Cleaned, ",") {
			t.Errorf("iteration %d input = %v, want %v", call.Iteration, call.InFiles, res.Bundle.Cleaned)
		}
	}
	if want := filepath.Join(h.dir, "s8a_con_ext.sdf"); len(res.Bundle.Ext) != 1 || res.Bundle.Ext[0] != want {
		t.Errorf("ext = %v, want [%s]", res.Bundle.Ext, want)
	}
}

func TestRunSingleIteration(t *testing.T) {
	h := newHarness(t, 1)
	h.intro.values["ast.zero_niter"] = 1
	h.intro.values["com.zero_notlast"] = 1

	res, _, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Documents) != 1 || filepath.Base(res.Documents[0]) != "conf0" {
		t.Fatalf("expected only conf0, got %v", res.Documents)
	}
	for key, want := range map[string]string{
		"numiter":          "1",
		"exportclean":      "1",
		"ast.zero_notlast": "0",
		"ast.zero_niter":   "",
	} {
		if got := h.maker.value(t, 1, key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if res.Records[0].Overrides != nil {
		t.Errorf("no overrides expected, got %v", res.Records[0].Overrides)
	}
}

func TestRunDisableOverride(t *testing.T) {
	h := newHarness(t, 5)
	h.params.Retain = true
	h.intro.values["ast.zero_niter"] = 3
	res, _, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 5; i++ {
		got := h.maker.value(t, i, "ast.zero_niter")
		want := ""
		if i >= 4 {
			want = "-1"
		}
		if got != want {
			t.Errorf("iteration %d ast.zero_niter = %q, want %q", i, got, want)
		}
	}

	// Iterations 4 and 5 share one document carrying the override once.
	if res.Records[3].Config != res.Records[4].Config {
		t.Errorf("iterations 4 and 5 should share a document: %s %s", res.Records[3].Config, res.Records[4].Config)
	}
	data, err := os.ReadFile(res.Records[3].Config)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "ast.zero_niter"); n != 1 {
		t.Errorf("override written %d times:\n%s", n, data)
	}
	if len(res.Documents) != 3 {
		t.Errorf("expected conf0, conf1 and conf2, got %v", res.Documents)
	}
}

func TestRunFreezeOverride(t *testing.T) {
	h := newHarness(t, 5)
	h.intro.values["com.zero_freeze"] = 2
	if _, _, err := h.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 5; i++ {
		got := h.maker.value(t, i, "com.zero_freeze")
		if (i >= 4) != (got == "-1") {
			t.Errorf("iteration %d com.zero_freeze = %q", i, got)
		}
	}
}

func TestRunLastIterationMasking(t *testing.T) {
	tests := []struct {
		name    string
		masking config.LastMasking
		key     string
	}{
		{"coupled", config.LastMaskingCoupled, "ast.zero_notlast"},
		{"per-model", config.LastMaskingPerModel, "flt.zero_notlast"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 5)
			h.params.LastMasking = tt.masking
			h.intro.values["flt.zero_notlast"] = 1
			if _, _, err := h.run(context.Background()); err != nil {
				t.Fatal(err)
			}
			for i := 1; i <= 4; i++ {
				if got := h.maker.value(t, i, tt.key); got != "0" {
					t.Errorf("iteration %d %s = %q, want 0", i, tt.key, got)
				}
			}
			if got := h.maker.value(t, 5, tt.key); got != "1" {
				t.Errorf("last iteration %s = %q, want 1", tt.key, got)
			}
			if tt.masking == config.LastMaskingPerModel {
				if got := h.maker.value(t, 5, "ast.zero_notlast"); got != "0" {
					t.Errorf("per-model mode changed ast.zero_notlast to %q", got)
				}
			}
		})
	}
}

func TestRunPreExistingFiles(t *testing.T) {
	h := newHarness(t, 2)
	old := time.Now().Add(-time.Hour)

	untouched := []string{
		filepath.Join(h.dir, "s8z_con_res_cln.sdf"),
		filepath.Join(h.dir, "s8z_con_ext.sdf"),
	}
	overwritten := filepath.Join(h.dir, "s8a_con_ext.sdf")
	for _, p := range append(untouched, overwritten) {
		if err := os.WriteFile(p, []byte("before"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatal(err)
		}
	}

	res, _, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, p := range untouched {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Errorf("pre-existing %s was moved or deleted: %v", filepath.Base(p), err)
			continue
		}
		if string(data) != "before" {
			t.Errorf("pre-existing %s was modified", filepath.Base(p))
		}
	}
	if len(res.Bundle.Ext) != 1 || res.Bundle.Ext[0] != overwritten {
		t.Errorf("overwritten file should be claimed, ext = %v", res.Bundle.Ext)
	}
	if _, err := os.Stat(overwritten); !os.IsNotExist(err) {
		t.Error("claimed noise-model file should be removed at cleanup")
	}
	for _, p := range res.Bundle.Cleaned {
		if strings.Contains(p, "s8z") {
			t.Errorf("pre-existing cleaned file claimed: %s", p)
		}
	}
}

func TestRunRetention(t *testing.T) {
	for _, retain := range []bool{true, false} {
		t.Run(fmt.Sprintf("retain=%v", retain), func(t *testing.T) {
			h := newHarness(t, 3)
			h.params.Retain = retain
			res, report, err := h.run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if report.Retained != retain {
				t.Errorf("report.Retained = %v", report.Retained)
			}

			artifacts := []string{report.Dir}
			artifacts = append(artifacts, res.Bundle.Cleaned...)
			artifacts = append(artifacts, res.Bundle.Ext...)
			artifacts = append(artifacts, res.Documents...)
			for _, p := range artifacts {
				_, err := os.Stat(p)
				if retain && err != nil {
					t.Errorf("%s should be retained: %v", p, err)
				}
				if !retain && !os.IsNotExist(err) {
					t.Errorf("%s should be removed", p)
				}
			}
			if _, err := os.Stat(h.params.Out); err != nil {
				t.Errorf("final output must survive cleanup: %v", err)
			}
		})
	}
}

func TestRunDiagnosticsCube(t *testing.T) {
	h := newHarness(t, 3)
	h.params.IterMap = filepath.Join(h.dir, "itermap.sdf")
	res, _, err := h.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(h.stack.inputs) != 3 {
		t.Fatalf("expected 3 planes, got %v", h.stack.inputs)
	}
	for i, in := range h.stack.inputs {
		if in != res.Records[i].Output {
			t.Errorf("plane %d = %s, want output of iteration %d", i+1, in, i+1)
		}
	}
	if h.stack.inputs[2] != h.params.Out {
		t.Errorf("last plane should be the final map, got %s", h.stack.inputs[2])
	}
	if _, err := os.Stat(h.params.IterMap); err != nil {
		t.Errorf("cube not written: %v", err)
	}
}

func TestRunInvocationFailure(t *testing.T) {
	h := newHarness(t, 4)
	h.maker.failAt = 2
	_, report, err := h.run(context.Background())

	if !IsInvocation(err) {
		t.Fatalf("expected an invocation error, got %v", err)
	}
	var le *LoopError
	if !errors.As(err, &le) {
		t.Fatal("expected *LoopError")
	}
	if le.Iteration != 2 || le.Diagnostics != "!! SMF__NOMEM" || le.Tool != "makemap" {
		t.Errorf("unexpected error fields %+v", le)
	}
	if len(h.maker.calls) != 2 {
		t.Errorf("iterations after the failure ran: %d calls", len(h.maker.calls))
	}
	if h.workspaceLeft(t) {
		t.Errorf("working area %s not removed", report.Dir)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "s8a_con_ext.sdf")); !os.IsNotExist(err) {
		t.Error("noise-model side artifact not removed after failure")
	}
	if h.jrnl.finished == nil || h.jrnl.finished.Status != RunStatusFailed || h.jrnl.finished.Completed != 1 {
		t.Errorf("journal finish = %+v", h.jrnl.finished)
	}
}

func TestRunFirstIterationFailureCleansExports(t *testing.T) {
	h := newHarness(t, 3)
	h.maker.failAt = 1
	_, _, err := h.run(context.Background())
	if !IsInvocation(err) {
		t.Fatalf("expected an invocation error, got %v", err)
	}
	for _, name := range []string{"s8a_con_res_cln.sdf", "s8b_con_res_cln.sdf", "s8a_con_ext.sdf"} {
		if _, err := os.Stat(filepath.Join(h.dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s left behind", name)
		}
	}
}

func TestRunInterrupted(t *testing.T) {
	h := newHarness(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.maker.onCall = func(n int) {
		if n == 2 {
			cancel()
		}
	}

	_, _, err := h.run(ctx)
	if !IsInterrupted(err) {
		t.Fatalf("expected an interruption, got %v", err)
	}
	var le *LoopError
	errors.As(err, &le)
	if le.Iteration != 3 {
		t.Errorf("interruption should name iteration 3, got %d", le.Iteration)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("interruption should wrap context.Canceled")
	}
	if len(h.maker.calls) != 2 {
		t.Errorf("expected the in-flight iteration to finish and no more, got %d calls", len(h.maker.calls))
	}
	if h.workspaceLeft(t) {
		t.Error("working area not removed after interruption")
	}
	if h.jrnl.finished.Status != RunStatusInterrupted {
		t.Errorf("journal status = %s", h.jrnl.finished.Status)
	}
}

func TestRunMissingOutput(t *testing.T) {
	h := newHarness(t, 3)
	h.maker.noOutput = 2
	_, _, err := h.run(context.Background())
	if !errors.Is(err, &LoopError{Class: ErrorClassInvocation, Code: ErrCodeMissingOutput}) {
		t.Fatalf("expected a missing-output error, got %v", err)
	}
	if len(h.maker.calls) != 2 {
		t.Errorf("expected 2 calls, got %d", len(h.maker.calls))
	}
}

func TestRunMissingBundle(t *testing.T) {
	h := newHarness(t, 2)
	h.maker.noBundle = true
	_, _, err := h.run(context.Background())
	if !errors.Is(err, &LoopError{Class: ErrorClassInvocation, Code: ErrCodeMissingBundle}) {
		t.Fatalf("expected a missing-bundle error, got %v", err)
	}

	// A single pass needs no bundle.
	h = newHarness(t, 1)
	h.maker.noBundle = true
	if _, _, err := h.run(context.Background()); err != nil {
		t.Errorf("single pass without bundle: %v", err)
	}
}

func TestRunIntrospectionFailure(t *testing.T) {
	h := newHarness(t, 3)
	h.intro.err = &invoke.InvocationError{Tool: "configecho", ExitCode: 1, Diagnostics: "!! no such key"}
	_, _, err := h.run(context.Background())

	var le *LoopError
	if !errors.As(err, &le) || le.Code != ErrCodeIntrospection {
		t.Fatalf("expected an introspection error, got %v", err)
	}
	if le.Diagnostics != "!! no such key" {
		t.Errorf("Diagnostics = %q", le.Diagnostics)
	}
	if len(h.maker.calls) != 0 {
		t.Error("map-maker ran after introspection failed")
	}
}

func TestRunMissingInput(t *testing.T) {
	h := newHarness(t, 3)
	h.params.In = filepath.Join(h.dir, "s4a*.sdf")
	_, _, err := h.run(context.Background())
	if !IsInput(err) {
		t.Fatalf("expected an input error, got %v", err)
	}
	if len(h.maker.calls) != 0 || len(h.intro.calls) != 0 {
		t.Error("tools ran despite missing input")
	}
	if h.workspaceLeft(t) {
		t.Error("working area created despite missing input")
	}
}

func TestExecuteCleansUpOnPanic(t *testing.T) {
	h := newHarness(t, 2)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected the panic to propagate")
		}
		if h.workspaceLeft(t) {
			t.Error("working area not removed after panic")
		}
	}()

	_, _ = Execute(context.Background(), h.params, SessionOptions{Root: h.root}, func(context.Context, *Session) error {
		panic("boom")
	})
}

func TestRunJournal(t *testing.T) {
	h := newHarness(t, 3)
	if _, _, err := h.run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.jrnl.started == nil || h.jrnl.started.Status != RunStatusRunning {
		t.Fatalf("run start not journaled: %+v", h.jrnl.started)
	}
	if len(h.jrnl.records) != 3 {
		t.Errorf("expected 3 journaled iterations, got %d", len(h.jrnl.records))
	}
	if f := h.jrnl.finished; f == nil || f.Status != RunStatusSucceeded || f.Completed != 3 || f.CompletedAt == nil {
		t.Errorf("run finish = %+v", f)
	}
}

func TestNewControllerRejectsBadExtra(t *testing.T) {
	h := newHarness(t, 2)
	h.params.Extra = `title="unterminated`
	_, _, err := h.run(context.Background())
	if !IsInput(err) {
		t.Fatalf("expected an input error, got %v", err)
	}
}
