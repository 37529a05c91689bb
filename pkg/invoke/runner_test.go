package invoke

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type dirLists struct {
	dir string
	n   int
}

func (d *dirLists) NewList(stem string) string {
	d.n++
	return filepath.Join(d.dir, fmt.Sprintf("%s%d.lis", stem, d.n))
}

func shRequest(script string) *Request {
	r := NewRequest("sh", "/bin/sh")
	r.Raw = []string{"-c", script}
	return r
}

func TestRunnerRun(t *testing.T) {
	dir := t.TempDir()
	runner := &Runner{Dir: dir, LogDir: dir, Env: map[string]string{"SKYLOOP_TEST": "yes"}}

	res, err := runner.Run(context.Background(), shRequest(`echo "$SKYLOOP_TEST"; pwd`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if lines[0] != "yes" {
		t.Errorf("environment not passed, stdout %q", res.Stdout)
	}
	if got, _ := filepath.EvalSymlinks(lines[1]); got != mustEval(t, dir) {
		t.Errorf("expected to run in %s, ran in %s", dir, lines[1])
	}
	if res.LogPath == "" {
		t.Fatal("expected a transcript")
	}
	data, err := os.ReadFile(res.LogPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "$ /bin/sh -c") {
		t.Errorf("unexpected transcript %q", data)
	}
}

func mustEval(t *testing.T, p string) string {
	t.Helper()
	r, err := filepath.EvalSymlinks(p)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunnerFailure(t *testing.T) {
	runner := &Runner{Dir: t.TempDir()}

	_, err := runner.Run(context.Background(), shRequest("echo progress; echo '!! bad input' >&2; exit 3"))
	var ierr *InvocationError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *InvocationError, got %v", err)
	}
	if ierr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", ierr.ExitCode)
	}
	if ierr.Diagnostics != "!! bad input" {
		t.Errorf("Diagnostics = %q", ierr.Diagnostics)
	}

	_, err = runner.Run(context.Background(), NewRequest("ghost", filepath.Join(t.TempDir(), "no-such-tool")))
	if !errors.As(err, &ierr) {
		t.Fatalf("expected *InvocationError for a missing executable, got %v", err)
	}
	if ierr.ExitCode != 0 || ierr.Err == nil {
		t.Errorf("unexpected error fields %+v", ierr)
	}
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &Runner{Dir: dir}
	_, err := runner.Run(ctx, shRequest("touch "+marker))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("command must not start after cancellation")
	}
}

func TestRunnerWritesGroupLists(t *testing.T) {
	dir := t.TempDir()
	runner := &Runner{Dir: dir, Lists: &dirLists{dir: dir}}

	r := NewRequest("cat", "/bin/cat").Set("in", Group("a.sdf", "b.sdf"))
	// cat cannot open "in=^..." so only the list file is checked.
	_, _ = runner.Run(context.Background(), r)

	data, err := os.ReadFile(filepath.Join(dir, "in1.lis"))
	if err != nil {
		t.Fatalf("list file not written: %v", err)
	}
	if string(data) != "a.sdf\nb.sdf\n" {
		t.Errorf("list file = %q", data)
	}
}
