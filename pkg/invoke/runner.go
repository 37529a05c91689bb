package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlzhang001/skyloop/pkg/telemetry"
)

// InvocationError reports an external tool that failed to start or exited
// with a non-zero status.
type InvocationError struct {
	Tool        string
	ExitCode    int
	Diagnostics string
	Err         error
}

func (e *InvocationError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a successful invocation.
type Result struct {
	Tool     string
	Argv     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	LogPath  string
}

// ListAllocator hands out paths for group list files.
type ListAllocator interface {
	NewList(stem string) string
}

// Runner executes requests synchronously. A started invocation always runs
// to completion; cancellation is only observed before it starts.
type Runner struct {
	// Dir is the directory the tools run in.
	Dir string

	// Env holds variables added to the inherited environment.
	Env map[string]string

	// Lists allocates list files for group arguments.
	Lists ListAllocator

	// LogDir receives one transcript per invocation when set.
	LogDir string

	Logger  *telemetry.Logger
	Metrics *telemetry.Metrics
	Tracer  *telemetry.Tracer

	seq int
}

// Run validates and executes req.
func (r *Runner) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	argv, err := req.Argv(r.writeList)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid request: %w", req.Tool, err)
	}

	logger := r.logger().WithTool(req.Tool)
	ctx, span := r.Tracer.StartToolSpan(ctx, req.Tool)
	defer span.End()

	cmd := exec.Command(req.Command, argv...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		env := os.Environ()
		for k, v := range r.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Zerolog().Debug().Str("command", req.Command).Strs("args", argv).Msg("Invoking")

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Tool:     req.Tool,
		Argv:     append([]string{req.Command}, argv...),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
	}

	if path, logErr := r.writeTranscript(result); logErr == nil {
		result.LogPath = path
	} else if r.LogDir != "" {
		logger.WithError(logErr).Warn("Failed to write transcript")
	}

	r.Metrics.RecordInvocation(req.Tool, duration, runErr)

	if runErr != nil {
		ierr := &InvocationError{
			Tool:        req.Tool,
			ExitCode:    result.ExitCode,
			Diagnostics: diagnostics(result),
			Err:         runErr,
		}
		if result.ExitCode == -1 {
			ierr.ExitCode = 0
		}
		telemetry.RecordError(span, ierr)
		logger.Zerolog().Debug().Err(runErr).Dur("duration", duration).Msg("Invocation failed")
		return result, ierr
	}

	telemetry.RecordSuccess(span)
	logger.Zerolog().Debug().Dur("duration", duration).Msg("Invocation completed")
	return result, nil
}

func (r *Runner) logger() *telemetry.Logger {
	if r.Logger == nil {
		return telemetry.NopLogger()
	}
	return r.Logger
}

func (r *Runner) writeList(name string, paths []string) (string, error) {
	if r.Lists == nil {
		return "", errors.New("no list allocator configured")
	}
	path := r.Lists.NewList(name)
	content := strings.Join(paths, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write list file: %w", err)
	}
	return path, nil
}

func (r *Runner) writeTranscript(result *Result) (string, error) {
	if r.LogDir == "" {
		return "", nil
	}
	r.seq++
	path := filepath.Join(r.LogDir, fmt.Sprintf("%03d-%s.log", r.seq, result.Tool))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "$ %s\n", strings.Join(result.Argv, " "))
	fmt.Fprintf(&buf, "# exit=%d duration=%s\n\n", result.ExitCode, result.Duration)
	buf.WriteString(result.Stdout)
	if result.Stderr != "" {
		buf.WriteString("\n--- stderr ---\n")
		buf.WriteString(result.Stderr)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// diagnostics picks the text most useful to a user reading a failure:
// stderr if any, otherwise the tail of stdout.
func diagnostics(result *Result) string {
	text := strings.TrimSpace(result.Stderr)
	if text == "" {
		text = strings.TrimSpace(result.Stdout)
	}
	const max = 4000
	if len(text) > max {
		text = "..." + text[len(text)-max:]
	}
	return text
}
