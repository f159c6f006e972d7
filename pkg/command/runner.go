// Package command runs the external collaborator binaries (chat replay and
// media download) and captures their output.
package command

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
)

// Result is what a finished process left behind
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Elapsed  time.Duration
}

// StderrTail returns the last non-empty stderr line, trimmed
func (r Result) StderrTail() string {
	lines := strings.Split(strings.TrimSpace(string(r.Stderr)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

// Runner starts a process and waits for it. A non-zero exit returns the
// populated Result together with a download_failure error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, name string, args ...string) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs real processes via os/exec
type ExecRunner struct {
	// Timeout bounds each process; zero means only ctx applies
	Timeout time.Duration
	Logger  logger.Logger
}

// NewExecRunner creates a runner with a per-process timeout
func NewExecRunner(timeout time.Duration, log logger.Logger) *ExecRunner {
	return &ExecRunner{Timeout: timeout, Logger: log}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:  stdout.Bytes(),
		Stderr:  stderr.Bytes(),
		Elapsed: time.Since(start),
	}

	logger.Or(r.Logger).DebugWithFields("process finished", map[string]interface{}{
		"binary":  name,
		"elapsed": res.Elapsed,
		"failed":  err != nil,
	})

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case stderrors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		msg := res.StderrTail()
		if msg == "" {
			msg = exitErr.Error()
		}
		return res, &errors.Error{
			Kind:    errors.KindDownloadFailure,
			Op:      name,
			Code:    res.ExitCode,
			Message: msg,
		}
	case stderrors.Is(err, exec.ErrNotFound):
		res.ExitCode = -1
		return res, errors.Wrap(errors.KindFatalSetup, name, err)
	case ctx.Err() != nil:
		res.ExitCode = -1
		return res, errors.Wrap(errors.KindDownloadFailure, name, fmt.Errorf("process interrupted: %w", ctx.Err()))
	default:
		res.ExitCode = -1
		return res, errors.Wrap(errors.KindDownloadFailure, name, err)
	}
}
