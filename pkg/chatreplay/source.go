// Package chatreplay retrieves a clip's chat replay through the external
// replay tool. "No replay available" is an ordinary result, not an error.
package chatreplay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"clipharvest/pkg/command"
	"clipharvest/pkg/errors"
	"clipharvest/pkg/logger"
)

// Status is the outcome of one replay request
type Status int

const (
	StatusOK Status = iota
	StatusNoReplay
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoReplay:
		return "no_replay"
	default:
		return "error"
	}
}

// Result is OK with the raw transcript payload, NoReplay, or Error
type Result struct {
	Status  Status
	Payload []byte
	Err     error
}

// AsError folds the result into an error for callers that only deal in
// errors: nil for OK, a no_replay error for NoReplay, Err otherwise.
func (r Result) AsError(op string) error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusNoReplay:
		return errors.New(errors.KindNoReplay, op, "no chat replay")
	default:
		if r.Err == nil {
			return errors.New(errors.KindUnknown, op, "replay failed")
		}
		return r.Err
	}
}

// Source fetches the chat replay for a clip URL
type Source interface {
	Fetch(ctx context.Context, clipURL string) Result
}

// DefaultNoReplayMarkers are stderr fragments the replay tool prints when a
// clip has chat replay disabled
var DefaultNoReplayMarkers = []string{
	"NoChatReplay",
	"no chat replay",
	"chat replay is not available",
	"unable to find chat replay",
}

// ExecSource runs the replay binary as `<binary> <clip_url> --output <file>`
type ExecSource struct {
	runner  command.Runner
	binary  string
	scratch string
	markers []string
	logger  logger.Logger
}

// Option configures an ExecSource
type Option func(*ExecSource)

// WithScratchDir sets where temporary output files are written
func WithScratchDir(dir string) Option {
	return func(s *ExecSource) { s.scratch = dir }
}

// WithNoReplayMarkers replaces the stderr markers
func WithNoReplayMarkers(markers ...string) Option {
	return func(s *ExecSource) { s.markers = markers }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(s *ExecSource) { s.logger = l }
}

// NewExecSource creates a Source backed by the replay binary
func NewExecSource(runner command.Runner, binary string, opts ...Option) *ExecSource {
	s := &ExecSource{
		runner:  runner,
		binary:  binary,
		markers: DefaultNoReplayMarkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ExecSource) Fetch(ctx context.Context, clipURL string) Result {
	const op = "chatreplay.Fetch"

	out, err := os.CreateTemp(s.scratch, "replay-*.json")
	if err != nil {
		return Result{Status: StatusError, Err: errors.Wrap(errors.KindFatalSetup, op, err)}
	}
	outPath := out.Name()
	out.Close()
	defer os.Remove(outPath)

	res, runErr := s.runner.Run(ctx, s.binary, clipURL, "--output", outPath)

	// stdout echoes chat text, so only a failed or empty run is checked
	// for the tool's no-replay message
	payload, readErr := os.ReadFile(outPath)
	empty := readErr == nil && len(strings.TrimSpace(string(payload))) == 0
	if (runErr != nil || empty) && s.isNoReplay(res) {
		logger.Or(s.logger).WithField("clip_url", clipURL).Debug("clip has no chat replay")
		return Result{Status: StatusNoReplay}
	}
	if runErr != nil {
		return Result{Status: StatusError, Err: runErr}
	}
	if readErr != nil {
		return Result{Status: StatusError, Err: errors.Wrap(errors.KindDownloadFailure, op, readErr)}
	}
	if empty {
		return Result{Status: StatusError, Err: errors.Newf(errors.KindDownloadFailure, op,
			"%s produced no output for %s", filepath.Base(s.binary), clipURL)}
	}

	return Result{Status: StatusOK, Payload: payload}
}

func (s *ExecSource) isNoReplay(res command.Result) bool {
	text := strings.ToLower(string(res.Stderr))
	for _, m := range s.markers {
		if m != "" && strings.Contains(text, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// Func adapts a function to Source
type Func func(ctx context.Context, clipURL string) Result

func (f Func) Fetch(ctx context.Context, clipURL string) Result {
	return f(ctx, clipURL)
}

// String renders a result for logs
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %v", r.Status, r.Err)
	}
	return r.Status.String()
}
