// Package runner executes external device-management commands with a
// timeout and captures their status and output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultWaitDelay bounds how long Run waits for the output pipes to close
// after the process itself has exited.
const DefaultWaitDelay = 500 * time.Millisecond

var (
	// ErrTimeout matches any *TimeoutError.
	ErrTimeout = errors.New("command timed out")
	// ErrLaunch matches any *LaunchError.
	ErrLaunch = errors.New("command failed to launch")
)

// TimeoutError is returned when a command does not finish within its timeout.
// The process has been killed by the time the error is returned.
type TimeoutError struct {
	Argv    []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", strings.Join(e.Argv, " "), e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// LaunchError is returned when the program could not be started at all.
type LaunchError struct {
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	name := "command"
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("launch %s: %v", name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == ErrLaunch }

// Result is the outcome of one command invocation.
type Result struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// OK reports whether the command completed in time with exit status 0.
func (r Result) OK() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Output returns stdout, falling back to stderr when stdout is blank.
func (r Result) Output() string {
	if strings.TrimSpace(r.Stdout) != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Runner runs one external command to completion.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, argv []string) (Result, error)
}

// Exec runs commands as local child processes.
type Exec struct {
	logger    *zap.Logger
	waitDelay time.Duration
}

// New creates an Exec runner.
func New(logger *zap.Logger) *Exec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exec{
		logger:    logger.Named("runner"),
		waitDelay: DefaultWaitDelay,
	}
}

// Run starts argv[0] with the remaining arguments and waits for it.
//
// A non-zero exit status is reported in the Result, not as an error. The
// error is a *TimeoutError when the timeout expires, a *LaunchError when the
// program cannot be started, or the caller's context error.
func (e *Exec) Run(ctx context.Context, timeout time.Duration, argv []string) (Result, error) {
	result := Result{Argv: append([]string(nil), argv...), ExitCode: -1}
	if len(argv) == 0 {
		return result, &LaunchError{Err: errors.New("empty command")}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	SetProcessGroup(cmd)
	cmd.Cancel = func() error { return KillGroup(cmd) }
	cmd.WaitDelay = e.waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		e.logger.Debug("launch failed", zap.Strings("argv", argv), zap.Error(err))
		return result, &LaunchError{Argv: result.Argv, Err: err}
	}
	err := cmd.Wait()
	result.Duration = time.Since(start)
	result.Stdout = Decode(stdout.Bytes())
	result.Stderr = Decode(stderr.Bytes())

	if err == nil {
		result.ExitCode = 0
		e.logger.Debug("command finished", zap.Strings("argv", argv), zap.Duration("duration", result.Duration))
		return result, nil
	}

	switch {
	case ctx.Err() != nil:
		return result, fmt.Errorf("%s: %w", argv[0], ctx.Err())
	case runCtx.Err() != nil:
		result.TimedOut = true
		e.logger.Debug("command timed out", zap.Strings("argv", argv), zap.Duration("timeout", timeout))
		return result, &TimeoutError{Argv: result.Argv, Timeout: timeout}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		e.logger.Debug("command exited", zap.Strings("argv", argv), zap.Int("exitCode", result.ExitCode))
		return result, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// The process exited but something it spawned still holds the pipes.
		result.ExitCode = cmd.ProcessState.ExitCode()
		return result, nil
	}
	return result, fmt.Errorf("%s: %w", argv[0], err)
}

// Decode converts process output to text, replacing invalid UTF-8.
func Decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
