// Package mirror supervises the external screen-mirroring process.
package mirror

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FluidXR/mirrordeck/internal/runner"

	"go.uber.org/zap"
)

const (
	// DefaultKillAfter is how long Stop waits after the terminate signal
	// before killing the process.
	DefaultKillAfter = time.Second

	drainGrace = 500 * time.Millisecond
)

// ErrAlreadyRunning is returned by Start while a process is running.
var ErrAlreadyRunning = errors.New("mirroring already running")

// Stream identifies the output stream a line was read from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one line of process output.
type Line struct {
	Stream Stream
	Text   string
}

// ExitReason tells why a mirroring process ended.
type ExitReason string

const (
	ExitRequested ExitReason = "requested"
	ExitEnded     ExitReason = "ended"
	ExitCrashed   ExitReason = "crashed"
	ExitNotFound  ExitReason = "notFound"
)

// Process is the handle of one mirroring process.
type Process struct {
	serial  string
	opts    Options
	program string
	args    []string
	cmd     *exec.Cmd

	stopping atomic.Bool
	done     chan struct{}
	reason   ExitReason
	exitCode int
}

// Serial returns the device the process mirrors.
func (p *Process) Serial() string { return p.serial }

// Options returns the options the process was started with.
func (p *Process) Options() Options { return p.opts }

// Args returns a copy of the process's argument vector.
func (p *Process) Args() []string { return append([]string(nil), p.args...) }

// CommandLine returns the program and arguments joined for display.
func (p *Process) CommandLine() string {
	return strings.Join(append([]string{p.program}, p.args...), " ")
}

// Pid returns the process id, or 0 if it never started.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited and its exit was reported.
func (p *Process) Done() <-chan struct{} { return p.done }

// Reason returns the exit reason. Only meaningful after Done is closed.
func (p *Process) Reason() ExitReason { return p.reason }

// ExitCode returns the exit status. Only meaningful after Done is closed.
func (p *Process) ExitCode() int { return p.exitCode }

// Supervisor runs at most one mirroring process at a time.
type Supervisor struct {
	program   string
	killAfter time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	current *Process
	onLine  func(*Process, Line)
	onExit  func(*Process, ExitReason)
}

// NewSupervisor creates a Supervisor launching program (e.g. "scrcpy").
func NewSupervisor(program string, killAfter time.Duration, logger *zap.Logger) *Supervisor {
	if program == "" {
		program = "scrcpy"
	}
	if killAfter <= 0 {
		killAfter = DefaultKillAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		program:   program,
		killAfter: killAfter,
		logger:    logger.Named("mirror"),
	}
}

// OnOutputLine registers the receiver of output lines. It is called from
// the reader goroutines, in order within each stream.
func (s *Supervisor) OnOutputLine(fn func(*Process, Line)) {
	s.mu.Lock()
	s.onLine = fn
	s.mu.Unlock()
}

// OnExit registers the receiver of exit notifications. It is called exactly
// once per process, after all of its output has been delivered.
func (s *Supervisor) OnExit(fn func(*Process, ExitReason)) {
	s.mu.Lock()
	s.onExit = fn
	s.mu.Unlock()
}

// Current returns the running process, or nil.
func (s *Supervisor) Current() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Start launches the mirroring program against serial.
func (s *Supervisor) Start(serial string, opts Options) (*Process, error) {
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}

	p := &Process{
		serial:   serial,
		opts:     opts,
		program:  s.program,
		args:     Args(serial, opts),
		done:     make(chan struct{}),
		exitCode: -1,
	}
	stdout, stderr, err := s.launch(p)
	if err != nil {
		onExit := s.onExit
		s.mu.Unlock()

		s.logger.Error("mirroring process failed to launch", zap.String("program", s.program), zap.Error(err))
		p.reason = ExitNotFound
		if onExit != nil {
			onExit(p, ExitNotFound)
		}
		close(p.done)
		return nil, &runner.LaunchError{Argv: append([]string{s.program}, p.args...), Err: err}
	}
	s.current = p
	s.mu.Unlock()

	s.logger.Info("mirroring process started", zap.String("device", serial),
		zap.Int("pid", p.Pid()), zap.Strings("args", p.args))
	go s.watch(p, stdout, stderr)
	return p, nil
}

func (s *Supervisor) launch(p *Process) (stdout, stderr *os.File, err error) {
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		stdout.Close()
		stdoutW.Close()
		return nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(p.program, p.args...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	runner.SetProcessGroup(cmd)
	p.cmd = cmd

	err = cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdout.Close()
		stderr.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// Stop terminates p, killing it if it has not exited after the kill delay.
// It returns once the exit has been reported. Stopping a nil or already
// exited process does nothing.
func (s *Supervisor) Stop(p *Process) {
	if p == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	if p.stopping.Swap(true) {
		<-p.done
		return
	}

	s.logger.Info("stopping mirroring process", zap.String("device", p.serial), zap.Int("pid", p.Pid()))
	if err := runner.TerminateGroup(p.cmd); err != nil {
		s.logger.Debug("terminate signal failed", zap.Error(err))
	}

	timer := time.NewTimer(s.killAfter)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
		s.logger.Warn("mirroring process did not exit, killing", zap.Int("pid", p.Pid()))
		if err := runner.KillGroup(p.cmd); err != nil {
			s.logger.Debug("kill failed", zap.Error(err))
		}
		<-p.done
	}
}

func (s *Supervisor) watch(p *Process, stdout, stderr *os.File) {
	var wg sync.WaitGroup
	wg.Add(2)
	go s.drain(p, StreamStdout, stdout, &wg)
	go s.drain(p, StreamStderr, stderr, &wg)

	waitErr := p.cmd.Wait()

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainGrace):
		// Something the process spawned still holds the pipes open.
		stdout.Close()
		stderr.Close()
		<-drained
	}

	reason := ExitEnded
	switch {
	case p.stopping.Load():
		reason = ExitRequested
	case waitErr != nil:
		reason = ExitCrashed
	}
	p.reason = reason
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	if s.current == p {
		s.current = nil
	}
	onExit := s.onExit
	s.mu.Unlock()

	s.logger.Info("mirroring process exited", zap.String("device", p.serial),
		zap.String("reason", string(reason)), zap.Int("exitCode", p.exitCode))
	if onExit != nil {
		onExit(p, reason)
	}
	close(p.done)
}

func (s *Supervisor) drain(p *Process, stream Stream, f *os.File, wg *sync.WaitGroup) {
	defer wg.Done()
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		text, err := reader.ReadString('\n')
		if text != "" {
			s.deliver(p, Line{Stream: stream, Text: runner.Decode([]byte(strings.TrimRight(text, "\r\n")))})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("output read failed", zap.String("stream", string(stream)), zap.Error(err))
			}
			return
		}
	}
}

func (s *Supervisor) deliver(p *Process, line Line) {
	s.mu.Lock()
	onLine := s.onLine
	s.mu.Unlock()
	if onLine != nil {
		onLine(p, line)
	}
}
