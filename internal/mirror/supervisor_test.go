package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FluidXR/mirrordeck/internal/runner"
)

// fakeProgram writes an executable shell script standing in for scrcpy.
func fakeProgram(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "scrcpy")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write fake program: %v", err)
	}
	return path
}

const longRunning = `echo "args: $*"
echo "INFO: renderer: opengl" 1>&2
trap 'echo terminated; exit 0' TERM
while true; do sleep 0.05; done`

type recorder struct {
	mu    sync.Mutex
	lines []Line
	exits []ExitReason
	done  chan struct{}
}

func newRecorder(s *Supervisor) *recorder {
	r := &recorder{done: make(chan struct{}, 8)}
	s.OnOutputLine(func(_ *Process, l Line) {
		r.mu.Lock()
		r.lines = append(r.lines, l)
		r.mu.Unlock()
	})
	s.OnExit(func(_ *Process, reason ExitReason) {
		r.mu.Lock()
		r.exits = append(r.exits, reason)
		r.mu.Unlock()
		r.done <- struct{}{}
	})
	return r
}

func (r *recorder) snapshot() ([]Line, []ExitReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...), append([]ExitReason(nil), r.exits...)
}

func (r *recorder) waitExit(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("exit was not reported")
	}
}

func waitForLine(t *testing.T, r *recorder, substr string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		lines, _ := r.snapshot()
		for _, l := range lines {
			if strings.Contains(l.Text, substr) {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("line containing %q never arrived", substr)
}

func TestStartStreamsOutputAndStops(t *testing.T) {
	s := NewSupervisor(fakeProgram(t, longRunning), 2*time.Second, nil)
	r := newRecorder(s)

	p, err := s.Start("ABC123", Options{Bitrate: "8M", MaxFPS: "60"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Pid() == 0 {
		t.Fatal("expected a pid")
	}
	waitForLine(t, r, "args: -s ABC123 -b 8M --max-fps 60")
	waitForLine(t, r, "renderer")

	s.Stop(p)
	select {
	case <-p.Done():
	default:
		t.Fatal("Stop returned before the exit was reported")
	}
	if p.Reason() != ExitRequested {
		t.Fatalf("expected requested exit, got %q", p.Reason())
	}
	if s.Current() != nil {
		t.Fatal("supervisor still holds the process after Stop")
	}

	lines, exits := r.snapshot()
	if len(exits) != 1 || exits[0] != ExitRequested {
		t.Fatalf("expected one requested exit, got %v", exits)
	}
	var sawStdout, sawStderr bool
	for _, l := range lines {
		switch {
		case l.Stream == StreamStdout && strings.HasPrefix(l.Text, "args:"):
			sawStdout = true
		case l.Stream == StreamStderr && strings.Contains(l.Text, "renderer"):
			sawStderr = true
		}
	}
	if !sawStdout || !sawStderr {
		t.Fatalf("lines not tagged by stream: %+v", lines)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	s := NewSupervisor(fakeProgram(t, longRunning), time.Second, nil)
	newRecorder(s)

	first, err := s.Start("ABC123", Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(first)

	second, err := s.Start("ABC123", Options{})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if second != nil {
		t.Fatal("second Start must not return a process")
	}
	if s.Current() != first {
		t.Fatal("the first process must remain the current one")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewSupervisor(fakeProgram(t, longRunning), time.Second, nil)
	r := newRecorder(s)

	p, err := s.Start("ABC123", Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop(p)
	s.Stop(p)
	s.Stop(nil)

	_, exits := r.snapshot()
	if len(exits) != 1 {
		t.Fatalf("expected exactly one exit notification, got %v", exits)
	}

	// Restart after stop works.
	p2, err := s.Start("ABC123", Options{})
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop(p2)
}

func TestStopKillsStubbornProcess(t *testing.T) {
	s := NewSupervisor(fakeProgram(t, `trap '' TERM
echo ready
while true; do sleep 0.05; done`), 100*time.Millisecond, nil)
	r := newRecorder(s)

	p, err := s.Start("ABC123", Options{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForLine(t, r, "ready")

	start := time.Now()
	s.Stop(p)
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("force kill took %s", elapsed)
	}
	if p.Reason() != ExitRequested {
		t.Fatalf("expected requested exit, got %q", p.Reason())
	}
}

func TestProcessExitReasons(t *testing.T) {
	tests := []struct {
		name string
		body string
		want ExitReason
	}{
		{name: "ended", body: "echo bye\nexit 0", want: ExitEnded},
		{name: "crashed", body: "echo 'ERROR: device disconnected' 1>&2\nexit 2", want: ExitCrashed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSupervisor(fakeProgram(t, tt.body), time.Second, nil)
			r := newRecorder(s)
			p, err := s.Start("ABC123", Options{})
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			r.waitExit(t)
			_, exits := r.snapshot()
			if len(exits) != 1 || exits[0] != tt.want {
				t.Fatalf("got exits %v, want [%s]", exits, tt.want)
			}
			lines, _ := r.snapshot()
			if len(lines) == 0 {
				t.Fatal("output must be delivered before the exit notification")
			}
			<-p.Done()
			if s.Current() != nil {
				t.Fatal("supervisor must be stopped after the process exits")
			}
			// Stopping an exited process is a no-op.
			s.Stop(p)
		})
	}
}

func TestStartProgramNotFound(t *testing.T) {
	s := NewSupervisor(filepath.Join(t.TempDir(), "no-such-scrcpy"), time.Second, nil)
	r := newRecorder(s)

	p, err := s.Start("ABC123", Options{})
	if err == nil {
		t.Fatal("expected launch error")
	}
	if !errors.Is(err, runner.ErrLaunch) {
		t.Fatalf("expected runner.ErrLaunch, got %v", err)
	}
	if p != nil {
		t.Fatal("no process handle on launch failure")
	}
	r.waitExit(t)
	if _, exits := r.snapshot(); len(exits) != 1 || exits[0] != ExitNotFound {
		t.Fatalf("expected notFound exit, got %v", exits)
	}
	if s.Current() != nil {
		t.Fatal("supervisor must stay stopped")
	}
}

func TestCommandLine(t *testing.T) {
	s := NewSupervisor(fakeProgram(t, longRunning), time.Second, nil)
	newRecorder(s)
	p, err := s.Start("ABC123", Options{Bitrate: "8M"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(p)
	if !strings.HasSuffix(p.CommandLine(), "scrcpy -s ABC123 -b 8M") {
		t.Fatalf("unexpected command line %q", p.CommandLine())
	}
	if p.Serial() != "ABC123" || p.Options().Bitrate != "8M" {
		t.Fatalf("handle lost its parameters: %q %+v", p.Serial(), p.Options())
	}
}
