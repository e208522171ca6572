// Package session owns the active-device session: which device is
// connected, its battery poller, its mirroring process and the switch from
// USB to wireless transport.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/FluidXR/mirrordeck/internal/adb"
	"github.com/FluidXR/mirrordeck/internal/battery"
	"github.com/FluidXR/mirrordeck/internal/mirror"

	"go.uber.org/zap"
)

const (
	DefaultSettleDelay    = time.Second
	DefaultReconnectDelay = 600 * time.Millisecond
)

// ADB is the device-management surface the controller drives.
type ADB interface {
	Devices(ctx context.Context) ([]adb.Device, error)
	Serials(ctx context.Context) []string
	Battery(ctx context.Context, serial string) (int, error)
	EnableTCPIP(ctx context.Context, serial string, port int) error
	RouteSource(ctx context.Context, serial string) (string, error)
	Connect(ctx context.Context, addr string) error
}

// Options configure a Controller.
type Options struct {
	PollInterval   time.Duration
	WirelessPort   int
	SettleDelay    time.Duration // after enabling tcpip
	ReconnectDelay time.Duration // after adb connect, before relisting
	// OnEvent receives every session event, on the controller's loop
	// goroutine. It must not call back into the Controller.
	OnEvent func(Event)
	Logger  *zap.Logger
}

// State is a point-in-time view of the session.
type State struct {
	Active        string
	Polling       bool
	Battery       int
	Mirroring     bool
	MirroringArgs []string
	Busy          bool
}

// Controller is the single owner of session state. Every mutation runs on
// its loop goroutine, so the fields below need no locking.
type Controller struct {
	adb    ADB
	sup    *mirror.Supervisor
	poller *battery.Poller
	opts   Options
	logger *zap.Logger
	loop   *loop

	active     string
	polling    bool
	pollGen    uint64
	battery    int
	mirroring  *mirror.Process
	mirrorOpts mirror.Options
	busy       bool
	closed     bool

	// Output and exits of mirroring processes, in delivery order. Filled by
	// the supervisor's goroutines, drained on the loop.
	procMu      sync.Mutex
	procPending []procEvent
}

// procEvent is one output line or the exit of a mirroring process.
type procEvent struct {
	p      *mirror.Process
	line   mirror.Line
	exit   bool
	reason mirror.ExitReason
}

// New creates a Controller with no active device.
func New(client ADB, sup *mirror.Supervisor, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WirelessPort == 0 {
		opts.WirelessPort = adb.DefaultWirelessPort
	}
	logger := opts.Logger.Named("session")

	c := &Controller{
		adb:    client,
		sup:    sup,
		poller: battery.NewPoller(client, opts.PollInterval, opts.Logger),
		opts:   opts,
		logger: logger,
		loop:   newLoop(logger),
	}
	sup.OnOutputLine(func(p *mirror.Process, line mirror.Line) {
		c.queueProcEvent(procEvent{p: p, line: line})
	})
	sup.OnExit(func(p *mirror.Process, reason mirror.ExitReason) {
		c.queueProcEvent(procEvent{p: p, exit: true, reason: reason})
	})
	return c
}

func (c *Controller) queueProcEvent(ev procEvent) {
	c.procMu.Lock()
	c.procPending = append(c.procPending, ev)
	c.procMu.Unlock()
	c.loop.post(c.drainProcEvents)
}

// drainProcEvents delivers every queued output line and exit. It runs on
// the loop, either posted or inline after a process has been stopped.
func (c *Controller) drainProcEvents() {
	c.procMu.Lock()
	pending := c.procPending
	c.procPending = nil
	c.procMu.Unlock()

	for _, ev := range pending {
		if ev.exit {
			c.handleExit(ev.p, ev.reason)
		} else {
			c.handleOutput(ev.p, ev.line)
		}
	}
}

// do runs fn on the loop and returns its error.
func (c *Controller) do(fn func() error) error {
	var err error
	ok := c.loop.call(func() {
		if c.closed {
			err = ErrClosed
			return
		}
		err = fn()
	})
	if !ok {
		return ErrClosed
	}
	return err
}

// Connect makes id the active device and starts polling it. Connecting to
// the already active device restarts polling; connecting to another device
// ends the current session first.
func (c *Controller) Connect(id string) error {
	id = strings.TrimSpace(id)
	return c.do(func() error {
		if c.busy {
			return c.fail("connect", ErrOperationInProgress)
		}
		if id == "" {
			return c.fail("connect", ErrNoDeviceSelected)
		}
		if c.active != "" && c.active != id {
			c.disconnect()
		}
		c.active = id
		c.startPolling()
		c.emit(Event{Kind: EventConnected, Device: id, Message: "Connected to " + id})
		return nil
	})
}

// Disconnect stops mirroring and polling and clears the active device.
func (c *Controller) Disconnect() error {
	return c.do(func() error {
		if c.busy {
			return c.fail("disconnect", ErrOperationInProgress)
		}
		c.disconnect()
		return nil
	})
}

// StartMirroring launches the mirroring process against the active device.
func (c *Controller) StartMirroring(opts mirror.Options) error {
	return c.do(func() error {
		if c.busy {
			return c.fail("start mirroring", ErrOperationInProgress)
		}
		if c.active == "" {
			return c.fail("start mirroring", ErrNoDeviceSelected)
		}
		if c.mirroring != nil {
			return c.fail("start mirroring", ErrAlreadyRunning)
		}
		return c.startMirroring(opts)
	})
}

// StopMirroring stops the mirroring process, if any.
func (c *Controller) StopMirroring() error {
	return c.do(func() error {
		if c.busy {
			return c.fail("stop mirroring", ErrOperationInProgress)
		}
		c.stopMirroring()
		return nil
	})
}

// RefreshDevices lists the visible devices and publishes the listing. A
// listing that cannot be run at all is also reported as an error event.
func (c *Controller) RefreshDevices(ctx context.Context) []string {
	devices, err := c.adb.Devices(ctx)
	serials := make([]string, 0, len(devices))
	for _, d := range devices {
		serials = append(serials, d.Serial)
	}
	c.loop.post(func() {
		if c.closed {
			return
		}
		if err != nil {
			c.fail("refresh devices", err)
		}
		c.emit(Event{Kind: EventDevices, Devices: serials})
	})
	return serials
}

// Active returns the active device, or "" when disconnected.
func (c *Controller) Active() string {
	return c.Snapshot().Active
}

// Mirroring reports whether a mirroring process is running.
func (c *Controller) Mirroring() bool {
	return c.Snapshot().Mirroring
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() State {
	var st State
	c.loop.call(func() {
		st = State{
			Active:  c.active,
			Polling: c.polling,
			Battery: c.battery,
			Busy:    c.busy,
		}
		if c.mirroring != nil {
			st.Mirroring = true
			st.MirroringArgs = c.mirroring.Args()
		}
	})
	return st
}

// Close ends the session, stopping the poller and any mirroring process.
// The Controller is unusable afterwards.
func (c *Controller) Close() {
	c.loop.call(func() {
		if c.closed {
			return
		}
		c.disconnect()
		c.closed = true
	})
	c.loop.stop()
}

func (c *Controller) disconnect() {
	if c.active == "" && c.mirroring == nil && !c.polling {
		return
	}
	c.stopPolling()
	c.stopMirroring()
	prev := c.active
	c.active = ""
	c.battery = 0
	c.emit(Event{Kind: EventDisconnected, Device: prev, Message: "Device disconnected."})
}

func (c *Controller) startPolling() {
	c.stopPolling()
	c.pollGen++
	gen, serial := c.pollGen, c.active
	err := c.poller.Start(serial,
		func(level int) { c.loop.post(func() { c.handleSample(gen, serial, level) }) },
		func() { c.loop.post(func() { c.handleLost(gen, serial) }) },
	)
	if err != nil {
		c.logger.Error("battery poller failed to start", zap.String("device", serial), zap.Error(err))
		return
	}
	c.polling = true
}

func (c *Controller) stopPolling() {
	c.poller.Stop()
	// Invalidate anything the stopped run already posted.
	c.pollGen++
	c.polling = false
}

func (c *Controller) startMirroring(opts mirror.Options) error {
	p, err := c.sup.Start(c.active, opts)
	if err != nil {
		return c.fail("start mirroring", err)
	}
	c.mirroring = p
	c.mirrorOpts = opts
	c.emit(Event{
		Kind:    EventMirroringStarted,
		Device:  c.active,
		Args:    p.Args(),
		Message: "scrcpy started: " + p.CommandLine(),
	})
	return nil
}

func (c *Controller) stopMirroring() {
	if c.mirroring == nil {
		return
	}
	p := c.mirroring
	c.sup.Stop(p)
	// Stop returns after the process's last line and its exit were queued;
	// deliver them now so they precede whatever this operation emits next.
	c.drainProcEvents()
	if c.mirroring == p {
		c.mirroring = nil
		c.emit(Event{
			Kind:    EventMirroringStopped,
			Device:  p.Serial(),
			Reason:  mirror.ExitRequested,
			Message: "scrcpy stopped.",
		})
	}
}

func (c *Controller) handleSample(gen uint64, serial string, level int) {
	if gen != c.pollGen || c.closed {
		return
	}
	c.battery = level
	c.emit(Event{Kind: EventBattery, Device: serial, Battery: level})
}

func (c *Controller) handleLost(gen uint64, serial string) {
	if gen != c.pollGen || c.closed {
		return
	}
	c.polling = false
	c.fail("battery check", fmt.Errorf("%w: %s", ErrDeviceLost, serial))
	c.disconnect()
}

func (c *Controller) handleOutput(p *mirror.Process, line mirror.Line) {
	if c.closed {
		return
	}
	c.emit(Event{Kind: EventOutput, Device: p.Serial(), Stream: line.Stream, Message: line.Text})
}

func (c *Controller) handleExit(p *mirror.Process, reason mirror.ExitReason) {
	if c.mirroring != p {
		return
	}
	c.mirroring = nil
	var msg string
	switch reason {
	case mirror.ExitRequested:
		msg = "scrcpy stopped."
	case mirror.ExitCrashed:
		msg = fmt.Sprintf("scrcpy process crashed (exit %d).", p.ExitCode())
	default:
		msg = "scrcpy process ended."
	}
	c.emit(Event{Kind: EventMirroringStopped, Device: p.Serial(), Reason: reason, Message: msg})
}

// fail reports err as an error event and returns it wrapped with op.
func (c *Controller) fail(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	c.emit(Event{Kind: EventError, Device: c.active, Message: wrapped.Error(), Err: wrapped})
	return wrapped
}

func (c *Controller) status(format string, args ...any) {
	c.emit(Event{Kind: EventStatus, Device: c.active, Message: fmt.Sprintf(format, args...)})
}

func (c *Controller) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	switch ev.Kind {
	case EventError:
		c.logger.Warn(ev.Message, zap.String("device", ev.Device))
	case EventBattery, EventOutput:
		c.logger.Debug(ev.String(), zap.String("device", ev.Device))
	default:
		c.logger.Info(ev.String(), zap.String("event", string(ev.Kind)), zap.String("device", ev.Device))
	}
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}
