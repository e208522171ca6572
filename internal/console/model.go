// Package console is the interactive terminal front end: a device list,
// the active session's status and a scrolling log.
package console

import (
	"context"
	"strings"
	"time"

	"github.com/FluidXR/mirrordeck/internal/mirror"
	"github.com/FluidXR/mirrordeck/internal/session"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	// RefreshInterval is how often the device list is re-read.
	RefreshInterval = 2 * time.Second

	maxLogLines = 500
)

// Controller is the part of *session.Controller the console drives.
type Controller interface {
	Connect(id string) error
	Disconnect() error
	StartMirroring(opts mirror.Options) error
	StopMirroring() error
	SwitchToWireless(ctx context.Context) (string, error)
	RefreshDevices(ctx context.Context) []string
}

// Options configure a Model.
type Options struct {
	// Mirroring is used when the user starts mirroring.
	Mirroring mirror.Options
	// DeviceName maps an identifier to a display name. Nil shows
	// identifiers as-is.
	DeviceName func(id string) string
	Keys       *KeyMap
}

// sessionEventMsg wraps an event read from the feed.
type sessionEventMsg struct{ event session.Event }

type refreshTickMsg struct{}

// opDoneMsg reports a controller call that finished. Failures are also
// delivered as error events, so only the wireless switch looks at it.
type opDoneMsg struct {
	wireless bool
	err      error
}

// Model implements tea.Model.
type Model struct {
	ctrl   Controller
	events <-chan session.Event
	opts   Options
	keys   KeyMap

	devices   []string
	cursor    int
	active    string
	battery   int // -1 while unknown
	mirroring bool
	switching bool

	logs   []string
	logBox viewport.Model
	width  int
	height int
}

// NewModel returns a console over ctrl reading events from events.
func NewModel(ctrl Controller, events <-chan session.Event, opts Options) Model {
	keys := DefaultKeyMap
	if opts.Keys != nil {
		keys = *opts.Keys
	}
	if opts.DeviceName == nil {
		opts.DeviceName = func(id string) string { return id }
	}
	m := Model{
		ctrl:    ctrl,
		events:  events,
		opts:    opts,
		keys:    keys,
		battery: -1,
		width:   80,
		height:  24,
	}
	m.layout()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(listenForSessionEvent(m.events), m.refresh(), scheduleRefresh())
}

// listenForSessionEvent blocks until an event arrives on the feed.
func listenForSessionEvent(events <-chan session.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return sessionEventMsg{event: ev}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg { return refreshTickMsg{} })
}

func (m Model) refresh() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.RefreshDevices(context.Background())
		return nil
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case sessionEventMsg:
		m.apply(msg.event)
		return m, listenForSessionEvent(m.events)

	case refreshTickMsg:
		return m, tea.Batch(m.refresh(), scheduleRefresh())

	case opDoneMsg:
		if msg.wireless {
			m.switching = false
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.logBox, cmd = m.logBox.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Connect):
		id := m.selected()
		return m, m.call(func(c Controller) error { return c.Connect(id) })
	case key.Matches(msg, m.keys.Disconnect):
		return m, m.call(Controller.Disconnect)
	case key.Matches(msg, m.keys.StartMirror):
		opts := m.opts.Mirroring
		return m, m.call(func(c Controller) error { return c.StartMirroring(opts) })
	case key.Matches(msg, m.keys.StopMirror):
		return m, m.call(Controller.StopMirroring)

	case key.Matches(msg, m.keys.Wireless):
		if m.switching {
			return m, nil
		}
		m.switching = true
		ctrl := m.ctrl
		return m, func() tea.Msg {
			_, err := ctrl.SwitchToWireless(context.Background())
			return opDoneMsg{wireless: true, err: err}
		}

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	}
	return m, nil
}

// call runs fn against the controller off the update goroutine.
func (m Model) call(fn func(Controller) error) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return opDoneMsg{err: fn(ctrl)}
	}
}

func (m Model) selected() string {
	if m.cursor < 0 || m.cursor >= len(m.devices) {
		return ""
	}
	return m.devices[m.cursor]
}

// apply folds one session event into the model.
func (m *Model) apply(ev session.Event) {
	switch ev.Kind {
	case session.EventDevices:
		prev := m.selected()
		m.devices = ev.Devices
		m.cursor = 0
		for i, id := range m.devices {
			if id == prev {
				m.cursor = i
				break
			}
		}
		m.layout()
		return
	case session.EventBattery:
		m.battery = ev.Battery
		return
	case session.EventConnected:
		m.active = ev.Device
		m.battery = -1
	case session.EventDisconnected:
		m.active = ""
		m.battery = -1
		m.mirroring = false
	case session.EventWirelessReady:
		m.active = ev.Device
		m.battery = -1
	case session.EventMirroringStarted:
		m.mirroring = true
	case session.EventMirroringStopped:
		m.mirroring = false
	}
	if ev.IsLog() {
		m.appendLog(ev)
	}
}

func (m *Model) appendLog(ev session.Event) {
	line := ev.Time.Format("15:04:05") + " " + ev.String()
	if ev.Time.IsZero() {
		line = ev.String()
	}
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[len(m.logs)-maxLogLines:]
	}
	m.logBox.SetContent(strings.Join(m.logs, "\n"))
	m.logBox.GotoBottom()
}

// layout sizes the log viewport to what is left below the device list
// and status line.
func (m *Model) layout() {
	m.logBox.Width = m.width
	h := m.height - listHeight(len(m.devices)) - chromeLines
	if h < 3 {
		h = 3
	}
	m.logBox.Height = h
}
