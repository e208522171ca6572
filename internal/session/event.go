package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/FluidXR/mirrordeck/internal/mirror"
)

// EventKind classifies session events.
type EventKind string

const (
	EventDevices          EventKind = "devices"
	EventConnected        EventKind = "connected"
	EventDisconnected     EventKind = "disconnected"
	EventBattery          EventKind = "battery"
	EventMirroringStarted EventKind = "mirroring_started"
	EventMirroringStopped EventKind = "mirroring_stopped"
	EventOutput           EventKind = "output"
	EventStatus           EventKind = "status"
	EventWirelessReady    EventKind = "wireless_ready"
	EventError            EventKind = "error"
)

// Event is one observable change of the session. Events are delivered in
// order from the controller's loop goroutine.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Device   string
	Previous string   // EventWirelessReady: the identifier before the switch
	Devices  []string // EventDevices
	Battery  int      // EventBattery
	Stream   mirror.Stream
	Reason   mirror.ExitReason
	Args     []string // EventMirroringStarted
	Message  string
	Err      error
}

// IsLog reports whether the event is meant for the log view.
func (e Event) IsLog() bool {
	switch e.Kind {
	case EventDevices, EventBattery:
		return false
	}
	return true
}

// String renders the event as one human-readable log line.
func (e Event) String() string {
	switch e.Kind {
	case EventOutput:
		if e.Stream == mirror.StreamStderr {
			return "[scrcpy-err] " + e.Message
		}
		return "[scrcpy] " + e.Message
	case EventError:
		return "error: " + e.Message
	case EventDevices:
		if len(e.Devices) == 0 {
			return "no devices"
		}
		return "devices: " + strings.Join(e.Devices, ", ")
	case EventBattery:
		return fmt.Sprintf("battery %s: %d%%", e.Device, e.Battery)
	}
	return e.Message
}
