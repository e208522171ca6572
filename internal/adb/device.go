package adb

import "strings"

// ConnectionType indicates how a device is connected.
type ConnectionType string

const (
	USB     ConnectionType = "usb"
	WiFi    ConnectionType = "wifi"
	Unknown ConnectionType = "unknown"
)

// Device represents one entry of the adb device listing.
type Device struct {
	Serial      string
	State       string // "device", "offline", "unauthorized", etc.
	ConnType    ConnectionType
	Model       string
	Product     string
	TransportID string
}

// IsOnline returns true if the device is in "device" state (ready).
func (d Device) IsOnline() bool {
	return d.State == "device"
}

// IsNetworkAddress reports whether an identifier names a host:port
// transport rather than a USB serial.
func IsNetworkAddress(serial string) bool {
	return strings.Contains(serial, ":")
}

func connectionType(serial string) ConnectionType {
	switch {
	case serial == "":
		return Unknown
	case IsNetworkAddress(serial):
		return WiFi
	default:
		return USB
	}
}
