package session

import (
	"errors"

	"github.com/FluidXR/mirrordeck/internal/mirror"
)

var (
	ErrNoDeviceSelected    = errors.New("no device selected")
	ErrAlreadyRunning      = mirror.ErrAlreadyRunning
	ErrOperationInProgress = errors.New("another operation is in progress")
	ErrDeviceLost          = errors.New("device lost")
	ErrClosed              = errors.New("session closed")

	// Wireless switchover failures.
	ErrTCPIPEnableFailed      = errors.New("tcpip enable failed")
	ErrAddressDiscoveryFailed = errors.New("address discovery failed")
	ErrWirelessConnectFailed  = errors.New("wireless connect failed")
	ErrAlreadyWireless        = errors.New("device is already on a wireless transport")
)
