package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FluidXR/mirrordeck/internal/adb"
	"github.com/FluidXR/mirrordeck/internal/mirror"

	"go.uber.org/zap"
)

// stepError names the switchover step that failed.
type stepError struct {
	step int
	name string
	err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.step, e.name, e.err)
}

func (e *stepError) Unwrap() error { return e.err }

// SwitchToWireless moves the active USB device onto the wireless transport
// and returns its new identifier. A running mirroring process is restarted
// against the new identifier with the same options.
//
// The commands run on the calling goroutine; ctx cancellation is ignored
// once the switch has begun and only the per-command timeouts bound it.
func (c *Controller) SwitchToWireless(ctx context.Context) (string, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		serial       string
		wasMirroring bool
		opts         mirror.Options
	)
	err := c.do(func() error {
		if c.busy {
			return c.fail("switch to wireless", ErrOperationInProgress)
		}
		if c.active == "" {
			return c.fail("switch to wireless", ErrNoDeviceSelected)
		}
		if adb.IsNetworkAddress(c.active) {
			return c.fail("switch to wireless", fmt.Errorf("%w: %s", ErrAlreadyWireless, c.active))
		}
		c.busy = true
		serial = c.active
		wasMirroring = c.mirroring != nil
		opts = c.mirrorOpts
		// Enabling tcpip restarts adbd; the poller would read that as a lost device.
		c.stopPolling()
		c.status("Switching %s to wireless...", serial)
		return nil
	})
	if err != nil {
		return "", err
	}

	id, err := c.negotiate(ctx, serial)
	if err != nil {
		_ = c.do(func() error {
			c.busy = false
			if c.active != "" {
				c.startPolling()
			}
			return c.fail("switch to wireless", err)
		})
		return "", fmt.Errorf("switch to wireless: %w", err)
	}

	err = c.do(func() error {
		c.busy = false
		prev := c.active
		c.active = id
		c.battery = 0
		c.startPolling()
		c.emit(Event{
			Kind:     EventWirelessReady,
			Device:   id,
			Previous: prev,
			Message:  fmt.Sprintf("Wireless ready: %s (was %s)", id, prev),
		})
		if !wasMirroring {
			return nil
		}
		// The process may already have exited during the switch.
		c.stopMirroring()
		if err := c.restartMirroring(opts); err != nil {
			return c.fail("switch to wireless", &stepError{8, "restart mirroring", err})
		}
		return nil
	})
	if errors.Is(err, ErrClosed) {
		return "", err
	}

	c.RefreshDevices(ctx)
	return id, err
}

// negotiate runs the adb side of the switch off the loop and returns the
// identifier the device will be known by.
func (c *Controller) negotiate(ctx context.Context, serial string) (string, error) {
	port := c.opts.WirelessPort

	if err := c.adb.EnableTCPIP(ctx, serial, port); err != nil {
		return "", &stepError{1, "enable tcpip", fmt.Errorf("%w: %w", ErrTCPIPEnableFailed, err)}
	}
	c.postStatus(fmt.Sprintf("tcpip enabled on port %d.", port))
	time.Sleep(c.settleDelay())

	ip, err := c.adb.RouteSource(ctx, serial)
	if err != nil {
		return "", &stepError{3, "discover address", fmt.Errorf("%w: %w", ErrAddressDiscoveryFailed, err)}
	}
	addr := adb.WirelessAddress(ip, port)
	c.postStatus("Device address " + addr)

	if err := c.adb.Connect(ctx, addr); err != nil {
		return "", &stepError{4, "connect", fmt.Errorf("%w: %w", ErrWirelessConnectFailed, err)}
	}
	time.Sleep(c.reconnectDelay())

	listing := c.adb.Serials(ctx)
	id, found := resolveIdentifier(listing, ip, addr)
	if !found {
		c.logger.Warn("wireless device not listed yet, using formed address",
			zap.String("address", addr), zap.Strings("devices", listing))
	}
	return id, nil
}

// resolveIdentifier picks the listed identifier for the device at ip,
// falling back to addr when none matches.
func resolveIdentifier(listing []string, ip, addr string) (string, bool) {
	for _, id := range listing {
		if strings.Contains(id, addr) || strings.HasPrefix(id, ip+":") {
			return id, true
		}
	}
	return addr, false
}

func (c *Controller) restartMirroring(opts mirror.Options) error {
	p, err := c.sup.Start(c.active, opts)
	if err != nil {
		return err
	}
	c.mirroring = p
	c.mirrorOpts = opts
	c.emit(Event{
		Kind:    EventMirroringStarted,
		Device:  c.active,
		Args:    p.Args(),
		Message: "scrcpy restarted: " + p.CommandLine(),
	})
	return nil
}

func (c *Controller) postStatus(msg string) {
	c.loop.post(func() {
		if !c.closed {
			c.status("%s", msg)
		}
	})
}

func (c *Controller) settleDelay() time.Duration {
	if c.opts.SettleDelay > 0 {
		return c.opts.SettleDelay
	}
	return DefaultSettleDelay
}

func (c *Controller) reconnectDelay() time.Duration {
	if c.opts.ReconnectDelay > 0 {
		return c.opts.ReconnectDelay
	}
	return DefaultReconnectDelay
}
