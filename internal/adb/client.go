package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/FluidXR/mirrordeck/internal/runner"

	"go.uber.org/zap"
)

// DefaultWirelessPort is the port adb listens on after `tcpip`.
const DefaultWirelessPort = 5555

const (
	devicesTimeout = 5 * time.Second
	batteryTimeout = 3 * time.Second
	tcpipTimeout   = 6 * time.Second
	routeTimeout   = 3 * time.Second
	connectTimeout = 6 * time.Second
)

var (
	// ErrNoBatteryLevel is returned when dumpsys output has no usable level field.
	ErrNoBatteryLevel = errors.New("no battery level in output")
	// ErrNoRouteSource is returned when route output has no token after "src".
	ErrNoRouteSource = errors.New("no src address in route output")
)

// Client wraps ADB command-line calls.
type Client struct {
	path   string
	runner runner.Runner
	logger *zap.Logger
}

// NewClient creates a new ADB client running the adb binary at path.
func NewClient(path string, r runner.Runner, logger *zap.Logger) *Client {
	if path == "" {
		path = "adb"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		r = runner.New(logger)
	}
	return &Client{path: path, runner: r, logger: logger.Named("adb")}
}

func (c *Client) run(ctx context.Context, timeout time.Duration, args ...string) (runner.Result, error) {
	argv := append([]string{c.path}, args...)
	return c.runner.Run(ctx, timeout, argv)
}

// Devices returns all devices adb currently lists. Only a launch failure is
// an error; a failing or timed out listing is reported as no devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	res, err := c.run(ctx, devicesTimeout, "devices")
	if err != nil {
		if errors.Is(err, runner.ErrLaunch) {
			return nil, fmt.Errorf("adb devices: %w", err)
		}
		c.logger.Warn("device listing failed", zap.Error(err))
		return nil, nil
	}
	if res.ExitCode != 0 {
		c.logger.Warn("device listing failed",
			zap.Int("exitCode", res.ExitCode), zap.String("stderr", strings.TrimSpace(res.Stderr)))
		return nil, nil
	}
	return parseDeviceList(res.Stdout), nil
}

// Serials returns the identifiers of all listed devices, in listing order.
// It never fails: any problem yields an empty slice.
func (c *Client) Serials(ctx context.Context) []string {
	devices, err := c.Devices(ctx)
	if err != nil {
		c.logger.Warn("device listing failed", zap.Error(err))
		return []string{}
	}
	serials := make([]string, 0, len(devices))
	for _, d := range devices {
		serials = append(serials, d.Serial)
	}
	return serials
}

// Battery returns the device's battery level in percent.
func (c *Client) Battery(ctx context.Context, serial string) (int, error) {
	res, err := c.run(ctx, batteryTimeout, "-s", serial, "shell", "dumpsys", "battery")
	if err != nil {
		return 0, fmt.Errorf("adb battery %s: %w", serial, err)
	}
	if res.ExitCode != 0 || strings.TrimSpace(res.Stdout) == "" {
		return 0, fmt.Errorf("adb battery %s: exit %d: %s", serial, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	level, err := parseBatteryLevel(res.Stdout)
	if err != nil {
		return 0, fmt.Errorf("adb battery %s: %w", serial, err)
	}
	return level, nil
}

// EnableTCPIP restarts adbd on the device listening on the given port.
func (c *Client) EnableTCPIP(ctx context.Context, serial string, port int) error {
	res, err := c.run(ctx, tcpipTimeout, "-s", serial, "tcpip", strconv.Itoa(port))
	if err != nil {
		return fmt.Errorf("adb tcpip %s: %w", serial, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("adb tcpip %s: exit %d: %s", serial, res.ExitCode, strings.TrimSpace(res.Output()))
	}
	return nil
}

// RouteSource returns the source address the device uses for its default
// route, i.e. its address on the local network.
func (c *Client) RouteSource(ctx context.Context, serial string) (string, error) {
	res, err := c.run(ctx, routeTimeout, "-s", serial, "shell", "ip", "route", "get", "1")
	if err != nil {
		return "", fmt.Errorf("adb route %s: %w", serial, err)
	}
	ip, ok := parseRouteSource(res.Output())
	if !ok {
		return "", fmt.Errorf("adb route %s: %w: %q", serial, ErrNoRouteSource, strings.TrimSpace(res.Output()))
	}
	return ip, nil
}

// Connect connects to a wireless ADB device at addr (host:port).
func (c *Client) Connect(ctx context.Context, addr string) error {
	res, err := c.run(ctx, connectTimeout, "connect", addr)
	if err != nil {
		return fmt.Errorf("adb connect %s: %w", addr, err)
	}
	output := strings.TrimSpace(res.Output())
	if res.ExitCode != 0 {
		return fmt.Errorf("adb connect %s: exit %d: %s", addr, res.ExitCode, output)
	}
	// adb exits 0 on "failed to connect to ..." as well.
	if !strings.Contains(output, "connected") {
		return fmt.Errorf("adb connect %s: %s", addr, output)
	}
	return nil
}

// WirelessAddress formats the adb address for ip and port.
func WirelessAddress(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

// parseDeviceList parses `adb devices` (optionally `-l`) output. The first
// line is the header; the first token of every other line is the serial.
func parseDeviceList(output string) []Device {
	var devices []Device
	scanner := bufio.NewScanner(strings.NewReader(output))
	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// adb prints "* daemon ..." lines before the header when it has to
		// start the server.
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		if header {
			header = false
			continue
		}
		fields := strings.Fields(line)
		d := Device{
			Serial:   fields[0],
			ConnType: connectionType(fields[0]),
		}
		if len(fields) > 1 {
			d.State = fields[1]
		}
		// Parse key:value pairs
		for _, f := range fields[min(2, len(fields)):] {
			parts := strings.SplitN(f, ":", 2)
			if len(parts) != 2 {
				continue
			}
			switch parts[0] {
			case "model":
				d.Model = parts[1]
			case "product":
				d.Product = parts[1]
			case "transport_id":
				d.TransportID = parts[1]
			}
		}
		devices = append(devices, d)
	}
	return devices
}

// parseBatteryLevel reads the first "level:" line of `dumpsys battery`.
func parseBatteryLevel(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "level:") {
			continue
		}
		_, value, _ := strings.Cut(line, ":")
		level, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNoBatteryLevel, strings.TrimSpace(line))
		}
		return max(0, min(100, level)), nil
	}
	return 0, ErrNoBatteryLevel
}

// parseRouteSource returns the token following the literal "src".
func parseRouteSource(output string) (string, bool) {
	tokens := strings.Fields(output)
	for i, t := range tokens {
		if t == "src" && i+1 < len(tokens) {
			return tokens[i+1], true
		}
	}
	return "", false
}
