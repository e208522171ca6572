package adb

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/FluidXR/mirrordeck/internal/runner"
)

// scriptedRunner answers commands from a table keyed by the joined argv.
type scriptedRunner struct {
	results map[string]runner.Result
	errs    map[string]error
	calls   [][]string
}

func (s *scriptedRunner) Run(_ context.Context, _ time.Duration, argv []string) (runner.Result, error) {
	s.calls = append(s.calls, argv)
	key := strings.Join(argv, " ")
	if err, ok := s.errs[key]; ok {
		return runner.Result{Argv: argv, ExitCode: -1}, err
	}
	if res, ok := s.results[key]; ok {
		res.Argv = argv
		return res, nil
	}
	return runner.Result{Argv: argv, ExitCode: 1, Stderr: "unexpected command"}, nil
}

func newScripted() *scriptedRunner {
	return &scriptedRunner{results: map[string]runner.Result{}, errs: map[string]error{}}
}

func TestParseDeviceListSkipsHeaderAndBlankLines(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{
			name:   "typical",
			output: "List of devices attached\nABC123\tdevice\n192.168.1.42:5555\tdevice\n\n",
			want:   []string{"ABC123", "192.168.1.42:5555"},
		},
		{
			name:   "trailing whitespace and crlf",
			output: "List of devices attached  \r\nABC123\tdevice   \r\n   \r\n\t\r\n",
			want:   []string{"ABC123"},
		},
		{
			name:   "daemon startup chatter",
			output: "* daemon not running; starting now at tcp:5037\n* daemon started successfully\nList of devices attached\nXYZ\tunauthorized\n",
			want:   []string{"XYZ"},
		},
		{
			name:   "header only",
			output: "List of devices attached\n\n",
			want:   nil,
		},
		{
			name:   "empty",
			output: "",
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, d := range parseDeviceList(tt.output) {
				got = append(got, d.Serial)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDeviceListLongFormat(t *testing.T) {
	out := "List of devices attached\n" +
		"1WMHH812345678 device usb:1-1 product:hollywood model:Quest_3 device:eureka transport_id:2\n" +
		"10.0.0.5:5555 offline\n"
	devices := parseDeviceList(out)
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	usb := devices[0]
	if usb.Model != "Quest_3" || usb.Product != "hollywood" || usb.TransportID != "2" {
		t.Fatalf("unexpected key/value parse: %+v", usb)
	}
	if usb.ConnType != USB || !usb.IsOnline() {
		t.Fatalf("expected online usb device, got %+v", usb)
	}
	wifi := devices[1]
	if wifi.ConnType != WiFi || wifi.IsOnline() {
		t.Fatalf("expected offline wifi device, got %+v", wifi)
	}
}

func TestSerialsNeverFails(t *testing.T) {
	r := newScripted()
	r.errs["adb devices"] = &runner.TimeoutError{Argv: []string{"adb", "devices"}, Timeout: time.Second}
	c := NewClient("adb", r, nil)
	if got := c.Serials(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty listing on timeout, got %q", got)
	}

	r = newScripted()
	r.errs["adb devices"] = &runner.LaunchError{Argv: []string{"adb"}, Err: errors.New("not found")}
	c = NewClient("adb", r, nil)
	got := c.Serials(context.Background())
	if got == nil || len(got) != 0 {
		t.Fatalf("expected non-nil empty listing on launch failure, got %#v", got)
	}
	if _, err := c.Devices(context.Background()); !errors.Is(err, runner.ErrLaunch) {
		t.Fatalf("Devices should surface launch failures, got %v", err)
	}
}

func TestSerialsNonZeroExit(t *testing.T) {
	r := newScripted()
	r.results["adb devices"] = runner.Result{ExitCode: 1, Stdout: "List of devices attached\nGHOST\tdevice\n"}
	c := NewClient("adb", r, nil)
	if got := c.Serials(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty listing on failure, got %q", got)
	}
}

func TestBattery(t *testing.T) {
	const dumpsys = "Current Battery Service state:\n  AC powered: false\n  USB powered: true\n  status: 2\n  level: 87\n  scale: 100\n"
	r := newScripted()
	r.results["adb -s ABC123 shell dumpsys battery"] = runner.Result{Stdout: dumpsys}
	c := NewClient("adb", r, nil)

	level, err := c.Battery(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level != 87 {
		t.Fatalf("expected 87, got %d", level)
	}
}

func TestBatteryFailures(t *testing.T) {
	tests := []struct {
		name string
		res  runner.Result
		err  error
	}{
		{name: "no level field", res: runner.Result{Stdout: "Current Battery Service state:\n  scale: 100\n"}},
		{name: "garbage level", res: runner.Result{Stdout: "  level: lots\n"}},
		{name: "empty output", res: runner.Result{Stdout: "   \n"}},
		{name: "non-zero exit", res: runner.Result{ExitCode: 1, Stdout: "  level: 50\n", Stderr: "error: device 'ABC123' not found"}},
		{name: "timeout", err: &runner.TimeoutError{Timeout: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newScripted()
			key := "adb -s ABC123 shell dumpsys battery"
			if tt.err != nil {
				r.errs[key] = tt.err
			} else {
				r.results[key] = tt.res
			}
			if level, err := NewClient("adb", r, nil).Battery(context.Background(), "ABC123"); err == nil {
				t.Fatalf("expected error, got level %d", level)
			}
		})
	}
}

func TestParseBatteryLevelClamps(t *testing.T) {
	if got, err := parseBatteryLevel("  level: 150\n"); err != nil || got != 100 {
		t.Fatalf("expected clamp to 100, got %d (%v)", got, err)
	}
	if got, err := parseBatteryLevel("  level: -4\n"); err != nil || got != 0 {
		t.Fatalf("expected clamp to 0, got %d (%v)", got, err)
	}
	if _, err := parseBatteryLevel("  voltage: 4100\n"); !errors.Is(err, ErrNoBatteryLevel) {
		t.Fatalf("expected ErrNoBatteryLevel, got %v", err)
	}
}

func TestRouteSource(t *testing.T) {
	r := newScripted()
	r.results["adb -s ABC123 shell ip route get 1"] = runner.Result{
		Stdout: "1.0.0.0 via 192.168.1.1 dev wlan0 table 1021 src 192.168.1.42 uid 2000 \n    cache\n",
	}
	c := NewClient("adb", r, nil)
	ip, err := c.RouteSource(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := WirelessAddress(ip, DefaultWirelessPort); got != "192.168.1.42:5555" {
		t.Fatalf("expected 192.168.1.42:5555, got %q", got)
	}
}

func TestRouteSourceMissing(t *testing.T) {
	for _, out := range []string{"", "1.0.0.0 via 192.168.1.1 dev wlan0", "error: no route src"} {
		r := newScripted()
		r.results["adb -s ABC123 shell ip route get 1"] = runner.Result{Stdout: out}
		_, err := NewClient("adb", r, nil).RouteSource(context.Background(), "ABC123")
		if !errors.Is(err, ErrNoRouteSource) {
			t.Fatalf("output %q: expected ErrNoRouteSource, got %v", out, err)
		}
	}
}

func TestConnect(t *testing.T) {
	r := newScripted()
	r.results["adb connect 10.0.0.5:5555"] = runner.Result{Stdout: "connected to 10.0.0.5:5555\n"}
	r.results["adb connect 10.0.0.6:5555"] = runner.Result{Stdout: "failed to connect to '10.0.0.6:5555': Connection refused\n"}
	r.results["adb connect 10.0.0.7:5555"] = runner.Result{ExitCode: 1, Stderr: "cannot connect"}
	c := NewClient("adb", r, nil)

	if err := c.Connect(context.Background(), "10.0.0.5:5555"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Connect(context.Background(), "10.0.0.6:5555"); err == nil {
		t.Fatal("expected failure for 'failed to connect' output")
	}
	if err := c.Connect(context.Background(), "10.0.0.7:5555"); err == nil {
		t.Fatal("expected failure for non-zero exit")
	}
}

func TestEnableTCPIPCommandShape(t *testing.T) {
	r := newScripted()
	r.results["adb -s ABC123 tcpip 5555"] = runner.Result{Stdout: "restarting in TCP mode port: 5555\n"}
	c := NewClient("adb", r, nil)
	if err := c.EnableTCPIP(context.Background(), "ABC123", DefaultWirelessPort); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"adb", "-s", "ABC123", "tcpip", "5555"}
	if !reflect.DeepEqual(r.calls[0], want) {
		t.Fatalf("got argv %q, want %q", r.calls[0], want)
	}

	r.results["adb -s ABC123 tcpip 5555"] = runner.Result{ExitCode: 1, Stderr: "error: no devices/emulators found"}
	if err := c.EnableTCPIP(context.Background(), "ABC123", DefaultWirelessPort); err == nil {
		t.Fatal("expected failure on non-zero exit")
	}
}

func TestIsNetworkAddress(t *testing.T) {
	if IsNetworkAddress("ABC123") {
		t.Fatal("serial is not a network address")
	}
	if !IsNetworkAddress("10.0.0.5:5555") {
		t.Fatal("host:port is a network address")
	}
}
