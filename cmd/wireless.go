package cmd

import (
	"fmt"
	"net"
	"os"

	"github.com/FluidXR/mirrordeck/internal/adb"
	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/session"

	"github.com/spf13/cobra"
)

var wirelessCmd = &cobra.Command{
	Use:               "wireless [serial]",
	Short:             "Move a USB-connected device to wireless ADB",
	PersistentPreRunE: requireDeps("adb"),
	Args:              cobra.MaximumNArgs(1),
	Long: `Enables ADB over TCP/IP on the device, discovers its Wi-Fi address and
connects to it. The address is stored as the device's wifi_ip in the config.
The USB cable can be unplugged afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, cmd.ErrOrStderr())

		a := newApp(cfg, logger, func(ev session.Event) {
			if ev.Kind == session.EventStatus || ev.Kind == session.EventError {
				printEvent(cfg, ev)
			}
		})
		defer a.Close()

		var serial string
		if len(args) > 0 {
			serial = args[0]
		}
		serial, err = a.pickDevice(cmd.Context(), serial)
		if err != nil {
			return err
		}
		if err := a.ctrl.Connect(serial); err != nil {
			return err
		}
		id, err := a.ctrl.SwitchToWireless(cmd.Context())
		if err != nil {
			return err
		}
		rememberWiFi(serial, id)
		fmt.Printf("%s is now available at %s\n", cfg.DeviceName(serial), id)
		fmt.Printf("Mirror it with: mirrordeck mirror %s\n", id)
		return nil
	},
}

func isWireless(serial string) bool {
	return adb.IsNetworkAddress(serial)
}

// rememberWiFi stores the host part of id as serial's wifi_ip.
func rememberWiFi(serial, id string) {
	host, _, err := net.SplitHostPort(id)
	if err != nil {
		host = id
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
		return
	}
	cfg.SetWiFiIP(serial, host)
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
	}
}

func init() {
	rootCmd.AddCommand(wirelessCmd)
}
