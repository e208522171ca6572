package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/FluidXR/mirrordeck/internal/session"

	"github.com/spf13/cobra"
)

var batteryCmd = &cobra.Command{
	Use:               "battery [serial]",
	Short:             "Print a device's battery level until interrupted",
	PersistentPreRunE: requireDeps("adb"),
	Args:              cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, cmd.ErrOrStderr())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		lost := make(chan struct{}, 1)
		a := newApp(cfg, logger, func(ev session.Event) {
			switch ev.Kind {
			case session.EventBattery:
				fmt.Printf("%s  %s  %d%%\n", ev.Time.Format("15:04:05"), cfg.DeviceName(ev.Device), ev.Battery)
			case session.EventError:
				printEvent(cfg, ev)
			case session.EventDisconnected:
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		})
		defer a.Close()

		var serial string
		if len(args) > 0 {
			serial = args[0]
		}
		serial, err = a.pickDevice(ctx, serial)
		if err != nil {
			return err
		}
		if err := a.ctrl.Connect(serial); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return fmt.Errorf("battery %s: %w", serial, session.ErrDeviceLost)
		}
	},
}

func init() {
	rootCmd.AddCommand(batteryCmd)
}

