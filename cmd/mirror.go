package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/FluidXR/mirrordeck/internal/mirror"
	"github.com/FluidXR/mirrordeck/internal/session"

	"github.com/spf13/cobra"
)

var (
	mirrorBitrate   string
	mirrorMaxFPS    string
	mirrorNoControl bool
	mirrorExtra     string
	mirrorWireless  bool
)

var mirrorCmd = &cobra.Command{
	Use:               "mirror [serial]",
	Short:             "Mirror a device with scrcpy and stream its log",
	PersistentPreRunE: requireDeps("adb", "scrcpy"),
	Args:              cobra.MaximumNArgs(1),
	Long: `Connects to the device, optionally moves it to wireless ADB first, and runs
scrcpy against it until the window is closed or the command is interrupted.
Options not given on the command line come from the "mirroring" section of
the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, cmd.ErrOrStderr())

		opts := cfg.Mirroring
		flags := cmd.Flags()
		if flags.Changed("bitrate") {
			opts.Bitrate = mirrorBitrate
		}
		if flags.Changed("max-fps") {
			opts.MaxFPS = mirrorMaxFPS
		}
		if flags.Changed("no-control") {
			opts.DisableControl = fmt.Sprint(mirrorNoControl)
		}
		if flags.Changed("extra") {
			opts.Extra = mirrorExtra
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ended := make(chan mirror.ExitReason, 1)
		a := newApp(cfg, logger, func(ev session.Event) {
			printEvent(cfg, ev)
			if ev.Kind == session.EventMirroringStopped || ev.Kind == session.EventDisconnected {
				select {
				case ended <- ev.Reason:
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
		if mirrorWireless && !isWireless(serial) {
			id, err := a.ctrl.SwitchToWireless(ctx)
			if err != nil {
				return err
			}
			rememberWiFi(serial, id)
		}
		if err := a.ctrl.StartMirroring(opts); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case reason := <-ended:
			if reason == mirror.ExitCrashed {
				return fmt.Errorf("scrcpy exited with an error")
			}
			return nil
		}
	},
}

func init() {
	f := mirrorCmd.Flags()
	f.StringVarP(&mirrorBitrate, "bitrate", "b", "", "Video bitrate, e.g. 8M")
	f.StringVar(&mirrorMaxFPS, "max-fps", "", "Limit the frame rate")
	f.BoolVar(&mirrorNoControl, "no-control", false, "Disable keyboard and mouse input to the device")
	f.StringVar(&mirrorExtra, "extra", "", `Extra scrcpy options, e.g. "--turn-screen-off --stay-awake"`)
	f.BoolVarP(&mirrorWireless, "wireless", "w", false, "Switch the device to wireless ADB before mirroring")
	rootCmd.AddCommand(mirrorCmd)
}
