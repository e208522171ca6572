package cmd

import (
	"fmt"
	"time"

	"github.com/FluidXR/mirrordeck/internal/adb"
	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/history"
	"github.com/FluidXR/mirrordeck/internal/runner"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:               "devices",
	Short:             "List connected devices",
	PersistentPreRunE: requireDeps("adb"),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, cmd.ErrOrStderr())
		defer logger.Sync()

		adbClient := adb.NewClient(cfg.ADBPath, runner.New(logger), logger)
		devices, err := adbClient.Devices(cmd.Context())
		if err != nil {
			return err
		}

		if len(devices) == 0 {
			fmt.Println("No devices connected.")
			return nil
		}

		db, err := history.Open(config.ConfigDir())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()

		now := time.Now()
		for _, d := range devices {
			nickname := ""
			if name := cfg.DeviceName(d.Serial); name != d.Serial {
				nickname = fmt.Sprintf(" (%s)", name)
			}

			status := d.State
			if !d.IsOnline() {
				status = "OFFLINE"
			}

			fmt.Printf("%-22s %s  [%s] [%s]%s\n",
				d.Serial, d.Model, d.ConnType, status, nickname)

			if rec, ok, err := db.Device(d.Serial); err == nil && ok {
				fmt.Printf("  Last seen: %s", rec.LastSeen.Format(time.DateTime))
				if rec.WiFiAddr != "" {
					fmt.Printf(" | Wireless: %s", rec.WiFiAddr)
				}
				fmt.Println()
			}
			if d.IsOnline() {
				if err := db.RecordSeen(now, d.Serial); err != nil {
					logger.Sugar().Warnf("record %s: %v", d.Serial, err)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
