package cmd

import (
	"fmt"
	"time"

	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/history"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [serial]",
	Short: "Show recent session events",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := history.Open(config.ConfigDir())
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer db.Close()

		var device string
		if len(args) > 0 {
			device = args[0]
		}
		events, err := db.Recent(device, historyLimit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No session history yet.")
			return nil
		}
		// Oldest first reads like a log.
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			name := ""
			if e.Device != "" {
				name = cfg.DeviceName(e.Device)
			}
			fmt.Printf("%s  %-20s %s\n", e.At.Format(time.DateTime), name, e.Message)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "Number of events to show")
	rootCmd.AddCommand(historyCmd)
}
