package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/console"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:               "console",
	Short:             "Interactive terminal console",
	PersistentPreRunE: requireDeps("adb", "scrcpy"),
	Long: `Opens a full-screen console with the device list, the active device's
battery and mirroring state, and a live log. Logs are written to
console.log in the config directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		logPath := filepath.Join(config.ConfigDir(), "console.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open console log: %w", err)
		}
		defer logFile.Close()
		logger := newLogger(cfg, logFile)

		feed := console.NewFeed(0)
		a := newApp(cfg, logger, feed.Publish)
		defer a.Close()

		model := console.NewModel(a.ctrl, feed.Events(), console.Options{
			Mirroring:  cfg.Mirroring,
			DeviceName: cfg.DeviceName,
		})
		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("console: %w", err)
		}
		if n := feed.Dropped(); n > 0 {
			logger.Sugar().Warnf("console dropped %d session events", n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
