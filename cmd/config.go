package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/mirror"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage mirrordeck configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("Config file: %s\n\n", config.ConfigPath())
		fmt.Printf("adb:           %s\n", cfg.ADBPath)
		fmt.Printf("scrcpy:        %s\n", cfg.ScrcpyPath)
		fmt.Printf("Poll interval: %s\n", cfg.PollInterval)
		fmt.Printf("Stop timeout:  %s\n", cfg.StopTimeout)
		fmt.Printf("Logging:       %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
		fmt.Printf("Mirroring:     %s\n", describeMirroring(cfg.Mirroring))
		fmt.Printf("Wireless:      port %d, settle %s, reconnect %s\n",
			cfg.Wireless.Port, cfg.Wireless.SettleDelay, cfg.Wireless.ReconnectDelay)

		fmt.Printf("\nDevices:\n")
		if len(cfg.Devices) == 0 {
			fmt.Println("  (none configured)")
		}
		serials := make([]string, 0, len(cfg.Devices))
		for serial := range cfg.Devices {
			serials = append(serials, serial)
		}
		sort.Strings(serials)
		for _, serial := range serials {
			dc := cfg.Devices[serial]
			fmt.Printf("  - %s", serial)
			if dc.Nickname != "" {
				fmt.Printf(" (%s)", dc.Nickname)
			}
			if dc.WiFiIP != "" {
				fmt.Printf(" [wifi: %s]", dc.WiFiIP)
			}
			fmt.Println()
		}
		return nil
	},
}

// describeMirroring renders the scrcpy arguments opts add, or "defaults".
func describeMirroring(opts mirror.Options) string {
	args := mirror.Args("", opts)[2:]
	if len(args) == 0 {
		return "scrcpy defaults"
	}
	return strings.Join(args, " ")
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Config created at %s\n", config.ConfigPath())
		return nil
	},
}

var configNicknameCmd = &cobra.Command{
	Use:   "nickname <serial> <name>",
	Short: "Set a nickname for a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serial := args[0]
		name := args[1]

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dc := cfg.Devices[serial]
		dc.Nickname = name
		cfg.Devices[serial] = dc
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Set nickname for %s: %s\n", serial, name)
		return nil
	},
}

var configSetWiFiCmd = &cobra.Command{
	Use:   "set-wifi <serial> <ip>",
	Short: "Set WiFi IP for a device (for wireless ADB)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		serial := args[0]
		ip := args[1]

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.SetWiFiIP(serial, ip)
		if err := config.Save(cfg); err != nil {
			return err
		}
		fmt.Printf("Set WiFi IP for %s: %s\n", serial, ip)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configNicknameCmd)
	configCmd.AddCommand(configSetWiFiCmd)
	rootCmd.AddCommand(configCmd)
}
