package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version of mirrordeck.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "mirrordeck",
	Short:   "Mirror Android devices over USB or Wi-Fi with scrcpy",
	Version: Version,
	Long: `mirrordeck keeps a session with one Android device over ADB: it tracks the
battery, supervises a scrcpy mirroring window and moves a USB-connected device
to wireless ADB without losing the mirror.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("adb", "", "Path to the adb binary (default from config)")
	flags.String("scrcpy", "", "Path to the scrcpy binary (default from config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")

	bindFlags(flags, "adb", "scrcpy", "log-level", "log-format")
	viper.SetEnvPrefix("MIRRORDECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags makes the named flags visible to viper, which also resolves
// them from MIRRORDECK_* environment variables.
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

// loadConfig reads the config file and applies flag and environment
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := viper.GetString("adb"); v != "" {
		cfg.ADBPath = v
	}
	if v := viper.GetString("scrcpy"); v != "" {
		cfg.ScrcpyPath = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.LogFormat = v
	}
	return cfg, nil
}

// newLogger builds the process logger. Diagnostics go to out; command
// output stays on stdout.
func newLogger(cfg *config.Config, out io.Writer) *zap.Logger {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: out,
	})
}

// requireDeps returns a PersistentPreRunE that checks for the named external
// dependencies and prompts to nickname any new devices.
func requireDeps(keys ...string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := checkDeps(cfg, keys...); err != nil {
			return err
		}
		checkNewDevices(cmd.Context(), cfg)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
