package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/FluidXR/mirrordeck/internal/mirror"

	"gopkg.in/yaml.v3"
)

// DeviceConfig stores per-device settings.
type DeviceConfig struct {
	Nickname string `yaml:"nickname,omitempty"`
	WiFiIP   string `yaml:"wifi_ip,omitempty"`
}

// Wireless tunes the USB to wireless switch.
type Wireless struct {
	Port           int           `yaml:"port"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// Config is the top-level configuration.
type Config struct {
	ADBPath      string                  `yaml:"adb_path"`
	ScrcpyPath   string                  `yaml:"scrcpy_path"`
	PollInterval time.Duration           `yaml:"poll_interval"`
	StopTimeout  time.Duration           `yaml:"stop_timeout"`
	LogLevel     string                  `yaml:"log_level"`
	LogFormat    string                  `yaml:"log_format"`
	Mirroring    mirror.Options          `yaml:"mirroring"`
	Wireless     Wireless                `yaml:"wireless"`
	Devices      map[string]DeviceConfig `yaml:"devices,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ADBPath:      "adb",
		ScrcpyPath:   "scrcpy",
		PollInterval: time.Second,
		StopTimeout:  time.Second,
		LogLevel:     "info",
		LogFormat:    "console",
		Wireless: Wireless{
			Port:           5555,
			SettleDelay:    time.Second,
			ReconnectDelay: 600 * time.Millisecond,
		},
		Devices: make(map[string]DeviceConfig),
	}
}

// ConfigDir returns the config directory path.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mirrordeck")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "mirrordeck")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Devices == nil {
		cfg.Devices = make(map[string]DeviceConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := ConfigPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports every setting that is out of range.
func (c *Config) Validate() error {
	var errs []error
	if c.ADBPath == "" {
		errs = append(errs, errors.New("adb_path is empty"))
	}
	if c.ScrcpyPath == "" {
		errs = append(errs, errors.New("scrcpy_path is empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop_timeout must be positive, got %s", c.StopTimeout))
	}
	if c.Wireless.Port < 1 || c.Wireless.Port > 65535 {
		errs = append(errs, fmt.Errorf("wireless.port must be 1-65535, got %d", c.Wireless.Port))
	}
	if c.Wireless.SettleDelay < 0 || c.Wireless.ReconnectDelay < 0 {
		errs = append(errs, errors.New("wireless delays must not be negative"))
	}
	return errors.Join(errs...)
}

// DeviceName returns the nickname for serial, or serial itself.
func (c *Config) DeviceName(serial string) string {
	if dc, ok := c.Devices[serial]; ok && dc.Nickname != "" {
		return dc.Nickname
	}
	return serial
}

// SetWiFiIP records the wireless address learned for serial.
func (c *Config) SetWiFiIP(serial, ip string) {
	dc := c.Devices[serial]
	dc.WiFiIP = ip
	c.Devices[serial] = dc
}
