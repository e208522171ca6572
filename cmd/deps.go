package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/FluidXR/mirrordeck/internal/adb"
	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/runner"

	"go.uber.org/zap"
)

type dependency struct {
	key        string // "adb" or "scrcpy"
	name       string
	binary     string
	installCmd map[string]string // GOOS -> install command
}

func dependencies(cfg *config.Config) []dependency {
	return []dependency{
		{
			key:    "adb",
			name:   "ADB (Android Debug Bridge)",
			binary: cfg.ADBPath,
			installCmd: map[string]string{
				"darwin":  "brew install android-platform-tools",
				"linux":   "sudo apt install android-tools-adb",
				"windows": "winget install Google.PlatformTools",
			},
		},
		{
			key:    "scrcpy",
			name:   "scrcpy",
			binary: cfg.ScrcpyPath,
			installCmd: map[string]string{
				"darwin":  "brew install scrcpy",
				"linux":   "sudo apt install scrcpy",
				"windows": "winget install Genymobile.scrcpy",
			},
		},
	}
}

// selectDeps returns the dependencies named by keys, in declaration order.
func selectDeps(deps []dependency, keys ...string) []dependency {
	var out []dependency
	for _, dep := range deps {
		for _, k := range keys {
			if dep.key == k {
				out = append(out, dep)
				break
			}
		}
	}
	return out
}

// checkDeps verifies that the external tools named by keys are installed.
// Returns nil if all of them are present.
func checkDeps(cfg *config.Config, keys ...string) error {
	var missing []dependency
	for _, dep := range selectDeps(dependencies(cfg), keys...) {
		if _, err := exec.LookPath(dep.binary); err != nil {
			missing = append(missing, dep)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	fmt.Println("mirrordeck requires the following tools that are not installed:")
	fmt.Println()
	for _, dep := range missing {
		fmt.Printf("  - %s (%s)\n", dep.name, dep.binary)
	}
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)

	for _, dep := range missing {
		cmd, ok := dep.installCmd[runtime.GOOS]
		if !ok {
			fmt.Printf("Please install %s manually and try again.\n", dep.name)
			continue
		}

		fmt.Printf("Install %s with: %s\n", dep.name, cmd)
		fmt.Print("Run now? [Y/n] ")
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))

		if answer != "" && answer != "y" && answer != "yes" {
			fmt.Printf("Skipped. Install %s manually before using mirrordeck.\n", dep.name)
			continue
		}

		fmt.Printf("Running: %s\n", cmd)
		parts := strings.Fields(cmd)
		install := exec.Command(parts[0], parts[1:]...)
		install.Stdout = os.Stdout
		install.Stderr = os.Stderr
		install.Stdin = os.Stdin
		if err := install.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install %s: %v\n", dep.name, err)
			fmt.Fprintf(os.Stderr, "Please install it manually and try again.\n")
		} else {
			fmt.Printf("%s installed successfully.\n\n", dep.name)
		}
	}

	// Re-check after install attempts
	for _, dep := range missing {
		if _, err := exec.LookPath(dep.binary); err != nil {
			return fmt.Errorf("%s is required but not installed", dep.binary)
		}
	}
	return nil
}

// checkNewDevices prompts the user to nickname any newly discovered USB
// devices. Wireless identifiers change between sessions and are skipped.
func checkNewDevices(ctx context.Context, cfg *config.Config) {
	client := adb.NewClient(cfg.ADBPath, runner.New(zap.NewNop()), nil)
	devices, err := client.Devices(ctx)
	if err != nil {
		return
	}

	reader := bufio.NewReader(os.Stdin)
	changed := false

	for _, d := range devices {
		if !d.IsOnline() || adb.IsNetworkAddress(d.Serial) {
			continue
		}
		if _, known := cfg.Devices[d.Serial]; known {
			continue
		}

		model := d.Model
		if model == "" {
			model = "unknown model"
		}
		fmt.Printf("\nNew device detected: %s (%s)\n", d.Serial, model)
		fmt.Print("Give it a nickname (or press Enter to skip): ")
		name, _ := reader.ReadString('\n')
		name = strings.TrimSpace(name)

		dc := cfg.Devices[d.Serial]
		if name != "" {
			dc.Nickname = name
		}
		cfg.Devices[d.Serial] = dc
		changed = true
	}

	if changed {
		// Persist only the device entries, not flag overrides.
		saved, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
			return
		}
		for serial, dc := range cfg.Devices {
			saved.Devices[serial] = dc
		}
		if err := config.Save(saved); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save config: %v\n", err)
		}
	}
}
