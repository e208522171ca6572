package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/FluidXR/mirrordeck/internal/adb"
	"github.com/FluidXR/mirrordeck/internal/config"
	"github.com/FluidXR/mirrordeck/internal/history"
	"github.com/FluidXR/mirrordeck/internal/mirror"
	"github.com/FluidXR/mirrordeck/internal/runner"
	"github.com/FluidXR/mirrordeck/internal/session"

	"go.uber.org/zap"
)

// app wires one session controller with its collaborators.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	adb      *adb.Client
	ctrl     *session.Controller
	db       *history.DB
	recorder *history.Recorder
}

// newApp builds the controller. onEvent, if set, sees every session event
// after it has been queued for the history.
func newApp(cfg *config.Config, logger *zap.Logger, onEvent func(session.Event)) *app {
	a := &app{cfg: cfg, logger: logger}
	a.adb = adb.NewClient(cfg.ADBPath, runner.New(logger), logger)

	db, err := history.Open(config.ConfigDir())
	if err != nil {
		logger.Warn("session history unavailable", zap.Error(err))
	} else {
		a.db = db
		a.recorder = history.NewRecorder(db, logger)
	}

	sup := mirror.NewSupervisor(cfg.ScrcpyPath, cfg.StopTimeout, logger)
	a.ctrl = session.New(a.adb, sup, session.Options{
		PollInterval:   cfg.PollInterval,
		WirelessPort:   cfg.Wireless.Port,
		SettleDelay:    cfg.Wireless.SettleDelay,
		ReconnectDelay: cfg.Wireless.ReconnectDelay,
		Logger:         logger,
		OnEvent: func(ev session.Event) {
			if a.recorder != nil {
				a.recorder.Observe(ev)
			}
			if onEvent != nil {
				onEvent(ev)
			}
		},
	})
	return a
}

// Close ends the session and flushes the history.
func (a *app) Close() {
	a.ctrl.Close()
	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	_ = a.logger.Sync()
}

// pickDevice returns serial, or the only online device when serial is empty.
func (a *app) pickDevice(ctx context.Context, serial string) (string, error) {
	if serial != "" {
		return serial, nil
	}
	devices, err := a.adb.Devices(ctx)
	if err != nil {
		return "", err
	}
	var online []string
	for _, d := range devices {
		if d.IsOnline() {
			online = append(online, d.Serial)
		}
	}
	switch len(online) {
	case 0:
		return "", session.ErrNoDeviceSelected
	case 1:
		return online[0], nil
	default:
		return "", fmt.Errorf("%d devices connected, pass one of: %v", len(online), online)
	}
}

// printEvent writes log-worthy events to stdout, errors to stderr.
func printEvent(cfg *config.Config, ev session.Event) {
	if !ev.IsLog() {
		return
	}
	line := ev.Time.Format(time.TimeOnly) + " " + ev.String()
	if ev.Device != "" && ev.Kind != session.EventOutput {
		if name := cfg.DeviceName(ev.Device); name != ev.Device {
			line += " [" + name + "]"
		}
	}
	if ev.Kind == session.EventError {
		fmt.Fprintln(os.Stderr, line)
		return
	}
	fmt.Println(line)
}
