package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"mixmonkey/internal/workerutil"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("mixmonkey v%s\n", version)
	fmt.Println("Per-application volume control from hotkeys, media keys and serial encoders")
}

func printUsage(fset *flag.FlagSet) func() {
	return func() {
		printVersion()
		fmt.Println()
		fmt.Println("USAGE:")
		fmt.Println("  mixmonkey [OPTIONS]")
		fmt.Println()
		fmt.Println("OPTIONS:")
		fset.SetOutput(os.Stdout)
		fset.PrintDefaults()
		fmt.Println()
		fmt.Println("NOTES:")
		fmt.Println("  - Linux: reading keyboards requires membership of the 'input' group")
		fmt.Println("  - Serial lines are \"v0|v1|...\" with one signed level per encoder")
		fmt.Println("  - The config file is watched and reloaded on change")
		fmt.Println()
	}
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fset := flag.NewFlagSet("mixmonkey", flag.ContinueOnError)
	var (
		configPath    = fset.String("config", DefaultConfigPath(), "Path to YAML config file")
		serialPort    = fset.String("serial-port", "", "Serial port of the encoder board (enables serial input)")
		serialBaud    = fset.Int("serial-baud", defaultBaudRate, "Serial baud rate")
		ipcSocket     = fset.String("ipc-socket", defaultIPCSocketPath, "IPC socket path (named pipe on Windows)")
		notifyListen  = fset.String("notify-listen", "127.0.0.1:3002", "Notification websocket listen address")
		logLevelStr   = fset.String("log-level", "info", "Log level: error, warn, info, debug")
		volumeBackend = fset.String("volume-backend", "auto", "Volume backend: auto, pactl, memory")
		dryRun        = fset.Bool("dry-run", false, "Simulate volume changes in memory")
		showVersion   = fset.Bool("version", false, "Print version and exit")
	)
	fset.Usage = printUsage(fset)

	if err := fset.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		printVersion()
		return nil
	}

	// Only flags given on the command line override the file.
	var overrides FlagOverrides
	fset.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "serial-port":
			overrides.SerialPort = serialPort
		case "serial-baud":
			overrides.SerialBaud = serialBaud
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocket
		case "notify-listen":
			overrides.NotifyListen = notifyListen
		case "log-level":
			overrides.LogLevel = logLevelStr
		case "volume-backend":
			overrides.VolumeBackend = volumeBackend
		}
	})
	if *dryRun {
		memory := string(VolumeBackendMemory)
		overrides.VolumeBackend = &memory
	}

	cfg, err := LoadConfigFile(*configPath)
	configMissing := errors.Is(err, fs.ErrNotExist)
	switch {
	case configMissing:
		cfg = DefaultConfig()
	case err != nil:
		return err
	}
	overrides.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logFormat, _ := parseLogFormat(cfg.Logging.Format)
	logger, levelVar := setupLogger(logLevel, logFormat, os.Stderr)
	slog.SetDefault(logger)

	if configMissing {
		logger.Warn("config file not found, using defaults", "path", *configPath)
	}

	volume, err := newVolumeService(cfg.Volume, logger)
	if err != nil {
		return err
	}

	var (
		notifier Notifier
		hub      *Hub
	)
	if cfg.Notify.Enabled {
		hub = NewHub(logger, HubConfig{})
		notifier = hub
	} else {
		notifier = newLogNotifier(logger)
	}

	engine := NewEngine(&cfg, EngineDeps{Volume: volume, Notifier: notifier}, logger)

	reloader := newConfigReloader(*configPath, overrides, func(next *Config) {
		if lvl, err := parseLogLevel(next.Logging.Level); err == nil {
			levelVar.Set(lvl.slogLevel())
		}
		engine.ApplyConfig(next)
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	opts := workerutil.Options{Logger: logger}

	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return workerutil.Run(ctx, "config-watch", reloader.Watch, opts) })

	ln, cleanup, err := listenIPC(cfg.IPC.SocketPath)
	if err != nil {
		logger.Error("IPC unavailable", "err", err)
	} else {
		defer cleanup()
		ctl := daemonControl{Engine: engine, reloader: reloader}
		g.Go(func() error {
			return workerutil.Run(ctx, "ipc", func(c context.Context) error {
				return runIPCServer(c, ln, ctl, logger)
			}, opts)
		})
	}

	if hub != nil {
		mux := newNotifyMux(hub, cfg.Notify.Path)
		g.Go(func() error { return workerutil.Run(ctx, "notify-hub", hub.Run, opts) })
		g.Go(func() error {
			return workerutil.Run(ctx, "notify-http", func(c context.Context) error {
				if err := runHTTPServer(c, cfg.Notify.Listen, mux, logger); err != nil {
					logger.Error("notification server unavailable", "err", err)
				}
				return nil
			}, opts)
		})
	}

	logger.Info("mixmonkey started",
		"version", version,
		"config", *configPath,
		"sessions", len(cfg.Sessions),
		"serial", cfg.Serial.Enabled,
		"hotkeys", cfg.Hotkeys.Enabled,
		"backend", cfg.Volume.Backend,
	)

	err = g.Wait()
	logger.Info("mixmonkey stopped")
	return err
}

// daemonControl adapts the engine and reloader to the IPC server.
type daemonControl struct {
	*Engine
	reloader *configReloader
}

func (d daemonControl) Reload() error {
	return d.reloader.Reload()
}
