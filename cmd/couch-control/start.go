package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"couchcontrol/internal/capture"
	"couchcontrol/internal/config"
	"couchcontrol/internal/input"
	"couchcontrol/internal/server"
)

type startOptions struct {
	configPath   string
	pidFile      string
	logLevel     string
	port         int
	quality      int
	fps          int
	scale        float64
	monitor      int
	pin          string
	inputBackend string
}

func (o *startOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "config file (default: first of the search paths)")
	fs.StringVar(&o.pidFile, "pid-file", defaultPIDFile, "PID file location")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.IntVarP(&o.port, "port", "p", 0, "HTTP port; WebSocket uses port+1 (default 8080)")
	fs.IntVarP(&o.quality, "quality", "q", 0, "JPEG quality 1-95 (default 70)")
	fs.IntVarP(&o.fps, "fps", "f", 0, "frames per second 1-60 (default 24)")
	fs.Float64VarP(&o.scale, "scale", "s", 0, "scale factor 0.1-1.0 (default 0.75)")
	fs.IntVar(&o.monitor, "monitor", 0, "monitor to capture, 0 for all")
	fs.StringVar(&o.pin, "pin", "", "PIN required by the front end")
	fs.StringVar(&o.inputBackend, "input-backend", "", "xdotool or robotgo (default: automatic)")
}

// loadConfig reads the config file and applies only the flags that were
// given on the command line.
func (o *startOptions) loadConfig(fs *pflag.FlagSet) (config.Config, string, error) {
	cfg, path, err := config.Load(o.configPath)
	if err != nil {
		return cfg, path, err
	}
	if fs.Changed("port") {
		cfg.Server.Port = o.port
	}
	if fs.Changed("quality") {
		cfg.Capture.Quality = o.quality
	}
	if fs.Changed("fps") {
		cfg.Capture.FPS = o.fps
	}
	if fs.Changed("scale") {
		cfg.Capture.Scale = o.scale
	}
	if fs.Changed("monitor") {
		cfg.Capture.Monitor = o.monitor
	}
	if fs.Changed("pin") {
		cfg.Security.PIN = o.pin
	}
	if fs.Changed("input-backend") {
		cfg.Performance.InputBackend = o.inputBackend
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, err
	}
	return cfg, path, nil
}

func runStart(e *env, args []string) error {
	var o startOptions
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	o.addFlags(fs)
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	cfg, path, err := o.loadConfig(fs)
	if err != nil {
		return err
	}
	log, err := newLogger(e.stderr, o.logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}

	pf := pidFile(o.pidFile)
	if pid, ok := pf.Running(); ok {
		fmt.Fprintf(e.stderr, "couch-control is already running (PID %d)\nrun 'couch-control stop' first\n", pid)
		return exitError(1)
	}
	if err := pf.Write(); err != nil {
		return err
	}
	defer pf.Remove()

	cfg.ResolveHost()
	if path == "" {
		path = "defaults"
	}
	log.Info().Str("config", path).Str("addr", cfg.Addr()).Msg("starting couch-control")

	pipeline := capture.NewPipeline(capture.Settings{
		Monitor:           cfg.Capture.Monitor,
		Quality:           cfg.Capture.Quality,
		Scale:             cfg.Capture.Scale,
		PreferFastEncoder: cfg.Performance.UseFastEncoder,
	}, capture.SelectEncoder(cfg.Performance.UseFastEncoder, log), capture.OpenScreen)

	backend, err := input.NewBackend(cfg.Performance.InputBackend)
	if err != nil {
		log.Warn().Err(err).Msg("input injection unavailable, streaming view only")
	}
	injector := input.NewInjector(backend, pipeline, log.With().Str("component", "input").Logger())

	srv := server.New(cfg, server.Options{
		Pipeline: pipeline,
		Injector: injector,
		Log:      log,
	})

	fmt.Fprintf(e.stdout, "Couch Control: open http://%s:%d on your device\n", displayHost(cfg.Server.Host), cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err = srv.Run(ctx)
	if errors.Is(err, server.ErrIdleTimeout) {
		return nil
	}
	return err
}

// displayHost turns a wildcard listen address into one a phone can reach.
func displayHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return config.LocalIP()
	}
	return host
}
