package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"couchcontrol/internal/config"
	"couchcontrol/internal/version"
)

func runStop(e *env, args []string) error {
	fs := pflag.NewFlagSet("stop", pflag.ContinueOnError)
	path := fs.String("pid-file", defaultPIDFile, "PID file location")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	pid, found, err := pidFile(*path).Stop()
	switch {
	case !found:
		fmt.Fprintln(e.stdout, "couch-control is not running")
		return nil
	case err != nil:
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintf(e.stdout, "stopped couch-control (PID %d)\n", pid)
	return nil
}

func runStatus(e *env, args []string) error {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	path := fs.String("pid-file", defaultPIDFile, "PID file location")
	configPath := fs.String("config", "", "config file")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	pid, ok := pidFile(*path).Running()
	if !ok {
		fmt.Fprintln(e.stdout, "couch-control is not running")
		return exitError(1)
	}
	fmt.Fprintf(e.stdout, "couch-control is running (PID %d)\n", pid)
	if cfg, _, err := config.Load(*configPath); err == nil {
		cfg.ResolveHost()
		fmt.Fprintf(e.stdout, "  URL: http://%s:%d\n", displayHost(cfg.Server.Host), cfg.Server.Port)
	}
	return nil
}

func runIP(e *env, args []string) error {
	fs := pflag.NewFlagSet("ip", pflag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}
	port := config.Default().Server.Port
	if cfg, _, err := config.Load(*configPath); err == nil {
		port = cfg.Server.Port
	}
	ip := config.LocalIP()
	fmt.Fprintf(e.stdout, "Local IP: %s\n  URL: http://%s:%d\n", ip, ip, port)
	return nil
}

func runConfig(e *env, args []string) error {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	configPath := fs.String("config", "", "config file")
	if err := parseFlags(e, fs, args); err != nil {
		return err
	}

	fmt.Fprintln(e.stdout, "Config file search paths:")
	paths := config.SearchPaths()
	if *configPath != "" {
		paths = append([]string{*configPath}, paths...)
	}
	for _, p := range paths {
		mark := " "
		if _, err := os.Stat(p); err == nil {
			mark = "x"
		}
		fmt.Fprintf(e.stdout, "  [%s] %s\n", mark, p)
	}

	cfg, used, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if used == "" {
		used = "(built-in defaults)"
	}
	pin := "(none)"
	if cfg.Security.PIN != "" {
		pin = "***"
	}
	backend := cfg.Performance.InputBackend
	if backend == "" {
		backend = "auto"
	}
	fmt.Fprintf(e.stdout, `
Current settings from %s:
  host:          %s
  port:          %d (websocket %d)
  quality:       %d
  fps:           %d
  scale:         %g
  monitor:       %d
  pin:           %s
  timeout:       %d minutes
  fast encoder:  %t
  max clients:   %d
  input backend: %s
`, used, cfg.Server.Host, cfg.Server.Port, cfg.WSPort(), cfg.Capture.Quality, cfg.Capture.FPS,
		cfg.Capture.Scale, cfg.Capture.Monitor, pin, cfg.Security.TimeoutMinutes,
		cfg.Performance.UseFastEncoder, cfg.Performance.MaxClients, backend)
	return nil
}

func runVersion(e *env, _ []string) error {
	fmt.Fprintf(e.stdout, "couch-control %s\n", version.Info())
	return nil
}
