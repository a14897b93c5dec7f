// Package server wires the capture pipeline, the input injector and the
// session manager behind two listeners: HTTP for the page and status on
// the configured port, WebSocket frames and commands on the next one.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"couchcontrol/internal/capture"
	"couchcontrol/internal/clients"
	"couchcontrol/internal/clock"
	"couchcontrol/internal/config"
	"couchcontrol/internal/input"
)

const shutdownTimeout = 5 * time.Second

// Options carries the collaborators built by main.
type Options struct {
	Pipeline *capture.Pipeline
	Injector *input.Injector
	Clock    clock.Clock
	Log      zerolog.Logger
}

// Server owns every long-lived resource of a running instance.
type Server struct {
	cfg          config.Config
	pipeline     *capture.Pipeline
	injector     *input.Injector
	streamer     *clients.Streamer
	manager      *clients.Manager
	idle         *IdleSupervisor
	clock        clock.Clock
	log          zerolog.Logger
	proc         *process.Process
	pingInterval time.Duration

	httpSrv *http.Server
	wsSrv   *http.Server
}

func New(cfg config.Config, opts Options) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	log := opts.Log

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = &process.Process{Pid: int32(os.Getpid())}
	}

	streamer := clients.NewStreamer(opts.Pipeline, cfg.Capture.FPS, clk, log.With().Str("component", "stream").Logger())
	manager := clients.NewManager(clients.ManagerConfig{
		MaxClients: cfg.Performance.MaxClients,
		Streamer:   streamer,
		Control: &clients.Control{
			Input:    opts.Injector,
			Capture:  opts.Pipeline,
			Streamer: streamer,
			Log:      log,
		},
		Clock: clk,
		Log:   log,
	})

	s := &Server{
		cfg:          cfg,
		pipeline:     opts.Pipeline,
		injector:     opts.Injector,
		streamer:     streamer,
		manager:      manager,
		idle:         NewIdleSupervisor(manager, cfg.IdleTimeout(), clk, log),
		clock:        clk,
		log:          log,
		proc:         proc,
		pingInterval: clients.DefaultPingInterval,
	}
	s.httpSrv = &http.Server{Handler: s.router(), ReadHeaderTimeout: 10 * time.Second}
	s.wsSrv = &http.Server{Handler: http.HandlerFunc(s.handleWS), ReadHeaderTimeout: 10 * time.Second}
	return s
}

func (s *Server) Manager() *clients.Manager { return s.manager }

// Run opens the capture source, binds both ports and serves until ctx is
// cancelled or the idle supervisor fires. A missing display or a busy
// port is returned before anything is served.
func (s *Server) Run(ctx context.Context) error {
	if err := s.pipeline.Open(); err != nil {
		return fmt.Errorf("opening screen capture: %w", err)
	}
	httpLn, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		_ = s.pipeline.Close()
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	wsLn, err := net.Listen("tcp", s.cfg.WSAddr())
	if err != nil {
		_ = httpLn.Close()
		_ = s.pipeline.Close()
		return fmt.Errorf("listening on %s: %w", s.cfg.WSAddr(), err)
	}
	return s.Serve(ctx, httpLn, wsLn)
}

// Serve runs on already bound listeners. It returns ErrIdleTimeout after
// an idle shutdown and nil after ctx is cancelled; either way every
// session is closed and the pipeline released before it returns.
func (s *Server) Serve(ctx context.Context, httpLn, wsLn net.Listener) error {
	s.log.Info().
		Str("http", httpLn.Addr().String()).
		Str("ws", wsLn.Addr().String()).
		Str("encoder", s.pipeline.EncoderName()).
		Str("input", s.injector.Backend()).
		Msg("couch-control listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpSrv.Serve(httpLn); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := s.wsSrv.Serve(wsLn); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.idle.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

// shutdown closes sessions first so no frame is in flight when the
// capture source goes away.
func (s *Server) shutdown() error {
	s.log.Info().Int("clients", s.manager.Count()).Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing sessions: %w", err))
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.wsSrv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	if err := s.pipeline.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing capture: %w", err))
	}
	return errors.Join(errs...)
}
