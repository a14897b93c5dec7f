package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"couchcontrol/internal/clock"
)

// ErrIdleTimeout is returned by Run when the server stopped itself after
// having no clients for the configured time. It is not a failure.
var ErrIdleTimeout = errors.New("idle timeout reached")

const idleCheckInterval = 30 * time.Second

// IdleChecker reports whether the server has been unused for longer than
// timeout. *clients.Manager satisfies it.
type IdleChecker interface {
	Idle(timeout time.Duration) bool
}

// IdleSupervisor polls an IdleChecker and fires once.
type IdleSupervisor struct {
	checker  IdleChecker
	timeout  time.Duration
	interval time.Duration
	clock    clock.Clock
	log      zerolog.Logger
}

func NewIdleSupervisor(checker IdleChecker, timeout time.Duration, clk clock.Clock, log zerolog.Logger) *IdleSupervisor {
	return &IdleSupervisor{checker: checker, timeout: timeout, interval: idleCheckInterval, clock: clk, log: log}
}

// Check reports whether the shutdown condition holds now. A zero timeout
// never fires.
func (s *IdleSupervisor) Check() bool {
	return s.timeout > 0 && s.checker.Idle(s.timeout)
}

// Run returns ErrIdleTimeout on the first tick where Check holds, or nil
// once ctx is done.
func (s *IdleSupervisor) Run(ctx context.Context) error {
	if s.timeout <= 0 {
		<-ctx.Done()
		return nil
	}
	t := s.clock.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if s.Check() {
				s.log.Info().Dur("timeout", s.timeout).Msg("idle timeout reached")
				return ErrIdleTimeout
			}
		}
	}
}
