package clients

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"couchcontrol/internal/clock"
	"couchcontrol/internal/config"
)

const (
	minSleep            = time.Millisecond
	maxCaptureFailures  = 5
	DefaultPingInterval = 20 * time.Second
)

// FrameSource produces encoded frames. *capture.Pipeline satisfies it.
type FrameSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// Streamer pushes frames to sessions at the shared target rate.
type Streamer struct {
	frames       FrameSource
	fps          atomic.Int64
	clock        clock.Clock
	pingInterval time.Duration
	log          zerolog.Logger
}

func NewStreamer(frames FrameSource, fps int, clk clock.Clock, log zerolog.Logger) *Streamer {
	if clk == nil {
		clk = clock.Real()
	}
	s := &Streamer{frames: frames, clock: clk, pingInterval: DefaultPingInterval, log: log}
	s.SetFPS(fps)
	return s
}

// SetFPS clamps fps into [1,60], stores it and returns the stored value.
// Running streams pick it up on their next frame.
func (s *Streamer) SetFPS(fps int) int {
	fps = config.ClampFPS(fps)
	s.fps.Store(int64(fps))
	return fps
}

func (s *Streamer) FPS() int { return int(s.fps.Load()) }

func (s *Streamer) interval() time.Duration {
	return time.Second / time.Duration(s.fps.Load())
}

// frameDelay is how long to sleep after a frame that took elapsed.
func frameDelay(interval, elapsed time.Duration) time.Duration {
	return max(minSleep, interval-elapsed)
}

// Run streams until ctx is cancelled, a send fails, or capture fails
// maxCaptureFailures times in a row.
func (s *Streamer) Run(ctx context.Context, ch Channel) error {
	failures := 0
	lastPing := s.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := s.clock.Now()

		frame, err := s.frames.CaptureFrame(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			s.log.Warn().Err(err).Int("failures", failures).Msg("frame capture failed")
			if failures >= maxCaptureFailures {
				return fmt.Errorf("capture failed %d times in a row: %w", failures, err)
			}
		default:
			failures = 0
			if err := ch.WriteFrame(frame); err != nil {
				return fmt.Errorf("send frame: %w", err)
			}
		}

		if now := s.clock.Now(); now.Sub(lastPing) >= s.pingInterval {
			if err := ch.Ping(); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			lastPing = now
		}

		delay := frameDelay(s.interval(), s.clock.Now().Sub(start))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
}
