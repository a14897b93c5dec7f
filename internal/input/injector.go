package input

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"couchcontrol/internal/capture"
)

// DefaultTimeout bounds every call into the injection backend.
const DefaultTimeout = 2 * time.Second

var errBackendPanic = errors.New("input backend panicked")

// GeometrySource reports the current screen geometry. *capture.Pipeline
// satisfies it.
type GeometrySource interface {
	Geometry() (capture.Geometry, error)
}

// Injector turns client commands into OS input. Every method reports
// success as a bool; failures are logged and never escape.
type Injector struct {
	backend Backend
	geom    GeometrySource
	timeout time.Duration
	log     zerolog.Logger
}

func NewInjector(b Backend, geom GeometrySource, log zerolog.Logger) *Injector {
	return &Injector{
		backend: b,
		geom:    geom,
		timeout: DefaultTimeout,
		log:     log.With().Str("backend", b.Name()).Logger(),
	}
}

func (in *Injector) Backend() string { return in.backend.Name() }

// MoveMouse moves the pointer. Normalized coordinates are in [0,1] and
// are mapped onto the captured monitor; otherwise x and y are pixels.
func (in *Injector) MoveMouse(ctx context.Context, x, y float64, normalized bool) bool {
	px, py, ok := in.toPixels(x, y, normalized)
	if !ok {
		return false
	}
	return in.do(ctx, "move", func(ctx context.Context) error {
		return in.backend.Move(ctx, px, py)
	})
}

func (in *Injector) Click(ctx context.Context, b Button) bool {
	return in.do(ctx, "click", func(ctx context.Context) error {
		return in.backend.Click(ctx, b, 1)
	})
}

// ClickAt moves then clicks. The click is skipped if the move fails.
func (in *Injector) ClickAt(ctx context.Context, x, y float64, b Button, normalized bool) bool {
	return in.MoveMouse(ctx, x, y, normalized) && in.Click(ctx, b)
}

func (in *Injector) DoubleClick(ctx context.Context, b Button) bool {
	return in.do(ctx, "dblclick", func(ctx context.Context) error {
		return in.backend.Click(ctx, b, 2)
	})
}

func (in *Injector) MouseDown(ctx context.Context, b Button) bool {
	return in.do(ctx, "mousedown", func(ctx context.Context) error {
		return in.backend.Toggle(ctx, b, true)
	})
}

func (in *Injector) MouseUp(ctx context.Context, b Button) bool {
	return in.do(ctx, "mouseup", func(ctx context.Context) error {
		return in.backend.Toggle(ctx, b, false)
	})
}

// Scroll turns the wheel amount notches, at least one.
func (in *Injector) Scroll(ctx context.Context, up bool, amount int) bool {
	amount = max(1, amount)
	return in.do(ctx, "scroll", func(ctx context.Context) error {
		return in.backend.Scroll(ctx, up, amount)
	})
}

// TypeText types literal text. Empty text succeeds without a backend call.
func (in *Injector) TypeText(ctx context.Context, text string) bool {
	if text == "" {
		return true
	}
	return in.do(ctx, "type", func(ctx context.Context) error {
		return in.backend.Type(ctx, text)
	})
}

func (in *Injector) KeyPress(ctx context.Context, key string) bool {
	return in.key(ctx, KeyTap, key)
}

func (in *Injector) KeyDown(ctx context.Context, key string) bool {
	return in.key(ctx, KeyPress, key)
}

func (in *Injector) KeyUp(ctx context.Context, key string) bool {
	return in.key(ctx, KeyRelease, key)
}

func (in *Injector) key(ctx context.Context, op KeyOp, key string) bool {
	sym := TranslateKey(key)
	if sym == "" {
		return false
	}
	return in.do(ctx, string(op), func(ctx context.Context) error {
		return in.backend.Key(ctx, op, sym)
	})
}

func (in *Injector) toPixels(x, y float64, normalized bool) (int, int, bool) {
	if !normalized {
		return int(math.Round(x)), int(math.Round(y)), true
	}
	g, err := in.geom.Geometry()
	if err != nil {
		in.log.Debug().Err(err).Msg("screen geometry unknown, dropping pointer event")
		return 0, 0, false
	}
	px := g.OriginX + int(math.Round(x*float64(g.Width)))
	py := g.OriginY + int(math.Round(y*float64(g.Height)))
	return px, py, true
}

// do runs fn under the injector timeout and converts any error or panic
// into false. The timeout holds even when the backend ignores ctx: the
// call is abandoned and left to finish in the background.
func (in *Injector) do(ctx context.Context, op string, fn func(context.Context) error) bool {
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				in.log.Error().Str("op", op).Err(fmt.Errorf("panic: %v", r)).Msg("input backend panicked")
				done <- errBackendPanic
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			if !errors.Is(err, errBackendPanic) {
				in.log.Debug().Str("op", op).Err(err).Msg("input injection failed")
			}
			return false
		}
		return true
	case <-ctx.Done():
		in.log.Debug().Str("op", op).Err(ctx.Err()).Msg("input injection timed out")
		return false
	}
}
