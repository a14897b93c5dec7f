package clients

import (
	"context"

	"github.com/rs/zerolog"

	"couchcontrol/internal/input"
	"couchcontrol/internal/types"
)

// Injector is the input side of a session. *input.Injector satisfies it.
type Injector interface {
	MoveMouse(ctx context.Context, x, y float64, normalized bool) bool
	ClickAt(ctx context.Context, x, y float64, b input.Button, normalized bool) bool
	DoubleClick(ctx context.Context, b input.Button) bool
	MouseDown(ctx context.Context, b input.Button) bool
	MouseUp(ctx context.Context, b input.Button) bool
	Scroll(ctx context.Context, up bool, amount int) bool
	TypeText(ctx context.Context, text string) bool
	KeyPress(ctx context.Context, key string) bool
	KeyDown(ctx context.Context, key string) bool
	KeyUp(ctx context.Context, key string) bool
}

// Tuner changes capture settings. *capture.Pipeline satisfies it.
type Tuner interface {
	SetQuality(q int) int
	SetScale(s float64) float64
	SetMonitor(monitor int) error
}

// Control routes commands to the injector, the capture pipeline and the
// streamer.
type Control struct {
	Input    Injector
	Capture  Tuner
	Streamer *Streamer
	Log      zerolog.Logger
}

func (c *Control) Handler(ctx context.Context) types.Handler {
	return &handler{ctx: ctx, c: c}
}

type handler struct {
	ctx context.Context
	c   *Control
}

func (h *handler) Click(cmd types.Click) {
	h.c.Input.ClickAt(h.ctx, cmd.X, cmd.Y, input.Button(cmd.Button), true)
}

func (h *handler) DblClick(cmd types.DblClick) {
	if h.c.Input.MoveMouse(h.ctx, cmd.X, cmd.Y, true) {
		h.c.Input.DoubleClick(h.ctx, input.ButtonLeft)
	}
}

func (h *handler) Move(cmd types.Move) {
	h.c.Input.MoveMouse(h.ctx, cmd.X, cmd.Y, true)
}

func (h *handler) MouseButton(cmd types.MouseButton) {
	if cmd.At != nil && !h.c.Input.MoveMouse(h.ctx, cmd.At.X, cmd.At.Y, true) {
		return
	}
	if cmd.Down {
		h.c.Input.MouseDown(h.ctx, input.Button(cmd.Button))
	} else {
		h.c.Input.MouseUp(h.ctx, input.Button(cmd.Button))
	}
}

func (h *handler) Scroll(cmd types.Scroll) {
	h.c.Input.Scroll(h.ctx, cmd.Direction == types.ScrollUp, cmd.Amount)
}

func (h *handler) Key(cmd types.KeyEvent) {
	switch cmd.Action {
	case types.KeyHold:
		h.c.Input.KeyDown(h.ctx, cmd.Key)
	case types.KeyRelease:
		h.c.Input.KeyUp(h.ctx, cmd.Key)
	default:
		h.c.Input.KeyPress(h.ctx, cmd.Key)
	}
}

func (h *handler) TypeText(cmd types.TypeText) {
	h.c.Input.TypeText(h.ctx, cmd.Text)
}

func (h *handler) Settings(cmd types.Settings) {
	ev := h.c.Log.Info()
	if cmd.Quality != nil {
		ev = ev.Int("quality", h.c.Capture.SetQuality(*cmd.Quality))
	}
	if cmd.Scale != nil {
		ev = ev.Float64("scale", h.c.Capture.SetScale(*cmd.Scale))
	}
	if cmd.Monitor != nil {
		if err := h.c.Capture.SetMonitor(*cmd.Monitor); err != nil {
			h.c.Log.Warn().Err(err).Int("monitor", *cmd.Monitor).Msg("switching monitor failed")
		} else {
			ev = ev.Int("monitor", *cmd.Monitor)
		}
	}
	if cmd.FPS != nil && h.c.Streamer != nil {
		ev = ev.Int("fps", h.c.Streamer.SetFPS(*cmd.FPS))
	}
	ev.Msg("stream settings changed")
}
