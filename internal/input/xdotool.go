package input

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	doubleClickDelayMS = "100"
	typeDelayMS        = "12"
)

// runFunc executes a command and returns its error. Tests swap it.
type runFunc func(ctx context.Context, name string, args ...string) error

// Xdotool drives X11 input through the xdotool binary.
type Xdotool struct {
	path string
	run  runFunc
}

// NewXdotool locates xdotool on PATH.
func NewXdotool() (*Xdotool, error) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolMissing, err)
	}
	return &Xdotool{path: path, run: runCommand}, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", name, args[0], ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, args[0], err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return nil
}

func (x *Xdotool) Name() string { return "xdotool" }

func (x *Xdotool) Move(ctx context.Context, px, py int) error {
	return x.run(ctx, x.path, "mousemove", strconv.Itoa(px), strconv.Itoa(py))
}

func (x *Xdotool) Click(ctx context.Context, b Button, repeat int) error {
	btn := strconv.Itoa(int(b))
	if repeat <= 1 {
		return x.run(ctx, x.path, "click", btn)
	}
	return x.run(ctx, x.path, "click", "--repeat", strconv.Itoa(repeat), "--delay", doubleClickDelayMS, btn)
}

func (x *Xdotool) Toggle(ctx context.Context, b Button, down bool) error {
	op := "mouseup"
	if down {
		op = "mousedown"
	}
	return x.run(ctx, x.path, op, strconv.Itoa(int(b)))
}

func (x *Xdotool) Scroll(ctx context.Context, up bool, amount int) error {
	b := buttonWheelDown
	if up {
		b = buttonWheelUp
	}
	return x.run(ctx, x.path, "click", "--repeat", strconv.Itoa(amount), strconv.Itoa(int(b)))
}

func (x *Xdotool) Type(ctx context.Context, text string) error {
	return x.run(ctx, x.path, "type", "--delay", typeDelayMS, "--", text)
}

func (x *Xdotool) Key(ctx context.Context, op KeyOp, keysym string) error {
	return x.run(ctx, x.path, string(op), "--", keysym)
}
