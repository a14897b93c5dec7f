package input

import (
	"context"
	"errors"
)

// ErrToolMissing means no injection tool is available on this host.
var ErrToolMissing = errors.New("input injection tool not found")

// Button is an X11 pointer button number.
type Button int

const (
	ButtonLeft   Button = 1
	ButtonMiddle Button = 2
	ButtonRight  Button = 3

	// Wheel buttons, used by backends that scroll by clicking.
	buttonWheelUp   Button = 4
	buttonWheelDown Button = 5
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	case buttonWheelUp:
		return "wheelup"
	case buttonWheelDown:
		return "wheeldown"
	}
	return "unknown"
}

// KeyOp is what to do with a key.
type KeyOp string

const (
	KeyTap     KeyOp = "key"
	KeyPress   KeyOp = "keydown"
	KeyRelease KeyOp = "keyup"
)

// Backend performs raw OS input. Coordinates are absolute pixels and key
// names are X keysyms. Every call must honor ctx.
type Backend interface {
	Name() string
	Move(ctx context.Context, x, y int) error
	Click(ctx context.Context, b Button, repeat int) error
	Toggle(ctx context.Context, b Button, down bool) error
	Scroll(ctx context.Context, up bool, amount int) error
	Type(ctx context.Context, text string) error
	Key(ctx context.Context, op KeyOp, keysym string) error
}

// newRobotgo is set by builds tagged robotgo.
var newRobotgo func() Backend

// NewBackend picks the injection backend: "xdotool", "robotgo", or ""
// for xdotool with robotgo as fallback. When nothing is usable it returns
// a backend whose every call fails with ErrToolMissing, together with the
// error, so the server can keep streaming view-only.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "robotgo":
		if newRobotgo == nil {
			return unavailable{}, errors.New("robotgo backend not built in")
		}
		return newRobotgo(), nil
	case "xdotool":
		x, err := NewXdotool()
		if err != nil {
			return unavailable{}, err
		}
		return x, nil
	case "":
		x, err := NewXdotool()
		if err == nil {
			return x, nil
		}
		if newRobotgo != nil {
			return newRobotgo(), nil
		}
		return unavailable{}, err
	}
	return unavailable{}, errors.New("unknown input backend " + name)
}

type unavailable struct{}

func (unavailable) Name() string                               { return "none" }
func (unavailable) Move(context.Context, int, int) error       { return ErrToolMissing }
func (unavailable) Click(context.Context, Button, int) error   { return ErrToolMissing }
func (unavailable) Toggle(context.Context, Button, bool) error { return ErrToolMissing }
func (unavailable) Scroll(context.Context, bool, int) error    { return ErrToolMissing }
func (unavailable) Type(context.Context, string) error         { return ErrToolMissing }
func (unavailable) Key(context.Context, KeyOp, string) error   { return ErrToolMissing }
