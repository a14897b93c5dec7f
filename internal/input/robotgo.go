//go:build robotgo

package input

import (
	"context"
	"strings"

	"github.com/go-vgo/robotgo"
)

func init() {
	newRobotgo = func() Backend { return robotgoBackend{} }
}

// robotgo calls cannot be interrupted, so long scrolls and pastes are split
// and the context is checked between pieces.
const (
	robotgoScrollStep = 5
	robotgoTypeChunk  = 32
)

// robotgoKeys maps the X keysyms produced by TranslateKey to robotgo names.
var robotgoKeys = map[string]string{
	"Return":    "enter",
	"BackSpace": "backspace",
	"Escape":    "esc",
	"Page_Up":   "pageup",
	"Page_Down": "pagedown",
	"super":     "cmd",
}

// robotgoBackend injects through robotgo's native bindings. It does not
// need xdotool, which makes it usable on Wayland compositors with an X
// compatibility layer and on non-Linux hosts.
type robotgoBackend struct{}

func (robotgoBackend) Name() string { return "robotgo" }

func (robotgoBackend) Move(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(x, y)
	return nil
}

func (robotgoBackend) Click(ctx context.Context, b Button, repeat int) error {
	if repeat == 2 {
		if err := ctx.Err(); err != nil {
			return err
		}
		robotgo.Click(b.String(), true)
		return nil
	}
	for i := 0; i < max(1, repeat); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		robotgo.Click(b.String())
	}
	return nil
}

func (robotgoBackend) Toggle(ctx context.Context, b Button, down bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state := "up"
	if down {
		state = "down"
	}
	return robotgo.Toggle(b.String(), state)
}

func (robotgoBackend) Scroll(ctx context.Context, up bool, amount int) error {
	dir := "down"
	if up {
		dir = "up"
	}
	for amount > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		step := min(amount, robotgoScrollStep)
		robotgo.ScrollDir(step, dir)
		amount -= step
	}
	return nil
}

func (robotgoBackend) Type(ctx context.Context, text string) error {
	for _, chunk := range textChunks(text, robotgoTypeChunk) {
		if err := ctx.Err(); err != nil {
			return err
		}
		robotgo.TypeStr(chunk)
	}
	return nil
}

func (robotgoBackend) Key(ctx context.Context, op KeyOp, keysym string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, mods := robotgoChord(keysym)
	switch op {
	case KeyPress, KeyRelease:
		state := "down"
		if op == KeyRelease {
			state = "up"
		}
		for _, k := range append(mods, key) {
			if err := robotgo.KeyToggle(k, state); err != nil {
				return err
			}
		}
		return nil
	default:
		args := make([]interface{}, len(mods))
		for i, m := range mods {
			args[i] = m
		}
		return robotgo.KeyTap(key, args...)
	}
}

// robotgoChord splits an xdotool style chord ("ctrl+shift+t") into the
// main key and its modifiers.
func robotgoChord(keysym string) (string, []string) {
	if keysym == "+" || !strings.Contains(keysym, "+") {
		return robotgoName(keysym), nil
	}
	parts := strings.Split(keysym, "+")
	for i, p := range parts {
		parts[i] = robotgoName(p)
	}
	return parts[len(parts)-1], parts[:len(parts)-1]
}

func robotgoName(keysym string) string {
	if name, ok := robotgoKeys[keysym]; ok {
		return name
	}
	if len(keysym) == 1 {
		return keysym
	}
	return strings.ToLower(keysym)
}

// textChunks splits text into pieces of at most n runes.
func textChunks(text string, n int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		k := min(n, len(runes))
		chunks = append(chunks, string(runes[:k]))
		runes = runes[k:]
	}
	return chunks
}
