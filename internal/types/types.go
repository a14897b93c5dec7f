package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformed is returned by Decode for payloads that are not a valid
// command. Callers drop such messages without replying.
var ErrMalformed = errors.New("malformed command")

// Handler receives decoded commands. Adding a command means adding a
// method here, so every implementation must handle it.
type Handler interface {
	Click(Click)
	DblClick(DblClick)
	Move(Move)
	MouseButton(MouseButton)
	Scroll(Scroll)
	Key(KeyEvent)
	TypeText(TypeText)
	Settings(Settings)
}

// Command is one inbound client message.
type Command interface {
	Dispatch(h Handler)
}

// Click moves to the normalized point and clicks Button (1 left, 2 middle,
// 3 right).
type Click struct {
	X, Y   float64
	Button int
}

type DblClick struct {
	X, Y float64
}

type Move struct {
	X, Y float64
}

// MouseButton presses or releases a button, optionally moving first.
type MouseButton struct {
	Down   bool
	Button int
	At     *Point
}

type Point struct {
	X, Y float64
}

type Direction string

const (
	ScrollUp   Direction = "up"
	ScrollDown Direction = "down"
)

type Scroll struct {
	Direction Direction
	Amount    int
}

type KeyAction int

const (
	// KeyTap presses and releases. Sent for "keypress" and plain "keydown".
	KeyTap KeyAction = iota
	KeyHold
	KeyRelease
)

// KeyEvent carries a browser key name; translation to the OS keysym
// happens in the injector.
type KeyEvent struct {
	Action KeyAction
	Key    string
}

type TypeText struct {
	Text string
}

// Settings changes stream parameters. Nil fields are left alone.
type Settings struct {
	Quality *int
	Scale   *float64
	FPS     *int

	// Monitor switches the captured display: 0 for all, 1+ for one.
	Monitor *int
}

func (c Click) Dispatch(h Handler)       { h.Click(c) }
func (c DblClick) Dispatch(h Handler)    { h.DblClick(c) }
func (c Move) Dispatch(h Handler)        { h.Move(c) }
func (c MouseButton) Dispatch(h Handler) { h.MouseButton(c) }
func (c Scroll) Dispatch(h Handler)      { h.Scroll(c) }
func (c KeyEvent) Dispatch(h Handler)    { h.Key(c) }
func (c TypeText) Dispatch(h Handler)    { h.TypeText(c) }
func (c Settings) Dispatch(h Handler)    { h.Settings(c) }

// envelope mirrors every field any command may carry.
type envelope struct {
	Type      string   `json:"type"`
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Button    *int     `json:"button"`
	Direction *string  `json:"direction"`
	Amount    *int     `json:"amount"`
	Key       string   `json:"key"`
	Hold      bool     `json:"hold"`
	Text      string   `json:"text"`
	Quality   *int     `json:"quality"`
	Scale     *float64 `json:"scale"`
	FPS       *int     `json:"fps"`
	Monitor   *int     `json:"monitor"`
}

const defaultScrollAmount = 3

// Decode parses one JSON text message into a Command. Missing coordinates
// default to 0, a missing button to 1, a missing scroll direction to
// "down" and a missing amount to 3.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "click":
		b, err := env.button()
		if err != nil {
			return nil, err
		}
		x, y := env.point()
		return Click{X: x, Y: y, Button: b}, nil
	case "dblclick":
		x, y := env.point()
		return DblClick{X: x, Y: y}, nil
	case "move":
		x, y := env.point()
		return Move{X: x, Y: y}, nil
	case "mousedown", "mouseup":
		b, err := env.button()
		if err != nil {
			return nil, err
		}
		cmd := MouseButton{Down: env.Type == "mousedown", Button: b}
		if env.X != nil || env.Y != nil {
			x, y := env.point()
			cmd.At = &Point{X: x, Y: y}
		}
		return cmd, nil
	case "scroll":
		dir := ScrollDown
		if env.Direction != nil {
			dir = Direction(*env.Direction)
		}
		if dir != ScrollUp && dir != ScrollDown {
			return nil, fmt.Errorf("%w: scroll direction %q", ErrMalformed, dir)
		}
		amount := defaultScrollAmount
		if env.Amount != nil {
			amount = max(1, *env.Amount)
		}
		return Scroll{Direction: dir, Amount: amount}, nil
	case "keydown", "keypress", "keyup":
		if env.Key == "" {
			return nil, fmt.Errorf("%w: %s without key", ErrMalformed, env.Type)
		}
		action := KeyTap
		switch {
		case env.Type == "keyup":
			action = KeyRelease
		case env.Type == "keydown" && env.Hold:
			action = KeyHold
		}
		return KeyEvent{Action: action, Key: env.Key}, nil
	case "type":
		if env.Text == "" {
			return nil, fmt.Errorf("%w: empty text", ErrMalformed)
		}
		return TypeText{Text: env.Text}, nil
	case "settings":
		if env.Monitor != nil && *env.Monitor < 0 {
			return nil, fmt.Errorf("%w: monitor %d", ErrMalformed, *env.Monitor)
		}
		return Settings{Quality: env.Quality, Scale: env.Scale, FPS: env.FPS, Monitor: env.Monitor}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

func (e envelope) button() (int, error) {
	if e.Button == nil {
		return 1, nil
	}
	if *e.Button < 1 || *e.Button > 3 {
		return 0, fmt.Errorf("%w: button %d", ErrMalformed, *e.Button)
	}
	return *e.Button, nil
}

// point returns the normalized coordinates clamped into [0,1].
func (e envelope) point() (float64, float64) {
	var x, y float64
	if e.X != nil {
		x = *e.X
	}
	if e.Y != nil {
		y = *e.Y
	}
	return clampUnit(x), clampUnit(y)
}

func clampUnit(v float64) float64 { return math.Min(1, math.Max(0, v)) }
