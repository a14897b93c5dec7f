package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"couchcontrol/internal/clock"
	"couchcontrol/internal/input"
)

var errInterrupted = errors.New("read interrupted")

// fakeChannel stands in for a websocket. Messages pushed with send are
// returned by ReadMessage; hangup simulates the client going away.
type fakeChannel struct {
	remote string
	in     chan []byte

	interruptOnce sync.Once
	interrupted   chan struct{}
	hangupOnce    sync.Once

	reads atomic.Int32

	mu          sync.Mutex
	frames      int
	pings       int
	writeErr    error
	closed      bool
	closeCode   int
	closeReason string
}

func newFakeChannel(remote string) *fakeChannel {
	return &fakeChannel{remote: remote, in: make(chan []byte, 16), interrupted: make(chan struct{})}
}

func (c *fakeChannel) send(msg string) { c.in <- []byte(msg) }

func (c *fakeChannel) hangup() { c.hangupOnce.Do(func() { close(c.in) }) }

func (c *fakeChannel) ReadMessage() ([]byte, error) {
	c.reads.Add(1)
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-c.interrupted:
		return nil, errInterrupted
	}
}

func (c *fakeChannel) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.frames++
	return nil
}

func (c *fakeChannel) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return nil
}

func (c *fakeChannel) Interrupt() {
	c.interruptOnce.Do(func() { close(c.interrupted) })
}

func (c *fakeChannel) CloseWithReason(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed, c.closeCode, c.closeReason = true, code, reason
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) RemoteAddr() string { return c.remote }

func (c *fakeChannel) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

func (c *fakeChannel) Pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *fakeChannel) Closed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}

// frameFunc adapts a function to FrameSource.
type frameFunc func(ctx context.Context) ([]byte, error)

func (f frameFunc) CaptureFrame(ctx context.Context) ([]byte, error) { return f(ctx) }

type countingFrames struct{ n atomic.Int64 }

func (f *countingFrames) CaptureFrame(ctx context.Context) ([]byte, error) {
	f.n.Add(1)
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

// stepClock jumps forward by every requested delay instead of sleeping,
// and records the delays.
type stepClock struct {
	*clock.Fake

	mu     sync.Mutex
	delays []time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{Fake: clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))}
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.delays = append(c.delays, d)
	c.mu.Unlock()
	c.Advance(d)
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *stepClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

// inputLog records injector calls.
type inputLog struct {
	mu    sync.Mutex
	calls []string
	panic bool
}

func (l *inputLog) add(call string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panic {
		panic("injector exploded")
	}
	l.calls = append(l.calls, call)
	return true
}

func (l *inputLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *inputLog) MoveMouse(_ context.Context, x, y float64, _ bool) bool {
	return l.add(fmtCall("move", x, y))
}
func (l *inputLog) ClickAt(_ context.Context, x, y float64, b input.Button, _ bool) bool {
	return l.add(fmtCall("click", x, y, b))
}
func (l *inputLog) DoubleClick(_ context.Context, b input.Button) bool {
	return l.add(fmtCall("dblclick", b))
}
func (l *inputLog) MouseDown(_ context.Context, b input.Button) bool {
	return l.add(fmtCall("mousedown", b))
}
func (l *inputLog) MouseUp(_ context.Context, b input.Button) bool {
	return l.add(fmtCall("mouseup", b))
}
func (l *inputLog) Scroll(_ context.Context, up bool, amount int) bool {
	return l.add(fmtCall("scroll", up, amount))
}
func (l *inputLog) TypeText(_ context.Context, text string) bool {
	return l.add(fmtCall("type", text))
}
func (l *inputLog) KeyPress(_ context.Context, key string) bool {
	return l.add(fmtCall("keypress", key))
}
func (l *inputLog) KeyDown(_ context.Context, key string) bool {
	return l.add(fmtCall("keydown", key))
}
func (l *inputLog) KeyUp(_ context.Context, key string) bool {
	return l.add(fmtCall("keyup", key))
}

func fmtCall(name string, args ...any) string {
	parts := []string{name}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}

type tunerLog struct {
	mu       sync.Mutex
	quality  []int
	scale    []float64
	monitors []int
}

func (t *tunerLog) SetQuality(q int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.quality = append(t.quality, q)
	return q
}

func (t *tunerLog) SetMonitor(m int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitors = append(t.monitors, m)
	return nil
}

func (t *tunerLog) SetScale(s float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scale = append(t.scale, s)
	return s
}
