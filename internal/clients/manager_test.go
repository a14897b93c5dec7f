package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couchcontrol/internal/clock"
)

type testRig struct {
	mgr    *Manager
	frames *countingFrames
	input  *inputLog
	tuner  *tunerLog
	clock  *clock.Fake
	stream *Streamer
}

func newRig(t *testing.T, maxClients int) *testRig {
	t.Helper()
	r := &testRig{
		frames: &countingFrames{},
		input:  &inputLog{},
		tuner:  &tunerLog{},
		clock:  clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	r.stream = NewStreamer(r.frames, 60, clock.Real(), zerolog.Nop())
	r.mgr = NewManager(ManagerConfig{
		MaxClients: maxClients,
		Streamer:   r.stream,
		Control:    &Control{Input: r.input, Capture: r.tuner, Streamer: r.stream, Log: zerolog.Nop()},
		Clock:      r.clock,
		Log:        zerolog.Nop(),
	})
	return r
}

// serve starts Serve in the background and waits for the session to be
// registered.
func (r *testRig) serve(t *testing.T, ch *fakeChannel) (*Session, <-chan error) {
	t.Helper()
	before := r.mgr.Count()
	done := make(chan error, 1)
	go func() { done <- r.mgr.Serve(context.Background(), ch) }()
	require.Eventually(t, func() bool { return r.mgr.Count() == before+1 }, time.Second, time.Millisecond)
	for _, s := range r.mgr.Sessions() {
		if s.ch == ch {
			return s, done
		}
	}
	t.Fatal("session not registered")
	return nil, nil
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestSessionLifecycle(t *testing.T) {
	r := newRig(t, 0)
	ch := newFakeChannel("10.0.0.2:5000")

	s, done := r.serve(t, ch)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, "10.0.0.2:5000", s.Remote)
	require.Eventually(t, func() bool { return ch.Frames() >= 2 }, time.Second, time.Millisecond)

	ch.hangup()
	require.NoError(t, waitDone(t, done))

	assert.Zero(t, r.mgr.Count())
	assert.Equal(t, StateClosed, s.State())
	closed, _, _ := ch.Closed()
	assert.True(t, closed)

	// Both goroutines are gone: nothing is captured or sent afterwards.
	frames, captures := ch.Frames(), r.frames.n.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frames, ch.Frames())
	assert.Equal(t, captures, r.frames.n.Load())
}

func TestStreamFailureEndsSession(t *testing.T) {
	r := newRig(t, 0)
	ch := newFakeChannel("peer")
	ch.writeErr = assert.AnError

	done := make(chan error, 1)
	go func() { done <- r.mgr.Serve(context.Background(), ch) }()
	require.NoError(t, waitDone(t, done))
	assert.Zero(t, r.mgr.Count())
}

func TestCommandsDispatched(t *testing.T) {
	r := newRig(t, 0)
	ch := newFakeChannel("peer")
	_, done := r.serve(t, ch)

	ch.send(`{"type":"click","x":0.5,"y":0.25,"button":3}`)
	ch.send(`{"type":"dblclick","x":0.1,"y":0.2}`)
	ch.send(`{"type":"move","x":1,"y":0}`)
	ch.send(`{"type":"mousedown","button":1}`)
	ch.send(`{"type":"mouseup","x":0.3,"y":0.3}`)
	ch.send(`{"type":"scroll","direction":"up","amount":2}`)
	ch.send(`{"type":"keydown","key":"Enter"}`)
	ch.send(`{"type":"keydown","key":"Shift","hold":true}`)
	ch.send(`{"type":"keyup","key":"Shift"}`)
	ch.send(`{"type":"type","text":"hi"}`)

	want := []string{
		"click 0.5 0.25 right",
		"move 0.1 0.2",
		"dblclick left",
		"move 1 0",
		"mousedown left",
		"move 0.3 0.3",
		"mouseup left",
		"scroll true 2",
		"keypress Enter",
		"keydown Shift",
		"keyup Shift",
		"type hi",
	}
	require.Eventually(t, func() bool { return len(r.input.Calls()) == len(want) }, time.Second, time.Millisecond)
	assert.Equal(t, want, r.input.Calls())

	ch.hangup()
	require.NoError(t, waitDone(t, done))
}

func TestSettingsCommand(t *testing.T) {
	r := newRig(t, 0)
	ch := newFakeChannel("peer")
	_, done := r.serve(t, ch)

	ch.send(`{"type":"settings","quality":40,"scale":0.5,"fps":90}`)
	ch.send(`{"type":"settings","monitor":2}`)
	ch.send(`{"type":"settings","quality":10}`)

	require.Eventually(t, func() bool {
		r.tuner.mu.Lock()
		defer r.tuner.mu.Unlock()
		return len(r.tuner.quality) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{40, 10}, r.tuner.quality)
	assert.Equal(t, []float64{0.5}, r.tuner.scale)
	assert.Equal(t, []int{2}, r.tuner.monitors)
	assert.Equal(t, 60, r.stream.FPS())

	ch.hangup()
	require.NoError(t, waitDone(t, done))
}

func TestMalformedMessageIgnored(t *testing.T) {
	r := newRig(t, 0)
	ch := newFakeChannel("peer")
	s, done := r.serve(t, ch)
	connected := s.LastActivity()

	r.clock.Advance(time.Minute)
	for _, msg := range []string{"not json", `{"type":"warp"}`, `{"type":"click","button":9}`, `{}`} {
		reads := ch.reads.Load()
		ch.send(msg)
		require.Eventually(t, func() bool { return ch.reads.Load() > reads }, time.Second, time.Millisecond)
	}
	require.Eventually(t, func() bool { return ch.reads.Load() >= 5 }, time.Second, time.Millisecond)

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, connected, s.LastActivity())
	assert.Equal(t, connected, r.mgr.LastActivity())
	assert.Empty(t, r.input.Calls())
	closed, _, _ := ch.Closed()
	assert.False(t, closed)

	ch.send(`{"type":"move","x":0.5,"y":0.5}`)
	require.Eventually(t, func() bool { return len(r.input.Calls()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, connected.Add(time.Minute), s.LastActivity())
	assert.Equal(t, connected.Add(time.Minute), r.mgr.LastActivity())

	ch.hangup()
	require.NoError(t, waitDone(t, done))
}

func TestHandlerPanicKeepsSession(t *testing.T) {
	r := newRig(t, 0)
	ch := newFakeChannel("peer")
	s, done := r.serve(t, ch)

	r.input.mu.Lock()
	r.input.panic = true
	r.input.mu.Unlock()
	ch.send(`{"type":"move","x":0.5,"y":0.5}`)
	require.Eventually(t, func() bool { return ch.reads.Load() >= 2 }, time.Second, time.Millisecond)
	assert.Equal(t, StateActive, s.State())

	ch.hangup()
	require.NoError(t, waitDone(t, done))
}

func TestMaxClientsRejects(t *testing.T) {
	r := newRig(t, 1)
	first := newFakeChannel("first")
	_, done := r.serve(t, first)

	second := newFakeChannel("second")
	err := r.mgr.Serve(context.Background(), second)
	assert.ErrorIs(t, err, ErrTooManyClients)
	closed, code, reason := second.Closed()
	assert.True(t, closed)
	assert.Equal(t, websocket.CloseTryAgainLater, code)
	assert.Equal(t, "too many clients", reason)
	assert.Equal(t, 1, r.mgr.Count())
	assert.Zero(t, second.Frames())

	first.hangup()
	require.NoError(t, waitDone(t, done))

	third := newFakeChannel("third")
	_, done = r.serve(t, third)
	third.hangup()
	require.NoError(t, waitDone(t, done))
}

func TestUnlimitedClients(t *testing.T) {
	r := newRig(t, 0)
	var chans []*fakeChannel
	var dones []<-chan error
	for i := 0; i < 5; i++ {
		ch := newFakeChannel("peer")
		_, done := r.serve(t, ch)
		chans, dones = append(chans, ch), append(dones, done)
	}
	assert.Equal(t, 5, r.mgr.Count())
	for i, ch := range chans {
		ch.hangup()
		require.NoError(t, waitDone(t, dones[i]))
	}
}

func TestShutdown(t *testing.T) {
	r := newRig(t, 0)
	a, b := newFakeChannel("a"), newFakeChannel("b")
	sa, doneA := r.serve(t, a)
	sb, doneB := r.serve(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.mgr.Shutdown(ctx))

	assert.Zero(t, r.mgr.Count())
	assert.Equal(t, StateClosed, sa.State())
	assert.Equal(t, StateClosed, sb.State())
	require.NoError(t, waitDone(t, doneA))
	require.NoError(t, waitDone(t, doneB))
	for _, ch := range []*fakeChannel{a, b} {
		closed, code, reason := ch.Closed()
		assert.True(t, closed)
		assert.Equal(t, websocket.CloseGoingAway, code)
		assert.Equal(t, "server shutting down", reason)
	}

	late := newFakeChannel("late")
	assert.ErrorIs(t, r.mgr.Serve(context.Background(), late), ErrShuttingDown)
	_, code, _ := late.Closed()
	assert.Equal(t, websocket.CloseGoingAway, code)
}

func TestIdle(t *testing.T) {
	r := newRig(t, 0)
	r.clock.Advance(61 * time.Second)
	assert.True(t, r.mgr.Idle(time.Minute))
	assert.False(t, r.mgr.Idle(2*time.Minute))

	ch := newFakeChannel("peer")
	_, done := r.serve(t, ch)
	r.clock.Advance(time.Hour)
	assert.False(t, r.mgr.Idle(time.Minute))

	ch.hangup()
	require.NoError(t, waitDone(t, done))
	// Disconnecting counts as activity.
	assert.False(t, r.mgr.Idle(time.Minute))
	r.clock.Advance(61 * time.Second)
	assert.True(t, r.mgr.Idle(time.Minute))
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	r := newRig(t, 0)
	now := r.clock.Now()
	r.mgr.Touch(now.Add(-time.Hour))
	assert.Equal(t, now, r.mgr.LastActivity())
	r.mgr.Touch(now.Add(time.Second))
	assert.Equal(t, now.Add(time.Second), r.mgr.LastActivity())
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func TestDisconnectLogsSessionDuration(t *testing.T) {
	r := newRig(t, 0)
	logs := &syncBuffer{}
	r.mgr.log = zerolog.New(logs)

	ch := newFakeChannel("peer")
	s, done := r.serve(t, ch)
	assert.Equal(t, r.clock.Now(), s.ConnectedAt)
	r.clock.Advance(90 * time.Second)
	assert.Equal(t, 90*time.Second, s.Duration(r.clock.Now()))

	ch.hangup()
	require.NoError(t, waitDone(t, done))

	var found bool
	for _, line := range logs.lines() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &ev))
		if ev["message"] != "client disconnected" {
			continue
		}
		found = true
		assert.EqualValues(t, 90000, ev["duration"], "milliseconds")
		assert.Equal(t, s.ID.String(), ev["session"])
	}
	assert.True(t, found, "no disconnect line in %v", logs.lines())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
}
