package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsPair returns the server side of a fresh connection as a wsChannel and
// the client connection.
func wsPair(t *testing.T, readWait time.Duration) (*wsChannel, *websocket.Conn) {
	t.Helper()
	chans := make(chan *wsChannel, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		chans <- newWSChannel(conn, readWait)
	}))
	t.Cleanup(ts.Close)

	client := dial(t, ts.URL)
	t.Cleanup(func() { _ = client.Close() })
	select {
	case ch := <-chans:
		t.Cleanup(func() { _ = ch.Close() })
		return ch, client
	case <-time.After(2 * time.Second):
		t.Fatal("server side never upgraded")
		return nil, nil
	}
}

func TestInterruptUnblocksReader(t *testing.T) {
	ch, _ := wsPair(t, time.Minute)

	errs := make(chan error, 1)
	go func() {
		_, err := ch.ReadMessage()
		errs <- err
	}()
	ch.Interrupt()

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reader still blocked after Interrupt")
	}
}

func TestPongAfterInterruptKeepsDeadline(t *testing.T) {
	ch, _ := wsPair(t, time.Minute)

	ch.Interrupt()
	// A pong handled right after the interrupt must not extend the read.
	require.NoError(t, ch.conn.PongHandler()(""))

	errs := make(chan error, 1)
	go func() {
		_, err := ch.ReadMessage()
		errs <- err
	}()
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("late pong pushed the read deadline out")
	}
}

func TestCloseWithReason(t *testing.T) {
	ch, client := wsPair(t, time.Minute)
	require.NoError(t, ch.CloseWithReason(websocket.CloseTryAgainLater, "too many clients"))
	require.NoError(t, ch.Close(), "second close is a no-op")

	_, _, err := client.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseTryAgainLater, ce.Code)
	assert.Equal(t, "too many clients", ce.Text)
}
